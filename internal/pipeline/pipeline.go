// Package pipeline runs an assistant's enabled tools before prompt
// assembly, collecting placeholder values, citations, and status events.
//
// A failed tool never fails the request: its placeholder is set to the
// empty string, a status event notes the failure, and the run continues.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// Pipeline executes enabled tool descriptors in declared order.
type Pipeline struct {
	registry    *Registry
	toolTimeout time.Duration
	concurrent  bool
}

// New creates a pipeline runner. toolTimeout bounds each individual
// tool invocation; concurrent switches from sequential execution to an
// errgroup with declared-order merging.
func New(registry *Registry, toolTimeout time.Duration, concurrent bool) *Pipeline {
	return &Pipeline{registry: registry, toolTimeout: toolTimeout, concurrent: concurrent}
}

// Run executes the assistant's enabled tools and writes their outputs
// into pc. Call Registry.Validate first: Run assumes every enabled
// descriptor has a backend.
func (p *Pipeline) Run(ctx context.Context, assistant *models.AssistantConfig, messages []models.Message, pc *Context) {
	enabled := assistant.EnabledTools()
	if len(enabled) == 0 {
		return
	}
	if p.concurrent && len(enabled) > 1 {
		p.runConcurrent(ctx, enabled, messages, pc)
		return
	}
	for _, td := range enabled {
		out, err := p.invoke(ctx, td, messages)
		p.merge(td, out, err, pc)
	}
}

// runConcurrent executes all tools in parallel but merges results in
// declared order, so overwrite semantics match the sequential path.
func (p *Pipeline) runConcurrent(ctx context.Context, enabled []models.ToolDescriptor, messages []models.Message, pc *Context) {
	type slot struct {
		out *models.ToolOutput
		err error
	}
	results := make([]slot, len(enabled))

	g, gctx := errgroup.WithContext(ctx)
	for i, td := range enabled {
		i, td := i, td
		g.Go(func() error {
			out, err := p.invoke(gctx, td, messages)
			results[i] = slot{out: out, err: err}
			return nil
		})
	}
	// Goroutines never return errors; failures are carried in results.
	_ = g.Wait()

	for i, td := range enabled {
		p.merge(td, results[i].out, results[i].err, pc)
	}
}

func (p *Pipeline) invoke(ctx context.Context, td models.ToolDescriptor, messages []models.Message) (*models.ToolOutput, error) {
	backend, _ := p.registry.Lookup(td.Type)
	tctx, cancel := context.WithTimeout(ctx, p.toolTimeout)
	defer cancel()

	start := time.Now()
	out, err := backend.Run(tctx, messages, td.Config)
	log.Debug().
		Str("tool", string(td.Type)).
		Dur("elapsed", time.Since(start)).
		Bool("failed", err != nil).
		Msg("Tool finished")
	return out, err
}

// merge applies one tool result to the accumulator. Descriptors sharing
// a placeholder overwrite in declared order, so the last one wins.
func (p *Pipeline) merge(td models.ToolDescriptor, out *models.ToolOutput, err error, pc *Context) {
	name := PlaceholderName(td)
	if err != nil {
		log.Warn().Err(err).Str("tool", string(td.Type)).Msg("Tool failed, continuing without its output")
		pc.SetPlaceholder(name, "")
		pc.AddEvent(string(td.Type), "tool "+string(td.Type)+" failed: "+reason(err))
		return
	}
	pc.SetPlaceholder(name, out.Text)
	pc.AddSources(out.Sources)
	for _, ev := range out.Status {
		pc.AddEvent(ev.Tool, ev.Text)
	}
}

// PlaceholderName normalizes a descriptor's placeholder: surrounding
// braces are accepted and stripped, and an empty placeholder defaults
// to the tool type.
func PlaceholderName(td models.ToolDescriptor) string {
	name := strings.Trim(td.Placeholder, "{}")
	if name == "" {
		return string(td.Type)
	}
	return name
}

// reason produces the short user-safe failure text for status events.
func reason(err error) string {
	if err == context.DeadlineExceeded || strings.Contains(err.Error(), context.DeadlineExceeded.Error()) {
		return "timed out"
	}
	return err.Error()
}
