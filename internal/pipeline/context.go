package pipeline

import (
	"time"

	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// Context accumulates tool outputs for one request. It is owned by the
// pipeline runner: backends return outputs, only the runner writes here,
// so no locking is needed. After Freeze the maps must not be mutated.
type Context struct {
	placeholders map[string]string
	sources      []models.SourceRef
	events       []models.StatusEvent
	frozen       bool
}

// NewContext returns an empty accumulator.
func NewContext() *Context {
	return &Context{placeholders: make(map[string]string)}
}

// SetPlaceholder records a placeholder value. Later writes to the same
// name overwrite earlier ones.
func (c *Context) SetPlaceholder(name, value string) {
	if c.frozen {
		panic("pipeline: write to frozen context")
	}
	c.placeholders[name] = value
}

// AddSources appends citations collected from a tool output.
func (c *Context) AddSources(srcs []models.SourceRef) {
	if c.frozen {
		panic("pipeline: write to frozen context")
	}
	c.sources = append(c.sources, srcs...)
}

// AddEvent appends one status event.
func (c *Context) AddEvent(tool, text string) {
	if c.frozen {
		panic("pipeline: write to frozen context")
	}
	c.events = append(c.events, models.StatusEvent{Tool: tool, Text: text, At: time.Now()})
}

// Freeze marks the accumulator read-only. Called once, after the last
// tool finishes and before prompt assembly.
func (c *Context) Freeze() { c.frozen = true }

// Placeholders returns the accumulated placeholder values.
func (c *Context) Placeholders() map[string]string { return c.placeholders }

// Sources returns all citations in tool completion order.
func (c *Context) Sources() []models.SourceRef { return c.sources }

// Events returns all status events in emission order.
func (c *Context) Events() []models.StatusEvent { return c.events }
