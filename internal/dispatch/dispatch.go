// Package dispatch is the request orchestrator: it loads the assistant,
// runs the tool pipeline, assembles the prompt, resolves the provider,
// and hands the call to the connector, for both blocking and streaming
// requests.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tutorstack/tutorstack/engine/internal/assemble"
	"github.com/tutorstack/tutorstack/engine/internal/config"
	"github.com/tutorstack/tutorstack/engine/internal/errs"
	"github.com/tutorstack/tutorstack/engine/internal/pipeline"
	"github.com/tutorstack/tutorstack/engine/internal/resolve"
	"github.com/tutorstack/tutorstack/engine/internal/store"
	"github.com/tutorstack/tutorstack/engine/internal/stream"
	"github.com/tutorstack/tutorstack/engine/pkg/contracts"
	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// Dispatcher coordinates one completion request end to end.
type Dispatcher struct {
	store     contracts.Store
	registry  *pipeline.Registry
	pipe      *pipeline.Pipeline
	completer contracts.Completer
	sink      contracts.UsageSink
	defaults  config.ProviderDefaults
	tracer    trace.Tracer
}

// New wires a dispatcher.
func New(st contracts.Store, registry *pipeline.Registry, pipe *pipeline.Pipeline, completer contracts.Completer, sink contracts.UsageSink, defaults config.ProviderDefaults) *Dispatcher {
	return &Dispatcher{
		store:     st,
		registry:  registry,
		pipe:      pipe,
		completer: completer,
		sink:      sink,
		defaults:  defaults,
		tracer:    otel.Tracer("tutorstack/dispatch"),
	}
}

// prepared is everything the provider call needs, produced once per
// request.
type prepared struct {
	requestID string
	assistant *models.AssistantConfig
	rc        *models.ResolvedProviderConfig
	purpose   models.RequestPurpose
	messages  []models.Message
	events    []models.StatusEvent
	sources   []models.SourceRef
}

// prepare runs the shared front half of both request paths: assistant
// lookup, tool pipeline, prompt assembly, provider resolution.
func (d *Dispatcher) prepare(ctx context.Context, tenant string, req *models.CompletionRequest) (*prepared, error) {
	assistant, err := d.store.GetAssistant(ctx, tenant, req.AssistantRef)
	if err != nil {
		var nf *store.ErrNotFound
		if errors.As(err, &nf) {
			return nil, errs.Newf(errs.KindNotFound, "assistant %q not found", req.AssistantRef)
		}
		return nil, errs.Wrap(errs.KindInternal, err, "assistant lookup failed")
	}

	if err := d.registry.Validate(assistant.Tools); err != nil {
		return nil, err
	}

	messages := req.Messages
	pc := pipeline.NewContext()
	if !assistant.VisionEnabled {
		messages, pc = dropImages(messages, pc)
	}

	pctx, pspan := d.tracer.Start(ctx, "dispatch.pipeline")
	d.pipe.Run(pctx, assistant, messages, pc)
	pspan.End()
	pc.Freeze()

	_, aspan := d.tracer.Start(ctx, "dispatch.assemble")
	final := assemble.Messages(assistant, messages, pc.Placeholders())
	aspan.End()

	tenantCfg, err := d.store.GetTenantConfig(ctx, tenant)
	if err != nil {
		var nf *store.ErrNotFound
		if errors.As(err, &nf) {
			return nil, errs.Newf(errs.KindConfiguration, "tenant %q has no provider configuration", tenant)
		}
		return nil, errs.Wrap(errs.KindInternal, err, "tenant config lookup failed")
	}

	rc, err := resolve.Resolve(req.Override, assistant, tenantCfg, d.defaults)
	if err != nil {
		return nil, err
	}

	purpose := req.Purpose
	if purpose == "" {
		purpose = models.PurposeChat
		if hasImages(final) {
			purpose = models.PurposeImage
		}
	}

	return &prepared{
		requestID: uuid.NewString(),
		assistant: assistant,
		rc:        rc,
		purpose:   purpose,
		messages:  final,
		events:    pc.Events(),
		sources:   pc.Sources(),
	}, nil
}

// Complete handles a blocking completion request.
func (d *Dispatcher) Complete(ctx context.Context, tenant string, req *models.CompletionRequest) (*models.CompletionResponse, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.Complete")
	defer span.End()
	start := time.Now()

	p, err := d.prepare(ctx, tenant, req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("assistant", p.assistant.ID),
		attribute.String("provider", p.rc.Provider),
		attribute.String("request_id", p.requestID),
	)

	res, err := d.completer.Complete(ctx, p.rc, p.purpose, p.messages)
	if err != nil {
		return nil, err
	}

	d.record(tenant, p, res, time.Since(start), false)
	log.Info().
		Str("request_id", p.requestID).
		Str("assistant", p.assistant.ID).
		Str("provider", res.Provider).
		Str("model", res.Model).
		Int64("total_tokens", res.Usage.TotalTokens).
		Bool("degraded", res.Degraded).
		Msg("Completion finished")

	return &models.CompletionResponse{
		Message:      models.Message{Role: "assistant", Content: res.Content},
		FinishReason: res.FinishReason,
		Usage:        res.Usage,
		Sources:      p.sources,
	}, nil
}

// Stream handles a streaming completion request, writing frames through w.
func (d *Dispatcher) Stream(ctx context.Context, tenant string, req *models.CompletionRequest, w stream.Writer) error {
	ctx, span := d.tracer.Start(ctx, "dispatch.Stream")
	defer span.End()
	start := time.Now()

	p, err := d.prepare(ctx, tenant, req)
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.String("assistant", p.assistant.ID),
		attribute.String("provider", p.rc.Provider),
		attribute.String("request_id", p.requestID),
	)

	b := stream.NewBroadcaster(w, p.assistant.Verbose)
	if err := b.SendStatus(p.events); err != nil {
		return err
	}

	var writerErr error
	res, err := d.completer.Stream(ctx, p.rc, p.purpose, p.messages, func(delta string) {
		if writerErr != nil {
			return
		}
		if ctx.Err() != nil {
			writerErr = errs.Wrap(errs.KindStreamInterrupted, ctx.Err(), "client disconnected mid-stream")
			return
		}
		writerErr = b.SendDelta(delta)
	})
	if writerErr != nil {
		log.Warn().Err(writerErr).Str("request_id", p.requestID).Msg("Stream interrupted")
		return writerErr
	}
	if err != nil {
		return err
	}

	if err := b.SendTerminal(res.FinishReason, res.Usage, p.sources); err != nil {
		return err
	}

	d.record(tenant, p, res, time.Since(start), true)
	log.Info().
		Str("request_id", p.requestID).
		Str("assistant", p.assistant.ID).
		Str("provider", res.Provider).
		Int64("total_tokens", res.Usage.TotalTokens).
		Bool("degraded", res.Degraded).
		Msg("Stream finished")
	return nil
}

func (d *Dispatcher) record(tenant string, p *prepared, res *models.CompletionResult, elapsed time.Duration, streamed bool) {
	outcome := "completed"
	if res.Degraded {
		outcome = "degraded"
	}
	d.sink.Record(&models.UsageRecord{
		ID:           uuid.NewString(),
		RequestID:    p.requestID,
		Tenant:       tenant,
		AssistantID:  p.assistant.ID,
		Provider:     res.Provider,
		Model:        res.Model,
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		TotalTokens:  res.Usage.TotalTokens,
		DurationMs:   elapsed.Milliseconds(),
		Outcome:      outcome,
		Streamed:     streamed,
		CreatedAt:    time.Now().UTC(),
	})
}

// dropImages strips image parts when the assistant has vision disabled,
// noting the drop as a status event.
func dropImages(messages []models.Message, pc *pipeline.Context) ([]models.Message, *pipeline.Context) {
	if !hasImages(messages) {
		return messages, pc
	}
	out := make([]models.Message, len(messages))
	for i, msg := range messages {
		if !msg.HasImages() {
			out[i] = msg
			continue
		}
		out[i] = models.Message{Role: msg.Role, Content: msg.TextContent()}
	}
	pc.AddEvent("", "image content ignored: vision is disabled for this assistant")
	return out, pc
}

func hasImages(messages []models.Message) bool {
	for i := range messages {
		if messages[i].HasImages() {
			return true
		}
	}
	return false
}
