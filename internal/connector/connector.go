package connector

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tutorstack/tutorstack/engine/internal/errs"
	"github.com/tutorstack/tutorstack/engine/pkg/contracts"
	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// visionFallbackNotice is prepended to the degraded text when image
// content is dropped after a failed multimodal call.
const visionFallbackNotice = "image content could not be processed; continuing with text only"

// Connector implements contracts.Completer over a client pool and a
// set of per-kind drivers.
type Connector struct {
	pool    *ClientPool
	drivers map[string]contracts.ProviderDriver
}

// New wires a connector with the given drivers.
func New(pool *ClientPool, drivers ...contracts.ProviderDriver) *Connector {
	m := make(map[string]contracts.ProviderDriver, len(drivers))
	for _, d := range drivers {
		m[d.Kind()] = d
	}
	return &Connector{pool: pool, drivers: m}
}

// Complete runs a blocking completion with the single multimodal
// fallback retry applied.
func (c *Connector) Complete(ctx context.Context, rc *models.ResolvedProviderConfig, purpose models.RequestPurpose, messages []models.Message) (*models.CompletionResult, error) {
	driver, err := c.driver(rc)
	if err != nil {
		return nil, err
	}
	client := c.pool.Get(rc)
	model := c.modelFor(rc, purpose)

	res, callErr := driver.Complete(ctx, client, rc, model, messages)
	if callErr == nil {
		res.Provider = rc.Provider
		return res, nil
	}

	if !hasImages(messages) {
		return nil, errs.Wrapf(errs.KindConnector, callErr, "provider %s rejected the request", rc.Provider)
	}

	// One retry: drop images, switch to the text fallback model.
	log.Warn().Err(callErr).
		Str("provider", rc.Provider).
		Str("model", model).
		Msg("Multimodal call failed, retrying text-only")

	res, retryErr := driver.Complete(ctx, client, rc, c.fallbackModel(rc, model), degrade(messages))
	if retryErr != nil {
		return nil, errs.Wrapf(errs.KindConnector, retryErr, "provider %s rejected the request after text-only retry", rc.Provider)
	}
	res.Provider = rc.Provider
	res.Degraded = true
	// The caller must see the warning, not just the fallback model.
	res.Content = visionFallbackNotice + "\n\n" + res.Content
	return res, nil
}

// Stream runs a streaming completion. The fallback retry fires only
// when the first attempt failed before emitting any delta: once output
// has reached the caller the stream cannot be restarted.
func (c *Connector) Stream(ctx context.Context, rc *models.ResolvedProviderConfig, purpose models.RequestPurpose, messages []models.Message, emit contracts.DeltaFunc) (*models.CompletionResult, error) {
	driver, err := c.driver(rc)
	if err != nil {
		return nil, err
	}
	client := c.pool.Get(rc)
	model := c.modelFor(rc, purpose)

	emitted := false
	counting := func(delta string) {
		emitted = true
		emit(delta)
	}

	res, callErr := driver.Stream(ctx, client, rc, model, messages, counting)
	if callErr == nil {
		res.Provider = rc.Provider
		return res, nil
	}

	if emitted || !hasImages(messages) {
		return nil, errs.Wrapf(errs.KindConnector, callErr, "provider %s stream failed", rc.Provider)
	}

	log.Warn().Err(callErr).
		Str("provider", rc.Provider).
		Str("model", model).
		Msg("Multimodal stream failed before first delta, retrying text-only")

	// The warning leads the degraded stream, emitted just before the
	// retry's first delta so a second failure produces no output.
	noticed := false
	retryEmit := func(delta string) {
		if !noticed {
			noticed = true
			emit(visionFallbackNotice + "\n\n")
		}
		emit(delta)
	}
	res, retryErr := driver.Stream(ctx, client, rc, c.fallbackModel(rc, model), degrade(messages), retryEmit)
	if retryErr != nil {
		return nil, errs.Wrapf(errs.KindConnector, retryErr, "provider %s stream failed after text-only retry", rc.Provider)
	}
	res.Provider = rc.Provider
	res.Degraded = true
	res.Content = visionFallbackNotice + "\n\n" + res.Content
	return res, nil
}

// Pool exposes the underlying client pool for lifecycle management.
func (c *Connector) Pool() *ClientPool { return c.pool }

func (c *Connector) driver(rc *models.ResolvedProviderConfig) (contracts.ProviderDriver, error) {
	d, ok := c.drivers[rc.Kind]
	if !ok {
		return nil, errs.Newf(errs.KindConfiguration, "no driver for provider kind %q", rc.Kind)
	}
	return d, nil
}

// modelFor applies purpose routing: titles go to the cheap model and
// image requests to the image model when the provider declares them.
func (c *Connector) modelFor(rc *models.ResolvedProviderConfig, purpose models.RequestPurpose) string {
	switch purpose {
	case models.PurposeTitle:
		if rc.TitleModel != "" {
			return rc.TitleModel
		}
	case models.PurposeImage:
		if rc.ImageModel != "" {
			return rc.ImageModel
		}
	}
	return rc.Model
}

func (c *Connector) fallbackModel(rc *models.ResolvedProviderConfig, current string) string {
	if rc.FallbackModel != "" {
		return rc.FallbackModel
	}
	return current
}

func hasImages(messages []models.Message) bool {
	for i := range messages {
		if messages[i].HasImages() {
			return true
		}
	}
	return false
}

// degrade strips image parts from every message, collapsing multimodal
// content to plain text with the fallback notice prepended where images
// were removed.
func degrade(messages []models.Message) []models.Message {
	out := make([]models.Message, len(messages))
	for i, msg := range messages {
		if !msg.HasImages() {
			out[i] = msg
			continue
		}
		var texts []string
		for _, p := range msg.Parts {
			if p.Type == "text" && p.Text != "" {
				texts = append(texts, p.Text)
			}
		}
		body := strings.Join(texts, "\n")
		if body == "" {
			body = visionFallbackNotice
		} else {
			body = visionFallbackNotice + "\n" + body
		}
		out[i] = models.Message{Role: msg.Role, Content: body}
	}
	return out
}
