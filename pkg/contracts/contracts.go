// Package contracts defines the service interfaces for the TutorStack engine.
//
// These interfaces form the boundary between packages: the dispatcher
// depends on them rather than on concrete implementations, so tests can
// substitute fakes and alternative backends can be wired in main.go with
// a one-line change.
package contracts

import (
	"context"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tutorstack/tutorstack/engine/internal/store"
	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// Store is a type alias for the internal Store interface.
// Exposed in pkg/ so embedding applications can reference it without
// importing internal/ directly.
type Store = store.Store

// ErrNotFound is a type alias for the internal ErrNotFound error.
type ErrNotFound = store.ErrNotFound

// ── Tool Backend ────────────────────────────────────────────

// ToolBackend produces context text for one tool type. Implementations
// must be safe for concurrent use; the pipeline may invoke them in
// parallel when concurrent mode is enabled.
type ToolBackend interface {
	// Type reports which tool descriptor type this backend serves.
	Type() models.ToolType

	// Run executes the tool against the conversation and returns its
	// output. Errors are recovered by the pipeline, never fatal to the
	// request.
	Run(ctx context.Context, messages []models.Message, cfg map[string]interface{}) (*models.ToolOutput, error)
}

// ── Provider Driver ─────────────────────────────────────────

// PooledClient is one cached provider client. The HTTP client carries
// the per-provider connection limits and timeouts; OpenAI is set only
// for OpenAI-compatible kinds.
type PooledClient struct {
	HTTP   *http.Client
	OpenAI *openai.Client
}

// DeltaFunc receives one streamed content fragment.
type DeltaFunc func(delta string)

// ProviderDriver is the interface for model provider integrations.
// One driver serves all pooled clients of its kind.
type ProviderDriver interface {
	// Kind reports the provider kind this driver serves ("openai",
	// "azure-openai", "openrouter", "ollama", "anthropic").
	Kind() string

	// Complete performs a blocking completion.
	Complete(ctx context.Context, client *PooledClient, rc *models.ResolvedProviderConfig, model string, messages []models.Message) (*models.CompletionResult, error)

	// Stream performs a streaming completion, invoking emit for each
	// content delta. The returned result carries the final usage and
	// finish reason.
	Stream(ctx context.Context, client *PooledClient, rc *models.ResolvedProviderConfig, model string, messages []models.Message, emit DeltaFunc) (*models.CompletionResult, error)
}

// ── Completer ───────────────────────────────────────────────

// Completer is the connector layer seen from the dispatcher: resolve a
// client, pick a model for the purpose, run the call with multimodal
// fallback applied.
type Completer interface {
	Complete(ctx context.Context, rc *models.ResolvedProviderConfig, purpose models.RequestPurpose, messages []models.Message) (*models.CompletionResult, error)
	Stream(ctx context.Context, rc *models.ResolvedProviderConfig, purpose models.RequestPurpose, messages []models.Message, emit DeltaFunc) (*models.CompletionResult, error)
}

// ── Usage Sink ──────────────────────────────────────────────

// UsageSink records per-request accounting. Record must never block the
// request path; implementations drop on overflow.
type UsageSink interface {
	Record(rec *models.UsageRecord)
	Close() error
}
