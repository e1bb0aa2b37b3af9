// Package server provides the public entry point for initializing the
// TutorStack engine server.
//
// This package exists in pkg/ (not internal/) so that embedding
// applications can import it and compose the full server with their own
// middleware.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/tutorstack/tutorstack/engine/internal/api"
	"github.com/tutorstack/tutorstack/engine/internal/api/handlers"
	"github.com/tutorstack/tutorstack/engine/internal/config"
	"github.com/tutorstack/tutorstack/engine/internal/connector"
	"github.com/tutorstack/tutorstack/engine/internal/dispatch"
	"github.com/tutorstack/tutorstack/engine/internal/pipeline"
	"github.com/tutorstack/tutorstack/engine/internal/store"
	"github.com/tutorstack/tutorstack/engine/internal/telemetry"
	"github.com/tutorstack/tutorstack/engine/internal/usage"
	"github.com/tutorstack/tutorstack/engine/pkg/contracts"
	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// Server holds the initialized engine.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the data store. Exposed so embedding applications can
	// seed or inspect it.
	Store store.Store

	// Pool is the outbound provider client pool.
	Pool *connector.ClientPool

	// Sink receives usage records.
	Sink contracts.UsageSink

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush
	// telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all engine components from environment configuration
// and returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the engine with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	dataStore := store.NewMemoryStore()
	if err := store.Seed(ctx, dataStore, cfg.Seed.TenantsPath, cfg.Seed.AssistantsPath); err != nil {
		return nil, fmt.Errorf("seed store: %w", err)
	}

	registry := pipeline.NewRegistry(
		pipeline.NewHTTPBackend(models.ToolKnowledgeBase, cfg.Tools.BackendBase+"/tools/knowledge_base", cfg.Tools.RatePerSec, cfg.Tools.RateBurst),
		pipeline.NewHTTPBackend(models.ToolStructuredDocument, cfg.Tools.BackendBase+"/tools/structured_document", cfg.Tools.RatePerSec, cfg.Tools.RateBurst),
		pipeline.NewHTTPBackend(models.ToolRubric, cfg.Tools.BackendBase+"/tools/rubric", cfg.Tools.RatePerSec, cfg.Tools.RateBurst),
		pipeline.NewHTTPBackend(models.ToolWebSearch, cfg.Tools.BackendBase+"/tools/web_search", cfg.Tools.RatePerSec, cfg.Tools.RateBurst),
		pipeline.NewSummaryBackend(),
	)
	pipe := pipeline.New(registry, cfg.Tools.Timeout, cfg.Tools.Concurrent)

	pool := connector.NewClientPool()
	conn := connector.New(pool,
		connector.NewOpenAIDriver("openai"),
		connector.NewOpenAIDriver("azure-openai"),
		connector.NewOpenAIDriver("openrouter"),
		connector.NewOpenAIDriver("ollama"),
		connector.NewAnthropicDriver(),
	)

	var sink contracts.UsageSink = usage.NopSink{}
	if cfg.Usage.Enabled {
		s, err := usage.NewSQLiteSink(cfg.Usage.DBPath, cfg.Usage.Buffer)
		if err != nil {
			return nil, fmt.Errorf("open usage sink: %w", err)
		}
		sink = s
	}

	dispatcher := dispatch.New(dataStore, registry, pipe, conn, sink, cfg.Providers)
	h := handlers.New(dataStore, dispatcher, sink)
	router := api.NewRouter(cfg, h)

	log.Info().
		Int("port", cfg.Port).
		Bool("tool_concurrent", cfg.Tools.Concurrent).
		Bool("usage_enabled", cfg.Usage.Enabled).
		Msg("Engine components initialized")

	return &Server{
		Handler:      router,
		Store:        dataStore,
		Pool:         pool,
		Sink:         sink,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
