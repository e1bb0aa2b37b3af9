package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tutorstack/tutorstack/engine/internal/api/handlers"
	"github.com/tutorstack/tutorstack/engine/internal/api/middleware"
	"github.com/tutorstack/tutorstack/engine/internal/config"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.TenantExtractor)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.NewAPIKeyAuth().Middleware)

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Completions
		r.Post("/completions", h.CreateCompletion)

		// Assistant registry
		r.Route("/assistants", func(r chi.Router) {
			r.Get("/", h.ListAssistants)
			r.Post("/", h.RegisterAssistant)
			r.Route("/{assistantID}", func(r chi.Router) {
				r.Get("/", h.GetAssistant)
				r.Put("/", h.UpdateAssistant)
				r.Delete("/", h.DeleteAssistant)
			})
		})

		// Tenant provider configuration
		r.Route("/tenant", func(r chi.Router) {
			r.Get("/providers", h.GetTenantConfig)
			r.Put("/providers", h.UpsertTenantConfig)
		})

		// Usage accounting
		r.Get("/usage/summary", h.UsageSummary)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "tutorstack-engine",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "tutorstack-engine",
		})
	}
}
