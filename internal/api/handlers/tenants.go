package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tutorstack/tutorstack/engine/internal/api/middleware"
	"github.com/tutorstack/tutorstack/engine/internal/store"
	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// GetTenantConfig handles GET /api/v1/tenant/providers. API keys are
// masked in the response.
func (h *Handlers) GetTenantConfig(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r.Context())

	cfg, err := h.Store.GetTenantConfig(r.Context(), tenant)
	if err != nil {
		var nf *store.ErrNotFound
		if errors.As(err, &nf) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, maskKeys(cfg))
}

// UpsertTenantConfig handles PUT /api/v1/tenant/providers.
func (h *Handlers) UpsertTenantConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.TenantConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	cfg.Tenant = middleware.GetTenant(r.Context())

	if err := h.Store.UpsertTenantConfig(r.Context(), &cfg); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, maskKeys(&cfg))
}

// maskKeys redacts credentials before the config leaves the server.
func maskKeys(cfg *models.TenantConfig) *models.TenantConfig {
	cp := *cfg
	cp.Providers = append([]models.ProviderConfig(nil), cfg.Providers...)
	for i := range cp.Providers {
		if cp.Providers[i].APIKey != "" {
			cp.Providers[i].APIKey = "********"
		}
	}
	return &cp
}
