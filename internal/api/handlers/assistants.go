package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tutorstack/tutorstack/engine/internal/api/middleware"
	"github.com/tutorstack/tutorstack/engine/internal/assemble"
	"github.com/tutorstack/tutorstack/engine/internal/pipeline"
	"github.com/tutorstack/tutorstack/engine/internal/store"
	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// assistantResponse is the write-path response shape: the stored config
// plus any template warnings from registration-time validation.
type assistantResponse struct {
	models.AssistantConfig
	Warnings []string `json:"warnings,omitempty"`
}

// templateWarnings reports template placeholders that no enabled tool
// fills. Unfilled placeholders stay literal at request time, so this is
// advisory, not an error.
func templateWarnings(a *models.AssistantConfig) []string {
	provided := map[string]bool{assemble.UserInputToken: true}
	for _, td := range a.EnabledTools() {
		provided[pipeline.PlaceholderName(td)] = true
	}
	var warnings []string
	for _, name := range assemble.ExtractPlaceholders(a.PromptTemplate) {
		if !provided[name] {
			warnings = append(warnings, fmt.Sprintf("template placeholder {%s} is not filled by any enabled tool", name))
		}
	}
	return warnings
}

// ListAssistants handles GET /api/v1/assistants.
func (h *Handlers) ListAssistants(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r.Context())
	assistants, err := h.Store.ListAssistants(r.Context(), tenant)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if assistants == nil {
		assistants = []models.AssistantConfig{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"assistants": assistants})
}

// GetAssistant handles GET /api/v1/assistants/{assistantID}.
func (h *Handlers) GetAssistant(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r.Context())
	id := chi.URLParam(r, "assistantID")

	a, err := h.Store.GetAssistant(r.Context(), tenant, id)
	if err != nil {
		var nf *store.ErrNotFound
		if errors.As(err, &nf) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// RegisterAssistant handles POST /api/v1/assistants.
func (h *Handlers) RegisterAssistant(w http.ResponseWriter, r *http.Request) {
	var a models.AssistantConfig
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if a.ID == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}
	a.Owner = middleware.GetTenant(r.Context())

	if err := h.Store.CreateAssistant(r.Context(), &a); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, assistantResponse{AssistantConfig: a, Warnings: templateWarnings(&a)})
}

// UpdateAssistant handles PUT /api/v1/assistants/{assistantID}.
func (h *Handlers) UpdateAssistant(w http.ResponseWriter, r *http.Request) {
	var a models.AssistantConfig
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	a.ID = chi.URLParam(r, "assistantID")
	a.Owner = middleware.GetTenant(r.Context())

	if err := h.Store.UpdateAssistant(r.Context(), &a); err != nil {
		var nf *store.ErrNotFound
		if errors.As(err, &nf) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, assistantResponse{AssistantConfig: a, Warnings: templateWarnings(&a)})
}

// DeleteAssistant handles DELETE /api/v1/assistants/{assistantID}.
func (h *Handlers) DeleteAssistant(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r.Context())
	id := chi.URLParam(r, "assistantID")

	if err := h.Store.DeleteAssistant(r.Context(), tenant, id); err != nil {
		var nf *store.ErrNotFound
		if errors.As(err, &nf) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
