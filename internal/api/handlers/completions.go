package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/tutorstack/tutorstack/engine/internal/api/middleware"
	"github.com/tutorstack/tutorstack/engine/internal/errs"
	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// CreateCompletion handles POST /api/v1/completions for both blocking
// and streaming requests, switched by the request's stream flag.
func (h *Handlers) CreateCompletion(w http.ResponseWriter, r *http.Request) {
	var req models.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AssistantRef == "" {
		respondError(w, http.StatusBadRequest, "assistant_ref is required")
		return
	}
	if len(req.Messages) == 0 {
		respondError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	tenant := middleware.GetTenant(r.Context())

	if req.Stream {
		h.streamCompletion(w, r, tenant, &req)
		return
	}

	resp, err := h.Dispatcher.Complete(r.Context(), tenant, &req)
	if err != nil {
		respondClassified(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handlers) streamCompletion(w http.ResponseWriter, r *http.Request, tenant string, req *models.CompletionRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	err := h.Dispatcher.Stream(r.Context(), tenant, req, func(frame models.Frame) error {
		data, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if errs.KindOf(err) == errs.KindStreamInterrupted {
			// Headers are long gone; just log and stop.
			log.Debug().Err(err).Msg("Stream ended by client")
			return
		}
		// Pre-stream failures still reach the client as a final SSE
		// error event.
		payload, _ := json.Marshal(map[string]interface{}{
			"type": "error",
			"error": map[string]string{
				"kind":    string(errs.KindOf(err)),
				"message": errs.MessageOf(err),
			},
		})
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}
