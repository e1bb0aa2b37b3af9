// Package handlers implements the HTTP handlers for the engine API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/tutorstack/tutorstack/engine/internal/dispatch"
	"github.com/tutorstack/tutorstack/engine/internal/errs"
	"github.com/tutorstack/tutorstack/engine/pkg/contracts"
)

// Handlers carries the handler dependencies.
type Handlers struct {
	Store      contracts.Store
	Dispatcher *dispatch.Dispatcher
	Usage      contracts.UsageSink
}

// New creates a Handlers instance with all dependencies.
func New(s contracts.Store, d *dispatch.Dispatcher, u contracts.UsageSink) *Handlers {
	return &Handlers{Store: s, Dispatcher: d, Usage: u}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondClassified maps an engine error kind to an HTTP status and
// writes the {"error": {"kind", "message"}} body.
func respondClassified(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindConfiguration:
		status = http.StatusUnprocessableEntity
	case errs.KindConnector:
		status = http.StatusBadGateway
	case errs.KindStreamInterrupted:
		// Client is gone, nothing to write.
		return
	}
	respondJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"kind":    string(kind),
			"message": errs.MessageOf(err),
		},
	})
}
