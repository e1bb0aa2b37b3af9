package pipeline

import (
	"github.com/tutorstack/tutorstack/engine/internal/errs"
	"github.com/tutorstack/tutorstack/engine/pkg/contracts"
	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// Registry maps tool types to backends. Populated once at startup and
// read-only afterwards, so lookups need no locking.
type Registry struct {
	backends map[models.ToolType]contracts.ToolBackend
}

// NewRegistry builds a registry from the given backends. A duplicate
// type registration keeps the last one.
func NewRegistry(backends ...contracts.ToolBackend) *Registry {
	r := &Registry{backends: make(map[models.ToolType]contracts.ToolBackend, len(backends))}
	for _, b := range backends {
		r.backends[b.Type()] = b
	}
	return r
}

// Lookup returns the backend for a tool type.
func (r *Registry) Lookup(t models.ToolType) (contracts.ToolBackend, bool) {
	b, ok := r.backends[t]
	return b, ok
}

// Validate checks that every enabled descriptor maps to a registered
// backend. An unknown enabled type is a configuration error and aborts
// the request before any tool runs.
func (r *Registry) Validate(descriptors []models.ToolDescriptor) error {
	for _, td := range descriptors {
		if !td.Enabled {
			continue
		}
		if _, ok := r.backends[td.Type]; !ok {
			return errs.Newf(errs.KindConfiguration, "unknown tool type %q", td.Type)
		}
	}
	return nil
}
