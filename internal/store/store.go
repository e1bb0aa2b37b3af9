// Package store provides the storage interface and implementations for the
// TutorStack engine. The in-memory store covers local dev and tests; all
// handler and dispatcher code depends only on the Store interface.
package store

import (
	"context"

	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// Store is the primary storage interface for the engine.
type Store interface {
	AssistantStore
	TenantStore

	// Ping checks if the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Assistant Store ─────────────────────────────────────────

type AssistantStore interface {
	ListAssistants(ctx context.Context, tenant string) ([]models.AssistantConfig, error)
	GetAssistant(ctx context.Context, tenant, ref string) (*models.AssistantConfig, error)
	CreateAssistant(ctx context.Context, a *models.AssistantConfig) error
	UpdateAssistant(ctx context.Context, a *models.AssistantConfig) error
	DeleteAssistant(ctx context.Context, tenant, ref string) error
}

// ── Tenant Store ────────────────────────────────────────────

// TenantStore persists per-tenant provider configuration.
type TenantStore interface {
	GetTenantConfig(ctx context.Context, tenant string) (*models.TenantConfig, error)
	UpsertTenantConfig(ctx context.Context, cfg *models.TenantConfig) error
	ListTenants(ctx context.Context) ([]string, error)
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}
