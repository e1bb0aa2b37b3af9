package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tutorstack/tutorstack/engine/internal/store"
	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// newTestStore creates a fresh in-memory store for tests with no persistence.
func newTestStore(t *testing.T) store.Store {
	t.Helper()
	os.Unsetenv("TUTORSTACK_DATA_DIR")
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

// ─── Assistant CRUD ──────────────────────────────────────────

func TestCreateAndGetAssistant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &models.AssistantConfig{
		ID:           "math-tutor",
		Owner:        "acme",
		Name:         "Math Tutor",
		SystemPrompt: "You are a patient math tutor.",
	}

	if err := s.CreateAssistant(ctx, a); err != nil {
		t.Fatalf("CreateAssistant() error = %v", err)
	}

	got, err := s.GetAssistant(ctx, "acme", "math-tutor")
	if err != nil {
		t.Fatalf("GetAssistant() error = %v", err)
	}
	if got.Name != "Math Tutor" {
		t.Errorf("GetAssistant().Name = %q, want %q", got.Name, "Math Tutor")
	}
	if got.CreatedAt.IsZero() {
		t.Error("GetAssistant().CreatedAt is zero, want set on create")
	}
}

func TestGetAssistant_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetAssistant(context.Background(), "acme", "missing")
	var nf *store.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("GetAssistant() error = %v, want *ErrNotFound", err)
	}
	if nf.Key != "missing" {
		t.Errorf("ErrNotFound.Key = %q, want %q", nf.Key, "missing")
	}
}

func TestGetAssistant_TenantIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateAssistant(ctx, &models.AssistantConfig{ID: "shared", Owner: "acme"})

	if _, err := s.GetAssistant(ctx, "other", "shared"); err == nil {
		t.Error("GetAssistant() across tenants should fail")
	}
}

func TestListAssistants(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		s.CreateAssistant(ctx, &models.AssistantConfig{ID: id, Owner: "acme"})
	}
	s.CreateAssistant(ctx, &models.AssistantConfig{ID: "x", Owner: "other"})

	got, err := s.ListAssistants(ctx, "acme")
	if err != nil {
		t.Fatalf("ListAssistants() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListAssistants() len = %d, want 3", len(got))
	}
	if got[0].ID != "a" || got[2].ID != "c" {
		t.Errorf("ListAssistants() not sorted by ID: %v, %v, %v", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestUpdateAssistant_PreservesCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &models.AssistantConfig{ID: "tut", Owner: "acme", Name: "v1"}
	s.CreateAssistant(ctx, a)
	created := a.CreatedAt

	a.Name = "v2"
	if err := s.UpdateAssistant(ctx, a); err != nil {
		t.Fatalf("UpdateAssistant() error = %v", err)
	}

	got, _ := s.GetAssistant(ctx, "acme", "tut")
	if got.Name != "v2" {
		t.Errorf("Name = %q, want %q", got.Name, "v2")
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed on update: %v != %v", got.CreatedAt, created)
	}
}

func TestDeleteAssistant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateAssistant(ctx, &models.AssistantConfig{ID: "gone", Owner: "acme"})
	if err := s.DeleteAssistant(ctx, "acme", "gone"); err != nil {
		t.Fatalf("DeleteAssistant() error = %v", err)
	}
	if _, err := s.GetAssistant(ctx, "acme", "gone"); err == nil {
		t.Error("GetAssistant() after delete should fail")
	}
	if err := s.DeleteAssistant(ctx, "acme", "gone"); err == nil {
		t.Error("DeleteAssistant() on missing should fail")
	}
}

// ─── Tenant config ───────────────────────────────────────────

func TestTenantConfigRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cfg := &models.TenantConfig{
		Tenant:          "acme",
		DefaultProvider: "openai",
		Providers: []models.ProviderConfig{
			{Name: "openai", Kind: "openai", APIKey: "sk-test", DefaultModel: "gpt-4o"},
		},
	}
	if err := s.UpsertTenantConfig(ctx, cfg); err != nil {
		t.Fatalf("UpsertTenantConfig() error = %v", err)
	}

	got, err := s.GetTenantConfig(ctx, "acme")
	if err != nil {
		t.Fatalf("GetTenantConfig() error = %v", err)
	}
	if got.DefaultProvider != "openai" || len(got.Providers) != 1 {
		t.Errorf("GetTenantConfig() = %+v", got)
	}

	// Returned copy must not alias the stored slice.
	got.Providers[0].APIKey = "mutated"
	again, _ := s.GetTenantConfig(ctx, "acme")
	if again.Providers[0].APIKey != "sk-test" {
		t.Error("GetTenantConfig() returned aliased provider slice")
	}

	if _, err := s.GetTenantConfig(ctx, "nobody"); err == nil {
		t.Error("GetTenantConfig() for unknown tenant should fail")
	}
}

// ─── Seed loading ────────────────────────────────────────────

func TestSeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	doc := `
tenants:
  - tenant: acme
    default_provider: openai
    providers:
      - name: openai
        kind: openai
        api_key: sk-seed
        default_model: gpt-4o-mini
assistants:
  - id: essay-coach
    owner: acme
    name: Essay Coach
    system_prompt: You help students improve essays.
    tools:
      - type: rubric
        enabled: true
        placeholder: rubric
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	s := newTestStore(t)
	ctx := context.Background()
	if err := store.Seed(ctx, s, path); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	a, err := s.GetAssistant(ctx, "acme", "essay-coach")
	if err != nil {
		t.Fatalf("GetAssistant() after seed error = %v", err)
	}
	if len(a.Tools) != 1 || a.Tools[0].Type != models.ToolRubric {
		t.Errorf("seeded tools = %+v", a.Tools)
	}

	cfg, err := s.GetTenantConfig(ctx, "acme")
	if err != nil {
		t.Fatalf("GetTenantConfig() after seed error = %v", err)
	}
	if cfg.Providers[0].DefaultModel != "gpt-4o-mini" {
		t.Errorf("seeded provider = %+v", cfg.Providers[0])
	}

	// Re-seeding overwrites rather than erroring.
	if err := store.Seed(ctx, s, path); err != nil {
		t.Fatalf("Seed() second pass error = %v", err)
	}
}
