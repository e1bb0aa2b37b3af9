package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Assistants map[string]*models.AssistantConfig `json:"assistants"` // key: tenant:id
	Tenants    map[string]*models.TenantConfig    `json:"tenants"`    // key: tenant
}

// MemoryStore implements Store with in-memory maps, with optional
// file-based snapshot persistence so config survives restarts.
type MemoryStore struct {
	mu         sync.RWMutex
	assistants map[string]*models.AssistantConfig // key: tenant:id
	tenants    map[string]*models.TenantConfig    // key: tenant

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals background goroutine to stop
}

// NewMemoryStore creates a new in-memory store.
// If TUTORSTACK_DATA_DIR is set, data is persisted to a JSON file in that
// directory. Otherwise the store is purely in-memory.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		assistants: make(map[string]*models.AssistantConfig),
		tenants:    make(map[string]*models.TenantConfig),
		saveCh:     make(chan struct{}, 1),
		doneCh:     make(chan struct{}),
	}

	if dataDir := os.Getenv("TUTORSTACK_DATA_DIR"); dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "data.json")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory store configured")
	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop runs in a goroutine, debouncing save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond)
			// Drain any request that arrived during the debounce window
			select {
			case <-m.saveCh:
			default:
			}
			m.saveSnapshot()
		}
	}
}

func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{
		Assistants: m.assistants,
		Tenants:    m.tenants,
	}
	data, err := json.MarshalIndent(&snap, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		log.Error().Err(err).Msg("Snapshot marshal failed")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Msg("Snapshot write failed")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Msg("Snapshot rename failed")
	}
}

func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("Cannot read snapshot")
		}
		return
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Msg("Snapshot corrupted, starting empty")
		return
	}
	if snap.Assistants != nil {
		m.assistants = snap.Assistants
	}
	if snap.Tenants != nil {
		m.tenants = snap.Tenants
	}
	log.Info().
		Int("assistants", len(m.assistants)).
		Int("tenants", len(m.tenants)).
		Msg("Loaded snapshot")
}

func assistantKey(tenant, id string) string { return tenant + ":" + id }

// ── Assistant Store ─────────────────────────────────────────

func (m *MemoryStore) ListAssistants(ctx context.Context, tenant string) ([]models.AssistantConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.AssistantConfig
	for _, a := range m.assistants {
		if a.Owner == tenant {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetAssistant(ctx context.Context, tenant, ref string) (*models.AssistantConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assistants[assistantKey(tenant, ref)]
	if !ok {
		return nil, &ErrNotFound{Entity: "assistant", Key: ref}
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) CreateAssistant(ctx context.Context, a *models.AssistantConfig) error {
	m.mu.Lock()
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	m.assistants[assistantKey(a.Owner, a.ID)] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateAssistant(ctx context.Context, a *models.AssistantConfig) error {
	key := assistantKey(a.Owner, a.ID)
	m.mu.Lock()
	existing, ok := m.assistants[key]
	if !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "assistant", Key: a.ID}
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	m.assistants[key] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteAssistant(ctx context.Context, tenant, ref string) error {
	key := assistantKey(tenant, ref)
	m.mu.Lock()
	if _, ok := m.assistants[key]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "assistant", Key: ref}
	}
	delete(m.assistants, key)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Tenant Store ────────────────────────────────────────────

func (m *MemoryStore) GetTenantConfig(ctx context.Context, tenant string) (*models.TenantConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.tenants[tenant]
	if !ok {
		return nil, &ErrNotFound{Entity: "tenant config", Key: tenant}
	}
	cp := *cfg
	cp.Providers = append([]models.ProviderConfig(nil), cfg.Providers...)
	return &cp, nil
}

func (m *MemoryStore) UpsertTenantConfig(ctx context.Context, cfg *models.TenantConfig) error {
	m.mu.Lock()
	cp := *cfg
	cp.Providers = append([]models.ProviderConfig(nil), cfg.Providers...)
	m.tenants[cfg.Tenant] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListTenants(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.tenants))
	for name := range m.tenants {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// ── Lifecycle ───────────────────────────────────────────────

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error {
	select {
	case <-m.doneCh:
		return nil
	default:
	}
	close(m.doneCh)
	if m.snapshotPath != "" {
		m.saveSnapshot()
	}
	return nil
}
