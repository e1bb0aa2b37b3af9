// Package usage records per-request accounting. Recording is
// fire-and-forget: the request path hands a record to the sink and
// moves on, writes happen on a background goroutine.
package usage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/tutorstack/tutorstack/engine/pkg/models"
)

// NopSink discards every record. Used when usage logging is disabled.
type NopSink struct{}

func (NopSink) Record(*models.UsageRecord) {}
func (NopSink) Close() error               { return nil }

// SQLiteSink persists usage records to a local SQLite database through
// a buffered channel. Record never blocks: when the buffer is full the
// record is dropped and a warning logged.
type SQLiteSink struct {
	db      *sql.DB
	queue   chan *models.UsageRecord
	doneCh  chan struct{}
	stopped chan struct{}
}

// NewSQLiteSink opens (or creates) the database at path and starts the
// background writer.
func NewSQLiteSink(path string, buffer int) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping usage db: %w", err)
	}

	s := &SQLiteSink{
		db:      db,
		queue:   make(chan *models.UsageRecord, buffer),
		doneCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize usage db: %w", err)
	}

	go s.writeLoop()
	return s, nil
}

func (s *SQLiteSink) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_records (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		tenant TEXT NOT NULL,
		assistant_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		input_tokens INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		total_tokens INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		streamed INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_tenant ON usage_records(tenant);
	CREATE INDEX IF NOT EXISTS idx_usage_created ON usage_records(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record queues one usage record, dropping it when the buffer is full.
func (s *SQLiteSink) Record(rec *models.UsageRecord) {
	select {
	case s.queue <- rec:
	default:
		log.Warn().Str("request_id", rec.RequestID).Msg("Usage buffer full, record dropped")
	}
}

func (s *SQLiteSink) writeLoop() {
	defer close(s.stopped)
	for {
		select {
		case rec := <-s.queue:
			s.insert(rec)
		case <-s.doneCh:
			// Drain what is already queued, then stop.
			for {
				select {
				case rec := <-s.queue:
					s.insert(rec)
				default:
					return
				}
			}
		}
	}
}

func (s *SQLiteSink) insert(rec *models.UsageRecord) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO usage_records
		(id, request_id, tenant, assistant_id, provider, model,
		 input_tokens, output_tokens, total_tokens, duration_ms, outcome, streamed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RequestID, rec.Tenant, rec.AssistantID, rec.Provider, rec.Model,
		rec.InputTokens, rec.OutputTokens, rec.TotalTokens, rec.DurationMs, rec.Outcome,
		rec.Streamed, rec.CreatedAt)
	if err != nil {
		log.Error().Err(err).Str("request_id", rec.RequestID).Msg("Usage insert failed")
	}
}

// TenantTotals sums token usage per tenant since the given time.
func (s *SQLiteSink) TenantTotals(tenant string, since time.Time) (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRow(`
		SELECT SUM(total_tokens) FROM usage_records
		WHERE tenant = ? AND created_at >= ?`, tenant, since).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Int64, nil
}

// Close stops the writer, flushes queued records, and closes the db.
func (s *SQLiteSink) Close() error {
	select {
	case <-s.doneCh:
		return nil
	default:
	}
	close(s.doneCh)
	<-s.stopped
	return s.db.Close()
}
