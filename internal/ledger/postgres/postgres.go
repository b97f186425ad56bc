package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tokligence/boltstream/internal/ledger"
)

// Store implements ledger.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// PoolConfig tunes the database/sql connection pool. Zero values keep the driver defaults.
type PoolConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// New opens a PostgreSQL-backed ledger store using the provided DSN.
func New(dsn string, pool PoolConfig) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}

	if pool.MaxOpen > 0 {
		db.SetMaxOpenConns(pool.MaxOpen)
	}
	if pool.MaxIdle > 0 {
		db.SetMaxIdleConns(pool.MaxIdle)
	}
	if pool.MaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.MaxLifetime)
	}
	if pool.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pool.MaxIdleTime)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS stream_entries (
	id BIGSERIAL PRIMARY KEY,
	request_id TEXT NOT NULL DEFAULT '',
	endpoint TEXT NOT NULL,
	model TEXT NOT NULL DEFAULT '',
	prompt_chars BIGINT NOT NULL DEFAULT 0,
	completion_chars BIGINT NOT NULL DEFAULT 0,
	outcome TEXT NOT NULL CHECK(outcome IN ('completed','failed_precommit','failed_postcommit','cancelled')),
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_stream_entries_endpoint_created ON stream_entries(endpoint, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_stream_entries_request_id ON stream_entries(request_id);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a new entry.
func (s *Store) Record(ctx context.Context, entry ledger.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO stream_entries(request_id, endpoint, model, prompt_chars, completion_chars, outcome, duration_ms, created_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.RequestID,
		entry.Endpoint,
		entry.Model,
		entry.PromptChars,
		entry.CompletionChars,
		string(entry.Outcome),
		entry.DurationMS,
		created,
	)
	return err
}

// Summary returns aggregated outcomes for an endpoint.
func (s *Store) Summary(ctx context.Context, endpoint string) (ledger.Summary, error) {
	return ledger.ScanSummary(s.db.QueryRowContext(ctx, ledger.SummaryQuery("$1"), endpoint))
}

// ListRecent returns the latest entries across endpoints.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]ledger.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, request_id, endpoint, model, prompt_chars, completion_chars, outcome, duration_ms, created_at
FROM stream_entries
ORDER BY created_at DESC, id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := ledger.ScanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
