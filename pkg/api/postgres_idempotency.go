package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// PostgresIdempotencyStore persists replies in PostgreSQL so repeated
// keys survive restarts and replicas share one replay view.
type PostgresIdempotencyStore struct {
	db     *sql.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewPostgresIdempotencyStore wraps an opened database handle. Call
// Init before first use.
func NewPostgresIdempotencyStore(db *sql.DB, ttl time.Duration, logger *slog.Logger) *PostgresIdempotencyStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresIdempotencyStore{db: db, ttl: ttl, logger: logger.With("component", "api.idempotency")}
}

// Init creates the replay table if it does not exist.
func (s *PostgresIdempotencyStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS idempotency_keys (
	key TEXT PRIMARY KEY,
	status_code INT NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	body BYTEA NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL
);`)
	if err != nil {
		return fmt.Errorf("init idempotency store: %w", err)
	}
	return nil
}

func (s *PostgresIdempotencyStore) Lookup(key string) (Reply, bool) {
	var reply Reply
	err := s.db.QueryRow(`
SELECT status_code, content_type, body, saved_at FROM idempotency_keys WHERE key = $1`, key).
		Scan(&reply.StatusCode, &reply.ContentType, &reply.Body, &reply.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Reply{}, false
	}
	if err != nil {
		s.logger.Error("idempotency lookup failed", "error", err)
		return Reply{}, false
	}
	if time.Since(reply.SavedAt) > s.ttl {
		_, _ = s.db.Exec(`DELETE FROM idempotency_keys WHERE key = $1`, key)
		return Reply{}, false
	}
	return reply, true
}

func (s *PostgresIdempotencyStore) Save(key string, reply Reply) {
	_, err := s.db.Exec(`
INSERT INTO idempotency_keys (key, status_code, content_type, body, saved_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (key) DO UPDATE SET
	status_code = EXCLUDED.status_code,
	content_type = EXCLUDED.content_type,
	body = EXCLUDED.body,
	saved_at = EXCLUDED.saved_at`,
		key, reply.StatusCode, reply.ContentType, reply.Body)
	if err != nil {
		s.logger.Error("idempotency save failed", "key", key, "error", err)
	}
}

// Sweep removes entries older than the TTL.
func (s *PostgresIdempotencyStore) Sweep(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE saved_at < $1`, time.Now().Add(-s.ttl))
	return err
}
