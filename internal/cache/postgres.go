package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema for the durable tier. Applied by EnsureSchema at startup; the
// table is an overwrite-only cache, so no migration tooling is carried.
const schema = `
CREATE TABLE IF NOT EXISTS cached_records (
    cache_key  text PRIMARY KEY,
    body       jsonb NOT NULL,
    fetched_at timestamptz NOT NULL
)`

// PostgresStore is the durable row tier backed by pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the cache table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// GetRow implements RowStore.
func (s *PostgresStore) GetRow(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	var body []byte
	var fetchedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT body, fetched_at FROM cached_records WHERE cache_key = $1`, key,
	).Scan(&body, &fetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	return body, fetchedAt, true, nil
}

// UpsertRow implements RowStore. Every miss-then-fetch overwrites the
// previous entry; the cache layer never expires rows itself.
func (s *PostgresStore) UpsertRow(ctx context.Context, key string, body []byte, fetchedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cached_records (cache_key, body, fetched_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (cache_key)
		DO UPDATE SET body = EXCLUDED.body, fetched_at = EXCLUDED.fetched_at`,
		key, body, fetchedAt)
	return err
}
