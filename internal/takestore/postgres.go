package takestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSchema is the DDL applied by [PostgresStore.Migrate].
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS takes (
    id         UUID PRIMARY KEY,
    cache_key  TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    data       JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_takes_cache_key ON takes(cache_key, created_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ Store = (*PostgresStore)(nil)

// PostgresStore keeps takes in PostgreSQL. Everything except the ID, cache
// key and creation time is stored in a JSONB column.
type PostgresStore struct {
	db   DB
	ping func(context.Context) error
	stop func()
}

// NewPostgresStore wraps an existing connection or pool. The caller owns db
// and must call [PostgresStore.Migrate] before use.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects to dsn, verifies the connection and migrates the
// schema. Close releases the pool.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("takestore: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("takestore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("takestore: ping: %w", err)
	}

	s := &PostgresStore{db: pool, ping: pool.Ping, stop: pool.Close}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the takes table and its index if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("takestore: migrate: %w", err)
	}
	return nil
}

// Put implements [Store].
func (s *PostgresStore) Put(ctx context.Context, t *Take) error {
	if err := prepare(t); err != nil {
		return err
	}
	data, err := encode(t)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO takes (id, cache_key, created_at, data)
		VALUES ($1::uuid, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			cache_key = EXCLUDED.cache_key,
			created_at = EXCLUDED.created_at,
			data = EXCLUDED.data`
	if _, err := s.db.Exec(ctx, query, t.ID, t.Key, t.CreatedAt, data); err != nil {
		return fmt.Errorf("takestore: put %s: %w", t.ID, err)
	}
	return nil
}

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, id string) (*Take, error) {
	// Malformed IDs can never match and would fail the uuid cast.
	if !validID(id) {
		return nil, ErrNotFound
	}
	const query = `
		SELECT id::text, cache_key, created_at, data
		FROM takes
		WHERE id = $1::uuid`
	return s.queryOne(ctx, "get "+id, query, id)
}

// FindByKey implements [Store].
func (s *PostgresStore) FindByKey(ctx context.Context, key string) (*Take, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	const query = `
		SELECT id::text, cache_key, created_at, data
		FROM takes
		WHERE cache_key = $1
		ORDER BY created_at DESC
		LIMIT 1`
	return s.queryOne(ctx, "find by key", query, key)
}

// Ping implements [Store]. Stores built with [NewPostgresStore] issue a
// trivial query instead.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.ping != nil {
		return s.ping(ctx)
	}
	var one int
	return s.db.QueryRow(ctx, "SELECT 1").Scan(&one)
}

// Close releases the pool opened by [OpenPostgres]. It is a no-op for stores
// built with [NewPostgresStore].
func (s *PostgresStore) Close() error {
	if s.stop != nil {
		s.stop()
	}
	return nil
}

func (s *PostgresStore) queryOne(ctx context.Context, op, query string, args ...any) (*Take, error) {
	var (
		id, key   string
		createdAt time.Time
		data      []byte
	)
	err := s.db.QueryRow(ctx, query, args...).Scan(&id, &key, &createdAt, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("takestore: %s: %w", op, err)
	}
	return decode(id, key, createdAt, data)
}
