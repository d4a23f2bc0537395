package takestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

var _ Store = (*SQLiteStore)(nil)

// ErrLocked is returned by [OpenSQLite] when another process already holds
// the database.
var ErrLocked = errors.New("takestore: sqlite database is locked by another process")

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS takes (
    id         TEXT PRIMARY KEY,
    cache_key  TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    data       TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_takes_cache_key ON takes(cache_key, created_at)`,
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteStore keeps takes in a local SQLite file. A lock file next to the
// database ensures only one process writes to it.
type SQLiteStore struct {
	db   *sql.DB
	lock *flock.Flock
	path string
}

// OpenSQLite opens or creates the database at path, applies the schema and
// takes the process lock. It returns [ErrLocked] when the lock is held
// elsewhere.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("takestore: sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("takestore: create directory: %w", err)
		}
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("takestore: acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("takestore: open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("takestore: apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLiteStore{db: db, lock: lock, path: path}
	for _, stmt := range sqliteSchema {
		if err := s.exec(ctx, stmt); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("takestore: migrate sqlite: %w", err)
		}
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Put implements [Store].
func (s *SQLiteStore) Put(ctx context.Context, t *Take) error {
	if err := prepare(t); err != nil {
		return err
	}
	data, err := encode(t)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO takes (id, cache_key, created_at, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			cache_key = excluded.cache_key,
			created_at = excluded.created_at,
			data = excluded.data`
	if err := s.exec(ctx, query, t.ID, t.Key, t.CreatedAt.UnixNano(), string(data)); err != nil {
		return fmt.Errorf("takestore: put %s: %w", t.ID, err)
	}
	return nil
}

// Get implements [Store].
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Take, error) {
	const query = `SELECT id, cache_key, created_at, data FROM takes WHERE id = ?`
	return s.queryOne(ctx, "get "+id, query, id)
}

// FindByKey implements [Store].
func (s *SQLiteStore) FindByKey(ctx context.Context, key string) (*Take, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	const query = `
		SELECT id, cache_key, created_at, data FROM takes
		WHERE cache_key = ?
		ORDER BY created_at DESC
		LIMIT 1`
	return s.queryOne(ctx, "find by key", query, key)
}

// Ping implements [Store].
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database and releases the lock.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return errors.Join(s.db.Close(), s.lock.Unlock())
}

func (s *SQLiteStore) queryOne(ctx context.Context, op, query string, args ...any) (*Take, error) {
	var (
		id, key, data string
		created       int64
	)
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, query, args...).Scan(&id, &key, &created, &data)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("takestore: %s: %w", op, err)
	}
	return decode(id, key, time.Unix(0, created), []byte(data))
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy runs op until it succeeds, fails with a non-busy error or the
// attempts are exhausted.
func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := range busyRetryAttempts {
		lastErr = op()
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			return lastErr
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, busyRetryMaxBackoff)
	}
	return lastErr
}
