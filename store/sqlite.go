package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a Backend persisted in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Backend = (*SQLiteStore)(nil)

// OpenSQLite opens (and creates when needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps the compare-and-swap transactions serialized inside this process.
	db.SetMaxOpenConns(1)

	// WAL allows readers in other processes while one writer holds the lock.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		revision INTEGER NOT NULL,
		updated_at_unixms INTEGER NOT NULL
	);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get returns the record stored under key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (Record, error) {
	if err := validateKey(key); err != nil {
		return Record{}, err
	}

	var rec Record
	err := s.db.QueryRowContext(ctx, `SELECT value, revision FROM kv WHERE key = ?`, key).
		Scan(&rec.Value, &rec.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("sqlite get %q: %w", key, err)
	}
	return rec, nil
}

// Put writes value under key inside a transaction that checks the expected revision.
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte, expected Revision) (Revision, error) {
	if err := validateKey(key); err != nil {
		return NoRevision, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NoRevision, fmt.Errorf("sqlite begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current := NoRevision
	err = tx.QueryRowContext(ctx, `SELECT revision FROM kv WHERE key = ?`, key).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return NoRevision, fmt.Errorf("sqlite read revision %q: %w", key, err)
	}
	if err := checkRevision(key, current, expected); err != nil {
		return current, err
	}

	next := current + 1
	nowMs := time.Now().UTC().UnixMilli()
	if _, err := tx.ExecContext(ctx, `INSERT INTO kv(key, value, revision, updated_at_unixms) VALUES(?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, revision = excluded.revision, updated_at_unixms = excluded.updated_at_unixms`,
		key, value, next, nowMs); err != nil {
		return NoRevision, fmt.Errorf("sqlite put %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return NoRevision, fmt.Errorf("sqlite commit: %w", err)
	}
	return next, nil
}

// Keys lists the keys with the given prefix.
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("sqlite keys: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
