// Package store persists the lightweight pipeline snapshot and the YouTube
// connection flag in a small SQLite key/value table.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"shorts-studio/types"
)

const (
	keySnapshot  = "pipeline_snapshot"
	keyConnected = "youtube_connected"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS kv (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`

// ErrMalformedSnapshot is returned when the stored snapshot cannot be decoded
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Store is the durable key/value store backing the pipeline
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens state.db inside dir
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	dbPath := filepath.Join(dir, "state.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000", schemaSQL} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init store %q: %w", stmt, err)
		}
	}
	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path of the database file
func (s *Store) Path() string {
	return s.path
}

func (s *Store) put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// SaveSnapshot overwrites the stored snapshot
func (s *Store) SaveSnapshot(ctx context.Context, snap types.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.put(ctx, keySnapshot, string(data))
}

// LoadSnapshot returns the stored snapshot, false when none exists,
// or ErrMalformedSnapshot when it cannot be trusted.
func (s *Store) LoadSnapshot(ctx context.Context) (types.Snapshot, bool, error) {
	var snap types.Snapshot
	raw, ok, err := s.get(ctx, keySnapshot)
	if err != nil || !ok {
		return snap, false, err
	}
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return types.Snapshot{}, false, fmt.Errorf("%w: %w", ErrMalformedSnapshot, err)
	}
	if !snap.Stage.Valid() {
		return types.Snapshot{}, false, fmt.Errorf("%w: unknown stage %q", ErrMalformedSnapshot, snap.Stage)
	}
	return snap, true, nil
}

// ClearSnapshot removes the stored snapshot
func (s *Store) ClearSnapshot(ctx context.Context) error {
	return s.delete(ctx, keySnapshot)
}

// SaveConnected records the connection flag
func (s *Store) SaveConnected(ctx context.Context, connected bool) error {
	return s.put(ctx, keyConnected, strconv.FormatBool(connected))
}

// LoadConnected reads the connection flag; absent or unreadable means false
func (s *Store) LoadConnected(ctx context.Context) (bool, error) {
	raw, ok, err := s.get(ctx, keyConnected)
	if err != nil || !ok {
		return false, err
	}
	connected, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", keyConnected, err)
	}
	return connected, nil
}
