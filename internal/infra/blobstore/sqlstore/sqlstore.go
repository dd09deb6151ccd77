// Package sqlstore is the SQLite-backed BlobStore used by the governd
// daemon: one kv_blobs table holding each component's versioned state
// blob, upserted last-write-wins per key.
package sqlstore

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go driver, registers as "sqlite"
)

// migrations returns the schema migration statements. Each string is a
// single SQL statement (SQLite executes one at a time).
func migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS kv_blobs (
			key        TEXT PRIMARY KEY,
			payload    BLOB NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}
}

// Store is a SQLite-backed key/value blob store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// The store is accessed from one component at a time, but the
	// modernc driver requires a single connection for consistent
	// in-memory databases.
	db.SetMaxOpenConns(1)
	for _, stmt := range migrations() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply migration: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a fresh in-memory database, for tests.
func OpenInMemory() (*Store, error) {
	return Open(":memory:")
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the stored bytes for key, or ok=false if absent.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM kv_blobs WHERE key = ?`, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get blob %q: %w", key, err)
	}
	return payload, true, nil
}

// Put stores value under key, overwriting any previous value.
func (s *Store) Put(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO kv_blobs (key, payload, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET
			payload    = excluded.payload,
			updated_at = datetime('now')
	`, key, value)
	if err != nil {
		return fmt.Errorf("put blob %q: %w", key, err)
	}
	return nil
}
