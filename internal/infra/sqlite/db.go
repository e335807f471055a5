// Package sqlite provides SQLite-based persistence for the coordination
// node: a content store for commitment and reveal records, and a local
// ledger registry that stands in for the on-chain registry.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Content store: commitment records, revealed payloads, receipts
		`CREATE TABLE IF NOT EXISTS objects (
			id         TEXT PRIMARY KEY,
			data       BLOB NOT NULL,
			size       INTEGER NOT NULL,
			encrypted  BOOLEAN NOT NULL DEFAULT 0,
			tags       TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_objects_created ON objects(created_at)`,

		// Local ledger registry (mirror of the on-chain user set)
		`CREATE TABLE IF NOT EXISTS users (
			user_id    TEXT PRIMARY KEY,
			public_key TEXT NOT NULL UNIQUE,
			uploaded   INTEGER NOT NULL DEFAULT 0,
			downloaded INTEGER NOT NULL DEFAULT 0,
			active     BOOLEAN NOT NULL DEFAULT 1,
			updated_at INTEGER NOT NULL
		)`,

		// Upload/download ledger, one row per reported transfer
		`CREATE TABLE IF NOT EXISTS transfer_ledger (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			user_id    TEXT NOT NULL REFERENCES users(user_id),
			uploaded   INTEGER NOT NULL,
			downloaded INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transfer_user ON transfer_ledger(user_id)`,

		// Registry parameters (min_reputation, ...)
		`CREATE TABLE IF NOT EXISTS registry_params (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

var errOverflow = errors.New("value exceeds sqlite INTEGER range")

// toInt64 guards uint64 ledger values before they reach database/sql,
// which rejects uint64 values with the high bit set.
func toInt64(v uint64) (int64, error) {
	if v > 1<<63-1 {
		return 0, fmt.Errorf("%w: %d", errOverflow, v)
	}
	return int64(v), nil
}
