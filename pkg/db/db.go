// Package db owns the SQLite file backing the settings store and the alert ledger.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

// Database is the shared SQLite handle. The kv table and the alerts table
// live in the same file so one backup covers settings and history.
type Database struct {
	DB   *sql.DB
	path string
}

// New opens the database at path, creating its directory if needed, and
// switches file databases to WAL. ":memory:" gives a private database that
// lives as long as the handle.
func New(path string) (*Database, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection serialises writers, and keeps an in-memory database alive.
	handle.SetMaxOpenConns(1)
	handle.SetMaxIdleConns(1)
	handle.SetConnMaxLifetime(0)

	pragmas := []string{"PRAGMA busy_timeout=5000", "PRAGMA foreign_keys=ON"}
	if path != memoryPath {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := handle.Exec(p); err != nil {
			handle.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return &Database{DB: handle, path: path}, nil
}

// Path returns the file the database was opened from.
func (d *Database) Path() string { return d.path }

func (d *Database) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}

// KV is the Config & Credential Store view: opaque blobs by key.
func (d *Database) KV() *KVStore {
	return &KVStore{db: d.DB}
}

// Alerts is the query set behind the sqlite ledger.
func (d *Database) Alerts() *AlertQueries {
	return &AlertQueries{db: d.DB}
}
