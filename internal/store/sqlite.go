package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend keeps every record in one SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (or creates) the database at path and runs
// migrations.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("sqlite store: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// Pragmas are per connection; a single connection keeps them in effect.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite store: %s: %w", pragma, err)
		}
	}

	b := &SQLiteBackend{db: db}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBackend) migrate() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			scope      TEXT NOT NULL DEFAULT '',
			id         TEXT NOT NULL,
			data       TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (collection, scope, id)
		);

		CREATE TABLE IF NOT EXISTS counters (
			name  TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("sqlite store: migrate: %w", err)
	}
	return nil
}

// Get reads one record.
func (b *SQLiteBackend) Get(c Collection, scope, id string) ([]byte, error) {
	var data string
	err := b.db.QueryRow(`SELECT data FROM records WHERE collection = ? AND scope = ? AND id = ?`,
		string(c), scope, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: get: %w", err)
	}
	return []byte(data), nil
}

// Put inserts or replaces one record.
func (b *SQLiteBackend) Put(c Collection, scope, id string, data []byte) error {
	_, err := b.db.Exec(`
		INSERT INTO records (collection, scope, id, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, scope, id) DO UPDATE SET
			data=excluded.data, updated_at=excluded.updated_at
	`, string(c), scope, id, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite store: put: %w", err)
	}
	return nil
}

// List reads every record in the scope ordered by id.
func (b *SQLiteBackend) List(c Collection, scope string) ([][]byte, error) {
	rows, err := b.db.Query(`SELECT data FROM records WHERE collection = ? AND scope = ? ORDER BY id`,
		string(c), scope)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list: %w", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite store: list scan: %w", err)
		}
		out = append(out, []byte(data))
	}
	return out, rows.Err()
}

// Next allocates the next counter value in a single statement.
func (b *SQLiteBackend) Next(name Counter) (int, error) {
	var n int
	err := b.db.QueryRow(`
		INSERT INTO counters (name, value) VALUES (?, 2)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value - 1
	`, string(name)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite store: next %s: %w", name, err)
	}
	return n, nil
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
