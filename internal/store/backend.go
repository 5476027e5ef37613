package store

import (
	"fmt"
	"path/filepath"

	"github.com/Iron-Ham/cto/internal/config"
	"github.com/Iron-Ham/cto/internal/errors"
)

// Collection names a group of records.
type Collection string

const (
	Tickets  Collection = "tickets"
	Teams    Collection = "teams"
	Messages Collection = "messages"
	Contexts Collection = "contexts"
	Sessions Collection = "sessions"
)

// Counter names a monotonically increasing sequence.
type Counter string

const (
	TicketCounter Counter = "next_ticket_number"
	TeamCounter   Counter = "next_team_number"
)

// ErrNotFound is returned by backends for a missing record. Store maps it to
// the domain sentinel for the collection.
var ErrNotFound = errors.New("record not found")

// Backend stores raw JSON documents. Scope partitions a collection (the team
// id for messages) and is empty otherwise.
type Backend interface {
	Get(c Collection, scope, id string) ([]byte, error)
	Put(c Collection, scope, id string, data []byte) error
	// List returns the scope's documents ordered by id.
	List(c Collection, scope string) ([][]byte, error)
	// Next returns the counter's current value and advances it. Counters
	// start at 1.
	Next(name Counter) (int, error)
	Close() error
}

// NewBackend opens the backend cfg selects inside dir (the .cto directory).
func NewBackend(dir string, cfg config.StorageConfig) (Backend, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileBackend(dir)
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = "cto.db"
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		return NewSQLiteBackend(path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
