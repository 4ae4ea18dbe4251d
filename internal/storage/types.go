package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Store is the persistence API used by the ignore list and the toast manager.
type Store interface {
	// LoadIgnored returns the permanent ignore list in stored order.
	LoadIgnored(ctx context.Context) ([]string, error)
	// SaveIgnored replaces the permanent ignore list.
	SaveIgnored(ctx context.Context, signatures []string) error

	// LoadPinned returns the pinned snapshot for origin, or nil if none.
	LoadPinned(ctx context.Context, origin string) ([]byte, error)
	// SavePinned replaces the pinned snapshot for origin. An empty blob
	// deletes it.
	SavePinned(ctx context.Context, origin string, blob []byte) error

	// Watch calls onChange after the ignore list was written by anyone
	// sharing this store. It blocks until ctx is done.
	Watch(ctx context.Context, onChange func()) error

	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "memory": process-local, lost on restart (default)
//   - "file": JSON files next to Path (<prefix>.ignored.json, <prefix>.pinned.json)
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
