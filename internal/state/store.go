// Package state holds the tunnel model and its persistence backends.
//
// Two backends implement Store:
//   - FileStore: the line-oriented state file (HEALTH_CHECK_PORT=..., TUNNEL_START ... TUNNEL_END)
//   - SQLiteStore: the same data in SQLite via modernc.org/sqlite (pure Go, no CGO)
//
// Save always replaces the whole persisted state; Load of a missing store
// yields an empty set.
package state

import (
	"context"
	"errors"
	"fmt"
)

// ErrPersistence wraps every failure to read or write persisted state.
var ErrPersistence = errors.New("persistence error")

// Store loads and saves a TunnelSet.
type Store interface {
	Load(ctx context.Context) (*TunnelSet, error)
	Save(ctx context.Context, set *TunnelSet) error

	// Lock takes an exclusive advisory lock spanning load-mutate-save.
	Lock(ctx context.Context) (unlock func(), err error)

	Close() error
}

// Open returns the store for the named backend ("file" or "sqlite").
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(path), nil
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
