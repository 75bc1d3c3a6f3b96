package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("store: key not found")

// Store is a minimal durable key-value interface. The restore registry keeps
// its whole mapping under a single key and rewrites it on every mutation, so
// implementations only need point reads and upserts.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}
