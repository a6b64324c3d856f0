package ports

import (
	"context"
)

// KVStore is a durable key-value store.
// Implementations: SQLite (default), Redis, memory.
type KVStore interface {
	// Get returns the value stored under key. found is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}
