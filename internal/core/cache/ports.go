package cache

import (
	"context"
	"time"
)

// Cache is the port for key/value caching. Implementations may be backed
// by Redis, an in-process map, or anything else that can hold bytes.
type Cache interface {
	// Get retrieves a value by key. Returns ErrCacheMiss when absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value under key with the given TTL. A TTL of 0 means
	// the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping checks if the cache backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
