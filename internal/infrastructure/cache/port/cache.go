package port

import (
	"context"
	"time"
)

// Cache is the minimal key-value contract the relay needs: a bounded
// recent-message window for send deduplication. Implementations must be
// concurrency-safe and context-aware.
type Cache interface {
	// Get fetches the value for key, returning ErrMiss when absent. The
	// dedup check reads without writing so that rejected sends are never
	// recorded as seen.
	Get(ctx context.Context, key string) (string, error)

	// SetNX stores value only if key is absent, returning whether the
	// write happened. Records an admitted client message id for the
	// dedup window.
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)

	// Ping verifies connectivity with the cache backend.
	Ping(ctx context.Context) error

	// Close releases any resources held by the cache.
	Close() error
}

// ErrMiss signals a cache miss in a typed way so callers can distinguish
// misses from transport errors.
var ErrMiss = errMiss{}

type errMiss struct{}

func (e errMiss) Error() string { return "cache: miss" }
