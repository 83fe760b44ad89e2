// Package provider defines the storage abstraction used by swrcache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// bytes previously passed to Set for a key (no prepended/appended metadata, no
// re-encoding). Compression and framing are owned by swrcache.
//
// Only Provider is required. Scanner, MultiGetter, BatchSetter and
// CompareAndDeleter are optional upgrades detected with a type assertion; the
// cache falls back to slower (and, for CompareAndDelete, non-atomic) paths when
// a store lacks them.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL (<= 0 means no expiry).
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) (ok bool, err error)

	// SetNX stores value only if key is absent. ok reports whether it was stored.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (ok bool, err error)

	// Del removes keys (best-effort). Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Scanner enumerates keys matching a glob pattern (Redis MATCH syntax).
// fn receives keys in batches of roughly count; returning an error stops the scan.
type Scanner interface {
	Scan(ctx context.Context, match string, count int64, fn func(keys []string) error) error
}

// MultiGetter fetches many keys in one round-trip. The result has one slot per
// key; misses are nil.
type MultiGetter interface {
	MGet(ctx context.Context, keys ...string) ([][]byte, error)
}

// Item is one write of a batch.
type Item struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// BatchSetter writes many items in one round-trip (pipeline).
type BatchSetter interface {
	SetMany(ctx context.Context, items []Item) error
}

// CompareAndDeleter deletes key only if it still holds value, atomically.
type CompareAndDeleter interface {
	CompareAndDelete(ctx context.Context, key string, value []byte) (deleted bool, err error)
}
