package swrcache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/swrcache/codec"
)

// Fetcher loads a value from the source of truth. It may run more than once
// for the same key (refreshes, coalescing misses across replicas), so it must
// be safe to repeat.
type Fetcher[V any] func(ctx context.Context) (V, error)

// Cache is the cache-aside API over one value type V. Keys are logical; the
// physical key is keyspace.AutoVersion(key).
type Cache[V any] interface {
	// Enabled reports whether a backend is configured.
	Enabled() bool
	// Close waits for in-flight background refreshes (bounded by ctx).
	// The shared Client is left open.
	Close(context.Context) error

	// Cached returns the cached value for key or calls fetch. Stale entries
	// are served immediately and refreshed in the background. Backend
	// failures fall back to fetch; fetch errors are returned unchanged.
	Cached(ctx context.Context, key string, fetch Fetcher[V], ttl time.Duration) (V, error)
	// CachedCoalesced is Cached with concurrent callers for the same key in
	// this process sharing one outcome. A caller that gives up gets its own
	// ctx error; the shared load keeps running for the others, bounded by
	// RefreshGuardTTL.
	CachedCoalesced(ctx context.Context, key string, fetch Fetcher[V], ttl time.Duration) (V, error)
	// CachedSensitive is Cached padded to at least minResponse (+/-10%),
	// on success and on error.
	CachedSensitive(ctx context.Context, key string, fetch Fetcher[V], ttl, minResponse time.Duration) (V, error)

	// Single
	Get(ctx context.Context, key string) (v V, ok bool, err error)
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error

	// Bulk (order-agnostic return; use your own ordering by keys slice)
	GetMany(ctx context.Context, keys []string) (values map[string]V, missing []string, err error)
	Warm(ctx context.Context, items map[string]V, ttl time.Duration) error
}

// Options tune a Cache. Only Client is required.
type Options[V any] struct {
	// Required
	Client *Client

	Codec             c.Codec[V]       // nil => codec.JSON[V]
	DefaultTTL        time.Duration    // ttl used when a call passes 0; 0 => 10m
	NullTTL           time.Duration    // "not found" entries, never jittered; 0 => 120s
	StaleRatio        float64          // fresh while age < ttl*StaleRatio; 0 => 0.8
	JitterRatio       float64          // TTL spread; 0 => 0.1, negative disables
	CompressThreshold int              // bytes; 0 => 1024, negative disables
	RefreshGuardTTL   time.Duration    // refresh:{key} lifetime and background deadline; 0 => 30s
	IsNull            func(V) bool     // nil => nil pointer/map/interface, nil or empty slice/array
	Now               func() time.Time // nil => time.Now
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
