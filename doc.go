// Package swrcache implements a stale-while-revalidate cache-aside layer and
// the backend plumbing shared with package lock.
//
// Components:
//   - Client: lazy handle to the backend (Redis by default) guarded by a
//     circuit breaker and a per-operation timeout. No URL/token means
//     pass-through mode.
//   - Cache[V]: Cached / CachedCoalesced / CachedSensitive over a Codec[V].
//     Entries are framed with a write timestamp, so reads can tell fresh from
//     stale without a second key.
//   - keyspace: physical keys are "{type}-v{N}:{key}"; bumping a version
//     orphans one data type.
//
// Read path:
//
//	fresh  (age <  ttl*0.8) -> cached value
//	stale  (age >= ttl*0.8) -> cached value + one background refresh (refresh:{key} NX guard)
//	null                    -> zero value, no fetch, until NullTTL
//	miss / timeout          -> fetch, store in background
//	unavailable / error     -> fetch, store nothing
//
// Cache failures never become caller failures; only fetcher errors surface.
package swrcache
