package swrcache

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking: the cache calls them on hot
// paths. Wrap slow sinks with hooks/async.
type Hooks interface {
	// A read was answered from the cache. stale means a background refresh
	// was triggered.
	Hit(key string, stale bool)
	// A read found a cached "not found" entry.
	NullHit(key string)
	// A read found nothing and called the fetcher.
	Miss(key string)

	// The backend was skipped. reason ∈ {"unconfigured", "circuit_open"}
	Bypass(op, reason string)
	// A backend operation failed and was recorded against the breaker.
	BackendError(op string, err error)
	// A backend operation exceeded the operation timeout.
	BackendTimeout(op string)
	// The breaker changed state ("closed", "half-open", "open").
	BreakerStateChange(from, to string)

	// Another refresh for key holds the guard.
	RefreshSkipped(key string)
	// A background refresh or store failed.
	RefreshFailed(key string, err error)
	// An unreadable entry was deleted. reason ∈ {"corrupt", "decompress", "decode"}
	SelfHeal(key, reason string)

	// Lock acquisition found the lock held (attempt is 1-based).
	LockContended(key string, attempt int)
	// Lock acquisition gave up after all retries.
	LockBusy(key string)
	// The lock backend was unavailable and the lock was granted without
	// mutual exclusion.
	LockFailOpen(key string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Hit(string, bool)                  {}
func (NopHooks) NullHit(string)                    {}
func (NopHooks) Miss(string)                       {}
func (NopHooks) Bypass(string, string)             {}
func (NopHooks) BackendError(string, error)        {}
func (NopHooks) BackendTimeout(string)             {}
func (NopHooks) BreakerStateChange(string, string) {}
func (NopHooks) RefreshSkipped(string)             {}
func (NopHooks) RefreshFailed(string, error)       {}
func (NopHooks) SelfHeal(string, string)           {}
func (NopHooks) LockContended(string, int)         {}
func (NopHooks) LockBusy(string)                   {}
func (NopHooks) LockFailOpen(string, error)        {}
