// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/swrcache"
//	"github.com/unkn0wn-root/swrcache/hooks/async"
//	"github.com/unkn0wn-root/swrcache/sloghooks"
//
// )
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    HitEvery:      100, // sample logs: ~every 100th hit
//	    SelfHealEvery: 10,
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	client := swrcache.NewClient(swrcache.ClientOptions{
//	    URL:   os.Getenv("REDIS_URL"),
//	    Token: os.Getenv("REDIS_TOKEN"),
//	    Hooks: hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/swrcache"
)

// Hooks forwards events to inner on a bounded queue. When the queue is full
// events are dropped, never blocking the cache.
type Hooks struct {
	inner   swrcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ swrcache.Hooks = (*Hooks)(nil)

func New(inner swrcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped is the number of events lost to a full queue or a closed hook.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) Hit(k string, stale bool)          { h.try(func() { h.inner.Hit(k, stale) }) }
func (h *Hooks) NullHit(k string)                  { h.try(func() { h.inner.NullHit(k) }) }
func (h *Hooks) Miss(k string)                     { h.try(func() { h.inner.Miss(k) }) }
func (h *Hooks) Bypass(op, reason string)          { h.try(func() { h.inner.Bypass(op, reason) }) }
func (h *Hooks) BackendError(op string, err error) { h.try(func() { h.inner.BackendError(op, err) }) }
func (h *Hooks) BackendTimeout(op string)          { h.try(func() { h.inner.BackendTimeout(op) }) }
func (h *Hooks) BreakerStateChange(from, to string) {
	h.try(func() { h.inner.BreakerStateChange(from, to) })
}
func (h *Hooks) RefreshSkipped(k string)             { h.try(func() { h.inner.RefreshSkipped(k) }) }
func (h *Hooks) RefreshFailed(k string, err error)   { h.try(func() { h.inner.RefreshFailed(k, err) }) }
func (h *Hooks) SelfHeal(k, reason string)           { h.try(func() { h.inner.SelfHeal(k, reason) }) }
func (h *Hooks) LockContended(k string, attempt int) { h.try(func() { h.inner.LockContended(k, attempt) }) }
func (h *Hooks) LockBusy(k string)                   { h.try(func() { h.inner.LockBusy(k) }) }
func (h *Hooks) LockFailOpen(k string, err error)    { h.try(func() { h.inner.LockFailOpen(k, err) }) }
