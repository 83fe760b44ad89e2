package swrcache

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	pr "github.com/unkn0wn-root/swrcache/provider"
)

type memEntry struct {
	v   []byte
	ttl time.Duration
}

// memProvider is an in-memory Provider with failure and latency injection.
// TTLs are recorded, never enforced.
type memProvider struct {
	mu sync.Mutex
	m  map[string]memEntry

	err   error         // returned by every call while set
	delay time.Duration // per call, honours ctx

	gets, sets atomic.Int64
}

var (
	_ pr.Provider          = (*memProvider)(nil)
	_ pr.CompareAndDeleter = (*memProvider)(nil)
)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string]memEntry)} }

func (p *memProvider) fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *memProvider) slow(d time.Duration) {
	p.mu.Lock()
	p.delay = d
	p.mu.Unlock()
}

func (p *memProvider) wait(ctx context.Context) error {
	p.mu.Lock()
	d, err := p.delay, p.err
	p.mu.Unlock()
	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (p *memProvider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	p.gets.Add(1)
	if err := p.wait(ctx); err != nil {
		return nil, false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[key]
	return e.v, ok, nil
}

func (p *memProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.sets.Add(1)
	if err := p.wait(ctx); err != nil {
		return false, err
	}
	p.put(key, value, ttl)
	return true, nil
}

func (p *memProvider) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := p.wait(ctx); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.m[key]; ok {
		return false, nil
	}
	p.m[key] = memEntry{v: value, ttl: ttl}
	return true, nil
}

func (p *memProvider) Del(ctx context.Context, keys ...string) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range keys {
		delete(p.m, k)
	}
	return nil
}

func (p *memProvider) CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error) {
	if err := p.wait(ctx); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.m[key]; ok && bytes.Equal(e.v, value) {
		delete(p.m, key)
		return true, nil
	}
	return false, nil
}

func (p *memProvider) Close(context.Context) error { return nil }

func (p *memProvider) put(key string, value []byte, ttl time.Duration) {
	p.mu.Lock()
	p.m[key] = memEntry{v: value, ttl: ttl}
	p.mu.Unlock()
}

func (p *memProvider) entry(key string) (memEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[key]
	return e, ok
}

// clock is a settable time source safe for background goroutines.
type clock struct{ ns atomic.Int64 }

func newClock() *clock {
	c := &clock{}
	c.ns.Store(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())
	return c
}

func (c *clock) Now() time.Time          { return time.Unix(0, c.ns.Load()) }
func (c *clock) Advance(d time.Duration) { c.ns.Add(int64(d)) }
