package ristretto

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/swrcache/provider"
)

// Provider is an in-process store for single-replica deployments. Locks and
// refresh guards taken through it only exclude goroutines of this process.
//
// Writes wait for ristretto's buffers to drain so a Set is visible to the next
// Get; conditional writes are serialized by mu.
type Provider struct {
	c  *rc.Cache
	mu sync.Mutex
}

var (
	_ pr.Provider          = (*Provider)(nil)
	_ pr.CompareAndDeleter = (*Provider)(nil)
)

type Config struct {
	NumCounters int64
	MaxCost     int64 // total bytes
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return p.set(key, value, ttl), nil
}

func (p *Provider) set(key string, value []byte, ttl time.Duration) bool {
	if ttl < 0 {
		ttl = 0
	}
	ok := p.c.SetWithTTL(key, value, int64(len(value))+int64(len(key)), ttl)
	p.c.Wait()
	return ok
}

func (p *Provider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.c.Get(key); ok {
		return false, nil
	}
	return p.set(key, value, ttl), nil
}

func (p *Provider) CompareAndDelete(_ context.Context, key string, value []byte) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.c.Get(key)
	if !ok {
		return false, nil
	}
	if b, _ := v.([]byte); !bytes.Equal(b, value) {
		return false, nil
	}
	p.c.Del(key)
	return true, nil
}

func (p *Provider) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		p.c.Del(k)
	}
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes ristretto's counters (nil unless Config.Metrics is set).
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
