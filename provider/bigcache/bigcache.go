package bigcache

import (
	"bytes"
	"context"
	"errors"
	"path"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"

	pr "github.com/unkn0wn-root/swrcache/provider"
)

// Provider is an in-process store backed by BigCache.
//
// BigCache has no per-entry TTL: every entry lives for Config.LifeWindow.
// TTLs shorter than LifeWindow (lock and refresh-guard keys, short cache
// entries) are tracked here and enforced on read.
type Provider struct {
	c    *bc.BigCache
	life time.Duration

	mu       sync.Mutex
	deadline map[string]time.Time
}

var (
	_ pr.Provider          = (*Provider)(nil)
	_ pr.Scanner           = (*Provider)(nil)
	_ pr.CompareAndDeleter = (*Provider)(nil)
)

type Config struct {
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Provider, error) {
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c, life: cfg.LifeWindow, deadline: make(map[string]time.Time)}, nil
}

// track records key's own expiry when ttl ends before LifeWindow would.
// Caller holds mu.
func (p *Provider) track(key string, ttl time.Duration) {
	if ttl > 0 && (p.life <= 0 || ttl < p.life) {
		p.deadline[key] = time.Now().Add(ttl)
		return
	}
	delete(p.deadline, key)
}

// expire drops key if its tracked TTL has passed. Caller holds mu.
func (p *Provider) expire(key string) {
	d, ok := p.deadline[key]
	if !ok || time.Now().Before(d) {
		return
	}
	delete(p.deadline, key)
	_ = p.c.Delete(key)
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	p.expire(key)
	p.mu.Unlock()

	b, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.c.Set(key, value); err != nil {
		return false, err
	}
	p.track(key, ttl)
	return true, nil
}

func (p *Provider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expire(key)
	if _, err := p.c.Get(key); err == nil {
		return false, nil
	} else if !errors.Is(err, bc.ErrEntryNotFound) {
		return false, err
	}
	if err := p.c.Set(key, value); err != nil {
		return false, err
	}
	p.track(key, ttl)
	return true, nil
}

func (p *Provider) CompareAndDelete(_ context.Context, key string, value []byte) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expire(key)
	cur, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !bytes.Equal(cur, value) {
		return false, nil
	}
	if err := p.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return false, err
	}
	delete(p.deadline, key)
	return true, nil
}

func (p *Provider) Del(_ context.Context, keys ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range keys {
		delete(p.deadline, k)
		if err := p.c.Delete(k); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
			return err
		}
	}
	return nil
}

// Scan matches keys with path.Match, which agrees with Redis globs for the
// usual "prefix:*" patterns.
func (p *Provider) Scan(ctx context.Context, match string, count int64, fn func(keys []string) error) error {
	if count <= 0 {
		count = 100
	}
	batch := make([]string, 0, count)
	it := p.c.Iterator()
	for it.SetNext() {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := it.Value()
		if err != nil {
			continue // entry evicted mid-iteration
		}
		ok, err := path.Match(match, info.Key())
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		batch = append(batch, info.Key())
		if int64(len(batch)) >= count {
			if err := fn(batch); err != nil {
				return err
			}
			batch = make([]string, 0, count)
		}
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}
