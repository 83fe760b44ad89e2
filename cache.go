package swrcache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	c "github.com/unkn0wn-root/swrcache/codec"
	"github.com/unkn0wn-root/swrcache/compress"
	"github.com/unkn0wn-root/swrcache/internal/util"
	"github.com/unkn0wn-root/swrcache/internal/wire"
	"github.com/unkn0wn-root/swrcache/keyspace"
	pr "github.com/unkn0wn-root/swrcache/provider"
)

const (
	refreshPrefix   = "refresh:"
	sensitiveJitter = 0.1
)

type state uint8

const (
	stateMiss state = iota
	stateHit
	stateNull
)

type lookup[V any] struct {
	state state
	value V
	age   time.Duration
}

type cache[V any] struct {
	client *Client
	codec  c.Codec[V]
	log    Logger
	hooks  Hooks

	defaultTTL    time.Duration
	nullTTL       time.Duration
	guardTTL      time.Duration
	staleRatio    float64
	jitterRatio   float64
	compressAbove int
	isNull        func(V) bool
	now           func() time.Time

	sf singleflight.Group

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("swrcache: client is required")
	}
	if opts.StaleRatio < 0 || opts.StaleRatio > 1 {
		return nil, fmt.Errorf("swrcache: stale ratio %v outside [0,1]", opts.StaleRatio)
	}

	cc := &cache[V]{
		client: opts.Client,
		log:    opts.Client.Logger(),
		hooks:  opts.Client.Hooks(),
	}

	// defaults
	cc.codec = opts.Codec
	if cc.codec == nil {
		cc.codec = c.JSON[V]{}
	}
	cc.defaultTTL = coalesce(opts.DefaultTTL, defaultTTL)
	cc.nullTTL = coalesce(opts.NullTTL, defaultNullTTL)
	cc.guardTTL = coalesce(opts.RefreshGuardTTL, defaultRefreshGuardTTL)
	cc.staleRatio = coalesce(opts.StaleRatio, defaultStaleRatio)
	cc.jitterRatio = coalesce(opts.JitterRatio, defaultJitterRatio)
	cc.compressAbove = coalesce(opts.CompressThreshold, defaultCompressAbove)
	cc.isNull = opts.IsNull
	if cc.isNull == nil {
		cc.isNull = isNullValue[V]
	}
	cc.now = opts.Now
	if cc.now == nil {
		cc.now = time.Now
	}
	return cc, nil
}

func (cc *cache[V]) Enabled() bool { return cc.client.Configured() }

func (cc *cache[V]) Close(ctx context.Context) error {
	cc.mu.Lock()
	cc.closed = true
	cc.mu.Unlock()

	done := make(chan struct{})
	go func() {
		cc.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cc *cache[V]) Cached(ctx context.Context, key string, fetch Fetcher[V], ttl time.Duration) (V, error) {
	ttl = coalesce(ttl, cc.defaultTTL)
	pkey := keyspace.AutoVersion(key)

	l, err := cc.read(ctx, pkey)
	if err != nil && !errors.Is(err, ErrBackendTimeout) {
		// unavailable, or a backend error already charged to the breaker:
		// serve from source and store nothing. A timeout is a plain miss.
		return fetch(ctx)
	}

	switch l.state {
	case stateNull:
		cc.hooks.NullHit(pkey)
		var zero V
		return zero, nil
	case stateHit:
		stale := l.age >= time.Duration(float64(ttl)*cc.staleRatio)
		cc.hooks.Hit(pkey, stale)
		if stale {
			cc.refresh(ctx, pkey, fetch, ttl)
		}
		return l.value, nil
	}

	cc.hooks.Miss(pkey)
	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}
	cc.spawn(ctx, func(ctx context.Context) {
		if err := cc.store(ctx, pkey, v, ttl); err != nil && !errors.Is(err, ErrBackendUnavailable) {
			cc.hooks.RefreshFailed(pkey, err)
			cc.log.Debug("cache store failed", Fields{"key": pkey, "err": err})
		}
	})
	return v, nil
}

func (cc *cache[V]) CachedCoalesced(ctx context.Context, key string, fetch Fetcher[V], ttl time.Duration) (V, error) {
	pkey := keyspace.AutoVersion(key)
	ch := cc.sf.DoChan(pkey, func() (any, error) {
		// shared by every waiter: no single caller may cancel it
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cc.guardTTL)
		defer cancel()
		return cc.Cached(sctx, key, fetch, ttl)
	})
	select {
	case res := <-ch:
		v, _ := res.Val.(V)
		return v, res.Err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func (cc *cache[V]) CachedSensitive(ctx context.Context, key string, fetch Fetcher[V], ttl, minResponse time.Duration) (V, error) {
	start := time.Now()
	v, err := cc.Cached(ctx, key, fetch, ttl)

	wait := util.Spread(minResponse-time.Since(start), sensitiveJitter)
	if wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}
	return v, err
}

func (cc *cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	l, err := cc.read(ctx, keyspace.AutoVersion(key))
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) || errors.Is(err, ErrBackendTimeout) {
			return zero, false, nil
		}
		return zero, false, err
	}
	// a cached "not found" is still an answer
	return l.value, l.state != stateMiss, nil
}

func (cc *cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	err := cc.store(ctx, keyspace.AutoVersion(key), value, coalesce(ttl, cc.defaultTTL))
	if errors.Is(err, ErrBackendUnavailable) {
		return nil
	}
	return err
}

func (cc *cache[V]) Invalidate(ctx context.Context, key string) error {
	return cc.client.Invalidate(ctx, key)
}

func (cc *cache[V]) GetMany(ctx context.Context, keys []string) (map[string]V, []string, error) {
	out := make(map[string]V, len(keys))
	if len(keys) == 0 {
		return out, nil, nil
	}
	pkeys := make([]string, len(keys))
	for i, k := range keys {
		pkeys[i] = keyspace.AutoVersion(k)
	}

	var raws [][]byte
	err := cc.client.Do(ctx, "mget", func(ctx context.Context, p pr.Provider) error {
		if mg, ok := p.(pr.MultiGetter); ok {
			var err error
			raws, err = mg.MGet(ctx, pkeys...)
			return err
		}
		raws = make([][]byte, len(pkeys))
		for i, k := range pkeys {
			b, ok, err := p.Get(ctx, k)
			if err != nil {
				return err
			}
			if ok {
				raws[i] = b
			}
		}
		return nil
	})
	if err != nil {
		missing := append([]string(nil), keys...)
		if errors.Is(err, ErrBackendUnavailable) || errors.Is(err, ErrBackendTimeout) {
			return out, missing, nil
		}
		return out, missing, err
	}

	var (
		missing []string
		heal    []string
	)
	for i, k := range keys {
		if i >= len(raws) || raws[i] == nil {
			missing = append(missing, k)
			continue
		}
		l, reason, err := cc.decode(raws[i])
		if err != nil {
			cc.hooks.SelfHeal(pkeys[i], reason)
			heal = append(heal, pkeys[i])
			missing = append(missing, k)
			continue
		}
		out[k] = l.value
	}
	if len(heal) > 0 {
		_ = cc.client.Do(ctx, "del", func(ctx context.Context, p pr.Provider) error {
			return p.Del(ctx, heal...)
		})
	}
	return out, missing, nil
}

func (cc *cache[V]) Warm(ctx context.Context, items map[string]V, ttl time.Duration) error {
	if len(items) == 0 {
		return nil
	}
	ttl = coalesce(ttl, cc.defaultTTL)
	batch := make([]pr.Item, 0, len(items))
	for k, v := range items {
		b, exp, err := cc.encode(v, ttl)
		if err != nil {
			return fmt.Errorf("warm %q: %w", k, err)
		}
		batch = append(batch, pr.Item{Key: keyspace.AutoVersion(k), Value: b, TTL: exp})
	}

	err := cc.client.Do(ctx, "mset", func(ctx context.Context, p pr.Provider) error {
		if bs, ok := p.(pr.BatchSetter); ok {
			return bs.SetMany(ctx, batch)
		}
		for _, it := range batch {
			if _, err := p.Set(ctx, it.Key, it.Value, it.TTL); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrBackendUnavailable) {
		return nil
	}
	return err
}

// read fetches and decodes pkey. Unreadable entries are deleted and reported
// as a backend error so the caller falls back to its fetcher.
func (cc *cache[V]) read(ctx context.Context, pkey string) (lookup[V], error) {
	var l lookup[V]
	err := cc.client.Do(ctx, "get", func(ctx context.Context, p pr.Provider) error {
		raw, ok, err := p.Get(ctx, pkey)
		if err != nil || !ok {
			return err
		}
		dl, reason, err := cc.decode(raw)
		if err != nil {
			cc.hooks.SelfHeal(pkey, reason)
			cc.log.Warn("dropping unreadable cache entry", Fields{"key": pkey, "reason": reason, "err": err})
			_ = p.Del(ctx, pkey)
			return err
		}
		l = dl
		return nil
	})
	return l, err
}

func (cc *cache[V]) decode(raw []byte) (lookup[V], string, error) {
	var l lookup[V]
	e, err := wire.Decode(raw)
	if err != nil {
		return l, "corrupt", err
	}
	l.age = cc.now().Sub(time.UnixMilli(e.Timestamp))
	if e.Null {
		l.state = stateNull
		return l, "", nil
	}
	payload := e.Payload
	if e.Compressed {
		if payload, err = compress.Decompress(payload); err != nil {
			return l, "decompress", err
		}
	}
	v, err := cc.codec.Decode(payload)
	if err != nil {
		return l, "decode", err
	}
	l.state = stateHit
	l.value = v
	return l, "", nil
}

// encode frames v for storage and picks its expiry: NullTTL for "not found"
// results, the jittered ttl otherwise.
func (cc *cache[V]) encode(v V, ttl time.Duration) ([]byte, time.Duration, error) {
	ts := cc.now().UnixMilli()
	if cc.isNull(v) {
		return wire.Encode(wire.NullEntry(ts)), cc.nullTTL, nil
	}
	payload, err := cc.codec.Encode(v)
	if err != nil {
		return nil, 0, err
	}
	compressed := false
	if cc.compressAbove > 0 {
		if payload, compressed, err = compress.CompressAbove(payload, cc.compressAbove); err != nil {
			return nil, 0, err
		}
	}
	b := wire.Encode(wire.Entry{Timestamp: ts, Compressed: compressed, Payload: payload})
	return b, util.Jitter(ttl, cc.jitterRatio), nil
}

func (cc *cache[V]) store(ctx context.Context, pkey string, v V, ttl time.Duration) error {
	b, exp, err := cc.encode(v, ttl)
	if err != nil {
		return err
	}
	return cc.client.Do(ctx, "set", func(ctx context.Context, p pr.Provider) error {
		ok, err := p.Set(ctx, pkey, b, exp)
		if err == nil && !ok {
			cc.log.Debug("cache set rejected by provider (pressure)", Fields{"key": pkey})
		}
		return err
	})
}

// refresh re-fetches pkey in the background unless another worker holds the
// refresh:{pkey} guard. The guard is released only while it still holds our
// token.
func (cc *cache[V]) refresh(ctx context.Context, pkey string, fetch Fetcher[V], ttl time.Duration) {
	cc.spawn(ctx, func(ctx context.Context) {
		guard := refreshPrefix + pkey
		token := []byte(uuid.NewString())

		var acquired bool
		err := cc.client.Do(ctx, "setnx", func(ctx context.Context, p pr.Provider) error {
			var err error
			acquired, err = p.SetNX(ctx, guard, token, cc.guardTTL)
			return err
		})
		if err != nil {
			cc.log.Debug("refresh guard unavailable", Fields{"key": pkey, "err": err})
			return
		}
		if !acquired {
			cc.hooks.RefreshSkipped(pkey)
			return
		}
		defer func() {
			_, _ = cc.client.CompareAndDelete(context.WithoutCancel(ctx), guard, token)
		}()

		v, err := fetch(ctx)
		if err != nil {
			cc.hooks.RefreshFailed(pkey, err)
			cc.log.Warn("background refresh failed", Fields{"key": pkey, "err": err})
			return
		}
		if err := cc.store(ctx, pkey, v, ttl); err != nil {
			cc.hooks.RefreshFailed(pkey, err)
			cc.log.Debug("refresh store failed", Fields{"key": pkey, "err": err})
		}
	})
}

// spawn runs fn detached from the request, bounded by the refresh guard TTL.
// Nothing starts once the cache is closed.
func (cc *cache[V]) spawn(ctx context.Context, fn func(context.Context)) {
	cc.mu.Lock()
	if cc.closed {
		cc.mu.Unlock()
		return
	}
	cc.wg.Add(1)
	cc.mu.Unlock()

	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cc.guardTTL)
	go func() {
		defer cc.wg.Done()
		defer cancel()
		fn(bctx)
	}()
}

// isNullValue classifies "not found" results: nil pointers, maps, interfaces,
// channels and funcs, and nil or empty slices and arrays.
func isNullValue[V any](v V) bool {
	rv := reflect.ValueOf(&v).Elem()
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	case reflect.Slice, reflect.Array:
		return rv.Len() == 0
	}
	return false
}
