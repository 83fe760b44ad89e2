package swrcache

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/unkn0wn-root/swrcache/keyspace"
	pr "github.com/unkn0wn-root/swrcache/provider"
	"github.com/unkn0wn-root/swrcache/provider/redis"
)

// ClientOptions configure the shared backend handle.
type ClientOptions struct {
	// URL and Token locate the Redis backend. If either is empty (and Provider
	// is nil) the client runs in pass-through mode: every read goes straight
	// to the fetcher and nothing is stored.
	URL   string
	Token string

	// Provider overrides URL/Token with a ready store (local providers, tests).
	Provider pr.Provider

	OperationTimeout time.Duration // per backend call; 0 => 150ms
	FailureThreshold int           // consecutive failures before opening; 0 => 5
	RecoveryTime     time.Duration // open -> half-open; 0 => 30s

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used
}

// Client is the process-wide accessor for the cache backend. It owns the
// circuit breaker and is shared by every Cache[V] and lock.Locker.
type Client struct {
	url, token string
	timeout    time.Duration
	log        Logger
	hooks      Hooks
	breaker    *Breaker

	once sync.Once
	p    pr.Provider
}

func NewClient(opts ClientOptions) *Client {
	c := &Client{
		url:     opts.URL,
		token:   opts.Token,
		p:       opts.Provider,
		timeout: coalesce(opts.OperationTimeout, defaultOperationTimeout),
		log:     coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:   coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
	c.breaker = NewBreaker(BreakerOptions{
		Threshold:    opts.FailureThreshold,
		RecoveryTime: opts.RecoveryTime,
		OnStateChange: func(from, to string) {
			c.log.Warn("cache breaker state change", Fields{"from": from, "to": to})
			c.hooks.BreakerStateChange(from, to)
		},
	})
	return c
}

// Provider returns the backend, dialing it on first use. nil means
// pass-through mode.
func (c *Client) Provider() pr.Provider {
	c.once.Do(c.connect)
	return c.p
}

func (c *Client) connect() {
	if c.p != nil {
		return
	}
	if c.url == "" || c.token == "" {
		c.log.Info("cache backend not configured; running without cache", nil)
		return
	}
	r, err := redis.Dial(c.url, c.token)
	if err != nil {
		c.log.Error("cache backend init failed; running without cache", Fields{"err": err})
		return
	}
	c.p = r
}

// Configured reports whether a backend exists (open breaker or not).
func (c *Client) Configured() bool { return c.Provider() != nil }

// Available reports whether backend calls would currently be attempted.
func (c *Client) Available() bool { return c.Configured() && !c.breaker.IsOpen() }

func (c *Client) Breaker() *Breaker { return c.breaker }
func (c *Client) Logger() Logger    { return c.log }
func (c *Client) Hooks() Hooks      { return c.hooks }

// Do runs fn against the backend under the operation timeout and records the
// outcome with the breaker.
//
//   - not configured: ErrBackendUnavailable
//   - breaker open: ErrCircuitOpen
//   - timeout: ErrBackendTimeout (not a breaker failure)
//   - any other error: *BackendError (breaker failure)
func (c *Client) Do(ctx context.Context, op string, fn func(ctx context.Context, p pr.Provider) error) error {
	return c.run(ctx, op, c.timeout, fn)
}

// run is Do with an explicit timeout; 0 leaves ctx's own deadline in charge.
func (c *Client) run(ctx context.Context, op string, timeout time.Duration, fn func(ctx context.Context, p pr.Provider) error) error {
	p := c.Provider()
	if p == nil {
		c.hooks.Bypass(op, "unconfigured")
		return ErrBackendUnavailable
	}
	done, ok := c.breaker.Allow()
	if !ok {
		c.hooks.Bypass(op, "circuit_open")
		return ErrCircuitOpen
	}

	opCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		opCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	err := fn(opCtx, p)
	switch {
	case err == nil:
		done(true)
		return nil
	case ctx.Err() != nil:
		// caller went away; says nothing about the backend
		done(true)
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded) || opCtx.Err() != nil:
		done(true)
		c.hooks.BackendTimeout(op)
		c.log.Debug("cache backend timeout", Fields{"op": op, "timeout": timeout})
		return ErrBackendTimeout
	default:
		done(false)
		c.hooks.BackendError(op, err)
		c.log.Warn("cache backend error", Fields{"op": op, "err": err})
		return &BackendError{Op: op, Err: err}
	}
}

// CompareAndDelete deletes key only while it still holds value. Providers
// without an atomic primitive fall back to GET + compare + DEL.
func (c *Client) CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error) {
	var deleted bool
	err := c.Do(ctx, "cad", func(ctx context.Context, p pr.Provider) error {
		if cad, ok := p.(pr.CompareAndDeleter); ok {
			var err error
			deleted, err = cad.CompareAndDelete(ctx, key, value)
			return err
		}
		cur, ok, err := p.Get(ctx, key)
		if err != nil || !ok || !bytes.Equal(cur, value) {
			return err
		}
		deleted = true
		return p.Del(ctx, key)
	})
	return deleted, err
}

// Invalidate deletes the given keys (auto-versioned) in one call. A missing
// backend is not an error: there is nothing to invalidate.
func (c *Client) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	phys := make([]string, len(keys))
	for i, k := range keys {
		phys[i] = keyspace.AutoVersion(k)
	}
	err := c.Do(ctx, "del", func(ctx context.Context, p pr.Provider) error {
		return p.Del(ctx, phys...)
	})
	if errors.Is(err, ErrBackendUnavailable) {
		return nil
	}
	return err
}

// InvalidateGroup drops every cached key of a group.
func (c *Client) InvalidateGroup(ctx context.Context, groupID string) error {
	return c.Invalidate(ctx, keyspace.GroupKeys(groupID)...)
}

// InvalidateUser drops every cached key of a user.
func (c *Client) InvalidateUser(ctx context.Context, userID string) error {
	return c.Invalidate(ctx, keyspace.UserKeys(userID)...)
}

// InvalidatePattern scans physical keys matching pattern (Redis glob) and
// deletes them in batches. Cost is O(matching keys); the operation timeout
// does not apply, only ctx.
func (c *Client) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	p := c.Provider()
	if p == nil {
		return 0, nil
	}
	sc, ok := p.(pr.Scanner)
	if !ok {
		return 0, ErrScanUnsupported
	}

	var (
		deleted int
		delErr  error
	)
	err := c.run(ctx, "scan", 0, func(ctx context.Context, p pr.Provider) error {
		return sc.Scan(ctx, pattern, defaultScanCount, func(keys []string) error {
			for len(keys) > 0 {
				n := min(len(keys), defaultDeleteBatch)
				if err := p.Del(ctx, keys[:n]...); err != nil {
					delErr = err
					return err
				}
				deleted += n
				keys = keys[n:]
			}
			return nil
		})
	})
	switch {
	case err == nil:
		c.log.Debug("invalidated pattern", Fields{"pattern": pattern, "deleted": deleted})
		return deleted, nil
	case errors.Is(err, ErrBackendUnavailable):
		return 0, nil
	case delErr != nil:
		return deleted, &InvalidateError{Pattern: pattern, Deleted: deleted, DelErr: delErr}
	default:
		return deleted, &InvalidateError{Pattern: pattern, Deleted: deleted, ScanErr: err}
	}
}

// Close releases the backend handle.
func (c *Client) Close(ctx context.Context) error {
	if p := c.Provider(); p != nil {
		return p.Close(ctx)
	}
	return nil
}
