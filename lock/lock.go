// Package lock serializes critical sections across replicas with a
// single-node Redlock: SET lock:{key} <uuidv7> NX with a TTL, released by
// compare-and-delete so a late holder can never free someone else's lock.
//
// The lock fails open: when the backend is unconfigured, unreachable or the
// breaker is open, Acquire grants a lease without mutual exclusion (logged).
// Callers that cannot tolerate that must check Lease.FailOpen.
package lock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/unkn0wn-root/swrcache"
	pr "github.com/unkn0wn-root/swrcache/provider"
)

const (
	prefix = "lock:"

	defaultTTL        = 10 * time.Second
	defaultRetryDelay = 100 * time.Millisecond
	defaultMaxRetries = 5
)

// ErrLockNotAcquired is matched by *BusyError.
var ErrLockNotAcquired = errors.New("lock: not acquired")

var errHeld = errors.New("lock: held")

// BusyError means the lock stayed held through every attempt. The operation
// can be retried later.
type BusyError struct {
	Key      string
	Attempts int
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("lock %q busy after %d attempts", e.Key, e.Attempts)
}

func (e *BusyError) Is(target error) bool { return target == ErrLockNotAcquired }
func (e *BusyError) Retryable() bool      { return true }

type Options struct {
	TTL        time.Duration // lock lifetime; 0 => 10s
	RetryDelay time.Duration // constant delay between attempts; 0 => 100ms
	MaxRetries int           // total attempts; 0 => 5
}

type Option func(*Options)

func WithTTL(d time.Duration) Option { return func(o *Options) { o.TTL = d } }

func WithRetry(delay time.Duration, attempts int) Option {
	return func(o *Options) {
		o.RetryDelay = delay
		o.MaxRetries = attempts
	}
}

// Lease is the result of Acquire. A fail-open lease is Acquired with an empty ID.
type Lease struct {
	Key      string
	ID       string
	Acquired bool
}

func (l Lease) FailOpen() bool { return l.Acquired && l.ID == "" }

type Locker struct {
	client *swrcache.Client
	opts   Options
	log    swrcache.Logger
	hooks  swrcache.Hooks
}

func New(client *swrcache.Client, opts Options) *Locker {
	return &Locker{
		client: client,
		opts:   opts.withDefaults(),
		log:    client.Logger(),
		hooks:  client.Hooks(),
	}
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = defaultTTL
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultRetryDelay
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetries
	}
	return o
}

func (l *Locker) resolve(opts []Option) Options {
	o := l.opts
	for _, opt := range opts {
		opt(&o)
	}
	return o.withDefaults()
}

// Acquire tries to take key. A held lock is retried with a constant delay;
// timeouts count as failed attempts. After a timeout the next attempt accepts
// the key if it already holds our id, and a lease abandoned after a timeout is
// compare-and-deleted. The only error is ctx's.
func (l *Locker) Acquire(ctx context.Context, key string, opts ...Option) (Lease, error) {
	o := l.resolve(opts)

	id, err := uuid.NewV7()
	if err != nil {
		return Lease{Key: key}, fmt.Errorf("lock: id: %w", err)
	}
	token := []byte(id.String())

	var (
		attempt int
		// a timed-out SET NX may still have landed with our token
		uncertain bool
	)
	try := func() error {
		attempt++
		var ok bool
		err := l.client.Do(ctx, "lock", func(ctx context.Context, p pr.Provider) error {
			var err error
			ok, err = p.SetNX(ctx, prefix+key, token, o.TTL)
			if err != nil || ok || !uncertain {
				return err
			}
			cur, found, err := p.Get(ctx, prefix+key)
			ok = found && bytes.Equal(cur, token)
			return err
		})
		switch {
		case err == nil && ok:
			return nil
		case err == nil:
			uncertain = false
			l.hooks.LockContended(key, attempt)
			return errHeld
		case errors.Is(err, swrcache.ErrBackendTimeout):
			uncertain = true
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(o.RetryDelay), uint64(o.MaxRetries-1)),
		ctx,
	)
	err = backoff.Retry(try, b)
	if err != nil && uncertain {
		l.abandon(ctx, key, token)
	}
	switch {
	case err == nil:
		l.log.Debug("lock acquired", swrcache.Fields{"lock": key, "attempt": attempt})
		return Lease{Key: key, ID: id.String(), Acquired: true}, nil
	case ctx.Err() != nil:
		return Lease{Key: key}, ctx.Err()
	case errors.Is(err, errHeld), errors.Is(err, swrcache.ErrBackendTimeout):
		l.hooks.LockBusy(key)
		l.log.Debug("lock busy", swrcache.Fields{"lock": key, "attempts": attempt})
		return Lease{Key: key}, nil
	default:
		l.hooks.LockFailOpen(key, err)
		l.log.Warn("lock backend unavailable; proceeding without lock", swrcache.Fields{"lock": key, "err": err})
		return Lease{Key: key, Acquired: true}, nil
	}
}

// abandon drops a lock that a timed-out attempt may have taken after all.
func (l *Locker) abandon(ctx context.Context, key string, token []byte) {
	if _, err := l.client.CompareAndDelete(context.WithoutCancel(ctx), prefix+key, token); err != nil {
		l.log.Debug("lock cleanup failed", swrcache.Fields{"lock": key, "err": err})
	}
}

// Release frees key if it is still held by id. Fail-open leases (empty id)
// are a no-op. Errors are logged, never returned: the TTL frees the lock anyway.
func (l *Locker) Release(ctx context.Context, key, id string) {
	if id == "" {
		return
	}
	deleted, err := l.client.CompareAndDelete(ctx, prefix+key, []byte(id))
	switch {
	case err != nil:
		l.log.Warn("lock release failed", swrcache.Fields{"lock": key, "err": err})
	case !deleted:
		// expired, and maybe re-acquired by someone else
		l.log.Warn("lock lost before release", swrcache.Fields{"lock": key})
	}
}

// WithLock runs fn while holding key. If the lock cannot be taken it returns a
// *BusyError without running fn.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error, opts ...Option) error {
	_, err := Run(ctx, l, key, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts...)
	return err
}

// Run is WithLock for functions returning a value.
func Run[T any](ctx context.Context, l *Locker, key string, fn func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var zero T
	lease, err := l.Acquire(ctx, key, opts...)
	if err != nil {
		return zero, err
	}
	if !lease.Acquired {
		return zero, &BusyError{Key: key, Attempts: l.resolve(opts).MaxRetries}
	}
	defer l.Release(context.WithoutCancel(ctx), key, lease.ID)
	return fn(ctx)
}
