package swrcache

import (
	"time"

	"github.com/sony/gobreaker"
)

const (
	defaultFailureThreshold = 5
	defaultRecoveryTime     = 30 * time.Second
)

// Breaker guards the cache backend. It opens after Threshold consecutive
// failures, stays open for RecoveryTime, then lets a single probe through:
// a successful probe closes it, a failed one re-opens it.
type Breaker struct {
	cb *gobreaker.TwoStepCircuitBreaker
}

type BreakerOptions struct {
	Name          string        // default "swrcache"
	Threshold     int           // consecutive failures; 0 => 5
	RecoveryTime  time.Duration // 0 => 30s
	OnStateChange func(from, to string)
}

func NewBreaker(opts BreakerOptions) *Breaker {
	threshold := uint32(coalesce(opts.Threshold, defaultFailureThreshold))
	st := gobreaker.Settings{
		Name:        coalesce(opts.Name, "swrcache"),
		MaxRequests: 1, // one probe in half-open
		Timeout:     coalesce(opts.RecoveryTime, defaultRecoveryTime),
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
	}
	if opts.OnStateChange != nil {
		st.OnStateChange = func(_ string, from, to gobreaker.State) {
			opts.OnStateChange(from.String(), to.String())
		}
	}
	return &Breaker{cb: gobreaker.NewTwoStepCircuitBreaker(st)}
}

// Allow asks permission for one backend operation. When ok is false the cache
// must be bypassed. Otherwise done must be called exactly once with the
// outcome.
func (b *Breaker) Allow() (done func(success bool), ok bool) {
	// ErrOpenState or ErrTooManyRequests (half-open probe already in flight)
	done, err := b.cb.Allow()
	if err != nil {
		return nil, false
	}
	return done, true
}

// IsOpen reports whether the breaker currently bypasses the backend. An open
// breaker whose recovery time has elapsed reports half-open, i.e. false.
func (b *Breaker) IsOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// State is one of "closed", "half-open", "open".
func (b *Breaker) State() string { return b.cb.State().String() }

// ConsecutiveFailures is the current failure streak.
func (b *Breaker) ConsecutiveFailures() int { return int(b.cb.Counts().ConsecutiveFailures) }
