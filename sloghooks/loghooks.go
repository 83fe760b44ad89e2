package sloghooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/swrcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	HitEvery      uint64
	MissEvery     uint64
	SelfHealEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

// Hooks logs cache events to slog. Hits and misses are Debug, degradations
// Warn, breaker openings and lock fail-opens Error.
type Hooks struct {
	l    *slog.Logger
	opts Options

	hitCtr      atomic.Uint64
	missCtr     atomic.Uint64
	selfHealCtr atomic.Uint64
}

var _ swrcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Hit(key string, stale bool) {
	if h.l == nil || !sample(h.opts.HitEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("swrcache.hit", "key", h.redact(key), "stale", stale)
}

func (h *Hooks) NullHit(key string) {
	if h.l == nil || !sample(h.opts.HitEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("swrcache.null_hit", "key", h.redact(key))
}

func (h *Hooks) Miss(key string) {
	if h.l == nil || !sample(h.opts.MissEvery, &h.missCtr) {
		return
	}
	h.l.Debug("swrcache.miss", "key", h.redact(key))
}

func (h *Hooks) Bypass(op, reason string) {
	// unconfigured is the normal state of a cacheless deployment
	if h.l == nil || reason == "unconfigured" {
		return
	}
	h.l.Debug("swrcache.bypass", "op", op, "reason", reason)
}

func (h *Hooks) BackendError(op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("swrcache.backend_error", "op", op, "err", err)
}

func (h *Hooks) BackendTimeout(op string) {
	if h.l == nil {
		return
	}
	h.l.Warn("swrcache.backend_timeout", "op", op)
}

func (h *Hooks) BreakerStateChange(from, to string) {
	if h.l == nil {
		return
	}
	lvl := slog.LevelInfo
	if to == "open" {
		lvl = slog.LevelError
	}
	h.l.Log(context.Background(), lvl, "swrcache.breaker_state", "from", from, "to", to)
}

func (h *Hooks) RefreshSkipped(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("swrcache.refresh_skipped", "key", h.redact(key))
}

func (h *Hooks) RefreshFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("swrcache.refresh_failed", "key", h.redact(key), "err", err)
}

func (h *Hooks) SelfHeal(key, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Warn("swrcache.self_heal",
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) LockContended(key string, attempt int) {
	if h.l == nil {
		return
	}
	h.l.Debug("swrcache.lock_contended", "lock", key, "attempt", attempt)
}

func (h *Hooks) LockBusy(key string) {
	if h.l == nil {
		return
	}
	h.l.Warn("swrcache.lock_busy", "lock", key)
}

func (h *Hooks) LockFailOpen(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("swrcache.lock_fail_open",
		"lock", key,
		"err", err,
		"msg", "proceeding without mutual exclusion")
}
