// Package promhooks exports cache events as Prometheus counters.
//
// Keys are never used as labels; reads are labelled by keyspace data type.
package promhooks

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/swrcache"
	"github.com/unkn0wn-root/swrcache/keyspace"
)

const namespace = "swrcache"

type Hooks struct {
	Reads          *prometheus.CounterVec // type, result (fresh|stale|null|miss)
	Bypasses       *prometheus.CounterVec // op, reason
	BackendErrors  *prometheus.CounterVec // op
	Timeouts       *prometheus.CounterVec // op
	BreakerState   *prometheus.GaugeVec   // state; 1 for the current one
	Refreshes      *prometheus.CounterVec // type, result (skipped|failed)
	SelfHeals      *prometheus.CounterVec // type, reason
	LockContention *prometheus.CounterVec // attempt
	LockOutcomes   *prometheus.CounterVec // result (busy|fail_open)
}

var _ swrcache.Hooks = (*Hooks)(nil)

// New registers the collectors on reg (prometheus.DefaultRegisterer if nil).
func New(reg prometheus.Registerer) *Hooks {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	h := &Hooks{
		Reads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reads_total",
			Help:      "Cache reads by data type and result",
		}, []string{"type", "result"}),
		Bypasses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bypass_total",
			Help:      "Backend operations skipped because the backend is unconfigured or the breaker is open",
		}, []string{"op", "reason"}),
		BackendErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Backend operation failures charged to the circuit breaker",
		}, []string{"op"}),
		Timeouts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_timeouts_total",
			Help:      "Backend operations that exceeded the operation timeout",
		}, []string{"op"}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Current circuit breaker state (1 = active)",
		}, []string{"state"}),
		Refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Background refreshes that were skipped or failed",
		}, []string{"type", "result"}),
		SelfHeals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "self_heal_total",
			Help:      "Unreadable entries deleted on read",
		}, []string{"type", "reason"}),
		LockContention: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_contended_total",
			Help:      "Lock acquisition attempts that found the lock held",
		}, []string{"attempt"}),
		LockOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_outcomes_total",
			Help:      "Lock acquisitions that gave up or proceeded without mutual exclusion",
		}, []string{"result"}),
	}
	h.BreakerState.WithLabelValues("closed").Set(1)
	return h
}

func dataType(key string) string {
	if dt, ok := keyspace.Parse(key); ok {
		return string(dt)
	}
	return "unknown"
}

func (h *Hooks) Hit(key string, stale bool) {
	result := "fresh"
	if stale {
		result = "stale"
	}
	h.Reads.WithLabelValues(dataType(key), result).Inc()
}

func (h *Hooks) NullHit(key string) { h.Reads.WithLabelValues(dataType(key), "null").Inc() }
func (h *Hooks) Miss(key string)    { h.Reads.WithLabelValues(dataType(key), "miss").Inc() }

func (h *Hooks) Bypass(op, reason string)        { h.Bypasses.WithLabelValues(op, reason).Inc() }
func (h *Hooks) BackendError(op string, _ error) { h.BackendErrors.WithLabelValues(op).Inc() }
func (h *Hooks) BackendTimeout(op string)        { h.Timeouts.WithLabelValues(op).Inc() }

func (h *Hooks) BreakerStateChange(from, to string) {
	h.BreakerState.WithLabelValues(from).Set(0)
	h.BreakerState.WithLabelValues(to).Set(1)
}

func (h *Hooks) RefreshSkipped(key string) {
	h.Refreshes.WithLabelValues(dataType(key), "skipped").Inc()
}

func (h *Hooks) RefreshFailed(key string, _ error) {
	h.Refreshes.WithLabelValues(dataType(key), "failed").Inc()
}

func (h *Hooks) SelfHeal(key, reason string) {
	h.SelfHeals.WithLabelValues(dataType(key), reason).Inc()
}

func (h *Hooks) LockContended(_ string, attempt int) {
	h.LockContention.WithLabelValues(strconv.Itoa(attempt)).Inc()
}

func (h *Hooks) LockBusy(string)            { h.LockOutcomes.WithLabelValues("busy").Inc() }
func (h *Hooks) LockFailOpen(string, error) { h.LockOutcomes.WithLabelValues("fail_open").Inc() }
