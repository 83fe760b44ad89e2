package promhooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/swrcache"
	"github.com/unkn0wn-root/swrcache/keyspace"
)

func TestCountersByDataType(t *testing.T) {
	h := New(prometheus.NewRegistry())

	h.Hit(keyspace.AutoVersion("group:g1:balances"), false)
	h.Hit(keyspace.AutoVersion("group:g1:balances"), true)
	h.Miss(keyspace.AutoVersion("user:u1"))
	h.NullHit("not-versioned")
	h.SelfHeal(keyspace.AutoVersion("group:g1:expenses"), "decompress")

	assert.Equal(t, 1.0, testutil.ToFloat64(h.Reads.WithLabelValues("balances", "fresh")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.Reads.WithLabelValues("balances", "stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.Reads.WithLabelValues("user", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.Reads.WithLabelValues("unknown", "null")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.SelfHeals.WithLabelValues("expenses", "decompress")))
}

func TestBreakerGauge(t *testing.T) {
	h := New(prometheus.NewRegistry())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.BreakerState.WithLabelValues("closed")))

	h.BreakerStateChange("closed", "open")
	assert.Equal(t, 0.0, testutil.ToFloat64(h.BreakerState.WithLabelValues("closed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.BreakerState.WithLabelValues("open")))
}

func TestLockCounters(t *testing.T) {
	h := New(prometheus.NewRegistry())
	h.LockContended("settlement:g1:a:b", 1)
	h.LockContended("settlement:g1:a:b", 2)
	h.LockBusy("settlement:g1:a:b")
	h.LockFailOpen("settlement:g1:a:b", errors.New("down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(h.LockContention.WithLabelValues("2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.LockOutcomes.WithLabelValues("busy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.LockOutcomes.WithLabelValues("fail_open")))
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestWiredIntoCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	h := New(prometheus.NewRegistry())

	client := swrcache.NewClient(swrcache.ClientOptions{URL: "redis://" + mr.Addr(), Token: "tok", Hooks: h})
	mr.RequireAuth("tok")
	defer client.Close(ctx)

	cache, err := swrcache.New[string](swrcache.Options[string]{Client: client})
	require.NoError(t, err)

	fetch := func(context.Context) (string, error) { return "42.00", nil }
	_, err = cache.Cached(ctx, "group:g1:balances", fetch, time.Minute)
	require.NoError(t, err)
	require.NoError(t, cache.Close(ctx)) // wait for the background store

	cache, err = swrcache.New[string](swrcache.Options[string]{Client: client})
	require.NoError(t, err)
	got, err := cache.Cached(ctx, "group:g1:balances", fetch, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "42.00", got)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.Reads.WithLabelValues("balances", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.Reads.WithLabelValues("balances", "fresh")))
}
