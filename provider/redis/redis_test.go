package redis

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pr "github.com/unkn0wn-root/swrcache/provider"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	p, err := Dial("redis://"+mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return mr, p
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestDialRejectsBadURL(t *testing.T) {
	_, err := Dial("://nope", "")
	assert.Error(t, err)
}

func TestDialTokenOverridesPassword(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("s3cret")

	p, err := Dial("redis://"+mr.Addr(), "s3cret")
	require.NoError(t, err)
	defer p.Close(context.Background())

	ok, err := p.Set(context.Background(), "k", []byte("v"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetSetDel(t *testing.T) {
	mr, p := setupMiniRedis(t)
	ctx := context.Background()

	_, ok, err := p.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Set(ctx, "a", []byte("1"), 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10*time.Second, mr.TTL("a"))

	got, ok, err := p.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), got)

	_, _ = p.Set(ctx, "b", []byte("2"), 0)
	assert.Equal(t, time.Duration(0), mr.TTL("b"), "ttl<=0 means no expiry")

	require.NoError(t, p.Del(ctx, "a", "b", "never-existed"))
	assert.False(t, mr.Exists("a"))
	assert.False(t, mr.Exists("b"))
	require.NoError(t, p.Del(ctx))
}

func TestGetTransportError(t *testing.T) {
	mr, p := setupMiniRedis(t)
	mr.SetError("LOADING")
	_, ok, err := p.Get(context.Background(), "a")
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestSetNX(t *testing.T) {
	mr, p := setupMiniRedis(t)
	ctx := context.Background()

	ok, err := p.SetNX(ctx, "lock:x", []byte("owner-1"), time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.SetNX(ctx, "lock:x", []byte("owner-2"), time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Second)
	ok, err = p.SetNX(ctx, "lock:x", []byte("owner-2"), time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired key can be taken again")
}

func TestCompareAndDelete(t *testing.T) {
	mr, p := setupMiniRedis(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("lock:x", "owner-1"))

	deleted, err := p.CompareAndDelete(ctx, "lock:x", []byte("owner-2"))
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.True(t, mr.Exists("lock:x"))

	deleted, err = p.CompareAndDelete(ctx, "lock:x", []byte("owner-1"))
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, mr.Exists("lock:x"))

	deleted, err = p.CompareAndDelete(ctx, "lock:x", []byte("owner-1"))
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestScan(t *testing.T) {
	mr, p := setupMiniRedis(t)
	for i := 0; i < 25; i++ {
		require.NoError(t, mr.Set(fmt.Sprintf("balances-v1:group:g%d:balances", i), "x"))
	}
	require.NoError(t, mr.Set("user-v1:user:u1", "x"))

	var seen []string
	err := p.Scan(context.Background(), "balances-v1:*", 10, func(keys []string) error {
		seen = append(seen, keys...)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 25)

	stop := fmt.Errorf("stop")
	err = p.Scan(context.Background(), "*", 5, func([]string) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestMGetAndSetMany(t *testing.T) {
	mr, p := setupMiniRedis(t)
	ctx := context.Background()

	err := p.SetMany(ctx, []pr.Item{
		{Key: "a", Value: []byte("1"), TTL: time.Minute},
		{Key: "b", Value: []byte("2"), TTL: 2 * time.Minute},
	})
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL("a"))
	assert.Equal(t, 2*time.Minute, mr.TTL("b"))

	vals, err := p.MGet(ctx, "a", "missing", "b")
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.Equal(t, []byte("1"), vals[0])
	assert.Nil(t, vals[1])
	assert.Equal(t, []byte("2"), vals[2])

	vals, err = p.MGet(ctx)
	require.NoError(t, err)
	assert.Empty(t, vals)
}

func TestCloseOwnership(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	p, err := New(Config{Client: client})
	require.NoError(t, err)
	require.NoError(t, p.Close(context.Background()))

	// borrowed client must still work
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())

	owned, err := Dial("redis://"+mr.Addr(), "")
	require.NoError(t, err)
	require.NoError(t, owned.Close(context.Background()))
	require.NoError(t, owned.Close(context.Background()), "second close is a no-op")

	keys := mr.Keys()
	sort.Strings(keys)
	assert.Equal(t, []string{"k"}, keys)
}
