package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Sessions int     `json:"sessions"`
	Distance float64 `json:"distance"`
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	store := NewRedisStore(client, "")

	var out payload
	_, err := store.Get(ctx, "snapshot", &out)
	assert.ErrorIs(t, err, ErrCacheMiss)

	computedAt := time.Date(2026, 10, 18, 9, 30, 0, 0, time.FixedZone("EDT", -4*3600))
	require.NoError(t, store.Set(ctx, "snapshot", payload{Sessions: 3, Distance: 12.5}, computedAt, time.Minute))
	got, err := store.Get(ctx, "snapshot", &out)
	require.NoError(t, err)
	assert.Equal(t, payload{Sessions: 3, Distance: 12.5}, out)
	assert.True(t, computedAt.Equal(got))

	assert.True(t, mr.Exists(DefaultKeyPrefix+"snapshot"))
	assert.Equal(t, time.Minute, mr.TTL(DefaultKeyPrefix+"snapshot"))

	mr.FastForward(time.Minute)
	_, err = store.Get(ctx, "snapshot", &out)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStore_PurgeKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	store := NewRedisStore(client, "rs:")

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, store.Set(ctx, k, k, time.Now(), 0))
	}
	require.NoError(t, mr.Set("other:key", "keep"))

	require.NoError(t, store.Purge(ctx))
	assert.False(t, mr.Exists("rs:a"))
	assert.False(t, mr.Exists("rs:c"))
	assert.True(t, mr.Exists("other:key"))
}

func TestRedisStore_DecodeError(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	store := NewRedisStore(client, "rs:")
	require.NoError(t, mr.Set("rs:bad", "{not json"))

	var out payload
	_, err := store.Get(ctx, "bad", &out)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, mr.Set("rs:wrong", `{"computed_at":"2026-10-18T12:00:00Z","value":"text"}`))
	_, err = store.Get(ctx, "wrong", &out)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	_ = client.Close()

	_, err = NewRedisClient(context.Background(), RedisConfig{URL: "://bad"})
	assert.Error(t, err)
}

func TestFetch_RemoteTier(t *testing.T) {
	ctx := context.Background()
	_, client := setupRedis(t)
	remote := NewRedisStore(client, "")

	var calls atomic.Int32
	compute := func(context.Context) (*payload, error) {
		calls.Add(1)
		return &payload{Sessions: 4, Distance: 20}, nil
	}

	first := newTestManager(t, func(c *Config) { c.Remote = remote })
	v, err := Fetch(ctx, first, "snapshot", PriorityHigh, compute)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Sessions)

	// a second process shares the remote tier
	second := newTestManager(t, func(c *Config) { c.Remote = remote })
	v, err = Fetch(ctx, second, "snapshot", PriorityHigh, compute)
	require.NoError(t, err)
	assert.Equal(t, &payload{Sessions: 4, Distance: 20}, v)
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, second.InvalidateAll(ctx))
	var out payload
	_, err = remote.Get(ctx, "snapshot", &out)
	assert.ErrorIs(t, err, ErrCacheMiss)

	_, err = Fetch(ctx, second, "snapshot", PriorityHigh, compute)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetch_RemoteCopyKeepsComputedAt(t *testing.T) {
	ctx := context.Background()
	_, client := setupRedis(t)
	remote := NewRedisStore(client, "")
	clock := newFakeClock()
	ttl := 10 * time.Minute

	var calls atomic.Int32
	compute := func(context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}

	first := newTestManager(t, func(c *Config) {
		c.Remote = remote
		c.TTL = ttl
		c.Now = clock.Now
	})
	v, err := Fetch(ctx, first, "snapshot", PriorityHigh, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// a second process reads the remote copy most of a TTL later
	clock.Advance(8 * time.Minute)
	second := newTestManager(t, func(c *Config) {
		c.Remote = remote
		c.TTL = ttl
		c.Now = clock.Now
	})
	v, err = Fetch(ctx, second, "snapshot", PriorityHigh, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, int32(1), calls.Load())

	// the local copy expires with the original, not a full TTL after the read
	clock.Advance(3 * time.Minute)
	_, ok := second.Get("snapshot")
	assert.False(t, ok)

	// the remote copy is past its TTL on this clock too, so it is recomputed
	v, err = Fetch(ctx, second, "snapshot", PriorityHigh, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	var out int
	computedAt, err := remote.Get(ctx, "snapshot", &out)
	require.NoError(t, err)
	assert.Equal(t, 2, out)
	assert.True(t, clock.Now().Equal(computedAt))
}

func TestFetch_RemoteFailureFallsBackToCompute(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	remote := NewRedisStore(client, "")
	mr.Close()

	m := newTestManager(t, func(c *Config) { c.Remote = remote })
	v, err := Fetch(ctx, m, "k", PriorityNormal, func(context.Context) (string, error) { return "computed", nil })
	require.NoError(t, err)
	assert.Equal(t, "computed", v)

	assert.Error(t, m.InvalidateAll(ctx))
	assert.Equal(t, 0, m.Len(), "local entries are cleared even if the remote purge fails")
}
