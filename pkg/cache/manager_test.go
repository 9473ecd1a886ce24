package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func constant(v any) ComputeFunc {
	return func(context.Context) (any, error) { return v, nil }
}

func TestManager_GetOrCompute(t *testing.T) {
	t.Run("computes once then hits", func(t *testing.T) {
		m := newTestManager(t, nil)
		var calls atomic.Int32
		fn := func(context.Context) (any, error) {
			calls.Add(1)
			return 42, nil
		}

		v, err := m.GetOrCompute(context.Background(), "k", PriorityNormal, fn)
		require.NoError(t, err)
		assert.Equal(t, 42, v)

		v, err = m.GetOrCompute(context.Background(), "k", PriorityNormal, fn)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.Equal(t, int32(1), calls.Load())

		stats := m.Stats()
		assert.Equal(t, uint64(1), stats.Hits)
		assert.Equal(t, uint64(1), stats.Computations)
		assert.Equal(t, 1, stats.Items)
	})

	t.Run("invalid arguments", func(t *testing.T) {
		m := newTestManager(t, nil)
		_, err := m.GetOrCompute(context.Background(), "", PriorityNormal, constant(1))
		assert.ErrorIs(t, err, ErrInvalidCacheKey)

		_, err = m.GetOrCompute(context.Background(), "k", PriorityNormal, nil)
		assert.ErrorIs(t, err, ErrNilCompute)

		assert.ErrorIs(t, m.Set("", 1, PriorityLow), ErrInvalidCacheKey)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		m := newTestManager(t, nil)
		sentinel := errors.New("store down")
		var calls atomic.Int32

		_, err := m.GetOrCompute(context.Background(), "k", PriorityNormal, func(context.Context) (any, error) {
			calls.Add(1)
			return nil, sentinel
		})
		assert.ErrorIs(t, err, sentinel)
		_, ok := m.Get("k")
		assert.False(t, ok)

		v, err := m.GetOrCompute(context.Background(), "k", PriorityNormal, func(context.Context) (any, error) {
			calls.Add(1)
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("panics become errors", func(t *testing.T) {
		m := newTestManager(t, nil)
		_, err := m.GetOrCompute(context.Background(), "k", PriorityNormal, func(context.Context) (any, error) {
			panic("bad aggregate")
		})
		assert.EqualError(t, err, "panic: bad aggregate")
		assert.Equal(t, 0, m.Len())
	})
}

func TestManager_SingleFlight(t *testing.T) {
	m := newTestManager(t, nil)

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	const callers = 50
	var wg sync.WaitGroup
	results := make([]any, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.GetOrCompute(context.Background(), "same", PriorityNormal, fn)
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}
}

func TestManager_AbandonedWaitStillPopulates(t *testing.T) {
	m := newTestManager(t, nil)

	release := make(chan struct{})
	computeCtxErr := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := m.GetOrCompute(ctx, "slow", PriorityNormal, func(ctx context.Context) (any, error) {
			<-release
			computeCtxErr <- ctx.Err()
			return "done", nil
		})
		errCh <- err
	}()

	require.Eventually(t, func() bool { return m.Stats().Computations == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	assert.NoError(t, <-computeCtxErr, "computation must not observe caller cancellation")

	require.Eventually(t, func() bool {
		v, ok := m.Get("slow")
		return ok && v == "done"
	}, time.Second, time.Millisecond)
}

func TestManager_TTL(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(t, func(c *Config) {
		c.TTL = time.Minute
		c.Now = clock.Now
	})

	require.NoError(t, m.Set("k", "v", PriorityNormal))
	clock.Advance(59 * time.Second)
	v, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	entry, ok := m.Entry("k")
	require.True(t, ok)
	assert.Equal(t, clock.Now(), entry.LastAccess)
	assert.Equal(t, PriorityNormal, entry.Priority)

	clock.Advance(time.Second)
	_, ok = m.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len(), "expired entries are removed lazily")

	var calls atomic.Int32
	_, err := m.GetOrCompute(context.Background(), "k", PriorityNormal, func(context.Context) (any, error) {
		calls.Add(1)
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestManager_InvalidateAll(t *testing.T) {
	t.Run("clears entries", func(t *testing.T) {
		m := newTestManager(t, nil)
		for i := 0; i < 20; i++ {
			require.NoError(t, m.Set(fmt.Sprintf("k%d", i), i, PriorityNormal))
		}

		require.NoError(t, m.InvalidateAll(context.Background()))
		assert.Equal(t, 0, m.Len())
		_, ok := m.Get("k3")
		assert.False(t, ok)
		assert.Equal(t, uint64(1), m.Generation())
	})

	t.Run("in-flight results are discarded", func(t *testing.T) {
		m := newTestManager(t, nil)

		release := make(chan struct{})
		staleDone := make(chan any, 1)
		go func() {
			v, _ := m.GetOrCompute(context.Background(), "k", PriorityNormal, func(context.Context) (any, error) {
				<-release
				return "stale", nil
			})
			staleDone <- v
		}()
		require.Eventually(t, func() bool { return m.Stats().Computations == 1 }, time.Second, time.Millisecond)

		require.NoError(t, m.InvalidateAll(context.Background()))

		v, err := m.GetOrCompute(context.Background(), "k", PriorityNormal, constant("fresh"))
		require.NoError(t, err)
		assert.Equal(t, "fresh", v, "callers after invalidation must not join the stale computation")

		close(release)
		assert.Equal(t, "stale", <-staleDone)

		v, ok := m.Get("k")
		require.True(t, ok)
		assert.Equal(t, "fresh", v)
	})
}

func TestManager_CapacityEviction(t *testing.T) {
	m := newTestManager(t, func(c *Config) {
		c.Shards = 1
		c.ShardCapacity = 3
	})

	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, m.Set(k, k, PriorityNormal))
	}

	assert.Equal(t, 3, m.Len())
	_, ok := m.Entry("a")
	assert.False(t, ok)
	assert.Equal(t, uint64(1), m.Stats().Evictions)
}

func TestManager_HandleMemoryPressure(t *testing.T) {
	t.Run("low priority first", func(t *testing.T) {
		m := newTestManager(t, func(c *Config) { c.Shards = 1 })

		for i := 0; i < 5; i++ {
			require.NoError(t, m.Set(fmt.Sprintf("high%d", i), i, PriorityHigh))
			require.NoError(t, m.Set(fmt.Sprintf("low%d", i), i, PriorityLow))
		}

		assert.Equal(t, 5, m.HandleMemoryPressure())
		for i := 0; i < 5; i++ {
			_, ok := m.Entry(fmt.Sprintf("high%d", i))
			assert.True(t, ok)
			_, ok = m.Entry(fmt.Sprintf("low%d", i))
			assert.False(t, ok)
		}
	})

	t.Run("least recently used within a priority", func(t *testing.T) {
		m := newTestManager(t, func(c *Config) { c.Shards = 1 })

		for _, k := range []string{"a", "b", "c", "d"} {
			require.NoError(t, m.Set(k, k, PriorityNormal))
		}
		_, ok := m.Get("a")
		require.True(t, ok)

		assert.Equal(t, 2, m.HandleMemoryPressure())
		for k, want := range map[string]bool{"a": true, "b": false, "c": false, "d": true} {
			_, ok := m.Entry(k)
			assert.Equal(t, want, ok, k)
		}
	})

	t.Run("empty cache", func(t *testing.T) {
		m := newTestManager(t, nil)
		assert.Equal(t, 0, m.HandleMemoryPressure())
	})
}

func TestManager_PerformMaintenance(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(t, func(c *Config) {
		c.TTL = time.Minute
		c.Now = clock.Now
	})

	require.NoError(t, m.Set("old1", 1, PriorityNormal))
	require.NoError(t, m.Set("old2", 2, PriorityNormal))
	clock.Advance(45 * time.Second)
	require.NoError(t, m.Set("new", 3, PriorityNormal))
	clock.Advance(30 * time.Second)

	assert.Equal(t, 2, m.PerformMaintenance())
	assert.Equal(t, 0, m.PerformMaintenance())
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, uint64(2), m.Stats().Expirations)
}

func TestManager_Precompute(t *testing.T) {
	m := newTestManager(t, nil)
	require.NoError(t, m.Set("already", "fresh", PriorityLow))

	var (
		mu    sync.Mutex
		order []string
	)
	job := func(key string, priority Priority, err error) Job {
		return Job{Key: key, Priority: priority, Run: func(ctx context.Context) error {
			mu.Lock()
			order = append(order, key)
			mu.Unlock()
			if err != nil {
				return err
			}
			_, cerr := m.GetOrCompute(ctx, key, priority, constant(key))
			return cerr
		}}
	}

	sentinel := errors.New("no data")
	err := m.Precompute(context.Background(), []Job{
		job("low", PriorityLow, nil),
		job("already", PriorityHigh, nil),
		job("high", PriorityHigh, nil),
		job("broken", PriorityNormal, sentinel),
		job("normal", PriorityNormal, nil),
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, []string{"high", "broken", "normal", "low"}, order)
	for _, k := range []string{"high", "normal", "low"} {
		_, ok := m.Get(k)
		assert.True(t, ok, k)
	}
}

func TestManager_PrecomputeCancelled(t *testing.T) {
	m := newTestManager(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	err := m.Precompute(ctx, []Job{{Key: "k", Run: func(context.Context) error {
		ran.Store(true)
		return nil
	}}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran.Load())
}

func TestManager_ConcurrentKeys(t *testing.T) {
	m := newTestManager(t, func(c *Config) { c.ShardCapacity = 8 })

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (i*7+w)%64)
				v, err := m.GetOrCompute(context.Background(), key, Priority(i%3*40), constant(key))
				if !assert.NoError(t, err) || !assert.Equal(t, key, v) {
					return
				}
				if i%50 == 0 {
					m.HandleMemoryPressure()
					m.PerformMaintenance()
				}
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, m.Len(), DefaultShards*8)
}

func TestFetch(t *testing.T) {
	m := newTestManager(t, nil)

	v, err := Fetch(context.Background(), m, "n", PriorityNormal, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = Fetch(context.Background(), m, "n", PriorityNormal, func(context.Context) (string, error) {
		return "seven", nil
	})
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = Fetch[int](context.Background(), m, "x", PriorityNormal, nil)
	assert.ErrorIs(t, err, ErrNilCompute)
}
