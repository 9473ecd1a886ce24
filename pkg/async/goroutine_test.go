package async

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ruckstats/pkg/observability"
)

func TestSafeGo(t *testing.T) {
	t.Run("runs the task", func(t *testing.T) {
		done := make(chan struct{})
		SafeGo(context.Background(), nil, time.Second, "test", func(ctx context.Context) error {
			close(done)
			return nil
		})

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("task did not run")
		}
	})

	t.Run("recovers panics", func(t *testing.T) {
		done := make(chan struct{})
		SafeGo(context.Background(), nil, time.Second, "test", func(ctx context.Context) error {
			defer close(done)
			panic("boom")
		})

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("task did not run")
		}
	})

	t.Run("applies timeout", func(t *testing.T) {
		errCh := make(chan error, 1)
		SafeGo(context.Background(), nil, 10*time.Millisecond, "test", func(ctx context.Context) error {
			<-ctx.Done()
			errCh <- ctx.Err()
			return ctx.Err()
		})

		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		case <-time.After(time.Second):
			t.Fatal("timeout not applied")
		}
	})
}

func TestWorkerPool_SingleWorkerPreservesOrder(t *testing.T) {
	pool := NewWorkerPool(context.Background(), PoolOptions{Workers: 1, Name: "ordered"})

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 20; i++ {
		i := i
		require.NoError(t, pool.Submit(context.Background(), func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}))
	}

	require.NoError(t, pool.Shutdown(time.Second))
	for i, v := range order {
		assert.Equal(t, i, v)
	}
	assert.Len(t, order, 20)
}

func TestWorkerPool_FailingTasksDoNotStopWorkers(t *testing.T) {
	var buf bytes.Buffer
	pool := NewWorkerPool(context.Background(), PoolOptions{
		Workers: 1,
		Name:    "flaky",
		Logger:  observability.NewLogger(observability.DebugLevel, &buf),
	})

	var ran atomic.Bool
	require.NoError(t, pool.Submit(context.Background(), func(context.Context) error { return errors.New("failed") }))
	require.NoError(t, pool.Submit(context.Background(), func(context.Context) error { panic("boom") }))
	require.NoError(t, pool.Submit(context.Background(), func(context.Context) error {
		ran.Store(true)
		return nil
	}))
	require.NoError(t, pool.Shutdown(time.Second))

	assert.True(t, ran.Load())
	assert.Contains(t, buf.String(), "task failed")
	assert.Contains(t, buf.String(), "PANIC recovered in task")
}

func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(context.Background(), PoolOptions{})
	require.NoError(t, pool.Shutdown(time.Second))

	assert.ErrorIs(t, pool.Submit(context.Background(), func(context.Context) error { return nil }), ErrPoolClosed)
	assert.NoError(t, pool.Shutdown(time.Second))
}

func TestWorkerPool_SubmitHonoursContext(t *testing.T) {
	pool := NewWorkerPool(context.Background(), PoolOptions{Workers: 1, QueueSize: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started
	require.NoError(t, pool.Submit(context.Background(), func(context.Context) error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Submit(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, pool.Shutdown(time.Second))
}

func TestWorkerPool_ShutdownTimeoutCancelsTasks(t *testing.T) {
	pool := NewWorkerPool(context.Background(), PoolOptions{Workers: 1})

	var cancelled atomic.Bool
	require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}))

	err := pool.Shutdown(20 * time.Millisecond)
	assert.Error(t, err)
	assert.True(t, cancelled.Load())
}
