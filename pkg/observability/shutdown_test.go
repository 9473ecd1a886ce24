package observability

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdownManager(t *testing.T) {
	t.Run("runs every function", func(t *testing.T) {
		sm := NewShutdownManager(NopLogger(), nil, time.Second)
		var calls atomic.Int32
		for i := 0; i < 3; i++ {
			sm.RegisterShutdownFunc(func(context.Context) error {
				calls.Add(1)
				return nil
			})
		}

		assert.NoError(t, sm.Shutdown())
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("reports errors", func(t *testing.T) {
		sm := NewShutdownManager(NopLogger(), nil, time.Second)
		sentinel := errors.New("flush failed")
		sm.RegisterShutdownFunc(func(context.Context) error { return sentinel })

		assert.ErrorIs(t, sm.Shutdown(), sentinel)
	})

	t.Run("times out", func(t *testing.T) {
		sm := NewShutdownManager(NopLogger(), nil, 20*time.Millisecond)
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			time.Sleep(200 * time.Millisecond)
			return nil
		})

		assert.EqualError(t, sm.Shutdown(), "shutdown timeout reached")
	})

	t.Run("context cancellation triggers shutdown", func(t *testing.T) {
		sm := NewShutdownManager(NopLogger(), nil, time.Second)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.NoError(t, sm.WaitForShutdown(ctx))
	})
}
