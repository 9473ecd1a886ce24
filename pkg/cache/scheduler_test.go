package cache

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestScheduler(t *testing.T) {
	m := newTestManager(t, nil)

	s, err := NewScheduler(m, "", quietLogger())
	require.NoError(t, err)

	var runs atomic.Int32
	require.NoError(t, s.AddJob("@every 1s", "counter", func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.NoError(t, s.AddJob("@every 1s", "panicky", func(context.Context) error {
		panic("boom")
	}))

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestScheduler_InvalidSpec(t *testing.T) {
	m := newTestManager(t, nil)

	_, err := NewScheduler(m, "not a schedule", quietLogger())
	assert.Error(t, err)

	s, err := NewScheduler(m, "", nil)
	require.NoError(t, err)
	assert.Error(t, s.AddJob("every now and then", "bad", func(context.Context) error { return nil }))
}
