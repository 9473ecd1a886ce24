package sessions

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWatcher_RequiresCallback(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "db.sqlite"), 0, nil, nil)
	assert.Error(t, err)
}

func TestWatcher_DebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "ruckstats.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("v1"), 0o644))

	var calls atomic.Int32
	w, err := NewWatcher(dbPath, 50*time.Millisecond, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(dbPath, []byte("burst"), 0o644))
	}
	require.NoError(t, os.WriteFile(dbPath+"-wal", []byte("wal"), 0o644))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	// Let the burst settle, then check unrelated files are ignored.
	time.Sleep(200 * time.Millisecond)
	before := calls.Load()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, before, calls.Load())
}
