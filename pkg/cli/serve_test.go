package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ruckstats/pkg/config"
	"github.com/platinummonkey/ruckstats/pkg/sessions"
)

func TestNewApp_MemoryStore(t *testing.T) {
	cfg := config.Default()
	var logs bytes.Buffer

	a, err := newApp(context.Background(), cfg, &logs)
	require.NoError(t, err)
	t.Cleanup(func() { a.close(context.Background()) })

	assert.Nil(t, a.db)
	assert.Equal(t, "0.0.0.0:8080", a.server.Addr)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		a.server.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	assert.Equal(t, http.StatusOK, get("/health/ready").Code)
	assert.Equal(t, http.StatusOK, get("/api/v1/analytics/all-time").Code)
	// the snapshot and the history streak it embeds
	assert.Equal(t, 2, a.repo.CacheStats().Items)

	// store mutations invalidate the cache
	mem, ok := a.store.(*sessions.MemoryStore)
	require.True(t, ok)
	mem.Add(record(1, 5000, 20, 10))
	assert.Zero(t, a.repo.CacheStats().Items)
	assert.EqualValues(t, 1, a.repo.CacheStats().Generation)

	w := get("/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ruckstats_cache_items")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestNewApp_SQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sessions.db")

	cfg := config.Default()
	cfg.Store.Driver = sessions.DriverSQLite
	cfg.Store.DSN = dbPath
	cfg.Store.WatchPath = dbPath
	require.NoError(t, cfg.Validate())

	a, err := newApp(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)
	t.Cleanup(func() { a.close(context.Background()) })

	require.NotNil(t, a.db)
	require.NotNil(t, a.watcher)

	w := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "record_store")
}

func TestNewApp_InvalidSchedule(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.MaintenanceSchedule = "every now and then"

	_, err := newApp(context.Background(), cfg, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestServeCommand_BadConfigFile(t *testing.T) {
	_, err := run(t, "serve", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestNewApp_MemoryWatchdog(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.MemoryLimitMB = 64
	var logs bytes.Buffer

	a, err := newApp(context.Background(), cfg, &logs)
	require.NoError(t, err)
	t.Cleanup(func() { a.close(context.Background()) })
	require.NotNil(t, a.sampler)

	mem, ok := a.store.(*sessions.MemoryStore)
	require.True(t, ok)
	mem.Add(record(1, 5000, 20, 10), record(2, 6000, 20, 10))

	for _, path := range []string{"/api/v1/analytics/all-time", "/api/v1/series/all-time/distance"} {
		w := httptest.NewRecorder()
		a.server.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code, path)
	}
	before := a.repo.CacheStats().Items
	require.Positive(t, before)

	assert.Zero(t, a.shedIfOverLimit(32<<20), "under the limit")
	assert.Equal(t, before, a.repo.CacheStats().Items)

	evicted := a.shedIfOverLimit(65 << 20)
	assert.Positive(t, evicted)
	assert.Equal(t, before-evicted, a.repo.CacheStats().Items)
	assert.Contains(t, logs.String(), "heap over cache memory limit")
}
