package cache

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	m := newTestManager(t, nil)
	require.NoError(t, m.Set("k", 1, PriorityNormal))
	_, _ = m.Get("k")
	_, _ = m.Get("missing")

	collector := NewCollector(m)
	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(collector))

	assert.Equal(t, 7, testutil.CollectAndCount(collector))

	expected := `
# HELP ruckstats_cache_hits_total Total number of fresh cache hits
# TYPE ruckstats_cache_hits_total counter
ruckstats_cache_hits_total 1
# HELP ruckstats_cache_items Number of entries currently held
# TYPE ruckstats_cache_items gauge
ruckstats_cache_items 1
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"ruckstats_cache_hits_total", "ruckstats_cache_items"))

	stats := m.Stats()
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}
