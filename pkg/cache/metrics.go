package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports Manager statistics to Prometheus
type Collector struct {
	manager *Manager

	hits         *prometheus.Desc
	misses       *prometheus.Desc
	computations *prometheus.Desc
	evictions    *prometheus.Desc
	expirations  *prometheus.Desc
	items        *prometheus.Desc
	generation   *prometheus.Desc
}

// NewCollector creates a collector for m
func NewCollector(m *Manager) *Collector {
	return &Collector{
		manager:      m,
		hits:         prometheus.NewDesc("ruckstats_cache_hits_total", "Total number of fresh cache hits", nil, nil),
		misses:       prometheus.NewDesc("ruckstats_cache_misses_total", "Total number of cache misses, including expired entries", nil, nil),
		computations: prometheus.NewDesc("ruckstats_cache_computations_total", "Total number of values computed after a miss", nil, nil),
		evictions:    prometheus.NewDesc("ruckstats_cache_evictions_total", "Total number of entries evicted by capacity or memory pressure", nil, nil),
		expirations:  prometheus.NewDesc("ruckstats_cache_expirations_total", "Total number of expired entries removed", nil, nil),
		items:        prometheus.NewDesc("ruckstats_cache_items", "Number of entries currently held", nil, nil),
		generation:   prometheus.NewDesc("ruckstats_cache_generation", "Number of full invalidations", nil, nil),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.computations
	ch <- c.evictions
	ch <- c.expirations
	ch <- c.items
	ch <- c.generation
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.manager.Stats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.computations, prometheus.CounterValue, float64(s.Computations))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions))
	ch <- prometheus.MustNewConstMetric(c.expirations, prometheus.CounterValue, float64(s.Expirations))
	ch <- prometheus.MustNewConstMetric(c.items, prometheus.GaugeValue, float64(s.Items))
	ch <- prometheus.MustNewConstMetric(c.generation, prometheus.GaugeValue, float64(s.Generation))
}
