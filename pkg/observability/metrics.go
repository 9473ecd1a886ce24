package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics of the analytics pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Record store metrics
	StoreFetchTotal    *prometheus.CounterVec
	StoreFetchDuration prometheus.Histogram
	StoreRecordsLoaded prometheus.Histogram

	// Engine metrics
	AggregationDuration *prometheus.HistogramVec

	// Sampler metrics
	SamplerDuration  *prometheus.HistogramVec
	SamplerReduction *prometheus.HistogramVec

	// Database pool metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge
	DBWaitCount        prometheus.Gauge
}

// NewMetrics creates and registers all metrics on registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ruckstats_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ruckstats_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ruckstats_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 7),
			},
			[]string{"method", "route"},
		),

		StoreFetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ruckstats_store_fetch_total",
				Help: "Total number of session fetches from the record store",
			},
			[]string{"status"},
		),
		StoreFetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ruckstats_store_fetch_duration_seconds",
				Help:    "Record store fetch duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		StoreRecordsLoaded: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ruckstats_store_records_loaded",
				Help:    "Number of complete sessions returned per fetch",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),

		AggregationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ruckstats_aggregation_duration_seconds",
				Help:    "Time spent aggregating sessions, by operation",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"operation"},
		),

		SamplerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ruckstats_sampler_duration_seconds",
				Help:    "Time spent downsampling a series, by strategy",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
			[]string{"strategy"},
		),
		SamplerReduction: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ruckstats_sampler_reduction_ratio",
				Help:    "Output points divided by input points, by strategy",
				Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
			},
			[]string{"strategy"},
		),

		DBConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ruckstats_db_connections_open",
			Help: "Number of open record store connections",
		}),
		DBConnectionsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ruckstats_db_connections_in_use",
			Help: "Number of record store connections in use",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ruckstats_db_connections_idle",
			Help: "Number of idle record store connections",
		}),
		DBWaitCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ruckstats_db_wait_count",
			Help: "Total number of connections waited for",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.StoreFetchTotal,
		m.StoreFetchDuration,
		m.StoreRecordsLoaded,
		m.AggregationDuration,
		m.SamplerDuration,
		m.SamplerReduction,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
		m.DBWaitCount,
	)

	return m
}

// ObserveStoreFetch records one record store round trip
func (m *Metrics) ObserveStoreFetch(d time.Duration, records int, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StoreFetchTotal.WithLabelValues(status).Inc()
	m.StoreFetchDuration.Observe(d.Seconds())
	if err == nil {
		m.StoreRecordsLoaded.Observe(float64(records))
	}
}

// ObserveAggregation records the duration of an engine operation
func (m *Metrics) ObserveAggregation(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.AggregationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveSampling records a downsampling pass
func (m *Metrics) ObserveSampling(strategy string, in, out int, d time.Duration) {
	if m == nil {
		return
	}
	m.SamplerDuration.WithLabelValues(strategy).Observe(d.Seconds())
	if in > 0 {
		m.SamplerReduction.WithLabelValues(strategy).Observe(float64(out) / float64(in))
	}
}

// ObserveDBStats copies connection pool statistics into the gauges
func (m *Metrics) ObserveDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBWaitCount.Set(float64(stats.WaitCount))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// RouteLabelFunc maps a request to a low-cardinality route label
type RouteLabelFunc func(r *http.Request) string

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// When route is nil the raw URL path is used as the label.
func HTTPMetricsMiddleware(metrics *Metrics, route RouteLabelFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			label := r.URL.Path
			if route != nil {
				label = route(r)
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, label, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, label).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, label).Observe(float64(rw.bytesWritten))
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
