package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/ruckstats/pkg/analytics"
	"github.com/platinummonkey/ruckstats/pkg/async"
	"github.com/platinummonkey/ruckstats/pkg/chart"
	"github.com/platinummonkey/ruckstats/pkg/httputil"
	"github.com/platinummonkey/ruckstats/pkg/observability"
	"github.com/platinummonkey/ruckstats/pkg/period"
)

// Options configures a Server. Zero values fall back to package defaults.
type Options struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Health  *observability.HealthChecker

	// Gatherer backs /metrics; nil leaves the route out
	Gatherer prometheus.Gatherer

	MaxDisplayPoints int
	Strategy         chart.Strategy
	DefaultWeeks     int

	// Sampler runs series downsampling off the request goroutines; nil
	// samples inline
	Sampler *async.WorkerPool
}

// Server exposes the analytics repository as a JSON API
type Server struct {
	repo   *analytics.Repository
	opts   Options
	router *mux.Router
}

// NewServer builds the router for repo
func NewServer(repo *analytics.Repository, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.Health == nil {
		opts.Health = observability.NewHealthChecker(nil, nil, "")
	}
	if opts.MaxDisplayPoints < 2 {
		opts.MaxDisplayPoints = chart.DefaultMaxDisplayPoints
	}
	if opts.Strategy == "" {
		opts.Strategy = chart.StrategyAdaptive
	}
	if opts.DefaultWeeks < 1 {
		opts.DefaultWeeks = analytics.DefaultWeeks
	}

	s := &Server{
		repo:   repo,
		opts:   opts,
		router: mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(observability.HTTPMetricsMiddleware(s.opts.Metrics, httputil.RouteTemplate))

	r.HandleFunc("/health/live", s.opts.Health.Liveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.opts.Health.Readiness).Methods(http.MethodGet)
	if s.opts.Gatherer != nil {
		r.Handle("/metrics", observability.MetricsHandler(s.opts.Gatherer)).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/analytics/{period}", s.getAnalytics).Methods(http.MethodGet)
	api.HandleFunc("/records", s.getRecords).Methods(http.MethodGet)
	api.HandleFunc("/weekly", s.getWeekly).Methods(http.MethodGet)
	api.HandleFunc("/compare", s.getCompare).Methods(http.MethodGet)
	api.HandleFunc("/detailed/{period}", s.getDetailed).Methods(http.MethodGet)
	api.HandleFunc("/series/{period}/{metric}", s.getSeries).Methods(http.MethodGet)
	api.HandleFunc("/cache/stats", s.getCacheStats).Methods(http.MethodGet)
	api.HandleFunc("/cache/invalidate", s.postInvalidate).Methods(http.MethodPost)
	api.HandleFunc("/cache/maintenance", s.postMaintenance).Methods(http.MethodPost)
	api.HandleFunc("/cache/pressure", s.postPressure).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "no route for "+r.URL.Path)
	})
}

// Handler returns the instrumented HTTP handler
func (s *Server) Handler() http.Handler {
	chain := httputil.Chain(
		httputil.RequestIDMiddleware(s.opts.Logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
	)
	return otelhttp.NewHandler(chain(s.router), "ruckstats.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}

// writeError maps repository errors to status codes
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, analytics.ErrStoreUnavailable), errors.Is(err, async.ErrPoolClosed):
		httputil.WriteServiceUnavailable(w, err.Error())
	case errors.Is(err, period.ErrUnknownPeriod),
		errors.Is(err, analytics.ErrInvalidWeeks),
		errors.Is(err, analytics.ErrUnknownMetric):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httputil.WriteErrorMessage(w, http.StatusGatewayTimeout, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("analytics request failed")
		httputil.WriteInternalError(w, err)
	}
}
