package analytics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/ruckstats/pkg/cache"
	"github.com/platinummonkey/ruckstats/pkg/chart"
	"github.com/platinummonkey/ruckstats/pkg/observability"
	"github.com/platinummonkey/ruckstats/pkg/period"
	"github.com/platinummonkey/ruckstats/pkg/sessions"
)

// Weekly request bounds
const (
	DefaultWeeks = 12
	MaxWeeks     = 520
)

// Repository serves analytics for a record store through the cache
type Repository struct {
	store   sessions.Store
	cache   *cache.Manager
	now     func() time.Time
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// Option configures a Repository
type Option func(*Repository)

// WithClock sets the reference clock
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *observability.Logger) Option {
	return func(r *Repository) { r.logger = logger }
}

// WithMetrics records store and aggregation metrics on m
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Repository) { r.metrics = m }
}

// WithTracer overrides the tracer from the global provider
func WithTracer(t trace.Tracer) Option {
	return func(r *Repository) { r.tracer = t }
}

// NewRepository creates a repository over store, caching in c
func NewRepository(store sessions.Store, c *cache.Manager, opts ...Option) *Repository {
	r := &Repository{
		store: store,
		cache: c,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = observability.NopLogger()
	}
	if r.tracer == nil {
		r.tracer = observability.Tracer()
	}
	return r
}

// Cache keys
func snapshotKey(p period.Period) string { return "analytics:snapshot:" + string(p) }
func detailedKey(p period.Period) string { return "analytics:detailed:" + string(p) }
func weeklyKey(weeks int) string         { return "analytics:weekly:" + strconv.Itoa(weeks) }
func seriesKey(p period.Period, m SeriesMetric) string {
	return "analytics:series:" + string(p) + ":" + string(m)
}

const (
	recordsKey = "analytics:records"
	streakKey  = "analytics:streak"
)

func periodPriority(p period.Period) cache.Priority {
	switch p {
	case period.Weekly, period.Monthly:
		return cache.PriorityHigh
	case period.AllTime, period.LastWeek, period.LastMonth:
		return cache.PriorityNormal
	default:
		return cache.PriorityLow
	}
}

func (r *Repository) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// fetch loads the complete sessions of rng from the store
func (r *Repository) fetch(ctx context.Context, rng period.Range) (records []sessions.Record, err error) {
	ctx, span := r.startSpan(ctx, "sessions.FetchCompleteSessions",
		attribute.String("range", rng.String()))
	defer func() { endSpan(span, err) }()

	start := time.Now()
	records, err = r.store.FetchCompleteSessions(ctx, rng)
	r.metrics.ObserveStoreFetch(time.Since(start), len(records), err)
	if err != nil {
		r.logger.WithError(err).WithField("range", rng.String()).Warn("record store fetch failed")
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	span.SetAttributes(attribute.Int("sessions", len(records)))
	return sessions.CompleteOnly(records), nil
}

func (r *Repository) observe(operation string, start time.Time) {
	r.metrics.ObserveAggregation(operation, time.Since(start))
}

// FetchAnalyticsData returns the snapshot of p
func (r *Repository) FetchAnalyticsData(ctx context.Context, p period.Period) (snap *Snapshot, err error) {
	ctx, span := r.startSpan(ctx, "analytics.FetchAnalyticsData", attribute.String("period", string(p)))
	defer func() { endSpan(span, err) }()

	ref := r.now()
	rng, err := period.Resolve(p, ref)
	if err != nil {
		return nil, err
	}

	return cache.Fetch(ctx, r.cache, snapshotKey(p), periodPriority(p), func(ctx context.Context) (*Snapshot, error) {
		records, err := r.fetch(ctx, rng)
		if err != nil {
			return nil, err
		}

		streak, err := r.trainingStreak(ctx, ref)
		if err != nil {
			return nil, err
		}

		defer r.observe("summary", time.Now())
		s := Summarize(records, rng, ref)
		s.Period = p
		s.TrainingStreak = streak
		return &s, nil
	})
}

// trainingStreak is the streak as of ref over the whole history, so every
// period reports the same value.
func (r *Repository) trainingStreak(ctx context.Context, ref time.Time) (int, error) {
	rng := period.MustResolve(period.AllTime, ref)
	return cache.Fetch(ctx, r.cache, streakKey, cache.PriorityHigh, func(ctx context.Context) (int, error) {
		records, err := r.fetch(ctx, rng)
		if err != nil {
			return 0, err
		}

		defer r.observe("streak", time.Now())
		return TrainingStreak(records, ref), nil
	})
}

// FetchPersonalRecords returns the all-time personal records
func (r *Repository) FetchPersonalRecords(ctx context.Context) (pr *PersonalRecords, err error) {
	ctx, span := r.startSpan(ctx, "analytics.FetchPersonalRecords")
	defer func() { endSpan(span, err) }()

	rng := period.MustResolve(period.AllTime, r.now())

	return cache.Fetch(ctx, r.cache, recordsKey, cache.PriorityHigh, func(ctx context.Context) (*PersonalRecords, error) {
		records, err := r.fetch(ctx, rng)
		if err != nil {
			return nil, err
		}

		defer r.observe("personal_records", time.Now())
		out := BestRecords(records)
		return &out, nil
	})
}

// WeeksRange returns the range covering the last weeks weeks, the week of
// ref included: [StartOfWeek(ref) - (weeks-1) weeks, StartOfWeek(ref) + 1 week).
func WeeksRange(weeks int, ref time.Time) period.Range {
	current := period.StartOfWeek(ref)
	return period.Range{
		Start: current.AddDate(0, 0, -7*(weeks-1)),
		End:   current.AddDate(0, 0, 7),
	}
}

// FetchWeeklyAnalyticsData returns exactly weeks buckets, oldest first,
// ending with the current week.
func (r *Repository) FetchWeeklyAnalyticsData(ctx context.Context, weeks int) (buckets []WeeklyBucket, err error) {
	ctx, span := r.startSpan(ctx, "analytics.FetchWeeklyAnalyticsData", attribute.Int("weeks", weeks))
	defer func() { endSpan(span, err) }()

	if weeks < 1 || weeks > MaxWeeks {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidWeeks, weeks, MaxWeeks)
	}
	rng := WeeksRange(weeks, r.now())

	return cache.Fetch(ctx, r.cache, weeklyKey(weeks), cache.PriorityNormal, func(ctx context.Context) ([]WeeklyBucket, error) {
		records, err := r.fetch(ctx, rng)
		if err != nil {
			return nil, err
		}

		defer r.observe("weekly", time.Now())
		return WeeklyBuckets(records, rng), nil
	})
}

// FetchComparativeAnalytics fetches both snapshots concurrently and returns
// current with trends against comparison attached. The cached snapshots
// are not modified.
func (r *Repository) FetchComparativeAnalytics(ctx context.Context, current, comparison period.Period) (cur *Snapshot, prev *Snapshot, err error) {
	ctx, span := r.startSpan(ctx, "analytics.FetchComparativeAnalytics",
		attribute.String("current", string(current)),
		attribute.String("comparison", string(comparison)))
	defer func() { endSpan(span, err) }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := r.FetchAnalyticsData(gctx, current)
		cur = s
		return err
	})
	g.Go(func() error {
		s, err := r.FetchAnalyticsData(gctx, comparison)
		prev = s
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	defer r.observe("compare", time.Now())
	compared := Compare(*cur, *prev)
	return &compared, prev, nil
}

// FetchDetailedMetrics returns the distributions of p
func (r *Repository) FetchDetailedMetrics(ctx context.Context, p period.Period) (dm *DetailedMetrics, err error) {
	ctx, span := r.startSpan(ctx, "analytics.FetchDetailedMetrics", attribute.String("period", string(p)))
	defer func() { endSpan(span, err) }()

	rng, err := period.Resolve(p, r.now())
	if err != nil {
		return nil, err
	}

	return cache.Fetch(ctx, r.cache, detailedKey(p), cache.PriorityNormal, func(ctx context.Context) (*DetailedMetrics, error) {
		records, err := r.fetch(ctx, rng)
		if err != nil {
			return nil, err
		}

		defer r.observe("detailed", time.Now())
		out := Detailed(records, rng)
		out.Period = p
		return &out, nil
	})
}

// FetchSeries returns the full per-session series of metric over p. The
// caller downsamples it for display.
func (r *Repository) FetchSeries(ctx context.Context, p period.Period, metric SeriesMetric) (points []chart.Point, err error) {
	ctx, span := r.startSpan(ctx, "analytics.FetchSeries",
		attribute.String("period", string(p)),
		attribute.String("metric", string(metric)))
	defer func() { endSpan(span, err) }()

	if _, err := ParseSeriesMetric(string(metric)); err != nil {
		return nil, err
	}
	rng, err := period.Resolve(p, r.now())
	if err != nil {
		return nil, err
	}

	return cache.Fetch(ctx, r.cache, seriesKey(p, metric), cache.PriorityLow, func(ctx context.Context) ([]chart.Point, error) {
		records, err := r.fetch(ctx, rng)
		if err != nil {
			return nil, err
		}

		defer r.observe("series", time.Now())
		return Series(records, metric), nil
	})
}

// InvalidateCache drops every cached result. Call it whenever the record
// set changes.
func (r *Repository) InvalidateCache(ctx context.Context) error {
	if err := r.cache.InvalidateAll(ctx); err != nil {
		r.logger.WithError(err).Error("cache invalidation incomplete")
		return err
	}
	return nil
}

// PrecomputeAnalytics warms the cache in the background pool: snapshots
// for every period, personal records and the default weekly view.
func (r *Repository) PrecomputeAnalytics(ctx context.Context) error {
	jobs := make([]cache.Job, 0, len(period.All())+2)
	for _, p := range period.All() {
		p := p
		jobs = append(jobs, cache.Job{
			Key:      snapshotKey(p),
			Priority: periodPriority(p),
			Run: func(ctx context.Context) error {
				_, err := r.FetchAnalyticsData(ctx, p)
				return err
			},
		})
	}
	jobs = append(jobs,
		cache.Job{
			Key:      recordsKey,
			Priority: cache.PriorityHigh,
			Run: func(ctx context.Context) error {
				_, err := r.FetchPersonalRecords(ctx)
				return err
			},
		},
		cache.Job{
			Key:      weeklyKey(DefaultWeeks),
			Priority: cache.PriorityNormal,
			Run: func(ctx context.Context) error {
				_, err := r.FetchWeeklyAnalyticsData(ctx, DefaultWeeks)
				return err
			},
		},
	)

	start := time.Now()
	err := r.cache.Precompute(ctx, jobs)
	r.logger.WithField("jobs", len(jobs)).
		WithField("duration", time.Since(start).String()).
		Info("analytics precompute finished")
	return err
}

// PerformCacheMaintenance removes expired cache entries
func (r *Repository) PerformCacheMaintenance() int {
	return r.cache.PerformMaintenance()
}

// HandleMemoryPressure sheds low-priority cache entries
func (r *Repository) HandleMemoryPressure() int {
	return r.cache.HandleMemoryPressure()
}

// CacheStats exposes the cache counters
func (r *Repository) CacheStats() cache.Stats {
	return r.cache.Stats()
}
