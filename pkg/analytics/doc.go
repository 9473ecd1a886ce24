// Package analytics computes training analytics from completed sessions.
//
// # Overview
//
// The engine half is pure: Summarize, PersonalRecords, TrainingStreak,
// Trend/Compare, WeeklyBuckets, Detailed and Series take records and return
// values without I/O. Repository wires the engine to a sessions.Store and a
// cache.Manager and is the API the HTTP and CLI layers use.
//
// # Numeric Policy
//
// Totals are plain sums over every complete session, so a NaN or infinite
// field poisons the total it feeds; Snapshot.Anomalies counts such sessions.
// Finite sums that overflow saturate at ±math.MaxFloat64. Averages, extrema,
// personal records, trends, histograms, correlation and consistency skip
// non-finite values and are always finite.
//
// # Usage Example
//
//	repo := analytics.NewRepository(store, cacheManager,
//		analytics.WithLogger(logger),
//		analytics.WithMetrics(metrics),
//	)
//	snapshot, err := repo.FetchAnalyticsData(ctx, period.Monthly)
//	if errors.Is(err, analytics.ErrStoreUnavailable) {
//		// retry later
//	}
//
// # Related Packages
//
//   - pkg/period: Period resolution
//   - pkg/sessions: Record model and stores
//   - pkg/cache: Result cache
//   - pkg/chart: Series downsampling
package analytics
