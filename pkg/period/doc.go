// Package period resolves named reporting periods into half-open date ranges.
//
// # Overview
//
// A Period is a symbolic window such as "weekly" or "last-month". Resolve maps
// a Period and a reference instant to a Range [Start, End). Resolution is pure:
// the caller supplies the reference instant, nothing here reads the clock.
//
// # Periods
//
//	weekly         Monday 00:00 of the current week .. ref
//	monthly        first day of the current month .. ref
//	last-3-months  ref - 3 months .. ref
//	last-year      ref - 1 year .. ref
//	all-time       MinTime .. ref
//	last-week      the previous calendar week
//	last-month     the previous calendar month
//
// # Usage Example
//
//	rng, err := period.Resolve(period.Monthly, time.Now())
//	if err != nil {
//		return err
//	}
//	sessions, err := store.FetchCompleteSessions(ctx, rng)
//
// # Related Packages
//
//   - pkg/analytics: Uses ranges to scope aggregation
package period
