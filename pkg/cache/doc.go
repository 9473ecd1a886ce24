// Package cache provides the analytics result cache: a sharded LRU with
// TTL freshness, single-flight computation, generation-based invalidation,
// priority-aware shrinking under memory pressure and an optional redis tier.
//
// # Usage
//
//	mgr, err := cache.New(cache.DefaultConfig())
//	snapshot, err := cache.Fetch(ctx, mgr, "analytics:snapshot:monthly", cache.PriorityHigh,
//		func(ctx context.Context) (*analytics.Snapshot, error) {
//			return compute(ctx)
//		})
//
// Concurrent callers of the same key share one computation. A caller that
// gives up (ctx cancelled) does not cancel the computation; its result is
// still cached for the next reader. Errors are never cached.
//
// # Invalidation
//
// InvalidateAll clears every shard and the remote tier and bumps a
// generation counter. Computations that started earlier finish but do not
// store their results.
//
// # Maintenance
//
// PerformMaintenance sweeps expired entries and HandleMemoryPressure evicts
// low-priority, least recently used entries. Scheduler runs maintenance on
// a cron schedule.
package cache
