// Package async provides panic-safe background execution for ruckstats:
// cache precomputation and chart recomputation run here so they never
// block foreground reads.
//
// SafeGo runs a single fire-and-forget task with a timeout:
//
//	async.SafeGo(ctx, logger, time.Minute, "precompute", func(ctx context.Context) error {
//		return repo.PrecomputeAnalytics(ctx)
//	})
//
// WorkerPool is a long-lived pool. With one worker it runs tasks strictly in
// submission order, which the cache relies on for priority-ordered warming:
//
//	pool := async.NewWorkerPool(ctx, async.PoolOptions{Workers: 1, Name: "precompute"})
//	defer pool.Shutdown(5 * time.Second)
//
//	err := pool.Submit(ctx, func(ctx context.Context) error {
//		return warm(ctx, key)
//	})
//
// Task errors and recovered panics are logged on the pool logger.
package async
