package cli

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/ruckstats/pkg/analytics"
	"github.com/platinummonkey/ruckstats/pkg/async"
	"github.com/platinummonkey/ruckstats/pkg/cache"
	"github.com/platinummonkey/ruckstats/pkg/chart"
	"github.com/platinummonkey/ruckstats/pkg/config"
	"github.com/platinummonkey/ruckstats/pkg/httpapi"
	"github.com/platinummonkey/ruckstats/pkg/observability"
	"github.com/platinummonkey/ruckstats/pkg/sessions"
)

// Version is reported by health checks and telemetry
var Version = "dev"

// dbStatsSchedule is how often pool statistics are copied into metrics
const dbStatsSchedule = "@every 15s"

// memoryCheckSchedule is how often the heap is compared to the cache memory limit
const memoryCheckSchedule = "@every 30s"

// precomputeTimeout bounds one warm-up pass
const precomputeTimeout = 5 * time.Minute

// samplerDrainTimeout bounds waiting for queued chart sampling on shutdown
const samplerDrainTimeout = 5 * time.Second

func newServeCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "serve",
		Description: "Run the analytics HTTP API",
		Flags:       flag.NewFlagSet("serve", flag.ContinueOnError),
	}
	configFile := cmd.Flags.String("config", "", "YAML config file (overrides RUCKSTATS_CONFIG_FILE)")
	addr := cmd.Flags.String("addr", "", "listen address host:port (overrides the config)")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		var (
			cfg *config.Config
			err error
		)
		if *configFile != "" {
			cfg, err = config.Load(*configFile)
		} else {
			cfg, err = config.LoadConfig()
		}
		if err != nil {
			return err
		}

		svc, err := newApp(context.Background(), cfg, out)
		if err != nil {
			return err
		}
		if *addr != "" {
			svc.server.Addr = *addr
		}
		return svc.run(context.Background())
	}
	return cmd
}

// app is the running service and everything it must release on shutdown
type app struct {
	cfg     *config.Config
	logger  *observability.Logger
	bgLog   *logrus.Logger
	otel    *observability.OTelProviders
	metrics *observability.Metrics

	store     sessions.Store
	db        *sql.DB
	rdb       *redis.Client
	cache     *cache.Manager
	repo      *analytics.Repository
	scheduler *cache.Scheduler
	watcher   *sessions.Watcher
	sampler   *async.WorkerPool
	server    *http.Server
	closers   []observability.ShutdownFunc
}

// newApp wires the record store, cache tiers, repository and HTTP server.
// On error everything opened so far is closed again.
func newApp(ctx context.Context, cfg *config.Config, out io.Writer) (_ *app, err error) {
	a := &app{
		cfg:    cfg,
		logger: observability.NewLogger(cfg.Observability.Level(), out),
		bgLog:  logrus.New(),
	}
	a.bgLog.SetOutput(out)
	a.bgLog.SetFormatter(&logrus.JSONFormatter{})
	if lvl, perr := logrus.ParseLevel(cfg.Observability.LogLevel); perr == nil {
		a.bgLog.SetLevel(lvl)
	}

	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.otel, err = observability.InitOTel(ctx, cfg.Observability.OTel(), a.logger)
	if err != nil {
		return nil, err
	}
	if a.otel != nil {
		a.closers = append(a.closers, func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, a.otel, a.logger)
		})
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = observability.NewMetrics(registry)

	if err = a.openStore(ctx); err != nil {
		return nil, err
	}

	cacheCfg := cfg.Cache.Manager()
	cacheCfg.Logger = a.logger.WithField("component", "cache")
	if cfg.Cache.RedisURL != "" {
		a.rdb, err = cache.NewRedisClient(ctx, cfg.Cache.Redis())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return a.rdb.Close() })
		cacheCfg.Remote = cache.NewRedisStore(a.rdb, cfg.Cache.RedisKeyPrefix)
	}

	a.cache, err = cache.New(cacheCfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.cache.Close() })
	registry.MustRegister(cache.NewCollector(a.cache))

	a.repo = analytics.NewRepository(a.store, a.cache,
		analytics.WithLogger(a.logger.WithField("component", "analytics")),
		analytics.WithMetrics(a.metrics))

	if err = a.startBackground(); err != nil {
		return nil, err
	}

	var health *observability.HealthChecker
	if a.rdb != nil {
		health = observability.NewHealthChecker(a.db, a.rdb, Version)
	} else {
		health = observability.NewHealthChecker(a.db, nil, Version)
	}

	a.sampler = async.NewWorkerPool(context.Background(), async.PoolOptions{
		Workers: cfg.Chart.SamplerWorkers,
		Name:    "chart sampler",
		Logger:  a.logger,
	})
	a.closers = append(a.closers, func(context.Context) error { return a.sampler.Shutdown(samplerDrainTimeout) })

	strategy, _ := chart.ParseStrategy(cfg.Chart.Strategy)
	api := httpapi.NewServer(a.repo, httpapi.Options{
		Logger:           a.logger,
		Metrics:          a.metrics,
		Health:           health,
		Gatherer:         registry,
		MaxDisplayPoints: cfg.Chart.MaxDisplayPoints,
		Strategy:         strategy,
		DefaultWeeks:     cfg.Chart.DefaultWeeks,
		Sampler:          a.sampler,
	})

	a.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	if a.cfg.Store.Driver == "memory" {
		mem := sessions.NewMemoryStore()
		mem.OnChange(func() {
			if err := a.repo.InvalidateCache(context.Background()); err != nil {
				a.logger.WithError(err).Warn("cache invalidation after store change failed")
			}
		})
		a.store = mem
		return nil
	}

	store, err := sessions.OpenSQLStore(ctx, a.cfg.Store.SQL())
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	a.store = store
	a.db = store.DB()
	return nil
}

// startBackground starts the cron jobs and the database watcher
func (a *app) startBackground() error {
	var err error
	a.scheduler, err = cache.NewScheduler(a.cache, a.cfg.Cache.MaintenanceSchedule, a.bgLog)
	if err != nil {
		return err
	}
	if a.db != nil {
		err = a.scheduler.AddJob(dbStatsSchedule, "db stats", func(context.Context) error {
			a.metrics.ObserveDBStats(a.db.Stats())
			return nil
		})
		if err != nil {
			return err
		}
	}
	if a.cfg.Cache.MemoryLimitMB > 0 {
		err = a.scheduler.AddJob(memoryCheckSchedule, "memory watchdog", func(context.Context) error {
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			a.shedIfOverLimit(ms.HeapAlloc)
			return nil
		})
		if err != nil {
			return err
		}
	}
	a.scheduler.Start()
	a.closers = append(a.closers, a.scheduler.Stop)

	if a.cfg.Store.WatchPath != "" {
		a.watcher, err = sessions.NewWatcher(a.cfg.Store.WatchPath, a.cfg.Store.WatchDebounce, a.repo.InvalidateCache, a.bgLog)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func(context.Context) error { return a.watcher.Close() })
	}
	return nil
}

// shedIfOverLimit evicts low-priority cache entries when heapBytes exceeds
// the configured memory limit and returns how many it evicted
func (a *app) shedIfOverLimit(heapBytes uint64) int {
	limit := uint64(a.cfg.Cache.MemoryLimitMB) << 20
	if limit == 0 || heapBytes <= limit {
		return 0
	}

	evicted := a.repo.HandleMemoryPressure()
	a.bgLog.WithFields(logrus.Fields{
		"heap_bytes":  heapBytes,
		"limit_bytes": limit,
		"evicted":     evicted,
	}).Warn("heap over cache memory limit")
	return evicted
}

// run serves until SIGINT/SIGTERM or ctx ends, then shuts everything down
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.watcher != nil {
		go func() {
			defer observability.RecoverPanic(a.logger, "database watcher")
			a.watcher.Run(ctx)
		}()
	}
	if a.cfg.Cache.PrecomputeOnStart {
		async.SafeGo(ctx, a.logger, precomputeTimeout, "precompute analytics", a.repo.PrecomputeAnalytics)
	}

	sm := observability.NewShutdownManager(a.logger, a.server, a.cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(context.Context) error {
		cancel()
		return nil
	})
	for _, fn := range a.closers {
		sm.RegisterShutdownFunc(fn)
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.WithField("addr", a.server.Addr).Info("ruckstats API listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
	}()

	shutdownErr := sm.WaitForShutdown(ctx)
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server failed: %w", err)
	default:
		return shutdownErr
	}
}

// close releases resources in reverse order of acquisition
func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.WithError(err).Warn("cleanup failed")
		}
	}
	a.closers = nil
}
