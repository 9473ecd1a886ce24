// Package sessions defines the completed activity-session record and the
// adapters used to read records from the external record store.
//
// # Overview
//
// Records are owned by an external store; this package only projects them
// into an immutable Record value and exposes them through the Store interface.
// Only complete records (with an end time) take part in analytics.
//
// # Store Adapters
//
// MemoryStore: in-process store used by tests and demos
//
//	store := sessions.NewMemoryStore()
//	store.Add(record)
//
// SQLStore: database/sql adapter for sqlite3 and postgres
//
//	store, err := sessions.OpenSQLStore(ctx, sessions.SQLConfig{
//		Driver: sessions.DriverSQLite,
//		DSN:    "file:ruckstats.db?_busy_timeout=5000",
//	})
//
// Watcher: notifies a callback when a sqlite database file changes so derived
// analytics can be invalidated
//
//	w, err := sessions.NewWatcher(path, 500*time.Millisecond, repo.InvalidateCache, nil)
//	go w.Run(ctx)
//
// # Related Packages
//
//   - pkg/analytics: Aggregates records fetched through a Store
//   - pkg/period: Supplies the ranges passed to FetchCompleteSessions
package sessions
