// Package config loads ruckstats configuration.
//
// Values come from built-in defaults, then an optional YAML file, then
// RUCKSTATS_* environment variables. LoadConfig also reads a .env file
// from the working directory first and takes the YAML path from
// RUCKSTATS_CONFIG_FILE.
//
// # Configuration Structure
//
// Server settings:
//
//	RUCKSTATS_HOST="0.0.0.0"
//	RUCKSTATS_PORT="8080"
//	RUCKSTATS_READ_TIMEOUT="15s"
//	RUCKSTATS_SHUTDOWN_TIMEOUT="30s"
//
// Record store settings:
//
//	RUCKSTATS_STORE_DRIVER="sqlite3"  # memory, sqlite3, postgres
//	RUCKSTATS_STORE_DSN="/var/lib/ruckstats/sessions.db"
//	RUCKSTATS_STORE_MAX_CONNS="10"
//	RUCKSTATS_STORE_WATCH_PATH="/var/lib/ruckstats/sessions.db"
//
// Cache settings:
//
//	RUCKSTATS_CACHE_TTL="5m"
//	RUCKSTATS_CACHE_PRESSURE_FRACTION="0.5"
//	RUCKSTATS_CACHE_MAINTENANCE_SCHEDULE="@every 1m"
//	RUCKSTATS_REDIS_URL="redis://localhost:6379/0"
//
// Chart settings:
//
//	RUCKSTATS_CHART_MAX_DISPLAY_POINTS="200"
//	RUCKSTATS_CHART_STRATEGY="adaptive"  # simplify, peaks, adaptive
//
// Observability settings:
//
//	RUCKSTATS_LOG_LEVEL="info"  # debug, info, warn, error
//	RUCKSTATS_METRICS_ENABLED="true"
//	RUCKSTATS_OTEL_ENABLED="true"
//	RUCKSTATS_OTEL_ENDPOINT="otel-collector:4317"
//
// The same settings in YAML:
//
//	server:
//	  port: "8080"
//	store:
//	  driver: sqlite3
//	  dsn: /var/lib/ruckstats/sessions.db
//	cache:
//	  ttl: 5m
//	chart:
//	  strategy: adaptive
package config
