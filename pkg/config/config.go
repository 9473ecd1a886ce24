package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/ruckstats/pkg/analytics"
	"github.com/platinummonkey/ruckstats/pkg/cache"
	"github.com/platinummonkey/ruckstats/pkg/chart"
	"github.com/platinummonkey/ruckstats/pkg/observability"
	"github.com/platinummonkey/ruckstats/pkg/sessions"
)

// EnvPrefix prefixes every environment variable read by this package
const EnvPrefix = "RUCKSTATS_"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Store         StoreConfig         `yaml:"store"`
	Cache         CacheConfig         `yaml:"cache"`
	Chart         ChartConfig         `yaml:"chart"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// StoreConfig selects and configures the record store
type StoreConfig struct {
	// Driver is "memory", "sqlite3" or "postgres"
	Driver      string        `yaml:"driver"`
	DSN         string        `yaml:"dsn"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`

	// WatchPath is a file whose changes invalidate the analytics cache,
	// normally the sqlite database. Empty disables watching.
	WatchPath     string        `yaml:"watch_path"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// SQL converts the store settings for sessions.OpenSQLStore
func (s StoreConfig) SQL() sessions.SQLConfig {
	return sessions.SQLConfig{
		Driver:      s.Driver,
		DSN:         s.DSN,
		MaxConns:    s.MaxConns,
		MinConns:    s.MinConns,
		Timeout:     s.Timeout,
		MaxLifetime: s.MaxLifetime,
		MaxIdleTime: s.MaxIdleTime,
	}
}

// CacheConfig holds analytics cache settings
type CacheConfig struct {
	Shards              int           `yaml:"shards"`
	ShardCapacity       int           `yaml:"shard_capacity"`
	TTL                 time.Duration `yaml:"ttl"`
	PressureFraction    float64       `yaml:"pressure_fraction"`
	PrecomputeWorkers   int           `yaml:"precompute_workers"`
	PrecomputeOnStart   bool          `yaml:"precompute_on_start"`
	MaintenanceSchedule string        `yaml:"maintenance_schedule"`
	// MemoryLimitMB sheds cache entries once the heap grows past it; 0 disables
	MemoryLimitMB int `yaml:"memory_limit_mb"`

	// Redis remote tier; empty RedisURL disables it
	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`
	RedisKeyPrefix  string `yaml:"redis_key_prefix"`
}

// Manager converts the settings for cache.New. The remote tier and logger
// are attached by the caller.
func (c CacheConfig) Manager() cache.Config {
	return cache.Config{
		Shards:            c.Shards,
		ShardCapacity:     c.ShardCapacity,
		TTL:               c.TTL,
		PressureFraction:  c.PressureFraction,
		PrecomputeWorkers: c.PrecomputeWorkers,
	}
}

// Redis converts the remote tier settings for cache.NewRedisClient
func (c CacheConfig) Redis() cache.RedisConfig {
	return cache.RedisConfig{
		URL:        c.RedisURL,
		Password:   c.RedisPassword,
		DB:         c.RedisDB,
		PoolSize:   c.RedisPoolSize,
		MaxRetries: c.RedisMaxRetries,
		KeyPrefix:  c.RedisKeyPrefix,
	}
}

// ChartConfig holds display series defaults
type ChartConfig struct {
	MaxDisplayPoints int    `yaml:"max_display_points"`
	Strategy         string `yaml:"strategy"`
	DefaultWeeks     int    `yaml:"default_weeks"`
	SamplerWorkers   int    `yaml:"sampler_workers"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel converts the settings for observability.InitOTel
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Driver:        "memory",
			MaxConns:      10,
			MinConns:      2,
			Timeout:       5 * time.Second,
			MaxLifetime:   30 * time.Minute,
			MaxIdleTime:   5 * time.Minute,
			WatchDebounce: 500 * time.Millisecond,
		},
		Cache: CacheConfig{
			Shards:              cache.DefaultShards,
			ShardCapacity:       cache.DefaultShardCapacity,
			TTL:                 cache.DefaultTTL,
			PressureFraction:    cache.DefaultPressureFraction,
			PrecomputeWorkers:   cache.DefaultPrecomputeWorkers,
			PrecomputeOnStart:   true,
			MaintenanceSchedule: cache.DefaultMaintenanceSchedule,
			RedisPoolSize:       10,
			RedisMaxRetries:     3,
			RedisKeyPrefix:      cache.DefaultKeyPrefix,
		},
		Chart: ChartConfig{
			MaxDisplayPoints: chart.DefaultMaxDisplayPoints,
			Strategy:         string(chart.StrategyAdaptive),
			DefaultWeeks:     analytics.DefaultWeeks,
			SamplerWorkers:   2,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "ruckstats",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig loads .env files, then the YAML file named by
// RUCKSTATS_CONFIG_FILE if any, then environment overrides.
func LoadConfig() (*Config, error) {
	// A missing .env is normal; values already in the environment win.
	_ = godotenv.Load()
	return Load(os.Getenv(EnvPrefix + "CONFIG_FILE"))
}

// Load builds the configuration from defaults, the optional YAML file at
// path and the environment, in that order, and validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields whose variable is set
func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("HOST", s.Host)
	s.Port = getEnv("PORT", s.Port)
	s.ReadTimeout = getEnvDuration("READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", s.ShutdownTimeout)

	st := &c.Store
	st.Driver = getEnv("STORE_DRIVER", st.Driver)
	st.DSN = getEnv("STORE_DSN", st.DSN)
	st.MaxConns = getEnvInt("STORE_MAX_CONNS", st.MaxConns)
	st.MinConns = getEnvInt("STORE_MIN_CONNS", st.MinConns)
	st.Timeout = getEnvDuration("STORE_TIMEOUT", st.Timeout)
	st.MaxLifetime = getEnvDuration("STORE_MAX_LIFETIME", st.MaxLifetime)
	st.MaxIdleTime = getEnvDuration("STORE_MAX_IDLE_TIME", st.MaxIdleTime)
	st.WatchPath = getEnv("STORE_WATCH_PATH", st.WatchPath)
	st.WatchDebounce = getEnvDuration("STORE_WATCH_DEBOUNCE", st.WatchDebounce)

	ca := &c.Cache
	ca.Shards = getEnvInt("CACHE_SHARDS", ca.Shards)
	ca.ShardCapacity = getEnvInt("CACHE_SHARD_CAPACITY", ca.ShardCapacity)
	ca.TTL = getEnvDuration("CACHE_TTL", ca.TTL)
	ca.PressureFraction = getEnvFloat("CACHE_PRESSURE_FRACTION", ca.PressureFraction)
	ca.PrecomputeWorkers = getEnvInt("CACHE_PRECOMPUTE_WORKERS", ca.PrecomputeWorkers)
	ca.PrecomputeOnStart = getEnvBool("CACHE_PRECOMPUTE_ON_START", ca.PrecomputeOnStart)
	ca.MaintenanceSchedule = getEnv("CACHE_MAINTENANCE_SCHEDULE", ca.MaintenanceSchedule)
	ca.MemoryLimitMB = getEnvInt("CACHE_MEMORY_LIMIT_MB", ca.MemoryLimitMB)
	ca.RedisURL = getEnv("REDIS_URL", ca.RedisURL)
	ca.RedisPassword = getEnv("REDIS_PASSWORD", ca.RedisPassword)
	ca.RedisDB = getEnvInt("REDIS_DB", ca.RedisDB)
	ca.RedisPoolSize = getEnvInt("REDIS_POOL_SIZE", ca.RedisPoolSize)
	ca.RedisMaxRetries = getEnvInt("REDIS_MAX_RETRIES", ca.RedisMaxRetries)
	ca.RedisKeyPrefix = getEnv("REDIS_KEY_PREFIX", ca.RedisKeyPrefix)

	ch := &c.Chart
	ch.MaxDisplayPoints = getEnvInt("CHART_MAX_DISPLAY_POINTS", ch.MaxDisplayPoints)
	ch.Strategy = getEnv("CHART_STRATEGY", ch.Strategy)
	ch.DefaultWeeks = getEnvInt("CHART_DEFAULT_WEEKS", ch.DefaultWeeks)
	ch.SamplerWorkers = getEnvInt("CHART_SAMPLER_WORKERS", ch.SamplerWorkers)

	o := &c.Observability
	o.LogLevel = getEnv("LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite3", "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store DSN is required for the %s driver", c.Store.Driver))
		}
		if c.Store.MaxConns < 1 {
			errs = append(errs, errors.New("store max conns must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid store driver: %q (must be memory, sqlite3, or postgres)", c.Store.Driver))
	}

	if c.Cache.Shards < 1 || c.Cache.ShardCapacity < 1 {
		errs = append(errs, errors.New("cache shards and shard capacity must be positive"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache TTL must be positive"))
	}
	if c.Cache.PressureFraction <= 0 || c.Cache.PressureFraction >= 1 {
		errs = append(errs, fmt.Errorf("cache pressure fraction %v not in (0, 1)", c.Cache.PressureFraction))
	}
	if c.Cache.PrecomputeWorkers < 1 {
		errs = append(errs, errors.New("cache precompute workers must be positive"))
	}
	if c.Cache.MemoryLimitMB < 0 {
		errs = append(errs, errors.New("cache memory limit must not be negative"))
	}

	if c.Chart.SamplerWorkers < 1 {
		errs = append(errs, errors.New("chart sampler workers must be positive"))
	}
	if c.Chart.MaxDisplayPoints < 2 {
		errs = append(errs, errors.New("chart max display points must be at least 2"))
	}
	if _, err := chart.ParseStrategy(c.Chart.Strategy); err != nil {
		errs = append(errs, err)
	}
	if c.Chart.DefaultWeeks < 1 || c.Chart.DefaultWeeks > analytics.MaxWeeks {
		errs = append(errs, fmt.Errorf("chart default weeks %d not in [1, %d]", c.Chart.DefaultWeeks, analytics.MaxWeeks))
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			errs = append(errs, errors.New("OpenTelemetry endpoint is required when OTel is enabled"))
		}
		if c.Observability.OTelServiceName == "" {
			errs = append(errs, errors.New("OpenTelemetry service name is required when OTel is enabled"))
		}
	}

	return errors.Join(errs...)
}

// getEnv returns RUCKSTATS_<key> or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
