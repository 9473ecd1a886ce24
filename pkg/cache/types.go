package cache

import (
	"context"
	"time"

	"github.com/platinummonkey/ruckstats/pkg/observability"
)

// Priority orders entries for precomputation (high first) and for eviction
// under memory pressure (low first).
type Priority int

const (
	PriorityLow    Priority = 10
	PriorityNormal Priority = 50
	PriorityHigh   Priority = 90
)

// Defaults
const (
	DefaultShards            = 16
	DefaultShardCapacity     = 256
	DefaultTTL               = 5 * time.Minute
	DefaultPressureFraction  = 0.5
	DefaultPrecomputeWorkers = 1
)

// ComputeFunc produces the value for a key
type ComputeFunc func(ctx context.Context) (any, error)

// Entry is a cached value with its bookkeeping
type Entry struct {
	Key        string
	Value      any
	ComputedAt time.Time
	Priority   Priority
	LastAccess time.Time
}

// Job is one precomputation unit. Run must populate Key, normally by
// calling GetOrCompute or Fetch for it.
type Job struct {
	Key      string
	Priority Priority
	Run      func(ctx context.Context) error
}

// Stats represents cache statistics
type Stats struct {
	Hits         uint64  `json:"hits"`
	Misses       uint64  `json:"misses"`
	HitRate      float64 `json:"hit_rate"`
	Computations uint64  `json:"computations"`
	Evictions    uint64  `json:"evictions"`
	Expirations  uint64  `json:"expirations"`
	Items        int     `json:"items"`
	Generation   uint64  `json:"generation"`
}

// Config holds cache configuration
type Config struct {
	Shards        int           // number of independently locked shards
	ShardCapacity int           // LRU capacity per shard
	TTL           time.Duration // freshness window from ComputedAt

	// PressureFraction is the share of each shard's entries kept by
	// HandleMemoryPressure.
	PressureFraction float64

	PrecomputeWorkers int

	// Remote is an optional second tier shared between processes
	Remote RemoteStore

	Logger *observability.Logger

	// Now overrides the clock, for tests
	Now func() time.Time
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{
		Shards:            DefaultShards,
		ShardCapacity:     DefaultShardCapacity,
		TTL:               DefaultTTL,
		PressureFraction:  DefaultPressureFraction,
		PrecomputeWorkers: DefaultPrecomputeWorkers,
	}
}

func (c Config) withDefaults() Config {
	if c.Shards <= 0 {
		c.Shards = DefaultShards
	}
	if c.ShardCapacity <= 0 {
		c.ShardCapacity = DefaultShardCapacity
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.PressureFraction <= 0 || c.PressureFraction >= 1 {
		c.PressureFraction = DefaultPressureFraction
	}
	if c.PrecomputeWorkers <= 0 {
		c.PrecomputeWorkers = DefaultPrecomputeWorkers
	}
	if c.Logger == nil {
		c.Logger = observability.NopLogger()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
