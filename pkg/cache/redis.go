package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RemoteStore is a second cache tier shared between processes
type RemoteStore interface {
	// Get decodes the value for key into dest and returns when it was
	// computed, or returns ErrCacheMiss
	Get(ctx context.Context, key string, dest any) (time.Time, error)
	// Set stores value with the time it was computed. The remote copy
	// lives for ttl.
	Set(ctx context.Context, key string, value any, computedAt time.Time, ttl time.Duration) error
	// Purge removes every key owned by this store
	Purge(ctx context.Context) error
}

// DefaultKeyPrefix namespaces ruckstats keys in a shared redis
const DefaultKeyPrefix = "ruckstats:"

// RedisConfig holds redis connection settings
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	KeyPrefix  string
}

// envelope is the JSON document stored per key
type envelope struct {
	ComputedAt time.Time       `json:"computed_at"`
	Value      json.RawMessage `json:"value"`
}

// RedisStore stores JSON encoded values in redis under a key prefix
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisClient creates a redis client from cfg and checks connectivity
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB > 0 {
		opts.DB = cfg.DB
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// NewRedisStore wraps client. An empty prefix uses DefaultKeyPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

// Get implements RemoteStore
func (s *RedisStore) Get(ctx context.Context, key string, dest any) (time.Time, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, ErrCacheMiss
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("redis get %s: %w", key, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return time.Time{}, fmt.Errorf("decode cached %s: %w", key, err)
	}
	if err := json.Unmarshal(env.Value, dest); err != nil {
		return time.Time{}, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return env.ComputedAt, nil
}

// Set implements RemoteStore. A ttl of zero stores without expiry.
func (s *RedisStore) Set(ctx context.Context, key string, value any, computedAt time.Time, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	data, err := json.Marshal(envelope{ComputedAt: computedAt.UTC(), Value: raw})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	if err := s.client.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Purge deletes every key under the prefix. Keys outside it are untouched.
func (s *RedisStore) Purge(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 500).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
