package cache

import "errors"

var (
	// ErrCacheMiss is returned when a key is absent or expired
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidCacheKey is returned for an empty cache key
	ErrInvalidCacheKey = errors.New("invalid cache key")

	// ErrNilCompute is returned when GetOrCompute is called without a compute function
	ErrNilCompute = errors.New("nil compute function")

	// ErrTypeMismatch is returned by Fetch when the cached value has another type
	ErrTypeMismatch = errors.New("cached value type mismatch")
)
