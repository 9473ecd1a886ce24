package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/ruckstats/pkg/async"
	"github.com/platinummonkey/ruckstats/pkg/observability"
)

// Manager is a sharded, TTL-bounded LRU cache with single-flight
// computation. Each shard has its own lock, so unrelated keys never
// contend, and no lock is held while a value is being computed.
type Manager struct {
	cfg    Config
	shards []*shard
	group  singleflight.Group
	pool   *async.WorkerPool
	logger *observability.Logger

	// generation is bumped by InvalidateAll. Computations remember the
	// generation they started in and only store when it is unchanged.
	generation atomic.Uint64

	hits         atomic.Uint64
	misses       atomic.Uint64
	computations atomic.Uint64
	evictions    atomic.Uint64
	expirations  atomic.Uint64
}

type shard struct {
	mu  sync.Mutex
	lru *simplelru.LRU[string, *Entry]
}

// New creates a cache manager and starts its precompute pool
func New(cfg Config) (*Manager, error) {
	cfg = cfg.withDefaults()

	m := &Manager{
		cfg:    cfg,
		shards: make([]*shard, cfg.Shards),
		logger: cfg.Logger.WithField("component", "cache"),
	}
	for i := range m.shards {
		lru, err := simplelru.NewLRU[string, *Entry](cfg.ShardCapacity, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache shard: %w", err)
		}
		m.shards[i] = &shard{lru: lru}
	}

	m.pool = async.NewWorkerPool(context.Background(), async.PoolOptions{
		Workers: cfg.PrecomputeWorkers,
		Name:    "cache precompute",
		Logger:  cfg.Logger,
	})

	return m, nil
}

// Close stops the precompute pool. Cached values stay readable.
func (m *Manager) Close() error {
	return m.pool.Shutdown(5 * time.Second)
}

// TTL returns the configured freshness window
func (m *Manager) TTL() time.Duration {
	return m.cfg.TTL
}

// Remote returns the second tier, or nil
func (m *Manager) Remote() RemoteStore {
	return m.cfg.Remote
}

// Generation returns the current invalidation generation
func (m *Manager) Generation() uint64 {
	return m.generation.Load()
}

func (m *Manager) shardFor(key string) *shard {
	return m.shards[xxhash.Sum64String(key)%uint64(len(m.shards))]
}

func (m *Manager) expired(e *Entry, now time.Time) bool {
	return now.Sub(e.ComputedAt) >= m.cfg.TTL
}

// Get returns a fresh cached value. Expired entries count as misses and
// are removed.
func (m *Manager) Get(key string) (any, bool) {
	s := m.shardFor(key)
	now := m.cfg.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lru.Get(key)
	if !ok {
		m.misses.Add(1)
		return nil, false
	}
	if m.expired(e, now) {
		s.lru.Remove(key)
		m.expirations.Add(1)
		m.misses.Add(1)
		return nil, false
	}

	e.LastAccess = now
	m.hits.Add(1)
	return e.Value, true
}

// Entry returns a copy of the entry for key without touching recency or stats
func (m *Manager) Entry(key string) (Entry, bool) {
	s := m.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lru.Peek(key)
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Set stores value under key, computed now
func (m *Manager) Set(key string, value any, priority Priority) error {
	if key == "" {
		return ErrInvalidCacheKey
	}
	m.store(key, value, priority, m.generation.Load(), m.cfg.Now())
	return nil
}

// Delete removes key and reports whether it was present
func (m *Manager) Delete(key string) bool {
	s := m.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lru.Remove(key)
}

func (m *Manager) fresh(key string) bool {
	s := m.shardFor(key)
	now := m.cfg.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lru.Peek(key)
	return ok && !m.expired(e, now)
}

func (m *Manager) peekFresh(key string) (any, bool) {
	s := m.shardFor(key)
	now := m.cfg.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lru.Peek(key)
	if !ok || m.expired(e, now) {
		return nil, false
	}
	e.LastAccess = now
	return e.Value, true
}

// store inserts the entry unless an invalidation happened since gen.
// computedAt drives expiry.
func (m *Manager) store(key string, value any, priority Priority, gen uint64, computedAt time.Time) bool {
	s := m.shardFor(key)
	now := m.cfg.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.generation.Load() != gen {
		return false
	}

	if s.lru.Add(key, &Entry{
		Key:        key,
		Value:      value,
		ComputedAt: computedAt,
		Priority:   priority,
		LastAccess: now,
	}) {
		m.evictions.Add(1)
	}
	return true
}

// GetOrCompute returns the fresh value for key, computing it with fn on a
// miss. Concurrent callers for the same key share one computation. A
// caller whose ctx ends stops waiting, but the computation continues
// without cancellation and still fills the cache. Errors reach every
// waiter and are never cached.
func (m *Manager) GetOrCompute(ctx context.Context, key string, priority Priority, fn ComputeFunc) (any, error) {
	if key == "" {
		return nil, ErrInvalidCacheKey
	}
	if fn == nil {
		return nil, ErrNilCompute
	}

	if v, ok := m.Get(key); ok {
		return v, nil
	}

	gen := m.generation.Load()
	computeCtx := context.WithoutCancel(ctx)

	// A flight is bound to its generation so callers arriving after an
	// invalidation never join a computation that started before it.
	flightKey := fmt.Sprintf("%d\x00%s", gen, key)
	ch := m.group.DoChan(flightKey, func() (any, error) {
		if v, ok := m.peekFresh(key); ok {
			return v, nil
		}

		m.computations.Add(1)
		v, err := safeCompute(computeCtx, fn)
		if err != nil {
			return nil, err
		}
		computedAt := m.cfg.Now()
		if sv, ok := v.(stamped); ok {
			v, computedAt = sv.value, sv.computedAt
		}
		if !m.store(key, v, priority, gen, computedAt) {
			m.logger.WithField("key", key).Debug("discarding result computed before invalidation")
		}
		return v, nil
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// stamped lets a ComputeFunc report a value computed earlier, such as a
// copy read from the remote tier, so it expires at its original time.
type stamped struct {
	value      any
	computedAt time.Time
}

func safeCompute(ctx context.Context, fn ComputeFunc) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = observability.PanicError(r)
		}
	}()
	return fn(ctx)
}

// InvalidateAll drops every entry locally and in the remote tier.
// Computations already in flight finish but their results are discarded.
// Local entries are gone when InvalidateAll returns, even if the remote
// purge fails.
func (m *Manager) InvalidateAll(ctx context.Context) error {
	m.generation.Add(1)

	for _, s := range m.shards {
		s.mu.Lock()
		s.lru.Purge()
		s.mu.Unlock()
	}

	if m.cfg.Remote != nil {
		if err := m.cfg.Remote.Purge(ctx); err != nil {
			return fmt.Errorf("failed to purge remote cache: %w", err)
		}
	}

	m.logger.Info("cache invalidated")
	return nil
}

// Precompute runs jobs on the background pool, highest priority first,
// skipping keys that are already fresh. It blocks until every job ran or
// ctx ends and returns the joined job errors.
func (m *Manager) Precompute(ctx context.Context, jobs []Job) error {
	ordered := make([]Job, len(jobs))
	copy(ordered, jobs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for _, job := range ordered {
		job := job
		if job.Run == nil {
			record(fmt.Errorf("precompute %s: %w", job.Key, ErrNilCompute))
			continue
		}

		wg.Add(1)
		err := m.pool.Submit(ctx, func(context.Context) error {
			defer wg.Done()
			if ctx.Err() != nil || m.fresh(job.Key) {
				return nil
			}
			if err := job.Run(ctx); err != nil {
				record(fmt.Errorf("precompute %s: %w", job.Key, err))
			}
			return nil
		})
		if err != nil {
			wg.Done()
			record(fmt.Errorf("precompute %s: %w", job.Key, err))
			break
		}
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		record(err)
	}
	return errors.Join(errs...)
}

// PerformMaintenance removes expired entries and returns how many it removed
func (m *Manager) PerformMaintenance() int {
	now := m.cfg.Now()
	removed := 0

	for _, s := range m.shards {
		s.mu.Lock()
		for _, key := range s.lru.Keys() {
			if e, ok := s.lru.Peek(key); ok && m.expired(e, now) {
				s.lru.Remove(key)
				removed++
			}
		}
		s.mu.Unlock()
	}

	m.expirations.Add(uint64(removed))
	return removed
}

// HandleMemoryPressure shrinks every shard to PressureFraction of its
// entries, evicting the lowest priority first and, within a priority, the
// least recently used. It returns the number of evicted entries.
func (m *Manager) HandleMemoryPressure() int {
	evicted := 0

	for _, s := range m.shards {
		s.mu.Lock()
		evicted += m.shrink(s)
		s.mu.Unlock()
	}

	m.evictions.Add(uint64(evicted))
	if evicted > 0 {
		m.logger.WithField("evicted", evicted).Info("cache shrunk under memory pressure")
	}
	return evicted
}

// shrink runs with s.mu held
func (m *Manager) shrink(s *shard) int {
	n := s.lru.Len()
	keep := int(float64(n) * m.cfg.PressureFraction)
	if n <= keep {
		return 0
	}

	type candidate struct {
		key      string
		priority Priority
	}
	// Keys are ordered oldest first; the stable sort keeps that order
	// within a priority.
	keys := s.lru.Keys()
	candidates := make([]candidate, 0, len(keys))
	for _, key := range keys {
		if e, ok := s.lru.Peek(key); ok {
			candidates = append(candidates, candidate{key: key, priority: e.Priority})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].priority < candidates[j].priority
	})

	evicted := 0
	for _, c := range candidates[:n-keep] {
		if s.lru.Remove(c.key) {
			evicted++
		}
	}
	return evicted
}

// Len returns the number of entries, including expired ones not yet swept
func (m *Manager) Len() int {
	total := 0
	for _, s := range m.shards {
		s.mu.Lock()
		total += s.lru.Len()
		s.mu.Unlock()
	}
	return total
}

// Stats returns a snapshot of the counters
func (m *Manager) Stats() Stats {
	hits := m.hits.Load()
	misses := m.misses.Load()

	stats := Stats{
		Hits:         hits,
		Misses:       misses,
		Computations: m.computations.Load(),
		Evictions:    m.evictions.Load(),
		Expirations:  m.expirations.Load(),
		Items:        m.Len(),
		Generation:   m.generation.Load(),
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}
