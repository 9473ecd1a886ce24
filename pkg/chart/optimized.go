package chart

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/platinummonkey/ruckstats/pkg/async"
	"github.com/platinummonkey/ruckstats/pkg/observability"
)

// Strategy selects the downsampling algorithm
type Strategy string

const (
	StrategySimplify Strategy = "simplify"
	StrategyPeaks    Strategy = "peaks"
	StrategyAdaptive Strategy = "adaptive"
)

// DefaultMaxDisplayPoints is the display budget used when none is configured
const DefaultMaxDisplayPoints = 200

// Adaptive thresholds: a series whose slope flips sign this often, or whose
// largest second difference dwarfs the mean by this factor, is treated as
// volatile and sampled with PreservePeaks.
const (
	adaptiveSignChangeRatio = 0.2
	adaptiveSpikeRatio      = 8.0
)

// ParseStrategy parses a strategy name; the empty string means adaptive
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StrategyAdaptive, nil
	case StrategySimplify, StrategyPeaks, StrategyAdaptive:
		return st, nil
	default:
		return "", fmt.Errorf("unknown sampling strategy %q", s)
	}
}

// Sample downsamples points with the given strategy. Adaptive resolves to
// simplify or peaks via Resolve.
func Sample(points []Point, maxPoints int, strategy Strategy) []Point {
	switch strategy.Resolve(points) {
	case StrategyPeaks:
		return PreservePeaks(points, maxPoints)
	default:
		return Simplify(points, maxPoints)
	}
}

// Resolve returns the concrete strategy used for points
func (s Strategy) Resolve(points []Point) Strategy {
	switch s {
	case StrategySimplify, StrategyPeaks:
		return s
	}
	signChanges, spike := volatility(points)
	if signChanges >= adaptiveSignChangeRatio || spike >= adaptiveSpikeRatio {
		return StrategyPeaks
	}
	return StrategySimplify
}

// volatility reports the share of slope sign changes and the ratio of the
// largest to the mean absolute second difference.
func volatility(points []Point) (signChangeRatio, spikeRatio float64) {
	n := len(points)
	if n < 3 {
		return 0, 0
	}

	var (
		changes int
		sum     float64
		peak    float64
		prev    = points[1].Y - points[0].Y
	)
	for i := 2; i < n; i++ {
		slope := points[i].Y - points[i-1].Y
		if (prev > 0 && slope < 0) || (prev < 0 && slope > 0) {
			changes++
		}
		d2 := math.Abs(slope - prev)
		if isFinite(d2) {
			sum += d2
			peak = math.Max(peak, d2)
		}
		prev = slope
	}

	signChangeRatio = float64(changes) / float64(n-2)
	if mean := sum / float64(n-2); mean > 0 {
		spikeRatio = peak / mean
	}
	return signChangeRatio, spikeRatio
}

// View is a consistent snapshot of an OptimizedData
type View struct {
	Source           []Point  `json:"-"`
	Display          []Point  `json:"points"`
	MaxDisplayPoints int      `json:"max_points"`
	Strategy         Strategy `json:"strategy"`
	Applied          Strategy `json:"applied_strategy"`
	Version          uint64   `json:"version"`
}

type state struct {
	source   []Point
	display  []Point
	max      int
	strategy Strategy
	applied  Strategy
	version  uint64
}

// Option configures an OptimizedData
type Option func(*OptimizedData)

// WithMetrics records sampling passes on m
func WithMetrics(m *observability.Metrics) Option {
	return func(d *OptimizedData) { d.metrics = m }
}

// OptimizedData holds a source series and its downsampled display series.
// Readers never block: state is swapped atomically and every read sees a
// source and display that belong together. Writers are serialized.
type OptimizedData struct {
	mu      sync.Mutex
	current atomic.Pointer[state]
	pending atomic.Uint64
	metrics *observability.Metrics
}

// NewOptimizedData creates an empty holder. maxDisplayPoints <= 0 uses the
// default budget; an empty strategy means adaptive.
func NewOptimizedData(maxDisplayPoints int, strategy Strategy, opts ...Option) *OptimizedData {
	if maxDisplayPoints <= 0 {
		maxDisplayPoints = DefaultMaxDisplayPoints
	}
	if strategy == "" {
		strategy = StrategyAdaptive
	}

	d := &OptimizedData{}
	for _, opt := range opts {
		opt(d)
	}
	d.current.Store(&state{
		source:   []Point{},
		display:  []Point{},
		max:      clampBudget(maxDisplayPoints),
		strategy: strategy,
		applied:  strategy.Resolve(nil),
	})
	return d
}

// UpdateData replaces the source series and recomputes the display series
func (d *OptimizedData) UpdateData(series []Point) {
	source := Sanitize(series)
	d.pending.Add(1)

	d.mu.Lock()
	defer d.mu.Unlock()

	cur := d.current.Load()
	d.install(cur, source, cur.max, cur.strategy, nil)
}

// UpdateDataAsync queues the recomputation on pool and returns once it is
// queued. The returned channel closes when the task has finished, whether
// it installed its result or was superseded by a later update.
func (d *OptimizedData) UpdateDataAsync(ctx context.Context, pool *async.WorkerPool, series []Point) (<-chan struct{}, error) {
	source := Sanitize(series)
	seq := d.pending.Add(1)
	done := make(chan struct{})

	err := pool.Submit(ctx, func(ctx context.Context) error {
		defer close(done)
		if d.pending.Load() != seq {
			return nil
		}

		cur := d.current.Load()
		display, applied := d.sample(source, cur.max, cur.strategy)

		d.mu.Lock()
		defer d.mu.Unlock()

		if d.pending.Load() != seq {
			return nil
		}
		latest := d.current.Load()
		if latest.max != cur.max || latest.strategy != cur.strategy {
			display = nil
		}
		d.install(latest, source, latest.max, latest.strategy, &sampled{display, applied})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return done, nil
}

// SetStrategy changes the strategy and recomputes the display series
func (d *OptimizedData) SetStrategy(strategy Strategy) {
	if strategy == "" {
		strategy = StrategyAdaptive
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cur := d.current.Load()
	if cur.strategy == strategy {
		return
	}
	d.install(cur, cur.source, cur.max, strategy, nil)
}

// SetMaxDisplayPoints changes the display budget and recomputes. Values
// below 2 are treated as 2.
func (d *OptimizedData) SetMaxDisplayPoints(maxPoints int) {
	maxPoints = clampBudget(maxPoints)

	d.mu.Lock()
	defer d.mu.Unlock()

	cur := d.current.Load()
	if cur.max == maxPoints {
		return
	}
	d.install(cur, cur.source, maxPoints, cur.strategy, nil)
}

// Display returns a copy of the current display series
func (d *OptimizedData) Display() []Point {
	return clonePoints(d.current.Load().display)
}

// Source returns a copy of the current source series
func (d *OptimizedData) Source() []Point {
	return clonePoints(d.current.Load().source)
}

// Version increases on every installed update
func (d *OptimizedData) Version() uint64 {
	return d.current.Load().version
}

// View returns a consistent copy of the whole state
func (d *OptimizedData) View() View {
	st := d.current.Load()
	return View{
		Source:           clonePoints(st.source),
		Display:          clonePoints(st.display),
		MaxDisplayPoints: st.max,
		Strategy:         st.strategy,
		Applied:          st.applied,
		Version:          st.version,
	}
}

type sampled struct {
	display []Point
	applied Strategy
}

// install publishes a new state; callers hold d.mu. A nil
// precomputed result is recomputed here.
func (d *OptimizedData) install(cur *state, source []Point, maxPoints int, strategy Strategy, pre *sampled) {
	var display []Point
	var applied Strategy
	if pre != nil && pre.display != nil {
		display, applied = pre.display, pre.applied
	} else {
		display, applied = d.sample(source, maxPoints, strategy)
	}

	d.current.Store(&state{
		source:   source,
		display:  display,
		max:      maxPoints,
		strategy: strategy,
		applied:  applied,
		version:  cur.version + 1,
	})
}

func (d *OptimizedData) sample(source []Point, maxPoints int, strategy Strategy) ([]Point, Strategy) {
	start := time.Now()
	applied := strategy.Resolve(source)
	display := Sample(source, maxPoints, applied)
	d.metrics.ObserveSampling(string(applied), len(source), len(display), time.Since(start))
	return display, applied
}
