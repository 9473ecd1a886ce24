package analytics

import (
	"math"

	"github.com/platinummonkey/ruckstats/pkg/sessions"
)

// add sums like a+b but saturates at ±MaxFloat64 when two finite values
// overflow. Non-finite operands propagate unchanged.
func add(a, b float64) float64 {
	s := a + b
	if math.IsInf(s, 0) && !math.IsInf(a, 0) && !math.IsInf(b, 0) {
		return math.Copysign(math.MaxFloat64, s)
	}
	return s
}

// mul is the saturating counterpart of add
func mul(a, b float64) float64 {
	p := a * b
	if math.IsInf(p, 0) && !math.IsInf(a, 0) && !math.IsInf(b, 0) {
		return math.Copysign(math.MaxFloat64, p)
	}
	return p
}

// finite maps NaN to 0 and ±Inf to ±MaxFloat64
func finite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	default:
		return v
	}
}

// weightMoved is load (kg) times distance (km)
func weightMoved(r sessions.Record) float64 {
	return mul(r.LoadWeight, r.Distance/1000)
}

// mean averages the finite values; 0 when there are none
type mean struct {
	sum   float64
	count int
}

func (m *mean) add(v float64) {
	if !sessions.IsFinite(v) {
		return
	}
	m.sum = add(m.sum, v)
	m.count++
}

func (m mean) value() float64 {
	if m.count == 0 {
		return 0
	}
	return finite(m.sum / float64(m.count))
}

func validPace(p float64) bool {
	return sessions.IsFinite(p) && p > 0
}
