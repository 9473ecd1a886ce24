package analytics

import "math"

// StableThreshold is the absolute percentage change below which a trend is stable
const StableThreshold = 5.0

// TrendKinds lists the metrics compared between periods
func TrendKinds() []MetricKind {
	return []MetricKind{
		MetricDistance, MetricCalories, MetricSessions,
		MetricWeightMoved, MetricDuration, MetricPace,
	}
}

// Trend compares current against previous. With previous == 0 the change
// is 100% when current > 0 and 0% otherwise. Non-finite inputs count as 0
// and the change is clamped to a finite value.
func Trend(kind MetricKind, current, previous float64) TrendMetric {
	current = finiteOrZero(current)
	previous = finiteOrZero(previous)

	var change float64
	switch {
	case previous == 0 && current > 0:
		change = 100
	case previous == 0:
		change = 0
	default:
		change = finite((current - previous) / previous * 100)
	}

	return TrendMetric{
		Kind:             kind,
		Current:          current,
		Previous:         previous,
		PercentageChange: change,
		Direction:        direction(kind, change),
	}
}

func direction(kind MetricKind, change float64) Direction {
	if math.Abs(change) < StableThreshold {
		return DirectionStable
	}
	better := change > 0
	if kind.LowerIsBetter() {
		better = change < 0
	}
	if better {
		return DirectionImproving
	}
	return DirectionDeclining
}

// Compare returns a copy of current with a trend for every TrendKinds
// metric against previous. Neither argument is modified.
func Compare(current, previous Snapshot) Snapshot {
	out := current
	out.Trends = make(map[MetricKind]TrendMetric, len(TrendKinds()))
	for _, kind := range TrendKinds() {
		out.Trends[kind] = Trend(kind, current.Value(kind), previous.Value(kind))
	}
	return out
}
