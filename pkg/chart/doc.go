// Package chart downsamples ordered point series for display.
//
// # Overview
//
// Two samplers reduce an arbitrarily long series to at most maxPoints while
// keeping its first and last points:
//
//	Simplify       Douglas-Peucker, promoting the highest-error point first
//	PreservePeaks  keeps strict local extrema, fills the rest uniformly
//
// Both are deterministic and iterative (no recursion), so monotonic inputs of
// any size cannot exhaust the stack.
//
// OptimizedData holds a source series and its current display series. Updates
// replace both atomically; readers always see a consistent pair.
//
// # Usage Example
//
//	data := chart.NewOptimizedData(200, chart.StrategyAdaptive)
//	data.UpdateData(points)
//	for _, p := range data.Display() {
//		fmt.Println(p.X, p.Y)
//	}
//
// # Related Packages
//
//   - pkg/analytics: Produces per-session series
//   - pkg/async: Worker pool used by UpdateDataAsync
package chart
