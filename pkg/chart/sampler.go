package chart

import (
	"container/heap"
	"math"
	"sort"
)

// Point is one sample of a series. X must be strictly increasing within a series.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Simplify reduces points to at most maxPoints with Douglas-Peucker. Instead
// of a fixed tolerance, segments wait in a max-heap keyed by the distance of
// their farthest interior point; the worst point is promoted and its segment
// split until the budget is spent or every remaining point lies on its chord.
// Distances are measured after normalising both axes to [0, 1].
func Simplify(points []Point, maxPoints int) []Point {
	maxPoints = clampBudget(maxPoints)
	n := len(points)
	if n <= maxPoints {
		return clonePoints(points)
	}

	norm := newNormalizer(points)
	keep := make([]bool, n)
	keep[0], keep[n-1] = true, true
	kept := 2

	queue := &segmentQueue{}
	if seg, ok := farthestPoint(points, norm, 0, n-1); ok {
		heap.Push(queue, seg)
	}

	for kept < maxPoints && queue.Len() > 0 {
		seg := heap.Pop(queue).(segment)
		if seg.err <= 0 {
			break
		}

		keep[seg.index] = true
		kept++

		if left, ok := farthestPoint(points, norm, seg.first, seg.index); ok {
			heap.Push(queue, left)
		}
		if right, ok := farthestPoint(points, norm, seg.index, seg.last); ok {
			heap.Push(queue, right)
		}
	}

	return collect(points, keep, kept)
}

// PreservePeaks reduces points to at most maxPoints, guaranteeing strict
// local extrema survive. When there are more extrema than budget the most
// prominent win. Leftover budget is spent on uniformly spaced samples.
func PreservePeaks(points []Point, maxPoints int) []Point {
	maxPoints = clampBudget(maxPoints)
	n := len(points)
	if n <= maxPoints {
		return clonePoints(points)
	}

	keep := make([]bool, n)
	keep[0], keep[n-1] = true, true
	kept := 2
	budget := maxPoints - kept

	peaks := localExtrema(points)
	if len(peaks) > budget {
		sort.SliceStable(peaks, func(i, j int) bool {
			if peaks[i].prominence != peaks[j].prominence {
				return peaks[i].prominence > peaks[j].prominence
			}
			return peaks[i].index < peaks[j].index
		})
		peaks = peaks[:budget]
	}
	for _, p := range peaks {
		keep[p.index] = true
	}
	kept += len(peaks)
	budget -= len(peaks)

	if budget > 0 {
		kept += fillUniform(keep, budget)
	}

	return collect(points, keep, kept)
}

// Sanitize drops non-finite points and orders the rest by X, keeping the last
// point for duplicate X values so the result is strictly increasing.
func Sanitize(points []Point) []Point {
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if isFinite(p.X) && isFinite(p.Y) {
			out = append(out, p)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].X < out[j].X })

	dedup := out[:0]
	for i, p := range out {
		if i+1 < len(out) && out[i+1].X == p.X {
			continue
		}
		dedup = append(dedup, p)
	}
	return dedup
}

type segment struct {
	first, last int
	index       int
	err         float64
}

// segmentQueue is a max-heap on err; ties go to the lower index for determinism.
type segmentQueue []segment

func (q segmentQueue) Len() int { return len(q) }
func (q segmentQueue) Less(i, j int) bool {
	if q[i].err != q[j].err {
		return q[i].err > q[j].err
	}
	return q[i].index < q[j].index
}
func (q segmentQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *segmentQueue) Push(x any)   { *q = append(*q, x.(segment)) }
func (q *segmentQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

type normalizer struct {
	minX, minY     float64
	scaleX, scaleY float64
}

func newNormalizer(points []Point) normalizer {
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		if isFinite(p.X) {
			minX = math.Min(minX, p.X)
			maxX = math.Max(maxX, p.X)
		}
		if isFinite(p.Y) {
			minY = math.Min(minY, p.Y)
			maxY = math.Max(maxY, p.Y)
		}
	}
	return normalizer{
		minX:   finiteOr(minX, 0),
		minY:   finiteOr(minY, 0),
		scaleX: inverseSpan(minX, maxX),
		scaleY: inverseSpan(minY, maxY),
	}
}

func (n normalizer) apply(p Point) (float64, float64) {
	return (p.X - n.minX) * n.scaleX, (p.Y - n.minY) * n.scaleY
}

// farthestPoint finds the interior point of (first, last) farthest from the chord.
func farthestPoint(points []Point, norm normalizer, first, last int) (segment, bool) {
	if last-first < 2 {
		return segment{}, false
	}

	x1, y1 := norm.apply(points[first])
	x2, y2 := norm.apply(points[last])

	best := segment{first: first, last: last, index: -1, err: -1}
	for i := first + 1; i < last; i++ {
		x0, y0 := norm.apply(points[i])
		d := perpendicularDistance(x0, y0, x1, y1, x2, y2)
		if d > best.err {
			best.err = d
			best.index = i
		}
	}

	if best.index < 0 {
		// Every interior point was NaN; promote nothing from this segment.
		return segment{}, false
	}
	return best, true
}

func perpendicularDistance(x0, y0, x1, y1, x2, y2 float64) float64 {
	dx, dy := x2-x1, y2-y1
	length := math.Hypot(dx, dy)
	if length == 0 {
		return math.Hypot(x0-x1, y0-y1)
	}
	return math.Abs(dy*x0-dx*y0+x2*y1-y2*x1) / length
}

type extremum struct {
	index      int
	prominence float64
}

// localExtrema returns interior points strictly above or below both neighbours.
func localExtrema(points []Point) []extremum {
	var out []extremum
	for i := 1; i < len(points)-1; i++ {
		prev, cur, next := points[i-1].Y, points[i].Y, points[i+1].Y
		isPeak := cur > prev && cur > next
		isTrough := cur < prev && cur < next
		if !isPeak && !isTrough {
			continue
		}
		out = append(out, extremum{
			index:      i,
			prominence: math.Min(math.Abs(cur-prev), math.Abs(cur-next)),
		})
	}
	return out
}

// fillUniform marks budget evenly spaced unmarked indices and returns how many it marked.
func fillUniform(keep []bool, budget int) int {
	free := make([]int, 0, len(keep))
	for i, k := range keep {
		if !k {
			free = append(free, i)
		}
	}
	if len(free) == 0 {
		return 0
	}
	if budget > len(free) {
		budget = len(free)
	}

	marked := 0
	for k := 0; k < budget; k++ {
		// centre of the k-th stride
		pos := (2*k + 1) * len(free) / (2 * budget)
		if !keep[free[pos]] {
			keep[free[pos]] = true
			marked++
		}
	}
	return marked
}

func collect(points []Point, keep []bool, kept int) []Point {
	out := make([]Point, 0, kept)
	for i, k := range keep {
		if k {
			out = append(out, points[i])
		}
	}
	return out
}

func clonePoints(points []Point) []Point {
	out := make([]Point, len(points))
	copy(out, points)
	return out
}

func clampBudget(maxPoints int) int {
	if maxPoints < 2 {
		return 2
	}
	return maxPoints
}

func inverseSpan(lo, hi float64) float64 {
	span := hi - lo
	if !isFinite(span) || span <= 0 {
		return 1
	}
	return 1 / span
}

func finiteOr(v, fallback float64) float64 {
	if isFinite(v) {
		return v
	}
	return fallback
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
