package analytics

import (
	"math"
	"sort"
	"strings"

	"github.com/platinummonkey/ruckstats/pkg/period"
	"github.com/platinummonkey/ruckstats/pkg/sessions"
)

// Histogram bin widths
const (
	PaceBucketWidth     = 0.5 // min/km
	DistanceBucketWidth = 1.0 // km
	LoadBucketWidth     = 5.0 // kg
)

// maxBin bounds bin indexes so they convert to int64 exactly
const maxBin = 1 << 53

// minCorrelationSamples is the number of weather samples needed for a correlation
const minCorrelationSamples = 3

// Detailed computes the distributions of the complete records in rng
func Detailed(records []sessions.Record, rng period.Range) DetailedMetrics {
	var (
		paces, distances, loads []float64
		terrain                 = make(map[sessions.TerrainType]float64)
		terrainTotal            float64
		temps, tempPaces        []float64
		byCondition             = make(map[string]*mean)
		count                   int
	)

	for _, r := range records {
		if !r.IsComplete() {
			continue
		}
		count++

		if validPace(r.AveragePace) {
			paces = append(paces, r.AveragePace)
		}
		if km := r.Distance / 1000; sessions.IsFinite(km) && km >= 0 {
			distances = append(distances, km)
		}
		if sessions.IsFinite(r.LoadWeight) && r.LoadWeight >= 0 {
			loads = append(loads, r.LoadWeight)
		}

		for _, seg := range r.Terrain {
			if !sessions.IsFinite(seg.Duration) || seg.Duration <= 0 {
				continue
			}
			kind := seg.Type
			if kind == "" {
				kind = sessions.TerrainUnknown
			}
			terrain[kind] += seg.Duration
			terrainTotal += seg.Duration
		}

		if r.Weather != nil && validPace(r.AveragePace) {
			if sessions.IsFinite(r.Weather.TemperatureC) {
				temps = append(temps, r.Weather.TemperatureC)
				tempPaces = append(tempPaces, r.AveragePace)
			}
			condition := strings.ToLower(strings.TrimSpace(r.Weather.Condition))
			if condition == "" {
				condition = "unknown"
			}
			if byCondition[condition] == nil {
				byCondition[condition] = &mean{}
			}
			byCondition[condition].add(r.AveragePace)
		}
	}

	out := DetailedMetrics{
		Range:               rng,
		SessionCount:        count,
		PaceBuckets:         histogram(paces, PaceBucketWidth),
		DistanceBuckets:     histogram(distances, DistanceBucketWidth),
		LoadDistribution:    histogram(loads, LoadBucketWidth),
		TerrainDistribution: make(map[sessions.TerrainType]float64, len(terrain)),
		WeatherImpact: WeatherImpact{
			TemperaturePaceCorrelation: pearson(temps, tempPaces),
			SampleSize:                 len(temps),
			AveragePaceByCondition:     make(map[string]float64, len(byCondition)),
		},
		PaceConsistency: paceConsistency(paces),
	}

	if terrainTotal > 0 && !math.IsInf(terrainTotal, 0) {
		for kind, d := range terrain {
			out.TerrainDistribution[kind] = d / terrainTotal * 100
		}
	}
	for condition, m := range byCondition {
		out.WeatherImpact.AveragePaceByCondition[condition] = m.value()
	}

	return out
}

// histogram bins non-negative finite values into [k·width, (k+1)·width)
// and returns the non-empty bins in ascending order.
func histogram(values []float64, width float64) []Bucket {
	counts := make(map[int64]int)
	for _, v := range values {
		k := math.Floor(v / width)
		if k > maxBin {
			continue
		}
		counts[int64(k)]++
	}

	bins := make([]int64, 0, len(counts))
	for k := range counts {
		bins = append(bins, k)
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i] < bins[j] })

	out := make([]Bucket, 0, len(bins))
	for _, k := range bins {
		out = append(out, Bucket{
			Lower: float64(k) * width,
			Upper: float64(k+1) * width,
			Count: counts[k],
		})
	}
	return out
}

// pearson returns the correlation of xs and ys, or 0 when it is undefined
func pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n < minCorrelationSamples || n != len(ys) {
		return 0
	}

	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= float64(n)
	my /= float64(n)

	var cov, vx, vy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}

	r := cov / math.Sqrt(vx*vy)
	if !sessions.IsFinite(r) {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}

// paceConsistency scores how evenly paced the sessions were
func paceConsistency(paces []float64) float64 {
	if len(paces) < 2 {
		return 0
	}

	var m mean
	for _, p := range paces {
		m.add(p)
	}
	avg := m.value()
	if avg <= 0 {
		return 0
	}

	var variance float64
	for _, p := range paces {
		d := p - avg
		variance += d * d
	}
	variance /= float64(len(paces))

	score := 100 * (1 - math.Sqrt(variance)/avg)
	if !sessions.IsFinite(score) {
		return 0
	}
	return math.Max(0, math.Min(100, score))
}
