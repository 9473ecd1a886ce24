package analytics

import (
	"github.com/platinummonkey/ruckstats/pkg/chart"
	"github.com/platinummonkey/ruckstats/pkg/sessions"
)

// Series returns one point per complete session: x is the start time in
// Unix seconds, y the selected metric. Non-finite values and non-positive
// paces are left out.
func Series(records []sessions.Record, metric SeriesMetric) []chart.Point {
	points := make([]chart.Point, 0, len(records))
	for _, r := range records {
		if !r.IsComplete() {
			continue
		}

		var y float64
		switch metric {
		case SeriesDistance:
			y = r.Distance
		case SeriesPace:
			if !validPace(r.AveragePace) {
				continue
			}
			y = r.AveragePace
		case SeriesLoad:
			y = r.LoadWeight
		case SeriesCalories:
			y = r.Calories
		case SeriesDuration:
			y = r.Duration
		case SeriesElevation:
			y = r.ElevationGain
		case SeriesWeightMoved:
			y = weightMoved(r)
		default:
			return []chart.Point{}
		}

		points = append(points, chart.Point{
			X: float64(r.StartedAt.Unix()),
			Y: y,
		})
	}
	return chart.Sanitize(points)
}
