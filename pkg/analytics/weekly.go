package analytics

import (
	"github.com/platinummonkey/ruckstats/pkg/period"
	"github.com/platinummonkey/ruckstats/pkg/sessions"
)

// WeeklyBuckets splits rng into Monday-aligned weeks, oldest first. The
// first bucket starts at the week containing rng.Start and buckets continue
// while they start before rng.End; weeks without sessions are zero-filled.
func WeeklyBuckets(records []sessions.Record, rng period.Range) []WeeklyBucket {
	if !rng.Start.Before(rng.End) {
		return []WeeklyBucket{}
	}

	loc := rng.Start.Location()
	var buckets []WeeklyBucket
	index := make(map[int64]int)
	for start := period.StartOfWeek(rng.Start); start.Before(rng.End); start = start.AddDate(0, 0, 7) {
		index[start.Unix()] = len(buckets)
		buckets = append(buckets, WeeklyBucket{
			WeekStart: start,
			WeekEnd:   start.AddDate(0, 0, 7),
		})
	}

	for _, r := range records {
		if !r.IsComplete() || !rng.Contains(r.StartedAt) {
			continue
		}
		i, ok := index[period.StartOfWeek(r.StartedAt.In(loc)).Unix()]
		if !ok {
			continue
		}
		b := &buckets[i]
		b.SessionCount++
		b.TotalDistance = add(b.TotalDistance, r.Distance)
		b.TotalDuration = add(b.TotalDuration, r.Duration)
		b.TotalCalories = add(b.TotalCalories, r.Calories)
		b.TotalWeightMoved = add(b.TotalWeightMoved, weightMoved(r))
	}

	for i := range buckets {
		buckets[i].MeetsGoal = buckets[i].SessionCount >= GoalSessionsPerWeek
	}
	return buckets
}
