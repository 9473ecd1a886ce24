package analytics

import (
	"time"

	"github.com/platinummonkey/ruckstats/pkg/period"
	"github.com/platinummonkey/ruckstats/pkg/sessions"
)

// Summarize computes the snapshot of records over rng. Incomplete records
// are ignored. The streak is counted over records alone, walking back from
// the earlier of ref and rng.End, so a past window reports the streak it
// ended with. Repository overrides it with the streak over full history.
func Summarize(records []sessions.Record, rng period.Range, ref time.Time) Snapshot {
	snap := Snapshot{
		Range:      rng,
		ComputedAt: ref,
	}

	var (
		distance, calories, duration, load mean
		pace                               mean
		complete                           = make([]sessions.Record, 0, len(records))
	)
	first := true
	for _, r := range records {
		if !r.IsComplete() {
			continue
		}
		complete = append(complete, r)
		snap.SessionCount++

		snap.TotalDistance = add(snap.TotalDistance, r.Distance)
		snap.TotalCalories = add(snap.TotalCalories, r.Calories)
		snap.TotalDuration = add(snap.TotalDuration, r.Duration)
		snap.TotalWeightMoved = add(snap.TotalWeightMoved, weightMoved(r))

		if r.HasAnomaly() {
			snap.Anomalies++
		}

		distance.add(r.Distance)
		calories.add(r.Calories)
		duration.add(r.Duration)
		load.add(r.LoadWeight)
		if validPace(r.AveragePace) {
			pace.add(r.AveragePace)
			if !snap.FastestPaceValid || r.AveragePace < snap.FastestPace {
				snap.FastestPace = r.AveragePace
				snap.FastestPaceValid = true
			}
		}

		if first {
			snap.LongestDistance = finiteOrZero(r.Distance)
			snap.HeaviestLoad = finiteOrZero(r.LoadWeight)
			snap.HighestCalories = finiteOrZero(r.Calories)
			first = false
			continue
		}
		snap.LongestDistance = maxFinite(snap.LongestDistance, r.Distance)
		snap.HeaviestLoad = maxFinite(snap.HeaviestLoad, r.LoadWeight)
		snap.HighestCalories = maxFinite(snap.HighestCalories, r.Calories)
	}

	// Averages divide the plain totals, so they are 0 for an empty period
	// and follow the totals otherwise, clamped to finite values.
	if snap.SessionCount > 0 {
		n := float64(snap.SessionCount)
		snap.AverageDistance = averageOf(snap.TotalDistance, n, distance)
		snap.AverageCalories = averageOf(snap.TotalCalories, n, calories)
		snap.AverageDuration = averageOf(snap.TotalDuration, n, duration)
		snap.AverageLoad = load.value()
	}
	snap.AveragePace = pace.value()
	snap.TrainingStreak = TrainingStreak(complete, streakAnchor(rng, ref))

	return snap
}

// averageOf returns total/n, falling back to the mean of the finite values
// when the total is not finite.
func averageOf(total, n float64, finiteMean mean) float64 {
	if sessions.IsFinite(total) {
		return finite(total / n)
	}
	return finiteMean.value()
}

func finiteOrZero(v float64) float64 {
	if sessions.IsFinite(v) {
		return v
	}
	return 0
}

func maxFinite(cur, v float64) float64 {
	if sessions.IsFinite(v) && v > cur {
		return v
	}
	return cur
}

// BestRecords finds the best session for each record. The earliest
// session wins ties. Only finite values above zero qualify.
func BestRecords(records []sessions.Record) PersonalRecords {
	var pr PersonalRecords

	for _, r := range records {
		if !r.IsComplete() {
			continue
		}
		higher(&pr.LongestDistance, r, r.Distance)
		higher(&pr.HeaviestLoad, r, r.LoadWeight)
		higher(&pr.HighestCalories, r, r.Calories)
		higher(&pr.LongestDuration, r, r.Duration)
		higher(&pr.GreatestElevationGain, r, r.ElevationGain)

		if validPace(r.AveragePace) && (!pr.FastestPace.Valid || r.AveragePace < pr.FastestPace.Value) {
			pr.FastestPace = entryFor(r, r.AveragePace)
		}
	}

	return pr
}

func higher(entry *RecordEntry, r sessions.Record, v float64) {
	if !sessions.IsFinite(v) || v <= 0 {
		return
	}
	if !entry.Valid || v > entry.Value {
		*entry = entryFor(r, v)
	}
}

func entryFor(r sessions.Record, v float64) RecordEntry {
	achieved := r.StartedAt
	if r.EndedAt != nil {
		achieved = *r.EndedAt
	}
	return RecordEntry{
		Value:      v,
		SessionID:  r.ID,
		AchievedAt: achieved,
		Valid:      true,
	}
}

// streakAnchor is the instant a streak over rng is measured at. rng.End is
// exclusive, so a window ending before ref anchors just before its end.
func streakAnchor(rng period.Range, ref time.Time) time.Time {
	if rng.End.IsZero() || !rng.End.Before(ref) {
		return ref
	}
	return rng.End.Add(-time.Nanosecond)
}

// TrainingStreak counts consecutive weeks, walking back from the week of
// ref, with at least GoalSessionsPerWeek complete sessions. The week of ref
// is still in progress: it extends the streak when it already qualifies and
// is skipped otherwise.
func TrainingStreak(records []sessions.Record, ref time.Time) int {
	counts := make(map[int64]int)
	for _, r := range records {
		if !r.IsComplete() || r.StartedAt.After(ref) {
			continue
		}
		counts[period.StartOfWeek(r.StartedAt.In(ref.Location())).Unix()]++
	}
	if len(counts) == 0 {
		return 0
	}

	week := period.StartOfWeek(ref)
	streak := 0
	if counts[week.Unix()] >= GoalSessionsPerWeek {
		streak++
	}

	for {
		week = week.AddDate(0, 0, -7)
		if counts[week.Unix()] < GoalSessionsPerWeek {
			return streak
		}
		streak++
	}
}
