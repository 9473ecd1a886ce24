package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ruckstats/pkg/period"
	"github.com/platinummonkey/ruckstats/pkg/sessions"
)

func TestWeeklyBuckets_TwelveWeeks(t *testing.T) {
	rng := WeeksRange(12, ref)
	records := []sessions.Record{
		session(daysAgo(1), 5000, 20, 10),
		session(daysAgo(2), 3000, 10, 10),
		session(daysAgo(30), 7000, 15, 10),
	}

	buckets := WeeklyBuckets(records, rng)
	require.Len(t, buckets, 12)

	for i, b := range buckets {
		assert.Equal(t, time.Monday, b.WeekStart.Weekday())
		assert.Equal(t, b.WeekStart.AddDate(0, 0, 7), b.WeekEnd)
		if i > 0 {
			assert.Equal(t, buckets[i-1].WeekEnd, b.WeekStart, "buckets must be contiguous")
		}
	}

	assert.Equal(t, period.StartOfWeek(ref), buckets[11].WeekStart)
	assert.Equal(t, 2, buckets[11].SessionCount)
	assert.Equal(t, 8000.0, buckets[11].TotalDistance)
	assert.InDelta(t, 130, buckets[11].TotalWeightMoved, 1e-9)
	assert.True(t, buckets[11].MeetsGoal)

	total := 0
	for _, b := range buckets {
		total += b.SessionCount
	}
	assert.Equal(t, 3, total)
	assert.Zero(t, buckets[0].SessionCount)
	assert.False(t, buckets[0].MeetsGoal)
}

func TestWeeklyBuckets_NoSessions(t *testing.T) {
	for _, weeks := range []int{1, 4, 12, 52} {
		buckets := WeeklyBuckets(nil, WeeksRange(weeks, ref))
		assert.Len(t, buckets, weeks)
	}
}

func TestWeeklyBuckets_EmptyRange(t *testing.T) {
	assert.Empty(t, WeeklyBuckets(nil, period.Range{Start: ref, End: ref}))
}

func TestWeeksRange(t *testing.T) {
	rng := WeeksRange(1, ref)
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), rng.Start)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), rng.End)
	assert.True(t, rng.Contains(ref))
}
