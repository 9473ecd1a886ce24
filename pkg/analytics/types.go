package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/ruckstats/pkg/period"
	"github.com/platinummonkey/ruckstats/pkg/sessions"
)

// GoalSessionsPerWeek is the weekly session count that meets the training goal
const GoalSessionsPerWeek = 2

// MetricKind identifies a trend dimension
type MetricKind string

const (
	MetricDistance    MetricKind = "distance"
	MetricCalories    MetricKind = "calories"
	MetricSessions    MetricKind = "sessions"
	MetricWeightMoved MetricKind = "weight_moved"
	MetricDuration    MetricKind = "duration"
	MetricPace        MetricKind = "pace"
)

// LowerIsBetter reports whether a decrease counts as improvement
func (k MetricKind) LowerIsBetter() bool {
	return k == MetricPace
}

// Direction classifies a trend
type Direction string

const (
	DirectionImproving Direction = "improving"
	DirectionDeclining Direction = "declining"
	DirectionStable    Direction = "stable"
)

// TrendMetric compares one metric across two periods
type TrendMetric struct {
	Kind             MetricKind `json:"kind"`
	Current          float64    `json:"current"`
	Previous         float64    `json:"previous"`
	PercentageChange float64    `json:"percentage_change"`
	Direction        Direction  `json:"direction"`
}

// Snapshot is the summary of a period
type Snapshot struct {
	Period       period.Period `json:"period"`
	Range        period.Range  `json:"range"`
	SessionCount int           `json:"session_count"`

	TotalDistance    float64 `json:"total_distance_meters"`
	TotalCalories    float64 `json:"total_calories"`
	TotalDuration    float64 `json:"total_duration_seconds"`
	TotalWeightMoved float64 `json:"total_weight_moved_kg_km"`

	AverageDistance float64 `json:"average_distance_meters"`
	AverageCalories float64 `json:"average_calories"`
	AverageDuration float64 `json:"average_duration_seconds"`
	AverageLoad     float64 `json:"average_load_kg"`
	AveragePace     float64 `json:"average_pace_min_per_km"`

	LongestDistance  float64 `json:"longest_distance_meters"`
	FastestPace      float64 `json:"fastest_pace_min_per_km"`
	FastestPaceValid bool    `json:"fastest_pace_valid"`
	HeaviestLoad     float64 `json:"heaviest_load_kg"`
	HighestCalories  float64 `json:"highest_calories"`

	TrainingStreak int `json:"training_streak_weeks"`
	// Anomalies counts sessions with a NaN or infinite field
	Anomalies int `json:"anomalies"`

	Trends     map[MetricKind]TrendMetric `json:"trends,omitempty"`
	ComputedAt time.Time                  `json:"computed_at"`
}

// Value returns the snapshot figure compared by trends of kind
func (s Snapshot) Value(kind MetricKind) float64 {
	switch kind {
	case MetricDistance:
		return s.TotalDistance
	case MetricCalories:
		return s.TotalCalories
	case MetricSessions:
		return float64(s.SessionCount)
	case MetricWeightMoved:
		return s.TotalWeightMoved
	case MetricDuration:
		return s.TotalDuration
	case MetricPace:
		return s.AveragePace
	default:
		return 0
	}
}

// RecordEntry is one personal record. Valid is false, and Value 0, when no
// session qualified.
type RecordEntry struct {
	Value      float64   `json:"value"`
	SessionID  uuid.UUID `json:"session_id"`
	AchievedAt time.Time `json:"achieved_at"`
	Valid      bool      `json:"valid"`
}

// PersonalRecords holds the all-time bests
type PersonalRecords struct {
	LongestDistance       RecordEntry `json:"longest_distance"`
	FastestPace           RecordEntry `json:"fastest_pace"`
	HeaviestLoad          RecordEntry `json:"heaviest_load"`
	HighestCalories       RecordEntry `json:"highest_calories"`
	LongestDuration       RecordEntry `json:"longest_duration"`
	GreatestElevationGain RecordEntry `json:"greatest_elevation_gain"`
}

// WeeklyBucket aggregates one week, [WeekStart, WeekEnd)
type WeeklyBucket struct {
	WeekStart        time.Time `json:"week_start"`
	WeekEnd          time.Time `json:"week_end"`
	SessionCount     int       `json:"session_count"`
	TotalDistance    float64   `json:"total_distance_meters"`
	TotalDuration    float64   `json:"total_duration_seconds"`
	TotalCalories    float64   `json:"total_calories"`
	TotalWeightMoved float64   `json:"total_weight_moved_kg_km"`
	MeetsGoal        bool      `json:"meets_goal"`
}

// Bucket is one histogram bin, [Lower, Upper)
type Bucket struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// WeatherImpact relates conditions to pace
type WeatherImpact struct {
	// TemperaturePaceCorrelation is Pearson's r in [-1, 1]; 0 with fewer
	// than three samples.
	TemperaturePaceCorrelation float64            `json:"temperature_pace_correlation"`
	SampleSize                 int                `json:"sample_size"`
	AveragePaceByCondition     map[string]float64 `json:"average_pace_by_condition"`
}

// DetailedMetrics holds the distributions of a period
type DetailedMetrics struct {
	Period       period.Period `json:"period"`
	Range        period.Range  `json:"range"`
	SessionCount int           `json:"session_count"`

	PaceBuckets      []Bucket `json:"pace_buckets"`
	DistanceBuckets  []Bucket `json:"distance_buckets"`
	LoadDistribution []Bucket `json:"load_distribution"`

	// TerrainDistribution is the percentage of segment time per terrain
	TerrainDistribution map[sessions.TerrainType]float64 `json:"terrain_distribution"`
	WeatherImpact       WeatherImpact                    `json:"weather_impact"`
	// PaceConsistency is 100·(1 - coefficient of variation), in [0, 100]
	PaceConsistency float64 `json:"pace_consistency"`
}

// SeriesMetric selects the per-session value plotted by Series
type SeriesMetric string

const (
	SeriesDistance    SeriesMetric = "distance"
	SeriesPace        SeriesMetric = "pace"
	SeriesLoad        SeriesMetric = "load"
	SeriesCalories    SeriesMetric = "calories"
	SeriesDuration    SeriesMetric = "duration"
	SeriesElevation   SeriesMetric = "elevation"
	SeriesWeightMoved SeriesMetric = "weight-moved"
)

// SeriesMetrics lists every series metric
func SeriesMetrics() []SeriesMetric {
	return []SeriesMetric{
		SeriesDistance, SeriesPace, SeriesLoad, SeriesCalories,
		SeriesDuration, SeriesElevation, SeriesWeightMoved,
	}
}

// ParseSeriesMetric parses a series metric name
func ParseSeriesMetric(s string) (SeriesMetric, error) {
	m := SeriesMetric(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range SeriesMetrics() {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
}
