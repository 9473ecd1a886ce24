package sessions

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/ruckstats/pkg/period"
)

// TerrainType classifies a stretch of a session
type TerrainType string

const (
	TerrainPavement TerrainType = "pavement"
	TerrainTrail    TerrainType = "trail"
	TerrainGravel   TerrainType = "gravel"
	TerrainSand     TerrainType = "sand"
	TerrainSnow     TerrainType = "snow"
	TerrainGrass    TerrainType = "grass"
	TerrainStairs   TerrainType = "stairs"
	TerrainUnknown  TerrainType = "unknown"
)

// TerrainSegment is a portion of a session spent on one terrain type
type TerrainSegment struct {
	Type     TerrainType `json:"type"`
	Duration float64     `json:"duration_seconds"`
	Distance float64     `json:"distance_meters"`
}

// Weather captures conditions recorded at the start of a session
type Weather struct {
	Condition    string  `json:"condition"`
	TemperatureC float64 `json:"temperature_c"`
	Humidity     float64 `json:"humidity"`
	WindSpeed    float64 `json:"wind_speed"`
}

// Record is a read-only projection of one activity session
type Record struct {
	ID            uuid.UUID        `json:"id"`
	StartedAt     time.Time        `json:"started_at"`
	EndedAt       *time.Time       `json:"ended_at,omitempty"`
	Distance      float64          `json:"distance_meters"`
	Duration      float64          `json:"duration_seconds"`
	LoadWeight    float64          `json:"load_weight_kg"`
	Calories      float64          `json:"calories"`
	AveragePace   float64          `json:"average_pace_min_per_km"`
	ElevationGain float64          `json:"elevation_gain_meters"`
	ElevationLoss float64          `json:"elevation_loss_meters"`
	Terrain       []TerrainSegment `json:"terrain,omitempty"`
	Weather       *Weather         `json:"weather,omitempty"`
}

// IsComplete reports whether the session has finished
func (r Record) IsComplete() bool {
	return r.EndedAt != nil
}

// HasAnomaly reports whether any numeric field is NaN or infinite
func (r Record) HasAnomaly() bool {
	for _, v := range []float64{
		r.Distance, r.Duration, r.LoadWeight, r.Calories,
		r.AveragePace, r.ElevationGain, r.ElevationLoss,
	} {
		if !IsFinite(v) {
			return true
		}
	}
	for _, seg := range r.Terrain {
		if !IsFinite(seg.Duration) || !IsFinite(seg.Distance) {
			return true
		}
	}
	if r.Weather != nil && (!IsFinite(r.Weather.TemperatureC) || !IsFinite(r.Weather.Humidity) || !IsFinite(r.Weather.WindSpeed)) {
		return true
	}
	return false
}

// IsFinite reports whether v is neither NaN nor infinite
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// CompleteOnly returns the complete records in order, dropping the rest
func CompleteOnly(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.IsComplete() {
			out = append(out, r)
		}
	}
	return out
}

// Store is the external record store
type Store interface {
	// FetchCompleteSessions returns complete records whose start time falls
	// in rng, ordered by start time. Any range, past or future, is valid.
	FetchCompleteSessions(ctx context.Context, rng period.Range) ([]Record, error)
}
