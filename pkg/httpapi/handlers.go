package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/platinummonkey/ruckstats/pkg/analytics"
	"github.com/platinummonkey/ruckstats/pkg/chart"
	"github.com/platinummonkey/ruckstats/pkg/httputil"
	"github.com/platinummonkey/ruckstats/pkg/observability"
	"github.com/platinummonkey/ruckstats/pkg/period"
)

// CompareResponse pairs a snapshot carrying trends with its baseline
type CompareResponse struct {
	Current    *analytics.Snapshot `json:"current"`
	Comparison *analytics.Snapshot `json:"comparison"`
}

// SeriesResponse is a display series with its sampling settings
type SeriesResponse struct {
	Period       period.Period          `json:"period"`
	Metric       analytics.SeriesMetric `json:"metric"`
	SourcePoints int                    `json:"source_points"`
	chart.View
}

// EvictionResponse reports how many cache entries a sweep removed
type EvictionResponse struct {
	Removed int `json:"removed"`
	Items   int `json:"items"`
}

// InvalidateResponse reports the cache generation after invalidation
type InvalidateResponse struct {
	Status     string `json:"status"`
	Generation uint64 `json:"generation"`
}

func pathPeriod(r *http.Request) (period.Period, error) {
	raw, err := httputil.ParsePathString(r, "period")
	if err != nil {
		return "", err
	}
	return period.Parse(raw)
}

func (s *Server) getAnalytics(w http.ResponseWriter, r *http.Request) {
	p, err := pathPeriod(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	snap, err := s.repo.FetchAnalyticsData(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, snap)
}

func (s *Server) getRecords(w http.ResponseWriter, r *http.Request) {
	pr, err := s.repo.FetchPersonalRecords(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, pr)
}

func (s *Server) getWeekly(w http.ResponseWriter, r *http.Request) {
	weeks, ok := httputil.ParseQueryIntOrError(w, r, "weeks", s.opts.DefaultWeeks)
	if !ok {
		return
	}

	buckets, err := s.repo.FetchWeeklyAnalyticsData(r.Context(), weeks)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, buckets)
}

func (s *Server) getCompare(w http.ResponseWriter, r *http.Request) {
	current, err := period.Parse(httputil.ParseQueryString(r, "current", string(period.Weekly)))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	var comparison period.Period
	if raw := httputil.ParseQueryString(r, "comparison", ""); raw != "" {
		if comparison, err = period.Parse(raw); err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
	} else {
		prev, ok := current.Previous()
		if !ok {
			httputil.WriteBadRequest(w, fmt.Sprintf("period %s has no default comparison; pass comparison", current))
			return
		}
		comparison = prev
	}

	cur, prev, err := s.repo.FetchComparativeAnalytics(r.Context(), current, comparison)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, CompareResponse{Current: cur, Comparison: prev})
}

func (s *Server) getDetailed(w http.ResponseWriter, r *http.Request) {
	p, err := pathPeriod(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	dm, err := s.repo.FetchDetailedMetrics(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, dm)
}

func (s *Server) getSeries(w http.ResponseWriter, r *http.Request) {
	p, err := pathPeriod(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	rawMetric, err := httputil.ParsePathString(r, "metric")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	metric, err := analytics.ParseSeriesMetric(rawMetric)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	maxPoints, ok := httputil.ParseQueryIntOrError(w, r, "max", s.opts.MaxDisplayPoints)
	if !ok {
		return
	}
	if maxPoints < 2 {
		httputil.WriteBadRequest(w, "max must be at least 2")
		return
	}
	strategy, err := chart.ParseStrategy(httputil.ParseQueryString(r, "strategy", string(s.opts.Strategy)))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	points, err := s.repo.FetchSeries(r.Context(), p, metric)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data := chart.NewOptimizedData(maxPoints, strategy, chart.WithMetrics(s.opts.Metrics))
	if err := s.sample(r.Context(), data, points); err != nil {
		s.writeError(w, r, err)
		return
	}
	view := data.View()

	_ = httputil.WriteSuccess(w, SeriesResponse{
		Period:       p,
		Metric:       metric,
		SourcePoints: len(view.Source),
		View:         view,
	})
}

func (s *Server) getCacheStats(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteSuccess(w, s.repo.CacheStats())
}

func (s *Server) postInvalidate(w http.ResponseWriter, r *http.Request) {
	err := s.repo.InvalidateCache(r.Context())
	stats := s.repo.CacheStats()
	if err != nil {
		// the local tier is already purged
		httputil.WriteDetailedError(w, http.StatusServiceUnavailable, err, map[string]string{
			"generation": fmt.Sprint(stats.Generation),
		})
		return
	}
	_ = httputil.WriteSuccess(w, InvalidateResponse{Status: "invalidated", Generation: stats.Generation})
}

// sample fills data from points on the sampler pool and waits for it
func (s *Server) sample(ctx context.Context, data *chart.OptimizedData, points []chart.Point) error {
	if s.opts.Sampler == nil {
		data.UpdateData(points)
		return nil
	}

	done, err := data.UpdateDataAsync(ctx, s.opts.Sampler, points)
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) postMaintenance(w http.ResponseWriter, r *http.Request) {
	removed := s.repo.PerformCacheMaintenance()
	_ = httputil.WriteSuccess(w, EvictionResponse{Removed: removed, Items: s.repo.CacheStats().Items})
}

func (s *Server) postPressure(w http.ResponseWriter, r *http.Request) {
	removed := s.repo.HandleMemoryPressure()
	observability.FromContext(r.Context()).WithField("evicted", removed).Info("cache shed on request")
	_ = httputil.WriteSuccess(w, EvictionResponse{Removed: removed, Items: s.repo.CacheStats().Items})
}
