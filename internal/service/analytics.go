package service

import (
	"context"
	"fmt"
	"time"

	"hazard-service/internal/domain/hazard"
	"hazard-service/internal/repository"
)

const MaxAnalyticsDays = 365

func analyticsDays(days int) (int, error) {
	if days < 0 || days > MaxAnalyticsDays {
		return 0, fmt.Errorf("%w: days must be within [1, %d]", hazard.ErrInvalidInput, MaxAnalyticsDays)
	}
	if days == 0 {
		return hazard.DefaultAnalyticsDays, nil
	}
	return days, nil
}

func (s *HazardService) Trends(ctx context.Context, days int, interval hazard.TrendInterval) ([]hazard.TrendPoint, error) {
	days, err := analyticsDays(days)
	if err != nil {
		return nil, err
	}
	points, err := s.store.Trends(ctx, days, interval)
	if err != nil {
		s.metrics.StoreError("trends")
		return nil, err
	}
	return points, nil
}

func (s *HazardService) Distribution(ctx context.Context, days int) ([]hazard.TypeDistribution, error) {
	days, err := analyticsDays(days)
	if err != nil {
		return nil, err
	}
	dist, err := s.store.Distribution(ctx, days)
	if err != nil {
		s.metrics.StoreError("distribution")
		return nil, err
	}
	return dist, nil
}

func (s *HazardService) AnalyticsStats(ctx context.Context) (hazard.AnalyticsStats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		s.metrics.StoreError("stats")
		return hazard.AnalyticsStats{}, err
	}
	return st, nil
}

func (s *HazardService) Heatmap(ctx context.Context, days, limit int) ([]hazard.HeatmapCell, error) {
	days, err := analyticsDays(days)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", hazard.ErrInvalidInput)
	}
	cells, err := s.store.Heatmap(ctx, days, limit)
	if err != nil {
		s.metrics.StoreError("heatmap")
		return nil, err
	}
	return cells, nil
}

type DatabaseStatus struct {
	Connected    bool      `json:"connected"`
	Backend      string    `json:"backend"`
	TotalHazards int64     `json:"total_hazards"`
	CheckedAt    time.Time `json:"checked_at"`
}

// DatabaseStatus never fails; an unreachable store reports connected=false.
func (s *HazardService) DatabaseStatus(ctx context.Context) DatabaseStatus {
	st := DatabaseStatus{Backend: "memory", CheckedAt: s.now().UTC()}
	if _, ok := s.store.(*repository.PostGISStore); ok {
		st.Backend = "postgis"
	}
	if !s.StoreConnected(ctx) {
		return st
	}
	st.Connected = true
	if stats, err := s.store.Stats(ctx); err == nil {
		st.TotalHazards = stats.TotalDetections
	} else {
		s.log.Warn().Err(err).Msg("failed to count stored hazards")
	}
	return st
}
