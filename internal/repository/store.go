package repository

import (
	"context"

	"hazard-service/internal/domain/hazard"
)

// Store is the durable, location-searchable home of accepted hazard events.
//
// Backend failures come back wrapped in hazard.ErrStorageUnavailable. A manual report
// whose fingerprint is already persisted returns hazard.ErrDuplicateFingerprint.
type Store interface {
	Insert(ctx context.Context, event *hazard.Event) (string, error)
	// FindNearby returns located events within radiusMeters (great-circle) of center whose
	// timestamp is within the last sinceDays days, nearest first. sinceDays <= 0 disables
	// the time bound.
	FindNearby(ctx context.Context, center hazard.Location, radiusMeters float64, sinceDays int) ([]hazard.NearbyEvent, error)
	Get(ctx context.Context, id string) (*hazard.Event, error)
	List(ctx context.Context, limit, offset int) ([]hazard.Event, error)
	UpdateStatus(ctx context.Context, id string, status hazard.Status) error
	// Delete removes a single event; an unknown id is hazard.ErrNotFound.
	Delete(ctx context.Context, id string) error
	DeleteOldEvents(ctx context.Context, days int) (int64, error)
	Ping(ctx context.Context) error
	Analytics
}

// Analytics aggregates stored events. Windows are counted back from now in days;
// days <= 0 means hazard.DefaultAnalyticsDays.
type Analytics interface {
	Trends(ctx context.Context, days int, interval hazard.TrendInterval) ([]hazard.TrendPoint, error)
	Distribution(ctx context.Context, days int) ([]hazard.TypeDistribution, error)
	Stats(ctx context.Context) (hazard.AnalyticsStats, error)
	Heatmap(ctx context.Context, days, limit int) ([]hazard.HeatmapCell, error)
}

const maxListLimit = 100

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func windowDays(days int) int {
	if days <= 0 {
		return hazard.DefaultAnalyticsDays
	}
	return days
}

func clampHeatmapLimit(limit int) int {
	if limit <= 0 {
		return hazard.DefaultHeatmapLimit
	}
	if limit > hazard.MaxHeatmapLimit {
		return hazard.MaxHeatmapLimit
	}
	return limit
}
