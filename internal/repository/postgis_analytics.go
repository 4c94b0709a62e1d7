package repository

import (
	"context"
	"time"

	"hazard-service/internal/domain/hazard"
)

func (s *PostGISStore) since(days int) time.Time {
	return time.Now().Add(-time.Duration(windowDays(days)) * 24 * time.Hour)
}

// Trends buckets in UTC so both stores agree on period boundaries.
func (s *PostGISStore) Trends(ctx context.Context, days int, interval hazard.TrendInterval) ([]hazard.TrendPoint, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []struct {
		Period      time.Time
		Count       int64
		UniqueTypes int64
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT DATE_TRUNC(@unit, detected_at AT TIME ZONE 'UTC') AS period,
		       COUNT(*) AS count,
		       COUNT(DISTINCT hazard_type) AS unique_types
		FROM hazard_detections
		WHERE detected_at >= @since
		GROUP BY period
		ORDER BY period ASC`,
		map[string]interface{}{"unit": string(interval), "since": s.since(days)},
	).Scan(&rows).Error
	if err != nil {
		return nil, storageErr("trends", err)
	}

	points := make([]hazard.TrendPoint, 0, len(rows))
	for _, r := range rows {
		period := time.Date(r.Period.Year(), r.Period.Month(), r.Period.Day(), r.Period.Hour(), 0, 0, 0, time.UTC)
		points = append(points, hazard.TrendPoint{Period: period, Count: r.Count, UniqueTypes: r.UniqueTypes})
	}
	return points, nil
}

func (s *PostGISStore) Distribution(ctx context.Context, days int) ([]hazard.TypeDistribution, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []struct {
		HazardType      string
		Count           int64
		AvgConfidence   *float64
		DriverLaneCount int64
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT hazard_type,
		       COUNT(*) AS count,
		       AVG(confidence) AS avg_confidence,
		       COUNT(*) FILTER (WHERE driver_lane) AS driver_lane_count
		FROM hazard_detections
		WHERE detected_at >= ?
		GROUP BY hazard_type
		ORDER BY count DESC, hazard_type ASC`, s.since(days),
	).Scan(&rows).Error
	if err != nil {
		return nil, storageErr("distribution", err)
	}

	out := make([]hazard.TypeDistribution, 0, len(rows))
	for _, r := range rows {
		d := hazard.TypeDistribution{Type: hazard.Type(r.HazardType), Count: r.Count, DriverLaneCount: r.DriverLaneCount}
		if r.AvgConfidence != nil {
			d.AvgConfidence = *r.AvgConfidence
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *PostGISStore) Stats(ctx context.Context) (hazard.AnalyticsStats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var totals struct {
		TotalDetections   int64
		DetectionsLast24h int64
		AvgConfidence     *float64
		DriverLaneHazards int64
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT COUNT(*) AS total_detections,
		       COUNT(*) FILTER (WHERE detected_at >= ?) AS detections_last24h,
		       AVG(confidence) AS avg_confidence,
		       COUNT(*) FILTER (WHERE driver_lane) AS driver_lane_hazards
		FROM hazard_detections`, time.Now().Add(-24*time.Hour),
	).Scan(&totals).Error
	if err != nil {
		return hazard.AnalyticsStats{}, storageErr("stats", err)
	}

	st := hazard.AnalyticsStats{
		TotalDetections:   totals.TotalDetections,
		DetectionsLast24h: totals.DetectionsLast24h,
		DriverLaneHazards: totals.DriverLaneHazards,
	}
	if totals.AvgConfidence != nil {
		st.AvgConfidence = *totals.AvgConfidence
	}

	var common []struct {
		HazardType string
		Count      int64
	}
	err = s.db.WithContext(ctx).Raw(`
		SELECT hazard_type, COUNT(*) AS count
		FROM hazard_detections
		GROUP BY hazard_type
		ORDER BY count DESC, hazard_type ASC
		LIMIT 1`).Scan(&common).Error
	if err != nil {
		return hazard.AnalyticsStats{}, storageErr("stats", err)
	}
	if len(common) == 1 {
		t := hazard.Type(common[0].HazardType)
		st.MostCommonType = &t
		st.MostCommonCount = common[0].Count
	}
	return st, nil
}

func (s *PostGISStore) Heatmap(ctx context.Context, days, limit int) ([]hazard.HeatmapCell, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []struct {
		Lat        float64
		Lng        float64
		HazardType string
		Count      int64
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT ST_Y(location::geometry) AS lat,
		       ST_X(location::geometry) AS lng,
		       hazard_type,
		       COUNT(*) AS count
		FROM hazard_detections
		WHERE detected_at >= ? AND location IS NOT NULL
		GROUP BY lat, lng, hazard_type
		ORDER BY count DESC, lat ASC, lng ASC, hazard_type ASC
		LIMIT ?`, s.since(days), clampHeatmapLimit(limit),
	).Scan(&rows).Error
	if err != nil {
		return nil, storageErr("heatmap", err)
	}

	out := make([]hazard.HeatmapCell, 0, len(rows))
	for _, r := range rows {
		out = append(out, hazard.HeatmapCell{Lat: r.Lat, Lng: r.Lng, Type: hazard.Type(r.HazardType), Count: r.Count})
	}
	return out, nil
}
