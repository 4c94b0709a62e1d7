package hazard

import (
	"strings"
	"time"
)

const (
	DefaultAnalyticsDays = 30
	DefaultHeatmapLimit  = 1000
	MaxHeatmapLimit      = 5000
)

// TrendInterval is the bucket width of a trend series.
type TrendInterval string

const (
	IntervalHour TrendInterval = "hour"
	IntervalDay  TrendInterval = "day"
	IntervalWeek TrendInterval = "week"
)

// ParseTrendInterval falls back to a daily series for anything unrecognised.
func ParseTrendInterval(raw string) TrendInterval {
	switch TrendInterval(strings.ToLower(strings.TrimSpace(raw))) {
	case IntervalHour:
		return IntervalHour
	case IntervalWeek:
		return IntervalWeek
	default:
		return IntervalDay
	}
}

// Truncate returns the start of the bucket holding t, in UTC. Weeks start on Monday.
func (i TrendInterval) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch i {
	case IntervalHour:
		return t.Truncate(time.Hour)
	case IntervalWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

type TrendPoint struct {
	Period      time.Time `json:"time_period"`
	Count       int64     `json:"count"`
	UniqueTypes int64     `json:"unique_types"`
}

type TypeDistribution struct {
	Type            Type    `json:"hazard_type"`
	Count           int64   `json:"count"`
	AvgConfidence   float64 `json:"avg_confidence"`
	DriverLaneCount int64   `json:"driver_lane_count"`
}

type AnalyticsStats struct {
	TotalDetections   int64   `json:"total_detections"`
	DetectionsLast24h int64   `json:"detections_last_24h"`
	AvgConfidence     float64 `json:"avg_confidence"`
	DriverLaneHazards int64   `json:"driver_lane_hazards"`
	MostCommonType    *Type   `json:"most_common_type"`
	MostCommonCount   int64   `json:"most_common_count"`
}

// HeatmapCell counts events of one type reported at one exact point.
type HeatmapCell struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Type  Type    `json:"hazard_type"`
	Count int64   `json:"count"`
}
