package repository

import (
	"context"
	"sort"
	"time"

	"hazard-service/internal/domain/hazard"
)

// recentLocked returns the events detected within the last days days.
func (s *MemoryStore) recentLocked(days int) []hazard.Event {
	cutoff := s.now().Add(-time.Duration(windowDays(days)) * 24 * time.Hour)
	out := make([]hazard.Event, 0, len(s.events))
	for _, id := range s.order {
		if e := s.events[id]; !e.Timestamp.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

func (s *MemoryStore) Trends(_ context.Context, days int, interval hazard.TrendInterval) ([]hazard.TrendPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type bucket struct {
		count int64
		types map[hazard.Type]struct{}
	}
	buckets := make(map[time.Time]*bucket)
	for _, e := range s.recentLocked(days) {
		period := interval.Truncate(e.Timestamp)
		b, ok := buckets[period]
		if !ok {
			b = &bucket{types: make(map[hazard.Type]struct{})}
			buckets[period] = b
		}
		b.count++
		b.types[e.Type] = struct{}{}
	}

	points := make([]hazard.TrendPoint, 0, len(buckets))
	for period, b := range buckets {
		points = append(points, hazard.TrendPoint{Period: period, Count: b.count, UniqueTypes: int64(len(b.types))})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Period.Before(points[j].Period) })
	return points, nil
}

func (s *MemoryStore) Distribution(_ context.Context, days int) ([]hazard.TypeDistribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byType := make(map[hazard.Type]*hazard.TypeDistribution)
	sums := make(map[hazard.Type]float64)
	for _, e := range s.recentLocked(days) {
		d, ok := byType[e.Type]
		if !ok {
			d = &hazard.TypeDistribution{Type: e.Type}
			byType[e.Type] = d
		}
		d.Count++
		sums[e.Type] += e.Confidence
		if e.DriverLane {
			d.DriverLaneCount++
		}
	}

	out := make([]hazard.TypeDistribution, 0, len(byType))
	for t, d := range byType {
		d.AvgConfidence = sums[t] / float64(d.Count)
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

func (s *MemoryStore) Stats(_ context.Context) (hazard.AnalyticsStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st hazard.AnalyticsStats
	dayAgo := s.now().Add(-24 * time.Hour)
	counts := make(map[hazard.Type]int64)
	var confSum float64
	for _, e := range s.events {
		st.TotalDetections++
		if !e.Timestamp.Before(dayAgo) {
			st.DetectionsLast24h++
		}
		if e.DriverLane {
			st.DriverLaneHazards++
		}
		confSum += e.Confidence
		counts[e.Type]++
	}
	if st.TotalDetections > 0 {
		st.AvgConfidence = confSum / float64(st.TotalDetections)
	}
	for t, c := range counts {
		if c > st.MostCommonCount || (c == st.MostCommonCount && st.MostCommonType != nil && t < *st.MostCommonType) {
			common := t
			st.MostCommonType = &common
			st.MostCommonCount = c
		}
	}
	return st, nil
}

func (s *MemoryStore) Heatmap(_ context.Context, days, limit int) ([]hazard.HeatmapCell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type cellKey struct {
		lat, lng float64
		kind     hazard.Type
	}
	cells := make(map[cellKey]int64)
	for _, e := range s.recentLocked(days) {
		if e.Location == nil {
			continue
		}
		cells[cellKey{e.Location.Lat, e.Location.Lng, e.Type}]++
	}

	out := make([]hazard.HeatmapCell, 0, len(cells))
	for k, c := range cells {
		out = append(out, hazard.HeatmapCell{Lat: k.lat, Lng: k.lng, Type: k.kind, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Lat != out[j].Lat {
			return out[i].Lat < out[j].Lat
		}
		if out[i].Lng != out[j].Lng {
			return out[i].Lng < out[j].Lng
		}
		return out[i].Type < out[j].Type
	})
	if limit = clampHeatmapLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
