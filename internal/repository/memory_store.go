package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/rtree"

	"hazard-service/internal/domain/hazard"
	"hazard-service/internal/geo"
)

// MemoryStore keeps events in process with an R-tree over located rows. Radius queries
// pre-filter on the bounding box of the circle and then apply the exact haversine test.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]hazard.Event
	order  []string
	index  rtree.RTreeG[string]
	manual map[string]string // fingerprint -> id, for manual reports
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string]hazard.Event),
		manual: make(map[string]string),
		now:    time.Now,
	}
}

func (s *MemoryStore) Insert(_ context.Context, event *hazard.Event) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.Source == hazard.SourceManual && event.Fingerprint != "" {
		if id, ok := s.manual[event.Fingerprint]; ok {
			return "", fmt.Errorf("%w: already stored as %s", hazard.ErrDuplicateFingerprint, id)
		}
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Status == "" {
		event.Status = hazard.StatusReported
	}

	stored := *event
	if event.Location != nil {
		loc := *event.Location
		stored.Location = &loc
		pt := [2]float64{loc.Lng, loc.Lat}
		s.index.Insert(pt, pt, stored.ID)
	}
	s.events[stored.ID] = stored
	s.order = append(s.order, stored.ID)
	if stored.Source == hazard.SourceManual && stored.Fingerprint != "" {
		s.manual[stored.Fingerprint] = stored.ID
	}
	return stored.ID, nil
}

func (s *MemoryStore) FindNearby(_ context.Context, center hazard.Location, radiusMeters float64, sinceDays int) ([]hazard.NearbyEvent, error) {
	if radiusMeters <= 0 {
		return []hazard.NearbyEvent{}, nil
	}
	var cutoff time.Time
	if sinceDays > 0 {
		cutoff = s.now().Add(-time.Duration(sinceDays) * 24 * time.Hour)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]hazard.NearbyEvent, 0)
	seen := make(map[string]struct{})
	for _, box := range geo.BoundingBox(center.Lat, center.Lng, radiusMeters).Split() {
		lo := [2]float64{box.MinLng, box.MinLat}
		hi := [2]float64{box.MaxLng, box.MaxLat}
		s.index.Search(lo, hi, func(_, _ [2]float64, id string) bool {
			if _, dup := seen[id]; dup {
				return true
			}
			seen[id] = struct{}{}
			e := s.events[id]
			if !cutoff.IsZero() && e.Timestamp.Before(cutoff) {
				return true
			}
			d := geo.DistanceMeters(center.Lat, center.Lng, e.Location.Lat, e.Location.Lng)
			if d <= radiusMeters {
				result = append(result, hazard.NearbyEvent{Event: copyEvent(e), DistanceMeters: d})
			}
			return true
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DistanceMeters != result[j].DistanceMeters {
			return result[i].DistanceMeters < result[j].DistanceMeters
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func copyEvent(e hazard.Event) hazard.Event {
	if e.Location != nil {
		loc := *e.Location
		e.Location = &loc
	}
	return e
}

func (s *MemoryStore) Get(_ context.Context, id string) (*hazard.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: hazard %s", hazard.ErrNotFound, id)
	}
	out := copyEvent(e)
	return &out, nil
}

// List returns events newest first.
func (s *MemoryStore) List(_ context.Context, limit, offset int) ([]hazard.Event, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]hazard.Event, 0, len(s.order))
	for _, id := range s.order {
		all = append(all, copyEvent(s.events[id]))
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })
	if offset >= len(all) {
		return []hazard.Event{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status hazard.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", hazard.ErrInvalidInput, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return fmt.Errorf("%w: hazard %s", hazard.ErrNotFound, id)
	}
	e.Status = status
	s.events[id] = e
	return nil
}

func (s *MemoryStore) DeleteOldEvents(_ context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("%w: days must be positive", hazard.ErrInvalidInput)
	}
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)

	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	kept := s.order[:0]
	for _, id := range s.order {
		e := s.events[id]
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, id)
			continue
		}
		s.unindexLocked(e)
		deleted++
	}
	s.order = kept
	return deleted, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return fmt.Errorf("%w: hazard %s", hazard.ErrNotFound, id)
	}
	s.unindexLocked(e)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// unindexLocked drops e from the map, the R-tree and the manual index. The caller
// maintains s.order.
func (s *MemoryStore) unindexLocked(e hazard.Event) {
	if e.Location != nil {
		pt := [2]float64{e.Location.Lng, e.Location.Lat}
		s.index.Delete(pt, pt, e.ID)
	}
	if e.Source == hazard.SourceManual && e.Fingerprint != "" {
		delete(s.manual, e.Fingerprint)
	}
	delete(s.events, e.ID)
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
