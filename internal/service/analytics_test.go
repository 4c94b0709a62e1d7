package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hazard-service/internal/dedup"
	"hazard-service/internal/domain/hazard"
	"hazard-service/internal/fingerprint"
	"hazard-service/internal/geofence"
	"hazard-service/internal/repository"
)

func TestAnalyticsValidation(t *testing.T) {
	svc := newTestService(t, dedup.NewMemoryCache(100), repository.NewMemoryStore(), nil)
	ctx := context.Background()

	if _, err := svc.Trends(ctx, -1, hazard.IntervalDay); !errors.Is(err, hazard.ErrInvalidInput) {
		t.Fatalf("expected negative days to be rejected, got %v", err)
	}
	if _, err := svc.Distribution(ctx, MaxAnalyticsDays+1); !errors.Is(err, hazard.ErrInvalidInput) {
		t.Fatalf("expected oversized window to be rejected, got %v", err)
	}
	if _, err := svc.Heatmap(ctx, 7, -1); !errors.Is(err, hazard.ErrInvalidInput) {
		t.Fatalf("expected negative limit to be rejected, got %v", err)
	}
	if points, err := svc.Trends(ctx, 0, hazard.IntervalWeek); err != nil || len(points) != 0 {
		t.Fatalf("expected empty series, got %v err=%v", points, err)
	}
}

func TestAnalyticsReflectAcceptedEvents(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, dedup.NewMemoryCache(100), repository.NewMemoryStore(), nil)

	now := time.Now().UTC()
	for i, typ := range []string{"pothole", "pothole", "cow"} {
		_, err := svc.ProcessIncomingEvent(ctx, hazard.EventPayload{
			Type:       typ,
			Lat:        f64(19.1 + float64(i)*0.01),
			Lng:        f64(72.9),
			Timestamp:  now.Add(-time.Duration(i) * time.Minute),
			Confidence: 0.5,
			DriverLane: i == 0,
		})
		if err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}

	st, err := svc.AnalyticsStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalDetections != 3 || st.DriverLaneHazards != 1 || st.MostCommonType == nil || *st.MostCommonType != hazard.TypePothole {
		t.Fatalf("unexpected stats %+v", st)
	}
	dist, _ := svc.Distribution(ctx, 0)
	if len(dist) != 2 || dist[0].Count != 2 {
		t.Fatalf("unexpected distribution %+v", dist)
	}
	cells, _ := svc.Heatmap(ctx, 0, 0)
	if len(cells) != 3 {
		t.Fatalf("expected a cell per location, got %d", len(cells))
	}

	db := svc.DatabaseStatus(ctx)
	if !db.Connected || db.Backend != "memory" || db.TotalHazards != 3 {
		t.Fatalf("unexpected database status %+v", db)
	}
}

func TestDatabaseStatusWithStoreDown(t *testing.T) {
	svc := newTestService(t, dedup.NewMemoryCache(100), downStore{repository.NewMemoryStore()}, nil)
	db := svc.DatabaseStatus(context.Background())
	if db.Connected || db.TotalHazards != 0 {
		t.Fatalf("expected disconnected status, got %+v", db)
	}
}

func TestDeleteEvent(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newTestService(t, dedup.NewMemoryCache(100), store, nil)

	res, err := svc.ProcessIncomingEvent(ctx, hazard.EventPayload{Type: "debris", Lat: f64(19.1), Lng: f64(72.9), Confidence: 0.7})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := svc.DeleteEvent(ctx, res.EventID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetEvent(ctx, res.EventID); !errors.Is(err, hazard.ErrNotFound) {
		t.Fatalf("expected event to be gone, got %v", err)
	}
	if err := svc.DeleteEvent(ctx, res.EventID); !errors.Is(err, hazard.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type zoneRecorder struct{ alerts []geofence.ZoneAlert }

func (z *zoneRecorder) NotifyZone(_ context.Context, a geofence.ZoneAlert) error {
	z.alerts = append(z.alerts, a)
	return nil
}

func TestAcceptedEventIsBroadcastToZones(t *testing.T) {
	ctx := context.Background()
	registry := geofence.NewRegistry()
	zone, err := registry.CreateZone(geofence.Zone{Name: "Andheri", Type: geofence.ZoneCity, Center: hazard.Location{Lat: 19.12, Lng: 72.85}, RadiusMeters: 3000})
	if err != nil {
		t.Fatalf("create zone: %v", err)
	}
	rec := &zoneRecorder{}
	svc := NewHazardService(Deps{
		Cache:     dedup.NewMemoryCache(100),
		Store:     repository.NewMemoryStore(),
		Generator: fingerprint.NewGenerator(5, 4),
		Zones:     geofence.NewBroadcaster(registry, rec, zerolog.Nop()),
	}, Options{Region: serviceRegion}, zerolog.Nop())

	payload := hazard.EventPayload{
		Type:       "pothole",
		Lat:        f64(19.121),
		Lng:        f64(72.851),
		Timestamp:  time.Date(2024, 5, 1, 10, 0, 30, 0, time.UTC),
		Confidence: 0.9,
	}
	res, err := svc.ProcessIncomingEvent(ctx, payload)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Zones != 1 || len(rec.alerts) != 1 || rec.alerts[0].ZoneID != zone.ID || rec.alerts[0].EventID != res.EventID {
		t.Fatalf("expected one zone broadcast, got result %+v alerts %+v", res, rec.alerts)
	}

	// duplicates are suppressed before fan-out
	res, _ = svc.ProcessIncomingEvent(ctx, payload)
	if res.Outcome != hazard.OutcomeDuplicate || len(rec.alerts) != 1 {
		t.Fatalf("expected duplicate to skip the broadcast, got %+v", res)
	}
}
