package service

import (
	"errors"
	"testing"
	"time"

	"hazard-service/internal/alert"
	"hazard-service/internal/domain/hazard"
	"hazard-service/internal/proximity"
)

func expectNotification(t *testing.T, sink chanSink) alert.Notification {
	t.Helper()
	select {
	case n := <-sink:
		return n
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a notification")
		return alert.Notification{}
	}
}

func expectSilence(t *testing.T, sink chanSink) {
	t.Helper()
	select {
	case n := <-sink:
		t.Fatalf("unexpected notification %+v", n)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestHubMatchesCatalogOnPositionUpdate(t *testing.T) {
	sink := make(chanSink, 8)
	hub := newTestHub(t, sink)
	hub.SetCatalog([]hazard.CatalogEntry{
		{ID: "cat-1", Location: hazard.Location{Lat: 19.1005, Lng: 72.9}, Type: hazard.TypeRoadConstruction, Severity: 4},
		{ID: "cat-behind", Location: hazard.Location{Lat: 19.0995, Lng: 72.9}, Type: hazard.TypeCow, Severity: 2},
	})

	if err := hub.UpdatePosition("driver-1", Position{Location: hazard.Location{Lat: 19.1, Lng: 72.9}, Heading: f64(0)}); err != nil {
		t.Fatalf("update position: %v", err)
	}
	n := expectNotification(t, sink)
	if n.Priority != alert.PriorityEmergency || n.Message != "Road construction ahead in 56 meters" {
		t.Fatalf("unexpected notification %+v", n)
	}
	expectSilence(t, sink)

	// same hazard, same tier: not announced again
	if err := hub.UpdatePosition("driver-1", Position{Location: hazard.Location{Lat: 19.10001, Lng: 72.9}, Heading: f64(0)}); err != nil {
		t.Fatalf("update position: %v", err)
	}
	expectSilence(t, sink)

	info, ok := hub.Subscriber("driver-1")
	if !ok || info.Source != "device" {
		t.Fatalf("unexpected subscriber info %+v", info)
	}
}

func TestHubDisconnect(t *testing.T) {
	sink := make(chanSink, 8)
	hub := newTestHub(t, sink)

	if err := hub.UpdatePosition("driver-1", Position{Location: hazard.Location{Lat: 19.1, Lng: 72.9}}); err != nil {
		t.Fatalf("update position: %v", err)
	}
	if hub.Count() != 1 {
		t.Fatalf("expected one session, got %d", hub.Count())
	}
	if !hub.Disconnect("driver-1") {
		t.Fatalf("expected disconnect to find the session")
	}
	if hub.Disconnect("driver-1") {
		t.Fatalf("expected second disconnect to be a no-op")
	}
	if n := hub.Broadcast(hazard.Event{ID: "e", Location: &hazard.Location{Lat: 19.1001, Lng: 72.9}, Type: hazard.TypeDog}); n != 0 {
		t.Fatalf("expected no sessions reached after disconnect, got %d", n)
	}
	expectSilence(t, sink)
}

func TestHubRejectsBadPositions(t *testing.T) {
	hub := newTestHub(t, make(chanSink, 1))
	if err := hub.UpdatePosition("", Position{}); !errors.Is(err, hazard.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty id, got %v", err)
	}
	if err := hub.UpdatePosition("d", Position{Location: hazard.Location{Lat: 300, Lng: 300}}); !errors.Is(err, hazard.ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
	if hub.Count() != 0 {
		t.Fatalf("expected no session for rejected positions")
	}
}

func TestRepeatSuppressor(t *testing.T) {
	r := newRepeatSuppressor(time.Minute)
	now := time.Now()
	if !r.allow("a", now) {
		t.Fatalf("expected unseen key to be allowed")
	}
	r.mark("a", now)
	if r.allow("a", now.Add(30*time.Second)) {
		t.Fatalf("expected key inside window to be suppressed")
	}
	if !r.allow("a", now.Add(time.Minute)) {
		t.Fatalf("expected key to be allowed once the window passed")
	}
}

func TestFreshEventsWindow(t *testing.T) {
	f := newFreshEvents(time.Minute)
	now := time.Now()
	f.add(candidateAt("old"), now)
	f.add(candidateAt("new"), now.Add(50*time.Second))
	got := f.snapshot(now.Add(90 * time.Second))
	if len(got) != 1 || got[0].ID != "new" {
		t.Fatalf("expected only the recent event, got %+v", got)
	}
}

func candidateAt(id string) proximity.Candidate {
	return proximity.Candidate{ID: id, Location: hazard.Location{Lat: 1, Lng: 1}}
}

func TestAlertMessage(t *testing.T) {
	tests := []struct {
		typ  hazard.Type
		want string
	}{
		{hazard.TypeRoadConstruction, "Road construction ahead in 120 meters"},
		{hazard.Type("ñandú_crossing"), "Ñandú crossing ahead in 120 meters"},
		{hazard.Type(""), "Hazard ahead in 120 meters"},
	}
	for _, tt := range tests {
		m := proximity.Match{Candidate: proximity.Candidate{Type: tt.typ}, DistanceMeters: 120.2}
		if got := alertMessage(m); got != tt.want {
			t.Errorf("alertMessage(%q) = %q, want %q", tt.typ, got, tt.want)
		}
	}
}
