package repository

import (
	"testing"
	"time"

	"hazard-service/internal/domain/hazard"
)

func TestNewDetectionKeepsZeroConfidence(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 30, 0, time.UTC)
	event := &hazard.Event{
		ID:        "0f8fad5b-d9cb-469f-a165-70867728950e",
		Type:      hazard.TypePothole,
		Timestamp: ts,
		Source:    hazard.SourceManual,
		Status:    hazard.StatusReported,
	}
	row, err := newDetection(event)
	if err != nil {
		t.Fatalf("newDetection: %v", err)
	}
	if row.Confidence == nil || *row.Confidence != 0 {
		t.Fatalf("expected confidence 0 to be written, got %v", row.Confidence)
	}
	if row.Location.Valid {
		t.Fatalf("expected missing location to map to NULL")
	}
	if row.Fingerprint != nil || row.BoundingBox != nil {
		t.Fatalf("expected empty optional columns, got %+v", row)
	}

	back := detectionRow{
		ID:         row.ID,
		HazardType: row.HazardType,
		DetectedAt: row.DetectedAt,
		Confidence: row.Confidence,
		Source:     row.Source,
		Status:     row.Status,
	}.toEvent()
	if back.Confidence != 0 || back.Type != hazard.TypePothole || !back.Timestamp.Equal(ts) {
		t.Fatalf("unexpected round trip %+v", back)
	}
}

func TestNewDetectionOptionalColumns(t *testing.T) {
	box := hazard.BoundingBox{10, 20, 110, 220}
	event := &hazard.Event{
		ID:          "id",
		Location:    &hazard.Location{Lat: 19.1, Lng: 72.9},
		Type:        hazard.TypeDog,
		Confidence:  0.87,
		BoundingBox: &box,
		Fingerprint: "hazard:v1:abc",
	}
	row, err := newDetection(event)
	if err != nil {
		t.Fatalf("newDetection: %v", err)
	}
	if !row.Location.Valid || row.Location.Lat != 19.1 || row.Location.Lng != 72.9 {
		t.Fatalf("unexpected location %+v", row.Location)
	}
	if row.Fingerprint == nil || *row.Fingerprint != "hazard:v1:abc" {
		t.Fatalf("unexpected fingerprint %v", row.Fingerprint)
	}
	got := detectionRow{BoundingBox: row.BoundingBox, Confidence: row.Confidence}.toEvent()
	if got.BoundingBox == nil || *got.BoundingBox != box || got.Confidence != 0.87 {
		t.Fatalf("unexpected decoded columns %+v", got)
	}
}
