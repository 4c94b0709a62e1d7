package catalog

import (
	"errors"
	"strings"
	"testing"
	"time"

	"hazard-service/internal/domain/hazard"
)

const sample = `
hazards:
  - id: pothole-andheri-1
    location: {lat: 19.1197, lng: 72.8468}
    type: " Pothole "
    severity: 4
    reported_on: 2024-04-12T08:30:00Z
    notes: deep, left lane
  - id: swapped
    location: {lat: 172.8468, lng: 19.1197}
    type: debris
    severity: 2
    reported_on: 2024-04-13T00:00:00Z
`

func TestParse(t *testing.T) {
	entries, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	first := entries[0]
	if first.Type != hazard.TypePothole || first.Severity != 4 || first.Notes != "deep, left lane" {
		t.Fatalf("unexpected first entry %+v", first)
	}
	if !first.ReportedOn.Equal(time.Date(2024, 4, 12, 8, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected reported_on %s", first.ReportedOn)
	}
	if entries[1].Location.Lat != 19.1197 || entries[1].Location.Lng != 172.8468 {
		t.Fatalf("expected swapped entry to be repaired, got %+v", entries[1].Location)
	}
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"missing id":   "hazards:\n  - type: cow\n    severity: 1\n",
		"bad severity": "hazards:\n  - id: a\n    type: cow\n    severity: 9\n",
		"duplicate id": "hazards:\n  - id: a\n    type: cow\n    severity: 1\n  - id: a\n    type: dog\n    severity: 1\n",
		"unknown key":  "hazards:\n  - id: a\n    type: cow\n    severity: 1\n    colour: red\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(doc)); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}

	bad := "hazards:\n  - id: a\n    type: cow\n    severity: 1\n    location: {lat: 200, lng: 200}\n"
	if _, err := Parse(strings.NewReader(bad)); !errors.Is(err, hazard.ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
}

func TestParseEmpty(t *testing.T) {
	entries, err := Parse(strings.NewReader(""))
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected empty catalog, got %v %v", entries, err)
	}
}
