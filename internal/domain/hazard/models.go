package hazard

import (
	"strings"
	"time"
)

type Type string

const (
	TypePothole          Type = "pothole"
	TypeSpeedbump        Type = "speedbump"
	TypePerson           Type = "person"
	TypeDog              Type = "dog"
	TypeCow              Type = "cow"
	TypeDebris           Type = "debris"
	TypeRoadConstruction Type = "road_construction"
	TypeWaterlogging     Type = "waterlogging"
	TypeFallenTree       Type = "fallen_tree"
)

// NormalizeType lowercases and trims a raw hazard type.
func NormalizeType(raw string) Type {
	return Type(strings.ToLower(strings.TrimSpace(raw)))
}

type Source string

const (
	SourceManual   Source = "manual"
	SourceAuto     Source = "auto"
	SourceStreamed Source = "streamed"
)

func (s Source) Valid() bool {
	switch s {
	case SourceManual, SourceAuto, SourceStreamed:
		return true
	}
	return false
}

type Status string

const (
	StatusReported Status = "reported"
	StatusResolved Status = "resolved"
)

func (s Status) Valid() bool {
	return s == StatusReported || s == StatusResolved
}

type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// BoundingBox is a detection box in frame coordinates: [x1, y1, x2, y2].
type BoundingBox [4]float64

// EventPayload is the ingestion wire form produced by the detection collaborator.
type EventPayload struct {
	Type           string    `json:"type"`
	Lat            *float64  `json:"lat"`
	Lng            *float64  `json:"lng"`
	Timestamp      time.Time `json:"timestamp"`
	Confidence     float64   `json:"confidence"`
	BBox           []float64 `json:"bbox,omitempty"`
	DriverLane     bool      `json:"driverLane"`
	DistanceMeters *float64  `json:"distanceMeters,omitempty"`
	FrameNumber    *int      `json:"frameNumber,omitempty"`
	Source         Source    `json:"source"`
}

type Event struct {
	ID             string       `json:"id"`
	Location       *Location    `json:"location,omitempty"`
	Type           Type         `json:"type"`
	Timestamp      time.Time    `json:"timestamp"`
	Confidence     float64      `json:"confidence"`
	BoundingBox    *BoundingBox `json:"bbox,omitempty"`
	DriverLane     bool         `json:"driverLane"`
	DistanceMeters *float64     `json:"distanceMeters,omitempty"`
	FrameNumber    *int         `json:"frameNumber,omitempty"`
	Source         Source       `json:"source"`
	Status         Status       `json:"status"`
	Fingerprint    string       `json:"fingerprint,omitempty"`
}

type NearbyEvent struct {
	Event
	DistanceMeters float64 `json:"distanceFromCenterMeters"`
}

// CatalogEntry is a reference hazard that is matched alongside freshly accepted events.
type CatalogEntry struct {
	ID         string    `json:"id" yaml:"id"`
	Location   Location  `json:"location" yaml:"location"`
	Type       Type      `json:"type" yaml:"type"`
	Severity   int       `json:"severity" yaml:"severity"`
	ReportedOn time.Time `json:"reportedOn" yaml:"reported_on"`
	Notes      string    `json:"notes,omitempty" yaml:"notes"`
}

type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeDropped   Outcome = "dropped"
)

type ProcessResult struct {
	Outcome     Outcome `json:"outcome"`
	EventID     string  `json:"event_id,omitempty"`
	Fingerprint string  `json:"fingerprint,omitempty"`
	Corrected   bool    `json:"coordinates_corrected,omitempty"`
	Notified    int     `json:"subscribers_notified"`
	Zones       int     `json:"zones_notified"`
}
