package proximity

import (
	"hazard-service/internal/domain/hazard"
	"hazard-service/internal/geo"
)

const DefaultMinDisplacementMeters = 5.0

type HeadingSource string

const (
	HeadingDevice     HeadingSource = "device"
	HeadingDerived    HeadingSource = "derived"
	HeadingLastGood   HeadingSource = "last_good"
	HeadingUnreliable HeadingSource = "unreliable"
	HeadingUnknown    HeadingSource = "unknown"
)

// Heading is a direction of travel plus the minimum tolerance it can be trusted with.
// Tolerance 0 means the matcher default applies.
type Heading struct {
	Degrees   float64
	Tolerance float64
	Source    HeadingSource
}

// HeadingTracker derives a subscriber heading from successive fixes when the device does
// not report one. Not safe for concurrent use.
type HeadingTracker struct {
	minDisplacement float64
	anchor          *hazard.Location
	lastGood        *float64
}

func NewHeadingTracker(minDisplacementMeters float64) *HeadingTracker {
	if minDisplacementMeters <= 0 {
		minDisplacementMeters = DefaultMinDisplacementMeters
	}
	return &HeadingTracker{minDisplacement: minDisplacementMeters}
}

func (t *HeadingTracker) Update(loc hazard.Location, deviceHeading *float64) Heading {
	if deviceHeading != nil {
		deg := geo.NormalizeDegrees(*deviceHeading)
		t.lastGood = &deg
		t.anchor = &loc
		return Heading{Degrees: deg, Source: HeadingDevice}
	}

	if t.anchor == nil {
		t.anchor = &loc
		if t.lastGood != nil {
			return Heading{Degrees: *t.lastGood, Source: HeadingLastGood}
		}
		return Heading{Tolerance: 180, Source: HeadingUnknown}
	}

	prev := *t.anchor
	moved := geo.DistanceMeters(prev.Lat, prev.Lng, loc.Lat, loc.Lng)
	if moved >= t.minDisplacement {
		deg := geo.Bearing(prev.Lat, prev.Lng, loc.Lat, loc.Lng)
		t.lastGood = &deg
		t.anchor = &loc
		return Heading{Degrees: deg, Source: HeadingDerived}
	}

	// the anchor stays put so slow movement accumulates into a usable displacement
	if t.lastGood != nil {
		return Heading{Degrees: *t.lastGood, Source: HeadingLastGood}
	}
	if moved == 0 {
		return Heading{Tolerance: 180, Source: HeadingUnknown}
	}
	return Heading{
		Degrees:   geo.Bearing(prev.Lat, prev.Lng, loc.Lat, loc.Lng),
		Tolerance: 90,
		Source:    HeadingUnreliable,
	}
}
