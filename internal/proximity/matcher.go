package proximity

import (
	"sort"

	"hazard-service/internal/alert"
	"hazard-service/internal/domain/hazard"
	"hazard-service/internal/geo"
)

const (
	DefaultMaxDistanceMeters = 500.0
	DefaultToleranceDegrees  = 45.0
)

type Urgency string

const (
	UrgencyImmediate   Urgency = "immediate"
	UrgencyVeryClose   Urgency = "very_close"
	UrgencyClose       Urgency = "close"
	UrgencyApproaching Urgency = "approaching"
	UrgencyNearby      Urgency = "nearby"
)

// ClassifyUrgency buckets a distance in meters. Anything past 300 m is nearby.
func ClassifyUrgency(distanceMeters float64) Urgency {
	switch {
	case distanceMeters <= 50:
		return UrgencyImmediate
	case distanceMeters <= 100:
		return UrgencyVeryClose
	case distanceMeters <= 200:
		return UrgencyClose
	case distanceMeters <= 300:
		return UrgencyApproaching
	default:
		return UrgencyNearby
	}
}

func (u Urgency) Priority() alert.Priority {
	switch u {
	case UrgencyImmediate, UrgencyVeryClose:
		return alert.PriorityEmergency
	case UrgencyClose, UrgencyApproaching:
		return alert.PriorityHazard
	default:
		return alert.PriorityWarning
	}
}

// Candidate is anything that can be matched against a subscriber: a catalog entry or a
// freshly accepted event.
type Candidate struct {
	ID       string          `json:"id"`
	Location hazard.Location `json:"location"`
	Type     hazard.Type     `json:"type"`
	Severity int             `json:"severity,omitempty"`
}

type Match struct {
	Candidate
	DistanceMeters float64 `json:"distanceMeters"`
	Bearing        float64 `json:"bearing"`
	Urgency        Urgency `json:"urgency"`
}

// FindAhead returns candidates within maxDistanceMeters whose bearing from loc is within
// toleranceDegrees of heading, nearest first. A tolerance of 180 or more accepts every
// direction.
func FindAhead(loc hazard.Location, heading float64, candidates []Candidate, maxDistanceMeters, toleranceDegrees float64) []Match {
	matches := make([]Match, 0)
	for _, c := range candidates {
		d := geo.DistanceMeters(loc.Lat, loc.Lng, c.Location.Lat, c.Location.Lng)
		if d > maxDistanceMeters {
			continue
		}
		b := geo.Bearing(loc.Lat, loc.Lng, c.Location.Lat, c.Location.Lng)
		if toleranceDegrees < 180 && geo.AngleDiff(heading, b) > toleranceDegrees {
			continue
		}
		matches = append(matches, Match{
			Candidate:      c,
			DistanceMeters: d,
			Bearing:        b,
			Urgency:        ClassifyUrgency(d),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].DistanceMeters != matches[j].DistanceMeters {
			return matches[i].DistanceMeters < matches[j].DistanceMeters
		}
		return matches[i].ID < matches[j].ID
	})
	return matches
}

type Options struct {
	MaxDistanceMeters float64 `mapstructure:"max_distance_meters"`
	ToleranceDegrees  float64 `mapstructure:"tolerance_degrees"`
}

func (o Options) withDefaults() Options {
	if o.MaxDistanceMeters <= 0 {
		o.MaxDistanceMeters = DefaultMaxDistanceMeters
	}
	if o.ToleranceDegrees <= 0 {
		o.ToleranceDegrees = DefaultToleranceDegrees
	}
	return o
}

type Matcher struct {
	opts Options
}

func NewMatcher(opts Options) Matcher {
	return Matcher{opts: opts.withDefaults()}
}

func (m Matcher) Options() Options { return m.opts }

// FindAhead matches with the configured distance, using the heading's own tolerance when
// the tracker widened it.
func (m Matcher) FindAhead(loc hazard.Location, h Heading, candidates []Candidate) []Match {
	tol := m.opts.ToleranceDegrees
	if h.Tolerance > tol {
		tol = h.Tolerance
	}
	return FindAhead(loc, h.Degrees, candidates, m.opts.MaxDistanceMeters, tol)
}
