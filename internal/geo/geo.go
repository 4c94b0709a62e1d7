// Package geo holds the great-circle helpers shared by the store and the matcher.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

const EarthRadiusMeters = orb.EarthRadius

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// DistanceMeters is the haversine distance between two points.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	return orbgeo.DistanceHaversine(orb.Point{lng1, lat1}, orb.Point{lng2, lat2})
}

// Bearing is the initial forward azimuth from point 1 to point 2, in [0, 360).
func Bearing(lat1, lng1, lat2, lng2 float64) float64 {
	return NormalizeDegrees(orbgeo.Bearing(orb.Point{lng1, lat1}, orb.Point{lng2, lat2}))
}

func NormalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// AngleDiff is the absolute circular difference between two headings, in [0, 180].
func AngleDiff(a, b float64) float64 {
	d := math.Abs(NormalizeDegrees(a) - NormalizeDegrees(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// Box is an axis-aligned lat/lng rectangle. MinLng > MaxLng means the box crosses the
// antimeridian.
type Box struct {
	MinLat, MinLng, MaxLat, MaxLng float64
}

// BoundingBox returns a rectangle that contains every point within radius of the center.
func BoundingBox(lat, lng, radiusMeters float64) Box {
	dLat := toDeg(radiusMeters / EarthRadiusMeters)
	minLat, maxLat := lat-dLat, lat+dLat
	if minLat <= -90 || maxLat >= 90 {
		return Box{MinLat: math.Max(minLat, -90), MinLng: -180, MaxLat: math.Min(maxLat, 90), MaxLng: 180}
	}
	dLng := toDeg(radiusMeters / (EarthRadiusMeters * math.Cos(toRad(lat))))
	if dLng >= 180 {
		return Box{MinLat: minLat, MinLng: -180, MaxLat: maxLat, MaxLng: 180}
	}
	minLng, maxLng := lng-dLng, lng+dLng
	if minLng < -180 {
		minLng += 360
	}
	if maxLng > 180 {
		maxLng -= 360
	}
	return Box{MinLat: minLat, MinLng: minLng, MaxLat: maxLat, MaxLng: maxLng}
}

// Split returns the box as one or two rectangles that do not cross the antimeridian.
func (b Box) Split() []Box {
	if b.MinLng <= b.MaxLng {
		return []Box{b}
	}
	return []Box{
		{MinLat: b.MinLat, MinLng: b.MinLng, MaxLat: b.MaxLat, MaxLng: 180},
		{MinLat: b.MinLat, MinLng: -180, MaxLat: b.MaxLat, MaxLng: b.MaxLng},
	}
}
