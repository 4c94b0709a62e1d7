package hazard

import "fmt"

// Region is an optional service area used to detect lat/lng ordering mistakes that
// still fall inside the valid coordinate ranges.
type Region struct {
	MinLat float64 `mapstructure:"min_lat"`
	MaxLat float64 `mapstructure:"max_lat"`
	MinLng float64 `mapstructure:"min_lng"`
	MaxLng float64 `mapstructure:"max_lng"`
}

// DefaultRegion bounds the deployment area (India). Observers there report lat 6..37 and
// lng 68..98, so a pair in the swapped order is always recognisable.
var DefaultRegion = Region{MinLat: 6, MaxLat: 37, MinLng: 68, MaxLng: 98}

func (r *Region) Contains(lat, lng float64) bool {
	if r == nil {
		return true
	}
	return lat >= r.MinLat && lat <= r.MaxLat && lng >= r.MinLng && lng <= r.MaxLng
}

func validPair(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// RepairCoordinates validates a lat/lng pair and swaps it when the provider evidently
// sent them in the wrong order. corrected reports whether a swap happened.
func RepairCoordinates(lat, lng float64, region *Region) (loc Location, corrected bool, err error) {
	if validPair(lat, lng) {
		if region != nil && !region.Contains(lat, lng) && validPair(lng, lat) && region.Contains(lng, lat) {
			return Location{Lat: lng, Lng: lat}, true, nil
		}
		return Location{Lat: lat, Lng: lng}, false, nil
	}
	if (lat < -90 || lat > 90) && validPair(lng, lat) {
		return Location{Lat: lng, Lng: lat}, true, nil
	}
	return Location{}, false, fmt.Errorf("%w: lat=%v lng=%v", ErrInvalidCoordinate, lat, lng)
}
