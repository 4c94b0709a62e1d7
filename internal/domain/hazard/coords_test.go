package hazard

import (
	"errors"
	"math"
	"testing"
)

func TestRepairCoordinates(t *testing.T) {
	mumbai := &Region{MinLat: 18, MaxLat: 20, MinLng: 72, MaxLng: 74}

	tests := []struct {
		name      string
		lat, lng  float64
		region    *Region
		want      Location
		corrected bool
		wantErr   bool
	}{
		{name: "valid pair", lat: 19.1, lng: 72.9, want: Location{Lat: 19.1, Lng: 72.9}},
		{name: "lat out of range swapped", lat: 120.5, lng: 45.2, want: Location{Lat: 45.2, Lng: 120.5}, corrected: true},
		{name: "swapped pair inside region", lat: 72.886982, lng: 19.123139, region: mumbai, want: Location{Lat: 19.123139, Lng: 72.886982}, corrected: true},
		{name: "swapped pair inside default region", lat: 72.886982, lng: 19.123139, region: &DefaultRegion, want: Location{Lat: 19.123139, Lng: 72.886982}, corrected: true},
		{name: "in range without region is kept", lat: 72.886982, lng: 19.123139, want: Location{Lat: 72.886982, Lng: 19.123139}},
		{name: "outside region but swap does not help", lat: 40.7, lng: -74.0, region: mumbai, want: Location{Lat: 40.7, Lng: -74.0}},
		{name: "both out of range", lat: 200, lng: 200, wantErr: true},
		{name: "swap leaves lat out of range", lat: 95, lng: 170, wantErr: true},
		{name: "nan", lat: math.NaN(), lng: 10, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, corrected, err := RepairCoordinates(tt.lat, tt.lng, tt.region)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCoordinate) {
					t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want || corrected != tt.corrected {
				t.Fatalf("got %+v corrected=%v, want %+v corrected=%v", got, corrected, tt.want, tt.corrected)
			}
		})
	}
}

func TestNormalizeType(t *testing.T) {
	if got := NormalizeType("  PotHole "); got != TypePothole {
		t.Fatalf("got %q", got)
	}
}
