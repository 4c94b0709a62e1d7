package repository

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const srid = 4326

// GeoPoint maps to a PostGIS geography(Point,4326) column. An invalid point is written
// as NULL.
type GeoPoint struct {
	Lat   float64
	Lng   float64
	Valid bool
}

func (p GeoPoint) point() orb.Point { return orb.Point{p.Lng, p.Lat} }

func (p GeoPoint) GormValue(_ context.Context, _ *gorm.DB) clause.Expr {
	if !p.Valid {
		return clause.Expr{SQL: "NULL"}
	}
	raw, err := ewkb.Marshal(p.point(), srid)
	if err != nil {
		// a plain point always encodes; keep the column NULL rather than failing the row
		return clause.Expr{SQL: "NULL"}
	}
	return clause.Expr{
		SQL:  "ST_GeomFromEWKB(?)::geography",
		Vars: []interface{}{raw},
	}
}

// Scan accepts the EWKB PostGIS returns for a geography point, either raw or
// hex-encoded as the text protocol sends it.
func (p *GeoPoint) Scan(value interface{}) error {
	*p = GeoPoint{}
	var raw []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("geopoint: unsupported scan type %T", value)
	}
	if len(raw) == 0 {
		return nil
	}
	if raw[0] != 0 && raw[0] != 1 {
		decoded := make([]byte, hex.DecodedLen(len(raw)))
		n, err := hex.Decode(decoded, raw)
		if err != nil {
			return fmt.Errorf("geopoint: decode hex: %w", err)
		}
		raw = decoded[:n]
	}

	geom, _, err := ewkb.Unmarshal(raw)
	if err != nil {
		return fmt.Errorf("geopoint: %w", err)
	}
	pt, ok := geom.(orb.Point)
	if !ok {
		return fmt.Errorf("geopoint: not a point (%s)", geom.GeoJSONType())
	}
	*p = GeoPoint{Lat: pt.Lat(), Lng: pt.Lon(), Valid: true}
	return nil
}
