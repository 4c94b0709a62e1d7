// Package fingerprint derives deterministic spatio-temporal keys for hazard events.
//
// Keys are computed over a versioned canonical string:
//
//	v1|<variant>|<lat>|<lng>|<type>|<bucket>|<bbox>
//
// lat/lng are rounded half-up to the configured precision and printed with exactly that
// many digits, bucket is the epoch-aligned window start in unix seconds ("-" for the simple
// variant), bbox is four half-up rounded values with two digits ("-" when absent). The
// digest is SHA-256, hex encoded, prefixed with "hazard:v1:".
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"hazard-service/internal/domain/hazard"
)

const (
	Version = "v1"
	Prefix  = "hazard:" + Version + ":"

	DefaultWindowMinutes = 5
	DefaultPrecision     = 4
	bboxPrecision        = 2
	maxPrecision         = 10
)

type Key string

func (k Key) String() string { return string(k) }

type variant string

const (
	variantSimple variant = "simple"
	variantTime   variant = "time"
	variantFull   variant = "full"
)

var half = decimal.New(5, -1)

// RoundHalfUp rounds v to precision digits, ties going toward +Inf, and returns the
// fixed-digit decimal string. The float is taken at its shortest decimal representation
// so 19.12345 rounds to 19.1235 rather than suffering binary representation error.
func RoundHalfUp(v float64, precision int) string {
	p := int32(precision)
	return decimal.NewFromFloat(v).Shift(p).Add(half).Floor().Shift(-p).StringFixed(p)
}

// Bucket returns the start of the epoch-aligned window that contains ts, in unix seconds.
func Bucket(ts time.Time, windowMinutes int) int64 {
	width := int64(windowMinutes) * 60
	sec := ts.Unix()
	b := sec / width
	if sec%width != 0 && sec < 0 {
		b--
	}
	return b * width
}

// Fingerprint is the time-bounded key: rounded location, normalized type and time bucket.
func Fingerprint(loc *hazard.Location, hazardType string, ts time.Time, windowMinutes, precision int) (Key, error) {
	if err := checkWindow(windowMinutes); err != nil {
		return "", err
	}
	return build(variantTime, loc, hazardType, strconv.FormatInt(Bucket(ts, windowMinutes), 10), nil, precision)
}

// Simple keys on location and type only; used for long-lived manual reports.
func Simple(loc *hazard.Location, hazardType string, precision int) (Key, error) {
	return build(variantSimple, loc, hazardType, "-", nil, precision)
}

// Full adds the normalized bounding box to the time-bounded key; used for frame-level
// streamed detections.
func Full(loc *hazard.Location, hazardType string, ts time.Time, bbox *hazard.BoundingBox, windowMinutes, precision int) (Key, error) {
	if err := checkWindow(windowMinutes); err != nil {
		return "", err
	}
	return build(variantFull, loc, hazardType, strconv.FormatInt(Bucket(ts, windowMinutes), 10), bbox, precision)
}

func checkWindow(windowMinutes int) error {
	if windowMinutes <= 0 {
		return fmt.Errorf("%w: window must be positive, got %d", hazard.ErrInvalidInput, windowMinutes)
	}
	return nil
}

func build(v variant, loc *hazard.Location, hazardType, bucket string, bbox *hazard.BoundingBox, precision int) (Key, error) {
	if loc == nil {
		return "", hazard.ErrMissingLocation
	}
	if precision < 0 || precision > maxPrecision {
		return "", fmt.Errorf("%w: precision must be within [0, %d], got %d", hazard.ErrInvalidInput, maxPrecision, precision)
	}
	var b strings.Builder
	b.WriteString(Version)
	b.WriteByte('|')
	b.WriteString(string(v))
	b.WriteByte('|')
	b.WriteString(RoundHalfUp(loc.Lat, precision))
	b.WriteByte('|')
	b.WriteString(RoundHalfUp(loc.Lng, precision))
	b.WriteByte('|')
	b.WriteString(string(hazard.NormalizeType(hazardType)))
	b.WriteByte('|')
	b.WriteString(bucket)
	b.WriteByte('|')
	b.WriteString(canonicalBBox(bbox))

	sum := sha256.Sum256([]byte(b.String()))
	return Key(Prefix + hex.EncodeToString(sum[:])), nil
}

func canonicalBBox(bbox *hazard.BoundingBox) string {
	if bbox == nil {
		return "-"
	}
	x1, y1, x2, y2 := bbox[0], bbox[1], bbox[2], bbox[3]
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	parts := []string{
		RoundHalfUp(x1, bboxPrecision),
		RoundHalfUp(y1, bboxPrecision),
		RoundHalfUp(x2, bboxPrecision),
		RoundHalfUp(y2, bboxPrecision),
	}
	return strings.Join(parts, ",")
}

// Generator applies the configured window and precision and picks the variant for an
// event: manual reports use Simple, streamed detections with a box use Full, everything
// else the time-bounded key.
type Generator struct {
	WindowMinutes int
	Precision     int
}

func NewGenerator(windowMinutes, precision int) Generator {
	if windowMinutes <= 0 {
		windowMinutes = DefaultWindowMinutes
	}
	if precision < 0 {
		precision = DefaultPrecision
	}
	return Generator{WindowMinutes: windowMinutes, Precision: precision}
}

// BucketWidth is the span one time bucket covers.
func (g Generator) BucketWidth() time.Duration {
	return time.Duration(g.WindowMinutes) * time.Minute
}

func (g Generator) ForEvent(e *hazard.Event) (Key, error) {
	switch {
	case e.Source == hazard.SourceManual:
		return Simple(e.Location, string(e.Type), g.Precision)
	case e.Source == hazard.SourceStreamed && e.BoundingBox != nil:
		return Full(e.Location, string(e.Type), e.Timestamp, e.BoundingBox, g.WindowMinutes, g.Precision)
	default:
		return Fingerprint(e.Location, string(e.Type), e.Timestamp, g.WindowMinutes, g.Precision)
	}
}
