package fingerprint

import (
	"errors"
	"strings"
	"testing"
	"time"

	"hazard-service/internal/domain/hazard"
)

var mumbai = &hazard.Location{Lat: 19.123139, Lng: 72.886982}

func TestFingerprintIsDeterministic(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 2, 30, 0, time.UTC)
	a, err := Fingerprint(mumbai, "pothole", ts, 5, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Fingerprint(&hazard.Location{Lat: 19.123139, Lng: 72.886982}, "pothole", ts, 5, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatalf("expected identical keys, got %s and %s", a, b)
	}
	if !strings.HasPrefix(string(a), Prefix) {
		t.Errorf("expected prefix %q, got %s", Prefix, a)
	}
	if len(a) != len(Prefix)+64 {
		t.Errorf("expected sha256 hex digest, got %s", a)
	}
}

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		in        float64
		precision int
		want      string
	}{
		{19.12345, 4, "19.1235"},
		{19.12344, 4, "19.1234"},
		{-19.12345, 4, "-19.1234"},
		{72.88695, 4, "72.8870"},
		{0.00005, 4, "0.0001"},
		{-0.00005, 4, "0.0000"},
		{1.005, 2, "1.01"},
		{72, 4, "72.0000"},
	}
	for _, tt := range tests {
		if got := RoundHalfUp(tt.in, tt.precision); got != tt.want {
			t.Errorf("RoundHalfUp(%v, %d) = %s, want %s", tt.in, tt.precision, got, tt.want)
		}
	}
}

func TestSameCellSameBucketSameKey(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 0, 10, 0, time.UTC)
	a, _ := Fingerprint(&hazard.Location{Lat: 19.12341, Lng: 72.88691}, "Pothole ", ts, 5, 4)
	b, _ := Fingerprint(&hazard.Location{Lat: 19.12344, Lng: 72.88694}, "pothole", ts.Add(4*time.Minute), 5, 4)
	if a != b {
		t.Fatalf("expected events in the same cell and bucket to collide")
	}
}

func TestBucketBoundaryProducesDifferentKeys(t *testing.T) {
	before := time.Date(2025, 3, 1, 10, 4, 59, 0, time.UTC)
	after := time.Date(2025, 3, 1, 10, 5, 0, 0, time.UTC)
	a, _ := Fingerprint(mumbai, "pothole", before, 5, 4)
	b, _ := Fingerprint(mumbai, "pothole", after, 5, 4)
	if a == b {
		t.Fatalf("expected keys on either side of a bucket boundary to differ")
	}
}

func TestBucketIsEpochAligned(t *testing.T) {
	ts := time.Unix(1_700_000_123, 0)
	if got := Bucket(ts, 5); got != 1_700_000_100 {
		t.Errorf("expected 1700000100, got %d", got)
	}
	if got := Bucket(time.Unix(-1, 0), 5); got != -300 {
		t.Errorf("expected -300 for pre-epoch timestamps, got %d", got)
	}
}

func TestTypeAndCellChangeKey(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	base, _ := Fingerprint(mumbai, "pothole", ts, 5, 4)
	otherType, _ := Fingerprint(mumbai, "speedbump", ts, 5, 4)
	otherCell, _ := Fingerprint(&hazard.Location{Lat: 19.1241, Lng: 72.886982}, "pothole", ts, 5, 4)
	if base == otherType || base == otherCell {
		t.Fatalf("expected distinct keys for different type or cell")
	}
}

func TestSimpleIgnoresTime(t *testing.T) {
	a, _ := Simple(mumbai, "pothole", 4)
	b, _ := Simple(mumbai, " POTHOLE", 4)
	if a != b {
		t.Fatalf("expected simple keys to ignore case and whitespace")
	}
	tb, _ := Fingerprint(mumbai, "pothole", time.Now(), 5, 4)
	if a == tb {
		t.Fatalf("expected simple and time-bounded variants to differ")
	}
}

func TestFullUsesBoundingBox(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	box := &hazard.BoundingBox{10.001, 20.004, 110.2, 220.3}
	swapped := &hazard.BoundingBox{110.2, 220.3, 10.001, 20.004}
	other := &hazard.BoundingBox{50, 60, 70, 80}

	a, _ := Full(mumbai, "person", ts, box, 5, 4)
	b, _ := Full(mumbai, "person", ts, swapped, 5, 4)
	c, _ := Full(mumbai, "person", ts, other, 5, 4)
	if a != b {
		t.Errorf("expected corner order not to matter")
	}
	if a == c {
		t.Errorf("expected different boxes to produce different keys")
	}
}

func TestMissingLocation(t *testing.T) {
	_, err := Fingerprint(nil, "pothole", time.Now(), 5, 4)
	if !errors.Is(err, hazard.ErrMissingLocation) {
		t.Fatalf("expected ErrMissingLocation, got %v", err)
	}
	_, err = Simple(nil, "pothole", 4)
	if !errors.Is(err, hazard.ErrMissingLocation) {
		t.Fatalf("expected ErrMissingLocation, got %v", err)
	}
}

func TestInvalidWindow(t *testing.T) {
	_, err := Fingerprint(mumbai, "pothole", time.Now(), 0, 4)
	if !errors.Is(err, hazard.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestGeneratorVariants(t *testing.T) {
	g := NewGenerator(5, 4)
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	manual := &hazard.Event{Location: mumbai, Type: "pothole", Timestamp: ts, Source: hazard.SourceManual}
	got, _ := g.ForEvent(manual)
	want, _ := Simple(mumbai, "pothole", 4)
	if got != want {
		t.Errorf("manual reports should use the simple variant")
	}

	box := &hazard.BoundingBox{1, 2, 3, 4}
	streamed := &hazard.Event{Location: mumbai, Type: "dog", Timestamp: ts, Source: hazard.SourceStreamed, BoundingBox: box}
	got, _ = g.ForEvent(streamed)
	want, _ = Full(mumbai, "dog", ts, box, 5, 4)
	if got != want {
		t.Errorf("streamed detections with a box should use the full variant")
	}

	auto := &hazard.Event{Location: mumbai, Type: "dog", Timestamp: ts, Source: hazard.SourceAuto, BoundingBox: box}
	got, _ = g.ForEvent(auto)
	want, _ = Fingerprint(mumbai, "dog", ts, 5, 4)
	if got != want {
		t.Errorf("auto detections should use the time-bounded variant")
	}

	if g.BucketWidth() != 5*time.Minute {
		t.Errorf("expected 5m bucket width, got %s", g.BucketWidth())
	}
}
