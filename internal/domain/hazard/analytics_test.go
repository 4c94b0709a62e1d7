package hazard

import (
	"testing"
	"time"
)

func TestParseTrendInterval(t *testing.T) {
	tests := map[string]TrendInterval{
		"hour":   IntervalHour,
		" WEEK ": IntervalWeek,
		"day":    IntervalDay,
		"":       IntervalDay,
		"month":  IntervalDay,
	}
	for raw, want := range tests {
		if got := ParseTrendInterval(raw); got != want {
			t.Errorf("ParseTrendInterval(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestTrendIntervalTruncate(t *testing.T) {
	// Thursday
	ts := time.Date(2024, 5, 2, 17, 45, 12, 0, time.UTC)
	tests := []struct {
		interval TrendInterval
		want     time.Time
	}{
		{IntervalHour, time.Date(2024, 5, 2, 17, 0, 0, 0, time.UTC)},
		{IntervalDay, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)},
		{IntervalWeek, time.Date(2024, 4, 29, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := tt.interval.Truncate(ts); !got.Equal(tt.want) {
			t.Errorf("%s: got %v, want %v", tt.interval, got, tt.want)
		}
	}

	sunday := time.Date(2024, 5, 5, 23, 0, 0, 0, time.UTC)
	if got := IntervalWeek.Truncate(sunday); !got.Equal(time.Date(2024, 4, 29, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("sunday belongs to the week starting monday, got %v", got)
	}
}
