package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Priority int

const (
	PriorityWarning Priority = iota + 1
	PriorityHazard
	PriorityEmergency
)

var priorities = []Priority{PriorityWarning, PriorityHazard, PriorityEmergency}

func (p Priority) String() string {
	switch p {
	case PriorityWarning:
		return "warning"
	case PriorityHazard:
		return "hazard"
	case PriorityEmergency:
		return "emergency"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

func (p Priority) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func ParsePriority(s string) (Priority, error) {
	for _, p := range priorities {
		if strings.EqualFold(s, p.String()) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// Notification is what a sink receives for one alert.
type Notification struct {
	SubscriberID string    `json:"subscriberId"`
	Message      string    `json:"message"`
	Priority     Priority  `json:"priority"`
	Category     string    `json:"category,omitempty"`
	IssuedAt     time.Time `json:"issuedAt"`
}

// Sink delivers a notification to the playback collaborator. ctx is cancelled when the
// alert is preempted or flushed.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) LogSink {
	return LogSink{log: log.With().Str("component", "alert_sink").Logger()}
}

func (s LogSink) Notify(_ context.Context, n Notification) error {
	s.log.Info().
		Str("subscriber_id", n.SubscriberID).
		Str("priority", n.Priority.String()).
		Str("category", n.Category).
		Msg(n.Message)
	return nil
}

// MultiSink fans a notification out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
