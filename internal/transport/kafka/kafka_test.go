package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"hazard-service/internal/domain/hazard"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestPublishKeysByFingerprint(t *testing.T) {
	w := &fakeWriter{}
	p := newEventPublisher(w, "hazard-detections", zerolog.Nop())
	ts := time.Date(2024, 5, 1, 10, 0, 30, 0, time.UTC)

	event := hazard.Event{
		ID:          "evt-1",
		Type:        hazard.TypePothole,
		Timestamp:   ts,
		Source:      hazard.SourceStreamed,
		Fingerprint: "hazard:v1:abc",
	}
	if err := p.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.messages) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.messages))
	}
	msg := w.messages[0]
	if string(msg.Key) != "hazard:v1:abc" {
		t.Fatalf("key = %q", msg.Key)
	}
	if !msg.Time.Equal(ts) {
		t.Fatalf("time = %v", msg.Time)
	}
	if header(msg, "type") != "pothole" || header(msg, "source") != "streamed" {
		t.Fatalf("headers = %+v", msg.Headers)
	}
	var decoded hazard.Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != "evt-1" {
		t.Fatalf("decoded id = %q", decoded.ID)
	}
}

func TestPublishFallsBackToEventID(t *testing.T) {
	w := &fakeWriter{}
	p := newEventPublisher(w, "hazard-detections", zerolog.Nop())
	if err := p.Publish(context.Background(), hazard.Event{ID: "evt-2"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if string(w.messages[0].Key) != "evt-2" {
		t.Fatalf("key = %q", w.messages[0].Key)
	}
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("leader not available")
	w := &fakeWriter{err: boom}
	p := newEventPublisher(w, "hazard-detections", zerolog.Nop())
	if p.Name() != "kafka" {
		t.Fatalf("Name = %q", p.Name())
	}
	if err := p.Publish(context.Background(), hazard.Event{ID: "x"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("Close: %v closed=%v", err, w.closed)
	}
}
