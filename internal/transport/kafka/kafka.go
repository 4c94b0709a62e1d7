package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"hazard-service/internal/domain/hazard"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventPublisher writes accepted events to a topic keyed by fingerprint, so repeats of
// one physical hazard land on the same partition.
type EventPublisher struct {
	writer messageWriter
	topic  string
	log    zerolog.Logger
}

func NewEventPublisher(brokers []string, topic string, log zerolog.Logger) *EventPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        false,
	}
	return newEventPublisher(w, topic, log)
}

func newEventPublisher(w messageWriter, topic string, log zerolog.Logger) *EventPublisher {
	return &EventPublisher{
		writer: w,
		topic:  topic,
		log:    log.With().Str("component", "kafka_publisher").Str("topic", topic).Logger(),
	}
}

func (p *EventPublisher) Name() string { return "kafka" }

func (p *EventPublisher) Publish(ctx context.Context, event hazard.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}
	key := event.Fingerprint
	if key == "" {
		key = event.ID
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
			{Key: "source", Value: []byte(event.Source)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to %s: %w", p.topic, err)
	}
	p.log.Debug().Str("event_id", event.ID).Str("key", key).Msg("event published")
	return nil
}

func (p *EventPublisher) Close() error {
	return p.writer.Close()
}
