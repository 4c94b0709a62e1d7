package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hazard-service/internal/alert"
	"hazard-service/internal/domain/hazard"
	"hazard-service/internal/geofence"
)

type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Connect opens a paho client with auto-reconnect. onConnect runs after every
// (re)connection, which is where subscriptions are restored. stats may be nil.
func Connect(cfg Config, stats *Stats, onConnect func(paho.Client), log zerolog.Logger) (paho.Client, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "hazard-service-" + uuid.NewString()[:8]
	}
	log = log.With().Str("component", "mqtt").Str("broker", cfg.Broker).Logger()

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			stats.setConnected(false)
			log.Warn().Err(err).Msg("mqtt connection lost")
		}).
		SetOnConnectHandler(func(c paho.Client) {
			stats.setConnected(true)
			log.Info().Str("client_id", clientID).Msg("mqtt connected")
			if onConnect != nil {
				onConnect(c)
			}
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return client, errors.New("mqtt connect timed out, retrying in background")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return client, nil
}

// publisher is the part of paho.Client used for outgoing messages.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

func publishJSON(ctx context.Context, c publisher, stats *Stats, topic string, qos byte, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	token := c.Publish(topic, qos, false, payload)
	select {
	case <-token.Done():
		err = token.Error()
	case <-ctx.Done():
		err = ctx.Err()
	}
	stats.publishResult(err)
	return err
}

// AlertSink publishes notifications to <prefix>/<subscriber id>.
type AlertSink struct {
	client publisher
	stats  *Stats
	prefix string
	qos    byte
}

func NewAlertSink(client paho.Client, stats *Stats, prefix string, qos byte) *AlertSink {
	s := newAlertSink(client, prefix, qos)
	s.stats = stats
	return s
}

func newAlertSink(client publisher, prefix string, qos byte) *AlertSink {
	return &AlertSink{client: client, prefix: strings.TrimSuffix(prefix, "/"), qos: qos}
}

func (s *AlertSink) Notify(ctx context.Context, n alert.Notification) error {
	return publishJSON(ctx, s.client, s.stats, s.prefix+"/"+n.SubscriberID, s.qos, n)
}

// EventPublisher forwards accepted events to a single topic.
type EventPublisher struct {
	client publisher
	stats  *Stats
	topic  string
	qos    byte
}

func NewEventPublisher(client paho.Client, stats *Stats, topic string, qos byte) *EventPublisher {
	return &EventPublisher{client: client, stats: stats, topic: topic, qos: qos}
}

func (p *EventPublisher) Name() string { return "mqtt" }

func (p *EventPublisher) Publish(ctx context.Context, event hazard.Event) error {
	return publishJSON(ctx, p.client, p.stats, p.topic, p.qos, event)
}

// ZoneNotifier publishes geofence broadcasts to <prefix>/<zone id>/hazards.
type ZoneNotifier struct {
	client publisher
	stats  *Stats
	prefix string
	qos    byte
}

func NewZoneNotifier(client paho.Client, stats *Stats, prefix string, qos byte) *ZoneNotifier {
	return &ZoneNotifier{client: client, stats: stats, prefix: strings.TrimSuffix(prefix, "/"), qos: qos}
}

func (z *ZoneNotifier) Topic(zoneID string) string {
	return z.prefix + "/" + zoneID + "/hazards"
}

func (z *ZoneNotifier) NotifyZone(ctx context.Context, a geofence.ZoneAlert) error {
	return publishJSON(ctx, z.client, z.stats, z.Topic(a.ZoneID), z.qos, a)
}

// Processor is the ingestion entry point messages are handed to.
type Processor interface {
	ProcessIncomingEvent(ctx context.Context, payload hazard.EventPayload) (*hazard.ProcessResult, error)
}

// Ingestor feeds detections published by observers into the pipeline.
type Ingestor struct {
	processor Processor
	stats     *Stats
	topic     string
	qos       byte
	timeout   time.Duration
	log       zerolog.Logger
}

func NewIngestor(processor Processor, stats *Stats, topic string, qos byte, log zerolog.Logger) *Ingestor {
	return &Ingestor{
		processor: processor,
		stats:     stats,
		topic:     topic,
		qos:       qos,
		timeout:   5 * time.Second,
		log:       log.With().Str("component", "mqtt_ingestor").Str("topic", topic).Logger(),
	}
}

// Subscribe is meant to be passed as the onConnect hook to Connect.
func (i *Ingestor) Subscribe(c paho.Client) {
	token := c.Subscribe(i.topic, i.qos, i.handleMessage)
	if token.Wait() && token.Error() != nil {
		i.log.Error().Err(token.Error()).Msg("mqtt subscribe failed")
		return
	}
	i.log.Info().Msg("subscribed to detections")
}

func (i *Ingestor) handleMessage(_ paho.Client, msg paho.Message) {
	i.stats.messageReceived()
	var payload hazard.EventPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		i.stats.messageHandled(err)
		i.log.Warn().Err(err).Str("message_topic", msg.Topic()).Msg("discarding malformed detection")
		return
	}
	if payload.Source == "" {
		payload.Source = hazard.SourceStreamed
	}

	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()
	result, err := i.processor.ProcessIncomingEvent(ctx, payload)
	i.stats.messageHandled(err)
	if err != nil {
		i.log.Warn().Err(err).Str("message_topic", msg.Topic()).Msg("rejected detection")
		return
	}
	i.log.Debug().
		Str("message_topic", msg.Topic()).
		Str("outcome", string(result.Outcome)).
		Str("event_id", result.EventID).
		Msg("detection processed")
}
