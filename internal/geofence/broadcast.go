package geofence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"hazard-service/internal/domain/hazard"
)

// ZoneAlert is what a zone's devices receive for an accepted event.
type ZoneAlert struct {
	EventID        string          `json:"detection_id"`
	HazardType     hazard.Type     `json:"hazard_type"`
	Location       hazard.Location `json:"location"`
	ZoneID         string          `json:"zone_id"`
	ZoneName       string          `json:"zone_name"`
	ZoneType       ZoneType        `json:"zone_type"`
	DistanceMeters float64         `json:"distance_meters"`
	DeviceCount    int             `json:"device_count"`
	Confidence     float64         `json:"confidence"`
	DriverLane     bool            `json:"driver_lane"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Notifier delivers a zone alert to the zone's channel.
type Notifier interface {
	NotifyZone(ctx context.Context, alert ZoneAlert) error
}

type Broadcaster struct {
	registry *Registry
	notifier Notifier
	log      zerolog.Logger
}

func NewBroadcaster(registry *Registry, notifier Notifier, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		notifier: notifier,
		log:      log.With().Str("component", "geofence").Logger(),
	}
}

// Broadcast sends event to every active zone containing it and returns how many zones
// were reached. Events without a location are skipped; a failing zone does not stop
// the others.
func (b *Broadcaster) Broadcast(ctx context.Context, event hazard.Event) int {
	if event.Location == nil {
		return 0
	}
	matches := b.registry.Containing(*event.Location)
	if len(matches) == 0 {
		b.log.Debug().Float64("lat", event.Location.Lat).Float64("lng", event.Location.Lng).Msg("no geofence zone for location")
		return 0
	}

	sent := 0
	for _, m := range matches {
		devices := b.registry.Subscribers(m.Zone.ID, event.Type)
		alert := ZoneAlert{
			EventID:        event.ID,
			HazardType:     event.Type,
			Location:       *event.Location,
			ZoneID:         m.Zone.ID,
			ZoneName:       m.Zone.Name,
			ZoneType:       m.Zone.Type,
			DistanceMeters: m.DistanceMeters,
			DeviceCount:    len(devices),
			Confidence:     event.Confidence,
			DriverLane:     event.DriverLane,
			Timestamp:      event.Timestamp,
		}
		if err := b.notifier.NotifyZone(ctx, alert); err != nil {
			b.log.Warn().Err(err).Str("zone_id", m.Zone.ID).Str("event_id", event.ID).Msg("zone broadcast failed")
			continue
		}
		sent++
		b.log.Info().
			Str("zone_id", m.Zone.ID).
			Str("zone_name", m.Zone.Name).
			Str("event_id", event.ID).
			Int("devices", len(devices)).
			Msg("broadcast hazard to geofence zone")
	}
	return sent
}
