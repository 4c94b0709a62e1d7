package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hazard-service/internal/dedup"
	"hazard-service/internal/domain/hazard"
	"hazard-service/internal/fingerprint"
	"hazard-service/internal/metrics"
	"hazard-service/internal/repository"
)

const (
	DefaultNearbyRadiusMeters = 100.0
	DefaultNearbySinceDays    = 7
	MaxNearbyRadiusMeters     = 50000.0
)

// ZoneBroadcaster fans accepted events out to the geofence zones containing them.
type ZoneBroadcaster interface {
	Broadcast(ctx context.Context, event hazard.Event) int
}

// Publisher forwards accepted events to downstream consumers.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, event hazard.Event) error
}

type Deps struct {
	Cache      dedup.Cache
	Store      repository.Store
	Generator  fingerprint.Generator
	Hub        *SubscriberHub
	Publishers []Publisher
	Zones      ZoneBroadcaster
	Metrics    *metrics.Metrics
}

type Options struct {
	CacheTTL time.Duration
	Region   *hazard.Region
}

type HazardService struct {
	cache      dedup.Cache
	store      repository.Store
	gen        fingerprint.Generator
	hub        *SubscriberHub
	publishers []Publisher
	zones      ZoneBroadcaster
	metrics    *metrics.Metrics
	ttl        time.Duration
	region     *hazard.Region
	now        func() time.Time
	log        zerolog.Logger
}

func NewHazardService(deps Deps, opts Options, log zerolog.Logger) *HazardService {
	log = log.With().Str("component", "hazard_service").Logger()

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = dedup.DefaultTTL
	}
	if width := deps.Generator.BucketWidth(); ttl < width {
		raised := width + time.Minute
		log.Warn().
			Dur("configured_ttl", ttl).
			Dur("bucket_width", width).
			Dur("ttl", raised).
			Msg("cache ttl shorter than fingerprint bucket, raising it")
		ttl = raised
	}

	return &HazardService{
		cache:      deps.Cache,
		store:      deps.Store,
		gen:        deps.Generator,
		hub:        deps.Hub,
		publishers: deps.Publishers,
		zones:      deps.Zones,
		metrics:    deps.Metrics,
		ttl:        ttl,
		region:     opts.Region,
		now:        time.Now,
		log:        log,
	}
}

func (s *HazardService) CacheTTL() time.Duration { return s.ttl }

// ProcessIncomingEvent runs one detection through repair, dedup, persistence and
// subscriber fan-out. Only malformed input is returned as an error; backend failures
// are absorbed (cache fails open, store fails drop) and show up in the result.
func (s *HazardService) ProcessIncomingEvent(ctx context.Context, payload hazard.EventPayload) (*hazard.ProcessResult, error) {
	started := s.now()
	event, corrected, err := s.buildEvent(payload)
	if err != nil {
		s.metrics.EventProcessed("invalid", s.now().Sub(started))
		return nil, err
	}
	result := &hazard.ProcessResult{Corrected: corrected}
	if corrected {
		s.metrics.CoordinatesCorrected()
		s.log.Info().
			Float64("lat", event.Location.Lat).
			Float64("lng", event.Location.Lng).
			Msg("corrected swapped coordinates")
	}

	key, err := s.gen.ForEvent(event)
	switch {
	case errors.Is(err, hazard.ErrMissingLocation):
		s.log.Debug().Str("type", string(event.Type)).Msg("event without location, skipping dedup")
	case err != nil:
		s.metrics.EventProcessed("invalid", s.now().Sub(started))
		return nil, fmt.Errorf("%w: %v", hazard.ErrInvalidInput, err)
	default:
		event.Fingerprint = key.String()
		result.Fingerprint = event.Fingerprint
		if s.isDuplicate(ctx, key) {
			result.Outcome = hazard.OutcomeDuplicate
			s.metrics.EventProcessed(string(result.Outcome), s.now().Sub(started))
			s.log.Debug().Str("fingerprint", event.Fingerprint).Msg("duplicate hazard suppressed")
			return result, nil
		}
	}

	id, err := s.store.Insert(ctx, event)
	if err != nil {
		if errors.Is(err, hazard.ErrDuplicateFingerprint) {
			result.Outcome = hazard.OutcomeDuplicate
			s.metrics.EventProcessed(string(result.Outcome), s.now().Sub(started))
			s.log.Debug().Str("fingerprint", event.Fingerprint).Msg("manual report already stored")
			return result, nil
		}
		s.metrics.StoreError("insert")
		s.log.Error().
			Err(err).
			Str("type", string(event.Type)).
			Str("fingerprint", event.Fingerprint).
			Msg("failed to persist hazard event, dropping")
		result.Outcome = hazard.OutcomeDropped
		s.metrics.EventProcessed(string(result.Outcome), s.now().Sub(started))
		return result, nil
	}
	result.EventID = id
	result.Outcome = hazard.OutcomeAccepted

	logEvent := s.log.Info().
		Str("event_id", id).
		Str("type", string(event.Type)).
		Str("source", string(event.Source)).
		Str("fingerprint", event.Fingerprint).
		Time("timestamp", event.Timestamp)
	if event.Location != nil {
		logEvent = logEvent.Float64("lat", event.Location.Lat).Float64("lng", event.Location.Lng)
	}
	logEvent.Msg("saved hazard event")

	s.publish(ctx, *event)
	if s.zones != nil {
		result.Zones = s.zones.Broadcast(ctx, *event)
	}
	if s.hub != nil {
		result.Notified = s.hub.Broadcast(*event)
	}
	s.metrics.EventProcessed(string(result.Outcome), s.now().Sub(started))
	return result, nil
}

// isDuplicate checks the cache and claims the key. Cache failures count as a miss.
func (s *HazardService) isDuplicate(ctx context.Context, key fingerprint.Key) bool {
	exists, err := s.cache.Exists(ctx, key.String())
	if err != nil {
		s.metrics.CacheError("exists")
		s.log.Warn().Err(err).Msg("duplicate cache unavailable, failing open")
		return false
	}
	if exists {
		return true
	}

	created, err := s.cache.Put(ctx, key.String(), s.ttl)
	if err != nil {
		s.metrics.CacheError("put")
		s.log.Warn().Err(err).Msg("failed to record fingerprint, continuing")
		return false
	}
	// another producer claimed the key between exists and put
	return !created
}

func (s *HazardService) buildEvent(p hazard.EventPayload) (*hazard.Event, bool, error) {
	hazardType := hazard.NormalizeType(p.Type)
	if hazardType == "" {
		return nil, false, fmt.Errorf("%w: type is required", hazard.ErrInvalidInput)
	}
	source := hazard.Source(strings.ToLower(strings.TrimSpace(string(p.Source))))
	if source == "" {
		source = hazard.SourceAuto
	}
	if !source.Valid() {
		return nil, false, fmt.Errorf("%w: unknown source %q", hazard.ErrInvalidInput, p.Source)
	}
	if math.IsNaN(p.Confidence) || p.Confidence < 0 || p.Confidence > 1 {
		return nil, false, fmt.Errorf("%w: confidence must be within [0, 1]", hazard.ErrInvalidInput)
	}
	if len(p.BBox) != 0 && len(p.BBox) != 4 {
		return nil, false, fmt.Errorf("%w: bbox must have 4 values", hazard.ErrInvalidInput)
	}

	ts := p.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	event := &hazard.Event{
		Type:           hazardType,
		Timestamp:      ts.UTC(),
		Confidence:     p.Confidence,
		DriverLane:     p.DriverLane,
		DistanceMeters: p.DistanceMeters,
		FrameNumber:    p.FrameNumber,
		Source:         source,
		Status:         hazard.StatusReported,
	}
	if len(p.BBox) == 4 {
		box := hazard.BoundingBox{p.BBox[0], p.BBox[1], p.BBox[2], p.BBox[3]}
		event.BoundingBox = &box
	}

	if p.Lat == nil || p.Lng == nil {
		return event, false, nil
	}
	loc, corrected, err := hazard.RepairCoordinates(*p.Lat, *p.Lng, s.region)
	if err != nil {
		return nil, false, err
	}
	event.Location = &loc
	return event, corrected, nil
}

func (s *HazardService) publish(ctx context.Context, event hazard.Event) {
	for _, p := range s.publishers {
		if err := p.Publish(ctx, event); err != nil {
			s.metrics.PublishError(p.Name())
			s.log.Warn().Err(err).Str("transport", p.Name()).Str("event_id", event.ID).Msg("failed to publish accepted event")
		}
	}
}

// FindNearby repairs the query center the same way ingestion does.
func (s *HazardService) FindNearby(ctx context.Context, lat, lng, radiusMeters float64, sinceDays int) ([]hazard.NearbyEvent, error) {
	center, _, err := hazard.RepairCoordinates(lat, lng, s.region)
	if err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		radiusMeters = DefaultNearbyRadiusMeters
	}
	if radiusMeters > MaxNearbyRadiusMeters {
		return nil, fmt.Errorf("%w: radius must not exceed %.0f meters", hazard.ErrInvalidInput, MaxNearbyRadiusMeters)
	}
	if sinceDays <= 0 {
		sinceDays = DefaultNearbySinceDays
	}
	events, err := s.store.FindNearby(ctx, center, radiusMeters, sinceDays)
	if err != nil {
		s.metrics.StoreError("find_nearby")
		return nil, err
	}
	return events, nil
}

func (s *HazardService) GetEvent(ctx context.Context, id string) (*hazard.Event, error) {
	return s.store.Get(ctx, id)
}

func (s *HazardService) ListEvents(ctx context.Context, limit, offset int) ([]hazard.Event, error) {
	return s.store.List(ctx, limit, offset)
}

func (s *HazardService) UpdateStatus(ctx context.Context, id string, status hazard.Status) error {
	if err := s.store.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	s.log.Info().Str("event_id", id).Str("status", string(status)).Msg("hazard status updated")
	return nil
}

func (s *HazardService) DeleteEvent(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if !errors.Is(err, hazard.ErrNotFound) {
			s.metrics.StoreError("delete")
		}
		return err
	}
	s.log.Info().Str("event_id", id).Msg("hazard event deleted")
	return nil
}

func (s *HazardService) Cleanup(ctx context.Context, days int) (int64, error) {
	deleted, err := s.store.DeleteOldEvents(ctx, days)
	if err != nil {
		return 0, err
	}
	s.log.Info().Int("days", days).Int64("deleted", deleted).Msg("old hazard events removed")
	return deleted, nil
}

func (s *HazardService) FlushCache(ctx context.Context) error {
	if err := s.cache.Flush(ctx); err != nil {
		s.metrics.CacheError("flush")
		return err
	}
	s.log.Warn().Msg("duplicate cache flushed")
	return nil
}
