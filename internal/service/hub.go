package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"hazard-service/internal/alert"
	"hazard-service/internal/domain/hazard"
	"hazard-service/internal/metrics"
	"hazard-service/internal/proximity"
)

const sessionInboxSize = 64

type HubConfig struct {
	Alert                 alert.Config
	Proximity             proximity.Options
	MinDisplacementMeters float64
	// FreshWindow is how long an accepted event stays a matching candidate.
	FreshWindow time.Duration
	// RepeatWindow suppresses re-announcing the same hazard at the same priority.
	RepeatWindow time.Duration
	Region       *hazard.Region
}

type Position struct {
	Location hazard.Location `json:"location"`
	Heading  *float64        `json:"heading,omitempty"`
}

type SubscriberInfo struct {
	ID       string          `json:"id"`
	Location hazard.Location `json:"location"`
	Heading  float64         `json:"heading"`
	Source   string          `json:"heading_source"`
	Alerts   alert.Snapshot  `json:"alerts"`
}

// SubscriberHub owns one session goroutine per connected subscriber. Each session has its
// own dispatcher, heading tracker and repeat suppressor; nothing mutable is shared
// between sessions.
type SubscriberHub struct {
	cfg     HubConfig
	matcher proximity.Matcher
	sink    alert.Sink
	metrics *metrics.Metrics
	log     zerolog.Logger

	catalogMu sync.RWMutex
	catalog   []proximity.Candidate
	fresh     *freshEvents

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

func NewSubscriberHub(sink alert.Sink, cfg HubConfig, m *metrics.Metrics, log zerolog.Logger) *SubscriberHub {
	if cfg.FreshWindow <= 0 {
		cfg.FreshWindow = 30 * time.Minute
	}
	if cfg.RepeatWindow <= 0 {
		cfg.RepeatWindow = 2 * time.Minute
	}
	return &SubscriberHub{
		cfg:      cfg,
		matcher:  proximity.NewMatcher(cfg.Proximity),
		sink:     sink,
		metrics:  m,
		log:      log.With().Str("component", "subscriber_hub").Logger(),
		fresh:    newFreshEvents(cfg.FreshWindow),
		sessions: make(map[string]*session),
	}
}

func (h *SubscriberHub) SetCatalog(entries []hazard.CatalogEntry) {
	candidates := make([]proximity.Candidate, 0, len(entries))
	for _, e := range entries {
		candidates = append(candidates, proximity.Candidate{
			ID:       e.ID,
			Location: e.Location,
			Type:     e.Type,
			Severity: e.Severity,
		})
	}
	h.catalogMu.Lock()
	h.catalog = candidates
	h.catalogMu.Unlock()
	h.log.Info().Int("entries", len(candidates)).Msg("hazard catalog loaded")
}

func (h *SubscriberHub) candidates(now time.Time) []proximity.Candidate {
	h.catalogMu.RLock()
	out := make([]proximity.Candidate, 0, len(h.catalog))
	out = append(out, h.catalog...)
	h.catalogMu.RUnlock()
	return append(out, h.fresh.snapshot(now)...)
}

// UpdatePosition records a subscriber fix, starting a session on first contact.
func (h *SubscriberHub) UpdatePosition(id string, pos Position) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: subscriber id is required", hazard.ErrInvalidInput)
	}
	loc, corrected, err := hazard.RepairCoordinates(pos.Location.Lat, pos.Location.Lng, h.cfg.Region)
	if err != nil {
		return err
	}
	if corrected {
		h.log.Info().Str("subscriber_id", id).Msg("corrected swapped subscriber coordinates")
	}
	pos.Location = loc

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("%w: hub is closed", hazard.ErrInvalidInput)
	}
	s, ok := h.sessions[id]
	if !ok {
		s = h.startSessionLocked(id)
	}
	s.deliver(sessionMsg{pos: &pos})
	return nil
}

func (h *SubscriberHub) startSessionLocked(id string) *session {
	ctx, cancel := context.WithCancel(context.Background())
	log := h.log.With().Str("subscriber_id", id).Logger()
	s := &session{
		id:         id,
		hub:        h,
		dispatcher: alert.NewDispatcher(id, h.sink, h.cfg.Alert, log),
		tracker:    proximity.NewHeadingTracker(h.cfg.MinDisplacementMeters),
		repeats:    newRepeatSuppressor(h.cfg.RepeatWindow),
		inbox:      make(chan sessionMsg, sessionInboxSize),
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        log,
	}
	h.sessions[id] = s
	h.metrics.SubscriberConnected()
	go s.run(ctx)
	log.Info().Msg("subscriber connected")
	return s
}

// Disconnect stops the subscriber's session and releases its alert state.
func (h *SubscriberHub) Disconnect(id string) bool {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	h.mu.Unlock()
	if !ok {
		return false
	}
	s.stop()
	h.metrics.SubscriberDisconnected()
	h.log.Info().Str("subscriber_id", id).Msg("subscriber disconnected")
	return true
}

// Broadcast offers a freshly accepted event to every session and keeps it as a candidate
// for later position updates. It returns the number of sessions reached.
func (h *SubscriberHub) Broadcast(event hazard.Event) int {
	if event.Location == nil {
		return 0
	}
	c := proximity.Candidate{ID: event.ID, Location: *event.Location, Type: event.Type}
	h.fresh.add(c, time.Now())

	h.mu.Lock()
	defer h.mu.Unlock()
	reached := 0
	for _, s := range h.sessions {
		if s.deliver(sessionMsg{candidate: &c}) {
			reached++
		}
	}
	return reached
}

func (h *SubscriberHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *SubscriberHub) Subscriber(id string) (SubscriberInfo, bool) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	h.mu.Unlock()
	if !ok {
		return SubscriberInfo{}, false
	}
	return s.info(), true
}

// Close disconnects every subscriber.
func (h *SubscriberHub) Close() {
	h.mu.Lock()
	h.closed = true
	sessions := h.sessions
	h.sessions = make(map[string]*session)
	h.mu.Unlock()
	for _, s := range sessions {
		s.stop()
		h.metrics.SubscriberDisconnected()
	}
}

type sessionMsg struct {
	pos       *Position
	candidate *proximity.Candidate
}

type session struct {
	id         string
	hub        *SubscriberHub
	dispatcher *alert.Dispatcher
	tracker    *proximity.HeadingTracker
	repeats    *repeatSuppressor
	inbox      chan sessionMsg
	cancel     context.CancelFunc
	done       chan struct{}
	stopOnce   sync.Once
	log        zerolog.Logger

	mu      sync.Mutex
	loc     *hazard.Location
	heading proximity.Heading
}

// deliver never blocks; a full inbox drops the message, which can only cost a
// notification.
func (s *session) deliver(msg sessionMsg) bool {
	select {
	case s.inbox <- msg:
		return true
	default:
		s.log.Warn().Msg("subscriber inbox full, dropping update")
		return false
	}
}

func (s *session) stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *session) run(ctx context.Context) {
	defer close(s.done)
	defer s.dispatcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.inbox:
			switch {
			case msg.pos != nil:
				heading := s.tracker.Update(msg.pos.Location, msg.pos.Heading)
				loc := msg.pos.Location
				s.mu.Lock()
				s.loc, s.heading = &loc, heading
				s.mu.Unlock()
				s.evaluate(loc, heading, s.hub.candidates(time.Now()))
			case msg.candidate != nil:
				s.mu.Lock()
				loc, heading := s.loc, s.heading
				s.mu.Unlock()
				if loc != nil {
					s.evaluate(*loc, heading, []proximity.Candidate{*msg.candidate})
				}
			}
		}
	}
}

func (s *session) evaluate(loc hazard.Location, heading proximity.Heading, candidates []proximity.Candidate) int {
	now := time.Now()
	alerted := 0
	for _, m := range s.hub.matcher.FindAhead(loc, heading, candidates) {
		priority := m.Urgency.Priority()
		key := m.ID + "|" + priority.String()
		if !s.repeats.allow(key, now) {
			continue
		}
		outcome, err := s.dispatcher.Alert(alertMessage(m), priority, string(m.Urgency))
		s.hub.metrics.AlertSubmitted(priority.String(), string(outcome))
		if err != nil {
			s.log.Warn().Err(err).Str("hazard_id", m.ID).Msg("alert queue overflow")
		}
		if outcome == alert.OutcomeDropped {
			continue
		}
		s.repeats.mark(key, now)
		alerted++
		s.log.Debug().
			Str("hazard_id", m.ID).
			Str("urgency", string(m.Urgency)).
			Float64("distance_m", m.DistanceMeters).
			Str("outcome", string(outcome)).
			Msg("hazard alert submitted")
	}
	return alerted
}

func (s *session) info() SubscriberInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := SubscriberInfo{
		ID:      s.id,
		Heading: s.heading.Degrees,
		Source:  string(s.heading.Source),
		Alerts:  s.dispatcher.Snapshot(),
	}
	if s.loc != nil {
		info.Location = *s.loc
	}
	return info
}

func alertMessage(m proximity.Match) string {
	name := strings.ReplaceAll(string(m.Type), "_", " ")
	if name == "" {
		name = "hazard"
	}
	r, size := utf8.DecodeRuneInString(name)
	name = string(unicode.ToUpper(r)) + name[size:]
	return fmt.Sprintf("%s ahead in %.0f meters", name, m.DistanceMeters)
}

type freshEvent struct {
	candidate  proximity.Candidate
	acceptedAt time.Time
}

// freshEvents is the sliding window of recently accepted events.
type freshEvents struct {
	mu     sync.Mutex
	window time.Duration
	events []freshEvent
}

func newFreshEvents(window time.Duration) *freshEvents {
	return &freshEvents{window: window}
}

func (f *freshEvents) add(c proximity.Candidate, now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruneLocked(now)
	f.events = append(f.events, freshEvent{candidate: c, acceptedAt: now})
}

func (f *freshEvents) snapshot(now time.Time) []proximity.Candidate {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruneLocked(now)
	out := make([]proximity.Candidate, len(f.events))
	for i, e := range f.events {
		out[i] = e.candidate
	}
	return out
}

func (f *freshEvents) pruneLocked(now time.Time) {
	cut := 0
	for cut < len(f.events) && now.Sub(f.events[cut].acceptedAt) > f.window {
		cut++
	}
	if cut > 0 {
		f.events = append(f.events[:0], f.events[cut:]...)
	}
}

// repeatSuppressor remembers which hazards a subscriber was already told about. Only the
// owning session touches it.
type repeatSuppressor struct {
	window time.Duration
	seen   map[string]time.Time
}

func newRepeatSuppressor(window time.Duration) *repeatSuppressor {
	return &repeatSuppressor{window: window, seen: make(map[string]time.Time)}
}

func (r *repeatSuppressor) allow(key string, now time.Time) bool {
	last, ok := r.seen[key]
	return !ok || now.Sub(last) >= r.window
}

func (r *repeatSuppressor) mark(key string, now time.Time) {
	r.seen[key] = now
	for k, t := range r.seen {
		if now.Sub(t) > r.window {
			delete(r.seen, k)
		}
	}
}
