package alert

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hazard-service/internal/domain/hazard"
)

var ErrClosed = errors.New("dispatcher closed")

type Outcome string

const (
	OutcomeStarted   Outcome = "started"
	OutcomePreempted Outcome = "preempted"
	OutcomeQueued    Outcome = "queued"
	OutcomeDropped   Outcome = "dropped"
)

const DefaultQueueSize = 16

type Config struct {
	WarningCooldown   time.Duration `mapstructure:"warning_cooldown"`
	HazardCooldown    time.Duration `mapstructure:"hazard_cooldown"`
	EmergencyCooldown time.Duration `mapstructure:"emergency_cooldown"`
	QueueSize         int           `mapstructure:"queue_size"`
	// PlaybackHold is how long an alert stays speaking after the sink accepted it.
	PlaybackHold time.Duration `mapstructure:"playback_hold"`
}

func DefaultConfig() Config {
	return Config{
		WarningCooldown:   30 * time.Second,
		HazardCooldown:    10 * time.Second,
		EmergencyCooldown: 5 * time.Second,
		QueueSize:         DefaultQueueSize,
		PlaybackHold:      2 * time.Second,
	}
}

func (c Config) cooldown(p Priority) time.Duration {
	switch p {
	case PriorityEmergency:
		return c.EmergencyCooldown
	case PriorityHazard:
		return c.HazardCooldown
	default:
		return c.WarningCooldown
	}
}

// Entry is a queued alert.
type Entry struct {
	Message    string
	Priority   Priority
	Category   string
	EnqueuedAt time.Time
	seq        uint64
}

type playing struct {
	entry   Entry
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// Snapshot is a point-in-time view of a dispatcher.
type Snapshot struct {
	Speaking  bool     `json:"speaking"`
	Priority  Priority `json:"priority,omitempty"`
	Queued    int      `json:"queued"`
	Completed int64    `json:"completed"`
}

// Dispatcher serializes alerts for one subscriber: at most one alert is speaking, higher
// priorities preempt, and each tier has its own cooldown measured from its last completed
// alert. A single worker goroutine drives playback.
type Dispatcher struct {
	subscriberID string
	sink         Sink
	cfg          Config
	log          zerolog.Logger
	now          func() time.Time

	mu        sync.Mutex
	current   *playing
	queue     []Entry
	seq       uint64
	lastDone  map[Priority]time.Time
	completed int64
	closed    bool

	wake     chan struct{}
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewDispatcher(subscriberID string, sink Sink, cfg Config, log zerolog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	d := &Dispatcher{
		subscriberID: subscriberID,
		sink:         sink,
		cfg:          cfg,
		log:          log.With().Str("component", "alert_dispatcher").Str("subscriber_id", subscriberID).Logger(),
		now:          time.Now,
		lastDone:     make(map[Priority]time.Time),
		wake:         make(chan struct{}, 1),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	go d.run()
	return d
}

// Alert submits a message. An overflowing queue evicts its oldest lowest-priority entry
// and reports hazard.ErrDispatchOverflow alongside the outcome.
func (d *Dispatcher) Alert(message string, priority Priority, category string) (Outcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return OutcomeDropped, ErrClosed
	}
	now := d.now()
	if d.coolingLocked(priority, now) {
		return OutcomeDropped, nil
	}

	d.seq++
	entry := Entry{Message: message, Priority: priority, Category: category, EnqueuedAt: now, seq: d.seq}

	if d.current == nil {
		d.startLocked(entry)
		return OutcomeStarted, nil
	}
	if priority > d.current.entry.Priority {
		d.log.Debug().
			Str("preempted", d.current.entry.Priority.String()).
			Str("by", priority.String()).
			Msg("alert preempted")
		d.current.cancel()
		d.startLocked(entry)
		return OutcomePreempted, nil
	}

	d.queue = append(d.queue, entry)
	sort.SliceStable(d.queue, func(i, j int) bool {
		if d.queue[i].Priority != d.queue[j].Priority {
			return d.queue[i].Priority > d.queue[j].Priority
		}
		return d.queue[i].seq < d.queue[j].seq
	})
	if len(d.queue) > d.cfg.QueueSize {
		evicted := d.evictLocked()
		err := fmt.Errorf("%w: evicted %s alert queued at %s", hazard.ErrDispatchOverflow,
			evicted.Priority, evicted.EnqueuedAt.Format(time.RFC3339))
		if evicted.seq == entry.seq {
			return OutcomeDropped, err
		}
		return OutcomeQueued, err
	}
	return OutcomeQueued, nil
}

// evictLocked removes the oldest entry of the lowest queued priority. The queue is sorted
// so that tier sits at the tail.
func (d *Dispatcher) evictLocked() Entry {
	lowest := d.queue[len(d.queue)-1].Priority
	idx := len(d.queue) - 1
	for idx > 0 && d.queue[idx-1].Priority == lowest {
		idx--
	}
	evicted := d.queue[idx]
	d.queue = append(d.queue[:idx], d.queue[idx+1:]...)
	return evicted
}

func (d *Dispatcher) coolingLocked(p Priority, now time.Time) bool {
	last, ok := d.lastDone[p]
	return ok && now.Sub(last) < d.cfg.cooldown(p)
}

func (d *Dispatcher) startLocked(e Entry) {
	ctx, cancel := context.WithCancel(context.Background())
	d.current = &playing{entry: e, ctx: ctx, cancel: cancel}
	d.signal()
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Flush cancels the speaking alert and empties the queue. Safe to call at any time.
func (d *Dispatcher) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != nil {
		d.current.cancel()
		d.current = nil
	}
	d.queue = nil
}

// Close flushes and stops the worker. It is idempotent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.Flush()
	d.stopOnce.Do(func() { close(d.quit) })
	<-d.done
}

func (d *Dispatcher) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Snapshot{Queued: len(d.queue), Completed: d.completed}
	if d.current != nil {
		s.Speaking = true
		s.Priority = d.current.entry.Priority
	}
	return s
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		if p := d.next(); p != nil {
			d.play(p)
			continue
		}
		select {
		case <-d.wake:
		case <-d.quit:
			return
		}
	}
}

// next returns the alert to play. When nothing is speaking it promotes the best queued
// entry whose tier is off cooldown; if every queued entry is still cooling the queue is
// discarded and the dispatcher goes idle, since a proximity message is stale by the time
// its cooldown runs out.
func (d *Dispatcher) next() *playing {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current != nil {
		if d.current.started {
			return nil
		}
		d.current.started = true
		return d.current
	}

	now := d.now()
	for i, e := range d.queue {
		if !d.coolingLocked(e.Priority, now) {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			ctx, cancel := context.WithCancel(context.Background())
			d.current = &playing{entry: e, ctx: ctx, cancel: cancel, started: true}
			return d.current
		}
	}
	if len(d.queue) > 0 {
		d.log.Debug().Int("discarded", len(d.queue)).Msg("queued alerts still cooling, going idle")
		d.queue = nil
	}
	return nil
}

func (d *Dispatcher) play(p *playing) {
	n := Notification{
		SubscriberID: d.subscriberID,
		Message:      p.entry.Message,
		Priority:     p.entry.Priority,
		Category:     p.entry.Category,
		IssuedAt:     d.now(),
	}
	if err := d.sink.Notify(p.ctx, n); err != nil && p.ctx.Err() == nil {
		d.log.Warn().Err(err).Str("priority", n.Priority.String()).Msg("alert sink failed, treating alert as delivered")
	}
	if d.cfg.PlaybackHold > 0 && p.ctx.Err() == nil {
		hold := time.NewTimer(d.cfg.PlaybackHold)
		select {
		case <-hold.C:
		case <-p.ctx.Done():
			hold.Stop()
		}
	}

	d.mu.Lock()
	if d.current == p {
		d.current = nil
		d.lastDone[p.entry.Priority] = d.now()
		d.completed++
	}
	d.mu.Unlock()
	p.cancel()
}
