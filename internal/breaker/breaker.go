// Package breaker is a small consecutive-failure circuit breaker used in front of the
// optional backends (Redis, Kafka) so an outage is fast-failed instead of paying the
// full timeout on every event.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var ErrOpen = errors.New("circuit breaker is open")

type Config struct {
	MaxFailures  int
	ResetTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxFailures < 1 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	return c
}

type Breaker struct {
	name string
	cfg  Config
	log  zerolog.Logger
	now  func() time.Time

	mu          sync.Mutex
	state       State
	recentFails int
	openedAt    time.Time
}

func New(name string, cfg Config, log zerolog.Logger) *Breaker {
	return &Breaker{
		name:  name,
		cfg:   cfg.withDefaults(),
		log:   log.With().Str("breaker", name).Logger(),
		now:   time.Now,
		state: Closed,
	}
}

// Execute runs op unless the breaker is open. After ResetTimeout a single call is let
// through as a trial call; its result closes or re-opens the breaker.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	b.mu.Lock()
	if b.state == Open {
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = HalfOpen
		b.log.Info().Int("previous_failures", b.recentFails).Msg("breaker probing")
	} else if b.state == HalfOpen {
		// another caller is already probing
		b.mu.Unlock()
		return ErrOpen
	}
	b.mu.Unlock()

	err := op(ctx)
	if err == nil {
		b.onSuccess()
		return nil
	}
	b.onFailure(err)
	return err
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Closed {
		b.log.Info().Str("from", b.state.String()).Msg("breaker closed")
	}
	b.state = Closed
	b.recentFails = 0
}

func (b *Breaker) onFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recentFails++
	if b.state == HalfOpen || b.recentFails >= b.cfg.MaxFailures {
		if b.state != Open {
			b.log.Warn().Err(err).Int("failures", b.recentFails).Msg("breaker opened")
		}
		b.state = Open
		b.openedAt = b.now()
		return
	}
	b.log.Debug().Err(err).Int("failures", b.recentFails).Msg("operation failure")
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
