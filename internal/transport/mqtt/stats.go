package mqtt

import "sync/atomic"

// Stats counts broker traffic. A nil *Stats records nothing.
type Stats struct {
	broker    string
	connected atomic.Bool
	received  atomic.Int64
	processed atomic.Int64
	rejected  atomic.Int64
	published atomic.Int64
	failed    atomic.Int64
}

func NewStats(broker string) *Stats {
	return &Stats{broker: broker}
}

// StatsSnapshot is the zero value when the broker is not configured.
type StatsSnapshot struct {
	Enabled             bool   `json:"enabled"`
	Broker              string `json:"broker,omitempty"`
	Connected           bool   `json:"connected"`
	MessagesReceived    int64  `json:"messages_received"`
	MessagesProcessed   int64  `json:"messages_processed"`
	MessagesRejected    int64  `json:"messages_rejected"`
	SuccessfulPublishes int64  `json:"successful_publishes"`
	FailedPublishes     int64  `json:"failed_publishes"`
	TotalPublishes      int64  `json:"total_publishes"`
}

func (s *Stats) setConnected(v bool) {
	if s != nil {
		s.connected.Store(v)
	}
}

func (s *Stats) messageReceived() {
	if s != nil {
		s.received.Add(1)
	}
}

// messageHandled records whether the pipeline accepted the payload for processing.
func (s *Stats) messageHandled(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.rejected.Add(1)
		return
	}
	s.processed.Add(1)
}

func (s *Stats) publishResult(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.failed.Add(1)
		return
	}
	s.published.Add(1)
}

func (s *Stats) Snapshot() StatsSnapshot {
	if s == nil {
		return StatsSnapshot{}
	}
	snap := StatsSnapshot{
		Enabled:             true,
		Broker:              s.broker,
		Connected:           s.connected.Load(),
		MessagesReceived:    s.received.Load(),
		MessagesProcessed:   s.processed.Load(),
		MessagesRejected:    s.rejected.Load(),
		SuccessfulPublishes: s.published.Load(),
		FailedPublishes:     s.failed.Load(),
	}
	snap.TotalPublishes = snap.SuccessfulPublishes + snap.FailedPublishes
	return snap
}
