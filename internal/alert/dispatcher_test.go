package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hazard-service/internal/domain/hazard"
)

type call struct {
	n         Notification
	cancelled bool
}

// recordingSink blocks each notification until release is closed or the alert is cancelled.
type recordingSink struct {
	mu      sync.Mutex
	calls   []call
	started chan Notification
	release chan struct{}
	err     error
}

func newRecordingSink(block bool) *recordingSink {
	s := &recordingSink{started: make(chan Notification, 32), release: make(chan struct{})}
	if !block {
		close(s.release)
	}
	return s
}

func (s *recordingSink) Notify(ctx context.Context, n Notification) error {
	s.started <- n
	cancelled := false
	select {
	case <-s.release:
	case <-ctx.Done():
		cancelled = true
	}
	s.mu.Lock()
	s.calls = append(s.calls, call{n: n, cancelled: cancelled})
	s.mu.Unlock()
	return s.err
}

func (s *recordingSink) snapshot() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...)
}

func waitStarted(t *testing.T, s *recordingSink) Notification {
	t.Helper()
	select {
	case n := <-s.started:
		return n
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for sink")
		return Notification{}
	}
}

func waitIdle(t *testing.T, d *Dispatcher) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := d.Snapshot(); !s.Speaking && s.Queued == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("dispatcher did not become idle: %+v", d.Snapshot())
}

func testConfig() Config {
	return Config{
		WarningCooldown:   150 * time.Millisecond,
		HazardCooldown:    100 * time.Millisecond,
		EmergencyCooldown: 50 * time.Millisecond,
		QueueSize:         4,
	}
}

func TestEmergencyPreemptsWarning(t *testing.T) {
	sink := newRecordingSink(true)
	d := NewDispatcher("sub-1", sink, testConfig(), zerolog.Nop())
	defer d.Close()

	if out, err := d.Alert("pothole ahead", PriorityWarning, "nearby"); out != OutcomeStarted || err != nil {
		t.Fatalf("expected warning to start, got %s %v", out, err)
	}
	if n := waitStarted(t, sink); n.Priority != PriorityWarning || n.SubscriberID != "sub-1" {
		t.Fatalf("unexpected first notification %+v", n)
	}

	if out, _ := d.Alert("cow on road", PriorityEmergency, "immediate"); out != OutcomePreempted {
		t.Fatalf("expected emergency to preempt, got %s", out)
	}
	if n := waitStarted(t, sink); n.Priority != PriorityEmergency {
		t.Fatalf("expected emergency playback, got %+v", n)
	}
	if s := d.Snapshot(); !s.Speaking || s.Priority != PriorityEmergency {
		t.Fatalf("expected emergency speaking, got %+v", s)
	}

	close(sink.release)
	waitIdle(t, d)

	calls := sink.snapshot()
	if len(calls) != 2 || !calls[0].cancelled || calls[1].cancelled {
		t.Fatalf("expected cancelled warning then delivered emergency, got %+v", calls)
	}
	// a preempted warning does not start the warning cooldown
	if out, _ := d.Alert("debris", PriorityWarning, "nearby"); out != OutcomeStarted {
		t.Fatalf("expected warning to be accepted after preemption, got %s", out)
	}
}

func TestWarningCooldown(t *testing.T) {
	sink := newRecordingSink(false)
	d := NewDispatcher("sub-1", sink, testConfig(), zerolog.Nop())
	defer d.Close()

	if out, _ := d.Alert("first", PriorityWarning, ""); out != OutcomeStarted {
		t.Fatalf("expected first warning to start, got %s", out)
	}
	waitStarted(t, sink)
	waitIdle(t, d)

	if out, _ := d.Alert("second", PriorityWarning, ""); out != OutcomeDropped {
		t.Fatalf("expected warning inside cooldown to be dropped, got %s", out)
	}
	if out, _ := d.Alert("other tier", PriorityHazard, ""); out != OutcomeStarted {
		t.Fatalf("expected hazard tier to have its own cooldown, got %s", out)
	}
	waitStarted(t, sink)
	waitIdle(t, d)

	time.Sleep(200 * time.Millisecond)
	if out, _ := d.Alert("third", PriorityWarning, ""); out != OutcomeStarted {
		t.Fatalf("expected warning after cooldown to start, got %s", out)
	}
	waitStarted(t, sink)
	waitIdle(t, d)
	if got := d.Snapshot().Completed; got != 3 {
		t.Fatalf("expected 3 completed alerts, got %d", got)
	}
}

func TestQueueOrderAndOverflow(t *testing.T) {
	sink := newRecordingSink(true)
	cfg := testConfig()
	cfg.QueueSize = 3
	cfg.WarningCooldown = 0
	cfg.HazardCooldown = 0
	cfg.EmergencyCooldown = 0
	d := NewDispatcher("sub-1", sink, cfg, zerolog.Nop())
	defer d.Close()

	d.Alert("speaking", PriorityEmergency, "")
	waitStarted(t, sink)

	for _, a := range []struct {
		msg string
		p   Priority
	}{
		{"w1", PriorityWarning},
		{"h1", PriorityHazard},
		{"w2", PriorityWarning},
	} {
		if out, err := d.Alert(a.msg, a.p, ""); out != OutcomeQueued || err != nil {
			t.Fatalf("%s: expected queued, got %s %v", a.msg, out, err)
		}
	}
	out, err := d.Alert("h2", PriorityHazard, "")
	if out != OutcomeQueued || !errors.Is(err, hazard.ErrDispatchOverflow) {
		t.Fatalf("expected overflow while queuing, got %s %v", out, err)
	}

	close(sink.release)
	waitIdle(t, d)

	var order []string
	for _, c := range sink.snapshot() {
		order = append(order, c.n.Message)
	}
	want := []string{"speaking", "h1", "h2", "w2"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestCoolingQueueIsDiscardedOnCompletion(t *testing.T) {
	sink := newRecordingSink(false)
	cfg := testConfig()
	cfg.WarningCooldown = 300 * time.Millisecond
	cfg.PlaybackHold = 50 * time.Millisecond
	d := NewDispatcher("sub-1", sink, cfg, zerolog.Nop())
	defer d.Close()

	d.Alert("pothole ahead in 420 meters", PriorityWarning, "nearby")
	if out, _ := d.Alert("debris ahead in 390 meters", PriorityWarning, "nearby"); out != OutcomeQueued {
		t.Fatalf("expected second warning to queue behind the first, got %s", out)
	}
	waitStarted(t, sink)
	waitIdle(t, d)

	if s := d.Snapshot(); s.Completed != 1 || s.Queued != 0 || s.Speaking {
		t.Fatalf("expected idle dispatcher with the cooling entry discarded, got %+v", s)
	}
	select {
	case n := <-sink.started:
		t.Fatalf("cooling warning was played late: %+v", n)
	case <-time.After(cfg.WarningCooldown + 100*time.Millisecond):
	}
}

func TestCompletionPromotesEntryOffCooldown(t *testing.T) {
	sink := newRecordingSink(true)
	cfg := testConfig()
	cfg.HazardCooldown = time.Second
	d := NewDispatcher("sub-1", sink, cfg, zerolog.Nop())
	defer d.Close()

	d.Alert("first", PriorityHazard, "")
	waitStarted(t, sink)
	d.Alert("cooling hazard", PriorityHazard, "")
	d.Alert("fresh warning", PriorityWarning, "")
	close(sink.release)

	if n := waitStarted(t, sink); n.Message != "fresh warning" {
		t.Fatalf("expected the warning to play after the hazard completed, got %+v", n)
	}
	waitIdle(t, d)
	for _, c := range sink.snapshot() {
		if c.n.Message == "cooling hazard" {
			t.Fatalf("hazard inside its cooldown must not play")
		}
	}
}

func TestFlushAndCloseAreIdempotent(t *testing.T) {
	sink := newRecordingSink(true)
	d := NewDispatcher("sub-1", sink, testConfig(), zerolog.Nop())

	d.Flush()
	d.Alert("a", PriorityWarning, "")
	waitStarted(t, sink)
	d.Alert("b", PriorityWarning, "")
	d.Flush()
	d.Flush()
	if s := d.Snapshot(); s.Speaking || s.Queued != 0 {
		t.Fatalf("expected empty dispatcher after flush, got %+v", s)
	}

	d.Close()
	d.Close()
	if _, err := d.Alert("late", PriorityEmergency, ""); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestFailingSinkCountsAsCompleted(t *testing.T) {
	sink := newRecordingSink(false)
	sink.err = errors.New("speaker unplugged")
	d := NewDispatcher("sub-1", sink, testConfig(), zerolog.Nop())
	defer d.Close()

	d.Alert("a", PriorityWarning, "")
	waitStarted(t, sink)
	waitIdle(t, d)
	if out, _ := d.Alert("b", PriorityWarning, ""); out != OutcomeDropped {
		t.Fatalf("expected cooldown to apply after a failed delivery, got %s", out)
	}
}

func TestParsePriority(t *testing.T) {
	for _, p := range []Priority{PriorityWarning, PriorityHazard, PriorityEmergency} {
		got, err := ParsePriority(p.String())
		if err != nil || got != p {
			t.Fatalf("round trip %s: got %v %v", p, got, err)
		}
	}
	if _, err := ParsePriority("loud"); err == nil {
		t.Fatalf("expected error for unknown priority")
	}
}
