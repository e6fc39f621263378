// README: Sync engine tests driving a fake channel through its status codes.
package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeChannel records the callbacks so the test can emit events and status
// changes as if they arrived from the wire.
type fakeChannel struct {
	mu       sync.Mutex
	onEvent  func(ChangeEvent)
	onStatus func(ChannelStatus)
	closed   int
}

func (f *fakeChannel) Subscribe(ctx context.Context, table string, onEvent func(ChangeEvent), onStatus func(ChannelStatus)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onEvent = onEvent
	f.onStatus = onStatus
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeChannel) emitStatus(st ChannelStatus) {
	f.mu.Lock()
	fn := f.onStatus
	f.mu.Unlock()
	fn(st)
}

func (f *fakeChannel) emitEvent(ev ChangeEvent) {
	f.mu.Lock()
	fn := f.onEvent
	f.mu.Unlock()
	fn(ev)
}

type engineHarness struct {
	engine   *Engine
	ch       *fakeChannel
	delays   []time.Duration
	reloads  atomic.Int32
	degraded atomic.Int32
}

func newEngineHarness(t *testing.T, cfg EngineConfig) *engineHarness {
	t.Helper()
	// Keep the periodic ticks out of the way unless a test opts in.
	if cfg.WatchdogInterval == 0 {
		cfg.WatchdogInterval = time.Hour
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Hour
	}
	h := &engineHarness{ch: &fakeChannel{}}
	h.engine = NewEngine(
		func(ctx context.Context) Channel { return h.ch },
		func(ctx context.Context) error { h.reloads.Add(1); return nil },
		func() { h.degraded.Add(1) },
		cfg, nil,
	)
	// Capture scheduled delays instead of waiting for real timers.
	h.engine.after = func(d time.Duration, f func()) *time.Timer {
		h.delays = append(h.delays, d)
		return time.NewTimer(time.Hour)
	}
	return h
}

func TestEngineBackoffDoubles(t *testing.T) {
	h := newEngineHarness(t, EngineConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.engine.Start(ctx)

	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second,
		8 * time.Second, 16 * time.Second,
	}
	for range want {
		h.ch.emitStatus(StatusChannelError)
	}
	if len(h.delays) != len(want) {
		t.Fatalf("scheduled %d reconnects, want %d: %v", len(h.delays), len(want), h.delays)
	}
	for i, d := range want {
		if h.delays[i] != d {
			t.Errorf("attempt %d delay = %v, want %v", i+1, h.delays[i], d)
		}
	}
	if h.degraded.Load() != 0 {
		t.Error("degraded before retries ran out")
	}

	// The sixth failure exhausts the budget: no new attempt, degraded fires.
	h.ch.emitStatus(StatusChannelError)
	if len(h.delays) != len(want) {
		t.Errorf("reconnect scheduled past the retry budget: %v", h.delays)
	}
	if h.degraded.Load() != 1 {
		t.Errorf("degraded = %d, want 1", h.degraded.Load())
	}
}

func TestEngineBackoffCapped(t *testing.T) {
	h := newEngineHarness(t, EngineConfig{BaseBackoff: time.Second, MaxBackoff: 4 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.engine.Start(ctx)

	for i := 0; i < 5; i++ {
		h.ch.emitStatus(StatusTimedOut)
	}
	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second,
		4 * time.Second, 4 * time.Second,
	}
	for i, d := range want {
		if h.delays[i] != d {
			t.Errorf("attempt %d delay = %v, want %v", i+1, h.delays[i], d)
		}
	}
}

func TestEngineSubscribedResetsRetries(t *testing.T) {
	h := newEngineHarness(t, EngineConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.engine.Start(ctx)

	h.ch.emitStatus(StatusChannelError)
	h.ch.emitStatus(StatusChannelError)
	h.ch.emitStatus(StatusSubscribed)

	if !h.engine.Connected() {
		t.Error("not connected after SUBSCRIBED")
	}

	// Back to the base delay after a successful subscription.
	h.ch.emitStatus(StatusChannelError)
	if got := h.delays[len(h.delays)-1]; got != time.Second {
		t.Errorf("delay after reset = %v, want 1s", got)
	}
}

func TestEngineClosedOnlyDropsHealth(t *testing.T) {
	h := newEngineHarness(t, EngineConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.engine.Start(ctx)

	h.ch.emitStatus(StatusSubscribed)
	h.ch.emitStatus(StatusClosed)

	if h.engine.Connected() {
		t.Error("still connected after CLOSED")
	}
	if len(h.delays) != 0 {
		t.Errorf("CLOSED scheduled a reconnect: %v", h.delays)
	}
	if h.degraded.Load() != 0 {
		t.Error("CLOSED triggered degraded mode")
	}
}

func TestEngineEventTriggersReload(t *testing.T) {
	h := newEngineHarness(t, EngineConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.engine.Start(ctx)

	h.ch.emitEvent(ChangeEvent{Table: "corridas", Type: "UPDATE", RecordID: 7})
	h.ch.emitEvent(ChangeEvent{Table: "corridas", Type: "INSERT", RecordID: 8})
	if got := h.reloads.Load(); got != 2 {
		t.Errorf("reloads = %d, want 2", got)
	}
}

func TestEngineOnlyPollsWhileVisible(t *testing.T) {
	h := newEngineHarness(t, EngineConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.engine.Start(ctx)

	// Hidden: the tick is a no-op.
	h.engine.pollTick(ctx)
	if got := h.reloads.Load(); got != 0 {
		t.Fatalf("reloaded %d times while hidden", got)
	}

	h.engine.SetVisible(true) // the transition itself reloads once
	h.engine.pollTick(ctx)
	h.engine.pollTick(ctx)
	if got := h.reloads.Load(); got != 3 {
		t.Fatalf("reloads while visible = %d, want 3", got)
	}

	h.engine.SetVisible(false)
	h.engine.pollTick(ctx)
	if got := h.reloads.Load(); got != 3 {
		t.Errorf("reloaded %d more times while hidden", got-3)
	}
}

func TestEngineReloadsImmediatelyOnVisible(t *testing.T) {
	h := newEngineHarness(t, EngineConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.engine.Start(ctx)

	h.engine.SetVisible(true)
	if got := h.reloads.Load(); got != 1 {
		t.Fatalf("reloads after becoming visible = %d, want 1", got)
	}

	// Staying visible is not a transition.
	h.engine.SetVisible(true)
	if got := h.reloads.Load(); got != 1 {
		t.Errorf("reloads after redundant SetVisible = %d, want 1", got)
	}

	// Before Start there is no context; the transition must not panic.
	h2 := newEngineHarness(t, EngineConfig{})
	h2.engine.SetVisible(true)
	if got := h2.reloads.Load(); got != 0 {
		t.Errorf("reloaded %d times before Start", got)
	}
}

func TestEngineStop(t *testing.T) {
	h := newEngineHarness(t, EngineConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.engine.Start(ctx)

	h.engine.Stop()
	if h.ch.closed == 0 {
		t.Error("Stop did not close the channel")
	}

	// Status changes after Stop are ignored.
	h.ch.emitStatus(StatusChannelError)
	if len(h.delays) != 0 {
		t.Errorf("reconnect scheduled after Stop: %v", h.delays)
	}
}
