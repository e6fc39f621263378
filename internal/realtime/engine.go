// README: Sync engine: subscription lifecycle, reconnection backoff, health,
// and the visibility-gated polling floor, scheduled by one component.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	metricConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "corridas_realtime_connected",
		Help: "1 while the realtime channel is subscribed.",
	})
	metricEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corridas_realtime_events_total",
		Help: "Change notifications received.",
	})
	metricReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corridas_reloads_total",
		Help: "Full collection reloads triggered by the sync engine.",
	})
	metricReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corridas_realtime_reconnect_attempts_total",
		Help: "Scheduled reconnection attempts.",
	})
)

// EngineConfig bounds the reconnection policy and the polling floor. Zero
// values take the defaults: 5 retries, 1 s base doubling to a 30 s cap, 1 min
// watchdog, 30 s poll interval.
type EngineConfig struct {
	Table            string
	MaxRetries       int
	BaseBackoff      time.Duration
	MaxBackoff       time.Duration
	WatchdogInterval time.Duration
	PollInterval     time.Duration
}

func (c *EngineConfig) defaults() {
	if c.Table == "" {
		c.Table = "corridas"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.BaseBackoff == 0 {
		c.BaseBackoff = time.Second
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.WatchdogInterval == 0 {
		c.WatchdogInterval = time.Minute
	}
	if c.PollInterval == 0 {
		c.PollInterval = 30 * time.Second
	}
}

// Engine owns one realtime subscription plus the polling floor. Any change
// event triggers a full reload rather than an incremental patch. Channel
// errors and timeouts feed an exponential backoff; CLOSED only drops the
// health flag. One scheduler goroutine makes both periodic decisions: the
// watchdog re-attempts setup while unhealthy and retries remain, and the poll
// tick reloads while the driver view is visible. The poll floor runs
// regardless of channel health; it bounds staleness, it is not a failover.
type Engine struct {
	dial     func(ctx context.Context) Channel
	reload   func(ctx context.Context) error
	degraded func() // invoked once per exhaustion when retries run out
	cfg      EngineConfig
	log      *zap.Logger

	// after is time.AfterFunc, injectable in tests.
	after func(d time.Duration, f func()) *time.Timer

	mu        sync.Mutex
	ctx       context.Context
	ch        Channel
	retries   int
	connected bool
	visible   bool
	stopped   bool
}

func NewEngine(dial func(ctx context.Context) Channel, reload func(ctx context.Context) error, degraded func(), cfg EngineConfig, log *zap.Logger) *Engine {
	cfg.defaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		dial:     dial,
		reload:   reload,
		degraded: degraded,
		cfg:      cfg,
		log:      log,
		after:    time.AfterFunc,
	}
}

// Start performs the initial subscription attempt and launches the scheduler.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	e.ctx = ctx
	e.mu.Unlock()
	e.setup(ctx)
	go e.schedule(ctx)
}

// Connected reports channel health. The polling floor runs regardless of it.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// SetVisible flips the driver-view visibility flag that gates the polling
// floor. Becoming visible triggers an immediate reload so a returning viewer
// never waits a full tick.
func (e *Engine) SetVisible(v bool) {
	e.mu.Lock()
	was := e.visible
	e.visible = v
	ctx := e.ctx
	e.mu.Unlock()

	if v && !was && ctx != nil {
		e.log.Debug("visibility regained; reloading")
		metricReloads.Inc()
		if err := e.reload(ctx); err != nil {
			e.log.Error("visibility reload failed", zap.Error(err))
		}
	}
}

// Stop closes the current channel and stops reconnecting.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	ch := e.ch
	e.ch = nil
	e.setConnectedLocked(false)
	e.mu.Unlock()
	if ch != nil {
		_ = ch.Close()
	}
}

func (e *Engine) setup(ctx context.Context) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	if e.ch != nil {
		_ = e.ch.Close()
	}
	ch := e.dial(ctx)
	e.ch = ch
	e.mu.Unlock()

	err := ch.Subscribe(ctx, e.cfg.Table,
		func(ev ChangeEvent) { e.handleEvent(ctx, ev) },
		func(st ChannelStatus) { e.handleStatus(ctx, st) },
	)
	if err != nil {
		e.log.Warn("realtime subscribe failed", zap.Error(err))
		e.handleStatus(ctx, StatusChannelError)
	}
}

func (e *Engine) handleEvent(ctx context.Context, ev ChangeEvent) {
	metricEvents.Inc()
	e.log.Debug("change notification",
		zap.String("table", ev.Table),
		zap.String("type", ev.Type),
		zap.Int64("record_id", ev.RecordID))
	metricReloads.Inc()
	if err := e.reload(ctx); err != nil {
		e.log.Error("reload after change event failed", zap.Error(err))
	}
}

func (e *Engine) handleStatus(ctx context.Context, st ChannelStatus) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}

	switch st {
	case StatusSubscribed:
		e.setConnectedLocked(true)
		e.retries = 0
		e.mu.Unlock()
		e.log.Info("realtime channel subscribed")

	case StatusChannelError, StatusTimedOut:
		e.setConnectedLocked(false)
		if e.retries >= e.cfg.MaxRetries {
			e.mu.Unlock()
			e.log.Error("realtime retries exhausted; degraded mode",
				zap.Int("retries", e.cfg.MaxRetries))
			if e.degraded != nil {
				e.degraded()
			}
			return
		}
		delay := e.cfg.BaseBackoff << e.retries
		if delay > e.cfg.MaxBackoff {
			delay = e.cfg.MaxBackoff
		}
		e.retries++
		attempt := e.retries
		e.mu.Unlock()

		metricReconnects.Inc()
		e.log.Warn("realtime channel lost; reconnect scheduled",
			zap.String("status", string(st)),
			zap.Duration("delay", delay),
			zap.Int("attempt", attempt))
		e.after(delay, func() { e.setup(ctx) })

	case StatusClosed:
		// The owning component decides whether to re-establish; the watchdog
		// tick will pick it up if retries remain.
		e.setConnectedLocked(false)
		e.mu.Unlock()
		e.log.Info("realtime channel closed")

	default:
		e.mu.Unlock()
	}
}

// schedule is the single periodic decision loop: watchdog ticks re-attempt
// the subscription while unhealthy, poll ticks enforce the staleness floor
// while visible.
func (e *Engine) schedule(ctx context.Context) {
	watchdog := time.NewTicker(e.cfg.WatchdogInterval)
	defer watchdog.Stop()
	poll := time.NewTicker(e.cfg.PollInterval)
	defer poll.Stop()
	for {
		select {
		case <-ctx.Done():
			e.Stop()
			return
		case <-watchdog.C:
			e.mu.Lock()
			unhealthy := !e.connected && !e.stopped && e.retries < e.cfg.MaxRetries
			e.mu.Unlock()
			if unhealthy {
				e.log.Info("watchdog re-attempting realtime setup")
				e.setup(ctx)
			}
		case <-poll.C:
			e.pollTick(ctx)
		}
	}
}

// pollTick is one polling-floor decision: reload while visible, regardless of
// channel health.
func (e *Engine) pollTick(ctx context.Context) {
	e.mu.Lock()
	visible := e.visible && !e.stopped
	e.mu.Unlock()
	if !visible {
		return
	}
	metricReloads.Inc()
	if err := e.reload(ctx); err != nil {
		e.log.Error("polling reload failed", zap.Error(err))
	}
}

func (e *Engine) setConnectedLocked(v bool) {
	e.connected = v
	if v {
		metricConnected.Set(1)
	} else {
		metricConnected.Set(0)
	}
}
