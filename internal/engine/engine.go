// Package engine runs the booth's tick loop. One goroutine owns the session
// machine: every tick it polls at most one trigger, advances the machine,
// publishes the snapshot and fans phase changes out to observers.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foreach/photobooth/internal/config"
	"github.com/foreach/photobooth/internal/control"
	"github.com/foreach/photobooth/internal/filter"
	"github.com/foreach/photobooth/internal/frame"
	"github.com/foreach/photobooth/internal/metrics"
	"github.com/foreach/photobooth/internal/session"
	"github.com/foreach/photobooth/internal/ws"
)

// Broadcaster receives state for websocket clients.
type Broadcaster interface {
	QueueState(*session.State)
	PublishPhase(ws.PhasePayload)
	PublishCameraHealth(ws.CameraHealthPayload)
}

// StatusReporter receives values for the outbound OSC status channel.
type StatusReporter interface {
	Phase(phase, sessionID string)
	Countdown(n int)
	Zoom(z float64)
	Pixels(n int64)
}

// zoomReportStep is the smallest zoom change worth an OSC message.
const zoomReportStep = 0.05

type Engine struct {
	mu            sync.Mutex // protects cfg and pendingCfg
	cfg           *config.Config
	pendingCfg    *config.Config
	tickInterval  time.Duration
	machine       *session.Machine
	source        *frame.Source
	queue         *control.Queue
	store         *session.Store
	health        *CameraHealth
	broadcaster   Broadcaster
	status        StatusReporter
	statsEvents   chan<- session.Event // nil disables stats event emission
	statsDropped  int64                // events dropped since last log
	statsLastDrop time.Time            // last time a drop was logged
	log           *slog.Logger

	reported   reported
	lastPixels int64
}

// reported holds the last values sent on the status channel so that only
// changes go out.
type reported struct {
	countdown int
	zoom      float64
	maxZoom   float64
	pixels    int64
}

func New(cfg *config.Config, machine *session.Machine, source *frame.Source, queue *control.Queue, store *session.Store, health *CameraHealth, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:          cfg,
		tickInterval: cfg.Booth.TickInterval,
		machine:      machine,
		source:       source,
		queue:        queue,
		store:        store,
		health:       health,
		log:          log,
		reported:     reported{countdown: session.CountdownNotStarted},
	}
}

func (e *Engine) SetBroadcaster(b Broadcaster) { e.broadcaster = b }

func (e *Engine) SetStatus(s StatusReporter) { e.status = s }

// SetStatsEvents configures a channel for phase change events. Pass nil to
// disable.
func (e *Engine) SetStatsEvents(ch chan<- session.Event) { e.statsEvents = ch }

// SetConfig queues cfg for the next tick. Booth timings reach the machine
// through Reconfigure and so apply from the next phase entry; filter
// defaults replace the live parameters only if they changed in the file.
// Server, control port and camera settings need a restart.
func (e *Engine) SetConfig(cfg *config.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingCfg = cfg
}

// Health exposes the camera health tracker.
func (e *Engine) Health() *CameraHealth { return e.health }

// Run ticks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	e.log.Info("engine started", "tick", e.tickInterval.String())
	metrics.CurrentPhase.WithLabelValues(session.Idle.String()).Set(1)
	e.tick(time.Now())

	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine stopped")
			return
		case now := <-ticker.C:
			e.tick(now)
			if d := e.currentTickInterval(); d != e.tickInterval {
				e.tickInterval = d
				ticker.Reset(d)
				e.log.Info("tick interval changed", "tick", d.String())
			}
		}
	}
}

func (e *Engine) currentTickInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Booth.TickInterval
}

func (e *Engine) tick(now time.Time) {
	start := time.Now()
	e.applyPendingConfig()

	var trig *control.Trigger
	if t, ok := e.queue.Poll(); ok {
		trig = &t
	}
	e.machine.Advance(now, trig)

	snap := e.machine.Snapshot(now)
	e.store.Update(snap, e.machine.Output())

	if c, ok := e.machine.LastChange(); ok {
		e.onChange(c, snap)
	}
	e.report(snap)
	if e.broadcaster != nil {
		e.broadcaster.QueueState(snap)
	}
	e.checkHealth()

	metrics.TickDuration.Observe(time.Since(start).Seconds())
}

func (e *Engine) applyPendingConfig() {
	e.mu.Lock()
	next := e.pendingCfg
	prev := e.cfg
	e.pendingCfg = nil
	if next != nil {
		e.cfg = next
	}
	e.mu.Unlock()
	if next == nil {
		return
	}

	if err := e.machine.Reconfigure(session.SettingsFromConfig(next.Booth)); err != nil {
		e.log.Error("rejected booth settings", "error", err)
	}
	if next.Filter != prev.Filter {
		p := filter.Params{Gain: next.Filter.Gain, Exponent: next.Filter.Exponent}
		if err := e.machine.SetParams(p); err != nil {
			e.log.Error("rejected filter defaults", "error", err)
		}
	}
	e.health.SetThreshold(next.Camera.FailureThreshold)
	e.log.Info("config applied", "changed", prev.Diff(next))
}

func (e *Engine) onChange(c session.Change, snap *session.State) {
	metrics.PhaseTransitions.WithLabelValues(c.From.String(), c.To.String()).Inc()
	metrics.CurrentPhase.WithLabelValues(c.From.String()).Set(0)
	metrics.CurrentPhase.WithLabelValues(c.To.String()).Set(1)

	sessionID := c.SessionID
	if sessionID == "" {
		sessionID = snap.SessionID
	}
	e.log.Info("phase changed",
		"from", c.From.String(),
		"to", c.To.String(),
		"reason", c.Reason,
		"session", sessionID,
	)

	if e.broadcaster != nil {
		e.broadcaster.PublishPhase(ws.NewPhasePayload(c, snap))
	}
	if e.status != nil {
		e.status.Phase(c.To.String(), sessionID)
	}
	e.emitEvent(c, snap)
}

// report sends status values that changed since the last tick and feeds the
// pixel counter metric.
func (e *Engine) report(snap *session.State) {
	pixels := snap.PixelsProcessed()
	if pixels > e.lastPixels {
		metrics.PixelsProcessed.Add(float64(pixels - e.lastPixels))
	}
	e.lastPixels = pixels

	if e.status == nil {
		return
	}
	if n := snap.CountdownNumber(); n != e.reported.countdown {
		e.reported.countdown = n
		if n != session.CountdownNotStarted {
			e.status.Countdown(n)
		}
	}
	if td := snap.Transition; td != nil {
		e.reported.maxZoom = td.MaxZoom
		z := td.ZoomLevel
		if z != e.reported.zoom && (z == 1 || absDiff(z, e.reported.zoom) >= zoomReportStep) {
			e.reported.zoom = z
			e.status.Zoom(z)
		}
	} else if e.reported.zoom != 0 {
		// The machine leaves Transition on the tick that reaches full zoom,
		// so that value never shows up in a snapshot.
		if snap.Phase == session.ApplyFilter && e.reported.zoom < e.reported.maxZoom {
			e.status.Zoom(e.reported.maxZoom)
		}
		e.reported.zoom = 0
	}
	if pixels != e.reported.pixels {
		e.reported.pixels = pixels
		e.status.Pixels(pixels)
	}
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

func (e *Engine) checkHealth() {
	if e.source.Failures() == 0 {
		e.health.RecordSuccess()
	}
	payload, changed := e.health.snapshotAndEmit()
	if !changed {
		return
	}
	level := slog.LevelWarn
	if payload.Status == ws.StatusHealthy {
		level = slog.LevelInfo
	}
	e.log.Log(context.Background(), level, "camera health changed",
		"status", string(payload.Status),
		"failures", payload.ConsecutiveFailures,
		"error", payload.LastError,
	)
	if e.broadcaster != nil {
		e.broadcaster.PublishCameraHealth(payload)
	}
}

// emitEvent sends a phase change to the stats channel if configured. Uses
// non-blocking send to avoid stalling the tick loop if the consumer falls
// behind. Dropped events are counted and logged at most once per 10 seconds.
func (e *Engine) emitEvent(c session.Change, snap *session.State) {
	if e.statsEvents == nil {
		return
	}
	select {
	case e.statsEvents <- session.Event{Change: c, State: snap.Clone()}:
	default:
		e.statsDropped++
		now := time.Now()
		if e.statsLastDrop.IsZero() || now.Sub(e.statsLastDrop) >= 10*time.Second {
			e.log.Warn("stats events dropped", "count", e.statsDropped)
			e.statsDropped = 0
			e.statsLastDrop = now
		}
	}
}
