package engine

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/foreach/photobooth/internal/config"
	"github.com/foreach/photobooth/internal/control"
	"github.com/foreach/photobooth/internal/filter"
	"github.com/foreach/photobooth/internal/frame"
	"github.com/foreach/photobooth/internal/logging"
	"github.com/foreach/photobooth/internal/session"
	"github.com/foreach/photobooth/internal/ws"
)

type recordingBroadcaster struct {
	states []*session.State
	phases []ws.PhasePayload
	health []ws.CameraHealthPayload
}

func (b *recordingBroadcaster) QueueState(s *session.State) { b.states = append(b.states, s) }
func (b *recordingBroadcaster) PublishPhase(p ws.PhasePayload) { b.phases = append(b.phases, p) }
func (b *recordingBroadcaster) PublishCameraHealth(h ws.CameraHealthPayload) {
	b.health = append(b.health, h)
}

type recordingStatus struct {
	phases     []string
	countdowns []int
	zooms      []float64
	pixels     []int64
}

func (s *recordingStatus) Phase(p, _ string) { s.phases = append(s.phases, p) }
func (s *recordingStatus) Countdown(n int) { s.countdowns = append(s.countdowns, n) }
func (s *recordingStatus) Zoom(z float64) { s.zooms = append(s.zooms, z) }
func (s *recordingStatus) Pixels(n int64) { s.pixels = append(s.pixels, n) }

// toggleCamera returns a 2x2 frame unless failing is set.
type toggleCamera struct {
	failing bool
}

func (c *toggleCamera) Capture() (*frame.Frame, error) {
	if c.failing {
		return nil, errors.New("no signal")
	}
	return &frame.Frame{Image: image.NewRGBA(image.Rect(0, 0, 2, 2)), Timestamp: time.Now()}, nil
}

type fixture struct {
	eng    *Engine
	queue  *control.Queue
	store  *session.Store
	cam    *toggleCamera
	bcast  *recordingBroadcaster
	status *recordingStatus
	events chan session.Event
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	cam := &toggleCamera{}
	health := NewCameraHealth(cfg.Camera.FailureThreshold)
	src := frame.NewSource(cam, health.RecordFailure)
	params := filter.Params{Gain: cfg.Filter.Gain, Exponent: cfg.Filter.Exponent}
	m, err := session.NewMachine(session.SettingsFromConfig(cfg.Booth), params, src, filter.NewCPU(), logging.Discard())
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	f := &fixture{
		queue:  control.NewQueue(cfg.Control.QueueSize),
		store:  session.NewStore(),
		cam:    cam,
		bcast:  &recordingBroadcaster{},
		status: &recordingStatus{},
		events: make(chan session.Event, 16),
	}
	f.eng = New(cfg, m, src, f.queue, f.store, health, logging.Discard())
	f.eng.SetBroadcaster(f.bcast)
	f.eng.SetStatus(f.status)
	f.eng.SetStatsEvents(f.events)
	return f
}

var t0 = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

func TestTickPublishesStateAndPhaseChanges(t *testing.T) {
	f := newFixture(t, nil)
	f.queue.Push(control.Trigger{Name: control.NameStart})

	f.eng.tick(t0)

	st := f.store.Get()
	if st.Phase != session.Countdown {
		t.Fatalf("store phase = %v, want countdown", st.Phase)
	}
	if f.store.Frame() == nil {
		t.Error("store has no preview frame")
	}
	if len(f.bcast.states) != 1 {
		t.Errorf("queued states = %d, want 1", len(f.bcast.states))
	}
	if len(f.bcast.phases) != 1 || f.bcast.phases[0].To != session.Countdown || f.bcast.phases[0].Reason != session.ReasonStart {
		t.Errorf("phase messages = %+v", f.bcast.phases)
	}
	if len(f.status.phases) != 1 || f.status.phases[0] != "countdown" {
		t.Errorf("status phases = %v", f.status.phases)
	}
	if len(f.status.countdowns) != 1 || f.status.countdowns[0] != 3 {
		t.Errorf("status countdowns = %v", f.status.countdowns)
	}

	select {
	case ev := <-f.events:
		if ev.To != session.Countdown || ev.SessionID == "" || ev.State == nil {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Error("no stats event emitted")
	}
}

func TestOneTriggerPerTick(t *testing.T) {
	f := newFixture(t, nil)
	f.queue.Push(control.Trigger{Name: control.NameStart})
	f.queue.Push(control.Trigger{Name: control.NameReset})

	f.eng.tick(t0)
	if got := f.store.Get().Phase; got != session.Countdown {
		t.Fatalf("after first tick phase = %v, want countdown", got)
	}
	f.eng.tick(t0.Add(16 * time.Millisecond))
	if got := f.store.Get().Phase; got != session.Idle {
		t.Fatalf("after second tick phase = %v, want idle", got)
	}
	if f.queue.Len() != 0 {
		t.Errorf("queue still holds %d triggers", f.queue.Len())
	}
}

func TestFullSessionStatusReports(t *testing.T) {
	f := newFixture(t, nil)
	f.queue.Push(control.Trigger{Name: control.NameStart})

	now := t0
	for i := 0; i < 400 && f.store.Get().Phase != session.ApplyFilter; i++ {
		f.eng.tick(now)
		now = now.Add(16 * time.Millisecond)
	}
	if got := f.store.Get().Phase; got != session.ApplyFilter {
		t.Fatalf("phase = %v, want apply_filter", got)
	}
	f.eng.tick(now)
	f.eng.tick(now.Add(16 * time.Millisecond))

	want := []int{3, 2, 1}
	if len(f.status.countdowns) != len(want) {
		t.Fatalf("countdowns = %v, want %v", f.status.countdowns, want)
	}
	for i := range want {
		if f.status.countdowns[i] != want[i] {
			t.Errorf("countdowns = %v, want %v", f.status.countdowns, want)
		}
	}

	zooms := f.status.zooms
	if len(zooms) < 3 || zooms[0] != 1 || zooms[len(zooms)-1] != config.DefaultMaxZoom {
		t.Errorf("zooms = %v, want 1 up to %v", zooms, config.DefaultMaxZoom)
	}
	for i := 1; i < len(zooms); i++ {
		if zooms[i] < zooms[i-1] {
			t.Errorf("zoom reports went backwards: %v", zooms)
		}
	}
	if n := len(f.status.pixels); n == 0 || f.status.pixels[n-1] != 8 {
		t.Errorf("pixel reports = %v, want last 8", f.status.pixels)
	}

	wantPhases := []string{"countdown", "transition", "apply_filter"}
	if len(f.status.phases) != len(wantPhases) {
		t.Fatalf("phases = %v, want %v", f.status.phases, wantPhases)
	}
	for i := range wantPhases {
		if f.status.phases[i] != wantPhases[i] {
			t.Errorf("phases = %v, want %v", f.status.phases, wantPhases)
		}
	}
}

func TestCameraHealthTransitions(t *testing.T) {
	cfg := config.Default()
	cfg.Camera.FailureThreshold = 3
	f := newFixture(t, cfg)

	f.eng.tick(t0)
	if len(f.bcast.health) != 0 {
		t.Fatalf("healthy camera emitted %v", f.bcast.health)
	}

	f.cam.failing = true
	f.eng.tick(t0.Add(16 * time.Millisecond))
	if len(f.bcast.health) != 1 || f.bcast.health[0].Status != ws.StatusDegraded {
		t.Fatalf("health after one failure = %+v", f.bcast.health)
	}
	if f.store.Frame() == nil {
		t.Error("failed capture should fall back to the last frame")
	}

	f.eng.tick(t0.Add(32 * time.Millisecond))
	f.eng.tick(t0.Add(48 * time.Millisecond))
	if n := len(f.bcast.health); n != 2 || f.bcast.health[1].Status != ws.StatusFailed {
		t.Fatalf("health after threshold = %+v", f.bcast.health)
	}
	if got := f.eng.Health().Snapshot(); got.ConsecutiveFailures != 3 || got.LastError != "no signal" {
		t.Errorf("snapshot = %+v", got)
	}

	f.cam.failing = false
	f.eng.tick(t0.Add(64 * time.Millisecond))
	if n := len(f.bcast.health); n != 3 || f.bcast.health[2].Status != ws.StatusHealthy {
		t.Fatalf("health after recovery = %+v", f.bcast.health)
	}
}

func TestSetConfigAppliesOnNextSession(t *testing.T) {
	f := newFixture(t, nil)

	next := config.Default()
	next.Booth.CountdownFrom = 7
	next.Filter.Gain = 2
	f.eng.SetConfig(next)

	f.queue.Push(control.Trigger{Name: control.NameStart})
	f.eng.tick(t0)

	st := f.store.Get()
	if st.Countdown == nil || st.Countdown.From != 7 {
		t.Errorf("countdown = %+v, want from 7", st.Countdown)
	}
	if st.Params.Gain != 2 {
		t.Errorf("gain = %v, want 2", st.Params.Gain)
	}
}

func TestSetConfigKeepsRemoteParams(t *testing.T) {
	f := newFixture(t, nil)
	f.queue.Push(control.Trigger{Name: control.NameGain, Args: []float64{1.7}})
	f.eng.tick(t0)

	next := config.Default()
	next.Booth.EndScreenTimeout = 30 * time.Second
	f.eng.SetConfig(next)
	f.eng.tick(t0.Add(16 * time.Millisecond))

	if got := f.store.Get().Params.Gain; got != 1.7 {
		t.Errorf("gain = %v, want remote value 1.7 kept", got)
	}
}

func TestStatsEventsNeverBlock(t *testing.T) {
	f := newFixture(t, nil)
	f.events = make(chan session.Event) // unbuffered, nobody reading
	f.eng.SetStatsEvents(f.events)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.queue.Push(control.Trigger{Name: control.NameStart})
		f.eng.tick(t0)
		f.queue.Push(control.Trigger{Name: control.NameReset})
		f.eng.tick(t0.Add(time.Millisecond))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tick blocked on a full stats channel")
	}
	if f.eng.statsDropped == 0 {
		t.Error("dropped events not counted")
	}
}

func TestCameraHealthThreshold(t *testing.T) {
	h := NewCameraHealth(2)
	if s := h.Snapshot().Status; s != ws.StatusHealthy {
		t.Fatalf("new health = %v", s)
	}
	h.RecordFailure(errors.New("a"))
	if s := h.Snapshot().Status; s != ws.StatusDegraded {
		t.Errorf("after one failure = %v, want degraded", s)
	}
	h.RecordFailure(errors.New("b"))
	if s := h.Snapshot().Status; s != ws.StatusFailed {
		t.Errorf("after two failures = %v, want failed", s)
	}
	h.SetThreshold(5)
	if s := h.Snapshot().Status; s != ws.StatusDegraded {
		t.Errorf("after raising threshold = %v, want degraded", s)
	}
	h.RecordSuccess()
	got := h.Snapshot()
	if got.Status != ws.StatusHealthy || got.LastError != "b" {
		t.Errorf("after success = %+v", got)
	}
}
