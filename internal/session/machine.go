package session

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/foreach/photobooth/internal/config"
	"github.com/foreach/photobooth/internal/control"
	"github.com/foreach/photobooth/internal/filter"
	"github.com/foreach/photobooth/internal/frame"
	"github.com/google/uuid"
)

// ImageSource is the machine's view of the frame source.
type ImageSource interface {
	CurrentFrame() *frame.Frame
	Freeze() error
	Unfreeze()
}

// Settings are the timing and zoom parameters of a session.
type Settings struct {
	CountdownFrom      int
	TransitionDuration time.Duration
	MaxZoom            float64
	ZoomCurve          string
	// ApplyFilterTimeout and MaxPixels end ApplyFilter on their own; zero
	// disables either.
	ApplyFilterTimeout time.Duration
	MaxPixels          int64
	EndScreenTimeout   time.Duration
	TickInterval       time.Duration
	Pulse              PulseSettings
}

// SettingsFromConfig extracts machine settings from the booth config.
func SettingsFromConfig(b config.BoothConfig) Settings {
	return Settings{
		CountdownFrom:      b.CountdownFrom,
		TransitionDuration: b.TransitionDuration,
		MaxZoom:            b.MaxZoom,
		ZoomCurve:          b.ZoomCurve,
		ApplyFilterTimeout: b.ApplyFilterTimeout,
		MaxPixels:          b.MaxPixels,
		EndScreenTimeout:   b.EndScreenTimeout,
		TickInterval:       b.TickInterval,
		Pulse: PulseSettings{
			Size:      b.Pulse.Size,
			Frequency: b.Pulse.Frequency,
			Damping:   b.Pulse.Damping,
		},
	}
}

// DefaultSettings match config.Default.
func DefaultSettings() Settings {
	return SettingsFromConfig(config.Default().Booth)
}

func finite(f float64) bool { return !math.IsInf(f, 0) && !math.IsNaN(f) }

func (s Settings) validate() error {
	switch {
	case s.CountdownFrom < 1:
		return fmt.Errorf("countdown_from must be at least 1, got %d", s.CountdownFrom)
	case s.TransitionDuration <= 0:
		return fmt.Errorf("transition_duration must be positive, got %s", s.TransitionDuration)
	case !finite(s.MaxZoom) || s.MaxZoom < 1:
		return fmt.Errorf("max_zoom must be a finite value of at least 1, got %v", s.MaxZoom)
	case !finite(s.Pulse.Size) || !finite(s.Pulse.Frequency) || !finite(s.Pulse.Damping):
		return fmt.Errorf("pulse settings must be finite, got %+v", s.Pulse)
	case s.ApplyFilterTimeout < 0 || s.MaxPixels < 0:
		return fmt.Errorf("apply filter limits must not be negative")
	case s.EndScreenTimeout <= 0:
		return fmt.Errorf("end_screen_timeout must be positive, got %s", s.EndScreenTimeout)
	}
	if _, err := CurveByName(s.ZoomCurve); err != nil {
		return err
	}
	return nil
}

// Machine is the booth's session state machine. It is owned by a single
// goroutine: Advance, Snapshot and Output must not be called concurrently.
type Machine struct {
	settings Settings
	pending  *Settings
	curve    ZoomCurve

	src  ImageSource
	pipe filter.Pipeline
	log  *slog.Logger

	phase          Phase
	enteredAt      time.Time
	sessionID      string
	sessionStarted time.Time
	params         filter.Params
	degraded       bool
	tick           uint64

	countdownStart time.Time
	countdown      *CountdownData
	transition     *TransitionData
	apply          *ApplyFilterData
	counter        filter.Counter
	pulse          pulse

	output *frame.Frame
	change *Change
}

// NewMachine returns a machine in Idle. params are the initial filter
// parameters.
func NewMachine(s Settings, params filter.Params, src ImageSource, pipe filter.Pipeline, log *slog.Logger) (*Machine, error) {
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("session settings: %w", err)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	curve, _ := CurveByName(s.ZoomCurve)
	return &Machine{
		settings: s,
		curve:    curve,
		src:      src,
		pipe:     pipe,
		log:      log,
		params:   params,
		pulse:    newPulse(s.Pulse, s.TickInterval),
	}, nil
}

// Reconfigure replaces the settings. The new values apply from the next
// phase entry; the running phase keeps the timings it started with.
func (m *Machine) Reconfigure(s Settings) error {
	if err := s.validate(); err != nil {
		return fmt.Errorf("session settings: %w", err)
	}
	m.pending = &s
	return nil
}

// SetParams replaces the filter parameters.
func (m *Machine) SetParams(p filter.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.params = p
	return nil
}

func (m *Machine) Phase() Phase { return m.phase }

func (m *Machine) Params() filter.Params { return m.params }

// Output returns the frame to present: the live preview in Idle and
// Countdown, the frozen frame in Transition, the filtered frame afterwards.
func (m *Machine) Output() *frame.Frame { return m.output }

// LastChange returns the transition made by the most recent Advance.
func (m *Machine) LastChange() (Change, bool) {
	if m.change == nil {
		return Change{}, false
	}
	return *m.change, true
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot(now time.Time) *State {
	s := &State{
		SessionID: m.sessionID,
		Phase:     m.phase,
		EnteredAt: m.enteredAt,
		Params:    m.params,
		Degraded:  m.degraded,
		Tick:      m.tick,
		UpdatedAt: now,
	}
	if m.countdown != nil {
		d := *m.countdown
		s.Countdown = &d
	}
	if m.transition != nil {
		d := *m.transition
		s.Transition = &d
	}
	if m.apply != nil {
		d := *m.apply
		s.ApplyFilter = &d
	}
	return s
}

// Advance runs one tick and returns the resulting phase. trig is the
// trigger polled this tick, if any; it is consumed whether or not it
// applies to the current phase. A reset always wins. At most one phase
// transition happens per call. Advance never fails: frame source problems
// degrade the session instead.
func (m *Machine) Advance(now time.Time, trig *control.Trigger) Phase {
	m.tick++
	m.change = nil

	if trig != nil {
		switch trig.Name {
		case control.NameReset:
			m.enterIdle(now, ReasonReset)
			return m.phase
		case control.NameGain, control.NameExponent:
			m.applyParam(*trig)
			trig = nil
		}
	}

	switch m.phase {
	case Idle:
		m.output = m.src.CurrentFrame()
		if isTrigger(trig, control.NameStart) {
			m.enterCountdown(now, *trig)
			trig = nil
		}
	case Countdown:
		m.output = m.src.CurrentFrame()
		m.stepCountdown(now)
	case Transition:
		m.stepTransition(now)
	case ApplyFilter:
		if isTrigger(trig, control.NameNext) {
			// next on the entry tick still presents one filtered frame.
			if m.apply.PixelsProcessed == 0 {
				m.runFilter()
			}
			m.enterEndScreen(now, ReasonNext)
			trig = nil
			break
		}
		m.stepApplyFilter(now)
	case EndScreen:
		switch {
		case isTrigger(trig, control.NameStart):
			m.enterIdle(now, ReasonStart)
			trig = nil
		case now.Sub(m.enteredAt) >= m.settings.EndScreenTimeout:
			m.enterIdle(now, ReasonEndScreenTimeout)
		}
	}

	if trig != nil {
		m.log.Debug("trigger ignored", "trigger", trig.String(), "phase", m.phase.String())
	}
	return m.phase
}

func isTrigger(t *control.Trigger, name string) bool {
	return t != nil && t.Name == name
}

func (m *Machine) applyParam(t control.Trigger) {
	v, ok := t.Arg(0)
	if !ok {
		return
	}
	p := m.params
	if t.Name == control.NameGain {
		p.Gain = v
	} else {
		p.Exponent = v
	}
	if err := m.SetParams(p); err != nil {
		m.log.Debug("filter parameter rejected", "trigger", t.String(), "error", err)
	}
}

// transitionTo records the change and resets all phase data. Entry
// functions populate the data of the new phase afterwards.
func (m *Machine) transitionTo(to Phase, now time.Time, reason string) {
	c := Change{
		From:           m.phase,
		To:             to,
		Reason:         reason,
		SessionID:      m.sessionID,
		At:             now,
		SessionStarted: m.sessionStarted,
		Pixels:         m.counter.Value(),
	}
	m.change = &c

	if m.pending != nil {
		m.settings = *m.pending
		m.curve, _ = CurveByName(m.settings.ZoomCurve)
		m.pulse = newPulse(m.settings.Pulse, m.settings.TickInterval)
		m.pending = nil
	}

	m.phase = to
	m.enteredAt = now
	m.countdown = nil
	m.transition = nil
	m.apply = nil
}

func (m *Machine) enterIdle(now time.Time, reason string) {
	if m.phase == Idle {
		m.change = nil
		return
	}
	m.transitionTo(Idle, now, reason)
	m.src.Unfreeze()
	m.counter.Reset()
	m.sessionID = ""
	m.sessionStarted = time.Time{}
	m.degraded = false
	m.output = m.src.CurrentFrame()
}

func (m *Machine) enterCountdown(now time.Time, t control.Trigger) {
	from := m.settings.CountdownFrom
	if m.pending != nil {
		from = m.pending.CountdownFrom
	}
	if v, ok := t.Arg(0); ok && v >= 1 {
		from = int(v)
	}

	m.sessionID = uuid.NewString()
	m.sessionStarted = now
	m.transitionTo(Countdown, now, ReasonStart)
	m.countdownStart = now
	m.countdown = &CountdownData{From: from, Number: from}
	m.pulse.kick()
	m.countdown.DisplaySize = m.pulse.step()
	m.log.Info("session started", "session", m.sessionID, "countdown", from)
}

func (m *Machine) stepCountdown(now time.Time) {
	elapsed := now.Sub(m.countdownStart)
	n := m.countdown.From - int(elapsed/time.Second)
	if n <= 0 {
		m.enterTransition(now)
		return
	}
	if n < m.countdown.Number {
		m.countdown.Number = n
		m.pulse.kick()
	}
	m.countdown.DisplaySize = m.pulse.step()
}

func (m *Machine) enterTransition(now time.Time) {
	m.transitionTo(Transition, now, ReasonCountdownElapsed)
	m.transition = &TransitionData{
		Duration:  m.settings.TransitionDuration,
		StartTime: now,
		ZoomLevel: 1,
		MaxZoom:   m.settings.MaxZoom,
	}
	if err := m.src.Freeze(); err != nil {
		m.degraded = true
		m.log.Warn("freeze failed, continuing with last frame", "session", m.sessionID, "error", err)
	}
	m.output = m.src.CurrentFrame()
}

// stepTransition advances the zoom. The tick that reaches maxZoom also
// enters ApplyFilter, so snapshots never carry a zoom of exactly maxZoom;
// only the OSC status stream reports that final value.
func (m *Machine) stepTransition(now time.Time) {
	t := m.transition
	elapsed := now.Sub(t.StartTime)
	t.ZoomLevel = zoomAt(m.curve, elapsed, t.Duration, t.MaxZoom)
	if elapsed >= t.Duration {
		m.enterApplyFilter(now)
	}
}

func (m *Machine) enterApplyFilter(now time.Time) {
	m.transitionTo(ApplyFilter, now, ReasonTransitionElapsed)
	m.counter.Reset()
	m.apply = &ApplyFilterData{}
}

func (m *Machine) runFilter() {
	if out := m.pipe.Apply(m.src.CurrentFrame(), m.params, &m.counter); out != nil {
		m.output = out
	}
	m.apply.PixelsProcessed = m.counter.Value()
}

func (m *Machine) stepApplyFilter(now time.Time) {
	m.runFilter()

	switch {
	case m.settings.MaxPixels > 0 && m.apply.PixelsProcessed >= m.settings.MaxPixels:
		m.enterEndScreen(now, ReasonMaxPixels)
	case m.settings.ApplyFilterTimeout > 0 && now.Sub(m.enteredAt) >= m.settings.ApplyFilterTimeout:
		m.enterEndScreen(now, ReasonFilterTimeout)
	}
}

func (m *Machine) enterEndScreen(now time.Time, reason string) {
	m.transitionTo(EndScreen, now, reason)
}
