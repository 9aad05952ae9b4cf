package app

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/foreach/photobooth/internal/console/client"
	"github.com/foreach/photobooth/internal/control"
	"github.com/foreach/photobooth/internal/filter"
	"github.com/foreach/photobooth/internal/session"
	boothstats "github.com/foreach/photobooth/internal/stats"
	"github.com/foreach/photobooth/internal/ws"
)

type recordingSender struct {
	sent []control.Trigger
	err  error
}

func (s *recordingSender) Send(t control.Trigger) error {
	s.sent = append(s.sent, t)
	return s.err
}

type fixedStats struct{ s *boothstats.Stats }

func (f fixedStats) Stats() (*boothstats.Stats, error) { return f.s, nil }

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends k and runs the resulting command once, feeding its message
// back into the model.
func press(t *testing.T, m Model, k tea.KeyMsg) Model {
	t.Helper()
	next, cmd := m.Update(k)
	m = next.(Model)
	if cmd != nil {
		if msg := cmd(); msg != nil {
			next, _ = m.Update(msg)
			m = next.(Model)
		}
	}
	return m
}

func TestKeysSendTriggers(t *testing.T) {
	s := &recordingSender{}
	m := New(nil, nil, s)

	for _, k := range []string{"s", "r", "n"} {
		m = press(t, m, runes(k))
	}
	want := []string{control.NameStart, control.NameReset, control.NameNext}
	if len(s.sent) != len(want) {
		t.Fatalf("sent = %v", s.sent)
	}
	for i, name := range want {
		if s.sent[i].Name != name {
			t.Errorf("sent[%d] = %s, want %s", i, s.sent[i], name)
		}
	}
	if e, ok := m.log.Last(); !ok || !strings.Contains(e.Message, "sent next") {
		t.Errorf("last log = %+v", e)
	}
}

func TestParamKeysStepFromLiveState(t *testing.T) {
	s := &recordingSender{}
	m := New(nil, nil, s)
	next, _ := m.Update(client.StateMsg{Payload: ws.StatePayload{State: &session.State{
		Phase:  session.Idle,
		Params: filter.Params{Gain: 0.05, Exponent: 0.15},
	}}})
	m = next.(Model)

	m = press(t, m, runes("+"))
	m = press(t, m, runes("-"))
	m = press(t, m, runes("]"))
	m = press(t, m, runes("["))

	want := []control.Trigger{
		{Name: control.NameGain, Args: []float64{0.15}},
		{Name: control.NameGain, Args: []float64{0}},
		{Name: control.NameExponent, Args: []float64{0.25}},
		{Name: control.NameExponent, Args: []float64{minExponent}},
	}
	if len(s.sent) != len(want) {
		t.Fatalf("sent = %v", s.sent)
	}
	for i := range want {
		if s.sent[i].Name != want[i].Name || s.sent[i].Args[0] != want[i].Args[0] {
			t.Errorf("sent[%d] = %v, want %v", i, s.sent[i], want[i])
		}
		if err := s.sent[i].Validate(); err != nil {
			t.Errorf("sent[%d] invalid: %v", i, err)
		}
	}
}

func TestParamKeysUseDefaultsBeforeState(t *testing.T) {
	s := &recordingSender{}
	m := New(nil, nil, s)
	press(t, m, runes("+"))
	want := round(filter.DefaultParams().Gain + paramStep)
	if len(s.sent) != 1 || s.sent[0].Args[0] != want {
		t.Errorf("sent = %v, want gain %v", s.sent, want)
	}
}

func TestSendErrorIsLogged(t *testing.T) {
	m := New(nil, nil, &recordingSender{err: errors.New("queue full")})
	m = press(t, m, runes("s"))
	e, _ := m.log.Last()
	if !strings.Contains(e.Message, "queue full") {
		t.Errorf("last log = %+v", e)
	}
}

func TestOverlayBlocksTriggers(t *testing.T) {
	s := &recordingSender{}
	m := New(nil, nil, s)

	m = press(t, m, runes("?"))
	if m.overlay != OverlayHelp {
		t.Fatalf("overlay = %v, want help", m.overlay)
	}
	m = press(t, m, runes("s"))
	if len(s.sent) != 0 {
		t.Error("trigger sent while an overlay was open")
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.overlay != OverlayNone {
		t.Errorf("overlay after esc = %v", m.overlay)
	}
}

func TestStatsOverlayFetches(t *testing.T) {
	m := New(nil, fixedStats{&boothstats.Stats{SessionsCompleted: 7}}, nil)
	m = press(t, m, runes("t"))
	if m.overlay != OverlayStats {
		t.Fatalf("overlay = %v", m.overlay)
	}
	if m.statsView.Stats == nil || m.statsView.Stats.SessionsCompleted != 7 {
		t.Errorf("stats view = %+v", m.statsView)
	}
}

func TestPhaseAndHealthMessages(t *testing.T) {
	m := New(nil, nil, nil)
	st := &session.State{Phase: session.Countdown, SessionID: "0123456789"}
	next, _ := m.Update(client.PhaseMsg{Payload: ws.PhasePayload{
		From: session.Idle, To: session.Countdown, Reason: session.ReasonStart, State: st,
	}})
	m = next.(Model)
	if m.statusBar.Phase != "countdown" || m.statusBar.SessionID != "0123456789" {
		t.Errorf("status bar = %+v", m.statusBar)
	}
	if e, _ := m.log.Last(); e.Message != "idle -> countdown (start)" {
		t.Errorf("log = %q", e.Message)
	}

	next, _ = m.Update(client.CameraHealthMsg{Payload: ws.CameraHealthPayload{Status: ws.StatusFailed, ConsecutiveFailures: 5, LastError: "no signal"}})
	m = next.(Model)
	if m.statusBar.Camera == nil || m.statusBar.Camera.Status != ws.StatusFailed {
		t.Errorf("camera = %+v", m.statusBar.Camera)
	}
}

func TestDisconnectedView(t *testing.T) {
	m := New(nil, nil, nil)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = next.(Model)

	v := m.View()
	if !strings.Contains(v, "DISCONNECTED") || !strings.Contains(v, "Reconnecting") {
		t.Errorf("disconnected view = %q", v)
	}

	next, _ = m.Update(client.ConnectedMsg{})
	m = next.(Model)
	next, _ = m.Update(client.SnapshotMsg{Payload: ws.SnapshotPayload{State: &session.State{Phase: session.Idle}}})
	m = next.(Model)
	if v := m.View(); strings.Contains(v, "DISCONNECTED") || !strings.Contains(v, "IDLE") {
		t.Errorf("connected view = %q", v)
	}
}

func TestQuit(t *testing.T) {
	m := New(nil, nil, nil)
	_, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Fatal("quit returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("quit command did not produce QuitMsg")
	}
}
