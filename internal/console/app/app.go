// Package app is the operator console's root Bubble Tea model.
package app

import (
	"context"
	"math"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/foreach/photobooth/internal/console/client"
	"github.com/foreach/photobooth/internal/console/theme"
	"github.com/foreach/photobooth/internal/console/views/debug"
	helpview "github.com/foreach/photobooth/internal/console/views/help"
	"github.com/foreach/photobooth/internal/console/views/stage"
	statsview "github.com/foreach/photobooth/internal/console/views/stats"
	"github.com/foreach/photobooth/internal/console/views/status"
	"github.com/foreach/photobooth/internal/control"
	"github.com/foreach/photobooth/internal/filter"
	"github.com/foreach/photobooth/internal/session"
	boothstats "github.com/foreach/photobooth/internal/stats"
	"github.com/foreach/photobooth/internal/ws"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayStats
	OverlayLog
	OverlayHelp
)

const (
	paramStep   = 0.1
	minExponent = 0.1
	refreshRate = 100 * time.Millisecond
)

// Sender delivers a trigger to the booth.
type Sender interface {
	Send(control.Trigger) error
}

// StatsSource fetches booth statistics.
type StatsSource interface {
	Stats() (*boothstats.Stats, error)
}

type sentMsg struct {
	trigger control.Trigger
	err     error
}

type statsMsg struct {
	stats *boothstats.Stats
	err   error
}

type refreshMsg time.Time

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	stats  StatsSource
	sender Sender
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	help   help.Model
	width  int
	height int

	state   *session.State
	overlay Overlay
	attempt int
	now     func() time.Time

	statusBar status.Model
	stage     stage.Model
	log       debug.Model
	statsView statsview.Model

	connected bool
}

// New creates the root model. wsc may be nil when the model is driven by
// tests.
func New(wsc *client.WSClient, stats StatsSource, sender Sender) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		ws:        wsc,
		stats:     stats,
		sender:    sender,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		now:       time.Now,
		statusBar: status.New(),
		stage:     stage.New(),
		log:       debug.New(),
	}
}

// Init starts the websocket connection and the redraw clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.listen(), refresh())
}

func refresh() tea.Cmd {
	return tea.Tick(refreshRate, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m Model) listen() tea.Cmd {
	if m.ws == nil {
		return nil
	}
	return m.ws.Listen(m.ctx, m.attempt)
}

func (m Model) readNext() tea.Cmd {
	if m.ws == nil {
		return nil
	}
	return m.ws.ReadLoop(m.ctx)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.stage.Width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case refreshMsg:
		return m, refresh()

	case client.ConnectedMsg:
		m.connected = true
		m.attempt = 0
		m.statusBar.Connected = true
		m.log.Add(debug.KindWS, "connected")
		return m, m.readNext()

	case client.DisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		m.log.Add(debug.KindWS, "disconnected: %v", msg.Err)
		return m, m.listen()

	case client.DialErrorMsg:
		m.attempt++
		m.log.Add(debug.KindWS, "dial failed: %v (waited %s)", msg.Err, msg.Retry)
		return m, m.listen()

	case client.SnapshotMsg:
		m.setState(msg.Payload.State)
		if msg.Payload.Camera != nil {
			m.statusBar.Camera = msg.Payload.Camera
		}
		return m, m.readNext()

	case client.StateMsg:
		m.setState(msg.Payload.State)
		return m, m.readNext()

	case client.PhaseMsg:
		p := msg.Payload
		if p.State != nil {
			m.setState(p.State)
		}
		m.log.Add(debug.KindPhase, "%s -> %s (%s)", p.From, p.To, p.Reason)
		return m, m.readNext()

	case client.CameraHealthMsg:
		h := msg.Payload
		m.statusBar.Camera = &h
		if h.Status == ws.StatusHealthy {
			m.log.Add(debug.KindHealth, "camera healthy")
		} else {
			m.log.Add(debug.KindHealth, "camera %s after %d failures: %s", h.Status, h.ConsecutiveFailures, h.LastError)
		}
		return m, m.readNext()

	case client.MilestoneMsg:
		m.log.Add(debug.KindPhase, "milestone: %d sessions completed", msg.Payload.Completed)
		return m, m.readNext()

	case client.ErrorMsg:
		m.log.Add(debug.KindError, "booth: %s", msg.Payload.Message)
		return m, m.readNext()

	case sentMsg:
		if msg.err != nil {
			m.log.Add(debug.KindError, "send %s: %v", msg.trigger, msg.err)
		} else {
			m.log.Add(debug.KindTrigger, "sent %s", msg.trigger)
		}
		return m, nil

	case statsMsg:
		m.statsView = statsview.Model{Stats: msg.stats, Err: msg.err}
		return m, nil
	}

	return m, nil
}

func (m *Model) setState(s *session.State) {
	if s == nil {
		return
	}
	m.state = s
	m.stage.State = s
	m.statusBar.Phase = s.Phase.String()
	m.statusBar.SessionID = s.SessionID
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.cancel()
		if m.ws != nil {
			m.ws.Close()
		}
		return m, tea.Quit
	}

	if m.overlay != OverlayNone {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.overlay = OverlayNone
		case m.overlay == OverlayLog && key.Matches(msg, m.keys.Up):
			m.log.ScrollUp(1)
		case m.overlay == OverlayLog && key.Matches(msg, m.keys.Down):
			m.log.ScrollDown(1)
		case m.overlay == OverlayStats && key.Matches(msg, m.keys.Stats):
			return m, m.fetchStats()
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Start):
		return m, m.send(control.NameStart)
	case key.Matches(msg, m.keys.Reset):
		return m, m.send(control.NameReset)
	case key.Matches(msg, m.keys.Next):
		return m, m.send(control.NameNext)
	case key.Matches(msg, m.keys.GainUp):
		return m, m.send(control.NameGain, round(m.params().Gain+paramStep))
	case key.Matches(msg, m.keys.GainDown):
		return m, m.send(control.NameGain, math.Max(round(m.params().Gain-paramStep), 0))
	case key.Matches(msg, m.keys.ExponentUp):
		return m, m.send(control.NameExponent, round(m.params().Exponent+paramStep))
	case key.Matches(msg, m.keys.ExponentDown):
		return m, m.send(control.NameExponent, math.Max(round(m.params().Exponent-paramStep), minExponent))
	case key.Matches(msg, m.keys.Stats):
		m.overlay = OverlayStats
		m.statsView = statsview.Model{}
		return m, m.fetchStats()
	case key.Matches(msg, m.keys.Log):
		m.overlay = OverlayLog
	case key.Matches(msg, m.keys.Help):
		m.overlay = OverlayHelp
	}
	return m, nil
}

// params returns the live filter parameters, or the defaults before the
// first state arrives.
func (m Model) params() filter.Params {
	if m.state == nil {
		return filter.DefaultParams()
	}
	return m.state.Params
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}

func (m Model) send(name string, args ...float64) tea.Cmd {
	t := control.Trigger{Name: name, Args: args}
	sender := m.sender
	return func() tea.Msg {
		if sender == nil {
			return sentMsg{trigger: t, err: client.ErrNotConnected}
		}
		return sentMsg{trigger: t, err: sender.Send(t)}
	}
}

func (m Model) fetchStats() tea.Cmd {
	src := m.stats
	return func() tea.Msg {
		if src == nil {
			return statsMsg{err: client.ErrNotConnected}
		}
		s, err := src.Stats()
		return statsMsg{stats: s, err: err}
	}
}

// View renders the full console.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var body string
	switch m.overlay {
	case OverlayStats:
		body = m.statsView.View(m.width, m.now())
	case OverlayLog:
		body = m.log.View(m.width, m.height-4)
	case OverlayHelp:
		body = helpview.View(m.keys.All(), m.width)
	default:
		if !m.connected {
			body = m.disconnectedView()
		} else {
			body = m.stage.View(m.now())
		}
	}

	sections := []string{m.statusBar.View(), body}
	if e, ok := m.log.Last(); ok && m.overlay == OverlayNone {
		style := theme.StyleDimmed
		if e.Kind == debug.KindError {
			style = theme.StyleError
		}
		sections = append(sections, style.Render("  "+e.Message))
	}
	sections = append(sections, "  "+m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) disconnectedView() string {
	msg := lipgloss.JoinVertical(lipgloss.Center,
		lipgloss.NewStyle().Bold(true).Foreground(theme.ColorDanger).Render("DISCONNECTED"),
		theme.StyleDimmed.Render("Reconnecting to the booth..."),
	)
	return theme.StyleBorder.Width(max(m.width-2, 20)).Align(lipgloss.Center).Padding(1, 0).Render(msg)
}
