// Package status renders the console's top bar.
package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/foreach/photobooth/internal/console/theme"
	"github.com/foreach/photobooth/internal/ws"
)

// Model holds the status bar state.
type Model struct {
	Connected bool
	Phase     string
	SessionID string
	Camera    *ws.CameraHealthPayload
	Width     int
}

func New() Model {
	return Model{Phase: "idle"}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	phaseStr := lipgloss.NewStyle().Bold(true).Foreground(theme.PhaseColor(m.Phase)).
		Render(theme.PhaseGlyph(m.Phase) + " " + m.Phase)

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + phaseStr
	if m.SessionID != "" {
		id := m.SessionID
		if len(id) > 8 {
			id = id[:8]
		}
		content += sep + theme.StyleDimmed.Render("session "+id)
	}
	if m.Camera != nil {
		status := string(m.Camera.Status)
		label := "camera: " + status
		if m.Camera.ConsecutiveFailures > 0 {
			label = fmt.Sprintf("camera: %s (%d)", status, m.Camera.ConsecutiveFailures)
		}
		content += sep + lipgloss.NewStyle().Foreground(theme.HealthColor(status)).Render(label)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
