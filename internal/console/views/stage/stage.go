// Package stage renders the live session panel: phase, countdown, zoom and
// filter progress.
package stage

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/foreach/photobooth/internal/console/theme"
	"github.com/foreach/photobooth/internal/session"
)

// pulseCells is the meter width at a display size of 1.
const pulseCells = 8

type Model struct {
	Width int
	State *session.State
	bar   progress.Model
}

func New() Model {
	return Model{
		bar: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

// ZoomFraction maps a transition's zoom onto 0..1.
func ZoomFraction(td *session.TransitionData) float64 {
	if td == nil || td.MaxZoom <= 1 {
		return 0
	}
	f := (td.ZoomLevel - 1) / (td.MaxZoom - 1)
	return min(max(f, 0), 1)
}

// View renders the panel at now.
func (m Model) View(now time.Time) string {
	width := max(m.Width, 40)
	s := m.State
	if s == nil {
		return theme.StyleBorder.Width(width - 2).Render(theme.StyleDimmed.Render("waiting for state..."))
	}

	phase := s.Phase.String()
	title := lipgloss.NewStyle().Bold(true).Foreground(theme.PhaseColor(phase)).
		Render(strings.ToUpper(strings.ReplaceAll(phase, "_", " ")))
	elapsed := theme.StyleDimmed.Render(fmt.Sprintf("%s in phase", now.Sub(s.EnteredAt).Truncate(100*time.Millisecond)))

	lines := []string{title + "  " + elapsed, ""}
	bar := m.bar
	bar.Width = max(width-16, 10)

	switch s.Phase {
	case session.Idle:
		lines = append(lines, theme.StyleDimmed.Render("live preview, waiting for start"))
	case session.Countdown:
		if cd := s.Countdown; cd != nil {
			digit := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorCountdown).Render(fmt.Sprintf("%d", cd.Number))
			lines = append(lines,
				fmt.Sprintf("count   %s of %d", digit, cd.From),
				"pulse   "+pulseMeter(cd.DisplaySize),
			)
		}
	case session.Transition:
		if td := s.Transition; td != nil {
			lines = append(lines,
				fmt.Sprintf("zoom    %.2fx of %.0fx", td.ZoomLevel, td.MaxZoom),
				"        "+bar.ViewAs(ZoomFraction(td)),
			)
		}
	case session.ApplyFilter:
		lines = append(lines, fmt.Sprintf("pixels  %s", formatCount(s.PixelsProcessed())))
	case session.EndScreen:
		lines = append(lines, theme.StyleDimmed.Render("result on screen, start or wait to return to idle"))
	}

	lines = append(lines, "",
		theme.StyleDimmed.Render(fmt.Sprintf("gain %.2f  exponent %.2f", s.Params.Gain, s.Params.Exponent)))
	if s.Degraded {
		lines = append(lines, theme.StyleError.Render("degraded: freeze failed, showing live frames"))
	}

	return theme.StyleBorder.Width(width - 2).Padding(0, 1).Render(strings.Join(lines, "\n"))
}

func pulseMeter(size float64) string {
	n := int(size*pulseCells + 0.5)
	n = min(max(n, 0), pulseCells*3)
	return lipgloss.NewStyle().Foreground(theme.ColorCountdown).Render(strings.Repeat("█", n))
}

// formatCount renders n with thousands separators.
func formatCount(n int64) string {
	s := fmt.Sprintf("%d", n)
	if n < 0 {
		return s
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
