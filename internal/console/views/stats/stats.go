// Package stats renders the booth statistics overlay.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/foreach/photobooth/internal/console/theme"
	boothstats "github.com/foreach/photobooth/internal/stats"
)

type Model struct {
	Stats *boothstats.Stats
	Err   error
}

func (m Model) View(width int, now time.Time) string {
	innerW := max(width-4, 20)
	title := theme.StyleHeader.Render(" BOOTH STATS ")
	help := theme.StyleDimmed.Render("esc:close  t:refresh")

	var body string
	switch {
	case m.Err != nil:
		body = theme.StyleError.Render("stats unavailable: " + m.Err.Error())
	case m.Stats == nil:
		body = theme.StyleDimmed.Render("loading...")
	default:
		body = m.render(now)
	}
	return theme.PanelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help))
}

func (m Model) render(now time.Time) string {
	s := m.Stats
	rows := [][2]string{
		{"sessions started", fmt.Sprint(s.SessionsStarted)},
		{"completed", fmt.Sprint(s.SessionsCompleted)},
		{"cancelled", fmt.Sprint(s.SessionsCancelled)},
		{"completion streak", fmt.Sprint(s.ConsecutiveCompletions)},
		{"degraded", fmt.Sprint(s.DegradedSessions)},
		{"avg session", fmt.Sprintf("%.1fs", s.AvgSessionSec)},
		{"longest session", fmt.Sprintf("%.1fs", s.MaxSessionSec)},
		{"pixels total", fmt.Sprint(s.TotalPixels)},
		{"pixels best", fmt.Sprint(s.MaxPixels)},
	}
	if s.LastSessionAt != nil {
		rows = append(rows, [2]string{"last session", now.Sub(*s.LastSessionAt).Round(time.Second).String() + " ago"})
	}
	rows = append(rows, [2]string{"since", s.Since.Format("2006-01-02 15:04")})

	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%-18s %s\n", theme.StyleDimmed.Render(r[0]), r[1])
	}
	if len(s.FilterEndReasons) > 0 {
		b.WriteString("\n" + theme.StyleHeader.Render("filter ended by") + "\n")
		for _, k := range sortedKeys(s.FilterEndReasons) {
			fmt.Fprintf(&b, "  %-16s %d\n", k, s.FilterEndReasons[k])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
