// Package theme provides the Lip Gloss palette and shared styles for the
// operator console. It is a leaf package with no internal imports to avoid
// import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Phase colors.
var (
	ColorIdle        = lipgloss.Color("#4b5563")
	ColorCountdown   = lipgloss.Color("#f59e0b")
	ColorTransition  = lipgloss.Color("#7c3aed")
	ColorApplyFilter = lipgloss.Color("#2563eb")
	ColorEndScreen   = lipgloss.Color("#16a34a")
	ColorDefault     = lipgloss.Color("#9ca3af")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// PhaseColor returns the color for a phase name.
func PhaseColor(phase string) lipgloss.Color {
	switch phase {
	case "idle":
		return ColorIdle
	case "countdown":
		return ColorCountdown
	case "transition":
		return ColorTransition
	case "apply_filter":
		return ColorApplyFilter
	case "end_screen":
		return ColorEndScreen
	default:
		return ColorDefault
	}
}

// PhaseGlyph returns a glyph for a phase name.
func PhaseGlyph(phase string) string {
	switch phase {
	case "idle":
		return "○"
	case "countdown":
		return "◔"
	case "transition":
		return "◎"
	case "apply_filter":
		return "●"
	case "end_screen":
		return "✓"
	default:
		return "·"
	}
}

// HealthColor returns the color for a camera health status.
func HealthColor(status string) lipgloss.Color {
	switch status {
	case "healthy":
		return ColorHealthy
	case "degraded":
		return ColorWarning
	case "failed":
		return ColorDanger
	default:
		return ColorDimmed
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleError = lipgloss.NewStyle().
		Foreground(ColorDanger)
)

// PanelStyle is the double-bordered overlay frame.
func PanelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(ColorBorder)
}
