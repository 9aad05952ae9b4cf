// Package help renders the key reference overlay from markdown.
package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/glamour"

	"github.com/foreach/photobooth/internal/console/theme"
)

// Markdown builds the key reference document.
func Markdown(bindings []key.Binding) string {
	var b strings.Builder
	b.WriteString("# Operator console\n\n")
	b.WriteString("Triggers go to the booth's control queue and are applied one per tick. ")
	b.WriteString("`reset` returns to idle from any phase.\n\n")
	b.WriteString("| key | action |\n|---|---|\n")
	for _, kb := range bindings {
		h := kb.Help()
		if h.Key == "" {
			continue
		}
		fmt.Fprintf(&b, "| `%s` | %s |\n", h.Key, h.Desc)
	}
	return b.String()
}

// View renders bindings as a glamour document inside a panel. If rendering
// fails the raw markdown is shown.
func View(bindings []key.Binding, width int) string {
	innerW := max(width-4, 20)
	md := Markdown(bindings)

	out := md
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(innerW-4),
	)
	if err == nil {
		if rendered, err := r.Render(md); err == nil {
			out = rendered
		}
	}
	return theme.PanelStyle(innerW).Render(strings.TrimSpace(out) + "\n\n" + theme.StyleDimmed.Render("esc:close"))
}
