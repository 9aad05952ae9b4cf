package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the console.
type KeyMap struct {
	Start        key.Binding
	Reset        key.Binding
	Next         key.Binding
	GainUp       key.Binding
	GainDown     key.Binding
	ExponentUp   key.Binding
	ExponentDown key.Binding
	Stats        key.Binding
	Log          key.Binding
	Help         key.Binding
	Up           key.Binding
	Down         key.Binding
	Escape       key.Binding
	Quit         key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Start: key.NewBinding(
			key.WithKeys("s", " "),
			key.WithHelp("s", "start"),
		),
		Reset: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reset"),
		),
		Next: key.NewBinding(
			key.WithKeys("n", "enter"),
			key.WithHelp("n", "next"),
		),
		GainUp: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "gain up"),
		),
		GainDown: key.NewBinding(
			key.WithKeys("-", "_"),
			key.WithHelp("-", "gain down"),
		),
		ExponentUp: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "exponent up"),
		),
		ExponentDown: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "exponent down"),
		),
		Stats: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "stats"),
		),
		Log: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "event log"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "scroll down"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close overlay"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Reset, k.Next, k.GainUp, k.GainDown, k.ExponentDown, k.ExponentUp, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.Reset, k.Next},
		{k.GainUp, k.GainDown, k.ExponentUp, k.ExponentDown},
		{k.Stats, k.Log, k.Help, k.Up, k.Down, k.Escape, k.Quit},
	}
}

// All returns every binding in display order.
func (k KeyMap) All() []key.Binding {
	var out []key.Binding
	for _, group := range k.FullHelp() {
		out = append(out, group...)
	}
	return out
}
