package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the viewer.
type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Escape   key.Binding
	Quit     key.Binding
	Debug    key.Binding
	Info     key.Binding
	Remount  key.Binding
	PanLeft  key.Binding
	PanRight key.Binding
	ZoomIn   key.Binding
	ZoomOut  key.Binding
	Reset    key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
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
		Debug: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "protocol log"),
		),
		Info: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "figure info"),
		),
		Remount: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "remount"),
		),
		PanLeft: key.NewBinding(
			key.WithKeys("h", "left"),
			key.WithHelp("h/←", "pan left"),
		),
		PanRight: key.NewBinding(
			key.WithKeys("l", "right"),
			key.WithHelp("l/→", "pan right"),
		),
		ZoomIn: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "zoom in"),
		),
		ZoomOut: key.NewBinding(
			key.WithKeys("-"),
			key.WithHelp("-", "zoom out"),
		),
		Reset: key.NewBinding(
			key.WithKeys("0"),
			key.WithHelp("0", "full range"),
		),
	}
}
