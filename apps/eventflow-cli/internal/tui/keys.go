package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings of the notification viewer
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Read    key.Binding
	ReadAll key.Binding
	Refresh key.Binding
	Poll    key.Binding
	Push    key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// DefaultKeyMap is the built-in key binding set
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Read: key.NewBinding(
		key.WithKeys("enter", " "),
		key.WithHelp("enter", "mark read"),
	),
	ReadAll: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "mark all read"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Poll: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "toggle polling"),
	),
	Push: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "toggle live stream"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "more keys"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "quit"),
	),
}

// ShortHelp implements help.KeyMap
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Read, k.Refresh, k.Push, k.Poll, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Read, k.ReadAll, k.Refresh},
		{k.Push, k.Poll},
		{k.Help, k.Quit},
	}
}
