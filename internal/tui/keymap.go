package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all key bindings for the dashboard.
type KeyMap struct {
	Filter      key.Binding
	Project     key.Binding
	AllProjects key.Binding
	Open        key.Binding
	Refresh     key.Binding
	Help        key.Binding
	Quit        key.Binding
	ForceQuit   key.Binding
	Back        key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Filter: key.NewBinding(
			key.WithKeys("f", "tab"),
			key.WithHelp("f", "next time window"),
		),
		Project: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "focus a project"),
		),
		AllProjects: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "all projects"),
		),
		Open: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open in browser"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh chart"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
		),
	}
}

// ShortHelp returns key bindings to be shown in the mini help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Filter, k.Project, k.Help, k.Quit}
}

// FullHelp returns key bindings for the expanded help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Filter, k.Project, k.AllProjects},
		{k.Open, k.Refresh, k.Help, k.Quit},
	}
}
