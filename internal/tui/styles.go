package tui

import "github.com/charmbracelet/lipgloss"

var (
	// TitleStyle is used for screen titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	// SelectedItemStyle is used for highlighted list entries.
	SelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("170")).
				Bold(true)

	// NormalItemStyle is used for other list entries.
	NormalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	// MutedStyle is used for secondary text such as window bounds.
	MutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	// ErrorStyle is used for error messages.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	// BadgeStyle marks the active filter and focus.
	BadgeStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("230")).
			Padding(0, 1)

	// PercentStyle renders the headline percentage.
	PercentStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	// HelpStyle is used for the footer hint line.
	HelpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	barDoneStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	barOpenStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)
