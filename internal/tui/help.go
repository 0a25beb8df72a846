package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"
	"github.com/h0rv/issuepulse/internal/domain"
)

// HelpOverlayStyle defines the style for the help overlay container.
var HelpOverlayStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("62")).
	Padding(1, 2).
	MarginTop(1)

// HelpModel wraps the bubbles help component.
type HelpModel struct {
	help   help.Model
	keymap KeyMap
}

// NewHelpModel creates a new help overlay model.
func NewHelpModel(keymap KeyMap) HelpModel {
	return HelpModel{help: help.New(), keymap: keymap}
}

// Short renders the one-line footer.
func (m HelpModel) Short(width int) string {
	m.help.Width = width
	m.help.ShowAll = false
	return m.help.View(m.keymap)
}

// Overlay renders the full key list and the filter cycle.
func (m HelpModel) Overlay(width int) string {
	m.help.Width = width - 8
	m.help.ShowAll = true

	cycle := []string{domain.CurrentYear.Label()}
	for f := domain.CurrentYear.Next(); f != domain.CurrentYear; f = f.Next() {
		cycle = append(cycle, f.Label())
	}

	body := m.help.View(m.keymap) + "\n\n" +
		MutedStyle.Render("Windows: "+strings.Join(cycle, " → ")+" → ...")
	return HelpOverlayStyle.Render(body)
}
