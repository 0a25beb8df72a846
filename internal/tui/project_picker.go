package tui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/h0rv/issuepulse/internal/progress"
)

// projectItem wraps a project and its current progress for use in bubbles/list.
type projectItem struct {
	entry progress.ProjectProgress
}

func (i projectItem) FilterValue() string {
	return i.entry.Project.Name
}

func (i projectItem) Title() string {
	if i.entry.Project.Name == "" {
		return i.entry.Project.ID
	}
	return i.entry.Project.Name
}

func (i projectItem) Description() string {
	p := i.entry.Project
	return fmt.Sprintf("%s · %d members · milestones %d/%d",
		i.entry.Progress, len(p.Members), p.Milestones.Reached, p.Milestones.Total)
}

// projectDelegate renders project items on two lines.
type projectDelegate struct{}

func (d projectDelegate) Height() int                             { return 2 }
func (d projectDelegate) Spacing() int                            { return 1 }
func (d projectDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (d projectDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	i, ok := item.(projectItem)
	if !ok {
		return
	}

	if index == m.Index() {
		fmt.Fprint(w, SelectedItemStyle.Render("> "+i.Title()))
		fmt.Fprint(w, "\n  "+NormalItemStyle.Render(i.Description()))
		return
	}
	fmt.Fprint(w, NormalItemStyle.Render("  "+i.Title()))
	fmt.Fprint(w, "\n  "+MutedStyle.Render(i.Description()))
}

// ProjectPickerModel lists projects for the user to focus on.
type ProjectPickerModel struct {
	list list.Model
}

// NewProjectPickerModel creates a new ProjectPickerModel.
func NewProjectPickerModel(entries []progress.ProjectProgress, width, height int) ProjectPickerModel {
	items := make([]list.Item, len(entries))
	for i, e := range entries {
		items[i] = projectItem{entry: e}
	}
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 20
	}

	l := list.New(items, projectDelegate{}, width-2, height-2)
	l.Title = "Focus a project"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = TitleStyle

	return ProjectPickerModel{list: l}
}

// Init initializes the model.
func (m ProjectPickerModel) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model state.
func (m ProjectPickerModel) Update(msg tea.Msg) (ProjectPickerModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width - 2)
		m.list.SetHeight(msg.Height - 2)
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "q", "esc":
			return m, func() tea.Msg { return PickerClosedMsg{} }
		case "enter":
			if item, ok := m.list.SelectedItem().(projectItem); ok {
				return m, func() tea.Msg {
					return ProjectSelectedMsg{Project: item.entry.Project}
				}
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the model.
func (m ProjectPickerModel) View() string {
	return m.list.View()
}
