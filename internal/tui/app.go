package tui

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	progressbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/h0rv/issuepulse/internal/domain"
	"github.com/h0rv/issuepulse/internal/progress"
	"github.com/h0rv/issuepulse/internal/reactive"
	"github.com/h0rv/issuepulse/internal/window"
	"github.com/pkg/browser"
)

// AppScreen represents the screens of the dashboard.
type AppScreen int

const (
	ScreenDashboard AppScreen = iota
	ScreenProjectPicker
)

// Options holds the dashboard settings.
type Options struct {
	UserID     string
	Filter     domain.Filter
	ProjectID  string // Initial focus; empty shows every project
	ProjectURL string // "{id}" is replaced by the project ID
	Location   *time.Location
	Now        func() time.Time
}

// AppModel is the root Bubble Tea model. It owns one live progress
// subscription at a time and replaces it whenever the filter or the focused
// project changes.
type AppModel struct {
	// Dependencies
	agg     *progress.Aggregator
	ctx     context.Context
	opts    Options
	openURL func(string) error

	// UI components
	keymap  KeyMap
	help    HelpModel
	spinner spinner.Model
	bar     progressbar.Model
	chart   barchart.Model
	picker  ProjectPickerModel

	// Subscription state
	filter domain.Filter
	focus  *domain.Project
	gen    int
	cancel context.CancelFunc
	stream <-chan reactive.Event[domain.IssueProgress]

	// Latest data
	current   domain.IssueProgress
	loaded    bool
	live      bool
	breakdown []progress.ProjectProgress

	// View state
	screen   AppScreen
	width    int
	height   int
	showHelp bool
	err      error
	toast    string
}

// NewAppModel creates the dashboard model.
func NewAppModel(ctx context.Context, agg *progress.Aggregator, opts Options) AppModel {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))

	m := AppModel{
		agg:     agg,
		ctx:     ctx,
		opts:    opts,
		openURL: browser.OpenURL,
		keymap:  DefaultKeyMap(),
		help:    NewHelpModel(DefaultKeyMap()),
		spinner: sp,
		bar:     progressbar.New(progressbar.WithDefaultGradient(), progressbar.WithoutPercentage()),
		chart:   barchart.New(60, 12),
		filter:  opts.Filter,
		screen:  ScreenDashboard,
	}
	if opts.ProjectID != "" {
		m.focus = &domain.Project{ID: opts.ProjectID, Name: opts.ProjectID}
	}
	return m
}

// startMsg opens the first subscription.
type startMsg struct{}

// Init initializes the dashboard.
func (m AppModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		tea.WindowSize(),
		func() tea.Msg { return startMsg{} },
	)
}

// subscribe cancels the active stream and opens one for the current filter
// and focus. Messages from older streams are dropped by generation.
func (m *AppModel) subscribe() tea.Cmd {
	m.stop()
	m.gen++
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	if m.focus != nil {
		m.stream = m.agg.ForProject(ctx, m.opts.UserID, m.focus.ID, m.filter)
	} else {
		m.stream = m.agg.ForUser(ctx, m.opts.UserID, m.filter)
	}
	m.loaded = false
	m.live = true
	m.err = nil
	return tea.Batch(waitForProgress(m.gen, m.stream), m.loadBreakdown())
}

func (m *AppModel) stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func waitForProgress(gen int, ch <-chan reactive.Event[domain.IssueProgress]) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{gen: gen}
		}
		return progressMsg{gen: gen, progress: ev.Value, err: ev.Err}
	}
}

func (m AppModel) loadBreakdown() tea.Cmd {
	gen, filter, user := m.gen, m.filter, m.opts.UserID
	return func() tea.Msg {
		entries, err := m.agg.Breakdown(m.ctx, user, filter)
		return breakdownMsg{gen: gen, projects: entries, err: err}
	}
}

// Update handles messages.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(msg.Width-24, 10)
		(&m).buildChart()
		if m.screen == ScreenProjectPicker {
			var cmd tea.Cmd
			m.picker, cmd = m.picker.Update(msg)
			return m, cmd
		}
		return m, nil

	case startMsg:
		cmd := (&m).subscribe()
		return m, cmd

	case progressMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		if msg.err != nil {
			m.err = msg.err
			m.live = false
			return m, nil
		}
		m.current = msg.progress
		m.loaded = true
		// The chart reloads on subscribe and on refresh only.
		return m, waitForProgress(m.gen, m.stream)

	case streamClosedMsg:
		if msg.gen == m.gen {
			m.live = false
		}
		return m, nil

	case breakdownMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		if msg.err != nil {
			m.toast = fmt.Sprintf("Chart failed: %v", msg.err)
			return m, nil
		}
		m.breakdown = msg.projects
		m.syncFocusName()
		(&m).buildChart()
		return m, nil

	case ProjectSelectedMsg:
		p := msg.Project
		m.focus = &p
		m.screen = ScreenDashboard
		cmd := (&m).subscribe()
		return m, cmd

	case PickerClosedMsg:
		m.screen = ScreenDashboard
		return m, nil

	case ErrorMsg:
		m.err = msg.Err
		return m, nil

	case QuitMsg:
		m.stop()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	}

	if m.screen == ScreenProjectPicker {
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleKeyPress processes keyboard input.
func (m AppModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keymap.ForceQuit) {
		m.stop()
		return m, tea.Quit
	}

	if m.screen == ScreenProjectPicker {
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd
	}

	if m.showHelp {
		if key.Matches(msg, m.keymap.Help, m.keymap.Quit, m.keymap.Back) {
			m.showHelp = false
		}
		return m, nil
	}

	m.toast = ""
	switch {
	case key.Matches(msg, m.keymap.Quit):
		m.stop()
		return m, tea.Quit
	case key.Matches(msg, m.keymap.Help):
		m.showHelp = true
	case key.Matches(msg, m.keymap.Filter):
		next := m.filter.Next()
		if next == m.filter {
			m.toast = m.filter.Label() + " has no narrower window"
			return m, nil
		}
		m.filter = next
		cmd := (&m).subscribe()
		return m, cmd
	case key.Matches(msg, m.keymap.Project):
		if len(m.breakdown) == 0 {
			m.toast = "No projects to pick from yet"
			return m, nil
		}
		m.picker = NewProjectPickerModel(m.breakdown, m.width, m.height)
		m.screen = ScreenProjectPicker
		return m, m.picker.Init()
	case key.Matches(msg, m.keymap.AllProjects):
		if m.focus == nil {
			return m, nil
		}
		m.focus = nil
		cmd := (&m).subscribe()
		return m, cmd
	case key.Matches(msg, m.keymap.Open):
		m.toast = m.openFocused()
	case key.Matches(msg, m.keymap.Refresh):
		return m, m.loadBreakdown()
	}
	return m, nil
}

// openFocused opens the focused project and returns a toast on failure.
func (m AppModel) openFocused() string {
	if m.focus == nil {
		return "Focus a project first (p)"
	}
	if m.opts.ProjectURL == "" {
		return "No project URL configured"
	}
	target := strings.ReplaceAll(m.opts.ProjectURL, "{id}", url.PathEscape(m.focus.ID))
	if err := m.openURL(target); err != nil {
		return fmt.Sprintf("Open failed: %v", err)
	}
	return ""
}

// syncFocusName fills in the focused project's name once the breakdown knows it.
func (m *AppModel) syncFocusName() {
	if m.focus == nil {
		return
	}
	for _, e := range m.breakdown {
		if e.Project.ID == m.focus.ID {
			p := e.Project
			m.focus = &p
			return
		}
	}
}

func (m *AppModel) buildChart() {
	width := m.width - 4
	if width < 20 {
		width = 60
	}
	height := 10
	if m.height > 30 {
		height = 14
	}

	m.chart = barchart.New(width, height)
	if len(m.breakdown) == 0 {
		return
	}

	bars := make([]barchart.BarData, 0, len(m.breakdown))
	for _, e := range m.breakdown {
		open := e.Progress.Total - e.Progress.Completed
		bars = append(bars, barchart.BarData{
			Label: shorten(projectLabel(e.Project), 10),
			Values: []barchart.BarValue{
				{Name: "done", Value: float64(e.Progress.Completed), Style: barDoneStyle},
				{Name: "open", Value: float64(open), Style: barOpenStyle},
			},
		})
	}
	m.chart.PushAll(bars)
	m.chart.Draw()
}

// View renders the current screen.
func (m AppModel) View() string {
	if m.screen == ScreenProjectPicker {
		return m.picker.View()
	}

	width := m.width
	if width == 0 {
		width = 80
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(ErrorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	case !m.loaded:
		b.WriteString(m.spinner.View() + " Loading...\n")
	default:
		b.WriteString(m.renderSummary())
	}

	if m.showHelp {
		b.WriteString(m.help.Overlay(width))
		return b.String()
	}

	if len(m.breakdown) > 0 {
		b.WriteString("\n")
		b.WriteString(m.chart.View())
		b.WriteString("\n")
		b.WriteString(m.renderLegend())
	}

	if m.toast != "" {
		b.WriteString("\n" + ErrorStyle.Render(m.toast))
	}
	b.WriteString(HelpStyle.Render(m.help.Short(width)))
	return b.String()
}

func (m AppModel) renderHeader() string {
	scope := "All projects"
	if m.focus != nil {
		scope = projectLabel(*m.focus)
	}
	parts := []string{
		TitleStyle.Render("Issue progress"),
		BadgeStyle.Render(m.filter.Label()),
		BadgeStyle.Render(scope),
	}
	if !m.live && m.loaded {
		parts = append(parts, MutedStyle.Render("(stream ended)"))
	}
	return strings.Join(parts, " ")
}

func (m AppModel) renderSummary() string {
	p := m.current
	var b strings.Builder
	b.WriteString(PercentStyle.Render(fmt.Sprintf("%5.1f%%", p.Percent)))
	b.WriteString(" ")
	b.WriteString(m.bar.ViewAs(p.Percent / 100))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%d of %d issues done", p.Completed, p.Total))
	b.WriteString("\n")
	b.WriteString(MutedStyle.Render(m.windowLabel()))
	b.WriteString("\n")
	return b.String()
}

func (m AppModel) windowLabel() string {
	rng := window.Resolve(m.filter, m.opts.Now(), m.opts.Location)
	if rng == window.All {
		return "Deadlines: any time"
	}
	from, to := rng.Bounds(m.opts.Location)
	return fmt.Sprintf("Deadlines: %s to %s", from.Format("Mon Jan 2 2006"), to.Format("Mon Jan 2 2006"))
}

func (m AppModel) renderLegend() string {
	var b strings.Builder
	for _, e := range m.breakdown {
		name := projectLabel(e.Project)
		line := fmt.Sprintf("%-24s %s", shorten(name, 24), e.Progress)
		if m.focus != nil && e.Project.ID == m.focus.ID {
			b.WriteString(SelectedItemStyle.Render("> " + line))
		} else {
			b.WriteString(NormalItemStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func projectLabel(p domain.Project) string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
