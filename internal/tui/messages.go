// Package tui provides the Bubble Tea dashboard showing live issue progress.
package tui

import (
	"github.com/h0rv/issuepulse/internal/domain"
	"github.com/h0rv/issuepulse/internal/progress"
)

// ProjectSelectedMsg is emitted when the user picks a project to focus.
type ProjectSelectedMsg struct {
	Project domain.Project
}

// PickerClosedMsg is emitted when the picker is dismissed without a choice.
type PickerClosedMsg struct{}

// ErrorMsg is emitted when an error occurs.
type ErrorMsg struct {
	Err error
}

// QuitMsg is emitted when the user requests to quit.
type QuitMsg struct{}

// progressMsg carries one emission of the active progress stream. gen ties
// it to the subscription that produced it.
type progressMsg struct {
	gen      int
	progress domain.IssueProgress
	err      error
}

// streamClosedMsg reports that the active progress stream ended.
type streamClosedMsg struct {
	gen int
}

// breakdownMsg carries a fresh per-project breakdown.
type breakdownMsg struct {
	gen      int
	projects []progress.ProjectProgress
	err      error
}
