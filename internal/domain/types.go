// Package domain defines the normalized domain types for projects, issues and views.
// These types mirror documents held by the backend store; nothing here owns a durable copy.
package domain

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrEmptyTimestamp indicates a timestamp field carried no value.
var ErrEmptyTimestamp = errors.New("empty timestamp")

// IssueState is the workflow state of an issue.
type IssueState string

// IssueState constants.
const (
	StateNew     IssueState = "NEW"
	StateOngoing IssueState = "ONGOING"
	StateDone    IssueState = "DONE"
)

// Valid reports whether s is one of the known states.
func (s IssueState) Valid() bool {
	switch s {
	case StateNew, StateOngoing, StateDone:
		return true
	}
	return false
}

// Issue represents a trackable unit of work inside a project.
type Issue struct {
	ID          string     `yaml:"id" json:"id"`                                       // Store-assigned identifier
	ProjectID   string     `yaml:"project_id" json:"projectId"`                        // Owning project
	Title       string     `yaml:"title" json:"title"`                                 // Issue title
	Description string     `yaml:"description,omitempty" json:"description,omitempty"` // Optional body
	CreatorID   string     `yaml:"creator" json:"creator"`                             // Identity of the creator, immutable
	State       IssueState `yaml:"state" json:"state"`                                 // NEW, ONGOING or DONE
	Assignees   []string   `yaml:"assignees,omitempty" json:"assignees"`               // Assigned identity ids
	Labels      []string   `yaml:"labels,omitempty" json:"labels"`                     // Label names
	CreatedTS   string     `yaml:"created" json:"createdTS"`                           // Creation timestamp as stored
	DeadlineTS  string     `yaml:"deadline" json:"deadlineTS"`                         // Deadline timestamp as stored
}

// IsDone reports whether the issue reached the DONE state.
func (i Issue) IsDone() bool {
	return i.State == StateDone
}

// IsAssignedTo reports whether userID is among the assignees.
func (i Issue) IsAssignedTo(userID string) bool {
	return slices.Contains(i.Assignees, userID)
}

// InvolvesUser reports whether userID created or is assigned to the issue.
func (i Issue) InvolvesUser(userID string) bool {
	return i.CreatorID == userID || i.IsAssignedTo(userID)
}

// Deadline parses DeadlineTS into an instant in loc.
func (i Issue) Deadline(loc *time.Location) (time.Time, error) {
	return ParseTimestamp(i.DeadlineTS, loc)
}

// Milestones holds the milestone counters of a project.
type Milestones struct {
	Total   int `yaml:"total" json:"total"`
	Reached int `yaml:"reached" json:"reached"`
}

// Project represents a named container of issues and members with a time span.
type Project struct {
	ID         string     `yaml:"id" json:"id"`                         // Store-assigned identifier
	Name       string     `yaml:"name" json:"name"`                     // Display name
	CreatorID  string     `yaml:"creator" json:"creator"`               // Identity of the creator
	Members    []string   `yaml:"members,omitempty" json:"members"`     // Member identity ids
	IssueIDs   []string   `yaml:"issues,omitempty" json:"issueIds"`     // Associated issues
	ViewIDs    []string   `yaml:"views,omitempty" json:"viewIds"`       // Associated saved views
	CreatedTS  string     `yaml:"created" json:"createdTS"`             // Creation timestamp as stored
	StartTS    string     `yaml:"start,omitempty" json:"startTS"`       // Planned start
	DeadlineTS string     `yaml:"deadline,omitempty" json:"deadlineTS"` // Planned end
	Milestones Milestones `yaml:"milestones" json:"milestones"`
}

// HasMember reports whether userID is listed as a member.
func (p Project) HasMember(userID string) bool {
	return slices.Contains(p.Members, userID)
}

// VisibleTo reports whether the project is owned by or shared with userID.
func (p Project) VisibleTo(userID string) bool {
	return p.CreatorID == userID || p.HasMember(userID)
}

// View is a saved, named filter over a project's issues.
type View struct {
	ID        string       `yaml:"id" json:"id"`
	Name      string       `yaml:"name" json:"name"`
	ProjectID string       `yaml:"project_id" json:"projectId"`
	Labels    []string     `yaml:"labels,omitempty" json:"labels"` // Any-of match; empty matches all
	States    []IssueState `yaml:"states,omitempty" json:"states"` // Any-of match; empty matches all
}

// Matches reports whether issue falls inside the view.
func (v View) Matches(issue Issue) bool {
	if issue.ProjectID != v.ProjectID {
		return false
	}
	if len(v.States) > 0 && !slices.Contains(v.States, issue.State) {
		return false
	}
	if len(v.Labels) == 0 {
		return true
	}
	for _, l := range issue.Labels {
		if slices.Contains(v.Labels, l) {
			return true
		}
	}
	return false
}

// ParseTimestamp converts a stored timestamp into a time in loc.
// Accepted forms are integer epoch milliseconds, RFC3339 (with or without
// fractional seconds) and a bare local date-time "2006-01-02T15:04:05".
func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrEmptyTimestamp
	}
	if loc == nil {
		loc = time.Local
	}

	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).In(loc), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", time.DateOnly} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
