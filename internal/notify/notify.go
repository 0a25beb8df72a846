// Package notify scans a user's projects and issues for upcoming deadlines
// and new assignments and hands one-shot notifications to a Sink.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/h0rv/issuepulse/internal/domain"
	"github.com/h0rv/issuepulse/internal/names"
	"github.com/h0rv/issuepulse/internal/reactive"
	"github.com/h0rv/issuepulse/internal/seen"
	"github.com/rs/zerolog"
)

// ProjectSource streams the projects visible to a user.
type ProjectSource interface {
	ProjectsVisibleTo(ctx context.Context, userID string) <-chan reactive.Event[[]domain.Project]
}

// IssueSource streams the issues of a project.
type IssueSource interface {
	IssuesOf(ctx context.Context, userID, projectID string) <-chan reactive.Event[[]domain.Issue]
}

// Kind classifies a notification.
type Kind string

// Notification kinds.
const (
	KindDeadline   Kind = "deadline"
	KindProject    Kind = "project"
	KindAssignment Kind = "assignment"
)

// Notification is a single message for the user.
type Notification struct {
	Kind     Kind
	EntityID string // Project or issue the message is about
	Title    string
	Body     string
}

// Report counts the notifications sent by one Run.
type Report struct {
	Deadlines   int
	Projects    int
	Assignments int
}

// Total returns the number of notifications sent.
func (r Report) Total() int {
	return r.Deadlines + r.Projects + r.Assignments
}

// Notifier checks the user's data and fires notifications.
type Notifier struct {
	projects ProjectSource
	issues   IssueSource
	seen     seen.Store
	sink     Sink
	names    *names.Cache
	now      func() time.Time
	loc      *time.Location
	log      zerolog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithClock overrides the clock used to decide "tomorrow".
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// WithLocation sets the zone whose calendar dates are compared.
func WithLocation(loc *time.Location) Option {
	return func(n *Notifier) { n.loc = loc }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(n *Notifier) { n.log = log }
}

// WithNames sets the cache used to render user names in messages.
func WithNames(c *names.Cache) Option {
	return func(n *Notifier) { n.names = c }
}

// New creates a Notifier.
func New(projects ProjectSource, issues IssueSource, seenStore seen.Store, sink Sink, opts ...Option) *Notifier {
	n := &Notifier{
		projects: projects,
		issues:   issues,
		seen:     seenStore,
		sink:     sink,
		names:    names.NewCache(nil),
		now:      time.Now,
		loc:      time.Local,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Run performs one scan for userID:
//   - issues the user created or is assigned to, due tomorrow or in two days
//   - projects shared with the user that were not announced before
//   - issues assigned to the user by someone else that were not announced before
//
// Announcements are marked seen only after the sink accepted them.
func (n *Notifier) Run(ctx context.Context, userID string) (Report, error) {
	var report Report

	projects, err := reactive.First(ctx, func(ctx context.Context) <-chan reactive.Event[[]domain.Project] {
		return n.projects.ProjectsVisibleTo(ctx, userID)
	})
	if err != nil {
		return report, fmt.Errorf("failed to load projects: %w", err)
	}

	type projectIssues struct {
		project domain.Project
		issues  []domain.Issue
	}
	all := make([]projectIssues, 0, len(projects))
	for _, p := range projects {
		issues, err := reactive.First(ctx, func(ctx context.Context) <-chan reactive.Event[[]domain.Issue] {
			return n.issues.IssuesOf(ctx, userID, p.ID)
		})
		if err != nil {
			return report, fmt.Errorf("failed to load issues of project %s: %w", p.ID, err)
		}
		all = append(all, projectIssues{project: p, issues: issues})
	}

	now := n.now().In(n.loc)
	tomorrow := dayOffset(now, 1)
	inTwoDays := dayOffset(now, 2)

	for _, pi := range all {
		for _, issue := range pi.issues {
			// Finished issues get no reminder.
			if !issue.InvolvesUser(userID) || issue.IsDone() {
				continue
			}
			deadline, err := issue.Deadline(n.loc)
			if err != nil {
				n.log.Debug().Err(err).Str("issue", issue.ID).Msg("skipping reminder for unparseable deadline")
				continue
			}
			var when string
			switch {
			case sameDay(deadline, tomorrow):
				when = "tomorrow"
			case sameDay(deadline, inTwoDays):
				when = "in two days"
			default:
				continue
			}
			msg := Notification{
				Kind:     KindDeadline,
				EntityID: issue.ID,
				Title:    "Deadline " + when,
				Body:     fmt.Sprintf("%q in %s is due %s (%s).", issue.Title, pi.project.Name, when, deadline.Format("Mon Jan 2")),
			}
			if n.deliver(ctx, msg) {
				report.Deadlines++
			}
		}
	}

	for _, pi := range all {
		p := pi.project
		// A creator listed among the members was not added by anyone.
		if p.CreatorID == userID || !p.HasMember(userID) {
			continue
		}
		sent, err := n.announce(ctx, seen.KindProject, p.ID, Notification{
			Kind:     KindProject,
			EntityID: p.ID,
			Title:    "Added to project",
			Body:     fmt.Sprintf("%s added you to %s.", n.names.Name(ctx, p.CreatorID), p.Name),
		})
		if err != nil {
			return report, err
		}
		if sent {
			report.Projects++
		}
	}

	for _, pi := range all {
		for _, issue := range pi.issues {
			if issue.CreatorID == userID || !issue.IsAssignedTo(userID) {
				continue
			}
			sent, err := n.announce(ctx, seen.KindIssue, issue.ID, Notification{
				Kind:     KindAssignment,
				EntityID: issue.ID,
				Title:    "New assignment",
				Body:     fmt.Sprintf("%s assigned you %q in %s.", n.names.Name(ctx, issue.CreatorID), issue.Title, pi.project.Name),
			})
			if err != nil {
				return report, err
			}
			if sent {
				report.Assignments++
			}
		}
	}

	n.log.Info().
		Str("user", userID).
		Int("deadlines", report.Deadlines).
		Int("projects", report.Projects).
		Int("assignments", report.Assignments).
		Msg("notification scan finished")
	return report, nil
}

// announce sends msg once per (kind, id).
func (n *Notifier) announce(ctx context.Context, kind seen.Kind, id string, msg Notification) (bool, error) {
	ok, err := n.seen.HasSeen(ctx, kind, id)
	if err != nil {
		return false, fmt.Errorf("failed to check seen state: %w", err)
	}
	if ok {
		return false, nil
	}
	if !n.deliver(ctx, msg) {
		return false, nil
	}
	if err := n.seen.MarkSeen(ctx, kind, id); err != nil {
		return true, fmt.Errorf("failed to mark seen: %w", err)
	}
	return true, nil
}

func (n *Notifier) deliver(ctx context.Context, msg Notification) bool {
	if err := n.sink.Notify(ctx, msg); err != nil {
		n.log.Warn().Err(err).Str("kind", string(msg.Kind)).Str("id", msg.EntityID).Msg("notification not delivered")
		return false
	}
	return true
}

// dayOffset returns noon of the day days after t, which stays on the right
// calendar date across DST shifts.
func dayOffset(t time.Time, days int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+days, 12, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}
