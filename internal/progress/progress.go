// Package progress computes issue completion statistics over a user's
// projects, recomputing on every change of the underlying repositories.
package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/h0rv/issuepulse/internal/domain"
	"github.com/h0rv/issuepulse/internal/reactive"
	"github.com/h0rv/issuepulse/internal/window"
	"github.com/rs/zerolog"
)

// ProjectRepository streams project snapshots.
type ProjectRepository interface {
	ProjectsVisibleTo(ctx context.Context, userID string) <-chan reactive.Event[[]domain.Project]
	ProjectsFiltered(ctx context.Context, ids []string) <-chan reactive.Event[[]domain.Project]
}

// IssueRepository streams the issues of one project as seen by a user.
type IssueRepository interface {
	IssuesOf(ctx context.Context, userID, projectID string) <-chan reactive.Event[[]domain.Issue]
}

// Aggregator turns project and issue streams into IssueProgress streams.
// It keeps no state between subscriptions.
type Aggregator struct {
	projects ProjectRepository
	issues   IssueRepository
	now      func() time.Time
	loc      *time.Location
	log      zerolog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the clock used to resolve time windows.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithLocation sets the zone whose calendar defines the time windows.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) { a.loc = loc }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(a *Aggregator) { a.log = log }
}

// New creates an Aggregator over the given repositories.
func New(projects ProjectRepository, issues IssueRepository, opts ...Option) *Aggregator {
	a := &Aggregator{
		projects: projects,
		issues:   issues,
		now:      time.Now,
		loc:      time.Local,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ForUser streams progress over every project visible to userID.
// An empty project list yields a zero summary without opening any issue subscription.
// The returned channel closes once ctx is cancelled, after a terminal error,
// or when every upstream stream has completed.
func (a *Aggregator) ForUser(ctx context.Context, userID string, filter domain.Filter) <-chan reactive.Event[domain.IssueProgress] {
	ctx, cancel := context.WithCancel(ctx)
	outer := a.projects.ProjectsVisibleTo(ctx, userID)
	return a.start(ctx, cancel, outer, userID, filter)
}

// ForProjects streams progress over the given project ids, as resolved by the repository.
func (a *Aggregator) ForProjects(ctx context.Context, userID string, ids []string, filter domain.Filter) <-chan reactive.Event[domain.IssueProgress] {
	ctx, cancel := context.WithCancel(ctx)
	outer := a.projects.ProjectsFiltered(ctx, ids)
	return a.start(ctx, cancel, outer, userID, filter)
}

// ForProject streams progress over a single project's issues.
func (a *Aggregator) ForProject(ctx context.Context, userID, projectID string, filter domain.Filter) <-chan reactive.Event[domain.IssueProgress] {
	ctx, cancel := context.WithCancel(ctx)
	outer := reactive.Just([]domain.Project{{ID: projectID}})(ctx)
	return a.start(ctx, cancel, outer, userID, filter)
}

func (a *Aggregator) start(ctx context.Context, cancel context.CancelFunc, outer <-chan reactive.Event[[]domain.Project], userID string, filter domain.Filter) <-chan reactive.Event[domain.IssueProgress] {
	out := make(chan reactive.Event[domain.IssueProgress])
	l := &loop{
		agg:    a,
		userID: userID,
		filter: filter,
		out:    out,
		held:   make(map[string]*inner),
		events: make(chan innerEvent),
		log:    a.log.With().Str("user", userID).Stringer("filter", filter).Logger(),
	}
	go func() {
		defer close(out)
		defer l.wg.Wait()
		defer cancel()
		l.run(ctx, outer)
	}()
	return out
}

// Reduce counts the issues whose deadline falls inside rng and how many of
// them are DONE. Issues with a missing or malformed deadline are skipped.
func Reduce(issues []domain.Issue, rng window.Range, loc *time.Location, log zerolog.Logger) domain.IssueProgress {
	total, completed := 0, 0
	for _, issue := range issues {
		deadline, err := issue.Deadline(loc)
		if err != nil {
			log.Debug().Err(err).Str("issue", issue.ID).Msg("skipping issue with unparseable deadline")
			continue
		}
		if !rng.Contains(deadline) {
			continue
		}
		total++
		if issue.IsDone() {
			completed++
		}
	}
	return domain.NewIssueProgress(total, completed)
}

// Summarize resolves filter at now and reduces issues in one call.
func Summarize(issues []domain.Issue, filter domain.Filter, now time.Time, loc *time.Location) domain.IssueProgress {
	return Reduce(issues, window.Resolve(filter, now, loc), loc, zerolog.Nop())
}

func wrapErr(what string, err error) error {
	return fmt.Errorf("failed to load %s: %w", what, err)
}
