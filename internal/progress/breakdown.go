package progress

import (
	"context"
	"errors"
	"sort"

	"github.com/h0rv/issuepulse/internal/domain"
	"github.com/h0rv/issuepulse/internal/reactive"
	"github.com/h0rv/issuepulse/internal/window"
)

// ProjectProgress is the progress of one project inside a window.
type ProjectProgress struct {
	Project  domain.Project
	Progress domain.IssueProgress
}

// Breakdown takes one snapshot of every project visible to userID and
// reduces each project's issues separately, ordered by project name.
func (a *Aggregator) Breakdown(ctx context.Context, userID string, filter domain.Filter) ([]ProjectProgress, error) {
	projects, err := reactive.First(ctx, func(ctx context.Context) <-chan reactive.Event[[]domain.Project] {
		return a.projects.ProjectsVisibleTo(ctx, userID)
	})
	if err != nil {
		return nil, wrapErr("projects", err)
	}

	rng := window.Resolve(filter, a.now(), a.loc)
	out := make([]ProjectProgress, 0, len(projects))
	for _, p := range projects {
		issues, err := reactive.First(ctx, func(ctx context.Context) <-chan reactive.Event[[]domain.Issue] {
			return a.issues.IssuesOf(ctx, userID, p.ID)
		})
		if err != nil && !errors.Is(err, reactive.ErrCompleted) {
			return nil, wrapErr("issues of project "+p.ID, err)
		}
		out = append(out, ProjectProgress{Project: p, Progress: Reduce(issues, rng, a.loc, a.log)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Project.Name != out[j].Project.Name {
			return out[i].Project.Name < out[j].Project.Name
		}
		return out[i].Project.ID < out[j].Project.ID
	})
	return out, nil
}
