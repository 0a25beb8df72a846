package backend

import (
	"context"
	"time"

	"github.com/h0rv/issuepulse/internal/domain"
	"github.com/h0rv/issuepulse/internal/reactive"
	"github.com/rs/zerolog"
)

// Fetch loads one snapshot.
type Fetch[T any] func(ctx context.Context) (T, error)

// Poll calls fetch immediately and then every interval, emitting a snapshot
// only when its fingerprint differs from the last one emitted. The first
// failed fetch is delivered as the terminal error.
func Poll[T any](ctx context.Context, interval time.Duration, fetch Fetch[T]) <-chan reactive.Event[T] {
	out := make(chan reactive.Event[T])
	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last uint64
		emitted := false
		for {
			v, err := fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				select {
				case out <- reactive.Event[T]{Err: err}:
				case <-ctx.Done():
				}
				return
			}

			sum, hashErr := reactive.Fingerprint(v)
			if hashErr != nil || !emitted || sum != last {
				select {
				case out <- reactive.Event[T]{Value: v}:
				case <-ctx.Done():
					return
				}
				last, emitted = sum, true
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Poller exposes the backend as project and issue repositories.
type Poller struct {
	client   *Client
	interval time.Duration
	log      zerolog.Logger
}

// NewPoller creates a Poller querying client every interval.
func NewPoller(client *Client, interval time.Duration, log zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{client: client, interval: interval, log: log}
}

// ProjectsVisibleTo streams the projects userID created or is a member of.
func (p *Poller) ProjectsVisibleTo(ctx context.Context, userID string) <-chan reactive.Event[[]domain.Project] {
	return Poll(ctx, p.interval, logged[[]domain.Project](p.log, "projects", func(ctx context.Context) ([]domain.Project, error) {
		return p.client.ListProjects(ctx, userID)
	}))
}

// ProjectsFiltered streams the projects whose IDs are in ids.
func (p *Poller) ProjectsFiltered(ctx context.Context, ids []string) <-chan reactive.Event[[]domain.Project] {
	ids = append([]string(nil), ids...)
	return Poll(ctx, p.interval, logged[[]domain.Project](p.log, "projects by id", func(ctx context.Context) ([]domain.Project, error) {
		return p.client.ProjectsByID(ctx, ids)
	}))
}

// IssuesOf streams the issues of projectID.
func (p *Poller) IssuesOf(ctx context.Context, userID, projectID string) <-chan reactive.Event[[]domain.Issue] {
	return Poll(ctx, p.interval, logged[[]domain.Issue](p.log, "issues", func(ctx context.Context) ([]domain.Issue, error) {
		return p.client.ListIssues(ctx, userID, projectID)
	}))
}

func logged[T any](log zerolog.Logger, what string, fetch Fetch[T]) Fetch[T] {
	return func(ctx context.Context) (T, error) {
		v, err := fetch(ctx)
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Str("query", what).Msg("poll failed")
		}
		return v, err
	}
}
