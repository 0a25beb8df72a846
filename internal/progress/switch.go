package progress

import (
	"context"
	"sync"

	"github.com/h0rv/issuepulse/internal/domain"
	"github.com/h0rv/issuepulse/internal/reactive"
	"github.com/h0rv/issuepulse/internal/window"
	"github.com/rs/zerolog"
)

// inner is one held per-project issue subscription.
type inner struct {
	projectID string
	cancel    context.CancelFunc
	issues    []domain.Issue
	ready     bool // at least one snapshot received
	done      bool // upstream completed
}

// innerEvent tags an issue emission with the subscription it came from so
// events from cancelled subscriptions can be told apart.
type innerEvent struct {
	sub    *inner
	ev     reactive.Event[[]domain.Issue]
	closed bool
}

// loop owns the state of a single aggregation subscription. Only run's
// goroutine touches held; forwarders talk to it through events.
type loop struct {
	agg    *Aggregator
	userID string
	filter domain.Filter
	out    chan<- reactive.Event[domain.IssueProgress]
	held   map[string]*inner
	events chan innerEvent
	wg     sync.WaitGroup
	log    zerolog.Logger
}

func (l *loop) run(ctx context.Context, outer <-chan reactive.Event[[]domain.Project]) {
	outerDone := false

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-outer:
			if !ok {
				outer = nil
				outerDone = true
				if l.allDone() {
					return
				}
				continue
			}
			if ev.Err != nil {
				l.send(ctx, reactive.Event[domain.IssueProgress]{Err: wrapErr("projects", ev.Err)})
				return
			}

			l.resubscribe(ctx, ev.Value)
			if len(l.held) == 0 {
				if !l.send(ctx, reactive.Event[domain.IssueProgress]{Value: domain.NewIssueProgress(0, 0)}) {
					return
				}
				continue
			}
			if !l.emit(ctx) {
				return
			}

		case ie := <-l.events:
			if l.held[ie.sub.projectID] != ie.sub {
				// Late event from a subscription that was already dropped.
				continue
			}
			if ie.closed {
				ie.sub.done = true
				if !ie.sub.ready {
					// Completed without a snapshot: counts as an empty project.
					ie.sub.ready = true
					if !l.emit(ctx) {
						return
					}
				}
				if outerDone && l.allDone() {
					return
				}
				continue
			}
			if ie.ev.Err != nil {
				l.send(ctx, reactive.Event[domain.IssueProgress]{Err: wrapErr("issues of project "+ie.sub.projectID, ie.ev.Err)})
				return
			}
			ie.sub.issues = ie.ev.Value
			ie.sub.ready = true
			if !l.emit(ctx) {
				return
			}
		}
	}
}

// resubscribe diffs the project set against the held subscriptions,
// cancelling removed projects and subscribing to new ones.
func (l *loop) resubscribe(ctx context.Context, projects []domain.Project) {
	want := make(map[string]struct{}, len(projects))
	for _, p := range projects {
		want[p.ID] = struct{}{}
	}

	for id, sub := range l.held {
		if _, ok := want[id]; ok {
			continue
		}
		sub.cancel()
		delete(l.held, id)
		l.log.Debug().Str("project", id).Msg("dropped issue subscription")
	}

	for id := range want {
		if _, ok := l.held[id]; ok {
			continue
		}
		subCtx, cancel := context.WithCancel(ctx)
		sub := &inner{projectID: id, cancel: cancel}
		l.held[id] = sub
		src := l.agg.issues.IssuesOf(subCtx, l.userID, id)

		l.wg.Add(1)
		go l.forward(subCtx, sub, src)
		l.log.Debug().Str("project", id).Msg("opened issue subscription")
	}
}

// forward relays one inner stream into the loop until it ends or is cancelled.
func (l *loop) forward(ctx context.Context, sub *inner, src <-chan reactive.Event[[]domain.Issue]) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-src:
			ie := innerEvent{sub: sub, ev: ev, closed: !ok}
			select {
			case l.events <- ie:
			case <-ctx.Done():
				return
			}
			if !ok || ev.Err != nil {
				return
			}
		}
	}
}

// emit recomputes and sends progress once every held subscription has
// produced a snapshot. It reports false when the consumer went away.
func (l *loop) emit(ctx context.Context) bool {
	var issues []domain.Issue
	for _, sub := range l.held {
		if !sub.ready {
			return true
		}
		issues = append(issues, sub.issues...)
	}

	a := l.agg
	rng := window.Resolve(l.filter, a.now(), a.loc)
	p := Reduce(issues, rng, a.loc, l.log)
	return l.send(ctx, reactive.Event[domain.IssueProgress]{Value: p})
}

func (l *loop) send(ctx context.Context, ev reactive.Event[domain.IssueProgress]) bool {
	select {
	case l.out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *loop) allDone() bool {
	for _, sub := range l.held {
		if !sub.done {
			return false
		}
	}
	return true
}
