package progress

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/h0rv/issuepulse/internal/domain"
	"github.com/h0rv/issuepulse/internal/reactive"
	"github.com/h0rv/issuepulse/internal/window"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// fakeRepo serves projects and issues from subjects and counts issue subscriptions.
type fakeRepo struct {
	mu        sync.Mutex
	projects  *reactive.Subject[[]domain.Project]
	issues    map[string]*reactive.Subject[[]domain.Issue]
	issueSubs int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		projects: reactive.NewSubject[[]domain.Project](),
		issues:   make(map[string]*reactive.Subject[[]domain.Issue]),
	}
}

func (f *fakeRepo) ProjectsVisibleTo(ctx context.Context, userID string) <-chan reactive.Event[[]domain.Project] {
	return f.projects.Subscribe(ctx)
}

func (f *fakeRepo) ProjectsFiltered(ctx context.Context, ids []string) <-chan reactive.Event[[]domain.Project] {
	return f.projects.Subscribe(ctx)
}

func (f *fakeRepo) IssuesOf(ctx context.Context, userID, projectID string) <-chan reactive.Event[[]domain.Issue] {
	f.mu.Lock()
	f.issueSubs++
	f.mu.Unlock()
	return f.subject(projectID).Subscribe(ctx)
}

func (f *fakeRepo) subject(projectID string) *reactive.Subject[[]domain.Issue] {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.issues[projectID]
	if !ok {
		s = reactive.NewSubject[[]domain.Issue]()
		f.issues[projectID] = s
	}
	return s
}

func (f *fakeRepo) subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issueSubs
}

func (f *fakeRepo) setProjects(ids ...string) {
	projects := make([]domain.Project, len(ids))
	for i, id := range ids {
		projects[i] = domain.Project{ID: id, Name: id, CreatorID: "alice"}
	}
	f.projects.Publish(projects)
}

func (f *fakeRepo) setIssues(projectID string, issues ...domain.Issue) {
	f.subject(projectID).Publish(issues)
}

var fixedNow = time.Date(2024, time.May, 15, 12, 0, 0, 0, time.UTC)

func newTestAggregator(repo *fakeRepo) *Aggregator {
	return New(repo, repo,
		WithClock(func() time.Time { return fixedNow }),
		WithLocation(time.UTC),
		WithLogger(zerolog.Nop()),
	)
}

func issue(id string, state domain.IssueState, deadline time.Time) domain.Issue {
	return domain.Issue{ID: id, CreatorID: "alice", State: state, DeadlineTS: deadline.Format(time.RFC3339)}
}

func next(t *testing.T, ch <-chan reactive.Event[domain.IssueProgress]) domain.IssueProgress {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "progress stream closed")
		require.NoError(t, ev.Err)
		return ev.Value
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for progress")
	}
	return domain.IssueProgress{}
}

func expectQuiet(t *testing.T, ch <-chan reactive.Event[domain.IssueProgress]) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		t.Fatalf("unexpected emission: %+v (open=%v)", ev, ok)
	case <-time.After(50 * time.Millisecond):
	}
}

func expectClosed(t *testing.T, ch <-chan reactive.Event[domain.IssueProgress]) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.False(t, ok, "expected stream to be closed")
	case <-time.After(waitFor):
		t.Fatal("stream did not close")
	}
}

// TestForUser_NoProjects verifies the zero summary and that no issue stream is opened
func TestForUser_NoProjects(t *testing.T) {
	repo := newFakeRepo()
	repo.setProjects()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := next(t, newTestAggregator(repo).ForUser(ctx, "alice", domain.CurrentMonth))

	assert.Equal(t, domain.IssueProgress{Total: 0, Completed: 0, Percent: 0}, got)
	assert.Equal(t, 0, repo.subscriptions())
}

// TestForUser_MonthScenario covers two projects where only one has issues in the window
func TestForUser_MonthScenario(t *testing.T) {
	repo := newFakeRepo()
	repo.setProjects("A", "B")
	repo.setIssues("A",
		issue("a1", domain.StateDone, fixedNow),
		issue("a2", domain.StateNew, fixedNow),
	)
	repo.setIssues("B", issue("b1", domain.StateDone, fixedNow.AddDate(0, -2, 0)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := next(t, newTestAggregator(repo).ForUser(ctx, "alice", domain.CurrentMonth))

	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 1, got.Completed)
	assert.Equal(t, 50.0, got.Percent)
}

func TestForUser_RecomputesOnIssueChange(t *testing.T) {
	repo := newFakeRepo()
	repo.setProjects("A")
	repo.setIssues("A", issue("a1", domain.StateNew, fixedNow))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := newTestAggregator(repo).ForUser(ctx, "alice", domain.AllTime)
	assert.Equal(t, domain.NewIssueProgress(1, 0), next(t, ch))

	repo.setIssues("A", issue("a1", domain.StateDone, fixedNow), issue("a2", domain.StateOngoing, fixedNow))
	assert.Equal(t, domain.NewIssueProgress(2, 1), next(t, ch))
}

// TestForUser_WaitsForEveryProject verifies no partial sums are emitted
func TestForUser_WaitsForEveryProject(t *testing.T) {
	repo := newFakeRepo()
	repo.setProjects("A", "B")
	repo.setIssues("A", issue("a1", domain.StateDone, fixedNow))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := newTestAggregator(repo).ForUser(ctx, "alice", domain.AllTime)
	expectQuiet(t, ch)

	repo.setIssues("B", issue("b1", domain.StateNew, fixedNow))
	assert.Equal(t, domain.NewIssueProgress(2, 1), next(t, ch))
}

// TestForUser_RemovedProjectStopsContributing covers switch-latest resubscription
func TestForUser_RemovedProjectStopsContributing(t *testing.T) {
	repo := newFakeRepo()
	repo.setProjects("A", "B")
	repo.setIssues("A", issue("a1", domain.StateDone, fixedNow))
	repo.setIssues("B", issue("b1", domain.StateNew, fixedNow), issue("b2", domain.StateNew, fixedNow))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := newTestAggregator(repo).ForUser(ctx, "alice", domain.AllTime)
	assert.Equal(t, domain.NewIssueProgress(3, 1), next(t, ch))

	repo.setProjects("A")
	assert.Equal(t, domain.NewIssueProgress(1, 1), next(t, ch))

	// B's stream is still alive upstream but must no longer be held
	assert.Eventually(t, func() bool { return repo.subject("B").Subscribers() == 0 }, waitFor, 5*time.Millisecond)
	repo.setIssues("B", issue("b3", domain.StateDone, fixedNow))
	expectQuiet(t, ch)

	// Re-adding B subscribes afresh
	repo.setProjects("A", "B")
	assert.Equal(t, domain.NewIssueProgress(2, 2), next(t, ch))
	assert.Equal(t, 3, repo.subscriptions())
}

func TestForUser_AllProjectsRemoved(t *testing.T) {
	repo := newFakeRepo()
	repo.setProjects("A")
	repo.setIssues("A", issue("a1", domain.StateDone, fixedNow))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := newTestAggregator(repo).ForUser(ctx, "alice", domain.AllTime)
	assert.Equal(t, domain.NewIssueProgress(1, 1), next(t, ch))

	repo.setProjects()
	assert.Equal(t, domain.IssueProgress{}, next(t, ch))
}

// TestForUser_CancelReleasesInnerSubscriptions verifies transitive cancellation
func TestForUser_CancelReleasesInnerSubscriptions(t *testing.T) {
	repo := newFakeRepo()
	repo.setProjects("A", "B")
	repo.setIssues("A")
	repo.setIssues("B")

	ctx, cancel := context.WithCancel(context.Background())
	ch := newTestAggregator(repo).ForUser(ctx, "alice", domain.AllTime)
	next(t, ch)

	cancel()
	expectClosed(t, ch)

	assert.Eventually(t, func() bool {
		return repo.subject("A").Subscribers() == 0 &&
			repo.subject("B").Subscribers() == 0 &&
			repo.projects.Subscribers() == 0
	}, waitFor, 5*time.Millisecond)
}

func TestForUser_SkipsMalformedDeadlines(t *testing.T) {
	repo := newFakeRepo()
	repo.setProjects("A")
	repo.setIssues("A",
		issue("a1", domain.StateDone, fixedNow),
		domain.Issue{ID: "bad", State: domain.StateDone, DeadlineTS: "someday"},
		domain.Issue{ID: "empty", State: domain.StateNew},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := next(t, newTestAggregator(repo).ForUser(ctx, "alice", domain.AllTime))
	assert.Equal(t, domain.NewIssueProgress(1, 1), got)
}

func TestForUser_ProjectErrorIsTerminal(t *testing.T) {
	repo := newFakeRepo()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := newTestAggregator(repo).ForUser(ctx, "alice", domain.AllTime)
	boom := errors.New("read failed")
	repo.projects.Fail(boom)

	select {
	case ev := <-ch:
		assert.ErrorIs(t, ev.Err, boom)
		assert.Contains(t, ev.Err.Error(), "projects")
	case <-time.After(waitFor):
		t.Fatal("no error delivered")
	}
	expectClosed(t, ch)
}

func TestForUser_IssueErrorIsTerminal(t *testing.T) {
	repo := newFakeRepo()
	repo.setProjects("A", "B")
	repo.setIssues("A")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := newTestAggregator(repo).ForUser(ctx, "alice", domain.AllTime)
	boom := errors.New("permission denied")
	repo.subject("B").Fail(boom)

	select {
	case ev := <-ch:
		assert.ErrorIs(t, ev.Err, boom)
	case <-time.After(waitFor):
		t.Fatal("no error delivered")
	}
	expectClosed(t, ch)
	assert.Eventually(t, func() bool { return repo.subject("A").Subscribers() == 0 }, waitFor, 5*time.Millisecond)
}

func TestForUser_CompletesWhenUpstreamsComplete(t *testing.T) {
	repo := newFakeRepo()
	repo.setProjects("A")
	repo.setIssues("A", issue("a1", domain.StateNew, fixedNow))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := newTestAggregator(repo).ForUser(ctx, "alice", domain.AllTime)
	assert.Equal(t, domain.NewIssueProgress(1, 0), next(t, ch))

	repo.projects.Close()
	expectQuiet(t, ch)

	repo.subject("A").Close()
	expectClosed(t, ch)
}

// TestForUser_LastEmptyProjectClosing verifies that a project completing
// without a snapshot still yields a summary after the project list is done
func TestForUser_LastEmptyProjectClosing(t *testing.T) {
	repo := newFakeRepo()
	repo.setProjects("A", "B")
	repo.setIssues("A", issue("a1", domain.StateDone, fixedNow))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := newTestAggregator(repo).ForUser(ctx, "alice", domain.AllTime)
	expectQuiet(t, ch)

	repo.projects.Close()
	repo.subject("A").Close()
	expectQuiet(t, ch)

	repo.subject("B").Close()
	assert.Equal(t, domain.NewIssueProgress(1, 1), next(t, ch))
	expectClosed(t, ch)
}

func TestForProject(t *testing.T) {
	repo := newFakeRepo()
	repo.setIssues("A",
		issue("a1", domain.StateDone, fixedNow),
		issue("a2", domain.StateDone, fixedNow.AddDate(-1, 0, 0)),
		issue("a3", domain.StateNew, fixedNow.AddDate(0, 0, 1)),
	)
	repo.setIssues("B", issue("b1", domain.StateDone, fixedNow))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agg := newTestAggregator(repo)
	assert.Equal(t, domain.NewIssueProgress(2, 1), next(t, agg.ForProject(ctx, "alice", "A", domain.CurrentWeek)))
	assert.Equal(t, domain.NewIssueProgress(3, 2), next(t, agg.ForProject(ctx, "alice", "A", domain.AllTime)))
	assert.Equal(t, 2, repo.subscriptions())
}

func TestForProjects(t *testing.T) {
	repo := newFakeRepo()
	repo.setProjects("A")
	repo.setIssues("A", issue("a1", domain.StateDone, fixedNow))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := next(t, newTestAggregator(repo).ForProjects(ctx, "alice", []string{"A"}, domain.CurrentYear))
	assert.Equal(t, domain.NewIssueProgress(1, 1), got)
}

// TestReduce_Properties checks the summary invariants over random issue sets
func TestReduce_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	states := []domain.IssueState{domain.StateNew, domain.StateOngoing, domain.StateDone}
	filters := []domain.Filter{domain.CurrentYear, domain.CurrentMonth, domain.CurrentWeek}

	for range 200 {
		n := r.Intn(30)
		issues := make([]domain.Issue, n)
		for i := range issues {
			deadline := fixedNow.Add(time.Duration(r.Intn(24*400)-24*200) * time.Hour)
			issues[i] = issue("x", states[r.Intn(len(states))], deadline)
		}

		all := Summarize(issues, domain.AllTime, fixedNow, time.UTC)
		assert.Equal(t, n, all.Total)

		for _, f := range filters {
			p := Summarize(issues, f, fixedNow, time.UTC)
			assert.LessOrEqual(t, p.Completed, p.Total)
			assert.GreaterOrEqual(t, all.Total, p.Total)
			assert.GreaterOrEqual(t, p.Percent, 0.0)
			assert.LessOrEqual(t, p.Percent, 100.0)
			if p.Total == 0 {
				assert.Equal(t, 0.0, p.Percent)
			}
		}
	}
}

func TestReduce_IsOrderIndependent(t *testing.T) {
	issues := []domain.Issue{
		issue("a", domain.StateDone, fixedNow),
		issue("b", domain.StateNew, fixedNow),
		issue("c", domain.StateDone, fixedNow.AddDate(0, 0, -40)),
	}
	rng := window.Resolve(domain.CurrentMonth, fixedNow, time.UTC)

	forward := Reduce(issues, rng, time.UTC, zerolog.Nop())
	reversed := Reduce([]domain.Issue{issues[2], issues[1], issues[0]}, rng, time.UTC, zerolog.Nop())
	assert.Equal(t, forward, reversed)
	assert.Equal(t, domain.NewIssueProgress(2, 1), forward)
}

func TestBreakdown(t *testing.T) {
	repo := newFakeRepo()
	agg := newTestAggregator(repo)
	may := time.Date(2024, time.May, 20, 9, 0, 0, 0, time.UTC)

	repo.setProjects("beta", "alpha")
	repo.setIssues("alpha", issue("a1", domain.StateDone, may), issue("a2", domain.StateNew, may))
	repo.setIssues("beta", issue("b1", domain.StateDone, may), issue("b2", domain.StateDone, may.AddDate(0, 2, 0)))

	got, err := agg.Breakdown(context.Background(), "alice", domain.CurrentMonth)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alpha", got[0].Project.ID)
	assert.Equal(t, domain.NewIssueProgress(2, 1), got[0].Progress)
	assert.Equal(t, "beta", got[1].Project.ID)
	assert.Equal(t, domain.NewIssueProgress(1, 1), got[1].Progress)
}

func TestBreakdown_IssueError(t *testing.T) {
	repo := newFakeRepo()
	agg := newTestAggregator(repo)

	repo.setProjects("p1")
	repo.subject("p1").Fail(errors.New("offline"))

	_, err := agg.Breakdown(context.Background(), "alice", domain.AllTime)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offline")
}
