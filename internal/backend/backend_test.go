package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/h0rv/issuepulse/internal/domain"
	"github.com/h0rv/issuepulse/internal/reactive"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// fakeTracker is a minimal GraphQL endpoint over fixed data.
type fakeTracker struct {
	mu       sync.Mutex
	projects []domain.Project
	issues   map[string][]domain.Issue
	users    map[string]string
	auth     []string
	states   map[string]string
	fail     bool
}

func (f *fakeTracker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))

	var req gqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if f.fail {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{"message": "backend unavailable"}},
		})
		return
	}

	data := map[string]any{}
	switch {
	case strings.Contains(req.Query, "projects(visibleTo"):
		user, _ := req.Variables["userId"].(string)
		var out []domain.Project
		for _, p := range f.projects {
			if p.VisibleTo(user) {
				out = append(out, p)
			}
		}
		data["projects"] = out
	case strings.Contains(req.Query, "projectsByIds"):
		ids, _ := req.Variables["ids"].([]any)
		out := []domain.Project{}
		for _, p := range f.projects {
			for _, id := range ids {
				if id == p.ID {
					out = append(out, p)
				}
			}
		}
		data["projectsByIds"] = out
	case strings.Contains(req.Query, "issues("):
		pid, _ := req.Variables["projectId"].(string)
		data["issues"] = f.issues[pid]
	case strings.Contains(req.Query, "user(id"):
		id, _ := req.Variables["id"].(string)
		if name, ok := f.users[id]; ok {
			data["user"] = map[string]string{"displayName": name}
		} else {
			data["user"] = nil
		}
	case strings.Contains(req.Query, "setIssueState"):
		id, _ := req.Variables["issueId"].(string)
		state, _ := req.Variables["state"].(string)
		f.states[id] = state
		data["setIssueState"] = map[string]any{"issue": map[string]string{"id": id, "state": state}}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func (f *fakeTracker) setIssues(projectID string, issues []domain.Issue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues[projectID] = issues
}

func (f *fakeTracker) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func newFakeTracker(t *testing.T) (*fakeTracker, *Client) {
	t.Helper()
	f := &fakeTracker{
		projects: []domain.Project{
			{ID: "p1", Name: "Alpha", CreatorID: "alice", Milestones: domain.Milestones{Total: 3, Reached: 1}},
			{ID: "p2", Name: "Beta", CreatorID: "bob", Members: []string{"alice"}},
			{ID: "p3", Name: "Gamma", CreatorID: "bob"},
		},
		issues: map[string][]domain.Issue{
			"p1": {{ID: "i1", ProjectID: "p1", Title: "First", CreatorID: "alice", State: domain.StateDone, DeadlineTS: "2024-03-14"}},
		},
		users:  map[string]string{"bob": "Bob"},
		states: map[string]string{},
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, New(srv.URL, "secret", WithHTTPClient(srv.Client()), WithLogger(zerolog.Nop()))
}

func TestClient_ListProjects(t *testing.T) {
	f, c := newFakeTracker(t)

	projects, err := c.ListProjects(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "Alpha", projects[0].Name)
	assert.Equal(t, 3, projects[0].Milestones.Total)
	assert.Equal(t, []string{"alice"}, projects[1].Members)
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, "Bearer secret", f.auth[0])
}

func TestClient_ProjectsByID(t *testing.T) {
	_, c := newFakeTracker(t)
	ctx := context.Background()

	projects, err := c.ProjectsByID(ctx, []string{"p3", "missing"})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Gamma", projects[0].Name)

	projects, err = c.ProjectsByID(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, projects)
	assert.NotNil(t, projects)
}

func TestClient_ListIssues(t *testing.T) {
	_, c := newFakeTracker(t)
	ctx := context.Background()

	issues, err := c.ListIssues(ctx, "alice", "p1")
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, domain.StateDone, issues[0].State)
	assert.Equal(t, "2024-03-14", issues[0].DeadlineTS)

	issues, err = c.ListIssues(ctx, "alice", "p2")
	require.NoError(t, err)
	assert.NotNil(t, issues)
	assert.Empty(t, issues)
}

func TestClient_DisplayName(t *testing.T) {
	_, c := newFakeTracker(t)
	ctx := context.Background()

	name, err := c.DisplayName(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", name)

	_, err = c.DisplayName(ctx, "nobody")
	assert.Error(t, err)
}

func TestClient_SetIssueState(t *testing.T) {
	f, c := newFakeTracker(t)
	ctx := context.Background()

	require.NoError(t, c.SetIssueState(ctx, "i1", domain.StateOngoing))
	f.mu.Lock()
	assert.Equal(t, "ONGOING", f.states["i1"])
	f.mu.Unlock()

	assert.Error(t, c.SetIssueState(ctx, "i1", domain.IssueState("LOST")))
}

func TestClient_GraphQLError(t *testing.T) {
	f, c := newFakeTracker(t)
	f.setFail(true)

	_, err := c.ListProjects(context.Background(), "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend unavailable")
}

func recvEvent[T any](t *testing.T, ch <-chan reactive.Event[T]) reactive.Event[T] {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return reactive.Event[T]{}
	}
}

func TestPoll_EmitsOnlyOnChange(t *testing.T) {
	var calls atomic.Int32
	values := []int{1, 1, 1, 2, 2}
	fetch := func(context.Context) (int, error) {
		n := int(calls.Add(1)) - 1
		if n >= len(values) {
			return values[len(values)-1], nil
		}
		return values[n], nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := Poll(ctx, 5*time.Millisecond, fetch)

	assert.Equal(t, 1, recvEvent(t, ch).Value)
	assert.Equal(t, 2, recvEvent(t, ch).Value)
	assert.GreaterOrEqual(t, int(calls.Load()), 4)
}

func TestPoll_FirstFailureIsTerminal(t *testing.T) {
	var calls atomic.Int32
	fetch := func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "ok", nil
		}
		return "", errors.New("boom")
	}

	ch := Poll(context.Background(), time.Millisecond, fetch)
	assert.Equal(t, "ok", recvEvent(t, ch).Value)
	ev := recvEvent(t, ch)
	require.Error(t, ev.Err)
	assert.Equal(t, "boom", ev.Err.Error())

	_, ok := <-ch
	assert.False(t, ok)
}

func TestPoll_CancelCloses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := Poll(ctx, time.Hour, func(context.Context) (int, error) { return 7, nil })
	assert.Equal(t, 7, recvEvent(t, ch).Value)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after cancel")
	}
}

func TestPoller_IssuesOfPicksUpChanges(t *testing.T) {
	f, c := newFakeTracker(t)
	p := NewPoller(c, 5*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := p.IssuesOf(ctx, "alice", "p2")

	assert.Empty(t, recvEvent(t, ch).Value)

	f.setIssues("p2", []domain.Issue{{ID: "i9", ProjectID: "p2", Title: "New", CreatorID: "bob", State: domain.StateNew}})
	ev := recvEvent(t, ch)
	require.NoError(t, ev.Err)
	require.Len(t, ev.Value, 1)
	assert.Equal(t, "i9", ev.Value[0].ID)
}

func TestPoller_ProjectStreams(t *testing.T) {
	f, c := newFakeTracker(t)
	p := NewPoller(c, time.Hour, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	visible := recvEvent(t, p.ProjectsVisibleTo(ctx, "bob"))
	require.NoError(t, visible.Err)
	assert.Len(t, visible.Value, 2)

	filtered := recvEvent(t, p.ProjectsFiltered(ctx, []string{"p1"}))
	require.NoError(t, filtered.Err)
	require.Len(t, filtered.Value, 1)
	assert.Equal(t, "p1", filtered.Value[0].ID)

	f.setFail(true)
	failed := recvEvent(t, p.ProjectsVisibleTo(ctx, "bob"))
	assert.Error(t, failed.Err)
}
