// Package store provides an in-memory, reactive project and issue repository.
// Every mutation bumps a version that subscribers observe; each subscriber
// then recomputes its own snapshot, so emissions always carry whole lists
// rather than incremental diffs.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/h0rv/issuepulse/internal/domain"
	"github.com/h0rv/issuepulse/internal/reactive"
)

var (
	// ErrProjectNotFound indicates the requested project does not exist.
	ErrProjectNotFound = errors.New("project not found")
	// ErrIssueNotFound indicates the requested issue does not exist.
	ErrIssueNotFound = errors.New("issue not found")
	// ErrViewNotFound indicates the requested view does not exist.
	ErrViewNotFound = errors.New("view not found")
	// ErrUserNotFound indicates no display name is known for a user.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidState indicates an unknown issue state was provided.
	ErrInvalidState = errors.New("invalid issue state")
)

// Store holds projects, issues and views and streams snapshots of them.
// It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	projects map[string]domain.Project // ID -> Project
	issues   map[string]domain.Issue   // ID -> Issue
	views    map[string]domain.View    // ID -> View
	users    map[string]string         // user ID -> display name

	// version is bumped on every mutation; subscriptions recompute on change.
	version uint64
	changes *reactive.Subject[uint64]
}

// New creates a new empty Store instance.
func New() *Store {
	s := &Store{
		projects: make(map[string]domain.Project),
		issues:   make(map[string]domain.Issue),
		views:    make(map[string]domain.View),
		users:    make(map[string]string),
		changes:  reactive.NewSubject[uint64](),
	}
	s.changes.Publish(0)
	return s
}

// Close completes every open subscription.
func (s *Store) Close() {
	s.changes.Close()
}

// bump must be called with mu held for writing.
func (s *Store) bump() {
	s.version++
	s.changes.Publish(s.version)
}

// UpsertProject adds or replaces a project. An empty ID is assigned a new one.
func (s *Store) UpsertProject(p domain.Project) domain.Project {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p = cloneProject(p)
	s.projects[p.ID] = p
	s.bump()
	return p
}

// DeleteProject removes a project together with its issues and views.
func (s *Store) DeleteProject(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[id]; !ok {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	delete(s.projects, id)
	for issueID, issue := range s.issues {
		if issue.ProjectID == id {
			delete(s.issues, issueID)
		}
	}
	for viewID, view := range s.views {
		if view.ProjectID == id {
			delete(s.views, viewID)
		}
	}
	s.bump()
	return nil
}

// GetProject retrieves a project by ID.
func (s *Store) GetProject(id string) (domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return domain.Project{}, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return cloneProject(p), nil
}

// AddMember shares a project with userID.
func (s *Store) AddMember(projectID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[projectID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	if p.HasMember(userID) {
		return nil
	}
	p.Members = append(slices.Clone(p.Members), userID)
	s.projects[projectID] = p
	s.bump()
	return nil
}

// RemoveMember revokes userID's access to a project.
func (s *Store) RemoveMember(projectID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[projectID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	p.Members = slices.DeleteFunc(slices.Clone(p.Members), func(m string) bool { return m == userID })
	s.projects[projectID] = p
	s.bump()
	return nil
}

// UpsertIssue adds or replaces an issue. The owning project must exist.
// An empty ID is assigned a new one and the issue is linked to its project.
func (s *Store) UpsertIssue(issue domain.Issue) (domain.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[issue.ProjectID]
	if !ok {
		return domain.Issue{}, fmt.Errorf("%w: %s", ErrProjectNotFound, issue.ProjectID)
	}
	if issue.State == "" {
		issue.State = domain.StateNew
	}
	if !issue.State.Valid() {
		return domain.Issue{}, fmt.Errorf("%w: %s", ErrInvalidState, issue.State)
	}
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	if prev, exists := s.issues[issue.ID]; exists {
		// Creator is immutable once stored.
		issue.CreatorID = prev.CreatorID
	}

	issue = cloneIssue(issue)
	s.issues[issue.ID] = issue
	if !slices.Contains(p.IssueIDs, issue.ID) {
		p.IssueIDs = append(slices.Clone(p.IssueIDs), issue.ID)
		s.projects[p.ID] = p
	}
	s.bump()
	return issue, nil
}

// DeleteIssue removes an issue and unlinks it from its project.
func (s *Store) DeleteIssue(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, ok := s.issues[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrIssueNotFound, id)
	}
	delete(s.issues, id)
	if p, ok := s.projects[issue.ProjectID]; ok {
		p.IssueIDs = slices.DeleteFunc(slices.Clone(p.IssueIDs), func(i string) bool { return i == id })
		s.projects[p.ID] = p
	}
	s.bump()
	return nil
}

// SetIssueState moves an issue to a new workflow state.
func (s *Store) SetIssueState(id string, state domain.IssueState) error {
	if !state.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidState, state)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	issue, ok := s.issues[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrIssueNotFound, id)
	}
	if issue.State == state {
		return nil
	}
	issue.State = state
	s.issues[id] = issue
	s.bump()
	return nil
}

// GetIssue retrieves an issue by ID.
func (s *Store) GetIssue(id string) (domain.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	issue, ok := s.issues[id]
	if !ok {
		return domain.Issue{}, fmt.Errorf("%w: %s", ErrIssueNotFound, id)
	}
	return cloneIssue(issue), nil
}

// UpsertView adds or replaces a saved view. The owning project must exist.
func (s *Store) UpsertView(v domain.View) (domain.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[v.ProjectID]
	if !ok {
		return domain.View{}, fmt.Errorf("%w: %s", ErrProjectNotFound, v.ProjectID)
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	s.views[v.ID] = v
	if !slices.Contains(p.ViewIDs, v.ID) {
		p.ViewIDs = append(slices.Clone(p.ViewIDs), v.ID)
		s.projects[p.ID] = p
	}
	s.bump()
	return v, nil
}

// ViewIssues returns the issues currently matching a saved view.
func (s *Store) ViewIssues(viewID string) ([]domain.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.views[viewID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrViewNotFound, viewID)
	}
	var out []domain.Issue
	for _, issue := range s.issues {
		if v.Matches(issue) {
			out = append(out, cloneIssue(issue))
		}
	}
	sortIssues(out)
	return out, nil
}

// Replace swaps the whole content of the store in a single change.
func (s *Store) Replace(projects []domain.Project, issues []domain.Issue, views []domain.View) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.projects = make(map[string]domain.Project, len(projects))
	for _, p := range projects {
		s.projects[p.ID] = cloneProject(p)
	}
	s.issues = make(map[string]domain.Issue, len(issues))
	for _, issue := range issues {
		s.issues[issue.ID] = cloneIssue(issue)
	}
	s.views = make(map[string]domain.View, len(views))
	for _, v := range views {
		s.views[v.ID] = v
	}
	s.bump()
}

// SetDisplayName records the display name of a user.
func (s *Store) SetDisplayName(userID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = name
}

// DisplayName returns the recorded display name of a user.
func (s *Store) DisplayName(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.users[userID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return name, nil
}

// ProjectsVisibleTo streams the projects userID created or is a member of.
func (s *Store) ProjectsVisibleTo(ctx context.Context, userID string) <-chan reactive.Event[[]domain.Project] {
	return watch(ctx, s.changes, func() []domain.Project {
		return s.selectProjects(func(p domain.Project) bool { return p.VisibleTo(userID) })
	})
}

// ProjectsFiltered streams the projects whose IDs are in ids.
func (s *Store) ProjectsFiltered(ctx context.Context, ids []string) <-chan reactive.Event[[]domain.Project] {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	return watch(ctx, s.changes, func() []domain.Project {
		return s.selectProjects(func(p domain.Project) bool {
			_, ok := want[p.ID]
			return ok
		})
	})
}

// IssuesOf streams the issues of projectID. A project the user cannot see
// yields an empty list.
func (s *Store) IssuesOf(ctx context.Context, userID, projectID string) <-chan reactive.Event[[]domain.Issue] {
	return watch(ctx, s.changes, func() []domain.Issue {
		s.mu.RLock()
		defer s.mu.RUnlock()

		p, ok := s.projects[projectID]
		if !ok || !p.VisibleTo(userID) {
			return []domain.Issue{}
		}
		out := []domain.Issue{}
		for _, issue := range s.issues {
			if issue.ProjectID == projectID {
				out = append(out, cloneIssue(issue))
			}
		}
		sortIssues(out)
		return out
	})
}

func (s *Store) selectProjects(keep func(domain.Project) bool) []domain.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Project{}
	for _, p := range s.projects {
		if keep(p) {
			out = append(out, cloneProject(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// watch recomputes a snapshot whenever the store version changes and
// forwards it when it differs from the previous one.
func watch[T any](ctx context.Context, changes *reactive.Subject[uint64], compute func() T) <-chan reactive.Event[T] {
	out := make(chan reactive.Event[T])
	go func() {
		defer close(out)
		for range changes.Subscribe(ctx) {
			select {
			case out <- reactive.Event[T]{Value: compute()}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return reactive.Distinct(ctx, out)
}

func sortIssues(issues []domain.Issue) {
	sort.Slice(issues, func(i, j int) bool { return issues[i].ID < issues[j].ID })
}

func cloneProject(p domain.Project) domain.Project {
	p.Members = slices.Clone(p.Members)
	p.IssueIDs = slices.Clone(p.IssueIDs)
	p.ViewIDs = slices.Clone(p.ViewIDs)
	return p
}

func cloneIssue(i domain.Issue) domain.Issue {
	i.Assignees = slices.Clone(i.Assignees)
	i.Labels = slices.Clone(i.Labels)
	return i
}
