package backend

import (
	"context"
	"fmt"

	"github.com/h0rv/issuepulse/internal/domain"
	"github.com/machinebox/graphql"
)

const projectFields = `
	id
	name
	creator
	members
	issueIds
	viewIds
	createdTS
	startTS
	deadlineTS
	milestones {
		total
		reached
	}
`

const issueFields = `
	id
	projectId
	title
	description
	creator
	state
	assignees
	labels
	createdTS
	deadlineTS
`

// ListProjects returns the projects userID created or is a member of.
func (c *Client) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	req := graphql.NewRequest(`
		query($userId: ID!) {
			projects(visibleTo: $userId) {` + projectFields + `}
		}
	`)
	req.Var("userId", userID)

	var resp struct {
		Projects []domain.Project `json:"projects"`
	}
	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return nonNil(resp.Projects), nil
}

// ProjectsByID returns the projects whose IDs are in ids. Unknown IDs are skipped.
func (c *Client) ProjectsByID(ctx context.Context, ids []string) ([]domain.Project, error) {
	if len(ids) == 0 {
		return []domain.Project{}, nil
	}
	req := graphql.NewRequest(`
		query($ids: [ID!]!) {
			projectsByIds(ids: $ids) {` + projectFields + `}
		}
	`)
	req.Var("ids", ids)

	var resp struct {
		Projects []domain.Project `json:"projectsByIds"`
	}
	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to get projects: %w", err)
	}
	return nonNil(resp.Projects), nil
}

// ListIssues returns the issues of projectID as seen by userID.
func (c *Client) ListIssues(ctx context.Context, userID, projectID string) ([]domain.Issue, error) {
	req := graphql.NewRequest(`
		query($userId: ID!, $projectId: ID!) {
			issues(projectId: $projectId, visibleTo: $userId) {` + issueFields + `}
		}
	`)
	req.Var("userId", userID)
	req.Var("projectId", projectID)

	var resp struct {
		Issues []domain.Issue `json:"issues"`
	}
	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	return nonNil(resp.Issues), nil
}

// DisplayName returns the display name of a user. It satisfies names.Resolver.
func (c *Client) DisplayName(ctx context.Context, userID string) (string, error) {
	req := graphql.NewRequest(`
		query($id: ID!) {
			user(id: $id) {
				displayName
			}
		}
	`)
	req.Var("id", userID)

	var resp struct {
		User *struct {
			DisplayName string `json:"displayName"`
		} `json:"user"`
	}
	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	if resp.User == nil {
		return "", fmt.Errorf("user '%s' not found", userID)
	}
	return resp.User.DisplayName, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
