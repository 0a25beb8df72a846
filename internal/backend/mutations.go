package backend

import (
	"context"
	"fmt"

	"github.com/h0rv/issuepulse/internal/domain"
	"github.com/machinebox/graphql"
)

// SetIssueState moves an issue to state.
func (c *Client) SetIssueState(ctx context.Context, issueID string, state domain.IssueState) error {
	if !state.Valid() {
		return fmt.Errorf("invalid issue state %q", state)
	}
	req := graphql.NewRequest(`
		mutation($issueId: ID!, $state: IssueState!) {
			setIssueState(input: {issueId: $issueId, state: $state}) {
				issue {
					id
					state
				}
			}
		}
	`)
	req.Var("issueId", issueID)
	req.Var("state", string(state))

	var resp struct {
		SetIssueState struct {
			Issue struct {
				ID    string `json:"id"`
				State string `json:"state"`
			} `json:"issue"`
		} `json:"setIssueState"`
	}
	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return fmt.Errorf("failed to update issue state: %w", err)
	}
	return nil
}
