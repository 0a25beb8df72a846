// Package backend talks to the remote issue tracker over GraphQL and turns
// its queries into polled snapshot streams.
package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/machinebox/graphql"
	"github.com/rs/zerolog"
)

// Client is a GraphQL client for the issue tracker.
// It provides high-level methods hiding the query documents.
type Client struct {
	gql   *graphql.Client
	token string
	log   zerolog.Logger
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	log        zerolog.Logger
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithLogger sets the logger. GraphQL request traces go to debug level.
func WithLogger(log zerolog.Logger) Option {
	return func(o *clientOptions) { o.log = log }
}

// New creates a client for the GraphQL endpoint, authenticating with token.
func New(endpoint, token string, opts ...Option) *Client {
	o := clientOptions{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	var gqlOpts []graphql.ClientOption
	if o.httpClient != nil {
		gqlOpts = append(gqlOpts, graphql.WithHTTPClient(o.httpClient))
	}
	client := graphql.NewClient(endpoint, gqlOpts...)
	log := o.log
	client.Log = func(s string) { log.Debug().Msg(s) }

	return &Client{
		gql:   client,
		token: token,
		log:   o.log,
	}
}

// makeRequest executes a GraphQL request with authentication.
func (c *Client) makeRequest(ctx context.Context, req *graphql.Request, resp interface{}) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if err := c.gql.Run(ctx, req, resp); err != nil {
		return fmt.Errorf("graphql request failed: %w", err)
	}
	return nil
}
