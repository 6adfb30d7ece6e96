package client

import (
	"context"
	"net/http"

	"github.com/adamwoolhether/httpkit/client/response"
)

// Get sets the GET method, and the body when given, then executes.
func (c *Client) Get(ctx context.Context, url string, body ...any) (*response.Response, error) {
	return c.verb(ctx, http.MethodGet, url, body)
}

// Post sets the POST method, and the body when given, then executes.
func (c *Client) Post(ctx context.Context, url string, body ...any) (*response.Response, error) {
	return c.verb(ctx, http.MethodPost, url, body)
}

// Put sets the PUT method, and the body when given, then executes.
func (c *Client) Put(ctx context.Context, url string, body ...any) (*response.Response, error) {
	return c.verb(ctx, http.MethodPut, url, body)
}

// Delete sets the DELETE method, and the body when given, then executes.
func (c *Client) Delete(ctx context.Context, url string, body ...any) (*response.Response, error) {
	return c.verb(ctx, http.MethodDelete, url, body)
}

func (c *Client) verb(ctx context.Context, method, url string, body []any) (*response.Response, error) {
	c.Method(method)
	if len(body) > 0 {
		c.Body(body[0])
	}
	return c.Exec(ctx, url)
}
