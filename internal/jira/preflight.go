package jira

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// Preflight verifies credentials and project visibility before any pull
// request is processed. A credential failure here is fatal for the whole
// run; a half-authenticated run is worse than a no-op one. Results are
// cached per project so repeated repos don't re-check.
func (c *Client) Preflight(ctx context.Context, project string) error {
	if c.preflightOK == nil {
		c.preflightOK = make(map[string]bool)
	}
	if c.preflightOK[project] {
		return nil
	}

	if _, err := c.do(ctx, http.MethodGet, c.restURL("myself"), nil); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
			return &AuthError{Err: err}
		}
		return fmt.Errorf("jira preflight: %w", err)
	}

	if project != "" {
		if _, err := c.do(ctx, http.MethodGet, c.restURL("project/"+url.PathEscape(project)), nil); err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
				return &AuthError{Err: err}
			}
			return fmt.Errorf("jira project %s not reachable: %w", project, err)
		}
	}

	c.preflightOK[project] = true
	return nil
}
