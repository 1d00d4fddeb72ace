// Package jira is the issue-tracker adapter. It carries no decision logic:
// the dedup resolver and lifecycle manager drive it through narrow methods.
package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// IssueRef is the minimal view of an existing tracker issue the engine
// needs: its key and current status.
type IssueRef struct {
	Key    string
	Status string
}

// Transition is one workflow transition available from an issue's current
// status.
type Transition struct {
	ID   string           `json:"id"`
	Name string           `json:"name"`
	To   TransitionTarget `json:"to"`
}

// TransitionTarget is the status a transition lands on.
type TransitionTarget struct {
	Name string `json:"name"`
}

// Client provides HTTP access to a Jira instance. Authentication is either
// a personal access token (Bearer) or email + API token (Basic, the Jira
// Cloud scheme).
type Client struct {
	BaseURL    string
	Email      string
	APIToken   string
	PAT        string
	APIVersion string
	HTTPClient *http.Client

	// preflightOK caches successful per-project preflights for this run.
	preflightOK map[string]bool
}

// NewClient creates a Jira client. apiVersion defaults to "2" when empty.
func NewClient(baseURL, email, apiToken, pat, apiVersion string) *Client {
	if apiVersion == "" {
		apiVersion = "2"
	}
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Email:      email,
		APIToken:   apiToken,
		PAT:        pat,
		APIVersion: apiVersion,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from Jira.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira API returned %d: %s", e.Status, e.Body)
}

// AuthError indicates invalid credentials. It is fatal: the run aborts
// before any pull request is processed.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("jira authentication failed: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

func (c *Client) restURL(path string) string {
	return fmt.Sprintf("%s/rest/api/%s/%s", c.BaseURL, c.APIVersion, path)
}

// SearchIssue runs a JQL query and returns the first matching issue, or nil
// when nothing matches.
func (c *Client) SearchIssue(ctx context.Context, jql string) (*IssueRef, error) {
	params := url.Values{
		"jql":        {jql},
		"fields":     {"status"},
		"maxResults": {"1"},
	}
	body, err := c.do(ctx, http.MethodGet, c.restURL("search")+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("search issues: %w", err)
	}

	var result struct {
		Issues []struct {
			Key    string `json:"key"`
			Fields struct {
				Status struct {
					Name string `json:"name"`
				} `json:"status"`
			} `json:"fields"`
		} `json:"issues"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	if len(result.Issues) == 0 {
		return nil, nil
	}
	first := result.Issues[0]
	return &IssueRef{Key: first.Key, Status: first.Fields.Status.Name}, nil
}

// SearchIssueKeys runs a JQL query and returns up to limit matching issues.
// Used to gather remote-link dedup candidates.
func (c *Client) SearchIssueKeys(ctx context.Context, jql string, limit int) ([]IssueRef, error) {
	if limit <= 0 {
		limit = 50
	}
	params := url.Values{
		"jql":        {jql},
		"fields":     {"status"},
		"maxResults": {fmt.Sprintf("%d", limit)},
	}
	body, err := c.do(ctx, http.MethodGet, c.restURL("search")+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("search issues: %w", err)
	}

	var result struct {
		Issues []struct {
			Key    string `json:"key"`
			Fields struct {
				Status struct {
					Name string `json:"name"`
				} `json:"status"`
			} `json:"fields"`
		} `json:"issues"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	refs := make([]IssueRef, 0, len(result.Issues))
	for _, is := range result.Issues {
		refs = append(refs, IssueRef{Key: is.Key, Status: is.Fields.Status.Name})
	}
	return refs, nil
}

// GetIssueStatus fetches the current status name of an issue.
func (c *Client) GetIssueStatus(ctx context.Context, key string) (string, error) {
	body, err := c.do(ctx, http.MethodGet, c.restURL("issue/"+url.PathEscape(key))+"?fields=status", nil)
	if err != nil {
		return "", fmt.Errorf("get issue %s: %w", key, err)
	}
	var result struct {
		Fields struct {
			Status struct {
				Name string `json:"name"`
			} `json:"status"`
		} `json:"fields"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parse issue response: %w", err)
	}
	return result.Fields.Status.Name, nil
}

// CreateIssue creates a new issue and returns its key.
func (c *Client) CreateIssue(ctx context.Context, fields map[string]interface{}) (string, error) {
	payload := map[string]interface{}{"fields": fields}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal create request: %w", err)
	}

	body, err := c.doWithRetry(ctx, http.MethodPost, c.restURL("issue"), data)
	if err != nil {
		return "", fmt.Errorf("create issue: %w", err)
	}

	var created struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("parse create response: %w", err)
	}
	if created.Key == "" {
		return "", fmt.Errorf("create response missing issue key")
	}
	return created.Key, nil
}

// UpdateIssueFields updates fields on an existing issue. Writing a value
// identical to the current one is a no-op at the tracker.
func (c *Client) UpdateIssueFields(ctx context.Context, key string, fields map[string]interface{}) error {
	payload := map[string]interface{}{"fields": fields}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal update request: %w", err)
	}
	if _, err := c.doWithRetry(ctx, http.MethodPut, c.restURL("issue/"+url.PathEscape(key)), data); err != nil {
		return fmt.Errorf("update issue %s: %w", key, err)
	}
	return nil
}

// GetRemoteLinks returns the URLs of all remote links on an issue.
func (c *Client) GetRemoteLinks(ctx context.Context, key string) ([]string, error) {
	body, err := c.do(ctx, http.MethodGet, c.restURL("issue/"+url.PathEscape(key)+"/remotelink"), nil)
	if err != nil {
		return nil, fmt.Errorf("get remote links for %s: %w", key, err)
	}
	var links []struct {
		Object struct {
			URL string `json:"url"`
		} `json:"object"`
	}
	if err := json.Unmarshal(body, &links); err != nil {
		return nil, fmt.Errorf("parse remote links: %w", err)
	}
	urls := make([]string, 0, len(links))
	for _, l := range links {
		urls = append(urls, l.Object.URL)
	}
	return urls, nil
}

// AddRemoteLink attaches a web link to an issue.
func (c *Client) AddRemoteLink(ctx context.Context, key, linkURL, title string) error {
	payload := map[string]interface{}{
		"object": map[string]string{
			"url":   linkURL,
			"title": title,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal remote link: %w", err)
	}
	if _, err := c.doWithRetry(ctx, http.MethodPost, c.restURL("issue/"+url.PathEscape(key)+"/remotelink"), data); err != nil {
		return fmt.Errorf("add remote link to %s: %w", key, err)
	}
	return nil
}

// Transitions lists the workflow transitions available from the issue's
// current status.
func (c *Client) Transitions(ctx context.Context, key string) ([]Transition, error) {
	body, err := c.do(ctx, http.MethodGet, c.restURL("issue/"+url.PathEscape(key)+"/transitions"), nil)
	if err != nil {
		return nil, fmt.Errorf("list transitions for %s: %w", key, err)
	}
	var result struct {
		Transitions []Transition `json:"transitions"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse transitions: %w", err)
	}
	return result.Transitions, nil
}

// TransitionIssue executes a transition by ID.
func (c *Client) TransitionIssue(ctx context.Context, key, transitionID string) error {
	payload := map[string]interface{}{
		"transition": map[string]string{"id": transitionID},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal transition: %w", err)
	}
	if _, err := c.doWithRetry(ctx, http.MethodPost, c.restURL("issue/"+url.PathEscape(key)+"/transitions"), data); err != nil {
		return fmt.Errorf("transition issue %s: %w", key, err)
	}
	return nil
}

// doWithRetry wraps do with exponential backoff for transient failures.
// 4xx responses other than 429 are permanent; network errors and 5xx retry.
func (c *Client) doWithRetry(ctx context.Context, method, apiURL string, body []byte) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 15 * time.Second

	var out []byte
	err := backoff.Retry(func() error {
		var err error
		out, err = c.do(ctx, method, apiURL, body)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
	return out, err
}

// do executes an authenticated request and returns the response body.
func (c *Client) do(ctx context.Context, method, apiURL string, body []byte) ([]byte, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("jira base URL not configured")
	}
	if c.PAT == "" && c.APIToken == "" {
		return nil, fmt.Errorf("jira credentials not configured")
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.setAuth(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "renojira/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	// PUT and transition POST return 204 No Content on success.
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: truncate(string(respBody), 500)}
	}

	return respBody, nil
}

// setAuth prefers the PAT bearer scheme; email + API token fall back to
// Basic, which is what Jira Cloud expects.
func (c *Client) setAuth(req *http.Request) {
	if c.PAT != "" {
		req.Header.Set("Authorization", "Bearer "+c.PAT)
		return
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.Email + ":" + c.APIToken))
	req.Header.Set("Authorization", "Basic "+auth)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	if len(s) > n {
		return s[:n]
	}
	return s
}
