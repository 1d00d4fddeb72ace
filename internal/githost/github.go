package githost

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/google/go-github/v68/github"

	"github.com/greenmantle/renojira/internal/debug"
)

// OverridePath is where repos keep their policy override file.
const OverridePath = ".github/renovate-jira.yml"

// GitHub implements SourceHost using the GitHub REST API.
type GitHub struct {
	client   *github.Client
	pageSize int
}

// NewGitHub creates a GitHub host with the provided token. An empty token
// yields an unauthenticated client, which is only useful for tests.
func NewGitHub(token string, pageSize int) *GitHub {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return &GitHub{client: client, pageSize: pageSize}
}

// NewGitHubWithClient creates a host against a custom HTTP client and base
// URL. Used by tests with httptest servers.
func NewGitHubWithClient(httpClient *http.Client, baseURL string) (*GitHub, error) {
	client := github.NewClient(httpClient)
	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, err
		}
	}
	return &GitHub{client: client, pageSize: 50}, nil
}

func (g *GitHub) ResolveRepos(ctx context.Context, sel Selector) ([]string, error) {
	switch {
	case sel.Repo != "":
		return []string{sel.Repo}, nil
	case len(sel.Repos) > 0:
		return sel.Repos, nil
	case sel.ListFile != "":
		return ReadRepoListFile(sel.ListFile)
	case sel.Org != "":
		return g.scanOrg(ctx, sel)
	}
	return nil, fmt.Errorf("no target repos specified")
}

func (g *GitHub) scanOrg(ctx context.Context, sel Selector) ([]string, error) {
	var nameRe *regexp.Regexp
	if sel.NameRegex != "" {
		var err error
		nameRe, err = regexp.Compile(sel.NameRegex)
		if err != nil {
			return nil, fmt.Errorf("invalid repo name regex: %w", err)
		}
	}

	var repos []string
	opts := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: g.pageSize},
	}
	for {
		page, resp, err := g.client.Repositories.ListByOrg(ctx, sel.Org, opts)
		if err != nil {
			return nil, fmt.Errorf("list org repos: %w", err)
		}
		for _, r := range page {
			if sel.Topic != "" && !hasTopic(r.Topics, sel.Topic) {
				continue
			}
			if nameRe != nil && !nameRe.MatchString(r.GetName()) {
				continue
			}
			repos = append(repos, r.GetFullName())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return repos, nil
}

func hasTopic(topics []string, want string) bool {
	for _, t := range topics {
		if t == want {
			return true
		}
	}
	return false
}

func (g *GitHub) ListOpenPullRequests(ctx context.Context, repo string) ([]PullRequest, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return nil, err
	}

	var out []PullRequest
	opts := &github.PullRequestListOptions{
		State:       "open",
		Sort:        "updated",
		ListOptions: github.ListOptions{PerPage: g.pageSize},
	}
	for {
		page, resp, err := g.client.PullRequests.List(ctx, owner, name, opts)
		if err != nil {
			return nil, fmt.Errorf("list pull requests for %s: %w", repo, err)
		}
		for _, pr := range page {
			snap := PullRequest{
				Repo:   repo,
				Number: pr.GetNumber(),
				Title:  pr.GetTitle(),
				Body:   pr.GetBody(),
				URL:    pr.GetHTMLURL(),
			}
			for _, l := range pr.Labels {
				snap.Labels = append(snap.Labels, l.GetName())
			}
			comments, err := g.listComments(ctx, owner, name, snap.Number)
			if err != nil {
				return nil, err
			}
			snap.Comments = comments
			out = append(out, snap)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (g *GitHub) listComments(ctx context.Context, owner, name string, number int) ([]string, error) {
	var out []string
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: g.pageSize},
	}
	for {
		page, resp, err := g.client.Issues.ListComments(ctx, owner, name, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list comments for %s/%s#%d: %w", owner, name, number, err)
		}
		for _, c := range page {
			out = append(out, c.GetBody())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (g *GitHub) FetchOverride(ctx context.Context, repo string) ([]byte, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return nil, err
	}

	file, _, resp, err := g.client.Repositories.GetContents(ctx, owner, name, OverridePath, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			debug.Logf("no override file in %s, using defaults\n", repo)
			return nil, nil
		}
		return nil, fmt.Errorf("fetch override for %s: %w", repo, err)
	}
	if file == nil {
		return nil, nil
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode override for %s: %w", repo, err)
	}
	return []byte(content), nil
}

func (g *GitHub) PostComment(ctx context.Context, pr PullRequest, text string) error {
	owner, name, err := SplitRepo(pr.Repo)
	if err != nil {
		return err
	}
	_, _, err = g.client.Issues.CreateComment(ctx, owner, name, pr.Number, &github.IssueComment{
		Body: github.Ptr(text),
	})
	if err != nil {
		return fmt.Errorf("comment on %s#%d: %w", pr.Repo, pr.Number, err)
	}
	return nil
}

func (g *GitHub) AddLabels(ctx context.Context, pr PullRequest, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	owner, name, err := SplitRepo(pr.Repo)
	if err != nil {
		return err
	}
	_, _, err = g.client.Issues.AddLabelsToIssue(ctx, owner, name, pr.Number, labels)
	if err != nil {
		return fmt.Errorf("add labels on %s#%d: %w", pr.Repo, pr.Number, err)
	}
	return nil
}
