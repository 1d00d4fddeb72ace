// Package githost abstracts the source-control host. The engine only sees
// the SourceHost interface and read-only PullRequest snapshots; the GitHub
// implementation lives in github.go.
package githost

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// PullRequest is a read-only snapshot of an open pull request. The engine
// never mutates it; writes go through SourceHost methods.
type PullRequest struct {
	Repo     string // "owner/name"
	Number   int
	Title    string
	Body     string
	URL      string // canonical web URL, used for remote-link dedup
	Labels   []string
	Comments []string
}

// Selector names the repositories a run targets. Exactly one targeting mode
// should be set; Resolve applies them in priority order: explicit repo,
// explicit list, file-backed list, organization scan.
type Selector struct {
	Repo      string   // single "owner/name"
	Repos     []string // explicit list
	ListFile  string   // file with one repo per line, '#' comments allowed
	Org       string   // organization scan
	Topic     string   // optional topic filter for org scans
	NameRegex string   // optional name regex filter for org scans
}

// SourceHost is the capability surface the engine consumes.
type SourceHost interface {
	// ResolveRepos expands a Selector into concrete "owner/name" repos.
	ResolveRepos(ctx context.Context, sel Selector) ([]string, error)

	// ListOpenPullRequests returns snapshots of all open PRs, comments
	// included, ordered by last update.
	ListOpenPullRequests(ctx context.Context, repo string) ([]PullRequest, error)

	// FetchOverride returns the repo-level override file contents, or nil
	// when the repo has none.
	FetchOverride(ctx context.Context, repo string) ([]byte, error)

	// PostComment and AddLabels are the only PR mutations the engine
	// performs. Both must be no-ops under dry-run; the lifecycle manager
	// enforces that by never reaching them.
	PostComment(ctx context.Context, pr PullRequest, text string) error
	AddLabels(ctx context.Context, pr PullRequest, labels []string) error
}

// ReadRepoListFile parses a file-backed repo list: one repo per line, blank
// lines and '#' comment lines skipped.
func ReadRepoListFile(path string) ([]string, error) {
	f, err := os.Open(path) // #nosec G304 - operator-supplied list file
	if err != nil {
		return nil, fmt.Errorf("open repo list: %w", err)
	}
	defer func() { _ = f.Close() }()

	var repos []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		repos = append(repos, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read repo list: %w", err)
	}
	return repos, nil
}

// SplitRepo breaks "owner/name" into its parts.
func SplitRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repo %q is not in owner/name form", repo)
	}
	return parts[0], parts[1], nil
}
