// Package dedup determines whether a valid tracker issue already represents
// a pull request. Three lookup strategies run in strictly increasing cost
// order, short-circuiting on the first hit: PR comment scan, summary-token
// search, remote-link match. The ordering is a correctness requirement:
// comment dedup is authoritative once written, and the later strategies
// repair dedup when comment posting failed or was disabled.
package dedup

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/greenmantle/renojira/internal/debug"
	"github.com/greenmantle/renojira/internal/githost"
	"github.com/greenmantle/renojira/internal/jira"
	"github.com/greenmantle/renojira/internal/policy"
)

// Source records which strategy located an existing ticket.
type Source string

const (
	SourceComment    Source = "comment"
	SourceSearch     Source = "search"
	SourceRemoteLink Source = "remotelink"
)

// Match is the resolver verdict. The zero value means "no existing ticket".
type Match struct {
	Found  bool
	Key    string
	Status string
	Source Source
}

// AmbiguityError reports multiple distinct tracker keys claiming the same
// pull request. The engine reports it loudly and skips mutation rather than
// auto-picking one.
type AmbiguityError struct {
	Repo   string
	Number int
	Keys   []string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("multiple tracker keys reference %s#%d: %s",
		e.Repo, e.Number, strings.Join(e.Keys, ", "))
}

// TrackerReader is the read-only tracker capability the resolver consumes.
// *jira.Client satisfies it.
type TrackerReader interface {
	SearchIssue(ctx context.Context, jql string) (*jira.IssueRef, error)
	SearchIssueKeys(ctx context.Context, jql string, limit int) ([]jira.IssueRef, error)
	GetRemoteLinks(ctx context.Context, key string) ([]string, error)
	GetIssueStatus(ctx context.Context, key string) (string, error)
}

// ticketKeyRe matches tracker keys like "PROJ-123" in comment text.
var ticketKeyRe = regexp.MustCompile(`\b([A-Z][A-Z0-9]+-\d+)\b`)

// Resolver runs the three dedup strategies.
type Resolver struct {
	Tracker TrackerReader

	// Verbose enables per-strategy trace output (VERBOSE_JIRA_DEDUPE).
	Verbose bool

	// CandidateLimit caps how many issues the remote-link pass inspects.
	CandidateLimit int
}

// Resolve finds an existing ticket for pr, or returns a zero Match when all
// three strategies exhaust without a hit.
func (r *Resolver) Resolve(ctx context.Context, pr githost.PullRequest, pol policy.Policy) (Match, error) {
	if m, err := r.fromComments(ctx, pr, pol); err != nil || m.Found {
		return m, err
	}
	if m, err := r.fromSearch(ctx, pr, pol); err != nil || m.Found {
		return m, err
	}
	return r.fromRemoteLinks(ctx, pr, pol)
}

// fromComments scans the PR's own comments for a ticket key. Free: no
// tracker call unless a key is found and needs its status fetched.
func (r *Resolver) fromComments(ctx context.Context, pr githost.PullRequest, pol policy.Policy) (Match, error) {
	keys := map[string]bool{}
	for _, comment := range pr.Comments {
		for _, m := range ticketKeyRe.FindAllString(comment, -1) {
			if pol.ProjectKey != "" && !strings.HasPrefix(m, pol.ProjectKey+"-") {
				continue
			}
			keys[m] = true
		}
	}
	r.trace("comment scan for %s#%d: %d candidate key(s)\n", pr.Repo, pr.Number, len(keys))

	if len(keys) == 0 {
		return Match{}, nil
	}
	if len(keys) > 1 {
		distinct := make([]string, 0, len(keys))
		for k := range keys {
			distinct = append(distinct, k)
		}
		sort.Strings(distinct)
		return Match{}, &AmbiguityError{Repo: pr.Repo, Number: pr.Number, Keys: distinct}
	}

	var key string
	for k := range keys {
		key = k
	}
	status, err := r.Tracker.GetIssueStatus(ctx, key)
	if err != nil {
		return Match{}, fmt.Errorf("fetch status of %s: %w", key, err)
	}
	r.trace("comment scan hit: %s (status %q)\n", key, status)
	return Match{Found: true, Key: key, Status: status, Source: SourceComment}, nil
}

// fromSearch queries the tracker for an issue whose summary carries the
// deterministic PR token. Summary construction and this search share one
// rule, so a ticket created by this tool is always re-discoverable here.
func (r *Resolver) fromSearch(ctx context.Context, pr githost.PullRequest, pol policy.Policy) (Match, error) {
	jql := searchJQL(pol.ProjectKey, Token(pr.Repo, pr.Number))
	r.trace("summary search for %s#%d: %s\n", pr.Repo, pr.Number, jql)

	ref, err := r.Tracker.SearchIssue(ctx, jql)
	if err != nil {
		return Match{}, fmt.Errorf("summary search: %w", err)
	}
	if ref == nil {
		return Match{}, nil
	}
	r.trace("summary search hit: %s (status %q)\n", ref.Key, ref.Status)
	return Match{Found: true, Key: ref.Key, Status: ref.Status, Source: SourceSearch}, nil
}

// fromRemoteLinks inspects remote links on candidate issues for the PR's
// canonical URL. Most expensive: one request per candidate.
func (r *Resolver) fromRemoteLinks(ctx context.Context, pr githost.PullRequest, pol policy.Policy) (Match, error) {
	limit := r.CandidateLimit
	if limit <= 0 {
		limit = 50
	}

	jql := candidateJQL(pol)
	r.trace("remote-link scan for %s#%d: %s\n", pr.Repo, pr.Number, jql)

	candidates, err := r.Tracker.SearchIssueKeys(ctx, jql, limit)
	if err != nil {
		return Match{}, fmt.Errorf("remote-link candidates: %w", err)
	}
	for _, cand := range candidates {
		urls, err := r.Tracker.GetRemoteLinks(ctx, cand.Key)
		if err != nil {
			return Match{}, fmt.Errorf("remote links of %s: %w", cand.Key, err)
		}
		for _, u := range urls {
			if u == pr.URL {
				r.trace("remote-link hit: %s -> %s\n", cand.Key, u)
				return Match{Found: true, Key: cand.Key, Status: cand.Status, Source: SourceRemoteLink}, nil
			}
		}
	}
	r.trace("no existing ticket for %s#%d\n", pr.Repo, pr.Number)
	return Match{}, nil
}

func (r *Resolver) trace(format string, args ...interface{}) {
	if r.Verbose {
		debug.Logf("[dedupe] "+format, args...)
	}
}
