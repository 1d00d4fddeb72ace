// Package engine drives the per-repository, per-pull-request reconciliation
// loop. Processing is deliberately sequential: one pull request is fully
// classified, deduplicated, and reconciled before the next begins, so
// idempotence substitutes for locking. Everything except authentication and
// malformed global configuration is local to one pull request and never
// aborts the run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/greenmantle/renojira/internal/classify"
	"github.com/greenmantle/renojira/internal/debug"
	"github.com/greenmantle/renojira/internal/dedup"
	"github.com/greenmantle/renojira/internal/githost"
	"github.com/greenmantle/renojira/internal/jira"
	"github.com/greenmantle/renojira/internal/lifecycle"
	"github.com/greenmantle/renojira/internal/policy"
)

// Tracker is the full tracker capability surface the engine wires together:
// dedup reads, lifecycle writes, and the preflight check. *jira.Client
// satisfies it.
type Tracker interface {
	dedup.TrackerReader
	lifecycle.TrackerWriter
	Preflight(ctx context.Context, project string) error
}

// Engine composes the four decision components with the I/O collaborators.
type Engine struct {
	Host     githost.SourceHost
	Tracker  Tracker
	Resolver *dedup.Resolver
	Manager  *lifecycle.Manager

	// Defaults is the global default policy each repo override merges into.
	Defaults policy.Policy

	// LocalOverride, when non-nil, replaces repo override fetching for
	// every repo. Used to exercise a policy file locally before rollout.
	LocalOverride []byte

	// OnlyPR restricts processing to a single PR number across all repos,
	// for smoke testing. 0 means no restriction.
	OnlyPR int

	// Pacing is the delay inserted between pull requests to respect
	// collaborator rate limits. A scheduling courtesy, not a correctness
	// requirement.
	Pacing time.Duration

	// AuditOut receives one line per pull request.
	AuditOut io.Writer
}

// Report accumulates run totals for the end-of-run summary.
type Report struct {
	Repos        int
	PullRequests int
	Created      int
	Repaired     int
	Transitioned int
	Skipped      int
	Errors       int
}

// Run executes one full reconciliation pass over the selected repositories.
// It returns an error only for unrecoverable failures: authentication,
// target resolution, or cancellation.
func (e *Engine) Run(ctx context.Context, sel githost.Selector) (Report, error) {
	var rep Report

	// Credential failure must surface before any pull request is touched.
	if err := e.Tracker.Preflight(ctx, e.Defaults.ProjectKey); err != nil {
		return rep, err
	}

	repos, err := e.Host.ResolveRepos(ctx, sel)
	if err != nil {
		return rep, err
	}
	debug.Logf("scanning %d repo(s)\n", len(repos))

	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := e.runRepo(ctx, repo, &rep); err != nil {
			var authErr *jira.AuthError
			if errors.As(err, &authErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return rep, err
			}
			debug.Warnf("repo %s: %v\n", repo, err)
			rep.Errors++
		}
	}

	return rep, nil
}

func (e *Engine) runRepo(ctx context.Context, repo string, rep *Report) error {
	rep.Repos++

	pol, err := e.repoPolicy(ctx, repo)
	if err != nil {
		var cfgErr *policy.ConfigError
		if errors.As(err, &cfgErr) {
			// Malformed override: skip this repo, keep the run alive.
			debug.Warnf("%v, skipping repo\n", cfgErr)
			rep.Errors++
			return nil
		}
		return err
	}

	if !pol.Enabled {
		e.audit(repo, 0, "disabled", "none", "skip-repo", string(e.Manager.Mode))
		return nil
	}

	// A project introduced by a repo override still needs its preflight.
	if pol.ProjectKey != e.Defaults.ProjectKey {
		if err := e.Tracker.Preflight(ctx, pol.ProjectKey); err != nil {
			return err
		}
	}

	prs, err := e.Host.ListOpenPullRequests(ctx, repo)
	if err != nil {
		return fmt.Errorf("list pull requests: %w", err)
	}

	for _, pr := range prs {
		if e.OnlyPR != 0 && pr.Number != e.OnlyPR {
			continue
		}
		e.processPR(ctx, pr, pol, rep)
		if err := e.pace(ctx); err != nil {
			return err
		}
	}
	return nil
}

// repoPolicy merges the repo's override (or the local override file) into
// the global defaults.
func (e *Engine) repoPolicy(ctx context.Context, repo string) (policy.Policy, error) {
	raw := e.LocalOverride
	if raw == nil {
		var err error
		raw, err = e.Host.FetchOverride(ctx, repo)
		if err != nil {
			// Override fetch trouble falls back to defaults, matching a
			// repo that simply has no override file.
			debug.Warnf("override fetch for %s failed (%v), using defaults\n", repo, err)
			raw = nil
		}
	}

	ov, err := policy.ParseOverride(raw, repo)
	if err != nil {
		return policy.Policy{}, err
	}
	return policy.Merge(e.Defaults, ov), nil
}

// processPR runs the full decision pipeline for one pull request. All
// failures are contained here; they are reported and counted, never
// propagated.
func (e *Engine) processPR(ctx context.Context, pr githost.PullRequest, pol policy.Policy, rep *Report) {
	rep.PullRequests++

	res := classify.Evaluate(classify.Input{Title: pr.Title, Body: pr.Body, Labels: pr.Labels}, pol.Rules())

	var match dedup.Match
	if res.Needed {
		var err error
		match, err = e.Resolver.Resolve(ctx, pr, pol)
		if err != nil {
			var ambErr *dedup.AmbiguityError
			if errors.As(err, &ambErr) {
				// Never auto-pick between competing tickets.
				debug.Warnf("%v\n", ambErr)
				e.audit(pr.Repo, pr.Number, string(res.Category), "ambiguous", "skip-ambiguous", string(e.Manager.Mode))
				rep.Errors++
				return
			}
			debug.Warnf("dedup for %s#%d failed: %v\n", pr.Repo, pr.Number, err)
			rep.Errors++
			return
		}
	}

	d := e.Manager.Decide(res, match, pol, lifecycle.PRRef{
		Repo:   pr.Repo,
		Number: pr.Number,
		Title:  pr.Title,
		Body:   pr.Body,
		URL:    pr.URL,
	})

	outcome, err := e.Manager.Apply(ctx, d, pr, pol)
	if err != nil {
		var trErr *lifecycle.TransitionError
		if errors.As(err, &trErr) {
			// Ticket left otherwise untouched.
			debug.Warnf("%v\n", trErr)
		} else {
			debug.Warnf("apply for %s#%d failed: %v\n", pr.Repo, pr.Number, err)
		}
		rep.Errors++
	}

	e.tally(d, outcome, rep)

	classification := string(res.Category)
	if !res.Needed {
		classification = "skip:" + res.Reason
	}
	dedupSource := "none"
	if match.Found {
		dedupSource = string(match.Source)
	}
	decision := d.Describe()
	if outcome.CreatedKey != "" {
		decision = fmt.Sprintf("%s:%s", d.Kind, outcome.CreatedKey)
	}
	e.audit(pr.Repo, pr.Number, classification, dedupSource, decision, string(e.Manager.Mode))
}

func (e *Engine) tally(d lifecycle.Decision, outcome lifecycle.Outcome, rep *Report) {
	switch {
	case outcome.CreatedKey != "":
		rep.Created++
	case d.Kind == lifecycle.KindRepairExisting && outcome.Changed:
		rep.Repaired++
	case d.Kind == lifecycle.KindTransitionExisting && outcome.Changed:
		rep.Transitioned++
	default:
		rep.Skipped++
	}
}

// audit emits the one-line-per-PR observable surface.
func (e *Engine) audit(repo string, number int, classification, dedupSource, decision, mode string) {
	if e.AuditOut == nil {
		return
	}
	fmt.Fprintf(e.AuditOut, "repo=%s pr=%d classification=%s dedup=%s decision=%s mode=%s\n",
		repo, number, classification, dedupSource, decision, mode)
}

// pace sleeps between pull requests, honoring cancellation. The run halts
// only after the current PR's decision is fully applied.
func (e *Engine) pace(ctx context.Context) error {
	if e.Pacing <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(e.Pacing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
