package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/greenmantle/renojira/internal/githost"
	"github.com/greenmantle/renojira/internal/jira"
	"github.com/greenmantle/renojira/internal/policy"
)

// TrackerWriter is the mutating tracker capability Apply consumes.
// *jira.Client satisfies it.
type TrackerWriter interface {
	CreateIssue(ctx context.Context, fields map[string]interface{}) (string, error)
	UpdateIssueFields(ctx context.Context, key string, fields map[string]interface{}) error
	AddRemoteLink(ctx context.Context, key, url, title string) error
	Transitions(ctx context.Context, key string) ([]jira.Transition, error)
	TransitionIssue(ctx context.Context, key, transitionID string) error
}

// HostWriter is the mutating source-host capability Apply consumes.
// githost.SourceHost satisfies it.
type HostWriter interface {
	PostComment(ctx context.Context, pr githost.PullRequest, text string) error
	AddLabels(ctx context.Context, pr githost.PullRequest, labels []string) error
}

// TransitionError reports a requested status that is not reachable from the
// ticket's current status. It is logged and skipped, never fatal.
type TransitionError struct {
	Key       string
	Target    string
	Available []string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("no transition to %q from current status of %s (available: %s)",
		e.Target, e.Key, strings.Join(e.Available, ", "))
}

// Outcome summarizes what Apply did, for the audit line.
type Outcome struct {
	CreatedKey string
	Changed    bool
}

// Apply executes a decision against the collaborators. Skip decisions are
// no-ops by construction: the only mutation paths are the create, repair,
// and transition branches, and Decide never emits those under dry-run
// (repair excepted, when whitelisted). Each branch performs its full write
// set or returns an error; it never commits part and stays silent about the
// rest.
func (m *Manager) Apply(ctx context.Context, d Decision, pr githost.PullRequest, pol policy.Policy) (Outcome, error) {
	switch d.Kind {
	case KindCreateNew:
		return m.applyCreate(ctx, d, pr, pol)
	case KindRepairExisting:
		if len(d.Fields) == 0 {
			return Outcome{}, nil
		}
		if err := m.Tracker.UpdateIssueFields(ctx, d.Key, d.Fields); err != nil {
			return Outcome{}, fmt.Errorf("repair %s: %w", d.Key, err)
		}
		return Outcome{Changed: true}, nil
	case KindTransitionExisting:
		return m.applyTransition(ctx, d)
	default:
		// Every skip variant.
		return Outcome{}, nil
	}
}

func (m *Manager) applyCreate(ctx context.Context, d Decision, pr githost.PullRequest, pol policy.Policy) (Outcome, error) {
	key, err := m.Tracker.CreateIssue(ctx, d.Payload.fields())
	if err != nil {
		return Outcome{}, fmt.Errorf("create ticket for %s#%d: %w", pr.Repo, pr.Number, err)
	}
	m.Counters.TicketsCreated++

	if err := m.Tracker.AddRemoteLink(ctx, key, pr.URL, fmt.Sprintf("Pull request %s#%d", pr.Repo, pr.Number)); err != nil {
		return Outcome{CreatedKey: key, Changed: true}, fmt.Errorf("link %s to %s: %w", key, pr.URL, err)
	}

	if pol.CommentOnPR {
		comment := fmt.Sprintf("Created Jira issue %s to track this pull request. Reason: %s", key, d.Reason)
		if err := m.Host.PostComment(ctx, pr, comment); err != nil {
			return Outcome{CreatedKey: key, Changed: true}, fmt.Errorf("comment on %s#%d: %w", pr.Repo, pr.Number, err)
		}
	}
	if pol.AddPRLabels {
		if err := m.Host.AddLabels(ctx, pr, pol.LabelsToApply); err != nil {
			return Outcome{CreatedKey: key, Changed: true}, fmt.Errorf("label %s#%d: %w", pr.Repo, pr.Number, err)
		}
	}

	return Outcome{CreatedKey: key, Changed: true}, nil
}

func (m *Manager) applyTransition(ctx context.Context, d Decision) (Outcome, error) {
	transitions, err := m.Tracker.Transitions(ctx, d.Key)
	if err != nil {
		return Outcome{}, fmt.Errorf("list transitions for %s: %w", d.Key, err)
	}

	for _, t := range transitions {
		if strings.EqualFold(t.To.Name, d.NextStatus) || strings.EqualFold(t.Name, d.NextStatus) {
			if err := m.Tracker.TransitionIssue(ctx, d.Key, t.ID); err != nil {
				return Outcome{}, fmt.Errorf("transition %s to %q: %w", d.Key, d.NextStatus, err)
			}
			return Outcome{Changed: true}, nil
		}
	}

	names := make([]string, 0, len(transitions))
	for _, t := range transitions {
		names = append(names, t.To.Name)
	}
	return Outcome{}, &TransitionError{Key: d.Key, Target: d.NextStatus, Available: names}
}

// fields renders the payload as Jira create fields.
func (p *Payload) fields() map[string]interface{} {
	fields := map[string]interface{}{
		"summary":     p.Summary,
		"description": p.Description,
		"issuetype":   map[string]string{"name": "Task"},
	}
	if p.ProjectKey != "" {
		fields["project"] = map[string]string{"key": p.ProjectKey}
	}
	if len(p.Labels) > 0 {
		fields["labels"] = p.Labels
	}
	if p.Priority != "" {
		fields["priority"] = map[string]string{"name": p.Priority}
	}
	if p.FixVersion != "" {
		fields["fixVersions"] = []map[string]string{{"name": p.FixVersion}}
	}
	if p.EpicField != "" && p.EpicKey != "" {
		fields[p.EpicField] = p.EpicKey
	}
	if p.ReleaseApproachField != "" && p.ReleaseApproachValue != "" {
		fields[p.ReleaseApproachField] = map[string]string{"value": p.ReleaseApproachValue}
	}
	return fields
}
