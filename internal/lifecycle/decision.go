// Package lifecycle is the ticket state machine. Decide is pure: the
// decision is fully determined by (classification, dedup match, policy,
// mode, run counters). Apply executes a decision through the collaborators
// and is the only place tracker or host writes happen.
package lifecycle

import (
	"fmt"
	"strings"

	"github.com/greenmantle/renojira/internal/classify"
	"github.com/greenmantle/renojira/internal/dedup"
	"github.com/greenmantle/renojira/internal/policy"
)

// Mode is the run mode. Dry-run is the default; it forbids every mutation
// except an explicitly whitelisted repair.
type Mode string

const (
	ModeDryRun Mode = "dry-run"
	ModeRun    Mode = "run"
)

// ParseMode normalizes a mode string, defaulting to dry-run on anything
// unrecognized. Defaulting to the non-mutating mode is deliberate.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeRun)) {
		return ModeRun
	}
	return ModeDryRun
}

// RunCounters is the only mutable state the state machine touches. It is
// scoped to one process execution, threaded explicitly through the loop,
// and never persisted.
type RunCounters struct {
	TicketsCreated int

	// MaxNewTickets caps creations per run; 0 means unbounded.
	MaxNewTickets int
}

// CapReached reports whether another creation would exceed the cap.
func (c *RunCounters) CapReached() bool {
	return c.MaxNewTickets > 0 && c.TicketsCreated >= c.MaxNewTickets
}

// Kind enumerates the terminal reconciliation decisions.
type Kind string

const (
	KindCreateNew             Kind = "create"
	KindSkipExistingProtected Kind = "skip-protected"
	KindSkipExistingTracked   Kind = "skip-tracked"
	KindRepairExisting        Kind = "repair"
	KindTransitionExisting    Kind = "transition"
	KindSkipUnclassified      Kind = "skip-unclassified"
	KindSkipCapReached        Kind = "skip-cap"
	KindSkipDryRun            Kind = "skip-dry-run"
)

// Payload is everything needed to create a new ticket.
type Payload struct {
	ProjectKey           string
	Summary              string
	Description          string
	Labels               []string
	Priority             string
	FixVersion           string
	EpicKey              string
	EpicField            string
	ReleaseApproachField string
	ReleaseApproachValue string
}

// Decision is the single output artifact per pull request, consumed by
// Apply and by audit logging.
type Decision struct {
	Kind       Kind
	Key        string                 // existing ticket, when found
	Payload    *Payload               // KindCreateNew only
	Fields     map[string]interface{} // KindRepairExisting only
	NextStatus string                 // KindTransitionExisting only
	Reason     string
	WouldHave  *Decision // KindSkipDryRun only
}

// Describe renders the decision for the audit line.
func (d Decision) Describe() string {
	if d.Kind == KindSkipDryRun && d.WouldHave != nil {
		return fmt.Sprintf("%s(%s)", d.Kind, d.WouldHave.Kind)
	}
	return string(d.Kind)
}

// Manager makes and applies reconciliation decisions.
type Manager struct {
	Tracker TrackerWriter
	Host    HostWriter

	Mode Mode

	// RepairFields enables re-applying labels/epic/fixVersion on existing
	// tickets (the FIX_TICKET_LABELS flag).
	RepairFields bool

	// RepairInDryRun whitelists the field-repair class to act during
	// dry-run. Creation is never whitelisted.
	RepairInDryRun bool

	Counters *RunCounters
}

// Decide maps (classification, match, policy) to a terminal decision.
// It performs no I/O and never mutates counters; only Apply does.
func (m *Manager) Decide(res classify.Result, match dedup.Match, pol policy.Policy, pr PRRef) Decision {
	if !res.Needed {
		return Decision{Kind: KindSkipUnclassified, Reason: res.Reason}
	}

	if !match.Found {
		if m.Counters.CapReached() {
			return Decision{
				Kind:   KindSkipCapReached,
				Reason: fmt.Sprintf("ticket cap reached (%d this run)", m.Counters.TicketsCreated),
			}
		}
		d := Decision{
			Kind:    KindCreateNew,
			Payload: m.buildPayload(res, pol, pr),
			Reason:  res.Reason,
		}
		// Creation is never permitted in dry-run, whatever the flags.
		return m.gate(d)
	}

	if pol.IsSkipStatus(match.Status) {
		// Absolute guard: protected statuses are never mutated.
		return Decision{
			Kind:   KindSkipExistingProtected,
			Key:    match.Key,
			Reason: fmt.Sprintf("status %q is protected", match.Status),
		}
	}

	if m.RepairFields {
		d := Decision{
			Kind:   KindRepairExisting,
			Key:    match.Key,
			Fields: repairFields(pol),
			Reason: "re-apply ticket fields",
		}
		if m.Mode == ModeDryRun && !m.RepairInDryRun {
			return m.gate(d)
		}
		return d
	}

	if next, ok := nextStatus(pol.TargetStatusPath, match.Status); ok {
		d := Decision{
			Kind:       KindTransitionExisting,
			Key:        match.Key,
			NextStatus: next,
			Reason:     fmt.Sprintf("advance %q toward %q", match.Status, pol.TargetStatusPath[len(pol.TargetStatusPath)-1]),
		}
		return m.gate(d)
	}

	return Decision{
		Kind:   KindSkipExistingTracked,
		Key:    match.Key,
		Reason: fmt.Sprintf("already tracked by %s (via %s)", match.Key, match.Source),
	}
}

// gate downgrades a mutating decision to a dry-run skip when the mode
// forbids mutation.
func (m *Manager) gate(d Decision) Decision {
	if m.Mode != ModeDryRun {
		return d
	}
	would := d
	return Decision{Kind: KindSkipDryRun, Key: d.Key, Reason: d.Reason, WouldHave: &would}
}

// PRRef is the slice of the pull request the decision needs for payload
// construction. Kept separate from githost.PullRequest so Decide stays free
// of collaborator types.
type PRRef struct {
	Repo   string
	Number int
	Title  string
	Body   string
	URL    string
}

const bodyExcerptLimit = 1000

func (m *Manager) buildPayload(res classify.Result, pol policy.Policy, pr PRRef) *Payload {
	excerpt := pr.Body
	if len(excerpt) > bodyExcerptLimit {
		excerpt = excerpt[:bodyExcerptLimit]
	}
	description := fmt.Sprintf("Dependency update PR: %s\n\nReason detected: %s\n\nPR excerpt:\n%s",
		pr.URL, res.Reason, excerpt)

	return &Payload{
		ProjectKey:           pol.ProjectKey,
		Summary:              dedup.Summary(pr.Repo, pr.Number, pr.Title),
		Description:          description,
		Labels:               pol.LabelsToApply,
		Priority:             pol.Priority(res.Category),
		FixVersion:           pol.FixVersion,
		EpicKey:              pol.EpicKey,
		EpicField:            pol.EpicField,
		ReleaseApproachField: pol.ReleaseApproachField,
		ReleaseApproachValue: pol.ReleaseApproachValue,
	}
}

// repairFields builds the idempotent field set re-applied to an existing
// ticket. Writing the same values twice is a no-op at the tracker.
func repairFields(pol policy.Policy) map[string]interface{} {
	fields := map[string]interface{}{}
	if len(pol.LabelsToApply) > 0 {
		fields["labels"] = pol.LabelsToApply
	}
	if pol.FixVersion != "" {
		fields["fixVersions"] = []map[string]string{{"name": pol.FixVersion}}
	}
	if pol.EpicField != "" && pol.EpicKey != "" {
		fields[pol.EpicField] = pol.EpicKey
	}
	if pol.ReleaseApproachField != "" && pol.ReleaseApproachValue != "" {
		fields[pol.ReleaseApproachField] = map[string]string{"value": pol.ReleaseApproachValue}
	}
	return fields
}

// nextStatus returns the path element after the current status. The manager
// never jumps multiple states in one call; subsequent runs advance further.
func nextStatus(path []string, current string) (string, bool) {
	for i, s := range path {
		if strings.EqualFold(s, current) {
			if i+1 < len(path) {
				return path[i+1], true
			}
			return "", false // terminal element, nothing to do
		}
	}
	return "", false // current status not on the path
}
