// Package policy resolves the per-repository configuration that drives
// classification and ticket reconciliation. A Policy is built once per
// repository per run by merging the global defaults with an optional
// repo-level override file, and is immutable afterwards.
package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/greenmantle/renojira/internal/classify"
)

// baselineCriticalDeps is the fixed set of dependencies treated as critical
// everywhere. Per-repo critical_dependencies entries union with this set,
// they never replace it.
var baselineCriticalDeps = []string{
	"hibernate",
	"jsonwebtoken",
	"log4j",
	"mysql-connector",
	"openssl",
	"postgresql",
	"spring-boot",
	"spring-security",
}

// Policy is the resolved per-repository configuration.
type Policy struct {
	Enabled bool

	// CreateFor marks which categories are actionable for this repo.
	CreateFor map[classify.Category]bool

	// CriticalDeps is lower-cased exactly once, at merge time, and always
	// includes the baseline set.
	CriticalDeps []string

	// RequiredLabels gates classification: if non-empty, the PR must carry
	// at least one of these labels.
	RequiredLabels []string

	// Ticket shaping.
	ProjectKey           string
	LabelsToApply        []string
	PriorityByCategory   map[classify.Category]string
	FixVersion           string
	EpicKey              string
	EpicField            string
	ReleaseApproachField string
	ReleaseApproachValue string

	// SkipStatuses are tracker statuses that must never be touched.
	SkipStatuses []string

	// TargetStatusPath is the ordered status walk applied one step per run.
	TargetStatusPath []string

	// Source-host side effects after ticket creation.
	CommentOnPR bool
	AddPRLabels bool
}

// Rules projects the policy into the classifier's input shape.
func (p Policy) Rules() classify.Rules {
	return classify.Rules{
		CreateFor:      p.CreateFor,
		CriticalDeps:   p.CriticalDeps,
		RequiredLabels: p.RequiredLabels,
	}
}

// IsSkipStatus reports whether status is protected from mutation.
// Comparison is case-insensitive to match Jira's loose status naming.
func (p Policy) IsSkipStatus(status string) bool {
	for _, s := range p.SkipStatuses {
		if strings.EqualFold(s, status) {
			return true
		}
	}
	return false
}

// Priority returns the Jira priority name for a category, defaulting to
// Medium when unmapped.
func (p Policy) Priority(cat classify.Category) string {
	if pri, ok := p.PriorityByCategory[cat]; ok && pri != "" {
		return pri
	}
	return "Medium"
}

// Default returns the global default policy. Callers adjust the defaults
// from process settings before merging per-repo overrides into it.
func Default() Policy {
	return Policy{
		Enabled: true,
		CreateFor: map[classify.Category]bool{
			classify.CategorySecurity:    true,
			classify.CategoryMajor:       true,
			classify.CategoryCriticalDep: false,
		},
		CriticalDeps:   normalizeDeps(nil),
		RequiredLabels: []string{"renovate"},
		LabelsToApply:  []string{"renovate-pr", "generated-by-agent"},
		PriorityByCategory: map[classify.Category]string{
			classify.CategorySecurity:    "High",
			classify.CategoryMajor:       "Medium",
			classify.CategoryCriticalDep: "High",
		},
		CommentOnPR: true,
		AddPRLabels: true,
	}
}

// normalizeDeps lower-cases, dedupes, and unions deps with the baseline set.
// The result is sorted so merge output is deterministic.
func normalizeDeps(deps []string) []string {
	seen := make(map[string]bool, len(deps)+len(baselineCriticalDeps))
	for _, d := range baselineCriticalDeps {
		seen[d] = true
	}
	for _, d := range deps {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			seen[d] = true
		}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// ConfigError reports a malformed per-repo override. The repository is
// skipped; the run continues.
type ConfigError struct {
	Repo string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Repo != "" {
		return fmt.Sprintf("invalid override for %s: %v", e.Repo, e.Err)
	}
	return fmt.Sprintf("invalid override: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
