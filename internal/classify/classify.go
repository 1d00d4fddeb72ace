// Package classify decides whether a dependency-update pull request needs a
// tracking ticket, and under which category. Evaluation is a pure function of
// the pull request snapshot and the resolved repository policy: no network,
// no clock, no ambient state.
package classify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Category is the classification outcome that drives ticket policy.
type Category string

const (
	CategorySecurity    Category = "security"
	CategoryMajor       Category = "major"
	CategoryCriticalDep Category = "critical-dep"
)

// Categories lists every valid category in precedence order.
// Security outranks major, major outranks critical-dep.
var Categories = []Category{CategorySecurity, CategoryMajor, CategoryCriticalDep}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	switch c {
	case CategorySecurity, CategoryMajor, CategoryCriticalDep:
		return true
	}
	return false
}

// Result is the outcome of classifying one pull request. Construct via
// NeededFor or NotNeeded; a zero Result means "not needed, no reason".
type Result struct {
	Needed       bool
	Category     Category
	Reason       string
	MatchedToken string
}

// NeededFor builds a positive classification.
func NeededFor(cat Category, reason, token string) Result {
	return Result{Needed: true, Category: cat, Reason: reason, MatchedToken: token}
}

// NotNeeded builds a negative classification with an operator-facing reason.
func NotNeeded(reason string) Result {
	return Result{Needed: false, Reason: reason}
}

// Input is the read-only pull request snapshot the classifier sees.
type Input struct {
	Title  string
	Body   string
	Labels []string
}

// Rules is the slice of the resolved repository policy the classifier reads.
// CriticalDeps entries must already be lower-cased (policy.Merge guarantees
// this).
type Rules struct {
	CreateFor      map[Category]bool
	CriticalDeps   []string
	RequiredLabels []string
}

var (
	cveRe = regexp.MustCompile(`(?i)\bCVE-\d{4}-\d{4,}\b`)

	// Word-bounded, so this also catches Renovate's "update = major"
	// dashboard marker.
	majorKeywordRe = regexp.MustCompile(`(?i)\b(major|breaking|migration)\b`)

	// "from 1.2.3 to 2.0.0" shaped fragment. Only the major components
	// matter; minor/patch are optional.
	fromToRe = regexp.MustCompile(`(?i)\bfrom\s+v?(\d+)(?:\.\d+)*(?:[-+][0-9A-Za-z.\-]+)?\s+to\s+v?(\d+)(?:\.\d+)*(?:[-+][0-9A-Za-z.\-]+)?\b`)

	// Renovate summary arrow form, e.g. "2.9.3 -> 3.2.3".
	arrowRe = regexp.MustCompile(`\b(\d+)(?:\.\d+){0,2}\s*->\s*(\d+)(?:\.\d+){0,2}\b`)
)

type evaluator struct {
	category Category
	match    func(Input, Rules) (reason, token string, ok bool)
}

// evaluators run in fixed precedence order; the first enabled match wins and
// later rules are never evaluated.
var evaluators = []evaluator{
	{CategorySecurity, matchSecurity},
	{CategoryMajor, matchMajor},
	{CategoryCriticalDep, matchCriticalDep},
}

// Evaluate classifies a pull request under the given rules. The required-label
// gate runs before any rule. A rule that matches while its category is
// disabled produces a NotNeeded result naming that rule, for diagnostics.
func Evaluate(in Input, rules Rules) Result {
	if len(rules.RequiredLabels) > 0 && !hasAnyLabel(in.Labels, rules.RequiredLabels) {
		return NotNeeded("missing required label")
	}

	for _, ev := range evaluators {
		reason, token, ok := ev.match(in, rules)
		if !ok {
			continue
		}
		if !rules.CreateFor[ev.category] {
			return NotNeeded(fmt.Sprintf("matched %s rule (%s) but category is disabled", ev.category, reason))
		}
		return NeededFor(ev.category, reason, token)
	}

	return NotNeeded("no classification rule matched")
}

func matchSecurity(in Input, _ Rules) (string, string, bool) {
	for _, l := range in.Labels {
		if strings.EqualFold(l, "security") {
			return "security label present", "security", true
		}
	}
	if m := cveRe.FindString(in.Title + " " + in.Body); m != "" {
		return "CVE identifier detected", strings.ToUpper(m), true
	}
	return "", "", false
}

func matchMajor(in Input, _ Rules) (string, string, bool) {
	text := in.Title + " " + in.Body
	if m := majorKeywordRe.FindString(text); m != "" {
		return "breaking-change keyword detected", strings.ToLower(m), true
	}
	if from, to, ok := parseBump(fromToRe, in.Title); ok && to > from {
		return fmt.Sprintf("semver-major bump %d to %d", from, to), "", true
	}
	if from, to, ok := parseBump(arrowRe, text); ok && to > from {
		return fmt.Sprintf("semver-major bump %d to %d", from, to), "", true
	}
	return "", "", false
}

func matchCriticalDep(in Input, rules Rules) (string, string, bool) {
	text := strings.ToLower(in.Title + " " + in.Body)
	for _, dep := range rules.CriticalDeps {
		if dep != "" && strings.Contains(text, dep) {
			return "updates a critical dependency", dep, true
		}
	}
	return "", "", false
}

// parseBump extracts the source and target major components from the first
// match of re in text. A fragment that does not parse is skipped, never
// treated as a match.
func parseBump(re *regexp.Regexp, text string) (from, to int, ok bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	from, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	to, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return from, to, true
}

func hasAnyLabel(labels, required []string) bool {
	for _, want := range required {
		for _, have := range labels {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}
