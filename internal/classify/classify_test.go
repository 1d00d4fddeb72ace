package classify

import (
	"strings"
	"testing"
)

func allEnabled() Rules {
	return Rules{
		CreateFor: map[Category]bool{
			CategorySecurity:    true,
			CategoryMajor:       true,
			CategoryCriticalDep: true,
		},
		CriticalDeps: []string{"log4j", "openssl"},
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name         string
		in           Input
		rules        Rules
		wantNeeded   bool
		wantCategory Category
	}{
		{
			name:         "CVE in body",
			in:           Input{Title: "fix: minor patch", Body: "addresses CVE-2023-44487"},
			rules:        allEnabled(),
			wantNeeded:   true,
			wantCategory: CategorySecurity,
		},
		{
			name:         "security label without CVE",
			in:           Input{Title: "bump something", Labels: []string{"Security"}},
			rules:        allEnabled(),
			wantNeeded:   true,
			wantCategory: CategorySecurity,
		},
		{
			name:         "breaking keyword",
			in:           Input{Title: "chore: breaking update of parser"},
			rules:        allEnabled(),
			wantNeeded:   true,
			wantCategory: CategoryMajor,
		},
		{
			name:         "migration keyword in body",
			in:           Input{Title: "bump lib", Body: "requires a schema migration"},
			rules:        allEnabled(),
			wantNeeded:   true,
			wantCategory: CategoryMajor,
		},
		{
			name:         "renovate update marker",
			in:           Input{Title: "deps", Body: "| update = major |"},
			rules:        allEnabled(),
			wantNeeded:   true,
			wantCategory: CategoryMajor,
		},
		{
			name:         "from/to major bump in title",
			in:           Input{Title: "Bump widget from 1.2.3 to 2.0.0"},
			rules:        Rules{CreateFor: map[Category]bool{CategoryMajor: true}},
			wantNeeded:   true,
			wantCategory: CategoryMajor,
		},
		{
			name:       "from/to minor bump is not major",
			in:         Input{Title: "Bump widget from 1.2.3 to 1.9.0"},
			rules:      Rules{CreateFor: map[Category]bool{CategoryMajor: true}},
			wantNeeded: false,
		},
		{
			name:         "renovate arrow major bump",
			in:           Input{Title: "deps", Body: "upgrades widget 2.9.3 -> 3.2.3"},
			rules:        Rules{CreateFor: map[Category]bool{CategoryMajor: true}},
			wantNeeded:   true,
			wantCategory: CategoryMajor,
		},
		{
			name:       "renovate arrow downgrade is not major",
			in:         Input{Title: "deps", Body: "pins widget 3.2.3 -> 2.9.3"},
			rules:      Rules{CreateFor: map[Category]bool{CategoryMajor: true}},
			wantNeeded: false,
		},
		{
			name:         "critical dependency substring",
			in:           Input{Title: "Bump openssl-sys from 0.9.1 to 0.9.2"},
			rules:        Rules{CreateFor: map[Category]bool{CategoryCriticalDep: true}, CriticalDeps: []string{"openssl"}},
			wantNeeded:   true,
			wantCategory: CategoryCriticalDep,
		},
		{
			name:       "nothing matches",
			in:         Input{Title: "Bump left-pad from 1.0.1 to 1.0.2"},
			rules:      allEnabled(),
			wantNeeded: false,
		},
		{
			name:       "unparsable version fragment is skipped",
			in:         Input{Title: "Bump widget from latest to stable"},
			rules:      Rules{CreateFor: map[Category]bool{CategoryMajor: true}},
			wantNeeded: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.in, tt.rules)
			if got.Needed != tt.wantNeeded {
				t.Fatalf("Evaluate(%q) needed = %v, want %v (reason %q)",
					tt.in.Title, got.Needed, tt.wantNeeded, got.Reason)
			}
			if tt.wantNeeded && got.Category != tt.wantCategory {
				t.Errorf("Evaluate(%q) category = %q, want %q",
					tt.in.Title, got.Category, tt.wantCategory)
			}
			if !got.Needed && got.Reason == "" {
				t.Errorf("NotNeeded result must carry a reason")
			}
		})
	}
}

// A PR carrying both a CVE token and a breaking keyword classifies as
// security: first enabled rule wins, later rules are never evaluated.
func TestEvaluatePrecedence(t *testing.T) {
	in := Input{
		Title: "breaking: bump log4j from 1.2.3 to 2.0.0",
		Body:  "fixes CVE-2021-44228",
	}
	got := Evaluate(in, allEnabled())
	if !got.Needed || got.Category != CategorySecurity {
		t.Fatalf("got %+v, want security", got)
	}
}

// A major version bump of a critical dependency classifies as major:
// precedence puts the major rule ahead of critical-dep.
func TestEvaluateMajorOverCriticalDep(t *testing.T) {
	in := Input{Title: "Bump log4j from 1.2.3 to 2.0.0"}
	rules := Rules{
		CreateFor: map[Category]bool{
			CategoryMajor:       true,
			CategoryCriticalDep: true,
		},
		CriticalDeps: []string{"log4j"},
	}
	got := Evaluate(in, rules)
	if !got.Needed || got.Category != CategoryMajor {
		t.Fatalf("got %+v, want major", got)
	}
}

func TestEvaluateDisabledCategoryNamesRule(t *testing.T) {
	in := Input{Title: "fix: minor patch", Body: "CVE-2023-44487"}
	rules := Rules{CreateFor: map[Category]bool{CategorySecurity: false}}
	got := Evaluate(in, rules)
	if got.Needed {
		t.Fatalf("disabled category must not classify, got %+v", got)
	}
	if want := "security"; !strings.Contains(got.Reason, want) {
		t.Errorf("reason %q should reference the disabled %s rule", got.Reason, want)
	}
}

func TestEvaluateRequiredLabelGate(t *testing.T) {
	rules := allEnabled()
	rules.RequiredLabels = []string{"renovate"}

	// Content that would certainly classify, but the gate runs first.
	in := Input{Title: "breaking", Body: "CVE-2024-12345", Labels: []string{"dependencies"}}
	got := Evaluate(in, rules)
	if got.Needed {
		t.Fatalf("gate must short-circuit, got %+v", got)
	}
	if got.Reason != "missing required label" {
		t.Errorf("reason = %q", got.Reason)
	}

	// Label matching is case-insensitive.
	in.Labels = []string{"Renovate"}
	if got := Evaluate(in, rules); !got.Needed {
		t.Fatalf("gate should pass with matching label, got %+v", got)
	}
}

// Same inputs always produce the same result.
func TestEvaluateDeterminism(t *testing.T) {
	in := Input{Title: "Bump spring-boot from 2.7.0 to 3.0.0", Body: "breaking"}
	rules := allEnabled()
	first := Evaluate(in, rules)
	for i := 0; i < 50; i++ {
		if got := Evaluate(in, rules); got != first {
			t.Fatalf("run %d: got %+v, want %+v", i, got, first)
		}
	}
}
