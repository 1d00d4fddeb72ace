package dedup

import (
	"fmt"
	"strings"

	"github.com/greenmantle/renojira/internal/policy"
)

// Token is the deterministic marker tying a ticket to a pull request. It is
// embedded in the ticket summary at creation time and is what the summary
// search strategy queries for. Changing this rule breaks re-discovery of
// previously created tickets; treat it as a wire format.
func Token(repo string, number int) string {
	return fmt.Sprintf("%s#%d", repo, number)
}

// Summary builds the ticket summary for a pull request. The token rides in
// brackets so the title stays readable while staying searchable.
func Summary(repo string, number int, title string) string {
	return fmt.Sprintf("Dependency update [%s]: %s", Token(repo, number), title)
}

// searchJQL builds the dedup search query for a PR token.
func searchJQL(projectKey, token string) string {
	q := fmt.Sprintf("summary ~ %s", quoteJQL(token))
	if projectKey != "" {
		q = fmt.Sprintf("project = %s AND %s", quoteJQL(projectKey), q)
	}
	return q + " ORDER BY created DESC"
}

// candidateJQL scopes the remote-link pass to issues this tool plausibly
// created: the configured project, narrowed by marker labels when set.
func candidateJQL(pol policy.Policy) string {
	var clauses []string
	if pol.ProjectKey != "" {
		clauses = append(clauses, fmt.Sprintf("project = %s", quoteJQL(pol.ProjectKey)))
	}
	if len(pol.LabelsToApply) > 0 {
		quoted := make([]string, 0, len(pol.LabelsToApply))
		for _, l := range pol.LabelsToApply {
			quoted = append(quoted, quoteJQL(l))
		}
		clauses = append(clauses, fmt.Sprintf("labels in (%s)", strings.Join(quoted, ", ")))
	}
	if len(clauses) == 0 {
		clauses = append(clauses, "summary ~ \"Dependency update\"")
	}
	return strings.Join(clauses, " AND ") + " ORDER BY created DESC"
}

// quoteJQL wraps a value in double quotes, escaping embedded quotes and
// backslashes.
func quoteJQL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
