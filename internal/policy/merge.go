package policy

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/greenmantle/renojira/internal/classify"
)

// Override is the parsed shape of a repo-level override file
// (.github/renovate-jira.yml). Pointer fields distinguish "absent" from
// "present but zero": absent fields keep the default.
type Override struct {
	Enabled              *bool            `yaml:"enabled"`
	CreateFor            map[string]*bool `yaml:"create_jira_for"`
	CriticalDependencies *[]string        `yaml:"critical_dependencies"`
	Labels               *overrideLabels  `yaml:"labels"`
	Jira                 *overrideJira    `yaml:"jira"`
	GitHub               *overrideGitHub  `yaml:"github"`
}

type overrideLabels struct {
	Require *[]string `yaml:"require"`
	Add     *[]string `yaml:"add"`
}

type overrideJira struct {
	Project              *string           `yaml:"project"`
	Priority             map[string]string `yaml:"priority"`
	FixVersion           *string           `yaml:"fix_version"`
	EpicKey              *string           `yaml:"epic_key"`
	EpicField            *string           `yaml:"epic_field"`
	ReleaseApproachField *string           `yaml:"release_approach_field"`
	ReleaseApproachValue *string           `yaml:"release_approach_value"`
	SkipStatuses         *[]string         `yaml:"skip_statuses"`
	TargetStatusPath     *[]string         `yaml:"target_status_path"`
}

type overrideGitHub struct {
	Comment   *bool `yaml:"comment"`
	AddLabels *bool `yaml:"add_labels"`
}

// ParseOverride decodes raw override YAML. Empty input means "no override"
// and returns nil. A document that is not a mapping is a ConfigError.
func ParseOverride(raw []byte, repo string) (*Override, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &ConfigError{Repo: repo, Err: err}
	}
	if len(doc.Content) == 0 {
		return nil, nil // empty document
	}
	if doc.Content[0].Kind != yaml.MappingNode {
		return nil, &ConfigError{Repo: repo, Err: fmt.Errorf("override must be a YAML mapping, got %s", nodeKind(doc.Content[0].Kind))}
	}

	var ov Override
	if err := doc.Decode(&ov); err != nil {
		return nil, &ConfigError{Repo: repo, Err: err}
	}

	for key := range ov.CreateFor {
		if !classify.Category(key).Valid() {
			return nil, &ConfigError{Repo: repo, Err: fmt.Errorf("unknown create_jira_for category %q", key)}
		}
	}

	return &ov, nil
}

// Merge combines the default policy with a per-repo override. Scalars
// override when present; list fields replace the default when present,
// except critical_dependencies, which unions with the baseline critical set.
// Merge never mutates def; the returned Policy owns its own maps and slices.
func Merge(def Policy, ov *Override) Policy {
	out := def.clone()
	if ov == nil {
		return out
	}

	if ov.Enabled != nil {
		out.Enabled = *ov.Enabled
	}
	for key, val := range ov.CreateFor {
		if val != nil {
			out.CreateFor[classify.Category(key)] = *val
		}
	}
	if ov.CriticalDependencies != nil {
		out.CriticalDeps = normalizeDeps(*ov.CriticalDependencies)
	}
	if ov.Labels != nil {
		if ov.Labels.Require != nil {
			out.RequiredLabels = copyList(*ov.Labels.Require)
		}
		if ov.Labels.Add != nil {
			out.LabelsToApply = copyList(*ov.Labels.Add)
		}
	}
	if ov.Jira != nil {
		j := ov.Jira
		if j.Project != nil {
			out.ProjectKey = *j.Project
		}
		for key, val := range j.Priority {
			if classify.Category(key).Valid() && val != "" {
				out.PriorityByCategory[classify.Category(key)] = val
			}
		}
		if j.FixVersion != nil {
			out.FixVersion = *j.FixVersion
		}
		if j.EpicKey != nil {
			out.EpicKey = *j.EpicKey
		}
		if j.EpicField != nil {
			out.EpicField = *j.EpicField
		}
		if j.ReleaseApproachField != nil {
			out.ReleaseApproachField = *j.ReleaseApproachField
		}
		if j.ReleaseApproachValue != nil {
			out.ReleaseApproachValue = *j.ReleaseApproachValue
		}
		if j.SkipStatuses != nil {
			out.SkipStatuses = copyList(*j.SkipStatuses)
		}
		if j.TargetStatusPath != nil {
			out.TargetStatusPath = copyList(*j.TargetStatusPath)
		}
	}
	if ov.GitHub != nil {
		if ov.GitHub.Comment != nil {
			out.CommentOnPR = *ov.GitHub.Comment
		}
		if ov.GitHub.AddLabels != nil {
			out.AddPRLabels = *ov.GitHub.AddLabels
		}
	}

	return out
}

func (p Policy) clone() Policy {
	out := p
	out.CreateFor = make(map[classify.Category]bool, len(p.CreateFor))
	for k, v := range p.CreateFor {
		out.CreateFor[k] = v
	}
	out.PriorityByCategory = make(map[classify.Category]string, len(p.PriorityByCategory))
	for k, v := range p.PriorityByCategory {
		out.PriorityByCategory[k] = v
	}
	out.CriticalDeps = copyList(p.CriticalDeps)
	out.RequiredLabels = copyList(p.RequiredLabels)
	out.LabelsToApply = copyList(p.LabelsToApply)
	out.SkipStatuses = copyList(p.SkipStatuses)
	out.TargetStatusPath = copyList(p.TargetStatusPath)
	return out
}

func copyList(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func nodeKind(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "unknown"
}
