package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/greenmantle/renojira/internal/policy"
)

// Settings is the process-level configuration, sourced from an optional
// rj.yaml file and environment variables. Repo-level policy overrides are a
// separate layer (internal/policy); these settings shape the run itself and
// the global default policy.
type Settings struct {
	// GitHub targeting.
	GitHubToken  string
	Repo         string
	Repos        []string
	RepoListFile string
	Org          string
	TopicFilter  string
	NameRegex    string
	PageSize     int

	// Jira connection.
	JiraBaseURL    string
	JiraEmail      string
	JiraAPIToken   string
	JiraPAT        string
	JiraAPIVersion string

	// Default ticket shaping.
	ProjectKey           string
	FixVersion           string
	EpicKey              string
	EpicField            string
	ReleaseApproachField string
	ReleaseApproachValue string
	SkipStatuses         []string
	TargetStatusPath     []string

	// Run behavior.
	Mode            string
	MaxNewTickets   int
	OnlyPR          int
	Pacing          time.Duration
	FixTicketLabels bool
	RepairInDryRun  bool
	VerboseDedupe   bool
	LocalConfigPath string
}

// envBindings maps viper keys to the environment variables operators set.
var envBindings = map[string]string{
	"github.token":           "GITHUB_TOKEN",
	"github.repo":            "GITHUB_REPO",
	"github.repo_list":       "REPO_LIST",
	"github.repo_list_file":  "REPO_LIST_FILE",
	"github.org":             "ORG_NAME",
	"github.topic_filter":    "REPO_TOPIC_FILTER",
	"github.name_regex":      "REPO_NAME_REGEX",
	"github.page_size":       "PAGE_SIZE",
	"jira.base_url":          "JIRA_BASE_URL",
	"jira.email":             "JIRA_USER_EMAIL",
	"jira.api_token":         "JIRA_API_TOKEN",
	"jira.pat":               "JIRA_PAT",
	"jira.api_version":       "JIRA_API_VERSION",
	"jira.project":           "JIRA_PROJECT_KEY",
	"jira.fix_version":       "JIRA_FIX_VERSION",
	"jira.epic_key":          "JIRA_EPIC_KEY",
	"jira.epic_field":        "JIRA_EPIC_LINK_FIELD",
	"jira.release_field":     "JIRA_RELEASE_APPROACH_FIELD",
	"jira.release_value":     "JIRA_RELEASE_APPROACH_VALUE",
	"jira.skip_statuses":     "JIRA_SKIP_STATUSES",
	"jira.status_path":       "JIRA_TARGET_STATUS_PATH",
	"run.mode":               "MODE",
	"run.max_new_tickets":    "MAX_NEW_JIRA_TICKETS",
	"run.only_pr":            "ONLY_PR",
	"run.fix_ticket_labels":  "FIX_TICKET_LABELS",
	"run.repair_in_dry_run":  "FIX_LABELS_IN_DRY_RUN",
	"run.verbose_dedupe":     "VERBOSE_JIRA_DEDUPE",
	"run.local_config_path":  "LOCAL_CONFIG_PATH",
	"run.pacing_ms":          "PACING_MS",
}

// loadSettings builds Settings from rj.yaml (optional) and the environment.
func loadSettings() (*Settings, error) {
	v := viper.New()
	v.SetConfigName("rj")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read rj.yaml: %w", err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	v.SetDefault("github.page_size", 50)
	v.SetDefault("jira.api_version", "2")
	v.SetDefault("run.mode", "dry-run")
	v.SetDefault("run.pacing_ms", 500)

	s := &Settings{
		GitHubToken:          v.GetString("github.token"),
		Repo:                 v.GetString("github.repo"),
		Repos:                splitList(v.GetString("github.repo_list")),
		RepoListFile:         v.GetString("github.repo_list_file"),
		Org:                  v.GetString("github.org"),
		TopicFilter:          v.GetString("github.topic_filter"),
		NameRegex:            v.GetString("github.name_regex"),
		PageSize:             v.GetInt("github.page_size"),
		JiraBaseURL:          v.GetString("jira.base_url"),
		JiraEmail:            v.GetString("jira.email"),
		JiraAPIToken:         v.GetString("jira.api_token"),
		JiraPAT:              v.GetString("jira.pat"),
		JiraAPIVersion:       v.GetString("jira.api_version"),
		ProjectKey:           v.GetString("jira.project"),
		FixVersion:           v.GetString("jira.fix_version"),
		EpicKey:              v.GetString("jira.epic_key"),
		EpicField:            v.GetString("jira.epic_field"),
		ReleaseApproachField: v.GetString("jira.release_field"),
		ReleaseApproachValue: v.GetString("jira.release_value"),
		SkipStatuses:         splitList(v.GetString("jira.skip_statuses")),
		TargetStatusPath:     splitList(v.GetString("jira.status_path")),
		Mode:                 v.GetString("run.mode"),
		MaxNewTickets:        v.GetInt("run.max_new_tickets"),
		OnlyPR:               v.GetInt("run.only_pr"),
		Pacing:               time.Duration(v.GetInt("run.pacing_ms")) * time.Millisecond,
		FixTicketLabels:      v.GetBool("run.fix_ticket_labels"),
		RepairInDryRun:       v.GetBool("run.repair_in_dry_run"),
		VerboseDedupe:        v.GetBool("run.verbose_dedupe"),
		LocalConfigPath:      v.GetString("run.local_config_path"),
	}
	return s, nil
}

// validate checks the settings that make the whole run unrecoverable when
// missing. These are the only fatal configuration errors.
func (s *Settings) validate() error {
	if s.GitHubToken == "" {
		return fmt.Errorf("GITHUB_TOKEN required")
	}
	if s.JiraBaseURL == "" {
		return fmt.Errorf("JIRA_BASE_URL required")
	}
	if s.JiraPAT == "" && (s.JiraEmail == "" || s.JiraAPIToken == "") {
		return fmt.Errorf("jira credentials missing: set JIRA_PAT or JIRA_USER_EMAIL/JIRA_API_TOKEN")
	}
	return nil
}

// defaultPolicy derives the global default policy from process settings.
// Repo overrides merge into this.
func (s *Settings) defaultPolicy() policy.Policy {
	def := policy.Default()
	def.ProjectKey = s.ProjectKey
	def.FixVersion = s.FixVersion
	def.EpicKey = s.EpicKey
	def.EpicField = s.EpicField
	def.ReleaseApproachField = s.ReleaseApproachField
	def.ReleaseApproachValue = s.ReleaseApproachValue
	if len(s.SkipStatuses) > 0 {
		def.SkipStatuses = s.SkipStatuses
	}
	if len(s.TargetStatusPath) > 0 {
		def.TargetStatusPath = s.TargetStatusPath
	}
	return def
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
