package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/greenmantle/renojira/internal/dedup"
	"github.com/greenmantle/renojira/internal/engine"
	"github.com/greenmantle/renojira/internal/githost"
	"github.com/greenmantle/renojira/internal/jira"
	"github.com/greenmantle/renojira/internal/lifecycle"
	"github.com/greenmantle/renojira/internal/ui"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan pull requests and reconcile Jira tickets",
	Long: `Scan open dependency-update pull requests across the targeted
repositories and reconcile each with its tracking Jira ticket.

Targeting (first match wins):
  --repo owner/name        single repository
  --repos a/x,b/y          explicit list
  --repo-file path         file-backed list ('#' comments allowed)
  --org name               organization scan (--topic, --name-regex filter)

Modes:
  dry-run (default)        decide everything, mutate nothing
  run                      full mutation

Safety:
  --max-new-tickets N      cap ticket creation per run
  --only-pr N              restrict to one PR number (smoke testing)

Examples:
  rj scan --repo acme/payments
  rj scan --org acme --topic renovate --mode run --max-new-tickets 3
  rj scan --repo acme/payments --only-pr 142 --mode run`,
	Run: runScan,
}

func init() {
	scanCmd.Flags().String("repo", "", "Single repository (owner/name)")
	scanCmd.Flags().StringSlice("repos", nil, "Explicit repository list")
	scanCmd.Flags().String("repo-file", "", "File with one repository per line")
	scanCmd.Flags().String("org", "", "Organization to scan")
	scanCmd.Flags().String("topic", "", "Only include org repos with this topic")
	scanCmd.Flags().String("name-regex", "", "Only include org repos matching this regex")
	scanCmd.Flags().String("mode", "", "Run mode: dry-run or run (default dry-run)")
	scanCmd.Flags().Int("max-new-tickets", 0, "Cap on new tickets this run (0 = unbounded)")
	scanCmd.Flags().Int("only-pr", 0, "Process only this PR number")
	scanCmd.Flags().Duration("pacing", 0, "Delay between pull requests")
	scanCmd.Flags().Bool("fix-ticket-labels", false, "Re-apply fields on existing tickets")
	scanCmd.Flags().Bool("repair-in-dry-run", false, "Whitelist field repair during dry-run")
	scanCmd.Flags().String("local-config", "", "Local override file applied to every repo")

	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, _ []string) {
	settings, err := loadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	applyScanFlags(cmd, settings)

	if err := settings.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	eng, sel, err := buildEngine(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	report, err := eng.Run(rootCtx, sel)
	if err != nil {
		var authErr *jira.AuthError
		if errors.As(err, &authErr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", authErr)
			fmt.Fprintln(os.Stderr, "Check JIRA_PAT or JIRA_USER_EMAIL/JIRA_API_TOKEN")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}

	if jsonOutput {
		outputJSON(report)
		return
	}
	printSummary(report, eng.Manager.Mode)
}

// applyScanFlags lets explicitly set flags win over env/config settings.
func applyScanFlags(cmd *cobra.Command, s *Settings) {
	if cmd.Flags().Changed("repo") {
		s.Repo, _ = cmd.Flags().GetString("repo")
	}
	if cmd.Flags().Changed("repos") {
		s.Repos, _ = cmd.Flags().GetStringSlice("repos")
	}
	if cmd.Flags().Changed("repo-file") {
		s.RepoListFile, _ = cmd.Flags().GetString("repo-file")
	}
	if cmd.Flags().Changed("org") {
		s.Org, _ = cmd.Flags().GetString("org")
	}
	if cmd.Flags().Changed("topic") {
		s.TopicFilter, _ = cmd.Flags().GetString("topic")
	}
	if cmd.Flags().Changed("name-regex") {
		s.NameRegex, _ = cmd.Flags().GetString("name-regex")
	}
	if cmd.Flags().Changed("mode") {
		s.Mode, _ = cmd.Flags().GetString("mode")
	}
	if cmd.Flags().Changed("max-new-tickets") {
		s.MaxNewTickets, _ = cmd.Flags().GetInt("max-new-tickets")
	}
	if cmd.Flags().Changed("only-pr") {
		s.OnlyPR, _ = cmd.Flags().GetInt("only-pr")
	}
	if cmd.Flags().Changed("pacing") {
		s.Pacing, _ = cmd.Flags().GetDuration("pacing")
	}
	if cmd.Flags().Changed("fix-ticket-labels") {
		s.FixTicketLabels, _ = cmd.Flags().GetBool("fix-ticket-labels")
	}
	if cmd.Flags().Changed("repair-in-dry-run") {
		s.RepairInDryRun, _ = cmd.Flags().GetBool("repair-in-dry-run")
	}
	if cmd.Flags().Changed("local-config") {
		s.LocalConfigPath, _ = cmd.Flags().GetString("local-config")
	}
}

// buildEngine wires the collaborators into the engine.
func buildEngine(s *Settings) (*engine.Engine, githost.Selector, error) {
	tracker := jira.NewClient(s.JiraBaseURL, s.JiraEmail, s.JiraAPIToken, s.JiraPAT, s.JiraAPIVersion)
	host := githost.NewGitHub(s.GitHubToken, s.PageSize)

	var localOverride []byte
	if s.LocalConfigPath != "" {
		raw, err := os.ReadFile(s.LocalConfigPath) // #nosec G304 - operator-supplied path
		if err != nil {
			return nil, githost.Selector{}, fmt.Errorf("read local config %s: %w", s.LocalConfigPath, err)
		}
		localOverride = raw
	}

	mode := lifecycle.ParseMode(s.Mode)
	manager := &lifecycle.Manager{
		Tracker:        tracker,
		Host:           host,
		Mode:           mode,
		RepairFields:   s.FixTicketLabels,
		RepairInDryRun: s.RepairInDryRun,
		Counters:       &lifecycle.RunCounters{MaxNewTickets: s.MaxNewTickets},
	}

	eng := &engine.Engine{
		Host:          host,
		Tracker:       tracker,
		Resolver:      &dedup.Resolver{Tracker: tracker, Verbose: s.VerboseDedupe},
		Manager:       manager,
		Defaults:      s.defaultPolicy(),
		LocalOverride: localOverride,
		OnlyPR:        s.OnlyPR,
		Pacing:        s.Pacing,
		AuditOut:      os.Stdout,
	}

	sel := githost.Selector{
		Repo:      s.Repo,
		Repos:     s.Repos,
		ListFile:  s.RepoListFile,
		Org:       s.Org,
		Topic:     s.TopicFilter,
		NameRegex: s.NameRegex,
	}
	return eng, sel, nil
}

func printSummary(rep engine.Report, mode lifecycle.Mode) {
	if quietFlag {
		return
	}
	fmt.Println()
	fmt.Println(ui.HeaderStyle.Render(fmt.Sprintf("Scan complete (%s)", mode)))
	fmt.Printf("  %s %d repo(s), %d pull request(s)\n", ui.MutedStyle.Render("scanned"), rep.Repos, rep.PullRequests)
	if rep.Created > 0 {
		fmt.Printf("  %s %d ticket(s) created\n", ui.PassStyle.Render(ui.IconPass), rep.Created)
	}
	if rep.Repaired > 0 {
		fmt.Printf("  %s %d ticket(s) repaired\n", ui.PassStyle.Render(ui.IconPass), rep.Repaired)
	}
	if rep.Transitioned > 0 {
		fmt.Printf("  %s %d ticket(s) transitioned\n", ui.PassStyle.Render(ui.IconPass), rep.Transitioned)
	}
	fmt.Printf("  %s %d skipped\n", ui.MutedStyle.Render("-"), rep.Skipped)
	if rep.Errors > 0 {
		fmt.Printf("  %s %d error(s), see warnings above\n", ui.WarnStyle.Render(ui.IconWarn), rep.Errors)
	}
	if mode == lifecycle.ModeDryRun {
		fmt.Println(ui.MutedStyle.Render("  dry-run: no changes were made"))
	}
}
