package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/greenmantle/renojira/internal/debug"
)

var (
	verboseFlag bool
	quietFlag   bool
	jsonOutput  bool
)

var rootCmd = &cobra.Command{
	Use:   "rj",
	Short: "Reconcile dependency-update pull requests with Jira tickets",
	Long: `rj scans open dependency-update pull requests (Renovate, Dependabot)
and reconciles each with a tracking Jira ticket: create when missing, skip
when protected, repair drifted fields, or advance the ticket one workflow
step. Runs are idempotent; re-running against unchanged state never creates
a duplicate ticket.

Configuration comes from environment variables (GITHUB_TOKEN, JIRA_BASE_URL,
JIRA_PAT or JIRA_USER_EMAIL/JIRA_API_TOKEN, ...) or an rj.yaml file in the
working directory. Repos may carry their own policy override at
.github/renovate-jira.yml.

Examples:
  rj scan --repo acme/payments              # dry-run one repo
  rj scan --org acme --topic renovate       # dry-run an org scan
  rj scan --mode run --max-new-tickets 5    # mutate, capped
  rj status                                 # check configuration`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		debug.SetVerbose(verboseFlag)
		debug.SetQuiet(quietFlag)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
}

func outputJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}
