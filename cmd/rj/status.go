package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/greenmantle/renojira/internal/jira"
	"github.com/greenmantle/renojira/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and check Jira connectivity",
	Long: `Show the resolved configuration and verify Jira credentials with a
preflight check (the same check every scan performs before touching any
pull request).`,
	Run: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) {
	settings, err := loadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	configured := settings.validate() == nil

	if jsonOutput {
		out := map[string]interface{}{
			"configured":   configured,
			"jira_url":     settings.JiraBaseURL,
			"jira_project": settings.ProjectKey,
			"mode":         settings.Mode,
		}
		if configured {
			tracker := jira.NewClient(settings.JiraBaseURL, settings.JiraEmail, settings.JiraAPIToken, settings.JiraPAT, settings.JiraAPIVersion)
			out["preflight_ok"] = tracker.Preflight(rootCtx, settings.ProjectKey) == nil
		}
		outputJSON(out)
		return
	}

	fmt.Println(ui.HeaderStyle.Render("renojira status"))
	fmt.Println()

	if !configured {
		fmt.Printf("%s not configured: %v\n", ui.FailStyle.Render(ui.IconFail), settings.validate())
		fmt.Println()
		fmt.Println("Required environment:")
		fmt.Println("  export GITHUB_TOKEN=...")
		fmt.Println("  export JIRA_BASE_URL=https://company.atlassian.net")
		fmt.Println("  export JIRA_PAT=...    # or JIRA_USER_EMAIL + JIRA_API_TOKEN")
		os.Exit(1)
	}

	fmt.Printf("Jira URL:   %s\n", settings.JiraBaseURL)
	fmt.Printf("Project:    %s\n", orUnset(settings.ProjectKey))
	fmt.Printf("Mode:       %s\n", settings.Mode)
	fmt.Printf("Max new:    %s\n", orUnbounded(settings.MaxNewTickets))
	fmt.Println()

	tracker := jira.NewClient(settings.JiraBaseURL, settings.JiraEmail, settings.JiraAPIToken, settings.JiraPAT, settings.JiraAPIVersion)
	if err := tracker.Preflight(rootCtx, settings.ProjectKey); err != nil {
		fmt.Printf("%s jira preflight failed: %v\n", ui.FailStyle.Render(ui.IconFail), err)
		os.Exit(1)
	}
	fmt.Printf("%s jira credentials and project verified\n", ui.PassStyle.Render(ui.IconPass))
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

func orUnbounded(n int) string {
	if n == 0 {
		return "unbounded"
	}
	return fmt.Sprintf("%d", n)
}
