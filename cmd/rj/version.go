package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "0.4.0-dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the rj version",
	Run: func(_ *cobra.Command, _ []string) {
		if jsonOutput {
			outputJSON(map[string]string{"version": Version})
			return
		}
		fmt.Printf("rj %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
