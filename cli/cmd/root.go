package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relayflow",
	Short: "Relayflow - graph workflow engine with human-in-the-loop runs",
	Long: `Relayflow executes directed-graph workflows whose stages exchange typed
messages and can suspend a run to wait for an external decision, then resume
exactly where they left off.

It ships with an SRE incident-response pipeline: alert triage with a human
approval gate, tracking-issue creation, and channel notification.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
}
