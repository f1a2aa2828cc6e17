package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"relayflow/incident"
	"relayflow/workflow"
)

var (
	runAlertPath string
	runApprove   string
	runNotes     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the incident pipeline once for a single alert",
	Long: `Run submits one alert through the incident pipeline. If triage suspends
the run for approval, the pending classification is printed and the decision
is read from --approve or interactively from stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		alert := incident.DefaultAlert()
		if runAlertPath != "" {
			data, err := os.ReadFile(runAlertPath)
			if err != nil {
				return fmt.Errorf("error reading alert file: %w", err)
			}
			if err := json.Unmarshal(data, &alert); err != nil {
				return fmt.Errorf("error unmarshalling alert: %w", err)
			}
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		graph, err := incident.BuildPipeline(incident.Collaborators{})
		if err != nil {
			return fmt.Errorf("error building pipeline: %w", err)
		}

		runner := workflow.NewRunner(graph, workflow.WithLogger(logger))
		run, err := runner.Run(cmd.Context(), alert)
		if err != nil {
			return err
		}

		for run.Status() == workflow.RunSuspended {
			for _, pending := range run.PendingRequests() {
				decision, notes, err := decide(cmd, pending)
				if err != nil {
					return err
				}
				if err := run.Resume(cmd.Context(), pending.CorrelationID,
					incident.TriageApproval{Approved: decision, Notes: notes}); err != nil {
					return err
				}
			}
		}

		for _, output := range run.Outputs() {
			fmt.Fprintln(cmd.OutOrStdout(), output)
		}
		return nil
	},
}

func decide(cmd *cobra.Command, pending workflow.PendingRequest) (string, string, error) {
	payload, err := json.MarshalIndent(pending.Request.Payload, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("error rendering pending request: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Approval requested by %s:\n%s\n", pending.Executor, payload)

	if runApprove != "" {
		return runApprove, runNotes, nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Decision [%s | %s | %s | %s]: ",
		incident.ApprovalApprove, incident.ApprovalOverrideSev1,
		incident.ApprovalOverrideSev2, incident.ApprovalOverrideSev3)

	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", "", fmt.Errorf("error reading decision: %w", err)
	}
	decision := strings.TrimSpace(line)
	if decision == "" {
		decision = incident.ApprovalApprove
	}
	return decision, runNotes, nil
}

func init() {
	runCmd.Flags().StringVar(&runAlertPath, "alert", "", "path to a JSON alert file (default: built-in demo alert)")
	runCmd.Flags().StringVar(&runApprove, "approve", "", `non-interactive approval decision (e.g. "approve", "override to sev2")`)
	runCmd.Flags().StringVar(&runNotes, "notes", "", "notes attached to the approval")
}
