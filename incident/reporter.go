package incident

import (
	"fmt"
	"strings"

	"relayflow/workflow"
)

// NewIncidentReporter builds the terminal stage: it renders the incident
// report and yields it as the run's output.
func NewIncidentReporter() *workflow.Executor {
	exec := workflow.NewExecutor("incident_reporter")
	exec.OnMessage(workflow.TypeName(TeamsNotification{}), func(rc *workflow.RunContext, msg workflow.Message) error {
		notification, ok := msg.Payload.(TeamsNotification)
		if !ok {
			return fmt.Errorf("unexpected payload %T", msg.Payload)
		}
		return rc.YieldOutput(renderReport(notification))
	})
	return exec
}

func renderReport(n TeamsNotification) string {
	issue := n.Issue
	triage := issue.Triage

	status := "posted"
	if !n.Success {
		status = "failed"
	}

	var b strings.Builder
	b.WriteString("INCIDENT RESPONSE COMPLETE\n")
	b.WriteString("==========================\n\n")
	fmt.Fprintf(&b, "Incident: %s\n", triage.IncidentTitle)
	fmt.Fprintf(&b, "Ticket:   #%d\n", issue.IssueNumber)
	fmt.Fprintf(&b, "GitHub:   %s\n\n", issue.IssueURL)

	b.WriteString("Classification:\n")
	fmt.Fprintf(&b, "  severity: %s\n", strings.ToLower(triage.IncidentSeverity))
	fmt.Fprintf(&b, "  priority: %s\n", triage.Priority)
	fmt.Fprintf(&b, "  assigned: %s\n\n", triage.AssignedTeam)

	b.WriteString("Affected services:\n")
	for _, service := range triage.AffectedServices {
		fmt.Fprintf(&b, "  - %s\n", service)
	}

	fmt.Fprintf(&b, "\nSummary:\n  %s\n\n", triage.Summary)

	b.WriteString("Recommended actions:\n")
	for i, action := range triage.RecommendedActions {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, action)
	}

	fmt.Fprintf(&b, "\nRunbook: %s\n\n", triage.RunbookURL)

	b.WriteString("Teams notification:\n")
	fmt.Fprintf(&b, "  channel: %s\n", n.Channel)
	fmt.Fprintf(&b, "  status:  %s\n", status)

	return b.String()
}
