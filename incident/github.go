package incident

import (
	"fmt"
	"strings"
	"time"

	"relayflow/workflow"
)

// NewGitHubIssueCreator builds the tracking-issue stage.
func NewGitHubIssueCreator(tracker IssueTracker) *workflow.Executor {
	exec := workflow.NewExecutor("github_creator")
	exec.OnMessage(workflow.TypeName(TriageResult{}), func(rc *workflow.RunContext, msg workflow.Message) error {
		triage, ok := msg.Payload.(TriageResult)
		if !ok {
			return fmt.Errorf("unexpected payload %T", msg.Payload)
		}

		labels := []string{
			"severity:" + triage.IncidentSeverity,
			"priority:" + triage.Priority,
			"incident",
			triage.AssignedTeam,
		}

		issue, err := tracker.CreateIssue(rc, IssueRequest{
			Title:  triage.IncidentTitle,
			Body:   issueBody(triage),
			Labels: labels,
		})
		if err != nil {
			return fmt.Errorf("create tracking issue: %w", err)
		}

		return rc.Send(GitHubIssue{
			Triage:      triage,
			IssueNumber: issue.Number,
			IssueURL:    issue.URL,
			Labels:      issue.Labels,
			CreatedAt:   time.Now().UTC(),
		})
	}, workflow.TypeName(GitHubIssue{}))
	return exec
}

func issueBody(triage TriageResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", triage.Summary)
	fmt.Fprintf(&b, "Affected services:\n")
	for _, service := range triage.AffectedServices {
		fmt.Fprintf(&b, "- %s\n", service)
	}
	fmt.Fprintf(&b, "\nRecommended actions:\n")
	for i, action := range triage.RecommendedActions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, action)
	}
	fmt.Fprintf(&b, "\nRunbook: %s\n", triage.RunbookURL)
	return b.String()
}
