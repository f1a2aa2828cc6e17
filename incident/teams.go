package incident

import (
	"fmt"
	"time"

	"relayflow/workflow"
)

var severityChannels = map[string]string{
	"sev1": "#incident-critical",
	"sev2": "#incident-high",
	"sev3": "#ops-alerts",
	"sev4": "#ops-info",
}

const defaultChannel = "#ops-alerts"

// NewTeamsNotifier builds the channel-notification stage. The channel is
// picked by incident severity, so overrides applied during approval land in
// the right room.
func NewTeamsNotifier(notifier Notifier) *workflow.Executor {
	exec := workflow.NewExecutor("teams_notifier")
	exec.OnMessage(workflow.TypeName(GitHubIssue{}), func(rc *workflow.RunContext, msg workflow.Message) error {
		issue, ok := msg.Payload.(GitHubIssue)
		if !ok {
			return fmt.Errorf("unexpected payload %T", msg.Payload)
		}

		channel, ok := severityChannels[issue.Triage.IncidentSeverity]
		if !ok {
			channel = defaultChannel
		}

		result, err := notifier.Post(rc, Notification{
			Channel: channel,
			Text: fmt.Sprintf("%s | %s assigned, issue #%d: %s",
				issue.Triage.IncidentTitle, issue.Triage.AssignedTeam, issue.IssueNumber, issue.IssueURL),
		})
		if err != nil {
			return fmt.Errorf("notify channel %s: %w", channel, err)
		}

		return rc.Send(TeamsNotification{
			Issue:     issue,
			Channel:   channel,
			MessageID: result.MessageID,
			PostedAt:  time.Now().UTC(),
			Success:   result.Success,
		})
	}, workflow.TypeName(TeamsNotification{}))
	return exec
}
