package incident

import (
	"fmt"
	"sort"
	"strings"

	"relayflow/workflow"
)

var severityToIncident = map[string]string{
	SeverityCritical: "sev1",
	SeverityHigh:     "sev2",
	SeverityMedium:   "sev3",
	SeverityLow:      "sev4",
}

var incidentPriority = map[string]string{
	"sev1": "P1",
	"sev2": "P2",
	"sev3": "P3",
	"sev4": "P4",
}

// Resource prefix to owning team, matched in order.
var serviceTeams = []struct {
	prefix string
	team   string
}{
	{"vm-db", "platform-sre-team"},
	{"vm-prod", "backend-team"},
	{"vm-api", "api-team"},
	{"vm-cache", "platform-team"},
}

const defaultTeam = "platform-sre-team"

// Runbook keyword to URL, matched against title and description in order.
var runbooks = []struct {
	keyword string
	url     string
}{
	{"cpu", "https://wiki.contoso.com/runbooks/high-cpu"},
	{"memory", "https://wiki.contoso.com/runbooks/high-memory"},
	{"disk", "https://wiki.contoso.com/runbooks/disk-space"},
	{"network", "https://wiki.contoso.com/runbooks/network-issues"},
}

const defaultRunbook = "https://wiki.contoso.com/runbooks/general-triage"

// NewIncidentTriage builds the classification stage. sev1 and sev2
// incidents open a TriageApproval request and suspend the run; lower
// severities flow straight through. The response handler applies severity
// overrides before continuing.
func NewIncidentTriage() *workflow.Executor {
	exec := workflow.NewExecutor("incident_triage")

	exec.OnMessage(workflow.TypeName(ProcessedAlert{}), func(rc *workflow.RunContext, msg workflow.Message) error {
		alert, ok := msg.Payload.(ProcessedAlert)
		if !ok {
			return fmt.Errorf("unexpected payload %T", msg.Payload)
		}

		triage := classify(alert)
		if triage.IncidentSeverity == "sev1" || triage.IncidentSeverity == "sev2" {
			_, err := rc.RequestInfo(triage, workflow.TypeName(TriageApproval{}))
			return err
		}
		return rc.Send(triage)
	}, workflow.TypeName(TriageResult{}))

	exec.OnResponse(workflow.TypeName(TriageResult{}), workflow.TypeName(TriageApproval{}),
		func(rc *workflow.RunContext, request, response workflow.Message) error {
			triage, ok := request.Payload.(TriageResult)
			if !ok {
				return fmt.Errorf("unexpected request payload %T", request.Payload)
			}
			approval, ok := response.Payload.(TriageApproval)
			if !ok {
				return fmt.Errorf("unexpected response payload %T", response.Payload)
			}

			if strings.HasPrefix(approval.Approved, "override") {
				fields := strings.Fields(approval.Approved)
				triage = applyOverride(triage, fields[len(fields)-1])
			}
			return rc.Send(triage)
		}, workflow.TypeName(TriageResult{}))

	return exec
}

// classify maps a processed alert onto an incident classification using the
// severity, team, runbook, and action tables.
func classify(alert ProcessedAlert) TriageResult {
	incidentSeverity, ok := severityToIncident[alert.Severity]
	if !ok {
		incidentSeverity = "sev3"
	}

	team := defaultTeam
	for _, entry := range serviceTeams {
		if strings.HasPrefix(alert.Resource, entry.prefix) {
			team = entry.team
			break
		}
	}

	var services []string
	switch {
	case strings.Contains(alert.Resource, "db"):
		services = []string{"database-primary", "order-service", "inventory-service"}
	case strings.Contains(alert.Resource, "api"):
		services = []string{"api-gateway", "payment-service"}
	case strings.Contains(alert.Resource, "cache"):
		services = []string{"redis-cache", "session-service"}
	default:
		services = []string{alert.Resource}
	}

	runbook := defaultRunbook
	haystack := strings.ToLower(alert.Title) + " " + strings.ToLower(alert.Description)
	for _, entry := range runbooks {
		if strings.Contains(haystack, entry.keyword) {
			runbook = entry.url
			break
		}
	}

	var actions []string
	if alert.Metrics["cpu_percent"] > 90 {
		actions = append(actions, "Check for runaway processes", "Consider scaling up or out")
	}
	if alert.Metrics["memory_percent"] > 85 {
		actions = append(actions, "Identify memory-intensive queries", "Check for memory leaks")
	}
	if len(actions) == 0 {
		actions = append(actions, "Review recent deployments", "Check system logs for errors")
	}

	return TriageResult{
		Alert:              alert,
		IncidentSeverity:   incidentSeverity,
		IncidentTitle:      fmt.Sprintf("[%s] %s", strings.ToUpper(incidentSeverity), alert.Title),
		Summary:            summarize(alert),
		AffectedServices:   services,
		RecommendedActions: actions,
		AssignedTeam:       team,
		RunbookURL:         runbook,
		Priority:           incidentPriority[incidentSeverity],
	}
}

func summarize(alert ProcessedAlert) string {
	var elevated []string
	for name, value := range alert.Metrics {
		if value > 80 {
			elevated = append(elevated, name)
		}
	}
	sort.Strings(elevated)
	return fmt.Sprintf("%s. Resource: %s. Current metrics show elevated %s.",
		alert.Description, alert.Resource, strings.Join(elevated, ", "))
}

func applyOverride(triage TriageResult, severity string) TriageResult {
	triage.IncidentSeverity = severity
	triage.IncidentTitle = fmt.Sprintf("[%s] %s", strings.ToUpper(severity), triage.Alert.Title)
	if priority, ok := incidentPriority[severity]; ok {
		triage.Priority = priority
	}
	return triage
}
