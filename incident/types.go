// Package incident implements the SRE incident-response pipeline: alert
// validation, triage with a human approval gate on high-severity incidents,
// tracking-issue creation, channel notification, and a final report.
package incident

import "time"

// Alert severities accepted on input.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// AlertInput is the raw alert submitted to the pipeline.
type AlertInput struct {
	AlertID     string `json:"alert_id"`
	Title       string `json:"title"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Source      string `json:"source"`
	Resource    string `json:"resource"`
	// Metrics is a JSON-encoded map of gauge name to numeric value.
	Metrics string `json:"metrics"`
}

// DefaultAlert is the demo alert the pipeline ships with.
func DefaultAlert() AlertInput {
	return AlertInput{
		AlertID:     "ALT-2026-0131-001",
		Title:       "Database Server CPU Critical",
		Severity:    SeverityCritical,
		Description: "vm-db-01 CPU utilization exceeded 90% for more than 5 minutes",
		Source:      "Azure Monitor",
		Resource:    "vm-db-01",
		Metrics:     `{"cpu_percent": 94.7, "memory_percent": 88.5}`,
	}
}

// ProcessedAlert is the validated and enriched alert. Validation problems
// are recorded rather than raised, so malformed alerts still leave an audit
// trail downstream.
type ProcessedAlert struct {
	AlertID          string             `json:"alert_id"`
	Title            string             `json:"title"`
	Severity         string             `json:"severity"`
	Description      string             `json:"description"`
	Source           string             `json:"source"`
	Resource         string             `json:"resource"`
	Metrics          map[string]float64 `json:"metrics"`
	ReceivedAt       time.Time          `json:"received_at"`
	IsValid          bool               `json:"is_valid"`
	ValidationErrors []string           `json:"validation_errors"`
}

// TriageResult is the incident classification derived from an alert.
type TriageResult struct {
	Alert              ProcessedAlert `json:"alert"`
	IncidentSeverity   string         `json:"incident_severity"` // sev1..sev4
	IncidentTitle      string         `json:"incident_title"`
	Summary            string         `json:"summary"`
	AffectedServices   []string       `json:"affected_services"`
	RecommendedActions []string       `json:"recommended_actions"`
	AssignedTeam       string         `json:"assigned_team"`
	RunbookURL         string         `json:"runbook_url"`
	Priority           string         `json:"priority"` // P1..P4
}

// Approval decisions a reviewer can return for a triage classification.
const (
	ApprovalApprove      = "approve"
	ApprovalOverrideSev1 = "override to sev1"
	ApprovalOverrideSev2 = "override to sev2"
	ApprovalOverrideSev3 = "override to sev3"
)

// TriageApproval is the human decision resolving a triage approval request.
type TriageApproval struct {
	Approved string `json:"approved"`
	Notes    string `json:"notes"`
}

// GitHubIssue captures the created tracking issue.
type GitHubIssue struct {
	Triage      TriageResult `json:"triage"`
	IssueNumber int          `json:"issue_number"`
	IssueURL    string       `json:"issue_url"`
	Labels      []string     `json:"labels"`
	CreatedAt   time.Time    `json:"created_at"`
}

// TeamsNotification captures the channel post for the incident.
type TeamsNotification struct {
	Issue     GitHubIssue `json:"github_issue"`
	Channel   string      `json:"channel"`
	MessageID string      `json:"message_id"`
	PostedAt  time.Time   `json:"posted_at"`
	Success   bool        `json:"success"`
}
