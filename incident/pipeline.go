package incident

import "relayflow/workflow"

// Collaborators are the external systems the pipeline stages call. Nil
// fields fall back to the simulated implementations.
type Collaborators struct {
	Metrics  MetricsSource
	Tracker  IssueTracker
	Notifier Notifier
}

// BuildPipeline wires the five incident-response stages into a graph:
//
//	alert_processor -> incident_triage -> github_creator -> teams_notifier -> incident_reporter
//
// The approval gate lives inside incident_triage: sev1/sev2 classifications
// suspend the run on a TriageApproval request and continue on resume.
func BuildPipeline(c Collaborators) (*workflow.Graph, error) {
	if c.Tracker == nil {
		c.Tracker = &SimulatedTracker{Repo: "contoso/incidents"}
	}
	if c.Notifier == nil {
		c.Notifier = SimulatedNotifier{}
	}

	processor := NewAlertProcessor(c.Metrics)
	triage := NewIncidentTriage()
	creator := NewGitHubIssueCreator(c.Tracker)
	notifier := NewTeamsNotifier(c.Notifier)
	reporter := NewIncidentReporter()

	return workflow.NewBuilder("sre-incident-response").
		SetStartExecutor(processor).
		AddEdge(processor, triage).
		AddEdge(triage, creator).
		AddEdge(creator, notifier).
		AddEdge(notifier, reporter).
		Build()
}
