package incident

import (
	"fmt"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"

	"relayflow/workflow"
)

// NewAlertProcessor builds the pipeline's first stage. It parses the metrics
// blob, validates required fields, and always forwards a ProcessedAlert:
// malformed input flows on with its problems recorded instead of aborting
// the run.
func NewAlertProcessor(metrics MetricsSource) *workflow.Executor {
	exec := workflow.NewExecutor("alert_processor")
	exec.OnMessage(workflow.TypeName(AlertInput{}), func(rc *workflow.RunContext, msg workflow.Message) error {
		alert, ok := msg.Payload.(AlertInput)
		if !ok {
			return fmt.Errorf("unexpected payload %T", msg.Payload)
		}

		gauges := parseMetrics(alert.Metrics)
		if len(gauges) == 0 && metrics != nil && alert.Resource != "" {
			if looked, err := metrics.Gauges(rc, alert.Resource); err == nil {
				gauges = looked
			}
		}

		var problems []string
		if alert.AlertID == "" {
			problems = append(problems, "missing alert_id")
		}
		if alert.Title == "" {
			problems = append(problems, "missing title")
		}
		switch alert.Severity {
		case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		default:
			problems = append(problems, fmt.Sprintf("invalid severity: %q", alert.Severity))
		}

		return rc.Send(ProcessedAlert{
			AlertID:          alert.AlertID,
			Title:            alert.Title,
			Severity:         alert.Severity,
			Description:      alert.Description,
			Source:           alert.Source,
			Resource:         alert.Resource,
			Metrics:          gauges,
			ReceivedAt:       time.Now().UTC(),
			IsValid:          len(problems) == 0,
			ValidationErrors: problems,
		})
	}, workflow.TypeName(ProcessedAlert{}))
	return exec
}

// parseMetrics decodes the alert's JSON gauge blob, keeping numeric leaves
// and ignoring everything else. An unparseable blob yields an empty map.
func parseMetrics(blob string) map[string]float64 {
	gauges := map[string]float64{}
	if strings.TrimSpace(blob) == "" {
		return gauges
	}
	parsed, err := gabs.ParseJSON([]byte(blob))
	if err != nil {
		return gauges
	}
	for key, child := range parsed.ChildrenMap() {
		if v, ok := child.Data().(float64); ok {
			gauges[key] = v
		}
	}
	return gauges
}
