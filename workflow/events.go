package workflow

import "time"

// EventKind names an observable state change in a run.
type EventKind string

const (
	EventRunStarted      EventKind = "run_started"
	EventExecutorInvoked EventKind = "executor_invoked"
	EventRequestPending  EventKind = "request_pending"
	EventRequestResolved EventKind = "request_resolved"
	EventOutputYielded   EventKind = "output_yielded"
	EventRunSuspended    EventKind = "run_suspended"
	EventRunCompleted    EventKind = "run_completed"
	EventRunFailed       EventKind = "run_failed"
	EventRunAbandoned    EventKind = "run_abandoned"
)

// Event is one entry in a run's observable timeline. Consumers (the HTTP
// event stream, tests) receive events in the order the engine emitted them
// along any single branch.
type Event struct {
	Kind          EventKind `json:"kind"`
	RunID         string    `json:"run_id"`
	Executor      string    `json:"executor,omitempty"`
	MessageType   string    `json:"message_type,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Output        any       `json:"output,omitempty"`
	Error         string    `json:"error,omitempty"`
	Time          time.Time `json:"time"`
}

// EventSink receives engine events. Implementations must be safe for
// concurrent use; resumes of independent branches may emit concurrently.
type EventSink interface {
	OnEvent(Event)
}

// EventSinkFunc adapts a plain function to the EventSink interface.
type EventSinkFunc func(Event)

func (f EventSinkFunc) OnEvent(ev Event) {
	f(ev)
}
