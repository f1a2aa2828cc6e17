package workflow

import (
	"context"
	"sync"
)

// RunStatus is the externally observable state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSuspended RunStatus = "suspended"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunAbandoned RunStatus = "abandoned"
)

// Terminal reports whether no further progress is possible for the status.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunAbandoned
}

// Run is one traversal of a Graph for one initial message. It owns the
// pending-request table, the ordered output sequence, and the completion
// state. Runs of the same Graph are independent; one run's suspension never
// affects another.
type Run struct {
	id      string
	runner  *Runner
	pending *pendingTable

	mu      sync.Mutex
	status  RunStatus
	active  int // branches currently executing
	outputs []any
	failure error
}

// Result is a point-in-time snapshot of a run's externally observable state.
type Result struct {
	RunID           string           `json:"run_id"`
	Status          RunStatus        `json:"status"`
	Outputs         []any            `json:"outputs"`
	PendingRequests []PendingRequest `json:"pending_requests"`
	Error           string           `json:"error,omitempty"`
}

func (r *Run) ID() string {
	return r.id
}

func (r *Run) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Err returns the failure that marked the run Failed, or nil.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failure
}

// Outputs returns a copy of the values yielded so far, in yield order.
// Outputs yielded before a later suspension are visible immediately.
func (r *Run) Outputs() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.outputs))
	copy(out, r.outputs)
	return out
}

// PendingRequests returns the currently open requests in creation order.
// The caller may resolve them in any order.
func (r *Run) PendingRequests() []PendingRequest {
	return r.pending.list()
}

// Result snapshots the run for API consumers.
func (r *Run) Result() Result {
	r.mu.Lock()
	status := r.status
	outputs := make([]any, len(r.outputs))
	copy(outputs, r.outputs)
	var errMsg string
	if r.failure != nil {
		errMsg = r.failure.Error()
	}
	r.mu.Unlock()

	return Result{
		RunID:           r.id,
		Status:          status,
		Outputs:         outputs,
		PendingRequests: r.pending.list(),
		Error:           errMsg,
	}
}

// Resume delivers the external response for one open correlation id and
// drives that branch until it completes, suspends again, or fails. Resumes
// for different correlation ids of the same run may be called concurrently.
func (r *Run) Resume(ctx context.Context, correlationID string, response any) error {
	return r.runner.resume(ctx, r, correlationID, response)
}

// Abandon releases every open pending request; their correlation ids become
// permanently unresolvable. Abandoning a terminal run is a no-op.
func (r *Run) Abandon() {
	r.mu.Lock()
	if r.status.Terminal() {
		r.mu.Unlock()
		return
	}
	r.status = RunAbandoned
	r.mu.Unlock()

	released := r.pending.clear()
	r.runner.abandoned(r, released)
}

func (r *Run) appendOutput(value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = append(r.outputs, value)
}

// beginBranch marks one more branch as executing, flipping a suspended run
// back to running.
func (r *Run) beginBranch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active++
	if r.status == RunSuspended {
		r.status = RunRunning
	}
}

// endBranch marks a branch finished and settles the run state: with no
// active branches left, open requests mean suspended, none means completed.
// It returns the status the run settled into, or "" if other branches are
// still executing or the run already reached a terminal state.
func (r *Run) endBranch() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active--
	if r.active > 0 || r.status != RunRunning {
		return ""
	}
	if r.pending.size() > 0 {
		r.status = RunSuspended
	} else {
		r.status = RunCompleted
	}
	return r.status
}

// fail marks the run Failed and releases its pending requests so stale
// correlation ids cannot resume a broken run.
func (r *Run) fail(err error) {
	r.mu.Lock()
	if r.status.Terminal() {
		r.mu.Unlock()
		return
	}
	r.status = RunFailed
	r.failure = err
	r.mu.Unlock()

	r.pending.clear()
}
