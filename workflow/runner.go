package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Runner drives runs of a single Graph. It holds no per-run state beyond the
// Run objects it hands out, so one Runner may serve concurrent runs.
type Runner struct {
	graph *Graph
	l     *slog.Logger
	sink  EventSink
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the structured logger used for dispatch logging.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.l = l
	}
}

// WithEventSink registers a sink receiving the run-event timeline.
func WithEventSink(sink EventSink) RunnerOption {
	return func(r *Runner) {
		r.sink = sink
	}
}

func NewRunner(graph *Graph, opts ...RunnerOption) *Runner {
	r := &Runner{
		graph: graph,
		l:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// dispatch is one queued delivery: a message bound for an executor.
type dispatch struct {
	exec *Executor
	msg  Message
}

// Run dispatches input to the start executor and drives the graph until the
// run completes, suspends on pending requests, or fails. The returned Run is
// usable even when err is non-nil; its status is then RunFailed.
func (r *Runner) Run(ctx context.Context, input any) (*Run, error) {
	msg := NewMessage(input)
	start := r.graph.Start()
	if !start.accepts(msg.Type) {
		return nil, newError(CodeUnroutableMessage, start.Name(),
			"start executor has no handler for message type %q", msg.Type)
	}

	run := &Run{
		id:      uuid.New().String(),
		runner:  r,
		pending: newPendingTable(),
		status:  RunRunning,
	}

	r.emit(Event{Kind: EventRunStarted, RunID: run.id, MessageType: msg.Type})
	r.l.InfoContext(ctx, "run started",
		"run_id", run.id,
		"graph", r.graph.Name(),
		"message_type", msg.Type)

	run.beginBranch()
	err := r.drive(ctx, run, []dispatch{{exec: start, msg: msg}})
	if err := r.finishBranch(ctx, run, err); err != nil {
		return run, err
	}
	return run, nil
}

// resume backs Run.Resume. Caller mistakes (unknown id, wrong response type)
// are returned without touching the run; failures inside the resumed branch
// mark the run Failed.
func (r *Runner) resume(ctx context.Context, run *Run, correlationID string, response any) error {
	if run.Status().Terminal() {
		return newError(CodeUnknownOrExpiredRequest, "",
			"run %s is %s; correlation id %q is no longer open", run.id, run.Status(), correlationID)
	}

	entry, ok := run.pending.get(correlationID)
	if !ok {
		return newError(CodeUnknownOrExpiredRequest, "", "no open request with correlation id %q", correlationID)
	}

	respMsg := NewMessage(response)
	if respMsg.Type != entry.ResponseType {
		return newError(CodeResponseTypeMismatch, entry.Executor,
			"request %q expects a response of type %q, got %q", correlationID, entry.ResponseType, respMsg.Type)
	}

	origin, ok := r.graph.executor(entry.Executor)
	if !ok {
		err := newError(CodeInvalidGraph, entry.Executor, "origin executor of request %q is not in the graph", correlationID)
		run.fail(err)
		return err
	}
	spec, ok := origin.responseHandler(entry.Request.Type)
	if !ok {
		err := newError(CodeUnroutableMessage, entry.Executor,
			"no response handler for request type %q", entry.Request.Type)
		run.fail(err)
		return err
	}

	// Consume the id atomically; a concurrent resume for the same id loses
	// here and is reported as expired.
	entry, ok = run.pending.take(correlationID)
	if !ok {
		return newError(CodeUnknownOrExpiredRequest, "", "request %q was already resolved", correlationID)
	}

	run.beginBranch()
	r.emit(Event{
		Kind:          EventRequestResolved,
		RunID:         run.id,
		Executor:      entry.Executor,
		MessageType:   respMsg.Type,
		CorrelationID: correlationID,
	})
	r.l.InfoContext(ctx, "request resolved",
		"run_id", run.id,
		"executor", entry.Executor,
		"correlation_id", correlationID,
		"response_type", respMsg.Type)

	rc := newRunContext(ctx, run, origin)
	err := spec.fn(rc, entry.Request, respMsg)
	if err != nil {
		err = fmt.Errorf("executor %s response handler: %w", origin.Name(), err)
		return r.finishBranch(ctx, run, err)
	}

	next, err := r.collect(run, rc)
	if err == nil {
		err = r.drive(ctx, run, next)
	}
	return r.finishBranch(ctx, run, err)
}

// drive processes a FIFO queue of deliveries. Ordering along a single path
// follows edge declaration order; fan-out siblings interleave breadth-first
// in the same queue.
func (r *Runner) drive(ctx context.Context, run *Run, queue []dispatch) error {
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		d := queue[0]
		queue = queue[1:]

		spec, ok := d.exec.handler(d.msg.Type)
		if !ok {
			return newError(CodeUnroutableMessage, d.exec.Name(), "no handler for message type %q", d.msg.Type)
		}

		r.emit(Event{Kind: EventExecutorInvoked, RunID: run.id, Executor: d.exec.Name(), MessageType: d.msg.Type})
		rc := newRunContext(ctx, run, d.exec)
		r.l.InfoContext(rc, "dispatching message",
			"run_id", run.id,
			"executor", d.exec.Name(),
			"message_type", d.msg.Type)

		if err := spec.fn(rc, d.msg); err != nil {
			return fmt.Errorf("executor %s: %w", d.exec.Name(), err)
		}

		next, err := r.collect(run, rc)
		if err != nil {
			return err
		}
		queue = append(queue, next...)
	}
	return nil
}

// collect turns a finished handler invocation into pending requests, yielded
// outputs, and the next queue entries.
func (r *Runner) collect(run *Run, rc *RunContext) ([]dispatch, error) {
	if rc.request != nil {
		run.pending.add(*rc.request)
		r.emit(Event{
			Kind:          EventRequestPending,
			RunID:         run.id,
			Executor:      rc.executor.Name(),
			MessageType:   rc.request.Request.Type,
			CorrelationID: rc.request.CorrelationID,
		})
		r.l.InfoContext(rc, "request pending",
			"run_id", run.id,
			"executor", rc.executor.Name(),
			"correlation_id", rc.request.CorrelationID,
			"response_type", rc.request.ResponseType)
		return nil, nil
	}

	for _, value := range rc.yields {
		run.appendOutput(value)
		r.emit(Event{Kind: EventOutputYielded, RunID: run.id, Executor: rc.executor.Name(), Output: value})
		r.l.InfoContext(rc, "output yielded",
			"run_id", run.id,
			"executor", rc.executor.Name())
	}

	var next []dispatch
	for _, msg := range rc.sent {
		target, err := r.graph.route(rc.executor.Name(), msg)
		if err != nil {
			return nil, err
		}
		next = append(next, dispatch{exec: target, msg: msg})
	}
	return next, nil
}

// finishBranch settles a branch: on error the run is marked Failed, its
// pending requests released, and the error returned; otherwise the run is
// settled into suspended or completed once the last branch ends.
func (r *Runner) finishBranch(ctx context.Context, run *Run, err error) error {
	if err != nil {
		run.fail(err)
		run.endBranch()
		r.emit(Event{Kind: EventRunFailed, RunID: run.id, Error: err.Error()})
		r.l.ErrorContext(ctx, "run failed", "run_id", run.id, "error", err)
		return err
	}

	switch run.endBranch() {
	case RunSuspended:
		r.emit(Event{Kind: EventRunSuspended, RunID: run.id})
		r.l.InfoContext(ctx, "run suspended",
			"run_id", run.id,
			"pending_requests", len(run.PendingRequests()))
	case RunCompleted:
		r.emit(Event{Kind: EventRunCompleted, RunID: run.id})
		r.l.InfoContext(ctx, "run completed",
			"run_id", run.id,
			"outputs", len(run.Outputs()))
	}
	return nil
}

// abandoned is called by Run.Abandon after the pending table is drained.
func (r *Runner) abandoned(run *Run, released []PendingRequest) {
	for _, p := range released {
		r.l.Info("pending request released",
			"run_id", run.id,
			"executor", p.Executor,
			"correlation_id", p.CorrelationID)
	}
	r.emit(Event{Kind: EventRunAbandoned, RunID: run.id})
}

func (r *Runner) emit(ev Event) {
	if r.sink == nil {
		return
	}
	ev.Time = time.Now().UTC()
	r.sink.OnEvent(ev)
}
