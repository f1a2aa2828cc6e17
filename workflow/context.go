package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
)

var _ context.Context = (*RunContext)(nil)

// RunContext is a handler's only channel back to the engine. It implements
// context.Context by delegating to the dispatch context, so handlers can
// pass it straight into I/O clients and logging calls.
//
// A handler invocation must do exactly one of: send messages, open one
// external request, or yield output. The mutators below reject mixing.
type RunContext struct {
	ctx      context.Context
	run      *Run
	executor *Executor

	sent    []Message
	request *PendingRequest
	yields  []any
}

func newRunContext(ctx context.Context, run *Run, executor *Executor) *RunContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &RunContext{ctx: ctx, run: run, executor: executor}
}

func (rc *RunContext) Deadline() (time.Time, bool) {
	return rc.ctx.Deadline()
}

func (rc *RunContext) Done() <-chan struct{} {
	return rc.ctx.Done()
}

func (rc *RunContext) Err() error {
	return rc.ctx.Err()
}

func (rc *RunContext) Value(key any) any {
	return rc.ctx.Value(key)
}

func (rc *RunContext) RunID() string {
	return rc.run.ID()
}

func (rc *RunContext) ExecutorName() string {
	return rc.executor.Name()
}

// SendMessage forwards msg to the executor's graph successors once the
// handler returns.
func (rc *RunContext) SendMessage(msg Message) error {
	if rc.request != nil {
		return newError(CodeHandlerContract, rc.executor.Name(), "cannot send a message after opening a request")
	}
	if len(rc.yields) > 0 {
		return newError(CodeHandlerContract, rc.executor.Name(), "cannot send a message after yielding output")
	}
	rc.sent = append(rc.sent, msg)
	return nil
}

// Send tags payload with its type name and forwards it downstream.
func (rc *RunContext) Send(payload any) error {
	return rc.SendMessage(NewMessage(payload))
}

// RequestInfo suspends this branch until an external response tagged
// responseType is delivered via Run.Resume. It returns the correlation id
// identifying the open request. A handler may open at most one request and
// may not combine it with sends or yields.
func (rc *RunContext) RequestInfo(payload any, responseType string) (string, error) {
	if rc.request != nil {
		return "", newError(CodeHandlerContract, rc.executor.Name(), "handler already opened a request")
	}
	if len(rc.sent) > 0 {
		return "", newError(CodeHandlerContract, rc.executor.Name(), "cannot open a request after sending messages")
	}
	if len(rc.yields) > 0 {
		return "", newError(CodeHandlerContract, rc.executor.Name(), "cannot open a request after yielding output")
	}

	id := uuid.New().String()
	rc.request = &PendingRequest{
		CorrelationID: id,
		Executor:      rc.executor.Name(),
		Request:       NewMessage(payload),
		ResponseType:  responseType,
	}
	return id, nil
}

// YieldOutput appends value to the run's ordered output sequence and
// terminates this branch; yielded values do not route anywhere further.
func (rc *RunContext) YieldOutput(value any) error {
	if rc.request != nil {
		return newError(CodeHandlerContract, rc.executor.Name(), "cannot yield output after opening a request")
	}
	if len(rc.sent) > 0 {
		return newError(CodeHandlerContract, rc.executor.Name(), "cannot yield output after sending messages")
	}
	rc.yields = append(rc.yields, value)
	return nil
}
