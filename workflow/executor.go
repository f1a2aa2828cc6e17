package workflow

// HandlerFunc reacts to one incoming message type. A handler must do exactly
// one of: send derived messages downstream, open one external request, or
// yield terminal output. The RunContext enforces that contract.
type HandlerFunc func(rc *RunContext, msg Message) error

// ResponseHandlerFunc resumes a suspended branch. It receives the original
// request message alongside the external response.
type ResponseHandlerFunc func(rc *RunContext, request, response Message) error

type handlerSpec struct {
	fn    HandlerFunc
	emits []string
}

type responseSpec struct {
	fn           ResponseHandlerFunc
	responseType string
	emits        []string
}

// Executor is a named stage in a workflow graph. It carries no run-scoped
// state; everything mutable lives in the messages and the Run. Once
// registered in a built Graph an executor must not be modified.
type Executor struct {
	name             string
	handlers         map[string]handlerSpec
	responseHandlers map[string]responseSpec
}

func NewExecutor(name string) *Executor {
	return &Executor{
		name:             name,
		handlers:         make(map[string]handlerSpec),
		responseHandlers: make(map[string]responseSpec),
	}
}

func (e *Executor) Name() string {
	return e.name
}

// OnMessage registers fn for messages tagged inputType. The optional emits
// list declares the output types fn may send; Build uses it to verify that
// every edge can carry at least one declared type. Registering the same
// input type twice replaces the previous handler.
func (e *Executor) OnMessage(inputType string, fn HandlerFunc, emits ...string) *Executor {
	e.handlers[inputType] = handlerSpec{fn: fn, emits: emits}
	return e
}

// OnResponse registers fn to resume a pending request that originally
// carried requestType, once a response tagged responseType is delivered.
func (e *Executor) OnResponse(requestType, responseType string, fn ResponseHandlerFunc, emits ...string) *Executor {
	e.responseHandlers[requestType] = responseSpec{fn: fn, responseType: responseType, emits: emits}
	return e
}

func (e *Executor) handler(msgType string) (handlerSpec, bool) {
	h, ok := e.handlers[msgType]
	return h, ok
}

func (e *Executor) responseHandler(requestType string) (responseSpec, bool) {
	h, ok := e.responseHandlers[requestType]
	return h, ok
}

func (e *Executor) accepts(msgType string) bool {
	_, ok := e.handlers[msgType]
	return ok
}

// emittedTypes returns the union of declared output types across all
// handlers. Empty means the executor made no declaration and edge
// compatibility is not checked for it.
func (e *Executor) emittedTypes() []string {
	var types []string
	seen := make(map[string]bool)
	for _, h := range e.handlers {
		for _, t := range h.emits {
			if !seen[t] {
				seen[t] = true
				types = append(types, t)
			}
		}
	}
	for _, h := range e.responseHandlers {
		for _, t := range h.emits {
			if !seen[t] {
				seen[t] = true
				types = append(types, t)
			}
		}
	}
	return types
}
