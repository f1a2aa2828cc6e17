package workflow

import "sync"

// PendingRequest records one open external request created by RequestInfo.
// It survives the suspension point: everything needed to resume the branch
// lives here, not in a captured call stack.
type PendingRequest struct {
	CorrelationID string  `json:"correlation_id"`
	Executor      string  `json:"executor"`
	Request       Message `json:"request"`
	ResponseType  string  `json:"response_type"`
}

// pendingTable is the run-scoped map of open correlation ids. take is
// atomic, so a correlation id can be consumed exactly once even under
// concurrent resumes.
type pendingTable struct {
	mu    sync.Mutex
	open  map[string]PendingRequest
	order []string
}

func newPendingTable() *pendingTable {
	return &pendingTable{open: make(map[string]PendingRequest)}
}

func (t *pendingTable) add(p PendingRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open[p.CorrelationID] = p
	t.order = append(t.order, p.CorrelationID)
}

// get peeks at an entry without consuming it.
func (t *pendingTable) get(id string) (PendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.open[id]
	return p, ok
}

// take removes and returns the entry. The second return is false if the id
// was never open or was already consumed.
func (t *pendingTable) take(id string) (PendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.open[id]
	if ok {
		delete(t.open, id)
	}
	return p, ok
}

// clear releases every open entry and returns them, in creation order.
func (t *pendingTable) clear() []PendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	released := make([]PendingRequest, 0, len(t.open))
	for _, id := range t.order {
		if p, ok := t.open[id]; ok {
			released = append(released, p)
			delete(t.open, id)
		}
	}
	return released
}

// list returns the open entries in creation order.
func (t *pendingTable) list() []PendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PendingRequest, 0, len(t.open))
	for _, id := range t.order {
		if p, ok := t.open[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}
