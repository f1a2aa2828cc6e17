package workflow

import (
	"context"
	"strings"
	"sync"
	"testing"
)

// Test message types. Tags are derived from the Go type names.
type greeting struct {
	Name string `json:"name"`
}

type processed struct {
	Name string `json:"name"`
}

type question struct {
	Prompt string `json:"prompt"`
}

type answer struct {
	Text string `json:"text"`
}

type routed struct {
	Lane string `json:"lane"`
	N    int    `json:"n"`
}

// yielder returns an executor that records its invocation and yields its own
// name joined with the incoming type.
func yielder(name string, trace *[]string, mu *sync.Mutex) *Executor {
	return NewExecutor(name).OnMessage(TypeName(processed{}), func(rc *RunContext, msg Message) error {
		mu.Lock()
		*trace = append(*trace, name)
		mu.Unlock()
		return rc.YieldOutput(name)
	})
}

func buildLinear(t *testing.T, trace *[]string, mu *sync.Mutex) *Graph {
	t.Helper()

	a := NewExecutor("a").OnMessage(TypeName(greeting{}), func(rc *RunContext, msg Message) error {
		mu.Lock()
		*trace = append(*trace, "a")
		mu.Unlock()
		g := msg.Payload.(greeting)
		return rc.Send(processed{Name: g.Name})
	}, TypeName(processed{}))

	b := NewExecutor("b").OnMessage(TypeName(processed{}), func(rc *RunContext, msg Message) error {
		mu.Lock()
		*trace = append(*trace, "b")
		mu.Unlock()
		return rc.Send(msg.Payload)
	}, TypeName(processed{}))

	c := yielder("c", trace, mu)

	graph, err := NewBuilder("linear").
		SetStartExecutor(a).
		AddEdge(a, b).
		AddEdge(b, c).
		Build()
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	return graph
}

func TestLinearDispatchOrder(t *testing.T) {
	var trace []string
	var mu sync.Mutex
	graph := buildLinear(t, &trace, &mu)

	run, err := NewRunner(graph).Run(context.Background(), greeting{Name: "ada"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := run.Status(); got != RunCompleted {
		t.Fatalf("status = %s, want %s", got, RunCompleted)
	}
	want := []string{"a", "b", "c"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", trace, want)
		}
	}
	outputs := run.Outputs()
	if len(outputs) != 1 || outputs[0] != "c" {
		t.Fatalf("outputs = %v, want [c]", outputs)
	}
}

func TestStartExecutorRejectsUnknownType(t *testing.T) {
	var trace []string
	var mu sync.Mutex
	graph := buildLinear(t, &trace, &mu)

	run, err := NewRunner(graph).Run(context.Background(), answer{Text: "nope"})
	if run != nil {
		t.Fatalf("expected no run, got %v", run.ID())
	}
	if !IsCode(err, CodeUnroutableMessage) {
		t.Fatalf("error = %v, want code %s", err, CodeUnroutableMessage)
	}
}

func TestUnroutableMidGraph(t *testing.T) {
	a := NewExecutor("a").OnMessage(TypeName(greeting{}), func(rc *RunContext, msg Message) error {
		return rc.Send(processed{})
	})
	// b only understands questions, so the processed message is unroutable.
	b := NewExecutor("b").OnMessage(TypeName(question{}), func(rc *RunContext, msg Message) error {
		return nil
	})

	graph, err := NewBuilder("bad").SetStartExecutor(a).AddEdge(a, b).Build()
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}

	run, err := NewRunner(graph).Run(context.Background(), greeting{})
	if !IsCode(err, CodeUnroutableMessage) {
		t.Fatalf("error = %v, want code %s", err, CodeUnroutableMessage)
	}
	if got := run.Status(); got != RunFailed {
		t.Fatalf("status = %s, want %s", got, RunFailed)
	}
	if run.Err() == nil {
		t.Fatal("failed run should expose its error")
	}
}

func TestCaseEdgeRouting(t *testing.T) {
	tests := []struct {
		name string
		lane string
		want string
	}{
		{"first case wins", "fast", "fast_lane"},
		{"second case", "slow", "slow_lane"},
		{"default fallback", "bulk", "fallback_lane"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := NewExecutor("source").OnMessage(TypeName(greeting{}), func(rc *RunContext, msg Message) error {
				return rc.Send(routed{Lane: tt.lane})
			})
			sink := func(name string) *Executor {
				return NewExecutor(name).OnMessage(TypeName(routed{}), func(rc *RunContext, msg Message) error {
					return rc.YieldOutput(name)
				})
			}
			fast, slow, fallback := sink("fast_lane"), sink("slow_lane"), sink("fallback_lane")

			graph, err := NewBuilder("cases").
				SetStartExecutor(source).
				AddCaseEdge(source, fast, `lane == "fast"`).
				AddCaseEdge(source, slow, `lane == "slow"`).
				AddEdge(source, fallback).
				Build()
			if err != nil {
				t.Fatalf("unexpected build error: %v", err)
			}

			run, err := NewRunner(graph).Run(context.Background(), greeting{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			outputs := run.Outputs()
			if len(outputs) != 1 || outputs[0] != tt.want {
				t.Errorf("outputs = %v, want [%s]", outputs, tt.want)
			}
		})
	}
}

func TestFirstMatchingCaseWins(t *testing.T) {
	source := NewExecutor("source").OnMessage(TypeName(greeting{}), func(rc *RunContext, msg Message) error {
		return rc.Send(routed{N: 5})
	})
	sink := func(name string) *Executor {
		return NewExecutor(name).OnMessage(TypeName(routed{}), func(rc *RunContext, msg Message) error {
			return rc.YieldOutput(name)
		})
	}
	first, second := sink("first"), sink("second")

	// Both predicates hold for n == 5; declaration order decides.
	graph, err := NewBuilder("overlap").
		SetStartExecutor(source).
		AddCaseEdge(source, first, "n > 0").
		AddCaseEdge(source, second, "n > 1").
		Build()
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}

	run, err := NewRunner(graph).Run(context.Background(), greeting{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	outputs := run.Outputs()
	if len(outputs) != 1 || outputs[0] != "first" {
		t.Errorf("outputs = %v, want [first]", outputs)
	}
}

func TestNoMatchingRoute(t *testing.T) {
	source := NewExecutor("source").OnMessage(TypeName(greeting{}), func(rc *RunContext, msg Message) error {
		return rc.Send(routed{Lane: "bulk"})
	})
	sink := NewExecutor("sink").OnMessage(TypeName(routed{}), func(rc *RunContext, msg Message) error {
		return nil
	})

	graph, err := NewBuilder("nomatch").
		SetStartExecutor(source).
		AddCaseEdge(source, sink, `lane == "fast"`).
		Build()
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}

	run, err := NewRunner(graph).Run(context.Background(), greeting{})
	if !IsCode(err, CodeNoMatchingRoute) {
		t.Fatalf("error = %v, want code %s", err, CodeNoMatchingRoute)
	}
	if got := run.Status(); got != RunFailed {
		t.Fatalf("status = %s, want %s", got, RunFailed)
	}
}

// buildApproval builds: asker (requests an answer on greeting, forwards
// processed on resume) -> finisher (yields).
func buildApproval(t *testing.T, handled *int) *Graph {
	t.Helper()

	asker := NewExecutor("asker")
	asker.OnMessage(TypeName(greeting{}), func(rc *RunContext, msg Message) error {
		_, err := rc.RequestInfo(question{Prompt: "proceed?"}, TypeName(answer{}))
		return err
	}, TypeName(processed{}))
	asker.OnResponse(TypeName(question{}), TypeName(answer{}), func(rc *RunContext, request, response Message) error {
		if handled != nil {
			*handled++
		}
		a := response.Payload.(answer)
		return rc.Send(processed{Name: a.Text})
	}, TypeName(processed{}))

	finisher := NewExecutor("finisher").OnMessage(TypeName(processed{}), func(rc *RunContext, msg Message) error {
		return rc.YieldOutput(msg.Payload.(processed).Name)
	})

	graph, err := NewBuilder("approval").
		SetStartExecutor(asker).
		AddEdge(asker, finisher).
		Build()
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	return graph
}

func TestSuspendAndResume(t *testing.T) {
	graph := buildApproval(t, nil)

	run, err := NewRunner(graph).Run(context.Background(), greeting{Name: "ada"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := run.Status(); got != RunSuspended {
		t.Fatalf("status = %s, want %s", got, RunSuspended)
	}

	pending := run.PendingRequests()
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	p := pending[0]
	if p.Executor != "asker" {
		t.Errorf("pending executor = %s, want asker", p.Executor)
	}
	if p.ResponseType != TypeName(answer{}) {
		t.Errorf("response type = %s, want %s", p.ResponseType, TypeName(answer{}))
	}
	if q, ok := p.Request.Payload.(question); !ok || q.Prompt != "proceed?" {
		t.Errorf("request payload = %#v, want the original question", p.Request.Payload)
	}

	if err := run.Resume(context.Background(), p.CorrelationID, answer{Text: "yes"}); err != nil {
		t.Fatalf("unexpected resume error: %v", err)
	}
	if got := run.Status(); got != RunCompleted {
		t.Fatalf("status = %s, want %s", got, RunCompleted)
	}
	outputs := run.Outputs()
	if len(outputs) != 1 || outputs[0] != "yes" {
		t.Fatalf("outputs = %v, want [yes]", outputs)
	}
	if len(run.PendingRequests()) != 0 {
		t.Fatal("pending table should be empty after resume")
	}
}

func TestResumeTwiceFails(t *testing.T) {
	handled := 0
	graph := buildApproval(t, &handled)

	run, err := NewRunner(graph).Run(context.Background(), greeting{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id := run.PendingRequests()[0].CorrelationID

	if err := run.Resume(context.Background(), id, answer{Text: "ok"}); err != nil {
		t.Fatalf("first resume: %v", err)
	}
	err = run.Resume(context.Background(), id, answer{Text: "again"})
	if !IsCode(err, CodeUnknownOrExpiredRequest) {
		t.Fatalf("second resume error = %v, want code %s", err, CodeUnknownOrExpiredRequest)
	}
	if handled != 1 {
		t.Fatalf("response handler ran %d times, want 1", handled)
	}
}

func TestResumeTypeMismatchIsRetryable(t *testing.T) {
	graph := buildApproval(t, nil)

	run, err := NewRunner(graph).Run(context.Background(), greeting{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id := run.PendingRequests()[0].CorrelationID

	err = run.Resume(context.Background(), id, processed{Name: "wrong"})
	if !IsCode(err, CodeResponseTypeMismatch) {
		t.Fatalf("error = %v, want code %s", err, CodeResponseTypeMismatch)
	}
	if len(run.PendingRequests()) != 1 {
		t.Fatal("mismatched resume must leave the pending request open")
	}
	if got := run.Status(); got != RunSuspended {
		t.Fatalf("status = %s, want %s", got, RunSuspended)
	}

	if err := run.Resume(context.Background(), id, answer{Text: "ok"}); err != nil {
		t.Fatalf("retry with correct type: %v", err)
	}
	if got := run.Status(); got != RunCompleted {
		t.Fatalf("status = %s, want %s", got, RunCompleted)
	}
}

func TestResumeUnknownID(t *testing.T) {
	graph := buildApproval(t, nil)

	run, err := NewRunner(graph).Run(context.Background(), greeting{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = run.Resume(context.Background(), "no-such-id", answer{})
	if !IsCode(err, CodeUnknownOrExpiredRequest) {
		t.Fatalf("error = %v, want code %s", err, CodeUnknownOrExpiredRequest)
	}
}

func TestAbandonReleasesPendingRequests(t *testing.T) {
	graph := buildApproval(t, nil)

	run, err := NewRunner(graph).Run(context.Background(), greeting{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id := run.PendingRequests()[0].CorrelationID

	run.Abandon()
	if got := run.Status(); got != RunAbandoned {
		t.Fatalf("status = %s, want %s", got, RunAbandoned)
	}
	if len(run.PendingRequests()) != 0 {
		t.Fatal("abandon must release all pending requests")
	}

	err = run.Resume(context.Background(), id, answer{})
	if !IsCode(err, CodeUnknownOrExpiredRequest) {
		t.Fatalf("error = %v, want code %s", err, CodeUnknownOrExpiredRequest)
	}

	// Idempotent.
	run.Abandon()
	if got := run.Status(); got != RunAbandoned {
		t.Fatalf("status after second abandon = %s, want %s", got, RunAbandoned)
	}
}

// buildFanOut builds: splitter sends one routed message per lane; each lane
// sink requests an answer and yields its text on resume.
func buildFanOut(t *testing.T, lanes []string) *Graph {
	t.Helper()

	splitter := NewExecutor("splitter").OnMessage(TypeName(greeting{}), func(rc *RunContext, msg Message) error {
		for _, lane := range lanes {
			if err := rc.Send(routed{Lane: lane}); err != nil {
				return err
			}
		}
		return nil
	})

	builder := NewBuilder("fanout").SetStartExecutor(splitter)
	for _, lane := range lanes {
		lane := lane
		sink := NewExecutor("sink_" + lane)
		sink.OnMessage(TypeName(routed{}), func(rc *RunContext, msg Message) error {
			_, err := rc.RequestInfo(question{Prompt: lane}, TypeName(answer{}))
			return err
		})
		sink.OnResponse(TypeName(question{}), TypeName(answer{}), func(rc *RunContext, request, response Message) error {
			return rc.YieldOutput(response.Payload.(answer).Text)
		})
		builder.AddCaseEdge(splitter, sink, `lane == "`+lane+`"`)
	}

	graph, err := builder.Build()
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	return graph
}

func TestIndependentRequestsResolveIndependently(t *testing.T) {
	graph := buildFanOut(t, []string{"left", "right"})

	run, err := NewRunner(graph).Run(context.Background(), greeting{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pending := run.PendingRequests()
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}

	if err := run.Resume(context.Background(), pending[0].CorrelationID, answer{Text: "one"}); err != nil {
		t.Fatalf("first resume: %v", err)
	}
	if got := run.Status(); got != RunSuspended {
		t.Fatalf("status after first resume = %s, want %s", got, RunSuspended)
	}
	if got := len(run.PendingRequests()); got != 1 {
		t.Fatalf("pending after first resume = %d, want 1", got)
	}

	if err := run.Resume(context.Background(), pending[1].CorrelationID, answer{Text: "two"}); err != nil {
		t.Fatalf("second resume: %v", err)
	}
	if got := run.Status(); got != RunCompleted {
		t.Fatalf("status = %s, want %s", got, RunCompleted)
	}
	if got := len(run.Outputs()); got != 2 {
		t.Fatalf("outputs = %d, want 2", got)
	}
}

func TestConcurrentResumes(t *testing.T) {
	lanes := []string{"l0", "l1", "l2", "l3", "l4", "l5", "l6", "l7"}
	graph := buildFanOut(t, lanes)

	run, err := NewRunner(graph).Run(context.Background(), greeting{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pending := run.PendingRequests()
	if len(pending) != len(lanes) {
		t.Fatalf("pending = %d, want %d", len(pending), len(lanes))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(pending))
	for i, p := range pending {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs[i] = run.Resume(context.Background(), id, answer{Text: id})
		}(i, p.CorrelationID)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("resume %d: %v", i, err)
		}
	}
	if got := run.Status(); got != RunCompleted {
		t.Fatalf("status = %s, want %s", got, RunCompleted)
	}
	if got := len(run.Outputs()); got != len(lanes) {
		t.Fatalf("outputs = %d, want %d", got, len(lanes))
	}
}

func TestPartialOutputPreservedAcrossSuspension(t *testing.T) {
	splitter := NewExecutor("splitter").OnMessage(TypeName(greeting{}), func(rc *RunContext, msg Message) error {
		if err := rc.Send(routed{Lane: "eager"}); err != nil {
			return err
		}
		return rc.Send(routed{Lane: "patient"})
	})
	eager := NewExecutor("eager").OnMessage(TypeName(routed{}), func(rc *RunContext, msg Message) error {
		return rc.YieldOutput("early")
	})
	patient := NewExecutor("patient")
	patient.OnMessage(TypeName(routed{}), func(rc *RunContext, msg Message) error {
		_, err := rc.RequestInfo(question{}, TypeName(answer{}))
		return err
	})
	patient.OnResponse(TypeName(question{}), TypeName(answer{}), func(rc *RunContext, request, response Message) error {
		return rc.YieldOutput("late")
	})

	graph, err := NewBuilder("partial").
		SetStartExecutor(splitter).
		AddCaseEdge(splitter, eager, `lane == "eager"`).
		AddCaseEdge(splitter, patient, `lane == "patient"`).
		Build()
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}

	run, err := NewRunner(graph).Run(context.Background(), greeting{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := run.Status(); got != RunSuspended {
		t.Fatalf("status = %s, want %s", got, RunSuspended)
	}
	outputs := run.Outputs()
	if len(outputs) != 1 || outputs[0] != "early" {
		t.Fatalf("outputs before resume = %v, want [early]", outputs)
	}

	id := run.PendingRequests()[0].CorrelationID
	if err := run.Resume(context.Background(), id, answer{}); err != nil {
		t.Fatalf("resume: %v", err)
	}
	outputs = run.Outputs()
	if len(outputs) != 2 || outputs[1] != "late" {
		t.Fatalf("outputs after resume = %v, want [early late]", outputs)
	}
}

func TestHandlerContractViolations(t *testing.T) {
	tests := []struct {
		name string
		fn   HandlerFunc
	}{
		{
			"request after send",
			func(rc *RunContext, msg Message) error {
				if err := rc.Send(processed{}); err != nil {
					return err
				}
				_, err := rc.RequestInfo(question{}, TypeName(answer{}))
				return err
			},
		},
		{
			"send after request",
			func(rc *RunContext, msg Message) error {
				if _, err := rc.RequestInfo(question{}, TypeName(answer{})); err != nil {
					return err
				}
				return rc.Send(processed{})
			},
		},
		{
			"yield after send",
			func(rc *RunContext, msg Message) error {
				if err := rc.Send(processed{}); err != nil {
					return err
				}
				return rc.YieldOutput("x")
			},
		},
		{
			"second request",
			func(rc *RunContext, msg Message) error {
				if _, err := rc.RequestInfo(question{}, TypeName(answer{})); err != nil {
					return err
				}
				_, err := rc.RequestInfo(question{}, TypeName(answer{}))
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := NewExecutor("source").OnMessage(TypeName(greeting{}), tt.fn)
			sink := NewExecutor("sink").OnMessage(TypeName(processed{}), func(rc *RunContext, msg Message) error {
				return nil
			})
			graph, err := NewBuilder("contract").SetStartExecutor(source).AddEdge(source, sink).Build()
			if err != nil {
				t.Fatalf("unexpected build error: %v", err)
			}

			run, err := NewRunner(graph).Run(context.Background(), greeting{})
			if !IsCode(err, CodeHandlerContract) {
				t.Fatalf("error = %v, want code %s", err, CodeHandlerContract)
			}
			if got := run.Status(); got != RunFailed {
				t.Fatalf("status = %s, want %s", got, RunFailed)
			}
		})
	}
}

func TestEventTimeline(t *testing.T) {
	graph := buildApproval(t, nil)

	var mu sync.Mutex
	var kinds []EventKind
	sink := EventSinkFunc(func(ev Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})

	run, err := NewRunner(graph, WithEventSink(sink)).Run(context.Background(), greeting{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id := run.PendingRequests()[0].CorrelationID
	if err := run.Resume(context.Background(), id, answer{Text: "go"}); err != nil {
		t.Fatalf("resume: %v", err)
	}

	want := []EventKind{
		EventRunStarted,
		EventExecutorInvoked,
		EventRequestPending,
		EventRunSuspended,
		EventRequestResolved,
		EventExecutorInvoked,
		EventOutputYielded,
		EventRunCompleted,
	}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events = %v, want %v", kinds, want)
		}
	}
}

func TestFailedRunExposesCodeAndMessage(t *testing.T) {
	source := NewExecutor("source").OnMessage(TypeName(greeting{}), func(rc *RunContext, msg Message) error {
		return rc.Send(routed{Lane: "none"})
	})
	sink := NewExecutor("sink").OnMessage(TypeName(routed{}), func(rc *RunContext, msg Message) error {
		return nil
	})
	graph, err := NewBuilder("failing").
		SetStartExecutor(source).
		AddCaseEdge(source, sink, `lane == "known"`).
		Build()
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}

	run, _ := NewRunner(graph).Run(context.Background(), greeting{})
	result := run.Result()
	if result.Status != RunFailed {
		t.Fatalf("status = %s, want %s", result.Status, RunFailed)
	}
	if !strings.Contains(result.Error, string(CodeNoMatchingRoute)) {
		t.Errorf("result error %q should carry the code %s", result.Error, CodeNoMatchingRoute)
	}
}
