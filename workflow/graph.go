package workflow

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Edge routes a handler's output from one executor to another. A case edge
// carries a predicate over the outgoing message; an edge without a condition
// is the default route taken when no case matches. Edges from the same
// source are evaluated in declaration order and the first matching case
// wins.
type Edge struct {
	From      string
	To        string
	Condition string // empty for the default edge
	program   *vm.Program
}

// Graph is an immutable workflow topology: a set of executors, directed
// edges between them, and one start executor. A built Graph holds no mutable
// state and may serve many concurrent runs.
type Graph struct {
	name      string
	start     string
	executors map[string]*Executor
	edges     map[string][]Edge
}

func (g *Graph) Name() string {
	return g.name
}

func (g *Graph) Start() *Executor {
	return g.executors[g.start]
}

func (g *Graph) executor(name string) (*Executor, bool) {
	e, ok := g.executors[name]
	return e, ok
}

// route selects the destination executor for a message leaving from.
// Case predicates are evaluated against a map view of the payload in
// declaration order; if none matches, the default edge applies.
func (g *Graph) route(from string, msg Message) (*Executor, error) {
	edges := g.edges[from]
	if len(edges) == 0 {
		return nil, newError(CodeNoMatchingRoute, from, "no outgoing edge for message type %q", msg.Type)
	}

	var env map[string]any
	var deflt *Executor

	for _, edge := range edges {
		if edge.program == nil {
			if deflt == nil {
				deflt = g.executors[edge.To]
			}
			continue
		}

		if env == nil {
			m, err := toEnv(msg.Payload)
			if err != nil {
				return nil, &Error{
					Code:     CodeInvalidGraph,
					Message:  fmt.Sprintf("cannot build predicate env for message type %q", msg.Type),
					Executor: from,
					Cause:    err,
				}
			}
			env = m
		}

		result, err := expr.Run(edge.program, env)
		if err != nil {
			return nil, &Error{
				Code:     CodeInvalidGraph,
				Message:  fmt.Sprintf("case predicate %q failed", edge.Condition),
				Executor: from,
				Cause:    err,
			}
		}
		matched, ok := result.(bool)
		if !ok {
			return nil, newError(CodeInvalidGraph, from, "case predicate %q evaluated to %T, expected boolean", edge.Condition, result)
		}
		if matched {
			return g.executors[edge.To], nil
		}
	}

	if deflt != nil {
		return deflt, nil
	}
	return nil, newError(CodeNoMatchingRoute, from, "no case matched message type %q and no default edge declared", msg.Type)
}

// Builder assembles a Graph. Problems found while adding executors and edges
// are collected and reported by Build together with the construction-time
// topology checks.
type Builder struct {
	name      string
	start     string
	executors map[string]*Executor
	edges     map[string][]Edge
	sources   []string // edge sources in declaration order, for stable validation
	errs      []error
}

func NewBuilder(name string) *Builder {
	return &Builder{
		name:      name,
		executors: make(map[string]*Executor),
		edges:     make(map[string][]Edge),
	}
}

// SetStartExecutor registers e and marks it as the graph entry point.
func (b *Builder) SetStartExecutor(e *Executor) *Builder {
	if b.start != "" && b.start != e.Name() {
		b.errs = append(b.errs, newError(CodeInvalidGraph, "", "start executor already set to %q", b.start))
		return b
	}
	b.register(e)
	b.start = e.Name()
	return b
}

// AddEdge declares a default (always) edge from one executor to another.
func (b *Builder) AddEdge(from, to *Executor) *Builder {
	return b.addEdge(from, to, "")
}

// AddCaseEdge declares a conditional edge. The condition is an expr-lang
// expression over the outgoing message's json-tagged fields and must
// evaluate to a boolean, e.g. `incident_severity == "sev1"`.
func (b *Builder) AddCaseEdge(from, to *Executor, condition string) *Builder {
	if condition == "" {
		b.errs = append(b.errs, newError(CodeInvalidGraph, from.Name(), "case edge to %q has an empty condition", to.Name()))
		return b
	}
	return b.addEdge(from, to, condition)
}

func (b *Builder) addEdge(from, to *Executor, condition string) *Builder {
	b.register(from)
	b.register(to)
	if _, ok := b.edges[from.Name()]; !ok {
		b.sources = append(b.sources, from.Name())
	}
	b.edges[from.Name()] = append(b.edges[from.Name()], Edge{
		From:      from.Name(),
		To:        to.Name(),
		Condition: condition,
	})
	return b
}

func (b *Builder) register(e *Executor) {
	if e.Name() == "" {
		b.errs = append(b.errs, newError(CodeInvalidGraph, "", "executor has an empty name"))
		return
	}
	if existing, ok := b.executors[e.Name()]; ok && existing != e {
		b.errs = append(b.errs, newError(CodeInvalidGraph, e.Name(), "two different executors registered under the same name"))
		return
	}
	b.executors[e.Name()] = e
}

// Build validates the topology and returns the immutable Graph. Checks:
// exactly one start executor, all case predicates compile, at most one
// default edge per source, every non-start executor reachable from the
// start, and declared handler output types compatible with each edge's
// target.
func (b *Builder) Build() (*Graph, error) {
	errs := b.errs

	if b.start == "" {
		errs = append(errs, newError(CodeInvalidGraph, "", "no start executor set"))
	}

	for _, source := range b.sources {
		defaults := 0
		for i, edge := range b.edges[source] {
			if edge.Condition == "" {
				defaults++
				continue
			}
			program, err := expr.Compile(edge.Condition, expr.AllowUndefinedVariables())
			if err != nil {
				errs = append(errs, &Error{
					Code:     CodeInvalidGraph,
					Message:  fmt.Sprintf("case predicate %q does not compile", edge.Condition),
					Executor: source,
					Cause:    err,
				})
				continue
			}
			b.edges[source][i].program = program
		}
		if defaults > 1 {
			errs = append(errs, newError(CodeInvalidGraph, source, "multiple default edges declared"))
		}
	}

	errs = append(errs, b.checkCompatibility()...)

	if b.start != "" {
		errs = append(errs, b.checkReachability()...)
	}

	if len(errs) > 0 {
		return nil, joinErrors(errs)
	}

	return &Graph{
		name:      b.name,
		start:     b.start,
		executors: b.executors,
		edges:     b.edges,
	}, nil
}

// checkCompatibility verifies, for every edge whose source declares its
// emitted types, that the target accepts at least one of them. Sources with
// no declaration are skipped.
func (b *Builder) checkCompatibility() []error {
	var errs []error
	for _, source := range b.sources {
		emitted := b.executors[source].emittedTypes()
		if len(emitted) == 0 {
			continue
		}
		for _, edge := range b.edges[source] {
			target := b.executors[edge.To]
			compatible := false
			for _, t := range emitted {
				if target.accepts(t) {
					compatible = true
					break
				}
			}
			if !compatible {
				errs = append(errs, newError(CodeInvalidGraph, source,
					"edge to %q carries none of the declared output types %v", edge.To, emitted))
			}
		}
	}
	return errs
}

func (b *Builder) checkReachability() []error {
	reached := map[string]bool{b.start: true}
	frontier := []string{b.start}
	for len(frontier) > 0 {
		name := frontier[0]
		frontier = frontier[1:]
		for _, edge := range b.edges[name] {
			if !reached[edge.To] {
				reached[edge.To] = true
				frontier = append(frontier, edge.To)
			}
		}
	}

	var errs []error
	for name := range b.executors {
		if !reached[name] {
			errs = append(errs, newError(CodeInvalidGraph, name, "executor is not reachable from start executor %q", b.start))
		}
	}
	return errs
}

func joinErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	msg := fmt.Sprintf("%d graph validation errors", len(errs))
	for _, err := range errs {
		msg += "\n  - " + err.Error()
	}
	return &Error{Code: CodeInvalidGraph, Message: msg}
}
