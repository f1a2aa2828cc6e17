package workflow

import (
	"errors"
	"fmt"
)

// Code identifies a class of engine failure.
type Code string

const (
	// CodeUnroutableMessage: a message reached an executor with no handler
	// declared for its type.
	CodeUnroutableMessage Code = "UNROUTABLE_MESSAGE"
	// CodeNoMatchingRoute: no case edge matched an outgoing message and the
	// source has no default edge.
	CodeNoMatchingRoute Code = "NO_MATCHING_ROUTE"
	// CodeResponseTypeMismatch: a resume carried a response of a different
	// type than the pending request declared. The request stays open.
	CodeResponseTypeMismatch Code = "RESPONSE_TYPE_MISMATCH"
	// CodeUnknownOrExpiredRequest: the correlation id is unknown, already
	// consumed, or belongs to an abandoned or finished run.
	CodeUnknownOrExpiredRequest Code = "UNKNOWN_OR_EXPIRED_REQUEST"
	// CodeInvalidGraph: the topology failed a construction-time check or a
	// case predicate could not be evaluated.
	CodeInvalidGraph Code = "INVALID_GRAPH"
	// CodeHandlerContract: a handler mixed sending, requesting, and yielding
	// in one invocation.
	CodeHandlerContract Code = "HANDLER_CONTRACT"
)

// Error is the canonical error type surfaced by the engine.
type Error struct {
	Code     Code
	Message  string
	Executor string
	Cause    error
}

func (e *Error) Error() string {
	if e.Executor != "" {
		return fmt.Sprintf("[%s] %s (executor: %s)", e.Code, e.Message, e.Executor)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by code, so callers can use errors.Is against the exported
// sentinels regardless of message and executor.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrUnroutableMessage       = &Error{Code: CodeUnroutableMessage}
	ErrNoMatchingRoute         = &Error{Code: CodeNoMatchingRoute}
	ErrResponseTypeMismatch    = &Error{Code: CodeResponseTypeMismatch}
	ErrUnknownOrExpiredRequest = &Error{Code: CodeUnknownOrExpiredRequest}
	ErrInvalidGraph            = &Error{Code: CodeInvalidGraph}
	ErrHandlerContract         = &Error{Code: CodeHandlerContract}
)

func newError(code Code, executor, format string, args ...any) *Error {
	return &Error{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Executor: executor,
	}
}

// IsCode reports whether err carries the given engine code anywhere in its
// chain.
func IsCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
