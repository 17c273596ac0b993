// Package ierrors implements the error taxonomy of the dispatcher and
// code-generation layers: a small closed set of typed causes, each
// wrapped with a stack trace via github.com/pkg/errors so a failure can
// be traced back through scheduler -> symbolic -> codegen without losing
// the originating call site.
package ierrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the closed taxonomy from the error-handling design: validation
// errors abort the current Execute call with no side effects, driver
// errors propagate as-is, and nothing here is retried automatically.
type Kind string

const (
	// UnknownDatatype: an internal call received an out-of-range dtype enum.
	UnknownDatatype Kind = "unknown_datatype"
	// OperationNotSupported: no dispatch entry for (kind, dtype), or an
	// unsupported operator tree.
	OperationNotSupported Kind = "operation_not_supported"
	// SemanticError: the expression violates a shape/dtype invariant.
	SemanticError Kind = "semantic_error"
	// CodeGenerationError: a template's generator raised an invariant
	// beyond what IsInvalid already validated.
	CodeGenerationError Kind = "code_generation_error"
	// RuntimeError: would-exceed-workspace and other post-dispatch failures.
	RuntimeError Kind = "runtime_error"
)

// Error is a typed, stack-carrying error value.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.cause)
}

// Unwrap lets errors.Is/As see through to the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// New builds a Kind error from a message, with a stack trace attached at
// the call site.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, cause: errors.Errorf(format, args...)}
}

// Wrap attaches kind and a stack trace (if the cause doesn't already
// carry one) to an existing error.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, cause: errors.Wrap(cause, msg)}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// StackTrace exposes the pkg/errors stack of the wrapped cause, if any,
// for diagnostic logging at the dispatcher boundary.
func (e *Error) StackTrace() errors.StackTrace {
	type stackTracer interface{ StackTrace() errors.StackTrace }
	if st, ok := e.cause.(stackTracer); ok {
		return st.StackTrace()
	}
	return nil
}
