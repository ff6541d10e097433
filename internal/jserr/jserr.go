// Package jserr defines the JS-visible error taxonomy as Go error types: a
// Message plus an Unwrap-able Cause, covering TypeError, ReferenceError,
// SyntaxError, RangeError, URIError, EvalError, and AggregateError (with
// multi-error Unwrap).
package jserr

import (
	"errors"
	"fmt"
	"strings"
)

// Subkind tags which JS error constructor a Go error corresponds to.
type Subkind uint8

const (
	SubkindType Subkind = iota
	SubkindReference
	SubkindSyntax
	SubkindRange
	SubkindURI
	SubkindEval
	SubkindAggregate
)

func (s Subkind) String() string {
	switch s {
	case SubkindType:
		return "TypeError"
	case SubkindReference:
		return "ReferenceError"
	case SubkindSyntax:
		return "SyntaxError"
	case SubkindRange:
		return "RangeError"
	case SubkindURI:
		return "URIError"
	case SubkindEval:
		return "EvalError"
	case SubkindAggregate:
		return "AggregateError"
	default:
		return "Error"
	}
}

// ScriptError is the common shape of every signaled-value error this
// package defines: a subkind tag, a message, and an optional cause chain.
type ScriptError struct {
	Kind    Subkind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind.String(), e.Message)
}

// Unwrap returns the underlying cause for errors.Is/errors.As.
func (e *ScriptError) Unwrap() error { return e.Cause }

// Is reports whether target is a *ScriptError of the same Kind, so
// errors.Is(err, jserr.TypeError("")) style matching works without
// comparing messages.
func (e *ScriptError) Is(target error) bool {
	var other *ScriptError
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func newf(kind Subkind, format string, args ...any) *ScriptError {
	return &ScriptError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// TypeError constructs a TypeError-kind ScriptError.
func TypeError(format string, args ...any) *ScriptError { return newf(SubkindType, format, args...) }

// ReferenceError constructs a ReferenceError-kind ScriptError.
func ReferenceError(format string, args ...any) *ScriptError {
	return newf(SubkindReference, format, args...)
}

// SyntaxError constructs a SyntaxError-kind ScriptError.
func SyntaxError(format string, args ...any) *ScriptError {
	return newf(SubkindSyntax, format, args...)
}

// RangeError constructs a RangeError-kind ScriptError.
func RangeError(format string, args ...any) *ScriptError { return newf(SubkindRange, format, args...) }

// URIError constructs a URIError-kind ScriptError.
func URIError(format string, args ...any) *ScriptError { return newf(SubkindURI, format, args...) }

// EvalError constructs an EvalError-kind ScriptError.
func EvalError(format string, args ...any) *ScriptError { return newf(SubkindEval, format, args...) }

// WithCause returns a copy of e with Cause set, for wrapping a lower-level
// Go error behind a JS-visible one while preserving errors.Is/As traversal.
func (e *ScriptError) WithCause(cause error) *ScriptError {
	clone := *e
	clone.Cause = cause
	return &clone
}

// AggregateError collects multiple errors under a single JS-visible value,
// used by Promise.any when every input promise rejects. Errors preserves
// iteration order.
type AggregateError struct {
	Message string
	Errors  []error
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	prefix := e.Message
	if prefix == "" {
		prefix = SubkindAggregate.String()
	}
	return fmt.Sprintf("%s (%d errors): %s", prefix, len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap returns the wrapped errors slice, enabling errors.Is/As to search
// every contained error (Go 1.20+ multi-error unwrapping).
func (e *AggregateError) Unwrap() []error { return e.Errors }

// Is reports true for any target that is itself an *AggregateError,
// regardless of contents.
func (e *AggregateError) Is(target error) bool {
	var other *AggregateError
	return errors.As(target, &other)
}

// NewAggregateError constructs an AggregateError over errs in order.
func NewAggregateError(message string, errs []error) *AggregateError {
	return &AggregateError{Message: message, Errors: errs}
}

// Fatal represents an engine-internal failure distinct from a JS-visible
// signaled error: heap corruption detected by gc.Collector.VerifyHeap, an
// impossible Promise state transition, or any other condition that must
// abort rather than be raised as a script value. Fatal is never converted
// to a jsvalue.Value; it always propagates as a Go panic or a top-level
// Context abort.
type Fatal struct {
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *Fatal) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fatal engine error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("fatal engine error: %s", e.Reason)
}

// Unwrap returns the underlying cause, if any.
func (e *Fatal) Unwrap() error { return e.Cause }

// NewFatal constructs a Fatal error.
func NewFatal(reason string, cause error) *Fatal {
	return &Fatal{Reason: reason, Cause: cause}
}
