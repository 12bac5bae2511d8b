package analysis

import (
	"errors"
	"fmt"
)

// Kind classifies where in the pipeline an analysis failed. The kind
// stays internal (logging, metrics, HTTP status mapping); clients only
// ever see one uniform "analysis failed" message.
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindConfiguration     Kind = "configuration"
	KindToolAcquisition   Kind = "tool_acquisition"
	KindBackendInvocation Kind = "backend_invocation"
	KindOutputValidation  Kind = "output_validation"
)

// Error tags a pipeline failure with its kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind.
func E(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the failure kind from an error chain, or "" when
// the error was not produced by the pipeline.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the original cause message without the kind prefix,
// for the uniform client-visible error.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
