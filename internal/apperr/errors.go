// Package apperr defines the structured error values exposed at the service
// boundary. Every error that crosses from the engine to a caller is one of
// these kinds with a message and a context map, never a raw panic.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error at the service boundary
type Kind string

const (
	// KindConfiguration - invalid parameter ranges, zero strategies, bad batch
	// size, or a conflicting submission. Rejected synchronously, no job created.
	KindConfiguration Kind = "CONFIGURATION_ERROR"
	// KindDataUnavailable - historical data missing for the requested
	// symbol/timeframe/range. Aborts the job before any run starts.
	KindDataUnavailable Kind = "DATA_UNAVAILABLE"
	// KindRunExecution - unexpected failure while simulating one specific
	// parameter assignment. Caught per run; the batch continues.
	KindRunExecution Kind = "RUN_EXECUTION_ERROR"
)

// Error is a structured application error
type Error struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`

	// status overrides the kind's default HTTP mapping (e.g. 409 for a
	// submission that conflicts with a running job)
	status int
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// WithContext returns the error with one context entry added
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithStatus overrides the HTTP status this error maps to
func (e *Error) WithStatus(status int) *Error {
	e.status = status
	return e
}

// HTTPStatus returns the HTTP status code for this error
func (e *Error) HTTPStatus() int {
	if e.status != 0 {
		return e.status
	}
	switch e.Kind {
	case KindConfiguration:
		return http.StatusBadRequest
	case KindDataUnavailable:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Configuration creates a ConfigurationError
func Configuration(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// DataUnavailable creates a DataUnavailableError
func DataUnavailable(format string, args ...any) *Error {
	return &Error{Kind: KindDataUnavailable, Message: fmt.Sprintf(format, args...)}
}

// RunExecution creates a RunExecutionError
func RunExecution(format string, args ...any) *Error {
	return &Error{Kind: KindRunExecution, Message: fmt.Sprintf(format, args...)}
}

// From converts any error into a structured Error. Errors that already carry a
// kind pass through unchanged; everything else becomes a RunExecutionError so
// unexpected failures stay inside the structured contract.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Kind: KindRunExecution, Message: err.Error()}
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}
