// Package ingesterrors provides structured error handling for the ingestion
// pipeline with error categorization and contextual key/value detail.
//
// Errors are categorized by type, which drives the pipeline's failure
// handling: connection and transfer errors are transient and retried,
// parse and load errors are file-fatal, validation errors are record-fatal,
// and config errors abort startup.
//
//	if err := client.Connect(ctx); err != nil {
//	    return ingesterrors.Wrap(err, ingesterrors.ErrorTypeConnection, "sftp connect failed").
//	        WithDetail("host", host)
//	}
package ingesterrors

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error, used to decide between
// retrying, skipping a file, dropping a record, or aborting the run.
type ErrorType string

const (
	// ErrorTypeConnection represents session-level failures against the
	// remote endpoint (connect, list). Transient.
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeTransfer represents partial or failed file transfers. Transient.
	ErrorTypeTransfer ErrorType = "transfer"
	// ErrorTypeParse represents malformed input payloads. File-fatal.
	ErrorTypeParse ErrorType = "parse"
	// ErrorTypeValidation represents records failing coercion, date parsing,
	// or required-field presence. Record-fatal, or batch-fatal when the input
	// shape is missing required columns entirely.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeLoad represents store failures. File-fatal, never retried.
	ErrorTypeLoad ErrorType = "load"
	// ErrorTypeConfig represents configuration errors. Fatal at startup.
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeInternal represents everything else.
	ErrorTypeInternal ErrorType = "internal"
)

// Error is a structured error carrying a category, a human-readable
// message, an optional cause, and key/value details for alerting.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As
// over the full chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key/value detail to the error. Chainable.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Wrap wraps an existing error with a type and message, preserving the
// original as the cause. Returns nil if err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// IsRetryable reports whether the error is transient. Only connection and
// transfer errors qualify; store failures usually indicate configuration or
// schema problems, not transience, so load errors are never retried.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Type {
	case ErrorTypeConnection, ErrorTypeTransfer:
		return true
	default:
		return false
	}
}

// IsType checks whether the error chain contains an Error of the given type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}
