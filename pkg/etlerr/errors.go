package etlerr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// KindConfiguration indicates missing or invalid connection parameters.
	KindConfiguration Kind = "CONFIGURATION"

	// KindConnection indicates the warehouse could not be reached or authenticated.
	KindConnection Kind = "CONNECTION"

	// KindInsert indicates a row or the commit was rejected by the warehouse.
	KindInsert Kind = "INSERT"

	// KindTrigger indicates the downstream signal could not be published.
	KindTrigger Kind = "TRIGGER"
)

// NoRow marks an InsertError that is not tied to a single row (e.g. commit).
const NoRow = -1

// Error is a classified pipeline error.
type Error struct {
	Kind      Kind
	Message   string
	Row       int
	Transient bool
	Err       error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Kind == KindInsert && e.Row != NoRow {
		msg = fmt.Sprintf("%s (row %d)", msg, e.Row)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap implements the unwrap interface
func (e *Error) Unwrap() error {
	return e.Err
}

// NewConfigurationError creates a fatal configuration error.
func NewConfigurationError(message string) *Error {
	return &Error{Kind: KindConfiguration, Message: message, Row: NoRow}
}

// NewConnectionError creates a transient connection error.
func NewConnectionError(message string, err error) *Error {
	return &Error{Kind: KindConnection, Message: message, Row: NoRow, Transient: true, Err: err}
}

// NewInsertError creates an insert error for the given row index.
func NewInsertError(row int, err error, transient bool) *Error {
	msg := "insert rejected"
	if row == NoRow {
		msg = "transaction rejected"
	}
	return &Error{Kind: KindInsert, Message: msg, Row: row, Transient: transient, Err: err}
}

// NewTriggerError creates a downstream trigger error. Rows are already committed,
// so it is never retryable.
func NewTriggerError(err error) *Error {
	return &Error{Kind: KindTrigger, Message: "downstream trigger failed", Row: NoRow, Err: err}
}

// KindOf returns the Kind of err, or "" if err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether a scheduler should retry the run that produced err.
// Unclassified errors are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Transient
	}
	return true
}
