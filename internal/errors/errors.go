// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error kinds
// and human-friendly messages, so callers can distinguish local validation problems
// from remote failures, transport failures, and user-initiated cancellation.
//
// The package supports wrapping underlying errors while maintaining error kind information,
// making it easier to handle different types of failures appropriately.
package errors

import "fmt"

// Kind is a machine-readable error category.
type Kind string

const (
	// Validation indicates a malformed submission rejected before any remote call.
	Validation Kind = "validation"
	// Remote indicates a failure reported by the orchestrator itself.
	Remote Kind = "remote"
	// Network indicates a transport-level connectivity failure.
	Network Kind = "network"
	// Timeout indicates a transport-level timeout.
	Timeout Kind = "timeout"
	// Cancelled indicates the user aborted the query. Never retried.
	Cancelled Kind = "cancelled"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the kind of err when it is an *E, or the empty Kind.
func KindOf(err error) Kind {
	if e, ok := err.(*E); ok {
		return e.Kind
	}
	return ""
}
