// Package apperr defines the error kinds shared across every subsystem. It
// mirrors the teacher's habit of wrapping a cause with
// fmt.Errorf("...: %w", err) (see internal/store/local_core.go in the
// teacher repo) but adds a Kind so callers can branch on recovery policy
// without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purpose of propagation/recovery policy.
type Kind string

const (
	Unauthorized   Kind = "unauthorized"
	Forbidden      Kind = "forbidden"
	Conflict       Kind = "conflict"
	Blocked        Kind = "blocked"
	PIIDetected    Kind = "pii_detected"
	Expired        Kind = "expired"
	TransientStore Kind = "transient_store"
	FatalConfig    Kind = "fatal_config"
)

// Error is a typed error carrying a Kind and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a kind-tagged error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a kind-tagged error around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
