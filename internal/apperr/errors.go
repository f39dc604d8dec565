// Package apperr defines the error taxonomy shared by the storage and
// lifecycle layers.
//
// Every failure that crosses a package boundary is an *Error carrying a Kind:
//
//   - NOT_FOUND: a referenced id does not exist
//   - VALIDATION: malformed input or an illegal domain operation
//   - DUPLICATE: a unique constraint would be violated
//   - CONCURRENCY: a lock could not be acquired before the timeout
//
// Callers branch on the kind with the Is* helpers, which use errors.As so
// that fmt.Errorf("...: %w", err) wrapping is preserved.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind categorizes an Error.
type Kind string

const (
	// KindNotFound indicates a referenced id is absent.
	KindNotFound Kind = "NOT_FOUND"

	// KindValidation indicates malformed input or an illegal operation.
	KindValidation Kind = "VALIDATION"

	// KindDuplicate indicates a unique-constraint violation.
	KindDuplicate Kind = "DUPLICATE"

	// KindConcurrency indicates a lock acquisition timeout.
	KindConcurrency Kind = "CONCURRENCY"
)

// ErrInvalidTransition is wrapped by validation errors raised for illegal
// state transitions, so callers can tell them apart from bad input.
var ErrInvalidTransition = errors.New("invalid state transition")

// Error is the structured error returned by the core packages.
type Error struct {
	Kind    Kind
	Message string

	// Entity and ID identify the record involved, when there is one.
	Entity string
	ID     string

	// Field names the violated attribute for duplicate errors.
	Field string

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil && !errors.Is(e.Err, ErrInvalidTransition) {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound creates a NOT_FOUND error for the given entity and id.
func NotFound(entity, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s with id '%s' not found", entity, id),
		Entity:  entity,
		ID:      id,
	}
}

// Validation creates a VALIDATION error with a formatted message.
func Validation(format string, args ...any) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// InvalidTransition creates a VALIDATION error for an illegal state change.
func InvalidTransition(entity, from, to string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: fmt.Sprintf("cannot transition %s from '%s' to '%s'", entity, from, to),
		Entity:  entity,
		Err:     ErrInvalidTransition,
	}
}

// Duplicate creates a DUPLICATE error for a field value that already exists.
func Duplicate(entity, field, value string) *Error {
	return &Error{
		Kind:    KindDuplicate,
		Message: fmt.Sprintf("%s with %s='%s' already exists", entity, field, value),
		Entity:  entity,
		Field:   field,
		ID:      value,
	}
}

// Concurrency creates a CONCURRENCY error for a lock wait that timed out.
func Concurrency(key string, timeout time.Duration) *Error {
	return &Error{
		Kind:    KindConcurrency,
		Message: fmt.Sprintf("lock timeout for %s after %s", key, timeout),
		ID:      key,
		Err:     context.DeadlineExceeded,
	}
}

// KindOf returns the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsValidation reports whether err is a VALIDATION error.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// IsDuplicate reports whether err is a DUPLICATE error.
func IsDuplicate(err error) bool {
	return KindOf(err) == KindDuplicate
}

// IsConcurrency reports whether err is a CONCURRENCY error.
func IsConcurrency(err error) bool {
	return KindOf(err) == KindConcurrency
}

// IsRetryable reports whether the caller may retry the same request.
// Only lock timeouts are transient; every other kind is terminal.
func IsRetryable(err error) bool {
	return IsConcurrency(err)
}
