package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure. Kinds are stable and safe to expose to clients.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindInvalidInput       Kind = "invalid_input"
	KindSchedulingMismatch Kind = "scheduling_mismatch"
	KindConflictOnCreate   Kind = "conflict_on_create"
	KindStoreFailure       Kind = "store_failure"
)

// Error is the single error type returned by Service operations.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so callers can write
// errors.Is(err, domain.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "resource not found"}
	ErrInvalidInput       = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrSchedulingMismatch = &Error{Kind: KindSchedulingMismatch, Message: "date is outside the medication schedule"}
	// ErrConflictOnCreate is returned by repositories when a bucket for the same
	// (patient, day) was created concurrently. The service recovers from it.
	ErrConflictOnCreate = &Error{Kind: KindConflictOnCreate, Message: "bucket already exists"}
	ErrStoreFailure     = &Error{Kind: KindStoreFailure, Message: "store failure"}
	// ErrCounterOverflow is returned by repositories when an increment would push a
	// running total past MaxCount. It is an invalid_input error.
	ErrCounterOverflow = &Error{Kind: KindInvalidInput, Message: "running total would exceed the maximum count"}
)

// KindOf returns the kind of err, or KindStoreFailure for foreign errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindStoreFailure
}

func notFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func invalidInput(format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func schedulingMismatch(format string, args ...any) error {
	return &Error{Kind: KindSchedulingMismatch, Message: fmt.Sprintf(format, args...)}
}

// storeFailure wraps a repository error. Domain errors pass through untouched.
func storeFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: KindStoreFailure, Message: op, Cause: err}
}
