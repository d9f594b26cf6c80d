package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation marks malformed input rejected before any state change.
	ErrValidation = errors.New("validation error")
	// ErrPreconditionFailed marks an operation attempted against a row in the
	// wrong state. Callers should re-read state and retry or abort.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrConstraintViolation marks a write that would break a uniqueness or
	// mutual-exclusion invariant. Never retried, never coerced.
	ErrConstraintViolation = errors.New("constraint violation")
)
