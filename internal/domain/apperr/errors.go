// Package apperr defines the error taxonomy shared by the approval engine and its adapters.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrBadRequest covers malformed input, inactive workflows, invalid stage
	// configuration and unresolvable non-optional approvers
	ErrBadRequest = errors.New("bad request")

	// ErrUnauthorized is returned when no acting principal is present or the
	// principal may not act on a stage
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned for unknown workflows, requests and executions
	ErrNotFound = errors.New("not found")

	// ErrConflict covers duplicate codes, out-of-sequence and repeated decisions
	ErrConflict = errors.New("conflict")
)

// BadRequest wraps ErrBadRequest with a formatted message
func BadRequest(format string, args ...interface{}) error {
	return wrap(ErrBadRequest, format, args...)
}

// Unauthorized wraps ErrUnauthorized with a formatted message
func Unauthorized(format string, args ...interface{}) error {
	return wrap(ErrUnauthorized, format, args...)
}

// NotFound wraps ErrNotFound with a formatted message
func NotFound(format string, args ...interface{}) error {
	return wrap(ErrNotFound, format, args...)
}

// Conflict wraps ErrConflict with a formatted message
func Conflict(format string, args ...interface{}) error {
	return wrap(ErrConflict, format, args...)
}

// Kind returns the taxonomy sentinel err belongs to, or nil for internal errors
func Kind(err error) error {
	for _, sentinel := range []error{ErrBadRequest, ErrUnauthorized, ErrNotFound, ErrConflict} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

func wrap(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
