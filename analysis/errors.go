package analysis

import (
	"errors"
)

// Error types separating the two analysis failure modes: unavailable means
// the backend could not be reached (retry later), rejected means the backend
// responded but the response is unusable (never retry).

// UnavailableError represents a transient failure that may succeed on retry.
type UnavailableError struct {
	err error
}

func (e *UnavailableError) Error() string {
	return e.err.Error()
}

func (e *UnavailableError) Unwrap() error {
	return e.err
}

// NewUnavailableError wraps an error as transient (retryable).
func NewUnavailableError(err error) error {
	return &UnavailableError{err: err}
}

// RejectedError represents a permanent failure: the backend answered but its
// output cannot be used, or the request itself is malformed.
type RejectedError struct {
	err error
}

func (e *RejectedError) Error() string {
	return e.err.Error()
}

func (e *RejectedError) Unwrap() error {
	return e.err
}

// NewRejectedError wraps an error as permanent (non-retryable).
func NewRejectedError(err error) error {
	return &RejectedError{err: err}
}

// IsUnavailable returns true if the error is transient and worth retrying.
func IsUnavailable(err error) bool {
	var unavailable *UnavailableError
	return errors.As(err, &unavailable)
}

// IsRejected returns true if the error is permanent and must not be retried.
func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}
