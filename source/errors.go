package source

import (
	"errors"
)

// UnavailableError represents a transient RPC failure: the node was
// unreachable, overloaded, or answered with an error. The realm's cycle is
// skipped and retried on the next poll interval; no data is lost.
type UnavailableError struct {
	err error
}

func (e *UnavailableError) Error() string {
	return e.err.Error()
}

func (e *UnavailableError) Unwrap() error {
	return e.err
}

// NewUnavailableError wraps an error as a transient source failure.
func NewUnavailableError(err error) error {
	return &UnavailableError{err: err}
}

// IsUnavailable returns true if the error is transient and the fetch is
// worth repeating on a later cycle.
func IsUnavailable(err error) bool {
	var unavailable *UnavailableError
	return errors.As(err, &unavailable)
}
