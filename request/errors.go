package request

import (
	"errors"
	"fmt"
)

var (
	// ErrNotPending is returned by operations that require a request
	// still in Pending when it has already reached a terminal status.
	ErrNotPending = errors.New("request: not pending")

	// ErrResponseUnavailable is returned by Take when the request's
	// status is not Done (it is still pending, already emptied, or it
	// failed/timed out/was cancelled).
	ErrResponseUnavailable = errors.New("request: response unavailable")

	// ErrEasyInit is returned when the engine fails to prepare a
	// request for attachment to the transport.
	ErrEasyInit = errors.New("request: failed to initialize transport handle")

	// ErrInvalidConfig is returned by [Builder.Send] when the
	// accumulated configuration fails validation.
	ErrInvalidConfig = errors.New("request: invalid configuration")
)

// Error wraps a sentinel error with a human-readable detail string.
type Error struct {
	Err    error
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}
