package engine

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/born-ml/sparse/internal/container"
)

// Status classifies the outcome of a dispatch.
type Status uint8

// Statuses.
const (
	StatusOk Status = iota
	StatusError
	StatusNotImplemented
	StatusInvalidArgument
	StatusNoAcceleration
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusError:
		return "error"
	case StatusNotImplemented:
		return "not implemented"
	case StatusInvalidArgument:
		return "invalid argument"
	case StatusNoAcceleration:
		return "no acceleration"
	default:
		return fmt.Sprintf("Status(%d)", s)
	}
}

// Error is an error carrying a Status.
type Error struct {
	Status Status
	Err    error
}

// Error implements error.
func (e *Error) Error() string {
	return e.Status.String() + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Cause returns the underlying error, for errors.Cause.
func (e *Error) Cause() error { return e.Err }

// WithStatus attaches a status to err. A nil err stays nil.
func WithStatus(status Status, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Status: status, Err: err}
}

// Errorf creates an error with a status.
func Errorf(status Status, format string, args ...any) error {
	return &Error{Status: status, Err: errors.Errorf(format, args...)}
}

// StatusOf classifies err. nil is StatusOk; errors without an attached
// status are classified by their sentinel, defaulting to StatusError.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOk
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	switch {
	case errors.Is(err, container.ErrOutOfRange), errors.Is(err, container.ErrShape):
		return StatusInvalidArgument
	case errors.Is(err, container.ErrNoAccelerator):
		return StatusNoAcceleration
	default:
		return StatusError
	}
}
