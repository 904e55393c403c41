package avctl

import (
	"errors"
	"fmt"
)

// Errors returned at the [Session] boundary. Engine failures are reported
// as [*StatusError] values, which match [ErrIOFailure] through errors.Is().
var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrNotInitialized       = errors.New("no data source set")
	ErrAlreadyInProgress    = errors.New("prepare already in progress")
	ErrIOFailure            = errors.New("engine i/o failure")
	ErrFatalLoopTermination = errors.New("message loop terminated")
	ErrAborted              = errors.New("operation aborted by reset or release")
	ErrReleased             = errors.New("session already released")
	ErrQueueAborted         = errors.New("message queue aborted")
)

// Status codes used on the wire between engines and listeners. Engines may
// report any negative code of their own; these are the ones this package
// produces itself.
const (
	StatusOK          = 0
	StatusUnknown     = -1
	StatusIO          = -5
	StatusNoMemory    = -12
	StatusInvalid     = -22
	StatusUnsupported = -38
	StatusFatalLoop   = -1000
)

// StatusError carries an engine status code for a failed operation.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: status=0x%X", e.Op, uint32(int32(e.Code)))
}

// Unwrap makes engine failures match ErrIOFailure.
func (e *StatusError) Unwrap() error { return ErrIOFailure }

// StatusCode extracts the engine status code from err. nil maps to StatusOK
// and errors that don't carry a code map to StatusUnknown.
func StatusCode(err error) int {
	if err == nil {
		return StatusOK
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return StatusUnknown
}
