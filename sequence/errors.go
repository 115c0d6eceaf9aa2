package sequence

import (
	"errors"
	"fmt"

	"github.com/allbin/go-valve"
)

// Edit and run errors
var (
	ErrSelfLoop          = errors.New("step cannot lead to itself")
	ErrDuplicateIncoming = errors.New("step already has a predecessor")
	ErrCycle             = errors.New("connection would create a cycle")
	ErrUnknownNode       = errors.New("unknown step")
	ErrRunning           = errors.New("sequence is running")
	ErrEmptySequence     = errors.New("sequence has no steps")
	ErrInvalidDuration   = errors.New("step duration must be between 0.05 and 120 seconds")
)

// UnexpectedResponseError aborts a run when a step is answered with anything
// but an acknowledgement of the commanded position.
type UnexpectedResponseError struct {
	Position valve.Position
	Response valve.Response
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected response to %s: %q", e.Position, e.Response.Line)
}
