package link

import (
	"errors"
	"fmt"
)

// Domain-specific errors for link operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidTransition is the sentinel matched by every
	// *InvalidTransitionError. Network races routinely produce
	// out-of-order or duplicate inputs (a stray suback after a
	// reconnect, a timeout for a link already down); these are reported
	// and logged, never allowed to crash the loop.
	ErrInvalidTransition = errors.New("link: invalid state transition input")

	// ErrUnknownLink is returned when an event names a link that was
	// never registered.
	ErrUnknownLink = errors.New("link: unknown link")
)

// InvalidTransitionError reports a (state, input) pair outside the
// transition table. The machine's state is unchanged.
type InvalidTransitionError struct {
	Link  string
	State State
	Input Input
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("link %q: input %q not valid in state %q", e.Link, e.Input, e.State)
}

// Is makes the error match ErrInvalidTransition via errors.Is.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
