package state

import "errors"

// Domain errors for the state package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, state.ErrUnknownSwitch) {
//	    // treat as a no-op
//	}
var (
	// ErrUnknownSwitch is returned when a switch ID is outside the closed set.
	ErrUnknownSwitch = errors.New("state: unknown switch")

	// ErrUnknownName is returned when a name ID is outside the closed set.
	ErrUnknownName = errors.New("state: unknown name")

	// ErrInvalidAction is returned when a schedule/timer action is not ON or OFF.
	ErrInvalidAction = errors.New("state: invalid action")

	// ErrInvalidTime is returned when a schedule time is not "HH:MM".
	ErrInvalidTime = errors.New("state: invalid time")

	// ErrNotFound is returned by a Repository when no document is stored
	// under the requested key.
	ErrNotFound = errors.New("state: document not found")
)
