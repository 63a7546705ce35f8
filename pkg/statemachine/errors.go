package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("transition needs a source, a target and an event")
	ErrInvalidEvent      = errors.New("fire needs a state and an event")

	// ErrNoTransition means nothing is registered for the state and event.
	ErrNoTransition = errors.New("no transition registered")
	// ErrGuardRejected means every candidate transition was blocked by a guard.
	ErrGuardRejected = errors.New("transition rejected by guards")
)

// TransitionError reports why a state could not leave From on Event.
// It matches ErrNoTransition or ErrGuardRejected with errors.Is.
type TransitionError struct {
	From  string
	Event string
	Err   error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: state %q event %q", e.Err, e.From, e.Event)
}

func (e *TransitionError) Unwrap() error { return e.Err }
