package statemachine

import (
	"context"
	"fmt"
)

// State represents a state in the state machine.
type State interface {
	Name() string
}

// Event represents an event that can trigger a state transition.
type Event interface {
	Name() string
}

// Action executes side effects during state transitions. Returning an error prevents the transition.
type Action func(ctx context.Context, from, to State, event Event, data any) error

// Guard evaluates whether a transition should be allowed based on runtime conditions.
type Guard func(ctx context.Context, from State, event Event, data any) bool

// Transition defines a state change triggered by an event, with optional guards and actions.
type Transition struct {
	From    State
	To      State
	Event   Event
	Guards  []Guard  // All must pass for transition to proceed
	Actions []Action // Executed in order before the new state is returned
}

// Machine is an immutable transition table. It holds no current state, so a
// single Machine can be shared by concurrent callers that each own the
// entity being transitioned.
type Machine struct {
	// [fromState][event] -> candidate transitions in registration order
	table map[string]map[string][]Transition
	// wildcard transitions apply from any state
	any map[string][]Transition
}

// Fire selects the first transition from the given state whose guards pass,
// runs its actions and returns the target state. The caller persists it.
func (m *Machine) Fire(ctx context.Context, from State, event Event, data any) (State, error) {
	if from == nil || event == nil {
		return from, ErrInvalidEvent
	}

	t, err := m.match(ctx, from, event, data)
	if err != nil {
		return from, err
	}

	for _, action := range t.Actions {
		if err := action(ctx, from, t.To, event, data); err != nil {
			return from, fmt.Errorf("action failed: %w", err)
		}
	}

	if t.To == nil {
		// Self-loop registered with WithAnyState keeps the source state.
		return from, nil
	}
	return t.To, nil
}

// CanFire reports whether any transition would be accepted.
func (m *Machine) CanFire(ctx context.Context, from State, event Event, data any) bool {
	if from == nil || event == nil {
		return false
	}
	_, err := m.match(ctx, from, event, data)
	return err == nil
}

func (m *Machine) match(ctx context.Context, from State, event Event, data any) (*Transition, error) {
	candidates := append([]Transition(nil), m.table[from.Name()][event.Name()]...)
	candidates = append(candidates, m.any[event.Name()]...)
	if len(candidates) == 0 {
		return nil, &TransitionError{From: from.Name(), Event: event.Name(), Err: ErrNoTransition}
	}

	// First transition with passing guards wins (enables priority ordering)
	for i := range candidates {
		if guardsPass(ctx, candidates[i].Guards, from, event, data) {
			return &candidates[i], nil
		}
	}
	return nil, &TransitionError{From: from.Name(), Event: event.Name(), Err: ErrGuardRejected}
}

func guardsPass(ctx context.Context, guards []Guard, from State, event Event, data any) bool {
	for _, g := range guards {
		if !g(ctx, from, event, data) {
			return false
		}
	}
	return true
}

// StringState provides a simple string-based state implementation for basic use cases.
type StringState string

func (s StringState) Name() string {
	return string(s)
}

// StringEvent provides a simple string-based event implementation for basic use cases.
type StringEvent string

func (e StringEvent) Name() string {
	return string(e)
}
