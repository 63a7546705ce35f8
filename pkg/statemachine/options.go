package statemachine

import "fmt"

// Option configures a machine during construction.
type Option func(*Machine) error

// TransitionOption configures a single transition with guards and actions.
type TransitionOption func(*Transition)

// New builds a machine from the given options.
func New(opts ...Option) (*Machine, error) {
	m := &Machine{
		table: make(map[string]map[string][]Transition),
		any:   make(map[string][]Transition),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNew is like New but panics on error. Intended for package-level tables.
func MustNew(opts ...Option) *Machine {
	m, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create state machine: %v", err))
	}
	return m
}

// WithTransition registers a transition. Multiple transitions for the same
// state and event are evaluated in registration order.
func WithTransition(from, to State, event Event, opts ...TransitionOption) Option {
	return func(m *Machine) error {
		if from == nil || to == nil || event == nil {
			return ErrInvalidTransition
		}
		t := Transition{From: from, To: to, Event: event}
		for _, opt := range opts {
			opt(&t)
		}
		if _, ok := m.table[from.Name()]; !ok {
			m.table[from.Name()] = make(map[string][]Transition)
		}
		m.table[from.Name()][event.Name()] = append(m.table[from.Name()][event.Name()], t)
		return nil
	}
}

// WithAnyState registers a transition accepted from every state. A nil
// target keeps the source state. Specific transitions take precedence.
func WithAnyState(to State, event Event, opts ...TransitionOption) Option {
	return func(m *Machine) error {
		if event == nil {
			return ErrInvalidTransition
		}
		t := Transition{To: to, Event: event}
		for _, opt := range opts {
			opt(&t)
		}
		m.any[event.Name()] = append(m.any[event.Name()], t)
		return nil
	}
}

// WithGuard adds guards to a transition. Nil guards are ignored.
func WithGuard(guards ...Guard) TransitionOption {
	return func(t *Transition) {
		for _, g := range guards {
			if g != nil {
				t.Guards = append(t.Guards, g)
			}
		}
	}
}

// WithAction adds actions to a transition. Nil actions are ignored.
func WithAction(actions ...Action) TransitionOption {
	return func(t *Transition) {
		for _, a := range actions {
			if a != nil {
				t.Actions = append(t.Actions, a)
			}
		}
	}
}
