// Package statemachine implements finite state machines as immutable
// transition tables.
//
// A Machine is built once with New and functional options, then shared.
// Fire takes the current state explicitly and returns the next one, which
// lets request-per-event handlers transition rows loaded from storage without
// any process-wide mutable state:
//
//	m := statemachine.MustNew(
//		statemachine.WithTransition(Free, Active, Subscribed,
//			statemachine.WithGuard(hasPaidPlan),
//			statemachine.WithAction(applyPlan),
//		),
//		statemachine.WithAnyState(nil, PastDue, statemachine.WithAction(notify)),
//	)
//	next, err := m.Fire(ctx, current, Subscribed, row)
//
// When several transitions match a state and event, the first one whose
// guards all pass wins. Actions run in order and any error aborts the
// transition. A *TransitionError wraps ErrNoTransition or ErrGuardRejected
// to tell an undefined transition from one blocked by guards.
package statemachine
