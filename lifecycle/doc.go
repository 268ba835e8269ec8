// Package lifecycle implements the timeout-bound state transition engine that
// drives every service.
//
// An ActionTable describes, per action and per source state, the target state,
// the in-flight state shown while the action's hook runs, the state taken when
// the hook fails or times out, and the timeout. An Engine binds one Subject to
// a table and executes actions against it:
//
//	engine := lifecycle.NewEngine(svc, lifecycle.DefaultActions(0), lifecycle.StateStopped)
//	if err := engine.Perform(ctx, lifecycle.ActionStart); err != nil {
//	    // errors.ErrIllegalTransition, errors.ErrTransitionTimeout or the hook's error
//	}
//
// # Serialization
//
// At most one transition is in flight per engine. A call that arrives while
// another transition runs joins it and observes the same outcome, so two
// concurrent starts produce one stopped → starting → running sequence.
//
// # Timeouts
//
// The timeout is measured from hook invocation. When it expires the hook is
// abandoned, the subject moves to the entry's rejected state and the
// transition fails with errors.ErrTransitionTimeout. Transitions are never
// retried automatically.
//
// # Notifications
//
// Subject.StateChanged is called exactly once per actual state change, in
// order: the in-flight state is always reported before the outcome state.
// No notification is emitted when an action is rejected up front.
package lifecycle
