// Package statemachine provides a stateless finite-state-machine transition table.
//
// The table maps (state, event) pairs to transitions carrying optional Guards
// and Actions. It never stores a current state: callers pass the state they
// hold (typically a field of a persisted record) and receive the next one.
// One table therefore serves every entity of a kind and can be shared across
// goroutines.
//
//  1. Transition lookup in a nested map [from][event][]Transition
//  2. Guard evaluation; the first transition whose guards all pass wins
//  3. Actions run in order against the caller's data before the new state is returned
//
// # Usage
//
//	const (
//	    Draft    = statemachine.StringState("draft")
//	    InReview = statemachine.StringState("in_review")
//	    Submit   = statemachine.StringEvent("submit")
//	)
//
//	table := statemachine.MustNew(
//	    statemachine.WithTransition(Draft, InReview, Submit),
//	)
//
//	next, err := table.Fire(Draft, Submit, nil)
//
// # Guards and Actions
//
// Guards veto a transition based on runtime data:
//
//	isOwner := func(from statemachine.State, evt statemachine.Event, data any) bool {
//	    doc, ok := data.(*Document)
//	    return ok && doc.OwnerApproved
//	}
//
// Actions mutate the data passed to Fire. When an action fails, Fire returns
// the error and the caller must discard the data, so actions should work on a
// draft copy of the entity.
//
// # Error Handling
//
//	if statemachine.IsNoTransitionAvailableError(err) { /* unknown pair */ }
//	if statemachine.IsTransitionRejectedError(err)   { /* guard veto */ }
//	if statemachine.IsNotPermitted(err)              { /* either */ }
package statemachine
