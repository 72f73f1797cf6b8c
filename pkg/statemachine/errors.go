package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid transition: from, to, or event cannot be nil")
	ErrInvalidEvent      = errors.New("invalid event: event cannot be nil")
	ErrInvalidState      = errors.New("invalid state: current state cannot be nil")
)

// ErrNoTransitionAvailable indicates that the table has no entry for the state/event pair.
type ErrNoTransitionAvailable struct {
	State string
	Event string
}

func (e *ErrNoTransitionAvailable) Error() string {
	return fmt.Sprintf("no transition available from state '%s' for event '%s'", e.State, e.Event)
}

func NewErrNoTransitionAvailable(state, event string) *ErrNoTransitionAvailable {
	return &ErrNoTransitionAvailable{State: state, Event: event}
}

// ErrTransitionRejected indicates that every candidate transition was vetoed by a guard.
type ErrTransitionRejected struct {
	State string
	Event string
}

func (e *ErrTransitionRejected) Error() string {
	return fmt.Sprintf("transition from state '%s' for event '%s' was rejected by guards", e.State, e.Event)
}

func NewErrTransitionRejected(state, event string) *ErrTransitionRejected {
	return &ErrTransitionRejected{State: state, Event: event}
}

func IsNoTransitionAvailableError(err error) bool {
	var e *ErrNoTransitionAvailable
	return errors.As(err, &e)
}

func IsTransitionRejectedError(err error) bool {
	var e *ErrTransitionRejected
	return errors.As(err, &e)
}

// IsNotPermitted reports whether err means the event is not allowed in the current state,
// either because no transition exists or because guards rejected it.
func IsNotPermitted(err error) bool {
	return IsNoTransitionAvailableError(err) || IsTransitionRejectedError(err)
}
