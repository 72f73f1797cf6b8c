package statemachine

// State represents a state in the state machine.
type State interface {
	Name() string
}

// Event represents an event that can trigger a state transition.
type Event interface {
	Name() string
}

// Action applies side effects to the caller's data during a transition.
// Returning an error aborts the transition.
type Action func(from, to State, event Event, data any) error

// Guard evaluates whether a transition is allowed for the given data.
type Guard func(from State, event Event, data any) bool

// Transition defines a state change triggered by an event, with optional guards and actions.
type Transition struct {
	From    State
	To      State
	Event   Event
	Guards  []Guard  // All must pass for transition to proceed
	Actions []Action // Executed in order after guards pass
}

// Machine resolves transitions for a state owned by the caller.
// It keeps no current state, so one Machine can serve any number of entities.
type Machine interface {
	AddTransition(from, to State, event Event, guards []Guard, actions []Action) error
	Fire(current State, event Event, data any) (State, error)
	CanFire(current State, event Event, data any) bool
	Events(current State) []Event
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
