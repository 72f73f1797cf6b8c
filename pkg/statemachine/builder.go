package statemachine

// Builder provides a fluent API for building transition tables.
type Builder struct {
	table        *Table
	currentFrom  State
	currentEvent Event
	currentTo    State
	guards       []Guard
	actions      []Action
}

// NewBuilder creates a new table builder.
func NewBuilder() *Builder {
	return &Builder{table: NewTable()}
}

// From sets the starting state for a transition.
func (b *Builder) From(state State) *Builder {
	b.reset()
	b.currentFrom = state
	return b
}

// When sets the event that triggers a transition.
func (b *Builder) When(event Event) *Builder {
	b.currentEvent = event
	return b
}

// To sets the target state for a transition.
func (b *Builder) To(state State) *Builder {
	b.currentTo = state
	return b
}

// WithGuard adds a guard function to the current transition.
func (b *Builder) WithGuard(guard Guard) *Builder {
	b.guards = append(b.guards, guard)
	return b
}

// WithAction adds an action function to the current transition.
func (b *Builder) WithAction(action Action) *Builder {
	b.actions = append(b.actions, action)
	return b
}

// Add finalizes the current transition and adds it to the table.
func (b *Builder) Add() (*Builder, error) {
	if err := b.table.AddTransition(b.currentFrom, b.currentTo, b.currentEvent, b.guards, b.actions); err != nil {
		return b, err
	}
	b.reset()
	return b, nil
}

// Build returns the constructed table.
func (b *Builder) Build() Machine {
	return b.table
}

func (b *Builder) reset() {
	b.currentFrom = nil
	b.currentEvent = nil
	b.currentTo = nil
	b.guards = nil
	b.actions = nil
}
