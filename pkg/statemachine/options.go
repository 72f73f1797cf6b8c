package statemachine

import (
	"fmt"
)

// Option configures a table during construction.
type Option func(*Table) error

// TransitionOption configures a single transition with guards and actions.
type TransitionOption func(*transitionConfig)

type transitionConfig struct {
	guards  []Guard
	actions []Action
}

// New creates a transition table configured by opts.
func New(opts ...Option) (Machine, error) {
	t := NewTable()
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// MustNew is like New but panics when an option fails.
// Transition tables are static configuration, so a broken one must stop startup.
func MustNew(opts ...Option) Machine {
	m, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create state machine: %v", err))
	}
	return m
}

// WithTransition adds a single transition.
func WithTransition(from, to State, event Event, opts ...TransitionOption) Option {
	return func(t *Table) error {
		cfg := &transitionConfig{}
		for _, opt := range opts {
			opt(cfg)
		}
		if err := t.AddTransition(from, to, event, cfg.guards, cfg.actions); err != nil {
			return fmt.Errorf("add transition %s->%s on %s: %w", nameOf(from), nameOf(to), nameOf(event), err)
		}
		return nil
	}
}

// WithTransitionFrom adds the same transition from every state in from.
func WithTransitionFrom(from []State, to State, event Event, opts ...TransitionOption) Option {
	return func(t *Table) error {
		for _, f := range from {
			if err := WithTransition(f, to, event, opts...)(t); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithGuard adds a single guard to a transition.
func WithGuard(guard Guard) TransitionOption {
	return func(cfg *transitionConfig) {
		if guard != nil {
			cfg.guards = append(cfg.guards, guard)
		}
	}
}

// WithGuards adds multiple guards to a transition.
func WithGuards(guards ...Guard) TransitionOption {
	return func(cfg *transitionConfig) {
		for _, guard := range guards {
			WithGuard(guard)(cfg)
		}
	}
}

// WithAction adds a single action to a transition.
func WithAction(action Action) TransitionOption {
	return func(cfg *transitionConfig) {
		if action != nil {
			cfg.actions = append(cfg.actions, action)
		}
	}
}

// WithActions adds multiple actions to a transition.
func WithActions(actions ...Action) TransitionOption {
	return func(cfg *transitionConfig) {
		for _, action := range actions {
			WithAction(action)(cfg)
		}
	}
}

type named interface{ Name() string }

func nameOf(n named) string {
	if n == nil {
		return "<nil>"
	}
	return n.Name()
}
