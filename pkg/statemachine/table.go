package statemachine

import (
	"fmt"
	"sort"
	"sync"
)

// Table is a thread-safe transition table.
// Lookups go through a nested map: [fromState][event][]Transition.
type Table struct {
	transitions map[string]map[string][]Transition
	mu          sync.RWMutex
}

// NewTable returns an empty transition table.
func NewTable() *Table {
	return &Table{
		transitions: make(map[string]map[string][]Transition),
	}
}

func (t *Table) AddTransition(from, to State, event Event, guards []Guard, actions []Action) error {
	if from == nil || to == nil || event == nil {
		return ErrInvalidTransition
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fromName := from.Name()
	if _, ok := t.transitions[fromName]; !ok {
		t.transitions[fromName] = make(map[string][]Transition)
	}

	// Several transitions per from/event pair enable guard-based branching;
	// registration order is the priority order.
	t.transitions[fromName][event.Name()] = append(t.transitions[fromName][event.Name()], Transition{
		From:    from,
		To:      to,
		Event:   event,
		Guards:  guards,
		Actions: actions,
	})
	return nil
}

// Fire returns the state reached from current by event. Actions of the
// selected transition run in order; none of them runs if a guard rejects.
func (t *Table) Fire(current State, event Event, data any) (State, error) {
	if current == nil {
		return nil, ErrInvalidState
	}
	if event == nil {
		return nil, ErrInvalidEvent
	}

	tr, err := t.lookup(current, event, data)
	if err != nil {
		return nil, err
	}

	for _, action := range tr.Actions {
		if action == nil {
			continue
		}
		if err := action(current, tr.To, event, data); err != nil {
			return nil, fmt.Errorf("action failed: %w", err)
		}
	}

	return tr.To, nil
}

func (t *Table) CanFire(current State, event Event, data any) bool {
	if current == nil || event == nil {
		return false
	}
	_, err := t.lookup(current, event, data)
	return err == nil
}

// Events lists the events registered for current, sorted by name. Guards are not evaluated.
func (t *Table) Events(current State) []Event {
	if current == nil {
		return nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	byEvent := t.transitions[current.Name()]
	events := make([]Event, 0, len(byEvent))
	for _, trs := range byEvent {
		if len(trs) > 0 {
			events = append(events, trs[0].Event)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Name() < events[j].Name() })
	return events
}

func (t *Table) lookup(current State, event Event, data any) (Transition, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stateName := current.Name()
	eventName := event.Name()

	transitions := t.transitions[stateName][eventName]
	if len(transitions) == 0 {
		return Transition{}, NewErrNoTransitionAvailable(stateName, eventName)
	}

	// First transition with passing guards wins
	for _, tr := range transitions {
		if guardsPass(tr.Guards, current, event, data) {
			return tr, nil
		}
	}

	return Transition{}, NewErrTransitionRejected(stateName, eventName)
}

func guardsPass(guards []Guard, from State, event Event, data any) bool {
	for _, guard := range guards {
		if guard != nil && !guard(from, event, data) {
			return false
		}
	}
	return true
}
