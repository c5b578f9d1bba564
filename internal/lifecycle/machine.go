package lifecycle

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrInvalidTransition = errors.New("invalid transition")

// InvalidTransitionError reports a rejected transition together with the
// states that were reachable from Current at the time.
type InvalidTransitionError struct {
	Current string
	Target  string
	Allowed []string
}

func (e *InvalidTransitionError) Error() string {
	allowed := "none"
	if len(e.Allowed) > 0 {
		allowed = strings.Join(e.Allowed, ", ")
	}
	return fmt.Sprintf("invalid transition %s -> %s (allowed: %s)", e.Current, e.Target, allowed)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

type Table[S ~string] map[S][]S

// Machine tracks one entity's status against a transition table. States
// missing from the table, or mapped to an empty slice, are terminal.
// A Machine is not safe for concurrent use.
type Machine[S ~string] struct {
	current S
	table   Table[S]
}

func New[S ~string](initial S, table Table[S]) *Machine[S] {
	return &Machine[S]{current: initial, table: table}
}

func (m *Machine[S]) Current() S { return m.current }

// AllowedTransitions returns a copy of the states reachable from Current,
// sorted so diagnostics are stable.
func (m *Machine[S]) AllowedTransitions() []S {
	next := m.table[m.current]
	out := make([]S, len(next))
	copy(out, next)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Machine[S]) IsTerminal() bool { return len(m.table[m.current]) == 0 }

func (m *Machine[S]) CanTransition(target S) bool {
	for _, s := range m.table[m.current] {
		if s == target {
			return true
		}
	}
	return false
}

func (m *Machine[S]) Transition(target S) error {
	if !m.CanTransition(target) {
		allowed := m.AllowedTransitions()
		names := make([]string, len(allowed))
		for i, s := range allowed {
			names[i] = string(s)
		}
		return &InvalidTransitionError{
			Current: string(m.current),
			Target:  string(target),
			Allowed: names,
		}
	}
	m.current = target
	return nil
}

func (m *Machine[S]) TransitionTo(target S) (S, error) {
	if err := m.Transition(target); err != nil {
		return m.current, err
	}
	return m.current, nil
}

// Reset overwrites the current state without consulting the table. It is
// meant for loading persisted state, not for moving an entity forward.
func (m *Machine[S]) Reset(state S) { m.current = state }

// StatesAllowing lists every state in table from which target is reachable
// in one step.
func StatesAllowing[S ~string](table Table[S], target S) []S {
	var out []S
	for from, next := range table {
		for _, s := range next {
			if s == target {
				out = append(out, from)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
