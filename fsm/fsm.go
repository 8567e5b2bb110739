// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package fsm

import (
	"errors"
	"fmt"
)

// DefaultMaxTransitions is the transition ceiling used when a Machine
// is constructed with a non-positive maximum.
const DefaultMaxTransitions = 200

// A State names an entry in a Table.
type State string

// A Record is anything a Machine can drive through a Table. The
// record holds its own current state, its transition counter, and the
// last error raised by a transition handler.
type Record interface {
	// CurrentState returns the record's current state, or the empty
	// state if the record has never been run.
	CurrentState() State
	// SetState moves the record to state s.
	SetState(s State)
	// IncTransitions increments the record's transition counter and
	// returns the new value.
	IncTransitions() int
	// SetErr stores an error raised by a transition handler.
	SetErr(err error)
}

// A Handler is invoked when a record enters a state.
//
// Returning a non-empty State is an explicit redirect: the record is
// moved to that state regardless of the entry's declared edges.
// Returning an error routes the record to the entry's Error state, if
// any. Returning neither follows the entry's Success edge.
type Handler[R Record] func(r R) (State, error)

// An Entry describes a single state in a Table.
type Entry[R Record] struct {
	// Handler is the optional transition function run on entering
	// the state.
	Handler Handler[R]
	// Success is the state to move to when Handler neither redirects
	// nor fails. An entry with no Success state is terminal.
	Success State
	// Error is the state to move to when Handler returns an error
	// other than a *StateError. If empty, the error is returned from
	// Run.
	Error State
}

// A Table maps each state to its Entry.
type Table[R Record] map[State]Entry[R]

// A Machine runs records through a Table.
//
// A Machine holds no per-record state and is safe for concurrent use
// by multiple goroutines as long as each record is only run by one
// goroutine at a time.
type Machine[R Record] struct {
	initial        State
	table          Table[R]
	maxTransitions int
}

// New constructs a Machine which starts records in state initial and
// fails any run in which a record's transition counter goes above
// maxTransitions. If maxTransitions is not positive,
// DefaultMaxTransitions is used.
func New[R Record](initial State, table Table[R], maxTransitions int) *Machine[R] {
	if table == nil {
		panic("httpfsm/fsm: nil table")
	}
	if maxTransitions <= 0 {
		maxTransitions = DefaultMaxTransitions
	}
	return &Machine[R]{
		initial:        initial,
		table:          table,
		maxTransitions: maxTransitions,
	}
}

// MaxTransitions returns the transition ceiling of the machine.
func (m *Machine[R]) MaxTransitions() int {
	return m.maxTransitions
}

// Run drives r through the table until a terminal state is reached,
// or until the loop iteration which began in state final has
// completed. Pass the empty state for final to run until a terminal
// state.
//
// Whether the current iteration is the final one is decided before its
// handler runs. Consequently an explicit redirect returned by the
// handler of the final state still continues the loop, and the run may
// proceed past final.
//
// Run returns a *StateError if r's transition counter exceeds the
// machine's ceiling, if r enters a state missing from the table, or if
// a handler returns a *StateError. Otherwise Run returns the handler
// error that could not be routed to an error state, or nil.
func (m *Machine[R]) Run(r R, final State) error {
	if r.CurrentState() == "" {
		r.SetState(m.initial)
	}

	for {
		n := r.IncTransitions()
		if n > m.maxTransitions {
			return &StateError{
				State: r.CurrentState(),
				Msg: fmt.Sprintf("too many state transitions (%d); listeners may be in an infinite loop",
					n),
			}
		}

		state := r.CurrentState()
		terminal := final != "" && state == final

		entry, ok := m.table[state]
		if !ok {
			return &StateError{State: state, Msg: "invalid state"}
		}

		if entry.Handler != nil {
			next, err := entry.Handler(r)
			if err != nil {
				var se *StateError
				if errors.As(err, &se) {
					return err
				}
				r.SetErr(err)
				if entry.Error == "" {
					return err
				}
				r.SetState(entry.Error)
				if terminal {
					return nil
				}
				continue
			}
			if next != "" {
				r.SetState(next)
				continue
			}
		}

		if entry.Success == "" {
			return nil
		}
		r.SetState(entry.Success)
		if terminal {
			return nil
		}
	}
}

// A StateError reports a broken state machine invariant: an unknown
// state, too many transitions, or a missing field at a state boundary.
// A StateError is never routed to an error state; it always ends the
// run.
type StateError struct {
	State State
	Msg   string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("httpfsm/fsm: %s: %s", e.Msg, e.State)
}

// IsStateError reports whether err is, or wraps, a *StateError.
func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}
