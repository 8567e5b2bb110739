// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpfsm

import (
	"fmt"
	"time"

	"github.com/gogama/httpfsm/failure"
	"github.com/gogama/httpfsm/fsm"
	"github.com/gogama/httpfsm/request"
)

// States of the request lifecycle.
const (
	StateBefore   fsm.State = "before"
	StateSend     fsm.State = "send"
	StateComplete fsm.State = "complete"
	StateError    fsm.State = "error"
	StateEnd      fsm.State = "end"
	StateExit     fsm.State = "exit"
)

// A Lifecycle drives transactions through the request lifecycle:
//
//	before -> send -> exit
//	complete -> end
//	error -> complete (recovered) | end (not recovered)
//
// Failures in before, send and complete lead to error. An attempt whose
// response is still pending leaves the lifecycle through exit, and the
// party resolving it re-enters at complete or error.
type Lifecycle struct {
	machine *fsm.Machine[*request.Transaction]
	emit    func(*Event) error
	send    func(*request.Transaction) error
}

// NewLifecycle returns a Lifecycle which dispatches events with emit
// and sends attempts with send. The send function follows the adapter
// contract: it populates the transaction's Response, returns an error,
// or sets its Pending future.
func NewLifecycle(emit func(*Event) error, send func(*request.Transaction) error, maxTransitions int) *Lifecycle {
	if emit == nil || send == nil {
		panic("httpfsm: nil emit or send function")
	}
	l := &Lifecycle{emit: emit, send: send}
	l.machine = fsm.New(StateBefore, fsm.Table[*request.Transaction]{
		StateBefore: {
			Handler: l.before,
			Success: StateSend,
			Error:   StateError,
		},
		StateSend: {
			Handler: l.sendAttempt,
			Success: StateExit,
			Error:   StateError,
		},
		StateComplete: {
			Handler: l.complete,
			Success: StateEnd,
			Error:   StateError,
		},
		StateError: {
			Handler: l.fail,
			Success: StateComplete,
			Error:   StateEnd,
		},
		StateEnd: {
			Handler: l.end,
		},
		StateExit: {
			Handler: l.exit,
		},
	}, maxTransitions)
	return l
}

// Run drives t from its current state, or from before if it has none,
// until a terminal state is reached. The returned error is the final
// failure of the transaction, or a *fsm.StateError if the lifecycle
// was violated.
func (l *Lifecycle) Run(t *request.Transaction) error {
	return l.machine.Run(t, "")
}

func (l *Lifecycle) before(t *request.Transaction) (fsm.State, error) {
	if t.Started() {
		t.Attempt++
	} else {
		t.Start = time.Now()
	}
	return "", l.emit(&Event{Phase: Before, Transaction: t})
}

func (l *Lifecycle) sendAttempt(t *request.Transaction) (fsm.State, error) {
	if err := t.Context().Err(); err != nil {
		t.Err = failure.Wrap(t.Request, fmt.Errorf("%w: %w", failure.ErrCancelled, err))
		return StateExit, nil
	}
	if t.Pending == nil && t.Response != nil {
		return StateComplete, nil
	}
	return "", l.send(t)
}

func (l *Lifecycle) complete(t *request.Transaction) (fsm.State, error) {
	if t.Pending != nil {
		return StateExit, nil
	}
	if t.Response == nil {
		return "", &fsm.StateError{State: StateComplete, Msg: "no response"}
	}

	t.EffectiveURL = t.Request.URL
	t.TimedOut = false
	e := &Event{Phase: Complete, Transaction: t}
	if err := l.emit(e); err != nil {
		return "", err
	}
	if e.RetryRequested() {
		discard(t)
		return StateBefore, nil
	}
	return "", nil
}

func (l *Lifecycle) fail(t *request.Transaction) (fsm.State, error) {
	if t.Err == nil {
		return "", &fsm.StateError{State: StateError, Msg: "no error"}
	}

	t.Err = failure.Wrap(t.Request, t.Err)
	t.TimedOut = t.Timeout()
	if t.TimedOut {
		t.Timeouts++
	}
	e := &Event{Phase: Error, Transaction: t}
	if err := l.emit(e); err != nil {
		return "", failure.Wrap(t.Request, err)
	}
	if !e.Stopped() {
		return "", t.Err
	}

	t.Err = nil
	if e.RetryRequested() {
		discard(t)
		return StateBefore, nil
	}
	return "", nil
}

// discard drops the outcome of the last attempt so that before leads
// to a fresh send rather than back to complete.
func discard(t *request.Transaction) {
	t.Response, t.Body, t.Err = nil, nil, nil
}

func (l *Lifecycle) end(t *request.Transaction) (fsm.State, error) {
	if t.Pending != nil {
		return "", nil
	}

	t.End = time.Now()
	if err := l.emit(&Event{Phase: End, Transaction: t}); err != nil {
		return "", err
	}
	return "", t.Err
}

func (l *Lifecycle) exit(t *request.Transaction) (fsm.State, error) {
	if t.Response == nil && t.Err == nil && t.Pending == nil {
		t.Err = failure.Wrap(t.Request, failure.ErrNoResponse)
	}
	if t.Err != nil && t.Pending == nil {
		return "", t.Err
	}
	return "", nil
}
