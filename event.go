// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpfsm

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gogama/httpfsm/request"
)

// A Phase identifies one of the events emitted while a transaction
// moves through the request lifecycle.
type Phase int

const (
	// Before is emitted before each attempt is sent. Listeners may
	// modify the transaction's Request, or Intercept with a response to
	// skip sending altogether.
	Before Phase = iota
	// Complete is emitted when an attempt produced a response.
	// Listeners may Retry, or return an error to turn the response into
	// a failure.
	Complete
	// Error is emitted when an attempt failed. Unless a listener stops
	// propagation (by calling StopPropagation, Intercept or Retry) the
	// error is the final outcome of the transaction.
	Error
	// End is emitted exactly once per transaction, when it reaches its
	// final outcome.
	End
	phaseSentinel

	numPhases = int(phaseSentinel)
)

var phaseNames = []string{
	"before",
	"complete",
	"error",
	"end",
}

// Phases returns all phases in the order they occur.
func Phases() []Phase {
	return []Phase{Before, Complete, Error, End}
}

// Name returns the lower-case name of the phase.
func (p Phase) Name() string {
	return phaseNames[int(p)]
}

func (p Phase) String() string {
	return p.Name()
}

// ParsePhase returns the phase with the given name, ignoring case.
func ParsePhase(name string) (Phase, error) {
	for i, n := range phaseNames {
		if strings.EqualFold(name, n) {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("httpfsm: unknown phase %q", name)
}

// An Event is the payload handed to listeners.
//
// Listeners act by mutating the Transaction (its Request before it is
// sent, or its Response, Body and Err) or by calling one of the
// methods below.
type Event struct {
	Phase       Phase
	Transaction *request.Transaction

	stopped     bool
	intercepted bool
	retry       bool
}

// StopPropagation prevents lower-priority listeners from receiving the
// event. During Error it also recovers the transaction from the error.
func (e *Event) StopPropagation() {
	e.stopped = true
}

// Stopped reports whether propagation has been stopped.
func (e *Event) Stopped() bool {
	return e.stopped
}

// Intercept supplies resp and body as the outcome of the current
// attempt and stops propagation. During Before the attempt is not sent
// at all, during Complete the response is replaced, and during Error
// the transaction recovers with the given response.
func (e *Event) Intercept(resp *http.Response, body []byte) {
	t := e.Transaction
	t.Response, t.Body, t.Err = resp, body, nil
	e.intercepted = true
	e.stopped = true
}

// Intercepted reports whether Intercept was called.
func (e *Event) Intercepted() bool {
	return e.intercepted
}

// Retry asks for the transaction to be sent again. The current
// response and error are discarded, the transaction is moved back to
// the before state and propagation stops. Retry only has an effect
// during Complete and Error.
func (e *Event) Retry() {
	t := e.Transaction
	t.Response, t.Body, t.Err = nil, nil, nil
	t.State = StateBefore
	e.retry = true
	e.stopped = true
}

// RetryRequested reports whether a retry was asked for, either with
// Retry or by a listener setting the transaction's State to before.
func (e *Event) RetryRequested() bool {
	return e.retry || e.Transaction.State == StateBefore
}
