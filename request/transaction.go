// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gogama/httpfsm/fsm"
	"github.com/gogama/httpfsm/future"
	"github.com/gogama/httpfsm/transient"
	"github.com/google/uuid"
)

const nilPlanMsg = "httpfsm/request: nil plan"

// A Reply is the outcome of one request attempt as produced by a
// transport adapter: the HTTP response together with its fully-read
// body.
type Reply struct {
	Response *http.Response
	Body     []byte
}

// A Transaction tracks one logical request through the request
// lifecycle, across all of its attempts.
//
// A Transaction is owned by one lifecycle run at a time. Listeners may
// mutate Request (before it is sent), Response, Body, Err and State as
// their effect, and may keep their own data on the Transaction using
// SetValue and Value. The remaining fields are bookkeeping owned by the
// lifecycle and should be treated as read-only.
type Transaction struct {
	// ID is a random identifier assigned when the Transaction is
	// created. It stays constant across retries, so it is the key to
	// use when tracking per-request state outside the Transaction.
	ID uuid.UUID

	// Request is the plan to send on the next attempt. It is never nil.
	Request *Plan

	// Response is the HTTP response of the most recent attempt, or nil.
	Response *http.Response

	// Body is the response body read from Response.
	Body []byte

	// Err is the error of the most recent attempt, or nil.
	Err error

	// State is the current lifecycle state.
	State fsm.State

	// Transitions counts every state transition made over the life of
	// the Transaction. It never decreases.
	Transitions int

	// Pending is set while the current attempt is in flight
	// asynchronously. While it is set the terminal events of the
	// attempt are deferred until the future resolves.
	Pending *future.Future[Reply]

	// EffectiveURL is the URL of the request which produced Response.
	EffectiveURL *url.URL

	// Attempt is the zero-based number of the current attempt.
	Attempt int

	// Redirects counts the redirect hops followed so far.
	Redirects int

	// Timeouts counts the attempts which ended in a timeout, and
	// TimedOut reports whether the most recent finished attempt did.
	// Unlike Err they survive a retry, so timeout policies can see
	// them when picking the timeout of the next attempt.
	Timeouts int
	TimedOut bool

	// NotBefore, if non-zero, is the earliest time at which the next
	// attempt may be sent.
	NotBefore time.Time

	// Start is set when the first attempt begins, End when the
	// Transaction reaches its final outcome.
	Start time.Time
	End   time.Time

	ctx  context.Context
	data context.Context
}

// NewTransaction returns a new Transaction for p which uses the plan's
// context.
func NewTransaction(p *Plan) *Transaction {
	if p == nil {
		panic(nilPlanMsg)
	}
	return NewTransactionWithContext(p.Context(), p)
}

// NewTransactionWithContext returns a new Transaction for p which is
// governed by ctx instead of the plan's own context.
func NewTransactionWithContext(ctx context.Context, p *Plan) *Transaction {
	if ctx == nil {
		panic(nilCtxMsg)
	}
	if p == nil {
		panic(nilPlanMsg)
	}
	return &Transaction{
		ID:      uuid.New(),
		Request: p,
		ctx:     ctx,
	}
}

// CurrentState returns State.
func (t *Transaction) CurrentState() fsm.State { return t.State }

// SetState sets State.
func (t *Transaction) SetState(s fsm.State) { t.State = s }

// IncTransitions increments Transitions and returns the new value.
func (t *Transaction) IncTransitions() int {
	t.Transitions++
	return t.Transitions
}

// SetErr sets Err.
func (t *Transaction) SetErr(err error) { t.Err = err }

// Context returns the context governing the Transaction. A Transaction
// created without one uses the context of its Request.
func (t *Transaction) Context() context.Context {
	if t.ctx != nil {
		return t.ctx
	}
	if t.Request != nil {
		return t.Request.Context()
	}
	return context.Background()
}

// SetContext replaces the context governing the Transaction.
func (t *Transaction) SetContext(ctx context.Context) {
	if ctx == nil {
		panic(nilCtxMsg)
	}
	t.ctx = ctx
}

// StatusCode returns the status code of Response, or 0 if there is no
// response.
func (t *Transaction) StatusCode() int {
	if t.Response == nil {
		return 0
	}

	return t.Response.StatusCode
}

// Header returns the headers of Response, or a nil header if there is
// no response. A nil header is safe for read-only use.
func (t *Transaction) Header() http.Header {
	if t.Response == nil {
		var nilHeader http.Header
		return nilHeader
	}

	return t.Response.Header
}

// Reason returns the reason phrase of Response.
func (t *Transaction) Reason() string {
	return ReasonPhrase(t.Response)
}

// Duration returns how long the Transaction has been running. It is
// zero before Start and constant after End.
func (t *Transaction) Duration() time.Duration {
	if !t.Started() {
		return time.Duration(0)
	} else if !t.Ended() {
		return time.Since(t.Start)
	}

	return t.End.Sub(t.Start)
}

// Started indicates whether the first attempt has begun.
func (t *Transaction) Started() bool {
	return !t.Start.IsZero()
}

// Ended indicates whether the Transaction has reached its final
// outcome.
func (t *Transaction) Ended() bool {
	return !t.End.IsZero()
}

// Timeout indicates whether Err is a timeout.
func (t *Transaction) Timeout() bool {
	return transient.Categorize(t.Err) == transient.Timeout
}

// SetValue stores value under key. The key follows the rules of
// context.WithValue: it must be non-nil and comparable, and should be
// of an unexported type to avoid collisions between listeners.
func (t *Transaction) SetValue(key, value interface{}) {
	ctx := t.data
	if ctx == nil {
		ctx = context.Background()
	}

	t.data = context.WithValue(ctx, key, value)
}

// Value returns the value stored under key, or nil.
func (t *Transaction) Value(key interface{}) interface{} {
	ctx := t.data
	if ctx == nil {
		return nil
	}

	return ctx.Value(key)
}
