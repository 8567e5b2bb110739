// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpfsm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gogama/httpfsm/failure"
	"github.com/gogama/httpfsm/future"
	"github.com/gogama/httpfsm/request"
	"github.com/gogama/httpfsm/transport"
	"github.com/rs/zerolog"
)

// An Adapter performs the network exchange of one attempt. Send either
// populates the transaction's Response and Body and returns nil,
// returns a transport error, or sets the transaction's Pending future
// and returns nil. The transport package contains ready-made adapters.
type Adapter interface {
	Send(*request.Transaction) error
}

// AdapterFunc is an adapter to allow the use of ordinary functions as
// transport adapters.
type AdapterFunc func(*request.Transaction) error

// Send calls f(t).
func (f AdapterFunc) Send(t *request.Transaction) error {
	return f(t)
}

// DefaultMaxRedirects is the number of redirect hops followed when
// neither the client nor the plan says otherwise.
const DefaultMaxRedirects = 5

// A Client drives request plans through the request lifecycle.
//
// Each submitted plan becomes a Transaction which emits Before,
// Complete, Error and End events to the Client's Handlers and to its
// own TransactionEmitter. Out of the box the Client follows redirects
// and turns 4xx and 5xx responses into *failure.RequestError values;
// retries are added by installing a listener such as retry.Backoff.
//
// A Client is safe for concurrent use by multiple goroutines. Its
// fields should not be changed once it is in use.
type Client struct {
	// Adapter performs the network exchange. If nil, a synchronous
	// adapter over http.DefaultClient is used.
	Adapter Adapter

	// Handlers holds the listeners that apply to every transaction.
	// It may be nil.
	Handlers *Emitter

	// MaxTransitions bounds the lifecycle state transitions of a single
	// transaction. Zero means fsm.DefaultMaxTransitions.
	MaxTransitions int

	// MaxRedirects bounds redirect hops per transaction unless the
	// plan overrides it. Zero means DefaultMaxRedirects.
	MaxRedirects int

	// DisableRedirects turns off the built-in redirect listener.
	DisableRedirects bool

	// DisableHTTPErrors turns off the built-in listener which fails
	// transactions on 4xx and 5xx responses.
	DisableHTTPErrors bool

	// Logger receives debug logs. If nil, nothing is logged.
	Logger *zerolog.Logger
}

var defaultAdapter = transport.NewSync(nil)

// Do sends p and waits for the final outcome. The returned transaction
// is never nil; the error is the final failure, if any.
//
// For simple use cases, the Get, Head, Post, and PostForm methods may
// prove easier to use than Do.
func (c *Client) Do(p *request.Plan) (*request.Transaction, error) {
	t := request.NewTransaction(p)
	_, err := c.Submit(t).Wait(context.Background())
	return t, err
}

// Submit starts driving t through the lifecycle and returns a future
// for its final outcome. With an asynchronous adapter Submit returns
// as soon as the first attempt is in flight; the rest of the lifecycle
// runs on whichever goroutine resolves the attempt.
//
// Cancelling the returned future cancels the transaction's context and
// any attempt in flight.
func (c *Client) Submit(t *request.Transaction) *future.Future[*request.Transaction] {
	ctx, cancel := context.WithCancel(t.Context())
	t.SetContext(ctx)
	r := &run{
		t:         t,
		adapter:   c.adapter(),
		cancelCtx: cancel,
		log:       c.logger().With().Str("txn", t.ID.String()).Logger(),
	}
	builtins, handlers := c.builtins(), c.Handlers
	emit := func(e *Event) error {
		return emitAll(e, builtins, handlers, transactionEmitter(e.Transaction))
	}
	r.lifecycle = NewLifecycle(emit, r.send, c.MaxTransitions)
	r.outer = future.New[*request.Transaction](r.cancel)
	r.drive()
	return r.outer
}

// Get issues a GET to the specified URL, using the same policies
// followed by Do.
func (c *Client) Get(url string) (*request.Transaction, error) {
	return Get(c, url)
}

// Head issues a HEAD to the specified URL, using the same policies
// followed by Do.
func (c *Client) Head(url string) (*request.Transaction, error) {
	return Head(c, url)
}

// Post issues a POST to the specified URL, using the same policies
// followed by Do. The body may be any type accepted by
// request.BodyBytes.
func (c *Client) Post(url, contentType string, body interface{}) (*request.Transaction, error) {
	return Post(c, url, contentType, body)
}

// PostForm issues a POST to the specified URL, with data's keys and
// values URL-encoded as the request body.
func (c *Client) PostForm(url string, data url.Values) (*request.Transaction, error) {
	return PostForm(c, url, data)
}

// CloseIdleConnections invokes the same method on the client's
// adapter, if it has one.
func (c *Client) CloseIdleConnections() {
	if ic, ok := c.adapter().(IdleCloser); ok {
		ic.CloseIdleConnections()
	}
}

func (c *Client) adapter() Adapter {
	if c.Adapter == nil {
		return defaultAdapter
	}

	return c.Adapter
}

func (c *Client) logger() *zerolog.Logger {
	if c.Logger == nil {
		l := zerolog.Nop()
		return &l
	}

	return c.Logger
}

func (c *Client) builtins() *Emitter {
	if c.DisableRedirects && c.DisableHTTPErrors {
		return nil
	}
	em := &Emitter{}
	if !c.DisableRedirects {
		max := c.MaxRedirects
		if max == 0 {
			max = DefaultMaxRedirects
		}
		em.On(Complete, &Redirect{Max: max}, PriorityRedirect)
	}
	if !c.DisableHTTPErrors {
		em.On(Complete, HTTPError{}, PriorityVerify)
	}
	return em
}

// A run is the driver of one submitted transaction. Only one goroutine
// at a time drives the lifecycle; the lock guards the state shared with
// cancellation.
type run struct {
	t         *request.Transaction
	adapter   Adapter
	lifecycle *Lifecycle
	outer     *future.Future[*request.Transaction]
	cancelCtx context.CancelFunc
	log       zerolog.Logger

	lock    sync.Mutex
	pending *future.Future[request.Reply]
}

// send hands the attempt to the adapter and turns a synchronous
// response into a resolved future, so that every response re-enters
// the lifecycle the same way.
func (r *run) send(t *request.Transaction) error {
	if err := r.adapter.Send(t); err != nil {
		return err
	}
	if t.Pending == nil && t.Response != nil {
		t.Pending = future.Resolved(request.Reply{Response: t.Response, Body: t.Body}, nil)
		t.Response, t.Body = nil, nil
	}
	return nil
}

func (r *run) drive() {
	err := r.lifecycle.Run(r.t)
	t := r.t
	if err == nil && t.Pending != nil {
		p := t.Pending
		r.lock.Lock()
		r.pending = p
		r.lock.Unlock()
		r.log.Debug().Int("attempt", t.Attempt).Msg("attempt in flight")
		p.Then(r.resume)
		return
	}

	if !t.Ended() {
		t.End = time.Now()
	}
	r.cancelCtx()
	r.log.Debug().Err(err).Int("status", t.StatusCode()).Int("attempts", t.Attempt+1).Msg("transaction done")
	r.outer.Resolve(t, err)
}

func (r *run) resume(reply request.Reply, err error) {
	t := r.t
	r.lock.Lock()
	r.pending = nil
	r.lock.Unlock()

	t.Pending = nil
	t.Response, t.Body = reply.Response, reply.Body
	if err != nil {
		if errors.Is(err, future.ErrCancelled) {
			err = fmt.Errorf("%w: %w", failure.ErrCancelled, err)
		}
		t.Err = err
		t.State = StateError
	} else {
		t.Err = nil
		t.State = StateComplete
	}
	r.drive()
}

func (r *run) cancel() {
	r.log.Debug().Msg("cancelling")
	r.lock.Lock()
	p := r.pending
	r.lock.Unlock()
	if p != nil {
		p.Cancel()
	}
	r.cancelCtx()
}
