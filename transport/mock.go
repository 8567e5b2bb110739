// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gogama/httpfsm/future"
	"github.com/gogama/httpfsm/request"
)

// ErrMockEmpty is returned by a Mock adapter which has run out of
// scripted outcomes.
var ErrMockEmpty = errors.New("httpfsm/transport: mock queue is empty")

// A Mock is a scripted adapter which never touches the network. Each
// Send consumes the next queued outcome, which may be a
// *http.Response, a request.Reply, an error, or a
// func(*request.Transaction) (request.Reply, error).
//
// By default outcomes are delivered synchronously. When Async is set
// they are delivered through a Pending future on a new goroutine,
// after Delay has elapsed and Hold, if not nil, is closed.
type Mock struct {
	Async bool
	Delay time.Duration
	Hold  <-chan struct{}

	lock     sync.Mutex
	queue    []interface{}
	sent     []*request.Transaction
	inFlight int
	maxIn    int
}

// NewMock returns a synchronous Mock which delivers the given outcomes
// in order. It panics if an outcome has an unsupported type.
func NewMock(outcomes ...interface{}) *Mock {
	m := &Mock{}
	m.Add(outcomes...)
	return m
}

// Add queues further outcomes.
func (m *Mock) Add(outcomes ...interface{}) {
	for _, o := range outcomes {
		switch o.(type) {
		case *http.Response, request.Reply, error, func(*request.Transaction) (request.Reply, error):
		default:
			panic(fmt.Sprintf("httpfsm/transport: invalid mock outcome type %T", o))
		}
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.queue = append(m.queue, outcomes...)
}

// Send delivers the next queued outcome to t.
func (m *Mock) Send(t *request.Transaction) error {
	m.lock.Lock()
	m.sent = append(m.sent, t)
	if len(m.queue) == 0 {
		m.lock.Unlock()
		return ErrMockEmpty
	}
	o := m.queue[0]
	m.queue = m.queue[1:]
	m.lock.Unlock()

	if !m.Async {
		reply, err := resolve(o, t)
		t.Response, t.Body = reply.Response, reply.Body
		return err
	}

	m.track(1)
	f := future.New[request.Reply](nil)
	t.Pending = f
	ctx := t.Context()
	go func() {
		reply, ok, err := m.await(ctx, f, o, t)
		// The delivery stops counting as in flight before continuations
		// run, as they may start the next attempt.
		m.track(-1)
		if ok {
			f.Resolve(reply, err)
		}
	}()
	return nil
}

// await waits for the delivery conditions and returns the outcome, or
// false if the future was cancelled first.
func (m *Mock) await(ctx context.Context, f *future.Future[request.Reply], o interface{}, t *request.Transaction) (request.Reply, bool, error) {
	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-f.Done():
			return request.Reply{}, false, nil
		}
	}
	if m.Hold != nil {
		select {
		case <-m.Hold:
		case <-f.Done():
			return request.Reply{}, false, nil
		case <-ctx.Done():
			return request.Reply{}, true, ctx.Err()
		}
	}
	reply, err := resolve(o, t)
	return reply, true, err
}

func (m *Mock) track(delta int) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.inFlight += delta
	if m.inFlight > m.maxIn {
		m.maxIn = m.inFlight
	}
}

// Sent returns the transactions passed to Send so far, one entry per
// attempt.
func (m *Mock) Sent() []*request.Transaction {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]*request.Transaction(nil), m.sent...)
}

// Remaining returns the number of queued outcomes not yet delivered.
func (m *Mock) Remaining() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.queue)
}

// MaxInFlight returns the highest number of asynchronous deliveries
// that were outstanding at the same time.
func (m *Mock) MaxInFlight() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.maxIn
}

// Response returns a response with the given status code, headers
// (alternating keys and values) and body.
func Response(code int, body string, kv ...string) *http.Response {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Add(kv[i], kv[i+1])
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", code, http.StatusText(code)),
		StatusCode:    code,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader([]byte(body))),
		ContentLength: int64(len(body)),
	}
}

func resolve(o interface{}, t *request.Transaction) (request.Reply, error) {
	switch x := o.(type) {
	case *http.Response:
		return read(x)
	case request.Reply:
		return x, nil
	case func(*request.Transaction) (request.Reply, error):
		return x(t)
	case error:
		return request.Reply{}, x
	}
	return request.Reply{}, nil
}

// read buffers the body of a scripted response, leaving a fresh reader
// in its place so the response can be inspected again.
func read(resp *http.Response) (request.Reply, error) {
	if resp.Body == nil {
		resp.Body = http.NoBody
		return request.Reply{Response: resp}, nil
	}
	b, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(b))
	return request.Reply{Response: resp, Body: b}, err
}
