// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package subscriber

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gogama/httpfsm"
)

// ErrMockEmpty is returned by a Mock which has run out of queued
// outcomes.
var ErrMockEmpty = errors.New("httpfsm/subscriber: mock queue is empty")

// A Mock answers attempts from a queue of responses and errors, so that
// nothing is ever sent. It listens to Before at late priority, after
// every listener which may still modify the request.
//
// A queued *http.Response intercepts the attempt; a queued error fails
// it as if the transport had returned the error.
type Mock struct {
	lock  sync.Mutex
	queue []interface{}
}

// NewMock returns a Mock with the given queued outcomes. It panics if
// an outcome is neither a *http.Response nor an error.
func NewMock(outcomes ...interface{}) *Mock {
	m := &Mock{}
	m.Add(outcomes...)
	return m
}

// Add queues further outcomes.
func (m *Mock) Add(outcomes ...interface{}) {
	for _, o := range outcomes {
		switch o.(type) {
		case *http.Response, error:
		default:
			panic(fmt.Sprintf("httpfsm/subscriber: invalid mock outcome type %T", o))
		}
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.queue = append(m.queue, outcomes...)
}

// Len returns the number of outcomes still queued.
func (m *Mock) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.queue)
}

// Attach installs m into em.
func (m *Mock) Attach(em *httpfsm.Emitter) {
	em.OnFunc(httpfsm.Before, m.before, httpfsm.PriorityLate)
}

func (m *Mock) before(e *httpfsm.Event) error {
	m.lock.Lock()
	if len(m.queue) == 0 {
		m.lock.Unlock()
		return ErrMockEmpty
	}
	o := m.queue[0]
	m.queue = m.queue[1:]
	m.lock.Unlock()

	switch x := o.(type) {
	case *http.Response:
		body, err := readBody(x)
		if err != nil {
			return err
		}
		e.Intercept(x, body)
		return nil
	default:
		return o.(error)
	}
}

func readBody(resp *http.Response) ([]byte, error) {
	if resp.Body == nil {
		return nil, nil
	}
	b, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(b))
	return b, err
}
