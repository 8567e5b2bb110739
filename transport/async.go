// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"github.com/gogama/httpfsm/future"
	"github.com/gogama/httpfsm/request"
)

// Async is an adapter which sends each attempt on its own goroutine.
// Send returns immediately after setting the transaction's Pending
// future, which resolves with the reply once the exchange finishes.
//
// Cancelling the future aborts the attempt.
type Async struct {
	Transport
}

// NewAsync returns an Async adapter over doer.
func NewAsync(doer HTTPDoer) *Async {
	return &Async{Transport{HTTPDoer: doer}}
}

// Send starts the next attempt of t. The goroutine running the
// exchange never touches t, so t is free for whoever resolves or
// cancels the future.
func (a *Async) Send(t *request.Transaction) error {
	req, cancel := a.prepare(t.Context(), t)
	doer, p := a.doer(), t.Request
	f := future.New[request.Reply](cancel)
	t.Pending = f
	go func() {
		defer cancel()
		reply, err := exchange(doer, p, req)
		f.Resolve(reply, err)
	}()
	return nil
}
