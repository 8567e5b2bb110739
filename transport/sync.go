// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import "github.com/gogama/httpfsm/request"

// Sync is an adapter which sends each attempt on the calling
// goroutine and populates the transaction's Response and Body before
// returning.
type Sync struct {
	Transport
}

// NewSync returns a Sync adapter over doer.
func NewSync(doer HTTPDoer) *Sync {
	return &Sync{Transport{HTTPDoer: doer}}
}

// Send sends the next attempt of t. Transport errors are returned as
// *url.Error values.
func (s *Sync) Send(t *request.Transaction) error {
	req, cancel := s.prepare(t.Context(), t)
	defer cancel()
	reply, err := exchange(s.doer(), t.Request, req)
	t.Response, t.Body = reply.Response, reply.Body
	return err
}
