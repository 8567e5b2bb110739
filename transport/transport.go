// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gogama/httpfsm/request"
	"github.com/gogama/httpfsm/timeout"
)

// An HTTPDoer implements a Do method in the same manner as the Go
// standard HTTP client, http.Client. Adapters delegate the actual
// exchange, including TLS and connection reuse, to an HTTPDoer.
type HTTPDoer interface {
	// Do sends an HTTP request and returns an HTTP response, following
	// the contract of http.Client.Do.
	Do(*http.Request) (*http.Response, error)
}

// An IdleCloser can close idle connections. http.Client and
// http.Transport are IdleClosers.
type IdleCloser interface {
	CloseIdleConnections()
}

// A Transport is an HTTPDoer together with a timeout policy. It is the
// configuration shared by the Sync and Async adapters.
type Transport struct {
	// HTTPDoer sends the requests. If nil, http.DefaultClient is used.
	HTTPDoer HTTPDoer

	// TimeoutPolicy sets the timeout of each attempt. If nil,
	// timeout.DefaultPolicy is used.
	TimeoutPolicy timeout.Policy
}

// CloseIdleConnections invokes the same method on the HTTPDoer, if it
// has one.
func (tr *Transport) CloseIdleConnections() {
	if ic, ok := tr.doer().(IdleCloser); ok {
		ic.CloseIdleConnections()
	}
}

func (tr *Transport) doer() HTTPDoer {
	if tr.HTTPDoer == nil {
		return http.DefaultClient
	}

	return tr.HTTPDoer
}

func (tr *Transport) policy() timeout.Policy {
	if tr.TimeoutPolicy == nil {
		return timeout.DefaultPolicy
	}

	return tr.TimeoutPolicy
}

// prepare builds the HTTP request of the next attempt of t, bound to a
// context carrying the attempt timeout.
func (tr *Transport) prepare(ctx context.Context, t *request.Transaction) (*http.Request, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, tr.policy().Timeout(t))
	return t.Request.ToRequest(ctx), cancel
}

// exchange sends req and reads the whole response body. On a body read
// error the partial reply is returned together with the error.
func exchange(doer HTTPDoer, p *request.Plan, req *http.Request) (request.Reply, error) {
	resp, err := doer.Do(req)
	if err != nil {
		return request.Reply{}, urlErrorWrap(p, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return request.Reply{Response: resp, Body: body}, urlErrorWrap(p, err)
	}
	return request.Reply{Response: resp, Body: body}, nil
}

func urlErrorWrap(p *request.Plan, err error) error {
	if _, ok := err.(*url.Error); ok {
		return err
	}

	return &url.Error{
		Op:  urlErrorOp(p.Method),
		URL: p.URL.String(),
		Err: err,
	}
}

// urlErrorOp matches the Op net/http puts in its own *url.Error values.
func urlErrorOp(method string) string {
	if method == "" {
		return "Get"
	}
	return method[:1] + strings.ToLower(method[1:])
}
