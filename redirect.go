// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpfsm

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gogama/httpfsm/failure"
)

// ErrTooManyRedirects is the cause of the failure of a transaction
// which exceeded its redirect limit.
var ErrTooManyRedirects = errors.New("httpfsm: too many redirects")

// Redirect is a Complete listener which follows redirect responses
// (301, 302, 303, 307 and 308 with a Location header). It rewrites the
// transaction's Request to the new location and retries it.
//
// A plan's MaxRedirects, when non-zero, takes precedence over Max; a
// negative value disables redirects for that plan. Unless the plan is
// Strict, a 301, 302 or 303 response to a request other than GET or
// HEAD is followed with a body-less GET, as browsers do. A 303 is
// always followed with a GET.
type Redirect struct {
	Max int
}

// Handle implements Listener.
func (rd *Redirect) Handle(e *Event) error {
	t := e.Transaction
	switch t.StatusCode() {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
	default:
		return nil
	}
	location := t.Header().Get("Location")
	if location == "" {
		return nil
	}

	p := t.Request
	max := rd.Max
	if p.MaxRedirects != 0 {
		max = p.MaxRedirects
	}
	if max < 0 {
		return nil
	}
	if t.Redirects >= max {
		return &failure.RequestError{
			Kind:     failure.KindUnsuccessful,
			Msg:      fmt.Sprintf("httpfsm: will not follow more than %d redirects", max),
			Request:  p,
			Response: t.Response,
			Code:     t.StatusCode(),
			Cause:    ErrTooManyRedirects,
		}
	}

	u, err := p.URL.Parse(location)
	if err != nil {
		return failure.Create(p, t.Response, err)
	}
	next := p.WithURL(u)
	if switchToGet(t.StatusCode(), p.Method, p.Strict) {
		next.Method = http.MethodGet
		next.Body = nil
		next.Header.Del("Content-Type")
		next.Header.Del("Content-Length")
	}

	t.Request = next
	t.Redirects++
	e.Retry()
	return nil
}

func switchToGet(code int, method string, strict bool) bool {
	if method == http.MethodGet || method == http.MethodHead {
		return false
	}
	if code == http.StatusSeeOther {
		return true
	}
	return !strict && (code == http.StatusMovedPermanently || code == http.StatusFound)
}

// HTTPError is a Complete listener which fails the transaction with a
// *failure.RequestError when the response status is 4xx or 5xx.
type HTTPError struct{}

// Handle implements Listener.
func (HTTPError) Handle(e *Event) error {
	t := e.Transaction
	if t.StatusCode() < 400 {
		return nil
	}
	return failure.Create(t.Request, t.Response, nil)
}
