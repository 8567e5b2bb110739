// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package failure classifies failed requests into a small error
// taxonomy.
//
// Every failure routed through the request lifecycle is a
// *RequestError. Failures without a response (connection problems,
// cancellation) have kind KindTransfer; failures with a response are
// classified by the leading digit of the status code.
package failure

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gogama/httpfsm/request"
	"github.com/gogama/httpfsm/transient"
)

var (
	// ErrNoResponse is the cause of the failure synthesized when a
	// lifecycle run ends without a response or an error.
	ErrNoResponse = errors.New("httpfsm/failure: no response produced")

	// ErrCancelled is the cause of the failure stored on a transaction
	// whose context was done before it was sent.
	ErrCancelled = errors.New("httpfsm/failure: request cancelled")
)

// A Kind is the variant of a RequestError.
type Kind int

const (
	// KindTransfer indicates the request could not be completed.
	KindTransfer Kind = iota
	// KindClient indicates a 4xx response.
	KindClient
	// KindServer indicates a 5xx response.
	KindServer
	// KindUnsuccessful indicates any other response deemed a failure.
	KindUnsuccessful
)

var kindNames = [...]string{
	KindTransfer:     "transfer",
	KindClient:       "client",
	KindServer:       "server",
	KindUnsuccessful: "unsuccessful",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// label is the message prefix used by Create.
func (k Kind) label() string {
	switch k {
	case KindClient:
		return "Client error response"
	case KindServer:
		return "Server error response"
	case KindUnsuccessful:
		return "Unsuccessful response"
	default:
		return "Error completing request"
	}
}

// A RequestError is a failed request.
type RequestError struct {
	// Kind is the variant of the failure.
	Kind Kind
	// Msg is the error message.
	Msg string
	// Request is the plan which failed. It may be nil if the failure
	// was created without one.
	Request *request.Plan
	// Response is the response which was deemed a failure, or nil for
	// KindTransfer.
	Response *http.Response
	// Code is the response status code, or 0 if there is no response.
	Code int
	// Cause is the underlying error, if any.
	Cause error
}

func (e *RequestError) Error() string {
	return e.Msg
}

// Unwrap returns Cause.
func (e *RequestError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *RequestError of the same kind, so
// errors.Is(err, &RequestError{Kind: KindServer}) tests the variant.
func (e *RequestError) Is(target error) bool {
	t, ok := target.(*RequestError)
	return ok && t.Kind == e.Kind
}

// HasResponse reports whether a response was received.
func (e *RequestError) HasResponse() bool {
	return e.Response != nil
}

// Timeout reports whether the cause is a timeout.
func (e *RequestError) Timeout() bool {
	return transient.Categorize(e.Cause) == transient.Timeout
}

// Transient reports whether the cause is a transient transport error.
func (e *RequestError) Transient() bool {
	return transient.Categorize(e.Cause) != transient.Not
}

// Create returns a RequestError for p with a normalized message.
//
// Without a response the kind is KindTransfer. Otherwise the kind is
// chosen by the leading digit of the status code: '4' is KindClient,
// '5' is KindServer and anything else is KindUnsuccessful. The message
// has the form
//
//	<label> [url] <url> [status code] <code> [reason phrase] <reason>
func Create(p *request.Plan, resp *http.Response, cause error) *RequestError {
	if resp == nil {
		return &RequestError{
			Kind:    KindTransfer,
			Msg:     KindTransfer.label(),
			Request: p,
			Cause:   cause,
		}
	}

	code := strconv.Itoa(resp.StatusCode)
	var kind Kind
	switch code[0] {
	case '4':
		kind = KindClient
	case '5':
		kind = KindServer
	default:
		kind = KindUnsuccessful
	}

	return &RequestError{
		Kind: kind,
		Msg: fmt.Sprintf("%s [url] %s [status code] %s [reason phrase] %s",
			kind.label(), planURL(p), code, request.ReasonPhrase(resp)),
		Request:  p,
		Response: resp,
		Code:     resp.StatusCode,
		Cause:    cause,
	}
}

// Wrap returns err unchanged if it is already a *RequestError, and
// otherwise wraps it in a KindTransfer RequestError for p which keeps
// the message of err. Wrap returns nil if err is nil.
func Wrap(p *request.Plan, err error) error {
	if err == nil {
		return nil
	}
	if re, ok := err.(*RequestError); ok {
		return re
	}
	return &RequestError{
		Kind:    KindTransfer,
		Msg:     err.Error(),
		Request: p,
		Cause:   err,
	}
}

func planURL(p *request.Plan) string {
	if p == nil || p.URL == nil {
		return ""
	}
	return p.URL.String()
}
