// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	urlpkg "net/url"
	"strings"

	"golang.org/x/net/http/httpguts"
)

var (
	template, _ = http.NewRequest("GET", "", nil)
)

const (
	nilCtxMsg = "httpfsm/request: nil context"
	nilURLMsg = "httpfsm/request: nil URL"
)

// A Plan is the immutable description of a logical HTTP request.
//
// A single Plan may be sent many times: once for the initial attempt,
// and again for each retry or redirect hop of the Transaction carrying
// it. Listeners which need to change the request (for example to
// follow a redirect) replace the Transaction's Plan with a modified
// copy, obtained from WithURL or Clone, rather than mutating it.
//
// The field structure of Plan mirrors the client-side fields of
// http.Request, with the body simplified to a pre-buffered []byte.
type Plan struct {
	// Method is the HTTP method. An empty string means GET.
	Method string

	URL    *urlpkg.URL
	Header http.Header

	// Body is sent with every attempt. An empty body sends none.
	Body []byte

	// TransferEncoding lists the transfer encodings, outermost first.
	TransferEncoding []string

	// Close asks for the connection to be closed after each attempt.
	Close bool

	// Host overrides the Host header. If empty, URL.Host is sent.
	Host string

	// MaxRedirects overrides the client's redirect hop limit for this
	// request. Zero means use the client's limit; a negative value
	// disables redirects for this request.
	MaxRedirects int

	// Strict requests RFC-compliant redirects, which keep the original
	// method and body on 301 and 302. When Strict is false, a 301, 302
	// or 303 redirect is followed with a body-less GET, as most
	// browsers do.
	Strict bool

	// ctx cancels every attempt. Only WithContext changes it.
	ctx context.Context
}

// NewPlan is NewPlanWithContext with the background context.
func NewPlan(method, url string, body interface{}) (*Plan, error) {
	return NewPlanWithContext(context.Background(), method, url, body)
}

// NewPlanWithContext returns a Plan for method and url carrying ctx.
// An empty method means GET. The body is buffered with BodyBytes.
func NewPlanWithContext(ctx context.Context, method, url string, body interface{}) (*Plan, error) {
	if ctx == nil {
		return nil, errors.New(nilCtxMsg)
	}
	if method == "" {
		method = "GET"
	}
	if !validMethod(method) {
		return nil, fmt.Errorf("httpfsm/request: invalid method %q", method)
	}
	u, err := urlpkg.Parse(url)
	if err != nil {
		return nil, err
	}
	u.Host = removeEmptyPort(u.Host)
	b, err := BodyBytes(body)
	if err != nil {
		return nil, err
	}
	return &Plan{
		ctx:    ctx,
		Method: method,
		URL:    u,
		Header: make(http.Header),
		Body:   b,
		Host:   u.Host,
	}, nil
}

// Context returns the context of p, or the background context if it
// has none.
func (p *Plan) Context() context.Context {
	if p.ctx != nil {
		return p.ctx
	}
	return context.Background()
}

// WithContext returns a shallow copy of p with its context changed to
// ctx, which must be non-nil.
func (p *Plan) WithContext(ctx context.Context) *Plan {
	if ctx == nil {
		panic(nilCtxMsg)
	}
	p2 := new(Plan)
	*p2 = *p
	p2.ctx = ctx
	return p2
}

// Clone returns a deep copy of p. The URL, Header, Body and
// TransferEncoding of the copy may be changed without affecting p.
func (p *Plan) Clone() *Plan {
	p2 := new(Plan)
	*p2 = *p
	if p.URL != nil {
		u := *p.URL
		if p.URL.User != nil {
			user := *p.URL.User
			u.User = &user
		}
		p2.URL = &u
	}
	p2.Header = p.Header.Clone()
	if p.Body != nil {
		p2.Body = append([]byte(nil), p.Body...)
	}
	if p.TransferEncoding != nil {
		p2.TransferEncoding = append([]string(nil), p.TransferEncoding...)
	}
	return p2
}

// WithURL returns a deep copy of p targeting u, which must be non-nil.
// The Host override of the copy is reset to u.Host.
func (p *Plan) WithURL(u *urlpkg.URL) *Plan {
	if u == nil {
		panic(nilURLMsg)
	}
	p2 := p.Clone()
	u2 := *u
	p2.URL = &u2
	p2.Host = removeEmptyPort(u.Host)
	return p2
}

// AddCookie appends the name and value of c to the Cookie header. All
// cookies share a single header line, as RFC 6265 section 5.4 requires.
func (p *Plan) AddCookie(c *http.Cookie) {
	s := (&http.Cookie{Name: c.Name, Value: c.Value}).String()
	h := p.header()
	if prev := h.Get("Cookie"); prev != "" {
		s = prev + "; " + s
	}
	h.Set("Cookie", s)
}

// SetBasicAuth sets the Authorization header for HTTP Basic
// authentication. The credentials are not URL-encoded.
func (p *Plan) SetBasicAuth(username, password string) {
	cred := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	p.header().Set("Authorization", "Basic "+cred)
}

// SetHeader validates and sets a request header. It returns an error
// if the field name is not a valid token or the value contains
// characters not allowed in a header field value.
func (p *Plan) SetHeader(key, value string) error {
	if !httpguts.ValidHeaderFieldName(key) {
		return fmt.Errorf("httpfsm/request: invalid header field name %q", key)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return fmt.Errorf("httpfsm/request: invalid header field value for %q", key)
	}
	p.header().Set(key, value)
	return nil
}

func (p *Plan) header() http.Header {
	if p.Header == nil {
		p.Header = make(http.Header)
	}
	return p.Header
}

// ToRequest returns an http.Request for one attempt of p, bound to
// ctx. The request shares p's URL and Header; the body is a fresh
// reader over p.Body, which GetBody can recreate.
func (p *Plan) ToRequest(ctx context.Context) *http.Request {
	r := template.WithContext(ctx)
	r.Method = p.Method
	r.URL = p.URL
	r.Header = p.Header
	if len(p.Body) > 0 {
		r.Body = io.NopCloser(bytes.NewReader(p.Body))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(p.Body)), nil
		}
		r.ContentLength = int64(len(p.Body))
	}
	r.TransferEncoding = p.TransferEncoding
	r.Close = p.Close
	r.Host = p.Host
	return r
}

// validMethod reports whether method is a token as defined by RFC 7230
// section 3.2.6. The empty string is allowed and means GET.
func validMethod(method string) bool {
	for _, r := range method {
		if !httpguts.IsTokenRune(r) {
			return false
		}
	}
	return true
}

// removeEmptyPort strips a trailing ":" with no port number from host,
// as RFC 3986 section 6.2.3 requires. IPv6 literals are left alone.
func removeEmptyPort(host string) string {
	if strings.LastIndex(host, ":") > strings.LastIndex(host, "]") {
		return strings.TrimSuffix(host, ":")
	}
	return host
}
