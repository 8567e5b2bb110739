// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpfsm

import (
	"net/url"

	"github.com/gogama/httpfsm/future"
	"github.com/gogama/httpfsm/request"
)

// Doer is the interface that wraps the basic Do method.
//
// Do sends a request plan and waits for the final outcome. Client
// implements Doer; any Doer can be converted into an Executor via
// Inflate.
type Doer interface {
	Do(p *request.Plan) (*request.Transaction, error)
}

// Submitter is the interface that wraps the asynchronous Submit
// method. Pools admit work through a Submitter.
type Submitter interface {
	Submit(t *request.Transaction) *future.Future[*request.Transaction]
}

// Getter is the interface that wraps the Get method.
type Getter interface {
	Get(url string) (*request.Transaction, error)
}

// Header is the interface that wraps the Head method.
type Header interface {
	Head(url string) (*request.Transaction, error)
}

// Poster is the interface that wraps the Post method.
type Poster interface {
	Post(url, contentType string, body interface{}) (*request.Transaction, error)
}

// FormPoster is the interface that wraps the PostForm method.
type FormPoster interface {
	PostForm(url string, data url.Values) (*request.Transaction, error)
}

// IdleCloser is the interface that wraps the CloseIdleConnections
// method, which closes idle keep-alive connections where the
// underlying implementation supports it.
type IdleCloser interface {
	CloseIdleConnections()
}

// Executor groups the Do, Get, Head, Post, PostForm, and
// CloseIdleConnections methods.
type Executor interface {
	Doer
	Getter
	Header
	Poster
	FormPoster
	IdleCloser
}

// Get uses d to issue a GET to url.
func Get(d Doer, url string) (*request.Transaction, error) {
	return do(d, "GET", url, nil, "")
}

// Head uses d to issue a HEAD to url.
func Head(d Doer, url string) (*request.Transaction, error) {
	return do(d, "HEAD", url, nil, "")
}

// Post uses d to issue a POST to url. The body may be nil or any type
// accepted by request.BodyBytes.
func Post(d Doer, url, contentType string, body interface{}) (*request.Transaction, error) {
	return do(d, "POST", url, body, contentType)
}

// PostForm uses d to issue a POST to url with data's keys and values
// URL-encoded as the body.
func PostForm(d Doer, url string, data url.Values) (*request.Transaction, error) {
	return Post(d, url, "application/x-www-form-urlencoded", data.Encode())
}

func do(d Doer, method, url string, body interface{}, contentType string) (*request.Transaction, error) {
	p, err := request.NewPlan(method, url, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		p.Header.Set("Content-Type", contentType)
	}
	return d.Do(p)
}

// Inflate converts d into an Executor. If d already is one, it is
// returned as is.
func Inflate(d Doer) Executor {
	if d == nil {
		panic("httpfsm: nil doer")
	}

	if e, ok := d.(Executor); ok {
		return e
	}

	return inflated{d}
}

type inflated struct {
	Doer
}

func (i inflated) Get(url string) (*request.Transaction, error) {
	return Get(i.Doer, url)
}

func (i inflated) Head(url string) (*request.Transaction, error) {
	return Head(i.Doer, url)
}

func (i inflated) Post(url, contentType string, body interface{}) (*request.Transaction, error) {
	return Post(i.Doer, url, contentType, body)
}

func (i inflated) PostForm(url string, data url.Values) (*request.Transaction, error) {
	return PostForm(i.Doer, url, data)
}

func (i inflated) CloseIdleConnections() {
	if ic, ok := i.Doer.(IdleCloser); ok {
		ic.CloseIdleConnections()
	}
}
