// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package failure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"syscall"
	"testing"

	"github.com/gogama/httpfsm/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plan(t *testing.T) *request.Plan {
	p, err := request.NewPlan("GET", "http://example.com/path", nil)
	require.NoError(t, err)
	return p
}

func TestCreate(t *testing.T) {
	p := plan(t)
	testCases := []struct {
		name   string
		resp   *http.Response
		kind   Kind
		msg    string
		code   int
		target error
	}{
		{
			name: "no response",
			kind: KindTransfer,
			msg:  "Error completing request",
		},
		{
			name: "404",
			resp: &http.Response{StatusCode: 404, Status: "404 Not Found"},
			kind: KindClient,
			msg:  "Client error response [url] http://example.com/path [status code] 404 [reason phrase] Not Found",
			code: 404,
		},
		{
			name: "503",
			resp: &http.Response{StatusCode: 503, Status: "503 Service Unavailable"},
			kind: KindServer,
			msg:  "Server error response [url] http://example.com/path [status code] 503 [reason phrase] Service Unavailable",
			code: 503,
		},
		{
			name: "299",
			resp: &http.Response{StatusCode: 299, Status: "299 Odd"},
			kind: KindUnsuccessful,
			msg:  "Unsuccessful response [url] http://example.com/path [status code] 299 [reason phrase] Odd",
			code: 299,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			cause := errors.New("cause")
			err := Create(p, testCase.resp, cause)
			require.NotNil(t, err)
			assert.Equal(t, testCase.kind, err.Kind)
			assert.EqualError(t, err, testCase.msg)
			assert.Equal(t, testCase.code, err.Code)
			assert.Same(t, p, err.Request)
			assert.Same(t, testCase.resp, err.Response)
			assert.Equal(t, testCase.resp != nil, err.HasResponse())
			assert.ErrorIs(t, err, cause)
			assert.ErrorIs(t, err, &RequestError{Kind: testCase.kind})
		})
	}
}

func TestCreate_ClientVariantMessage(t *testing.T) {
	err := Create(plan(t), &http.Response{StatusCode: 404}, nil)
	assert.Contains(t, err.Error(), "Client error response")
	assert.Contains(t, err.Error(), "[reason phrase] Not Found")
	assert.NotErrorIs(t, err, &RequestError{Kind: KindServer})
}

func TestWrap(t *testing.T) {
	p := plan(t)
	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, Wrap(p, nil))
	})
	t.Run("idempotent", func(t *testing.T) {
		re := Create(p, &http.Response{StatusCode: 500}, nil)
		assert.Same(t, re, Wrap(p, re))
		w := Wrap(p, errors.New("boom"))
		assert.Same(t, w, Wrap(p, w))
	})
	t.Run("plain error", func(t *testing.T) {
		cause := &url.Error{Op: "Get", URL: "http://example.com/path", Err: syscall.ECONNREFUSED}
		err := Wrap(p, cause)
		var re *RequestError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, KindTransfer, re.Kind)
		assert.Equal(t, cause.Error(), re.Error())
		assert.Same(t, p, re.Request)
		assert.Nil(t, re.Response)
		assert.Equal(t, 0, re.Code)
		assert.Same(t, cause, re.Cause)
		assert.ErrorIs(t, err, syscall.ECONNREFUSED)
		assert.True(t, re.Transient())
		assert.False(t, re.Timeout())
	})
	t.Run("cancellation", func(t *testing.T) {
		err := Wrap(p, fmt.Errorf("%w: %w", ErrCancelled, context.Canceled))
		assert.ErrorIs(t, err, ErrCancelled)
		assert.ErrorIs(t, err, context.Canceled)
	})
	t.Run("timeout", func(t *testing.T) {
		err := Wrap(p, &url.Error{Err: syscall.ETIMEDOUT})
		var re *RequestError
		require.ErrorAs(t, err, &re)
		assert.True(t, re.Timeout())
		assert.True(t, re.Transient())
	})
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "transfer", KindTransfer.String())
	assert.Equal(t, "client", KindClient.String())
	assert.Equal(t, "server", KindServer.String())
	assert.Equal(t, "unsuccessful", KindUnsuccessful.String())
	assert.Equal(t, "Kind(7)", Kind(7).String())
}
