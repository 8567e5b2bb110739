// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// failingBody returns a reader whose Read fails with readErr, or
// reaches EOF when readErr is nil, and whose Close returns closeErr.
func failingBody(t *testing.T, readErr, closeErr error) *mockReadCloser {
	m := &mockReadCloser{}
	m.Test(t)
	if readErr == nil {
		readErr = io.EOF
	}
	m.On("Read", mock.Anything).Return(0, readErr).Once()
	m.On("Close").Return(closeErr).Once()
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func TestBodyBytes(t *testing.T) {
	shared := []byte("shared")
	testCases := []struct {
		name string
		body interface{}
		want []byte
	}{
		{"nil", nil, nil},
		{"string", "foo", []byte("foo")},
		{"empty string", "", []byte{}},
		{"byte slice", shared, shared},
		{"reader", strings.NewReader("baz"), []byte("baz")},
		{"read closer", io.NopCloser(strings.NewReader("qux")), []byte("qux")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := BodyBytes(tc.body)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, b)
		})
	}

	t.Run("byte slice is not copied", func(t *testing.T) {
		b, _ := BodyBytes(shared)
		assert.Same(t, &shared[0], &b[0])
	})
	t.Run("unsupported type", func(t *testing.T) {
		b, err := BodyBytes(10)
		assert.Nil(t, b)
		assert.EqualError(t, err, badBodyTypeMsg)
	})
	t.Run("read error still closes", func(t *testing.T) {
		readErr := errors.New("ham")
		b, err := BodyBytes(failingBody(t, readErr, errors.New("ignored")))
		assert.Nil(t, b)
		assert.Same(t, readErr, err)
	})
	t.Run("close error", func(t *testing.T) {
		closeErr := errors.New("eggs")
		b, err := BodyBytes(failingBody(t, nil, closeErr))
		assert.Nil(t, b)
		assert.Same(t, closeErr, err)
	})
}

func TestReasonPhrase(t *testing.T) {
	testCases := []struct {
		resp *http.Response
		want string
	}{
		{nil, ""},
		{&http.Response{StatusCode: 404, Status: "404 Not Found"}, "Not Found"},
		{&http.Response{StatusCode: 418, Status: "418 Teapot Time"}, "Teapot Time"},
		{&http.Response{StatusCode: 503}, "Service Unavailable"},
		{&http.Response{StatusCode: 299, Status: "299"}, ""},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, ReasonPhrase(tc.resp))
	}
}

type mockReadCloser struct {
	mock.Mock
}

func (m *mockReadCloser) Read(p []byte) (int, error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *mockReadCloser) Close() error {
	return m.Called().Error(0)
}
