// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gogama/httpfsm/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTx(t *testing.T) *request.Transaction {
	p, err := request.NewPlan("GET", "http://example.com", nil)
	require.NoError(t, err)
	return request.NewTransaction(p)
}

func TestMock_Sync(t *testing.T) {
	boom := errors.New("boom")
	m := NewMock(
		Response(200, "ok", "X-Foo", "bar"),
		boom,
		request.Reply{Body: []byte("raw")},
		func(tx *request.Transaction) (request.Reply, error) {
			return request.Reply{Body: []byte(tx.Request.Method)}, nil
		},
	)
	assert.Equal(t, 4, m.Remaining())

	tx := newTx(t)
	require.NoError(t, m.Send(tx))
	assert.Equal(t, 200, tx.StatusCode())
	assert.Equal(t, "200 OK", tx.Response.Status)
	assert.Equal(t, "bar", tx.Header().Get("X-Foo"))
	assert.Equal(t, []byte("ok"), tx.Body)

	assert.Same(t, boom, m.Send(tx))
	assert.Nil(t, tx.Response)

	require.NoError(t, m.Send(tx))
	assert.Equal(t, []byte("raw"), tx.Body)

	require.NoError(t, m.Send(tx))
	assert.Equal(t, []byte("GET"), tx.Body)

	assert.Same(t, ErrMockEmpty, m.Send(tx))
	assert.Len(t, m.Sent(), 5)
	assert.Equal(t, 0, m.Remaining())
}

func TestMock_InvalidOutcome(t *testing.T) {
	assert.PanicsWithValue(t, "httpfsm/transport: invalid mock outcome type int", func() {
		NewMock(42)
	})
}

func TestMock_Async(t *testing.T) {
	t.Run("delay", func(t *testing.T) {
		m := NewMock(Response(204, ""))
		m.Async = true
		m.Delay = 5 * time.Millisecond
		tx := newTx(t)
		require.NoError(t, m.Send(tx))
		require.NotNil(t, tx.Pending)
		reply, err := tx.Pending.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 204, reply.Response.StatusCode)
	})
	t.Run("hold", func(t *testing.T) {
		hold := make(chan struct{})
		m := NewMock(Response(200, "a"), Response(200, "b"))
		m.Async = true
		m.Hold = hold
		a, b := newTx(t), newTx(t)
		require.NoError(t, m.Send(a))
		require.NoError(t, m.Send(b))
		time.Sleep(5 * time.Millisecond)
		assert.False(t, a.Pending.Realized())
		close(hold)
		var wg sync.WaitGroup
		for _, tx := range []*request.Transaction{a, b} {
			wg.Add(1)
			go func(tx *request.Transaction) {
				defer wg.Done()
				_, err := tx.Pending.Wait(context.Background())
				assert.NoError(t, err)
			}(tx)
		}
		wg.Wait()
		assert.Equal(t, 2, m.MaxInFlight())
	})
	t.Run("cancel while held", func(t *testing.T) {
		m := NewMock(Response(200, ""))
		m.Async = true
		m.Hold = make(chan struct{})
		tx := newTx(t)
		require.NoError(t, m.Send(tx))
		assert.True(t, tx.Pending.Cancel())
		assert.Eventually(t, func() bool { return m.MaxInFlight() == 1 }, time.Second, time.Millisecond)
	})
}
