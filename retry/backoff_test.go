// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/gogama/httpfsm"
	"github.com/gogama/httpfsm/failure"
	"github.com/gogama/httpfsm/request"
	"github.com/gogama/httpfsm/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type sleeper struct {
	lock   sync.Mutex
	delays []time.Duration
}

func (s *sleeper) sleep(_ context.Context, d time.Duration) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (s *sleeper) get() []time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func client(b *Backoff, adapter httpfsm.Adapter) *httpfsm.Client {
	em := &httpfsm.Emitter{}
	b.Attach(em)
	return &httpfsm.Client{Adapter: adapter, Handlers: em}
}

func plan(t *testing.T) *request.Plan {
	p, err := request.NewPlan("GET", "http://example.com/", nil)
	require.NoError(t, err)
	return p
}

func TestNewBackoff(t *testing.T) {
	b := NewBackoff()
	assert.Equal(t, DefaultMaxRetries, b.MaxRetries)
	assert.Equal(t, 0, b.Len())
}

func TestBackoff_Attach(t *testing.T) {
	em := &httpfsm.Emitter{}
	NewBackoff().Attach(em)
	assert.Len(t, em.Listeners(httpfsm.Before), 0)
	assert.Len(t, em.Listeners(httpfsm.Complete), 1)
	assert.Len(t, em.Listeners(httpfsm.Error), 1)
	assert.Len(t, em.Listeners(httpfsm.End), 1)
}

func TestBackoff(t *testing.T) {
	t.Run("retries server errors", func(t *testing.T) {
		s := &sleeper{}
		b := &Backoff{MaxRetries: 3, Sleep: s.sleep}
		m := transport.NewMock(
			transport.Response(503, ""),
			transport.Response(500, ""),
			transport.Response(200, "ok"),
		)
		txn, err := client(b, m).Do(plan(t))
		require.NoError(t, err)
		assert.Equal(t, 200, txn.StatusCode())
		assert.Equal(t, 2, txn.Attempt)
		assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, s.get())
		assert.False(t, txn.NotBefore.IsZero())
		assert.Equal(t, 0, b.Retries(txn.ID))
		assert.Equal(t, 0, b.Len())
	})
	t.Run("retries transient errors", func(t *testing.T) {
		s := &sleeper{}
		b := &Backoff{MaxRetries: 3, Sleep: s.sleep, Delay: Fixed(time.Millisecond)}
		m := transport.NewMock(
			&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED},
			transport.Response(200, "ok"),
		)
		txn, err := client(b, m).Do(plan(t))
		require.NoError(t, err)
		assert.Equal(t, 1, txn.Attempt)
		assert.Equal(t, []time.Duration{time.Millisecond}, s.get())
	})
	t.Run("gives up after max retries", func(t *testing.T) {
		s := &sleeper{}
		b := &Backoff{MaxRetries: 1, Sleep: s.sleep}
		m := transport.NewMock(
			transport.Response(500, ""),
			transport.Response(500, ""),
			transport.Response(200, ""),
		)
		txn, err := client(b, m).Do(plan(t))
		require.Error(t, err)
		assert.True(t, errors.Is(err, &failure.RequestError{Kind: failure.KindServer}))
		assert.Equal(t, 1, txn.Attempt)
		assert.Len(t, s.get(), 1)
		assert.Equal(t, 1, m.Remaining())
		assert.Equal(t, 0, b.Len())
	})
	t.Run("zero max retries", func(t *testing.T) {
		b := &Backoff{Sleep: (&sleeper{}).sleep}
		m := transport.NewMock(transport.Response(503, ""))
		_, err := client(b, m).Do(plan(t))
		assert.Error(t, err)
	})
	t.Run("not a failure", func(t *testing.T) {
		s := &sleeper{}
		b := &Backoff{MaxRetries: 3, Sleep: s.sleep}
		m := transport.NewMock(transport.Response(404, ""))
		_, err := client(b, m).Do(plan(t))
		assert.True(t, errors.Is(err, &failure.RequestError{Kind: failure.KindClient}))
		assert.Empty(t, s.get())
	})
	t.Run("custom decider", func(t *testing.T) {
		s := &sleeper{}
		b := &Backoff{MaxRetries: 3, Sleep: s.sleep, Decider: Codes(429)}
		m := transport.NewMock(transport.Response(429, ""), transport.Response(204, ""))
		txn, err := client(b, m).Do(plan(t))
		require.NoError(t, err)
		assert.Equal(t, 204, txn.StatusCode())
	})
	t.Run("redirect is not a failure", func(t *testing.T) {
		s := &sleeper{}
		b := &Backoff{MaxRetries: 3, Sleep: s.sleep, Decider: StatusCode(301)}
		m := transport.NewMock(
			transport.Response(301, "", "Location", "/moved"),
			transport.Response(200, ""),
		)
		txn, err := client(b, m).Do(plan(t))
		require.NoError(t, err)
		assert.Equal(t, 1, txn.Redirects)
		assert.Empty(t, s.get())
	})
	t.Run("budget", func(t *testing.T) {
		s := &sleeper{}
		b := &Backoff{MaxRetries: 5, Sleep: s.sleep, Budget: rate.NewLimiter(0, 1)}
		m := transport.NewMock(
			transport.Response(503, ""),
			transport.Response(503, ""),
			transport.Response(200, ""),
		)
		_, err := client(b, m).Do(plan(t))
		require.Error(t, err)
		assert.True(t, errors.Is(err, &failure.RequestError{Kind: failure.KindServer}))
		assert.Len(t, s.get(), 1)
	})
	t.Run("interrupted sleep", func(t *testing.T) {
		b := &Backoff{MaxRetries: 3, Delay: Fixed(time.Hour)}
		m := transport.NewMock(transport.Response(503, ""))
		ctx, cancel := context.WithCancel(context.Background())
		p, err := request.NewPlanWithContext(ctx, "GET", "http://example.com/", nil)
		require.NoError(t, err)
		go func() {
			time.Sleep(5 * time.Millisecond)
			cancel()
		}()
		_, err = client(b, m).Do(p)
		require.Error(t, err)
		assert.True(t, errors.Is(err, failure.ErrCancelled))
		assert.True(t, errors.Is(err, context.Canceled))
	})
	t.Run("cancelled after retry", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p, err := request.NewPlanWithContext(ctx, "GET", "http://example.com/", nil)
		require.NoError(t, err)
		b := &Backoff{MaxRetries: 3, Sleep: func(context.Context, time.Duration) error {
			cancel()
			return nil
		}}
		m := transport.NewMock(transport.Response(503, ""), transport.Response(200, ""))
		_, err = client(b, m).Do(p)
		require.Error(t, err)
		assert.True(t, errors.Is(err, failure.ErrCancelled))
		assert.Equal(t, 1, m.Remaining())
		assert.Eventually(t, func() bool { return b.Len() == 0 }, time.Second, time.Millisecond)
	})
	t.Run("refused attempt judged once", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
		b := &Backoff{MaxRetries: 3, Sleep: (&sleeper{}).sleep, Budget: rate.NewLimiter(0, 0), Logger: &logger}
		m := transport.NewMock(transport.Response(503, ""), transport.Response(200, ""))
		_, err := client(b, m).Do(plan(t))
		require.Error(t, err)
		assert.True(t, errors.Is(err, &failure.RequestError{Kind: failure.KindServer}))
		assert.Equal(t, 1, strings.Count(buf.String(), `"message":"retry budget spent"`))
		assert.Equal(t, 1, m.Remaining())
		assert.Equal(t, 0, b.Len())
	})
	t.Run("logs", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf)
		b := &Backoff{MaxRetries: 1, Sleep: (&sleeper{}).sleep, Logger: &logger}
		m := transport.NewMock(transport.Response(503, ""), transport.Response(503, ""))
		_, err := client(b, m).Do(plan(t))
		require.Error(t, err)
		assert.Contains(t, buf.String(), `"message":"retry scheduled"`)
		assert.Equal(t, 1, strings.Count(buf.String(), `"message":"retries exhausted"`))
	})
}

func TestBackoff_Concurrent(t *testing.T) {
	const n = 20
	m := transport.NewMock()
	m.Async = true
	flaky := func(t *request.Transaction) (request.Reply, error) {
		if t.Attempt < 2 {
			return request.Reply{Response: transport.Response(503, "")}, nil
		}
		return request.Reply{Response: transport.Response(200, "")}, nil
	}
	for i := 0; i < 3*n; i++ {
		m.Add(flaky)
	}
	s := &sleeper{}
	b := &Backoff{MaxRetries: 2, Sleep: s.sleep}
	ps := make([]*request.Plan, n)
	for i := range ps {
		ps[i] = plan(t)
	}

	results, err := httpfsm.BatchWithOptions(client(b, m), request.Plans(ps...), httpfsm.PoolOptions{Size: 5})
	require.NoError(t, err)
	require.Equal(t, n, results.Len())
	for i := 0; i < n; i++ {
		r := results.Get(i)
		require.NoError(t, r.Err)
		assert.Equal(t, 2, r.Transaction.Attempt)
	}
	assert.Len(t, s.get(), 2*n)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0, m.Remaining())
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), 0))
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, context.Canceled, Sleep(ctx, time.Hour))
	assert.Equal(t, context.Canceled, Sleep(ctx, 0))
}
