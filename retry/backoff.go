// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gogama/httpfsm"
	"github.com/gogama/httpfsm/failure"
	"github.com/gogama/httpfsm/request"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultMaxRetries is the MaxRetries of a Backoff made by NewBackoff.
const DefaultMaxRetries = 3

// Priority is the priority of the Complete and Error listeners
// installed by Backoff.Attach. It is between the built-in redirect and
// HTTP error listeners, so redirects are followed first and a retried
// response is never turned into an error.
const Priority = httpfsm.PriorityVerify + 10

// A Backoff retries failed attempts with a delay which grows with the
// number of retries.
//
// Retry counts are kept per transaction, keyed by its ID, and are
// forgotten when the transaction ends or its context is done. A single
// Backoff may serve any number of transactions concurrently.
//
// Each attempt is judged once. If a failed response is turned into an
// error after Backoff declined to retry it, the Error event for the
// same attempt is left alone.
type Backoff struct {
	// MaxRetries is the maximum number of retries per transaction.
	MaxRetries int

	// Decider decides which outcomes are failures worth retrying. If
	// nil, DefaultDecider is used.
	Decider Decider

	// Delay computes the wait before each retry. If nil, DefaultDelay
	// is used.
	Delay Delay

	// Sleep waits for the delay to elapse. It must return early with
	// the context error if ctx is done. If nil, a timer is used.
	Sleep func(ctx context.Context, d time.Duration) error

	// Budget, if not nil, limits the rate of retries across all
	// transactions. When the budget is spent, failures propagate as if
	// MaxRetries had been reached.
	Budget *rate.Limiter

	// Logger receives debug logs. If nil, nothing is logged.
	Logger *zerolog.Logger

	lock    sync.Mutex
	tallies map[uuid.UUID]*tally
}

type tally struct {
	retries int
	judged  int // Attempt+1 of the last attempt judged
	stop    func() bool
}

// NewBackoff returns a Backoff which retries up to DefaultMaxRetries
// times using DefaultDecider and DefaultDelay.
func NewBackoff() *Backoff {
	return &Backoff{MaxRetries: DefaultMaxRetries}
}

// Attach installs b into em.
func (b *Backoff) Attach(em *httpfsm.Emitter) {
	em.OnFunc(httpfsm.Complete, b.handle, Priority)
	em.OnFunc(httpfsm.Error, b.handle, Priority)
	em.OnFunc(httpfsm.End, b.forget, httpfsm.PriorityLast)
}

// Retries returns the number of retries done so far for the
// transaction with the given ID. It is zero once the transaction has
// ended.
func (b *Backoff) Retries(id uuid.UUID) int {
	b.lock.Lock()
	defer b.lock.Unlock()
	if c := b.tallies[id]; c != nil {
		return c.retries
	}
	return 0
}

// Len returns the number of transactions currently tracked.
func (b *Backoff) Len() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.tallies)
}

func (b *Backoff) handle(e *httpfsm.Event) error {
	t := e.Transaction
	if e.RetryRequested() || !b.decider().Decide(t) {
		return nil
	}

	n, ok := b.judge(t)
	if !ok {
		return nil
	}

	log := b.logger().With().Str("txn", t.ID.String()).Int("attempt", t.Attempt).Logger()
	if n >= b.MaxRetries {
		log.Debug().Int("retries", n).Msg("retries exhausted")
		return nil
	}
	if b.Budget != nil && !b.Budget.Allow() {
		log.Debug().Int("retries", n).Msg("retry budget spent")
		return nil
	}

	n = b.inc(t.ID)
	d := b.delay()(n)
	t.NotBefore = time.Now().Add(d)
	log.Debug().Int("retries", n).Dur("delay", d).Msg("retry scheduled")
	if err := b.sleep(t.Context(), d); err != nil {
		return failure.Wrap(t.Request, fmt.Errorf("%w: %w", failure.ErrCancelled, err))
	}
	e.Retry()
	return nil
}

// judge returns the retries done so far for t, and false if t's
// current attempt has already been judged.
func (b *Backoff) judge(t *request.Transaction) (int, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.tallies == nil {
		b.tallies = make(map[uuid.UUID]*tally)
	}
	c := b.tallies[t.ID]
	if c == nil {
		id := t.ID
		c = &tally{}
		c.stop = context.AfterFunc(t.Context(), func() { b.drop(id) })
		b.tallies[id] = c
	}
	if c.judged == t.Attempt+1 {
		return c.retries, false
	}
	c.judged = t.Attempt + 1
	return c.retries, true
}

func (b *Backoff) forget(e *httpfsm.Event) error {
	b.lock.Lock()
	c := b.tallies[e.Transaction.ID]
	delete(b.tallies, e.Transaction.ID)
	b.lock.Unlock()
	if c != nil {
		c.stop()
	}
	return nil
}

func (b *Backoff) drop(id uuid.UUID) {
	b.lock.Lock()
	defer b.lock.Unlock()
	delete(b.tallies, id)
}

func (b *Backoff) inc(id uuid.UUID) int {
	b.lock.Lock()
	defer b.lock.Unlock()
	c := b.tallies[id]
	if c == nil {
		return 0
	}
	c.retries++
	return c.retries
}

func (b *Backoff) decider() Decider {
	if b.Decider == nil {
		return DefaultDecider
	}

	return b.Decider
}

func (b *Backoff) delay() Delay {
	if b.Delay == nil {
		return DefaultDelay
	}

	return b.Delay
}

func (b *Backoff) sleep(ctx context.Context, d time.Duration) error {
	if b.Sleep != nil {
		return b.Sleep(ctx, d)
	}

	return Sleep(ctx, d)
}

func (b *Backoff) logger() *zerolog.Logger {
	if b.Logger == nil {
		l := zerolog.Nop()
		return &l
	}

	return b.Logger
}

// Sleep waits for d to elapse or ctx to be done, whichever happens
// first, and returns the context error in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

