// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpfsm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/gogama/httpfsm/failure"
	"github.com/gogama/httpfsm/future"
	"github.com/gogama/httpfsm/request"
	"github.com/gogama/httpfsm/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// DefaultPoolSize is the number of transactions a Pool keeps in flight
// when PoolOptions.Size is zero.
const DefaultPoolSize = 25

// ErrInvalidElement is returned when a pool's source yields a nil
// plan.
var ErrInvalidElement = errors.New("httpfsm: invalid pool element")

// PoolOptions configures a Pool.
type PoolOptions struct {
	// Size is the maximum number of transactions in flight at once.
	// Zero means DefaultPoolSize.
	//
	// Transactions only overlap if the submitter returns before they
	// finish. A Client with a synchronous adapter, which is the
	// default, runs each transaction to completion inside Advance, so
	// a pool over it sends one plan at a time whatever its Size. Use
	// transport.Async for concurrency.
	Size int

	// Listeners maps phase names ("before", "complete", "error",
	// "end") to listeners attached to every transaction of the pool.
	// Each value may be a Listener, a func(*Event) error, a
	// func(*Event), a ListenerSpec or a []ListenerSpec.
	Listeners map[string]interface{}

	// Logger receives debug logs. If nil, nothing is logged.
	Logger *zerolog.Logger

	// InFlight, if not nil, tracks the number of transactions in
	// flight.
	InFlight prometheus.Gauge
}

// A ListenerSpec is a listener function with an explicit priority.
// Fn may be a Listener, a func(*Event) error or a func(*Event).
type ListenerSpec struct {
	Fn       interface{}
	Priority int
}

// A ListenerError reports a malformed entry in PoolOptions.Listeners.
type ListenerError struct {
	Phase string
	Value interface{}
	Err   error
}

func (e *ListenerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("httpfsm: invalid listener phase %q: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("httpfsm: invalid listener for %q: each listener must be a Listener, "+
		"func(*Event) error, func(*Event) or ListenerSpec, not %T", e.Phase, e.Value)
}

func (e *ListenerError) Unwrap() error {
	return e.Err
}

// liveTxn is the context of an admitted transaction which has not
// settled.
type liveTxn struct {
	ctx    context.Context
	cancel context.CancelFunc
}

type boundListener struct {
	phase    Phase
	listener Listener
	priority int
}

// A Pool sends the plans of a request.Source through a Submitter,
// keeping at most Size transactions in flight. As soon as one
// transaction finishes, the next plan is admitted.
//
// A Pool does not run goroutines of its own. Advance admits work, and
// Wait repeatedly advances until the pool is drained.
type Pool struct {
	client    Submitter
	source    request.Source
	listeners []boundListener
	log       zerolog.Logger
	inFlight  prometheus.Gauge
	sem       *semaphore.Weighted
	wake      chan struct{}
	onResult  func(i int, t *request.Transaction, err error)

	lock      sync.Mutex
	active    map[*future.Future[*request.Transaction]]struct{}
	live      map[int]liveTxn
	admitted  int
	exhausted bool
	cancelled bool
}

// NewPool returns a Pool which sends the plans of src through c.
// Malformed options are reported immediately.
func NewPool(c Submitter, src request.Source, opts PoolOptions) (*Pool, error) {
	if c == nil || src == nil {
		panic("httpfsm: nil submitter or source")
	}
	size := opts.Size
	if size == 0 {
		size = DefaultPoolSize
	} else if size < 0 {
		return nil, fmt.Errorf("httpfsm: invalid pool size %d", size)
	}
	listeners, err := parseListeners(opts.Listeners)
	if err != nil {
		return nil, err
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	if cl, ok := c.(*Client); ok && size > 1 {
		if _, blocking := cl.adapter().(*transport.Sync); blocking {
			log.Warn().Int("size", size).Msg("pool over a synchronous adapter sends one plan at a time")
		}
	}
	return &Pool{
		client:    c,
		source:    src,
		listeners: listeners,
		log:       log,
		inFlight:  opts.InFlight,
		sem:       semaphore.NewWeighted(int64(size)),
		wake:      make(chan struct{}, 1),
		active:    make(map[*future.Future[*request.Transaction]]struct{}),
		live:      make(map[int]liveTxn),
	}, nil
}

// Advance admits plans from the source until the pool is full or the
// source is exhausted, and reports whether work remains: plans still
// to be admitted, or transactions in flight. A nil plan from the
// source stops admission with ErrInvalidElement.
func (p *Pool) Advance() (bool, error) {
	for {
		p.lock.Lock()
		stop := p.cancelled || p.exhausted
		p.lock.Unlock()
		if stop || !p.sem.TryAcquire(1) {
			break
		}

		plan, ok := p.source.Next()
		if !ok || plan == nil {
			p.sem.Release(1)
			p.lock.Lock()
			p.exhausted = true
			i := p.admitted
			p.lock.Unlock()
			if ok {
				return p.remaining(), fmt.Errorf("%w: nil plan at position %d", ErrInvalidElement, i)
			}
			break
		}
		p.admit(plan)
	}

	return p.remaining(), nil
}

func (p *Pool) admit(plan *request.Plan) {
	ctx, cancel := context.WithCancel(plan.Context())
	p.lock.Lock()
	i := p.admitted
	p.admitted++
	p.live[i] = liveTxn{ctx: ctx, cancel: cancel}
	p.lock.Unlock()

	t := request.NewTransactionWithContext(ctx, plan)
	if len(p.listeners) > 0 {
		em := TransactionEmitter(t)
		for _, bl := range p.listeners {
			em.On(bl.phase, bl.listener, bl.priority)
		}
	}
	if p.inFlight != nil {
		p.inFlight.Inc()
	}
	p.log.Debug().Int("index", i).Str("method", plan.Method).Stringer("url", plan.URL).Msg("admitted")

	// Submit may run the whole lifecycle, including listeners that call
	// Cancel, so it must not be called with the lock held.
	f := p.client.Submit(t)
	p.lock.Lock()
	if !f.Realized() {
		p.active[f] = struct{}{}
	}
	p.lock.Unlock()

	f.Then(func(_ *request.Transaction, err error) {
		cancel()
		p.lock.Lock()
		delete(p.active, f)
		delete(p.live, i)
		p.lock.Unlock()
		if p.inFlight != nil {
			p.inFlight.Dec()
		}
		if errors.Is(err, future.ErrCancelled) {
			err = failure.Wrap(plan, fmt.Errorf("%w: %w", failure.ErrCancelled, err))
		}
		p.log.Debug().Int("index", i).Err(err).Msg("settled")
		if p.onResult != nil {
			p.onResult(i, t, err)
		}
		p.sem.Release(1)
		p.signal()
	})
}

func (p *Pool) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pool) remaining() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return !p.cancelled && !p.exhausted || len(p.live) > 0
}

// Wait advances the pool until every plan has been admitted and every
// transaction has finished, the pool is cancelled and drained, or ctx
// is done.
func (p *Pool) Wait(ctx context.Context) error {
	for {
		more, err := p.Advance()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		select {
		case <-p.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Cancel stops admission and cancels every transaction in flight,
// including one still being submitted, as happens when a listener
// cancels the pool of a synchronous client. It returns true if at
// least one transaction was cancelled. Cancelling
// a pool which is already done has no effect and returns false.
func (p *Pool) Cancel() bool {
	p.lock.Lock()
	if p.done() {
		p.lock.Unlock()
		return false
	}
	p.cancelled = true
	fs := make([]*future.Future[*request.Transaction], 0, len(p.active))
	for f := range p.active {
		fs = append(fs, f)
	}
	lives := make([]liveTxn, 0, len(p.live))
	for _, lt := range p.live {
		lives = append(lives, lt)
	}
	p.lock.Unlock()

	p.log.Debug().Int("inFlight", len(fs)).Msg("cancelling pool")
	cancelled := false
	for _, f := range fs {
		if f.Cancel() {
			cancelled = true
		}
	}
	// Transactions still inside Submit are not in active yet; cancelling
	// their context makes them exit before they are sent.
	for _, lt := range lives {
		if lt.ctx.Err() == nil {
			cancelled = true
		}
		lt.cancel()
	}
	p.signal()
	return cancelled
}

// Cancelled reports whether the pool was cancelled.
func (p *Pool) Cancelled() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.cancelled
}

// Done reports whether the pool will admit no more plans and has no
// transactions in flight.
func (p *Pool) Done() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.done()
}

func (p *Pool) done() bool {
	return (p.cancelled || p.exhausted) && len(p.live) == 0
}

// Send sends every plan of src through c, discarding the outcomes.
func Send(c Submitter, src request.Source, opts PoolOptions) error {
	p, err := NewPool(c, src, opts)
	if err != nil {
		return err
	}
	return p.Wait(context.Background())
}

// A Result is the final outcome of one plan of a batch.
type Result struct {
	Transaction *request.Transaction
	Err         error
}

// Response returns the final response, which after redirects is the
// response of the last hop. For a failure it is the response carried
// by the error, if any.
func (r Result) Response() *http.Response {
	if r.Err == nil {
		if r.Transaction == nil {
			return nil
		}
		return r.Transaction.Response
	}
	var re *failure.RequestError
	if errors.As(r.Err, &re) {
		return re.Response
	}
	return nil
}

// BatchResults holds the outcomes of a batch, in the order the plans
// were yielded by the source.
type BatchResults struct {
	results []Result
}

// Len returns the number of outcomes.
func (b *BatchResults) Len() int {
	return len(b.results)
}

// Get returns the i-th outcome.
func (b *BatchResults) Get(i int) Result {
	return b.results[i]
}

// Responses returns the responses of the successful outcomes.
func (b *BatchResults) Responses() []*http.Response {
	var out []*http.Response
	for _, r := range b.results {
		if r.Err == nil {
			out = append(out, r.Response())
		}
	}
	return out
}

// Failures returns the errors of the failed outcomes.
func (b *BatchResults) Failures() []error {
	var out []error
	for _, r := range b.results {
		if r.Err != nil {
			out = append(out, r.Err)
		}
	}
	return out
}

// Batch sends every plan of src through c and collects the outcomes.
// Failures of individual transactions are recorded in the results
// rather than returned; only malformed listeners and sources produce
// an error.
func Batch(c Submitter, src request.Source, listeners map[string]interface{}) (*BatchResults, error) {
	return BatchWithOptions(c, src, PoolOptions{Listeners: listeners})
}

// BatchWithOptions is Batch with full control of the pool options.
func BatchWithOptions(c Submitter, src request.Source, opts PoolOptions) (*BatchResults, error) {
	p, err := NewPool(c, src, opts)
	if err != nil {
		return nil, err
	}
	var lock sync.Mutex
	byIndex := make(map[int]Result)
	p.onResult = func(i int, t *request.Transaction, err error) {
		lock.Lock()
		defer lock.Unlock()
		byIndex[i] = Result{Transaction: t, Err: err}
	}
	if err = p.Wait(context.Background()); err != nil {
		return nil, err
	}

	lock.Lock()
	defer lock.Unlock()
	indices := make([]int, 0, len(byIndex))
	for i := range byIndex {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	results := make([]Result, len(indices))
	for j, i := range indices {
		results[j] = byIndex[i]
	}
	return &BatchResults{results: results}, nil
}

func parseListeners(m map[string]interface{}) ([]boundListener, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []boundListener
	for _, name := range names {
		phase, err := ParsePhase(name)
		if err != nil {
			return nil, &ListenerError{Phase: name, Value: m[name], Err: err}
		}
		switch v := m[name].(type) {
		case []ListenerSpec:
			for _, spec := range v {
				l := toListener(spec.Fn)
				if l == nil {
					return nil, &ListenerError{Phase: name, Value: spec.Fn}
				}
				out = append(out, boundListener{phase, l, spec.Priority})
			}
		case ListenerSpec:
			l := toListener(v.Fn)
			if l == nil {
				return nil, &ListenerError{Phase: name, Value: v.Fn}
			}
			out = append(out, boundListener{phase, l, v.Priority})
		default:
			l := toListener(v)
			if l == nil {
				return nil, &ListenerError{Phase: name, Value: v}
			}
			out = append(out, boundListener{phase, l, PriorityDefault})
		}
	}
	return out, nil
}

func toListener(v interface{}) Listener {
	switch fn := v.(type) {
	case Listener:
		return fn
	case func(*Event) error:
		if fn != nil {
			return ListenerFunc(fn)
		}
	case func(*Event):
		if fn != nil {
			return ListenerFunc(func(e *Event) error {
				fn(e)
				return nil
			})
		}
	}
	return nil
}
