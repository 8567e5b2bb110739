// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package future provides Future, a single-assignment result cell with
// blocking wait, continuations, and cancellation.
//
// A Future starts pending and leaves that state exactly once: either
// it is resolved with a value and an error, or it is cancelled.
// Continuations registered with Then run once, on the goroutine which
// moved the Future out of pending (or immediately, if it already has).
package future

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled is the error observed by waiters and continuations of a
// cancelled Future.
var ErrCancelled = errors.New("httpfsm/future: cancelled")

type status int

const (
	pending status = iota
	resolved
	cancelled
)

// A Future is a handle to a result which may not be available yet.
//
// All methods are safe for concurrent use by multiple goroutines.
type Future[T any] struct {
	lock     sync.Mutex
	status   status
	value    T
	err      error
	done     chan struct{}
	onCancel func()
	thens    []func(T, error)
}

// New returns a pending Future. The optional onCancel hook is invoked
// at most once, when the Future is cancelled while still pending.
func New[T any](onCancel func()) *Future[T] {
	return &Future[T]{
		done:     make(chan struct{}),
		onCancel: onCancel,
	}
}

// Resolved returns a Future which is already resolved with v and err.
func Resolved[T any](v T, err error) *Future[T] {
	f := New[T](nil)
	f.Resolve(v, err)
	return f
}

// Resolve moves f out of pending with result v and err, and runs the
// registered continuations. It returns false, and does nothing, if f
// was already resolved or cancelled.
func (f *Future[T]) Resolve(v T, err error) bool {
	f.lock.Lock()
	if f.status != pending {
		f.lock.Unlock()
		return false
	}
	f.status = resolved
	f.value = v
	f.err = err
	thens := f.settle()
	f.lock.Unlock()

	for _, fn := range thens {
		fn(v, err)
	}
	return true
}

// Cancel cancels f if it is still pending, invokes the cancel hook,
// and runs the registered continuations with ErrCancelled. It returns
// false if f was already resolved or cancelled.
func (f *Future[T]) Cancel() bool {
	f.lock.Lock()
	if f.status != pending {
		f.lock.Unlock()
		return false
	}
	f.status = cancelled
	f.err = ErrCancelled
	hook := f.onCancel
	thens := f.settle()
	f.lock.Unlock()

	if hook != nil {
		hook()
	}
	var zero T
	for _, fn := range thens {
		fn(zero, ErrCancelled)
	}
	return true
}

// settle closes the done channel and detaches the continuations. The
// caller must hold the lock.
func (f *Future[T]) settle() []func(T, error) {
	close(f.done)
	thens := f.thens
	f.thens = nil
	f.onCancel = nil
	return thens
}

// Then registers fn to be called with the result of f. If f has
// already left pending, fn is called immediately on the calling
// goroutine.
func (f *Future[T]) Then(fn func(T, error)) {
	if fn == nil {
		panic("httpfsm/future: nil continuation")
	}
	f.lock.Lock()
	if f.status == pending {
		f.thens = append(f.thens, fn)
		f.lock.Unlock()
		return
	}
	v, err := f.value, f.err
	f.lock.Unlock()
	fn(v, err)
}

// Wait blocks until f leaves pending or ctx is done, and returns the
// result. A cancelled Future yields ErrCancelled. If ctx is done first,
// the context error is returned and f is left untouched.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.lock.Lock()
		defer f.lock.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel which is closed when f leaves pending.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Realized reports whether f has left pending, either by being
// resolved or by being cancelled.
func (f *Future[T]) Realized() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.status != pending
}

// Cancelled reports whether f was cancelled.
func (f *Future[T]) Cancelled() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.status == cancelled
}
