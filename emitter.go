// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpfsm

import (
	"sort"
	"sync"

	"github.com/gogama/httpfsm/request"
)

// Listener priorities. Listeners with a higher priority receive an
// event first; listeners with equal priority are called in the order
// they were added.
const (
	PriorityFirst    = 1 << 30
	PriorityEarly    = 10000
	PriorityRedirect = 200
	PriorityVerify   = 100
	PriorityDefault  = 0
	PriorityLate     = -10000
	PriorityLast     = -1 << 30
)

// A Listener reacts to lifecycle events. A non-nil error from Handle
// stops the event and fails the transaction with that error.
type Listener interface {
	Handle(*Event) error
}

// ListenerFunc is an adapter to allow the use of ordinary functions
// as listeners.
type ListenerFunc func(*Event) error

// Handle calls f(e).
func (f ListenerFunc) Handle(e *Event) error {
	return f(e)
}

type registration struct {
	listener Listener
	priority int
}

// An Emitter dispatches events to listeners in priority order.
//
// The zero value is an empty Emitter ready to use. Emitters are safe
// for concurrent use: listeners may be added while events are being
// emitted, in which case the in-progress emission does not see them.
type Emitter struct {
	lock      sync.RWMutex
	listeners [numPhases][]registration
}

// On adds a listener for phase p with the given priority.
func (em *Emitter) On(p Phase, l Listener, priority int) {
	if l == nil {
		panic("httpfsm: nil listener")
	}

	em.lock.Lock()
	defer em.lock.Unlock()
	regs := em.listeners[p]
	i := sort.Search(len(regs), func(i int) bool { return regs[i].priority < priority })
	regs = append(regs, registration{})
	copy(regs[i+1:], regs[i:])
	regs[i] = registration{listener: l, priority: priority}
	em.listeners[p] = regs
}

// OnFunc adds fn as a listener for phase p with the given priority.
func (em *Emitter) OnFunc(p Phase, fn func(*Event) error, priority int) {
	if fn == nil {
		panic("httpfsm: nil listener")
	}
	em.On(p, ListenerFunc(fn), priority)
}

// Listeners returns the listeners for phase p in dispatch order.
func (em *Emitter) Listeners(p Phase) []Listener {
	regs := em.snapshot(p)
	ls := make([]Listener, len(regs))
	for i := range regs {
		ls[i] = regs[i].listener
	}
	return ls
}

// Emit dispatches e to the listeners for its phase.
func (em *Emitter) Emit(e *Event) error {
	return dispatch(e, em.snapshot(e.Phase))
}

func (em *Emitter) snapshot(p Phase) []registration {
	if em == nil {
		return nil
	}
	em.lock.RLock()
	defer em.lock.RUnlock()
	return append([]registration(nil), em.listeners[p]...)
}

// emitAll dispatches e to the listeners of all the emitters as if they
// were one, keeping the order of emitters for equal priorities. Nil
// emitters are skipped.
func emitAll(e *Event, ems ...*Emitter) error {
	var regs []registration
	for _, em := range ems {
		regs = append(regs, em.snapshot(e.Phase)...)
	}
	sort.SliceStable(regs, func(i, j int) bool { return regs[i].priority > regs[j].priority })
	return dispatch(e, regs)
}

func dispatch(e *Event, regs []registration) error {
	for _, r := range regs {
		if err := r.listener.Handle(e); err != nil {
			return err
		}
		if e.stopped {
			break
		}
	}
	return nil
}

type emitterKey struct{}

// TransactionEmitter returns the Emitter holding the listeners which
// apply to t alone, creating it on first use. Its listeners run
// alongside the client's listeners, in priority order.
func TransactionEmitter(t *request.Transaction) *Emitter {
	if em, ok := t.Value(emitterKey{}).(*Emitter); ok {
		return em
	}
	em := &Emitter{}
	t.SetValue(emitterKey{}, em)
	return em
}

func transactionEmitter(t *request.Transaction) *Emitter {
	em, _ := t.Value(emitterKey{}).(*Emitter)
	return em
}
