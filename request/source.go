// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import "sync"

// A Source yields request plans one at a time. Next returns false once
// the source is exhausted. A Source may be unbounded.
//
// Consumers treat a nil plan returned with true as a malformed
// element.
type Source interface {
	Next() (*Plan, bool)
}

// SourceFunc adapts an ordinary function to the Source interface.
type SourceFunc func() (*Plan, bool)

// Next calls f().
func (f SourceFunc) Next() (*Plan, bool) {
	return f()
}

type sliceSource struct {
	lock  sync.Mutex
	plans []*Plan
}

// Plans returns a Source which yields the given plans in order.
func Plans(plans ...*Plan) Source {
	return &sliceSource{plans: plans}
}

func (s *sliceSource) Next() (*Plan, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if len(s.plans) == 0 {
		return nil, false
	}
	p := s.plans[0]
	s.plans = s.plans[1:]
	return p, true
}

// Chan returns a Source which yields plans received from ch until ch
// is closed. Next blocks while ch is open and empty.
func Chan(ch <-chan *Plan) Source {
	return SourceFunc(func() (*Plan, bool) {
		p, ok := <-ch
		return p, ok
	})
}
