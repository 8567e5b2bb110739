// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package timeout

import (
	"time"

	"github.com/gogama/httpfsm/request"
)

// A Policy decides the timeout of the next attempt of a transaction.
// Transport adapters consult it before every attempt.
//
// Implementations of Policy must be safe for concurrent use by multiple
// goroutines.
type Policy interface {
	// Timeout returns the timeout to set on the next attempt of t.
	Timeout(t *request.Transaction) time.Duration
}

// DefaultPolicy is the default timeout policy. It sets a fixed timeout
// of 5 seconds on each attempt.
var DefaultPolicy Policy = Fixed(5 * time.Second)

// Infinite is a built-in timeout policy which never times out.
var Infinite Policy = Fixed(1<<63 - 1)

// Fixed returns a timeout policy that always returns d.
func Fixed(d time.Duration) Policy {
	return policy([]time.Duration{d})
}

// Adaptive returns a timeout policy that lengthens the timeout after
// an attempt times out.
//
// The policy returns usual for the first attempt and for any attempt
// whose predecessor did not time out. If the predecessor timed out
// and it was the n-th timeout of the transaction, after[n-1] is
// returned, or the last element of after once they run out:
//
//	p := Adaptive(200*time.Millisecond, time.Second, 10*time.Second)
//
// Use Adaptive against services with one-off slow responses that are
// cured by a quick retry, where a burst of slowness must not turn
// into a retry storm.
func Adaptive(usual time.Duration, after ...time.Duration) Policy {
	p := make([]time.Duration, 1, 1+len(after))
	p[0] = usual
	return policy(append(p, after...))
}

type policy []time.Duration

func (p policy) Timeout(t *request.Transaction) time.Duration {
	if !t.TimedOut {
		return p[0]
	}

	i := t.Timeouts
	if i > len(p)-1 {
		i = len(p) - 1
	}

	return p[i]
}
