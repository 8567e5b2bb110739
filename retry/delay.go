// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"math/rand"
	"sync"
	"time"
)

// A Delay computes how long to wait before the given retry. Retries
// are numbered from 1.
//
// Delay functions must be safe for concurrent use by multiple
// goroutines.
type Delay func(retries int) time.Duration

// DefaultDelay waits 2^retries seconds: 2s before the first retry, 4s
// before the second, and so on.
var DefaultDelay = Exponential(time.Second)

// Fixed returns a Delay which always waits d.
func Fixed(d time.Duration) Delay {
	return func(int) time.Duration {
		return d
	}
}

// Exponential returns a Delay which waits base * 2^retries, saturating
// instead of overflowing.
func Exponential(base time.Duration) Delay {
	if base < 0 {
		panic("httpfsm/retry: base must not be negative")
	}
	return func(retries int) time.Duration {
		return ceiling(base, 1<<63-1, retries)
	}
}

// Jittered returns a Delay implementing the "Full Jitter" exponential
// backoff described in:
// https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter.
//
// The ceiling of each wait is min(base * 2^(retries-1), max), and the
// wait is a random duration between 0 and the ceiling. Base must be
// positive and max at least base.
//
// Parameter jitter seeds the random number generator. It may be a
// time.Time, an int, an int64, a rand.Source or a *rand.Rand. If it is
// nil, no jitter is applied and the ceiling itself is returned.
func Jittered(base, max time.Duration, jitter interface{}) Delay {
	if base < 1 {
		panic("httpfsm/retry: base must be positive")
	}
	if max < base {
		panic("httpfsm/retry: max must be at least base")
	}
	r := jitterToRand(jitter)
	var lock sync.Mutex
	return func(retries int) time.Duration {
		ceil := ceiling(base, max, retries-1)
		if r == nil || ceil <= 0 {
			return ceil
		}
		lock.Lock()
		defer lock.Unlock()
		return time.Duration(r.Int63n(int64(ceil)))
	}
}

// ceiling returns min(base * 2^n, max) for n >= 0.
func ceiling(base, max time.Duration, n int) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > 62 {
		return max
	}
	ceil := int64(base) << n
	if ceil < int64(base) || ceil>>n != int64(base) || int64(max) < ceil {
		return max
	}
	return time.Duration(ceil)
}

func jitterToRand(jitter interface{}) *rand.Rand {
	var s rand.Source
	switch j := jitter.(type) {
	case nil:
		return nil
	case time.Time:
		s = rand.NewSource(j.UnixNano())
	case int:
		s = rand.NewSource(int64(j))
	case int64:
		s = rand.NewSource(j)
	case *rand.Rand:
		if j == nil {
			panic("httpfsm/retry: jitter may not be a typed nil")
		}
		return j
	case rand.Source:
		s = j
	default:
		panic("httpfsm/retry: invalid jitter type")
	}
	return rand.New(s)
}
