// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"fmt"
	"strings"
	"time"

	"github.com/gogama/httpfsm/request"
	"github.com/gogama/httpfsm/transient"
)

// A Decider decides whether the outcome of the most recent attempt of
// a transaction is a failure worth retrying. Deciders do not count
// retries; Backoff does that.
//
// Implementations of Decider must be safe for concurrent use by
// multiple goroutines.
type Decider interface {
	Decide(t *request.Transaction) bool
}

// The DeciderFunc type is an adapter to allow the use of ordinary
// functions as retry deciders. It also provides the logical
// composition methods And and Or.
type DeciderFunc func(t *request.Transaction) bool

// DefaultDecider retries on a 500 (Internal Server Error) or 503
// (Service Unavailable) response, and on a transient transport error.
var DefaultDecider = StatusCode(500, 503).Or(TransientErr)

// TransientErr is a decider that indicates a retry if the current
// error is transient according to transient.Categorize. It always
// returns false when there is no error.
var TransientErr DeciderFunc = transientErr

// Decide returns f(t).
func (f DeciderFunc) Decide(t *request.Transaction) bool {
	return f(t)
}

// And composes two deciders into one which returns true if both
// return true. g is not evaluated if f returns false.
func (f DeciderFunc) And(g DeciderFunc) DeciderFunc {
	return func(t *request.Transaction) bool {
		return f(t) && g(t)
	}
}

// Or composes two deciders into one which returns true if either
// returns true. g is not evaluated if f returns true.
func (f DeciderFunc) Or(g DeciderFunc) DeciderFunc {
	return func(t *request.Transaction) bool {
		return f(t) || g(t)
	}
}

// Before constructs a decider allowing retries until d has elapsed
// since the transaction started.
func Before(d time.Duration) DeciderFunc {
	return func(t *request.Transaction) bool {
		return t.Duration() < d
	}
}

// StatusCode constructs a decider which returns true if the most
// recent attempt received a response with one of the given status
// codes.
func StatusCode(codes ...int) DeciderFunc {
	set := make(map[int]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return func(t *request.Transaction) bool {
		return t.Response != nil && set[t.StatusCode()]
	}
}

// Reason constructs a decider which returns true if the most recent
// attempt received a response with one of the given reason phrases,
// compared without regard to case.
func Reason(phrases ...string) DeciderFunc {
	ps := make([]string, len(phrases))
	copy(ps, phrases)
	return func(t *request.Transaction) bool {
		if t.Response == nil {
			return false
		}
		reason := t.Reason()
		for _, p := range ps {
			if strings.EqualFold(p, reason) {
				return true
			}
		}
		return false
	}
}

// Category constructs a decider which returns true if the current
// error falls in one of the given transience categories.
func Category(cats ...transient.Category) DeciderFunc {
	set := make(map[transient.Category]bool, len(cats))
	for _, c := range cats {
		set[c] = true
	}
	return func(t *request.Transaction) bool {
		if t.Err == nil {
			return false
		}
		return set[transient.Categorize(t.Err)]
	}
}

// Codes constructs a decider from a mixed list of failure codes. Each
// code may be an int status code, a string reason phrase or a
// transient.Category; the decider returns true if any of them matches.
// Codes panics on any other type.
func Codes(codes ...interface{}) DeciderFunc {
	var statuses []int
	var reasons []string
	var cats []transient.Category
	for _, c := range codes {
		switch v := c.(type) {
		case int:
			statuses = append(statuses, v)
		case string:
			reasons = append(reasons, v)
		case transient.Category:
			cats = append(cats, v)
		default:
			panic(fmt.Sprintf("httpfsm/retry: invalid failure code type %T", c))
		}
	}
	return StatusCode(statuses...).Or(Reason(reasons...)).Or(Category(cats...))
}

func transientErr(t *request.Transaction) bool {
	return transient.Categorize(t.Err) != transient.Not
}
