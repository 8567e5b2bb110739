// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package retry provides an exponential backoff policy which plugs
// into the request lifecycle as a set of event listeners.
//
// A Backoff is assembled from a Decider, which recognizes failures
// worth retrying, and a Delay, which computes the wait before each
// retry:
//
//	b := &retry.Backoff{
//		MaxRetries: 5,
//		Decider:    retry.Codes(429, 503, "Slow Down").Or(retry.TransientErr),
//		Delay:      retry.Jittered(100*time.Millisecond, 5*time.Second, time.Now()),
//	}
//	em := &httpfsm.Emitter{}
//	b.Attach(em)
//	client := &httpfsm.Client{Handlers: em}
//
// Deciders compose with DeciderFunc.And and DeciderFunc.Or. A
// rate.Limiter set as the Budget caps the retry rate across every
// transaction the Backoff serves.
package retry
