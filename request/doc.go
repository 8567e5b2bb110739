// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package request contains the core types Plan (describes a logical HTTP
request) and Transaction (tracks one Plan through the request
lifecycle).

A Plan looks like a stripped-down http.Request with the server-side
fields removed and the body replaced by a pre-buffered []byte, so that
the same plan can be sent any number of times:

	p, err := request.NewPlan("GET", "https://example.com", nil)
	...
	f := client.Submit(request.NewTransaction(p))

A Transaction is created for every submitted Plan and carries the
mutable state of the lifecycle: the current state, the latest response
or error, the attempt and redirect counters, and a stable ID which
survives retries. Listeners receive the Transaction in every event.

A Source yields Plans lazily, which lets a pool work through a request
sequence that is larger than memory, or unbounded:

	src := request.Chan(plans)
*/
package request
