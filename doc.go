// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package httpfsm drives HTTP requests through an event-driven request
lifecycle, and sends many of them at once through a bounded Pool.

Create a Client to begin making requests.

	client := &httpfsm.Client{}
	t, err := client.Get("https://www.example.com")
	...
	t, err := client.Post("https://www.example.com/upload",
		"application/json", &buf)

Each request is a Transaction moving through the states before, send,
complete, error, end and exit. Along the way the Client emits Before,
Complete, Error and End events. Listeners hook in with a priority:

	em := &httpfsm.Emitter{}
	em.OnFunc(httpfsm.Complete, func(e *httpfsm.Event) error {
		if e.Transaction.StatusCode() == 429 {
			e.Retry()
		}
		return nil
	}, httpfsm.PriorityDefault)
	client := &httpfsm.Client{Handlers: em}

Out of the box the Client follows redirects and fails transactions
with 4xx and 5xx responses with a *failure.RequestError. Retries with
exponential backoff come from package retry:

	b := retry.NewBackoff()
	b.Attach(em)

The network exchange is done by an Adapter. Package transport has a
synchronous adapter, an asynchronous one which resolves a future on its
own goroutine, and a scripted Mock for tests:

	client := &httpfsm.Client{
		Adapter: transport.NewAsync(&http.Client{}),
	}

To send many requests, keeping a bounded number in flight, use Batch
or a Pool:

	results, err := httpfsm.Batch(client, request.Plans(p1, p2, p3), map[string]interface{}{
		"end": func(e *httpfsm.Event) { log.Println(e.Transaction.StatusCode()) },
	})
*/
package httpfsm
