// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package transport contains adapters which perform the network exchange
of each attempt on behalf of the request lifecycle.

An adapter has a single method, Send, which takes a transaction and
either populates its Response and Body, returns an error, or sets its
Pending future for an exchange still in flight:

	client := &httpfsm.Client{Adapter: transport.NewAsync(&http.Client{})}

Sync and Async delegate the exchange to an HTTPDoer such as
http.Client, and set a per-attempt timeout from a timeout.Policy. Mock
delivers scripted outcomes and is handy in tests.
*/
package transport
