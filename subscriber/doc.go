// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package subscriber contains reusable lifecycle listeners.
//
// Each subscriber installs itself into an httpfsm.Emitter with Attach:
//
//	em := &httpfsm.Emitter{}
//	subscriber.NewLog(&logger).Attach(em)
//	subscriber.NewMetrics(prometheus.DefaultRegisterer).Attach(em)
//	h := &subscriber.History{}
//	h.Attach(em)
//	client := &httpfsm.Client{Handlers: em}
package subscriber
