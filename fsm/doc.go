// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package fsm contains a small table-driven finite state machine.

A Machine moves any Record through a Table of named states. Each Entry
may have a Handler, a Success state and an Error state:

	m := fsm.New("red", fsm.Table[*light]{
		"red":    {Success: "green"},
		"green":  {Handler: checkSensor, Success: "yellow", Error: "broken"},
		"yellow": {Success: "red"},
		"broken": {},
	}, 0)
	err := m.Run(l, "yellow")

Handlers redirect explicitly by returning a State, fail by returning an
error, or follow the Success edge by returning neither. A *StateError
always ends the run.
*/
package fsm
