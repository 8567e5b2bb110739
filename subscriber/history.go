// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package subscriber

import (
	"net/http"
	"sync"
	"time"

	"github.com/gogama/httpfsm"
	"github.com/gogama/httpfsm/request"
)

// DefaultHistoryLimit is the number of entries a History keeps when its
// Limit is zero.
const DefaultHistoryLimit = 10

// An Entry is the record of one finished transaction.
type Entry struct {
	Transaction *request.Transaction
	Request     *request.Plan
	Response    *http.Response
	Err         error
	Attempts    int
	Duration    time.Duration
}

// A History records the most recent finished transactions.
type History struct {
	// Limit is the number of entries kept. Zero means
	// DefaultHistoryLimit.
	Limit int

	lock    sync.Mutex
	entries []Entry
}

// Attach installs h into em.
func (h *History) Attach(em *httpfsm.Emitter) {
	em.OnFunc(httpfsm.End, h.end, httpfsm.PriorityLast)
}

func (h *History) end(e *httpfsm.Event) error {
	t := e.Transaction
	entry := Entry{
		Transaction: t,
		Request:     t.Request,
		Response:    t.Response,
		Err:         t.Err,
		Attempts:    t.Attempt + 1,
		Duration:    t.Duration(),
	}

	h.lock.Lock()
	defer h.lock.Unlock()
	h.entries = append(h.entries, entry)
	if n := len(h.entries) - h.limit(); n > 0 {
		h.entries = append([]Entry(nil), h.entries[n:]...)
	}
	return nil
}

func (h *History) limit() int {
	if h.Limit <= 0 {
		return DefaultHistoryLimit
	}

	return h.Limit
}

// Entries returns the recorded entries, oldest first.
func (h *History) Entries() []Entry {
	h.lock.Lock()
	defer h.lock.Unlock()
	return append([]Entry(nil), h.entries...)
}

// Len returns the number of recorded entries.
func (h *History) Len() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.entries)
}

// Last returns the most recent entry, or false if there is none.
func (h *History) Last() (Entry, bool) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if len(h.entries) == 0 {
		return Entry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Clear removes every entry.
func (h *History) Clear() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.entries = nil
}
