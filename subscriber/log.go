// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package subscriber

import (
	"github.com/gogama/httpfsm"
	"github.com/rs/zerolog"
)

// A Log writes one structured log line per lifecycle event.
type Log struct {
	logger zerolog.Logger

	// Level is the level of Before, Complete and End lines. Error
	// lines are always logged at warn level.
	Level zerolog.Level
}

// NewLog returns a Log writing to logger at debug level. A nil logger
// discards everything.
func NewLog(logger *zerolog.Logger) *Log {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &Log{logger: l, Level: zerolog.DebugLevel}
}

// Attach installs l into em. Before, Complete and Error are logged
// ahead of every other listener, so the line shows what the others
// received; End is logged last, showing the final outcome.
func (l *Log) Attach(em *httpfsm.Emitter) {
	em.OnFunc(httpfsm.Before, l.handle, httpfsm.PriorityFirst)
	em.OnFunc(httpfsm.Complete, l.handle, httpfsm.PriorityFirst)
	em.OnFunc(httpfsm.Error, l.handle, httpfsm.PriorityFirst)
	em.OnFunc(httpfsm.End, l.handle, httpfsm.PriorityLast)
}

func (l *Log) handle(e *httpfsm.Event) error {
	t := e.Transaction
	level := l.Level
	if e.Phase == httpfsm.Error {
		level = zerolog.WarnLevel
	}

	ev := l.logger.WithLevel(level).
		Str("txn", t.ID.String()).
		Stringer("phase", e.Phase).
		Str("method", t.Request.Method).
		Stringer("url", t.Request.URL).
		Int("attempt", t.Attempt)
	if t.Response != nil {
		ev = ev.Int("status", t.StatusCode())
	}
	if t.Err != nil {
		ev = ev.Err(t.Err)
	}
	if e.Phase == httpfsm.End {
		ev = ev.Dur("duration", t.Duration())
	}
	ev.Msg("request " + e.Phase.Name())
	return nil
}
