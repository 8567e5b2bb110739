// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gogama/httpfsm"
	"github.com/gogama/httpfsm/retry"
	"github.com/gogama/httpfsm/timeout"
	"github.com/gogama/httpfsm/transient"
	"github.com/gogama/httpfsm/transport"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Decider returns the retry decider matching Retry.Codes. With no
// codes, retry.DefaultDecider is returned.
func (c *Config) Decider() (retry.Decider, error) {
	if len(c.Retry.Codes) == 0 {
		return retry.DefaultDecider, nil
	}

	var d retry.DeciderFunc
	for _, code := range c.Retry.Codes {
		next, err := decider(code)
		if err != nil {
			return nil, err
		}
		if d == nil {
			d = next
		} else {
			d = d.Or(next)
		}
	}
	return d, nil
}

func decider(code string) (retry.DeciderFunc, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, invalid("retry.codes", `""`, "must not contain empty codes")
	}
	if strings.EqualFold(code, "transient") {
		return retry.TransientErr, nil
	}
	if cat, err := transient.Parse(code); err == nil && cat != transient.Not {
		return retry.Category(cat), nil
	}
	if n, err := strconv.Atoi(code); err == nil {
		if n < 100 || n > 999 {
			return nil, invalid("retry.codes", code, "is not a valid status code")
		}
		return retry.StatusCode(n), nil
	}
	return retry.Reason(code), nil
}

// Backoff returns a retry.Backoff configured from the Retry section.
func (c *Config) Backoff(logger *zerolog.Logger) (*retry.Backoff, error) {
	d, err := c.Decider()
	if err != nil {
		return nil, err
	}

	b := &retry.Backoff{
		MaxRetries: c.Retry.Max,
		Decider:    d,
		Delay:      retry.Exponential(c.Retry.Base),
		Logger:     logger,
	}
	if c.Retry.Budget.Rate > 0 {
		b.Budget = rate.NewLimiter(rate.Limit(c.Retry.Budget.Rate), c.Retry.Budget.Burst)
	}
	return b, nil
}

// Transport returns the transport settings for doer.
func (c *Config) Transport(doer transport.HTTPDoer) transport.Transport {
	tr := transport.Transport{HTTPDoer: doer}
	if c.Timeout.Attempt > 0 {
		tr.TimeoutPolicy = timeout.Fixed(c.Timeout.Attempt)
	}
	return tr
}

// Client returns a Client over adapter with a Backoff installed in its
// Handlers.
func (c *Config) Client(adapter httpfsm.Adapter, logger *zerolog.Logger) (*httpfsm.Client, error) {
	b, err := c.Backoff(logger)
	if err != nil {
		return nil, err
	}

	em := &httpfsm.Emitter{}
	b.Attach(em)

	cl := &httpfsm.Client{
		Adapter:        adapter,
		Handlers:       em,
		MaxTransitions: c.FSM.Transitions,
		Logger:         logger,
	}
	if c.Redirect.Max < 0 {
		cl.DisableRedirects = true
	} else {
		cl.MaxRedirects = c.Redirect.Max
	}
	return cl, nil
}

// PoolOptions returns pool options configured from the Pool section.
func (c *Config) PoolOptions(logger *zerolog.Logger) httpfsm.PoolOptions {
	return httpfsm.PoolOptions{
		Size:   c.Pool.Size,
		Logger: logger,
	}
}

// Logger returns a logger writing to w at the configured level. A nil
// w means os.Stderr.
func (c *Config) Logger(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if c.Log.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
