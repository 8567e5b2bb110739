// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package subscriber

import (
	"strconv"

	"github.com/gogama/httpfsm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports Prometheus metrics about the request lifecycle.
type Metrics struct {
	events    *prometheus.CounterVec
	requests  *prometheus.CounterVec
	retries   *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "httpfsm",
				Name:      "events_total",
				Help:      "Total number of lifecycle events emitted",
			},
			[]string{"phase"},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "httpfsm",
				Name:      "requests_total",
				Help:      "Total number of finished transactions",
			},
			[]string{"method", "status_code", "outcome"},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "httpfsm",
				Name:      "retries_total",
				Help:      "Total number of attempts after the first",
			},
			[]string{"method"},
		),
		durations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "httpfsm",
				Name:      "request_duration_seconds",
				Help:      "Duration of finished transactions in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
}

// Attach installs m into em.
func (m *Metrics) Attach(em *httpfsm.Emitter) {
	em.OnFunc(httpfsm.Before, m.before, httpfsm.PriorityFirst)
	em.OnFunc(httpfsm.Complete, m.count, httpfsm.PriorityFirst)
	em.OnFunc(httpfsm.Error, m.count, httpfsm.PriorityFirst)
	em.OnFunc(httpfsm.End, m.end, httpfsm.PriorityLast)
}

func (m *Metrics) count(e *httpfsm.Event) error {
	m.events.WithLabelValues(e.Phase.Name()).Inc()
	return nil
}

func (m *Metrics) before(e *httpfsm.Event) error {
	m.events.WithLabelValues(e.Phase.Name()).Inc()
	if e.Transaction.Attempt > 0 {
		m.retries.WithLabelValues(e.Transaction.Request.Method).Inc()
	}
	return nil
}

func (m *Metrics) end(e *httpfsm.Event) error {
	m.events.WithLabelValues(e.Phase.Name()).Inc()
	t := e.Transaction
	outcome := "success"
	if t.Err != nil {
		outcome = "failure"
	}
	m.requests.WithLabelValues(t.Request.Method, strconv.Itoa(t.StatusCode()), outcome).Inc()
	m.durations.WithLabelValues(t.Request.Method).Observe(t.Duration().Seconds())
	return nil
}
