// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gogama/httpfsm"
	"github.com/gogama/httpfsm/config"
	"github.com/gogama/httpfsm/request"
	"github.com/gogama/httpfsm/subscriber"
	"github.com/gogama/httpfsm/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

var errNoURLs = errors.New("no URLs given")

type options struct {
	config   string
	method   string
	headers  []string
	size     int
	retries  int
	timeout  time.Duration
	logLevel string
	pretty   bool
	failFast bool
	metrics  bool
}

// newRootCmd returns the hxbatch command. A nil adapter sends real
// requests asynchronously over a fresh http.Client.
func newRootCmd(adapter httpfsm.Adapter) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "hxbatch [flags] [url...]",
		Short: "Send a batch of HTTP requests with retries",
		Long: `hxbatch sends every URL through a bounded pool of in-flight requests,
retrying failures with exponential backoff, and prints one line per URL:

  index  status  attempts  duration  url  [error]`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args, adapter)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.config, "config", "c", "", "YAML configuration file")
	f.StringVarP(&opts.method, "method", "X", http.MethodGet, "request method")
	f.StringArrayVarP(&opts.headers, "header", "H", nil, `request header as "Name: value" (repeatable)`)
	f.IntVarP(&opts.size, "size", "n", 0, "maximum requests in flight (overrides pool.size)")
	f.IntVar(&opts.retries, "retries", 0, "maximum retries per request (overrides retry.max)")
	f.DurationVar(&opts.timeout, "timeout", 0, "per-attempt timeout (overrides timeout.attempt)")
	f.StringVar(&opts.logLevel, "log-level", "", "log level (overrides log.level)")
	f.BoolVar(&opts.pretty, "pretty", false, "human-friendly logs (overrides log.pretty)")
	f.BoolVar(&opts.failFast, "fail-fast", false, "cancel outstanding requests after the first failure")
	f.BoolVar(&opts.metrics, "metrics", false, "print Prometheus metrics to stderr when done")
	return cmd
}

func run(cmd *cobra.Command, opts *options, args []string, adapter httpfsm.Adapter) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	logger := cfg.Logger(cmd.ErrOrStderr())

	urls := args
	if len(urls) == 0 {
		if urls, err = readURLs(cmd.InOrStdin()); err != nil {
			return err
		}
	}
	if len(urls) == 0 {
		return errNoURLs
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	plans, err := newPlans(ctx, opts, urls)
	if err != nil {
		return err
	}

	if adapter == nil {
		adapter = &transport.Async{Transport: cfg.Transport(&http.Client{})}
	}
	client, err := cfg.Client(adapter, &logger)
	if err != nil {
		return err
	}
	subscriber.NewLog(&logger).Attach(client.Handlers)
	reg := prometheus.NewRegistry()
	subscriber.NewMetrics(reg).Attach(client.Handlers)

	poolOpts := cfg.PoolOptions(&logger)
	poolOpts.InFlight = promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Namespace: "httpfsm",
		Name:      "pool_in_flight",
		Help:      "Number of transactions in flight in the pool",
	})
	if opts.failFast {
		poolOpts.Listeners = map[string]interface{}{
			"end": func(e *httpfsm.Event) {
				if e.Transaction.Err != nil {
					cancel()
				}
			},
		}
	}

	results, err := httpfsm.BatchWithOptions(client, request.Plans(plans...), poolOpts)
	if err != nil {
		return err
	}
	failed := printResults(cmd.OutOrStdout(), results)

	if opts.metrics {
		if err = writeMetrics(cmd.ErrOrStderr(), reg); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, results.Len())
	}
	return nil
}

func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.config)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("size") {
		cfg.Pool.Size = opts.size
	}
	if f.Changed("retries") {
		cfg.Retry.Max = opts.retries
	}
	if f.Changed("timeout") {
		cfg.Timeout.Attempt = opts.timeout
	}
	if f.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if f.Changed("pretty") {
		cfg.Log.Pretty = opts.pretty
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readURLs(r io.Reader) ([]string, error) {
	var urls []string
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URLs: %w", err)
	}
	return urls, nil
}

func newPlans(ctx context.Context, opts *options, urls []string) ([]*request.Plan, error) {
	plans := make([]*request.Plan, len(urls))
	for i, u := range urls {
		p, err := request.NewPlanWithContext(ctx, strings.ToUpper(opts.method), u, nil)
		if err != nil {
			return nil, err
		}
		for _, h := range opts.headers {
			name, value, ok := strings.Cut(h, ":")
			if !ok {
				return nil, fmt.Errorf("invalid header %q", h)
			}
			if err = p.SetHeader(strings.TrimSpace(name), strings.TrimSpace(value)); err != nil {
				return nil, err
			}
		}
		plans[i] = p
	}
	return plans, nil
}

// printResults writes one line per result and returns the number of
// failures.
func printResults(w io.Writer, results *httpfsm.BatchResults) int {
	failed := 0
	for i := 0; i < results.Len(); i++ {
		r := results.Get(i)
		t := r.Transaction
		status := "-"
		if t.Response != nil {
			status = fmt.Sprint(t.StatusCode())
		}
		line := fmt.Sprintf("%d\t%s\t%d\t%s\t%s", i, status, t.Attempt+1, t.Duration().Round(time.Millisecond), t.Request.URL)
		if r.Err != nil {
			failed++
			line += "\t" + r.Err.Error()
		}
		fmt.Fprintln(w, line)
	}
	return failed
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err = expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
