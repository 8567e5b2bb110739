// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command hxbatch sends a batch of HTTP requests through an httpfsm
// pool and prints one result line per request.
//
// URLs are taken from the arguments or, when there are none, from
// standard input, one per line. Blank lines and lines starting with #
// are skipped. Settings come from an optional YAML file, HTTPFSM_*
// environment variables and flags, in increasing order of precedence.
//
// Usage:
//
//	hxbatch [flags] [url...]
//
// The exit status is 1 if any request failed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(nil).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
