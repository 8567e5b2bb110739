// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transient

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// A Category is the transience category of an error, as reported by
// Categorize.
//
// The category Not means a retry after the error is very unlikely to
// succeed. Every other category means a retry has some prospect of
// success.
type Category int

const (
	// Not indicates any non-transient error.
	Not Category = iota
	// Timeout indicates a client-side timeout: the error or one of its
	// wrapped causes has a Timeout method which reports true.
	Timeout
	// ConnRefused indicates the remote host refused the connection
	// (syscall.ECONNREFUSED). The service on the remote host may be
	// starting or restarting.
	ConnRefused
	// ConnReset indicates an established connection was torn down by
	// the remote host (syscall.ECONNRESET or syscall.EPIPE), typically
	// by a service going down mid-request or by a load balancer.
	ConnReset
	// DNS indicates a temporary failure to resolve the remote host.
	DNS
	// EOF indicates the connection closed before a complete response
	// was received.
	EOF
)

var names = [...]string{
	Not:         "not",
	Timeout:     "timeout",
	ConnRefused: "conn_refused",
	ConnReset:   "conn_reset",
	DNS:         "dns",
	EOF:         "eof",
}

// String returns the lower-case name of c, for example "conn_reset".
func (c Category) String() string {
	if c >= 0 && int(c) < len(names) {
		return names[c]
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// Parse returns the Category whose name is s, ignoring case.
func Parse(s string) (Category, error) {
	for c, name := range names {
		if strings.EqualFold(s, name) {
			return Category(c), nil
		}
	}
	return Not, fmt.Errorf("httpfsm/transient: unknown category %q", s)
}

// Categorize returns the transience category of err. A nil error and
// a non-transient error both produce Not.
//
// Categorize looks at the wrapped causes of err, not just err itself.
// It never consults a Temporary method, as the semantics of Temporary
// aren't entirely clear.
func Categorize(err error) Category {
	if err == nil {
		return Not
	}

	var hasTimeout hasTimeout
	if errors.As(err, &hasTimeout) && hasTimeout.Timeout() {
		return Timeout
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNRESET, syscall.EPIPE:
			return ConnReset
		case syscall.ECONNREFUSED:
			return ConnRefused
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.IsNotFound {
		return DNS
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return EOF
	}

	return Not
}

type hasTimeout interface {
	Timeout() bool
}
