// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
)

const badBodyTypeMsg = "httpfsm/request: invalid type (for body use nil, " +
	"string, []byte, io.Reader or io.ReadCloser)"

// BodyBytes buffers a request body. The body may be nil, a string, a
// []byte or an io.Reader. A reader is drained and, if it is also an
// io.Closer, closed; a read or close error is returned with a nil
// slice. Any other type is an error.
func BodyBytes(body interface{}) ([]byte, error) {
	switch x := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	case io.Reader:
		return readAndClose(x)
	}
	return nil, errors.New(badBodyTypeMsg)
}

func readAndClose(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(r)
	if c, ok := r.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ReasonPhrase returns the reason phrase of resp, for example "Not
// Found" for a "404 Not Found" status line. If the status line carries
// no phrase the standard text for the status code is returned. A nil
// response yields the empty string.
func ReasonPhrase(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	code := strconv.Itoa(resp.StatusCode)
	if reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, code)); reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}
