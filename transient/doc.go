// Copyright 2021 The httpfsm Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transient classifies transport errors as transient or
// non-transient. Retry deciders use it to pick retryable failures, and
// metrics use it to bucket errors.
//
// The package depends only on the standard library.
package transient
