// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blake3stream

import (
	"fmt"

	"github.com/lamb356/blake3stream/internal/herr"
)

// Error is the Hasher's single exported error type (spec §7). It is
// an alias of internal/herr.Error rather than a second, parallel
// struct, so the same value can cross the internal/public boundary
// without a conversion step.
type Error = herr.Error

// Error kinds (spec §7), re-exported at package scope so callers never
// need to import internal/herr directly.
const (
	NotInitialized          = herr.NotInitialized
	SharedMemoryUnavailable = herr.SharedMemoryUnavailable
	WorkerInitTimeout       = herr.WorkerInitTimeout
	WorkerFailure           = herr.WorkerFailure
	TaskTimeout             = herr.TaskTimeout
	StreamError             = herr.StreamError
	Terminated              = herr.Terminated
	InvalidOptions          = herr.InvalidOptions
)

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind herr.Kind) bool {
	return herr.Is(err, kind)
}

func errInvalidField(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
