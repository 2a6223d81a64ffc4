// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package herr defines the hasher's single exported error type, in
// the shape of the teacher's per-surface error types
// (lib/service.ServiceError, messaging.MatrixError): one struct with
// a Kind discriminator and kind-specific fields, rather than a grab
// bag of sentinel errors. It lives in its own package so both the
// root package and the internal pipeline packages (which report
// worker/task failures) can construct and inspect it without an
// import cycle.
package herr

import (
	"errors"
	"fmt"
)

// Kind identifies which of spec §7's error kinds an Error represents.
type Kind string

const (
	NotInitialized          Kind = "not_initialized"
	SharedMemoryUnavailable Kind = "shared_memory_unavailable"
	WorkerInitTimeout       Kind = "worker_init_timeout"
	WorkerFailure           Kind = "worker_failure"
	TaskTimeout             Kind = "task_timeout"
	StreamError             Kind = "stream_error"
	Terminated              Kind = "terminated"
	InvalidOptions          Kind = "invalid_options"
)

// Error is the hasher's single exported error type. Callers branch on
// failure mode with Is, not by matching message strings.
type Error struct {
	Kind Kind

	// WorkerIndex is set for WorkerFailure and, where known,
	// TaskTimeout. -1 when not applicable.
	WorkerIndex int

	// TaskID is set for TaskTimeout. 0 when not applicable.
	TaskID uint64

	// Err is the wrapped underlying cause, if any (e.g. the
	// stream's own error for StreamError).
	Err error
}

// New builds a plain Error of the given kind with no extra fields.
func New(kind Kind) *Error {
	return &Error{Kind: kind, WorkerIndex: -1}
}

// Wrap builds an Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, WorkerIndex: -1, Err: cause}
}

func (e *Error) Error() string {
	switch e.Kind {
	case WorkerFailure:
		return fmt.Sprintf("blake3stream: worker %d failed: %v", e.WorkerIndex, e.Err)
	case TaskTimeout:
		return fmt.Sprintf("blake3stream: task %d timed out on worker %d", e.TaskID, e.WorkerIndex)
	case StreamError:
		return fmt.Sprintf("blake3stream: stream error: %v", e.Err)
	case InvalidOptions:
		return fmt.Sprintf("blake3stream: invalid options: %v", e.Err)
	default:
		if e.Err != nil {
			return fmt.Sprintf("blake3stream: %s: %v", e.Kind, e.Err)
		}
		return fmt.Sprintf("blake3stream: %s", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind == kind
	}
	return false
}
