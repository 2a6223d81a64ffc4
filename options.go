// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blake3stream

import (
	"log/slog"
	"time"

	"github.com/lamb356/blake3stream/internal/core"
	"github.com/lamb356/blake3stream/internal/herr"
)

// Options configures a Hasher. Zero-value fields are filled in by
// DefaultOptions/withDefaults; New rejects anything that fails
// validate after defaulting.
type Options struct {
	// WorkerCount is the number of hashing goroutines. Default 6.
	WorkerCount int

	// MaxLeafSize is the largest byte range a single worker task
	// hashes. Must be a positive multiple of 1024. Default 1 MiB.
	MaxLeafSize int

	// MaxInflightPerWorker bounds how many outstanding tasks a worker
	// may have at once; it also sizes the shared buffer pool
	// (num_slots = WorkerCount * MaxInflightPerWorker). Default 2.
	MaxInflightPerWorker int

	// TaskTimeout is how long a single hash_subtree task may run
	// before it is abandoned. Default 30s.
	TaskTimeout time.Duration

	// Logger receives structured lifecycle events. Defaults to
	// slog.Default() when nil.
	Logger *slog.Logger
}

// DefaultOptions returns the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		WorkerCount:          6,
		MaxLeafSize:          1 << 20,
		MaxInflightPerWorker: 2,
		TaskTimeout:          30 * time.Second,
	}
}

// withDefaults fills any zero-valued field of o with the corresponding
// field from DefaultOptions, leaving explicitly-set fields untouched.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.WorkerCount == 0 {
		o.WorkerCount = d.WorkerCount
	}
	if o.MaxLeafSize == 0 {
		o.MaxLeafSize = d.MaxLeafSize
	}
	if o.MaxInflightPerWorker == 0 {
		o.MaxInflightPerWorker = d.MaxInflightPerWorker
	}
	if o.TaskTimeout == 0 {
		o.TaskTimeout = d.TaskTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// validate checks the invariants New and OptionsFromYAML both rely
// on. MaxLeafSize must be a positive multiple of core.ChunkLen so
// every leaf the planner emits is chunk-aligned (spec §3).
func (o Options) validate() error {
	if o.WorkerCount <= 0 {
		return herr.Wrap(herr.InvalidOptions, errInvalidField("worker_count must be positive, got %d", o.WorkerCount))
	}
	if o.MaxInflightPerWorker <= 0 {
		return herr.Wrap(herr.InvalidOptions, errInvalidField("max_inflight_per_worker must be positive, got %d", o.MaxInflightPerWorker))
	}
	if o.MaxLeafSize <= 0 || o.MaxLeafSize%core.ChunkLen != 0 {
		return herr.Wrap(herr.InvalidOptions, errInvalidField("max_leaf_size must be a positive multiple of %d, got %d", core.ChunkLen, o.MaxLeafSize))
	}
	if o.TaskTimeout <= 0 {
		return herr.Wrap(herr.InvalidOptions, errInvalidField("task_timeout must be positive, got %s", o.TaskTimeout))
	}
	return nil
}
