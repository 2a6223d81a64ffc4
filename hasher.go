// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package blake3stream implements a parallel BLAKE3 streaming hasher:
// given a single-pass byte stream and its total length, it hashes the
// stream using a pool of worker goroutines that hash independent
// subtrees concurrently while later bytes are still arriving, then
// combines their chaining values into the one correct root digest.
package blake3stream

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/lamb356/blake3stream/internal/bufferpool"
	"github.com/lamb356/blake3stream/internal/core"
	"github.com/lamb356/blake3stream/internal/dispatch"
	"github.com/lamb356/blake3stream/internal/herr"
	"github.com/lamb356/blake3stream/internal/tree"
	"github.com/lamb356/blake3stream/internal/workerpool"
)

// smallInputShortcut is the byte threshold below which the dispatcher
// is bypassed entirely and the input is hashed directly (spec §4.5).
const smallInputShortcut = 65536

// WorkerStat reports how many tasks one worker completed during a
// HashFile call.
type WorkerStat struct {
	WorkerIndex    int
	TasksCompleted int64
}

// Result is what HashFile returns on success.
type Result struct {
	Digest      [32]byte
	ElapsedMS   int64
	WorkerStats []WorkerStat
}

// Hasher is the hasher's single public type (spec §6.4). Create one
// with New, call Init once, then HashFile any number of times, and
// Terminate when done.
type Hasher struct {
	opts Options

	mu          sync.Mutex
	initialized bool
	terminated  bool

	pool    *bufferpool.Pool
	workers *workerpool.Pool

	// nextTaskID is shared across every Dispatcher this Hasher builds
	// (one per HashFile call), so task IDs never repeat across calls —
	// see internal/dispatch's Dispatcher.nextTaskID doc comment.
	nextTaskID uint64
}

// New validates opts (after applying defaults) and returns a Hasher
// that still needs Init before use.
func New(opts Options) (*Hasher, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Hasher{opts: opts}, nil
}

// Init starts the worker pool and allocates the shared buffer pool.
// It must be called exactly once before HashFile.
func (h *Hasher) Init(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.initialized {
		return nil
	}

	numSlots := h.opts.WorkerCount * h.opts.MaxInflightPerWorker
	pool, err := bufferpool.New(numSlots, h.opts.MaxLeafSize)
	if err != nil {
		return herr.Wrap(herr.SharedMemoryUnavailable, err)
	}

	workers := workerpool.New(h.opts.WorkerCount, h.opts.MaxInflightPerWorker, core.HashSubtree, h.opts.Logger)
	if err := workers.Init(ctx); err != nil {
		pool.Close()
		return err
	}

	h.pool = pool
	h.workers = workers
	h.initialized = true
	return nil
}

// HashFile streams exactly totalSize bytes from r and returns the
// BLAKE3 digest of the whole stream, per spec §4.7's orchestrator
// algorithm: a small-input shortcut and a single-leaf fallback both
// bypass the dispatcher entirely and call hash_single directly, since
// neither case has more than one chaining value to combine.
func (h *Hasher) HashFile(ctx context.Context, r io.Reader, totalSize uint64) (Result, error) {
	h.mu.Lock()
	initialized, terminated := h.initialized, h.terminated
	h.mu.Unlock()
	if terminated {
		return Result{}, herr.New(herr.Terminated)
	}
	if !initialized {
		return Result{}, herr.New(herr.NotInitialized)
	}

	start := time.Now()

	if totalSize < smallInputShortcut {
		cv, err := hashSingleFromStream(r, totalSize)
		if err != nil {
			return Result{}, err
		}
		return Result{Digest: [32]byte(cv), ElapsedMS: elapsedMS(start)}, nil
	}

	t, err := tree.Build(totalSize, uint64(h.opts.MaxLeafSize))
	if err != nil {
		return Result{}, herr.Wrap(herr.InvalidOptions, err)
	}

	if t.Nodes[t.Root].Leaf {
		cv, err := hashSingleFromStream(r, totalSize)
		if err != nil {
			return Result{}, err
		}
		return Result{Digest: [32]byte(cv), ElapsedMS: elapsedMS(start)}, nil
	}

	d := dispatch.New(h.pool, h.workers, h.opts.Logger, &h.nextTaskID, h.opts.WorkerCount, h.opts.MaxInflightPerWorker, h.opts.TaskTimeout)
	cv, err := d.Run(ctx, r, t)
	if err != nil {
		return Result{}, err
	}

	stats := d.Stats()
	workerStats := make([]WorkerStat, len(stats))
	for i, n := range stats {
		workerStats[i] = WorkerStat{WorkerIndex: i, TasksCompleted: n}
	}

	return Result{Digest: [32]byte(cv), ElapsedMS: elapsedMS(start), WorkerStats: workerStats}, nil
}

// Terminate stops all workers and releases the buffer pool. Idempotent
// and infallible (spec §4.4/§7); the Hasher is unusable afterward.
func (h *Hasher) Terminate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.terminated {
		return
	}
	h.terminated = true
	if h.workers != nil {
		h.workers.Terminate()
	}
	if h.pool != nil {
		h.pool.Close()
	}
	if h.opts.Logger != nil {
		h.opts.Logger.Info("hasher terminated")
	}
}

// hashSingleFromStream drains exactly totalSize bytes from r and
// hashes them with hash_single, for the small-input and single-leaf
// fast paths that never touch the dispatcher.
func hashSingleFromStream(r io.Reader, totalSize uint64) (core.CV, error) {
	buf := make([]byte, totalSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return core.CV{}, herr.Wrap(herr.StreamError, err)
	}
	return core.HashSingle(buf), nil
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
