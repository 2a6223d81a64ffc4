// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package workerpool implements the worker pool (spec §4.4). Workers
// are goroutines, not OS processes — the "worker runtime" of spec §6.3
// maps directly onto goroutines plus channels, which already give the
// request/reply message-passing shape the spec asks for.
package workerpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lamb356/blake3stream/internal/core"
	"github.com/lamb356/blake3stream/internal/herr"
)

// initTimeout is the per-worker readiness timeout from spec §4.4.
const initTimeout = 10 * time.Second

// HashFunc computes the chaining value for a leaf's bytes. It exists
// as an injectable function, rather than a hardcoded call to
// core.HashSubtree, so tests can shim in artificial delays, panics,
// or reordering to exercise spec §8's concurrency and failure
// properties without touching production code paths.
type HashFunc func(data []byte, fileOffset uint64) core.CV

// Task is one unit of work routed to exactly one worker.
type Task struct {
	TaskID     uint64
	Data       []byte
	FileOffset uint64
}

// Reply is a worker's response to a Task: either a chaining value, a
// per-task error, or — if Fatal is set — notice that the worker
// itself has died and every other task still routed to it should be
// rejected too.
type Reply struct {
	TaskID      uint64
	WorkerIndex int
	CV          core.CV
	Err         error
	Fatal       bool
}

// Pool owns numWorkers goroutines, each with its own bounded inbox,
// and a single shared reply channel the coordinator drains.
type Pool struct {
	hash    HashFunc
	logger  *slog.Logger
	inboxes []chan Task
	replies chan Reply
	wg      sync.WaitGroup
}

// New creates a pool. inboxCapacity should be max_inflight_per_worker
// so a worker's next task can be staged while it still hashes the
// previous one (spec §9's note on slot pool vs. worker pool sizing).
func New(numWorkers, inboxCapacity int, hash HashFunc, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		hash:    hash,
		logger:  logger,
		inboxes: make([]chan Task, numWorkers),
		// Buffered deep enough that a worker's send never blocks
		// even if the coordinator has stopped draining (e.g. after
		// a fatal error elsewhere) — every in-flight task can be at
		// most numWorkers*inboxCapacity, so that's the bound.
		replies: make(chan Reply, numWorkers*inboxCapacity),
	}
	for i := range p.inboxes {
		p.inboxes[i] = make(chan Task, inboxCapacity)
	}
	return p
}

// Init spawns all workers in parallel and waits for each to report
// ready, with a 10s timeout per worker. If any worker fails to become
// ready, already-started workers are terminated and the whole init
// fails — spec §4.4's init contract.
func (p *Pool) Init(ctx context.Context) error {
	p.logger.Info("worker pool init started", "worker_count", len(p.inboxes))

	ready := make(chan int, len(p.inboxes))
	for i := range p.inboxes {
		p.wg.Add(1)
		go p.run(i, ready)
	}

	for range p.inboxes {
		timer := time.NewTimer(initTimeout)
		select {
		case <-ready:
			timer.Stop()
		case <-timer.C:
			p.logger.Warn("worker pool init timed out", "worker_count", len(p.inboxes))
			p.Terminate()
			return herr.New(herr.WorkerInitTimeout)
		case <-ctx.Done():
			timer.Stop()
			p.Terminate()
			return ctx.Err()
		}
	}

	p.logger.Info("worker pool initialized", "worker_count", len(p.inboxes))
	return nil
}

// run is a single worker's goroutine body. It reports readiness
// immediately (a real worker runtime might do async setup here —
// loading a library, warming a cache — but our primitive is pure Go
// with no setup cost) and then serves tasks from its inbox until the
// inbox is closed by Terminate.
func (p *Pool) run(index int, ready chan<- int) {
	defer p.wg.Done()
	ready <- index

	for task := range p.inboxes[index] {
		cv, err := p.safeHash(task)
		if err != nil {
			p.replies <- Reply{TaskID: task.TaskID, WorkerIndex: index, Err: err, Fatal: true}
			p.logger.Error("worker failed fatally", "worker_index", index, "error", err)
			return
		}
		p.replies <- Reply{TaskID: task.TaskID, WorkerIndex: index, CV: cv}
	}
}

// safeHash recovers from a panic in HashFunc and reports it as a
// fatal worker error instead of crashing the process. The primitive
// library is assumed total on valid inputs (spec §7); this guards
// against the case where it is not.
func (p *Pool) safeHash(task Task) (cv core.CV, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	cv = p.hash(task.Data, task.FileOffset)
	return cv, nil
}

// Dispatch routes task to the given worker's inbox. The caller
// (the dispatcher) must not call Dispatch for a worker already at
// max_inflight_per_worker outstanding tasks — the inbox is sized
// exactly to that capacity, so Dispatch would otherwise block.
func (p *Pool) Dispatch(workerIndex int, task Task) {
	p.inboxes[workerIndex] <- task
}

// Replies returns the channel every worker's results are posted to.
func (p *Pool) Replies() <-chan Reply { return p.replies }

// Terminate closes every worker's inbox and waits for all workers to
// exit. Idempotent and infallible (spec §4.4/§7); safe to call more
// than once or before Init has finished.
func (p *Pool) Terminate() {
	for _, inbox := range p.inboxes {
		closeOnce(inbox)
	}
	p.wg.Wait()
}

// closeOnce closes ch, tolerating an already-closed channel — Go has
// no "close if not closed" primitive, so Terminate uses a recover
// guard to stay idempotent without extra bookkeeping per worker.
func closeOnce(ch chan Task) {
	defer func() { recover() }()
	close(ch)
}
