// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch implements the streaming dispatcher (spec §4.5):
// the single coordinator goroutine that reads an input stream leaf by
// leaf, applies dual backpressure (the buffer-slot pool and each
// worker's inflight cap), routes hash_subtree tasks to the worker
// pool, and feeds replies into the bubble-up combiner until the root
// resolves.
//
// All mutable dispatch state — the pending-task table, per-worker
// inflight counts, the round-robin cursor — belongs to one Dispatcher
// value driven from one goroutine. There is no lock anywhere in this
// package; there is also only ever one goroutine that could need one.
package dispatch

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/lamb356/blake3stream/internal/bufferpool"
	"github.com/lamb356/blake3stream/internal/combine"
	"github.com/lamb356/blake3stream/internal/core"
	"github.com/lamb356/blake3stream/internal/herr"
	"github.com/lamb356/blake3stream/internal/tree"
	"github.com/lamb356/blake3stream/internal/workerpool"
)

// pending tracks one in-flight hash_subtree task so a late reply or a
// timeout can be resolved back to its tree node, buffer slot, and
// worker.
type pending struct {
	node   tree.NodeID
	slot   int
	worker int
	timer  *time.Timer
}

// Dispatcher runs one hash_file call end to end. It is single-use:
// create a new one per call. The worker pool, buffer pool, and task-ID
// counter it's built on all outlive any one Dispatcher, since a Hasher
// reuses them across repeated HashFile calls.
type Dispatcher struct {
	pool    *bufferpool.Pool
	workers *workerpool.Pool
	logger  *slog.Logger

	maxInflightPerWorker int
	taskTimeout          time.Duration

	// nextTaskID is a pointer into the owning Hasher's counter, not a
	// local field: task IDs must never repeat across the Hasher's
	// lifetime, not just within one call. A worker that is never
	// replaced after a timeout (spec §9's open question) can still
	// deliver that task's reply after this call has already returned;
	// a task ID reused by a later call would let that stale reply
	// collide with an unrelated pending task and corrupt its digest.
	nextTaskID *uint64
	nextWorker int
	inflight   []int
	completed  []int64
	pendingOf  map[uint64]*pending
	timeoutCh  chan uint64
}

// New builds a Dispatcher over an already-initialized worker pool and
// buffer pool. maxInflightPerWorker and taskTimeout come from Options
// (spec §6.2); the caller owns pool/workers lifecycle (Init/Terminate)
// since they are reused across multiple hash_file calls. nextTaskID
// must point at a counter that outlives this call (the Hasher's own),
// so task IDs stay unique across the Hasher's whole lifetime rather
// than resetting to 0 per call.
func New(pool *bufferpool.Pool, workers *workerpool.Pool, logger *slog.Logger, nextTaskID *uint64, numWorkers, maxInflightPerWorker int, taskTimeout time.Duration) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		pool:                 pool,
		workers:              workers,
		logger:               logger,
		maxInflightPerWorker: maxInflightPerWorker,
		taskTimeout:          taskTimeout,
		nextTaskID:           nextTaskID,
		inflight:             make([]int, numWorkers),
		completed:            make([]int64, numWorkers),
		pendingOf:            make(map[uint64]*pending),
		timeoutCh:            make(chan uint64, numWorkers*maxInflightPerWorker),
	}
}

// Run streams totalSize bytes from r, hashing it as one BLAKE3 tree
// per the pre-planned topology t, and returns the root digest. It
// assumes t was built over the same totalSize and that the pool's
// slot size is at least t's max leaf size.
func (d *Dispatcher) Run(ctx context.Context, r io.Reader, t *tree.Tree) (core.CV, error) {
	d.drainStaleReplies()
	comb := combine.New(t)

	for _, leafID := range t.Leaves {
		leaf := t.Nodes[leafID]

		slot, err := d.acquireSlot(ctx, comb)
		if err != nil {
			return core.CV{}, err
		}

		buf := d.pool.SlotBytes(slot)[:leaf.Size]
		if _, err := io.ReadFull(r, buf); err != nil {
			d.pool.Release(slot)
			return core.CV{}, herr.Wrap(herr.StreamError, err)
		}

		worker, err := d.acquireWorker(ctx, comb)
		if err != nil {
			d.pool.Release(slot)
			return core.CV{}, err
		}

		d.dispatch(leaf, slot, worker, buf)
	}

	return d.drainAndAwaitRoot(ctx, comb)
}

// drainStaleReplies discards any reply still buffered from a prior
// call before this one starts dispatching. A task that timed out on a
// previous call leaves its worker running (spec §9's open question
// about late replies); that worker's eventual reply lands on the
// shared replies channel with nothing reading it until the next Run.
// Left undrained across enough calls, these accumulate and can fill
// the channel's fixed capacity, permanently blocking every worker's
// send. pendingOf is always empty at this point, so every buffered
// reply here is necessarily stale and safe to discard outright.
func (d *Dispatcher) drainStaleReplies() {
	for {
		select {
		case rep := <-d.workers.Replies():
			d.logger.Warn("discarding stale reply from a previous call", "task_id", rep.TaskID, "worker_index", rep.WorkerIndex)
		default:
			return
		}
	}
}

// acquireSlot blocks until a buffer slot is free, opportunistically
// draining worker replies and task timeouts while it waits — the slot
// pool is one half of spec §4.5's dual backpressure, and a reply
// arriving here is exactly what frees the slot a prior task held.
func (d *Dispatcher) acquireSlot(ctx context.Context, comb *combine.Combiner) (int, error) {
	for {
		select {
		case slot := <-d.pool.Free():
			return slot, nil
		case rep := <-d.workers.Replies():
			if err := d.handleReply(rep, comb); err != nil {
				return 0, err
			}
		case taskID := <-d.timeoutCh:
			if err := d.handleTimeout(taskID); err != nil {
				return 0, err
			}
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// acquireWorker blocks until some worker has inflight capacity,
// picking round-robin among workers currently under
// maxInflightPerWorker — the other half of dual backpressure.
func (d *Dispatcher) acquireWorker(ctx context.Context, comb *combine.Combiner) (int, error) {
	for {
		if w, ok := d.nextAvailableWorker(); ok {
			return w, nil
		}
		select {
		case rep := <-d.workers.Replies():
			if err := d.handleReply(rep, comb); err != nil {
				return 0, err
			}
		case taskID := <-d.timeoutCh:
			if err := d.handleTimeout(taskID); err != nil {
				return 0, err
			}
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (d *Dispatcher) nextAvailableWorker() (int, bool) {
	n := len(d.inflight)
	for i := 0; i < n; i++ {
		w := (d.nextWorker + i) % n
		if d.inflight[w] < d.maxInflightPerWorker {
			d.nextWorker = (w + 1) % n
			return w, true
		}
	}
	return 0, false
}

// dispatch hands buf to worker for the given leaf, arming a per-task
// timeout and recording enough state to resolve the eventual reply (or
// a timeout) back to this leaf's tree node and buffer slot.
func (d *Dispatcher) dispatch(leaf *tree.Node, slot, worker int, buf []byte) {
	taskID := *d.nextTaskID
	*d.nextTaskID++
	d.inflight[worker]++

	timer := time.AfterFunc(d.taskTimeout, func() {
		d.timeoutCh <- taskID
	})
	d.pendingOf[taskID] = &pending{node: leaf.ID, slot: slot, worker: worker, timer: timer}

	d.workers.Dispatch(worker, workerpool.Task{TaskID: taskID, Data: buf, FileOffset: leaf.Offset})
}

// handleReply resolves a worker reply: a fatal reply aborts the whole
// call (the worker that produced it is no longer trustworthy); a
// reply for a task we've already timed out is discarded (spec §9: a
// late reply after timeout must not be delivered to the combiner);
// otherwise the task's slot is freed, its worker's inflight count
// drops, and its chaining value is delivered.
func (d *Dispatcher) handleReply(rep workerpool.Reply, comb *combine.Combiner) error {
	p, ok := d.pendingOf[rep.TaskID]
	if !ok {
		// Already resolved via timeout; a race between the timer firing
		// and the worker's reply landing is expected and harmless.
		if rep.Fatal {
			return &herr.Error{Kind: herr.WorkerFailure, WorkerIndex: rep.WorkerIndex, Err: rep.Err}
		}
		return nil
	}

	p.timer.Stop()
	delete(d.pendingOf, rep.TaskID)
	d.inflight[rep.WorkerIndex]--
	d.pool.Release(p.slot)

	if rep.Fatal {
		e := &herr.Error{Kind: herr.WorkerFailure, WorkerIndex: rep.WorkerIndex, Err: rep.Err}
		return e
	}
	d.completed[rep.WorkerIndex]++
	return comb.Deliver(p.node, rep.CV)
}

// Stats returns the number of tasks each worker completed successfully
// during the most recent Run call (spec §6.4's per_worker_stats).
func (d *Dispatcher) Stats() []int64 {
	out := make([]int64, len(d.completed))
	copy(out, d.completed)
	return out
}

// handleTimeout resolves an armed timer firing: if the task already
// completed (timer raced a reply that already cleared pendingOf),
// it's a no-op; otherwise the slot is reclaimed and the call fails
// with TaskTimeout (spec §7).
func (d *Dispatcher) handleTimeout(taskID uint64) error {
	p, ok := d.pendingOf[taskID]
	if !ok {
		return nil
	}
	delete(d.pendingOf, taskID)
	d.inflight[p.worker]--
	d.pool.Release(p.slot)
	d.logger.Warn("task timed out", "task_id", taskID, "worker_index", p.worker)
	return &herr.Error{Kind: herr.TaskTimeout, WorkerIndex: p.worker, TaskID: taskID}
}

// drainAndAwaitRoot waits for every still-pending reply to land and
// the combiner to resolve the root, after the last leaf has been
// dispatched.
func (d *Dispatcher) drainAndAwaitRoot(ctx context.Context, comb *combine.Combiner) (core.CV, error) {
	for {
		select {
		case cv := <-comb.RootCh():
			return cv, nil
		case rep := <-d.workers.Replies():
			if err := d.handleReply(rep, comb); err != nil {
				return core.CV{}, err
			}
		case taskID := <-d.timeoutCh:
			if err := d.handleTimeout(taskID); err != nil {
				return core.CV{}, err
			}
		case <-ctx.Done():
			return core.CV{}, ctx.Err()
		}
	}
}
