// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bufferpool implements the shared-buffer pool (spec §4.3): a
// fixed arena of equal-size slots that the dispatcher fills with leaf
// bytes and hands to workers without copying.
package bufferpool

import "fmt"

// Pool is a fixed arena of numSlots slots of slotSize bytes each.
// Slot i owns the byte range [i*slotSize, (i+1)*slotSize) of the
// arena. Slots are acquired by receiving from Free and returned with
// Release; in this hasher both are done only by the coordinator
// goroutine that also owns the dispatcher's state.
type Pool struct {
	arena    []byte
	slotSize int
	numSlots int
	free     chan int
	close    func()
}

// New creates a pool of numSlots slots of slotSize bytes. On
// darwin/linux the arena is backed by an anonymous shared memory
// mapping (see pool_unix.go); elsewhere it falls back to a plain heap
// slice (pool_other.go) — the backpressure contract is identical
// either way, per spec §4.3's "degrades to a one-copy send" note.
func New(numSlots, slotSize int) (*Pool, error) {
	if numSlots <= 0 {
		return nil, fmt.Errorf("bufferpool: numSlots must be positive, got %d", numSlots)
	}
	if slotSize <= 0 {
		return nil, fmt.Errorf("bufferpool: slotSize must be positive, got %d", slotSize)
	}

	arena, closeFn, err := newArena(numSlots * slotSize)
	if err != nil {
		return nil, fmt.Errorf("bufferpool: allocating arena: %w", err)
	}

	free := make(chan int, numSlots)
	for i := 0; i < numSlots; i++ {
		free <- i
	}

	return &Pool{
		arena:    arena,
		slotSize: slotSize,
		numSlots: numSlots,
		free:     free,
		close:    closeFn,
	}, nil
}

// NumSlots returns the total number of slots in the pool.
func (p *Pool) NumSlots() int { return p.numSlots }

// Free exposes the pool's free-slot channel. Receiving from it is how
// the coordinator blocks awaiting a free slot (spec's wake_slot);
// sending to it is how a slot is released. Both ends are only ever
// touched by the coordinator goroutine.
func (p *Pool) Free() chan int { return p.free }

// Release returns slot to the free list.
func (p *Pool) Release(slot int) {
	p.free <- slot
}

// SlotBytes returns the byte range owned by slot. The returned slice
// must not be retained past the slot's next Release — the coordinator
// hands this exact slice to a worker, which must stop reading it the
// instant it replies.
func (p *Pool) SlotBytes(slot int) []byte {
	start := slot * p.slotSize
	return p.arena[start : start+p.slotSize]
}

// Close releases the underlying arena (unmapping it on darwin/linux).
// Not safe to call while any slot is still in use.
func (p *Pool) Close() error {
	if p.close != nil {
		p.close()
	}
	return nil
}
