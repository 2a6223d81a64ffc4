// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bufferpool

import "testing"

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p, err := New(4, 1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	var acquired []int
	for i := 0; i < p.NumSlots(); i++ {
		select {
		case slot := <-p.Free():
			acquired = append(acquired, slot)
		default:
			t.Fatalf("expected a free slot, got none at iteration %d", i)
		}
	}

	select {
	case slot := <-p.Free():
		t.Fatalf("expected no free slots left, got %d", slot)
	default:
	}

	for _, slot := range acquired {
		p.Release(slot)
	}

	seen := make(map[int]bool)
	for i := 0; i < p.NumSlots(); i++ {
		slot := <-p.Free()
		if seen[slot] {
			t.Fatalf("slot %d released/acquired twice", slot)
		}
		seen[slot] = true
	}
}

func TestSlotBytesDisjoint(t *testing.T) {
	p, err := New(3, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	for i := 0; i < 3; i++ {
		b := p.SlotBytes(i)
		if len(b) != 16 {
			t.Fatalf("slot %d has length %d, want 16", i, len(b))
		}
		for j := range b {
			b[j] = byte(i + 1)
		}
	}
	for i := 0; i < 3; i++ {
		b := p.SlotBytes(i)
		for j, v := range b {
			if v != byte(i+1) {
				t.Fatalf("slot %d byte %d = %d, want %d (slots overlap)", i, j, v, i+1)
			}
		}
	}
}

func TestNewRejectsInvalidSizes(t *testing.T) {
	if _, err := New(0, 1024); err == nil {
		t.Fatal("expected error for zero slots")
	}
	if _, err := New(4, 0); err == nil {
		t.Fatal("expected error for zero slot size")
	}
}
