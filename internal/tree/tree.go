// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tree builds the leaf/inner-node topology for a BLAKE3 tree
// over an input of known total length, without touching the input
// bytes themselves. It is pure and synchronous: Build runs once at
// the start of a hash_file call and the resulting Tree is discarded
// at the end.
package tree

import (
	"fmt"
	"math/bits"

	"github.com/lamb356/blake3stream/internal/core"
)

// NodeID identifies a node within a single Tree. IDs are arena
// indices, not pointers, so the whole tree can be dropped in one step
// and nodes can reference their parent/children without cycles.
type NodeID int

// NoParent is the ParentID of the root node.
const NoParent NodeID = -1

// Node is either a leaf (a contiguous byte range to hash directly) or
// an inner node (the combination of two children). Leaf fields
// (LeftID, RightID) are NoParent when Leaf is true.
type Node struct {
	ID       NodeID
	Offset   uint64
	Size     uint64
	Leaf     bool
	ParentID NodeID
	LeftID   NodeID
	RightID  NodeID

	// LeafIndex is this leaf's position in left-to-right order.
	// Meaningless (-1) for inner nodes.
	LeafIndex int
}

// Tree is the arena of nodes produced by Build, plus the root id and
// the leaves in left-to-right order (the order the stream fills them
// in, and the order hash_subtree tasks are produced).
type Tree struct {
	Nodes  map[NodeID]*Node
	Root   NodeID
	Leaves []NodeID
}

// Build enumerates the leaf subtrees and inner-node topology for an
// input of totalSize bytes, given maxLeafSize as the largest leaf a
// single worker task will hash. Build returns an error if totalSize is
// zero or maxLeafSize is not a positive multiple of 1024.
//
// Build implements spec §4.2 exactly: a leaf is emitted once a
// candidate range is small enough AND aligned enough to be a legal
// BLAKE3 subtree (maxSubtreeLen); otherwise the range is split at
// core.LeftSubtreeLen and both halves are built recursively.
func Build(totalSize uint64, maxLeafSize uint64) (*Tree, error) {
	if totalSize == 0 {
		return nil, fmt.Errorf("tree: cannot build a tree over zero bytes (caller should use the small-input shortcut)")
	}
	if maxLeafSize == 0 || maxLeafSize%core.ChunkLen != 0 {
		return nil, fmt.Errorf("tree: max leaf size %d must be a positive multiple of %d", maxLeafSize, core.ChunkLen)
	}

	t := &Tree{Nodes: make(map[NodeID]*Node)}
	var nextID NodeID

	var build func(offset, size uint64) NodeID
	build = func(offset, size uint64) NodeID {
		id := nextID
		nextID++

		if size <= maxLeafSize && size <= maxSubtreeLen(offset) {
			node := &Node{
				ID:        id,
				Offset:    offset,
				Size:      size,
				Leaf:      true,
				ParentID:  NoParent,
				LeftID:    NoParent,
				RightID:   NoParent,
				LeafIndex: len(t.Leaves),
			}
			t.Nodes[id] = node
			t.Leaves = append(t.Leaves, id)
			return id
		}

		left := core.LeftSubtreeLen(size)
		leftID := build(offset, left)
		rightID := build(offset+left, size-left)

		t.Nodes[id] = &Node{
			ID:        id,
			Offset:    offset,
			Size:      size,
			Leaf:      false,
			ParentID:  NoParent,
			LeftID:    leftID,
			RightID:   rightID,
			LeafIndex: -1,
		}
		t.Nodes[leftID].ParentID = id
		t.Nodes[rightID].ParentID = id
		return id
	}

	t.Root = build(0, totalSize)
	return t, nil
}

// maxSubtreeLen returns the largest subtree length, in bytes, that is
// legal to start at offset: infinite at offset 0 (the whole input is
// always a legal subtree start), otherwise the power-of-two number of
// chunks implied by offset's alignment.
func maxSubtreeLen(offset uint64) uint64 {
	if offset == 0 {
		return ^uint64(0)
	}
	tz := bits.TrailingZeros64(offset / core.ChunkLen)
	return (uint64(1) << tz) * core.ChunkLen
}
