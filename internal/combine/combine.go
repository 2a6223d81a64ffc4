// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package combine implements the bubble-up combiner (spec §4.6): as
// leaf chaining values arrive in any order, it merges ready sibling
// pairs up the pre-planned tree and finalizes the root with the
// BLAKE3 root-finalization flag.
//
// Combiner is not safe for concurrent use — by design. Spec §5
// requires the CV map to be "owned by the coordinator and mutated
// only there"; Combiner has no internal locking because it is only
// ever called from that single goroutine.
package combine

import (
	"fmt"

	"github.com/lamb356/blake3stream/internal/core"
	"github.com/lamb356/blake3stream/internal/tree"
)

// Combiner tracks the chaining value map for one hash_file call and
// resolves RootCh exactly once, when both children of the tree root
// have been delivered and merged.
type Combiner struct {
	tree   *tree.Tree
	cv     map[tree.NodeID]core.CV
	rootCh chan core.CV
}

// New creates a Combiner for t. t must have at least one leaf.
func New(t *tree.Tree) *Combiner {
	return &Combiner{
		tree:   t,
		cv:     make(map[tree.NodeID]core.CV, 2*len(t.Leaves)-1),
		rootCh: make(chan core.CV, 1),
	}
}

// RootCh resolves with the final digest exactly once, after the last
// merge completes.
func (c *Combiner) RootCh() <-chan core.CV { return c.rootCh }

// CVCount returns the number of chaining values recorded so far —
// used by tests and diagnostics to confirm a completed hash_file left
// exactly 2*num_leaves-1 entries (spec §8).
func (c *Combiner) CVCount() int { return len(c.cv) }

// Deliver records cv for node and, if both children of node's parent
// are now known, merges them and recurses upward. Delivering a CV for
// a node that already has one is an invariant violation (spec §3: "An
// entry is set at most once").
func (c *Combiner) Deliver(node tree.NodeID, cv core.CV) error {
	if _, exists := c.cv[node]; exists {
		return fmt.Errorf("combine: node %d already has a chaining value", node)
	}
	c.cv[node] = cv

	n := c.tree.Nodes[node]
	if n.ParentID == tree.NoParent {
		c.rootCh <- cv
		return nil
	}

	parent := c.tree.Nodes[n.ParentID]
	leftCV, haveLeft := c.cv[parent.LeftID]
	rightCV, haveRight := c.cv[parent.RightID]
	if !haveLeft || !haveRight {
		// The sibling hasn't arrived yet; its eventual delivery will
		// trigger this merge.
		return nil
	}

	var merged core.CV
	if parent.ParentID == tree.NoParent {
		merged = core.RootHash(leftCV, rightCV)
	} else {
		merged = core.ParentCV(leftCV, rightCV)
	}
	return c.Deliver(parent.ID, merged)
}
