// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !(darwin || linux)

package bufferpool

// newArena falls back to a plain heap allocation on platforms without
// the anonymous-mmap support pool_unix.go uses. Dispatch still writes
// directly into slices of this arena and hands them to workers in the
// same process, so it remains zero-copy in Go terms — only the
// "shared memory" framing from spec §4.3 (meaningful across separate
// address spaces) doesn't apply.
func newArena(size int) ([]byte, func(), error) {
	return make([]byte, size), func() {}, nil
}
