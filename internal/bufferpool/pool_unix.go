// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package bufferpool

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// newArena allocates size bytes as an anonymous MAP_SHARED mapping.
// This is the literal "shared memory region" described by spec §4.3
// and, in the original blake3-wasm-shared source this spec was
// distilled from, a JavaScript SharedArrayBuffer: a single memory
// region the dispatcher writes into and workers read from with no
// copy in between. Unlike a file-backed mapping (see the teacher's
// lib/artifactstore.CacheDevice), this one is never persisted — it
// exists only for the lifetime of the Hasher.
func newArena(size int) ([]byte, func(), error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, nil, fmt.Errorf("mmap anonymous region of %d bytes: %w", size, err)
	}
	closeFn := func() {
		_ = unix.Munmap(data)
	}
	return data, closeFn, nil
}
