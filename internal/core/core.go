// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package core implements the five BLAKE3 primitive contracts the
// rest of the hasher treats as a black box: hashing a complete input,
// hashing a non-root subtree, combining two chaining values (with or
// without root finalization), and computing the canonical left-child
// split size for a subtree.
//
// No other package in this module reaches into BLAKE3's compression
// function directly — everything above this package only ever calls
// HashSingle, HashSubtree, ParentCV, RootHash, and LeftSubtreeLen.
package core

import (
	"encoding/binary"
	"math/bits"
)

// ChunkLen is the fixed size, in bytes, of a BLAKE3 chunk — the unit
// that the compression function actually operates on in sequence.
const ChunkLen = 1024

const blockLen = 64

const (
	flagChunkStart uint32 = 1 << 0
	flagChunkEnd   uint32 = 1 << 1
	flagParent     uint32 = 1 << 2
	flagRoot       uint32 = 1 << 3
)

var iv = [8]uint32{
	0x6A09E667, 0xBB67AE85, 0x3C6EF372, 0xA54FF53A,
	0x510E527F, 0x9B05688C, 0x1F83D9AB, 0x5BE0CD19,
}

// msgPermutation is applied to the message words between rounds.
// permuted[i] = m[msgPermutation[i]].
var msgPermutation = [16]int{2, 6, 3, 10, 7, 0, 4, 13, 1, 11, 12, 5, 9, 14, 15, 8}

// CV is an opaque 32-byte chaining value. Non-root CVs come from
// HashSubtree or ParentCV; root hashes come from HashSingle or
// RootHash. The two are indistinguishable by shape — callers must
// not mix them up.
type CV [32]byte

func g(state *[16]uint32, a, b, c, d int, mx, my uint32) {
	state[a] += state[b] + mx
	state[d] = bits.RotateLeft32(state[d]^state[a], -16)
	state[c] += state[d]
	state[b] = bits.RotateLeft32(state[b]^state[c], -12)
	state[a] += state[b] + my
	state[d] = bits.RotateLeft32(state[d]^state[a], -8)
	state[c] += state[d]
	state[b] = bits.RotateLeft32(state[b]^state[c], -7)
}

func round(state *[16]uint32, m *[16]uint32) {
	// columns
	g(state, 0, 4, 8, 12, m[0], m[1])
	g(state, 1, 5, 9, 13, m[2], m[3])
	g(state, 2, 6, 10, 14, m[4], m[5])
	g(state, 3, 7, 11, 15, m[6], m[7])
	// diagonals
	g(state, 0, 5, 10, 15, m[8], m[9])
	g(state, 1, 6, 11, 12, m[10], m[11])
	g(state, 2, 7, 8, 13, m[12], m[13])
	g(state, 3, 4, 9, 14, m[14], m[15])
}

func permute(m *[16]uint32) [16]uint32 {
	var out [16]uint32
	for i, src := range msgPermutation {
		out[i] = m[src]
	}
	return out
}

// compress runs the BLAKE3 compression function and returns the full
// 16-word output. The caller takes the first 8 words as the new
// chaining value; root callers take the first 32 bytes of the output
// as the final digest.
func compress(cv [8]uint32, block [16]uint32, counter uint64, blockLenBytes uint32, flags uint32) [16]uint32 {
	state := [16]uint32{
		cv[0], cv[1], cv[2], cv[3], cv[4], cv[5], cv[6], cv[7],
		iv[0], iv[1], iv[2], iv[3],
		uint32(counter), uint32(counter >> 32), blockLenBytes, flags,
	}
	msg := block
	for r := 0; r < 7; r++ {
		round(&state, &msg)
		if r != 6 {
			msg = permute(&msg)
		}
	}
	for i := 0; i < 8; i++ {
		state[i] ^= state[i+8]
		state[i+8] ^= cv[i]
	}
	return state
}

func bytesToBlock(data []byte) [16]uint32 {
	var padded [64]byte
	copy(padded[:], data)
	var block [16]uint32
	for i := 0; i < 16; i++ {
		block[i] = binary.LittleEndian.Uint32(padded[i*4:])
	}
	return block
}

func wordsToCV(w [8]uint32) CV {
	var out CV
	for i, word := range w {
		binary.LittleEndian.PutUint32(out[i*4:], word)
	}
	return out
}

func cvToWords(cv CV) [8]uint32 {
	var w [8]uint32
	for i := range w {
		w[i] = binary.LittleEndian.Uint32(cv[i*4:])
	}
	return w
}

// hashChunk hashes up to ChunkLen bytes as a single BLAKE3 chunk,
// chaining the compression function block by block. counter is the
// chunk's absolute index (input_offset / ChunkLen).
func hashChunk(data []byte, counter uint64, root bool) [8]uint32 {
	numBlocks := (len(data) + blockLen - 1) / blockLen
	if numBlocks == 0 {
		numBlocks = 1 // empty chunk still emits one (empty) block
	}

	cv := iv
	for i := 0; i < numBlocks; i++ {
		start := i * blockLen
		end := start + blockLen
		if end > len(data) {
			end = len(data)
		}

		flags := uint32(0)
		if i == 0 {
			flags |= flagChunkStart
		}
		if i == numBlocks-1 {
			flags |= flagChunkEnd
			if root {
				flags |= flagRoot
			}
		}

		block := bytesToBlock(data[start:end])
		out := compress(cv, block, counter, uint32(end-start), flags)
		copy(cv[:], out[:8])
	}
	return cv
}

func parentWords(left, right [8]uint32, root bool) [8]uint32 {
	var block [16]uint32
	copy(block[:8], left[:])
	copy(block[8:], right[:])

	flags := flagParent
	if root {
		flags |= flagRoot
	}
	out := compress(iv, block, 0, blockLen, flags)

	var cv [8]uint32
	copy(cv[:], out[:8])
	return cv
}

// hashSubtreeWords hashes data — which must be a legal BLAKE3 subtree
// starting at chunk index counter — recursively splitting at
// LeftSubtreeLen until single chunks remain, then merging with
// non-root parent nodes. It never applies the root flag; the caller
// decides whether the result it produces is the true root.
func hashSubtreeWords(data []byte, counter uint64) [8]uint32 {
	if len(data) <= ChunkLen {
		return hashChunk(data, counter, false)
	}
	left := LeftSubtreeLen(uint64(len(data)))
	leftCV := hashSubtreeWords(data[:left], counter)
	rightCV := hashSubtreeWords(data[left:], counter+left/ChunkLen)
	return parentWords(leftCV, rightCV, false)
}

// HashSingle computes the full BLAKE3 hash of data treated as a
// complete, standalone input — the correct (and only correct) way to
// finalize a tree with a single leaf. It must never be replaced by
// HashSubtree, which always returns a non-root chaining value.
func HashSingle(data []byte) CV {
	if len(data) <= ChunkLen {
		return wordsToCV(hashChunk(data, 0, true))
	}
	left := LeftSubtreeLen(uint64(len(data)))
	leftCV := hashSubtreeWords(data[:left], 0)
	rightCV := hashSubtreeWords(data[left:], left/ChunkLen)
	return wordsToCV(parentWords(leftCV, rightCV, true))
}

// HashSubtree hashes data as a non-root subtree of a larger input,
// starting at absolute byte offset inputOffset. inputOffset must be a
// multiple of ChunkLen, and data must satisfy the leaf invariants of
// the planner (a legal BLAKE3 subtree). The result is a non-root
// chaining value, never a final digest.
func HashSubtree(data []byte, inputOffset uint64) CV {
	return wordsToCV(hashSubtreeWords(data, inputOffset/ChunkLen))
}

// ParentCV combines two child chaining values into their non-root
// parent chaining value. Must never be used at the tree root.
func ParentCV(left, right CV) CV {
	return wordsToCV(parentWords(cvToWords(left), cvToWords(right), false))
}

// RootHash combines the two children of the tree root, applying the
// root-finalization flag. The result is the final 32-byte digest.
func RootHash(left, right CV) CV {
	return wordsToCV(parentWords(cvToWords(left), cvToWords(right), true))
}

// LeftSubtreeLen returns the byte length of the left child in
// BLAKE3's canonical split of an n-byte subtree: the largest
// power-of-two number of chunks strictly less than the total chunk
// count, times ChunkLen. n must be greater than ChunkLen.
func LeftSubtreeLen(n uint64) uint64 {
	fullChunks := (n - 1) / ChunkLen
	pow2 := uint64(1) << (bits.Len64(fullChunks) - 1)
	return pow2 * ChunkLen
}
