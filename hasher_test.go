// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blake3stream

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"testing"

	"github.com/zeebo/blake3"
)

func pseudoRandomBytes(n int) []byte {
	b := make([]byte, n)
	var x uint32 = 0x243F6A88
	for i := range b {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		b[i] = byte(x)
	}
	return b
}

func newTestHasher(t *testing.T, opts Options) *Hasher {
	t.Helper()
	h, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := h.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(h.Terminate)
	return h
}

func TestHashFileKnownVectors(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		hex  string
	}{
		{"empty", nil, "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"},
		{"abc", []byte("abc"), "6437b3ac38465133ffb63b75273a8db548c558465d79db03fd359c6cd5bd9d85"},
	}
	h := newTestHasher(t, DefaultOptions())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := h.HashFile(context.Background(), bytes.NewReader(tc.data), uint64(len(tc.data)))
			if err != nil {
				t.Fatalf("HashFile: %v", err)
			}
			want, err := hex.DecodeString(tc.hex)
			if err != nil {
				t.Fatalf("bad test vector: %v", err)
			}
			if !bytes.Equal(res.Digest[:], want) {
				t.Fatalf("digest = %x, want %x", res.Digest, want)
			}
		})
	}
}

func TestHashFileMatchesReferenceAcrossSizes(t *testing.T) {
	sizes := []int{0, 1, 1023, 1024, 1025, 65535, 65536, 65537,
		1<<20 - 1, 1 << 20, 1<<20 + 1}
	h := newTestHasher(t, DefaultOptions())
	for _, n := range sizes {
		data := pseudoRandomBytes(n)
		res, err := h.HashFile(context.Background(), bytes.NewReader(data), uint64(n))
		if err != nil {
			t.Fatalf("size %d: HashFile: %v", n, err)
		}
		want := blake3.Sum256(data)
		if !bytes.Equal(res.Digest[:], want[:]) {
			t.Fatalf("size %d: digest = %x, want %x", n, res.Digest, want)
		}
	}
}

// TestHashFileMatchesReferenceAtLargeSizes covers spec §8's large-size
// reference checks (5 MiB, 17 MiB, 129 MiB), which all the way up
// through TestHashFileMatchesReferenceAcrossSizes never reaches.
func TestHashFileMatchesReferenceAtLargeSizes(t *testing.T) {
	sizes := []int{5 * 1024 * 1024, 17 * 1024 * 1024, 129 * 1024 * 1024}
	h := newTestHasher(t, DefaultOptions())
	for _, n := range sizes {
		data := pseudoRandomBytes(n)
		res, err := h.HashFile(context.Background(), bytes.NewReader(data), uint64(n))
		if err != nil {
			t.Fatalf("size %d: HashFile: %v", n, err)
		}
		want := blake3.Sum256(data)
		if !bytes.Equal(res.Digest[:], want[:]) {
			t.Fatalf("size %d: digest = %x, want %x", n, res.Digest, want)
		}
	}
}

func Test1024ZeroBytesMatchesReference(t *testing.T) {
	data := make([]byte, 1024)
	h := newTestHasher(t, DefaultOptions())
	res, err := h.HashFile(context.Background(), bytes.NewReader(data), uint64(len(data)))
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	want := blake3.Sum256(data)
	if !bytes.Equal(res.Digest[:], want[:]) {
		t.Fatalf("digest = %x, want %x", res.Digest, want)
	}
}

func TestModularSequenceMatchesReference(t *testing.T) {
	data := make([]byte, 1048577)
	for i := range data {
		data[i] = byte(i % 251)
	}
	h := newTestHasher(t, DefaultOptions())
	res, err := h.HashFile(context.Background(), bytes.NewReader(data), uint64(len(data)))
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	want := blake3.Sum256(data)
	if !bytes.Equal(res.Digest[:], want[:]) {
		t.Fatalf("digest = %x, want %x", res.Digest, want)
	}
}

func TestWorkerCountDoesNotAffectDigest(t *testing.T) {
	data := pseudoRandomBytes(8 * 1024 * 1024)
	want := blake3.Sum256(data)
	var digests [][32]byte
	for _, wc := range []int{1, 2, 3, 6, 16} {
		opts := DefaultOptions()
		opts.WorkerCount = wc
		h := newTestHasher(t, opts)
		res, err := h.HashFile(context.Background(), bytes.NewReader(data), uint64(len(data)))
		h.Terminate()
		if err != nil {
			t.Fatalf("worker_count=%d: HashFile: %v", wc, err)
		}
		if !bytes.Equal(res.Digest[:], want[:]) {
			t.Fatalf("worker_count=%d: digest = %x, want %x", wc, res.Digest, want)
		}
		digests = append(digests, res.Digest)
	}
	for i := 1; i < len(digests); i++ {
		if digests[i] != digests[0] {
			t.Fatalf("digest varied with worker_count: %x vs %x", digests[i], digests[0])
		}
	}
}

// TestMaxLeafSizeDoesNotAffectDigest covers spec §8's invariance check
// across max_leaf_size ∈ {1024, 4096, 2^20, 2^24}, each compared
// straight against the reference implementation.
func TestMaxLeafSizeDoesNotAffectDigest(t *testing.T) {
	data := pseudoRandomBytes(3 * 1024 * 1024)
	want := blake3.Sum256(data)
	for _, leafSize := range []int{1024, 4096, 1 << 20, 1 << 24} {
		opts := DefaultOptions()
		opts.MaxLeafSize = leafSize
		h := newTestHasher(t, opts)
		res, err := h.HashFile(context.Background(), bytes.NewReader(data), uint64(len(data)))
		h.Terminate()
		if err != nil {
			t.Fatalf("max_leaf_size=%d: HashFile: %v", leafSize, err)
		}
		if !bytes.Equal(res.Digest[:], want[:]) {
			t.Fatalf("max_leaf_size=%d: digest = %x, want %x", leafSize, res.Digest, want)
		}
	}
}

// oneByteReader forces the dispatcher through its 1-byte-chunk path
// (spec §8 scenario 6) regardless of how much data it wraps.
type oneByteReader struct {
	r io.Reader
}

func (o *oneByteReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return o.r.Read(p)
}

func TestOneByteChunkStreamMatchesReference(t *testing.T) {
	data := pseudoRandomBytes(3 * 1024 * 1024)
	h := newTestHasher(t, DefaultOptions())
	res, err := h.HashFile(context.Background(), &oneByteReader{r: bytes.NewReader(data)}, uint64(len(data)))
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	want := blake3.Sum256(data)
	if !bytes.Equal(res.Digest[:], want[:]) {
		t.Fatalf("digest = %x, want %x", res.Digest, want)
	}
}

func TestHashFileBeforeInitReturnsNotInitialized(t *testing.T) {
	h, err := New(DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = h.HashFile(context.Background(), bytes.NewReader(nil), 0)
	if !IsKind(err, NotInitialized) {
		t.Fatalf("expected NotInitialized, got %v", err)
	}
}

func TestHashFileAfterTerminateReturnsTerminated(t *testing.T) {
	h := newTestHasher(t, DefaultOptions())
	h.Terminate()
	_, err := h.HashFile(context.Background(), bytes.NewReader(nil), 0)
	if !IsKind(err, Terminated) {
		t.Fatalf("expected Terminated, got %v", err)
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxLeafSize = 100 // not a multiple of 1024
	if _, err := New(opts); !IsKind(err, InvalidOptions) {
		t.Fatalf("expected InvalidOptions, got %v", err)
	}
}

func TestPerWorkerStatsSumToLeafCount(t *testing.T) {
	data := pseudoRandomBytes(5 * 1024 * 1024)
	opts := DefaultOptions()
	opts.MaxLeafSize = 1 << 16
	h := newTestHasher(t, opts)
	res, err := h.HashFile(context.Background(), bytes.NewReader(data), uint64(len(data)))
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	// 5 MiB split into 64 KiB leaves: 80 leaves, one task each.
	const wantLeaves = 80
	var total int64
	for _, s := range res.WorkerStats {
		total += s.TasksCompleted
	}
	if total != wantLeaves {
		t.Fatalf("per-worker stats sum to %d, want %d leaves", total, wantLeaves)
	}
}
