// Package eris_test provides tests for the encoding against real block
// stores.
package eris_test

import (
	"context"
	"io"
	"sync"
	"testing"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20"

	"eris/internal/eris"
)

// content produces n deterministic bytes with no alignment to block
// boundaries, so every leaf of an encoded stream is distinct.
func content(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i % 251)
	}
	return p
}

// countingStore wraps a store and counts operations.
type countingStore struct {
	eris.Store
	mu   sync.Mutex
	puts int
	gets int
}

func (s *countingStore) Get(ctx context.Context, ref eris.Reference) ([]byte, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	return s.Store.Get(ctx, ref)
}

func (s *countingStore) Put(ctx context.Context, ref eris.Reference, block []byte) error {
	s.mu.Lock()
	s.puts++
	s.mu.Unlock()
	return s.Store.Put(ctx, ref, block)
}

// discardStore accepts blocks and forgets them, for encode-only
// streams too large to hold.
type discardStore struct {
	puts int
}

func (s *discardStore) Get(ctx context.Context, ref eris.Reference) ([]byte, error) {
	return nil, eris.ErrBlockNotFound
}

func (s *discardStore) Put(ctx context.Context, ref eris.Reference, block []byte) error {
	s.puts++
	return nil
}

func (s *discardStore) Close() error { return nil }

// vectorReader streams n bytes of the ChaCha20 keystream keyed by the
// digest of label, the content generator of the published large test
// vectors.
func vectorReader(t *testing.T, label string, n int64) io.Reader {
	t.Helper()
	seed := blake2b.Sum256([]byte(label))
	c, err := chacha20.NewUnauthenticatedCipher(seed[:], make([]byte, chacha20.NonceSize))
	if err != nil {
		t.Fatalf("failed to create content generator: %v", err)
	}
	return &keystreamReader{c: c, remaining: n}
}

type keystreamReader struct {
	c         *chacha20.Cipher
	remaining int64
}

func (r *keystreamReader) Read(p []byte) (int, error) {
	if r.remaining == 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	clear(p)
	r.c.XORKeyStream(p, p)
	r.remaining -= int64(len(p))
	return len(p), nil
}
