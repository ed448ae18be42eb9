package store

import (
	"bytes"
	"context"
	"testing"

	"eris/internal/eris"
)

// countingInner counts the operations that reach the wrapped store.
type countingInner struct {
	eris.Store
	gets int
	puts int
}

func (s *countingInner) Get(ctx context.Context, ref eris.Reference) ([]byte, error) {
	s.gets++
	return s.Store.Get(ctx, ref)
}

func (s *countingInner) Put(ctx context.Context, ref eris.Reference, block []byte) error {
	s.puts++
	return s.Store.Put(ctx, ref, block)
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	inner := &countingInner{Store: NewMemory()}
	cache, err := NewCache(inner, 2)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	block, ref := testBlock(t, 1)

	// 1. A put writes through and primes the cache
	if err := cache.Put(ctx, ref, block); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	if inner.puts != 1 {
		t.Fatalf("expected 1 put through, got %d", inner.puts)
	}
	got, err := cache.Get(ctx, ref)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if !bytes.Equal(got, block) {
		t.Fatalf("cached block differs from input")
	}
	if inner.gets != 0 {
		t.Fatalf("expected the get served from cache, got %d inner gets", inner.gets)
	}

	// 2. An uncached block falls through once
	block2, ref2 := testBlock(t, 2)
	if err := inner.Store.Put(ctx, ref2, block2); err != nil {
		t.Fatalf("failed to seed inner store: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := cache.Get(ctx, ref2); err != nil {
			t.Fatalf("failed to get: %v", err)
		}
	}
	if inner.gets != 1 {
		t.Fatalf("expected 1 inner get, got %d", inner.gets)
	}

	// 3. Evicted blocks fall back to the inner store
	block3, ref3 := testBlock(t, 3)
	if err := cache.Put(ctx, ref3, block3); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	if _, err := cache.Get(ctx, ref); err != nil {
		t.Fatalf("failed to get evicted block: %v", err)
	}
	if inner.gets != 2 {
		t.Fatalf("expected 2 inner gets after eviction, got %d", inner.gets)
	}

	// 4. Mutating a result does not poison the cache
	got, err = cache.Get(ctx, ref3)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	got[0] ^= 0xff
	again, err := cache.Get(ctx, ref3)
	if err != nil {
		t.Fatalf("failed to get again: %v", err)
	}
	if !bytes.Equal(again, block3) {
		t.Fatalf("mutating a result changed the cached block")
	}

	// 5. Unwrap returns the store behind the cache
	if cache.Unwrap() != inner {
		t.Fatalf("expected Unwrap to return the inner store")
	}
}
