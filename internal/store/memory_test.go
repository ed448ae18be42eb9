package store

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"eris/internal/eris"
)

// testBlock returns a full 1KiB block of seeded bytes and its
// reference.
func testBlock(t *testing.T, seed byte) ([]byte, eris.Reference) {
	t.Helper()
	block := make([]byte, eris.BlockSize1KiB)
	for i := range block {
		block[i] = seed + byte(i%251)
	}
	ref, err := eris.ReferenceOf(block)
	if err != nil {
		t.Fatalf("failed to derive reference: %v", err)
	}
	return block, ref
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	block, ref := testBlock(t, 1)

	// 1. Get before put
	if _, err := mem.Get(ctx, ref); !errors.Is(err, eris.ErrBlockNotFound) {
		t.Fatalf("expected ErrBlockNotFound, got %v", err)
	}

	// 2. Put and read back
	if err := mem.Put(ctx, ref, block); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	got, err := mem.Get(ctx, ref)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if !bytes.Equal(got, block) {
		t.Fatalf("stored block differs from input")
	}

	// 3. The returned slice is the caller's own
	got[0] ^= 0xff
	again, err := mem.Get(ctx, ref)
	if err != nil {
		t.Fatalf("failed to get again: %v", err)
	}
	if !bytes.Equal(again, block) {
		t.Fatalf("mutating a result changed the stored block")
	}

	// 4. Len counts distinct references
	block2, ref2 := testBlock(t, 2)
	if err := mem.Put(ctx, ref2, block2); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	if err := mem.Put(ctx, ref2, block2); err != nil {
		t.Fatalf("failed to put again: %v", err)
	}
	if mem.Len() != 2 {
		t.Fatalf("expected 2 blocks, got %d", mem.Len())
	}
}

func TestMemoryList(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	want := map[eris.Reference][]byte{}
	for seed := byte(1); seed <= 3; seed++ {
		block, ref := testBlock(t, seed)
		if err := mem.Put(ctx, ref, block); err != nil {
			t.Fatalf("failed to put: %v", err)
		}
		want[ref] = block
	}

	seen := 0
	err := mem.List(ctx, func(ref eris.Reference, block []byte) error {
		w, ok := want[ref]
		if !ok {
			t.Fatalf("listed unknown reference %s", ref)
		}
		if !bytes.Equal(block, w) {
			t.Fatalf("listed block %s differs from stored", ref)
		}
		seen++
		return nil
	})
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if seen != len(want) {
		t.Fatalf("expected %d blocks listed, got %d", len(want), seen)
	}

	// A callback error stops the walk
	stop := errors.New("stop")
	if err := mem.List(ctx, func(eris.Reference, []byte) error { return stop }); !errors.Is(err, stop) {
		t.Fatalf("expected the callback error back, got %v", err)
	}
}
