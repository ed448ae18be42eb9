// Package archive_test provides tests for block archive import and
// export.
package archive_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ulikunitz/xz"

	"eris/internal/archive"
	"eris/internal/eris"
	"eris/internal/store"
)

func payload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i*31 + 7)
	}
	return p
}

func TestArchive_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemory()

	content := payload(3 * 1024)
	c, err := eris.EncodeBytes(ctx, src, content, eris.BlockSize1KiB, eris.Secret{})
	if err != nil {
		t.Fatalf("failed to encode content: %v", err)
	}

	// 1. Export every block
	var buf bytes.Buffer
	exported, err := archive.Export(ctx, src, &buf)
	if err != nil {
		t.Fatalf("failed to export: %v", err)
	}
	if exported != src.Len() {
		t.Fatalf("expected %d exported blocks, got %d", src.Len(), exported)
	}

	// 2. Import into an empty store
	dst := store.NewMemory()
	imported, err := archive.Import(ctx, dst, &buf)
	if err != nil {
		t.Fatalf("failed to import: %v", err)
	}
	if imported != exported {
		t.Fatalf("expected %d imported blocks, got %d", exported, imported)
	}

	// 3. The content decodes from the destination store
	got, err := eris.Decode(ctx, dst, c)
	if err != nil {
		t.Fatalf("failed to decode from imported store: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("decoded content does not match original")
	}
}

func TestArchive_ImportRejectsBadReference(t *testing.T) {
	ctx := context.Background()

	// Craft an archive whose record claims the wrong reference.
	block := payload(1024)
	ref, err := eris.ReferenceOf(block)
	if err != nil {
		t.Fatalf("failed to derive reference: %v", err)
	}
	ref[0] ^= 0xff

	var buf bytes.Buffer
	zw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("failed to create xz writer: %v", err)
	}
	zw.Write(ref[:])
	zw.Write([]byte{0, 0, 4, 0}) // 1024
	zw.Write(block)
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close xz writer: %v", err)
	}

	dst := store.NewMemory()
	if _, err := archive.Import(ctx, dst, &buf); !errors.Is(err, eris.ErrHashMismatch) {
		t.Fatalf("expected ErrHashMismatch, got %v", err)
	}
	if dst.Len() != 0 {
		t.Fatalf("expected no blocks imported, got %d", dst.Len())
	}
}

func TestArchive_ImportRejectsTruncatedRecord(t *testing.T) {
	ctx := context.Background()

	block := payload(1024)
	ref, err := eris.ReferenceOf(block)
	if err != nil {
		t.Fatalf("failed to derive reference: %v", err)
	}

	var buf bytes.Buffer
	zw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("failed to create xz writer: %v", err)
	}
	zw.Write(ref[:])
	zw.Write([]byte{0, 0, 4, 0}) // 1024, but the block is cut short
	zw.Write(block[:10])
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close xz writer: %v", err)
	}

	dst := store.NewMemory()
	if _, err := archive.Import(ctx, dst, &buf); err == nil {
		t.Fatalf("expected error importing truncated archive")
	}
}

func TestArchive_ImportRejectsBadLength(t *testing.T) {
	ctx := context.Background()

	// A record can claim any 32-bit length. Anything but the two block
	// sizes must be refused on the header alone, before a buffer for
	// the body is ever allocated.
	for _, lengthField := range [][]byte{
		{0, 0, 0, 0},             // zero
		{0, 0, 3, 0xff},          // 1023
		{0x40, 0, 0, 0},          // 1 GiB
		{0xff, 0xff, 0xff, 0xff}, // 4 GiB - 1
	} {
		var ref eris.Reference
		var buf bytes.Buffer
		zw, err := xz.NewWriter(&buf)
		if err != nil {
			t.Fatalf("failed to create xz writer: %v", err)
		}
		zw.Write(ref[:])
		zw.Write(lengthField) // no body follows
		if err := zw.Close(); err != nil {
			t.Fatalf("failed to close xz writer: %v", err)
		}

		dst := store.NewMemory()
		if _, err := archive.Import(ctx, dst, &buf); !errors.Is(err, eris.ErrBadBlockSize) {
			t.Fatalf("expected ErrBadBlockSize for length field %v, got %v", lengthField, err)
		}
		if dst.Len() != 0 {
			t.Fatalf("expected no blocks imported, got %d", dst.Len())
		}
	}
}
