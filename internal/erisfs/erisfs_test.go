// Package erisfs_test provides tests for the read-only filesystem
// gateway.
package erisfs_test

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"

	"eris/internal/eris"
	"eris/internal/erisfs"
	"eris/internal/namespace"
	"eris/internal/store"
)

func payload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i*7 + 13)
	}
	return p
}

// newTestFS encodes two payloads into a memory store and tags them.
func newTestFS(t *testing.T) (*erisfs.FS, []byte, []byte) {
	t.Helper()
	ctx := context.Background()
	blocks := store.NewMemory()
	names := namespace.NewInMemoryNamespace()

	alpha := payload(3 * 1024)
	beta := []byte("a small file\n")

	for _, f := range []struct {
		name    string
		content []byte
	}{{"alpha", alpha}, {"beta", beta}} {
		c, err := eris.EncodeBytes(ctx, blocks, f.content, eris.BlockSize1KiB, eris.Secret{})
		if err != nil {
			t.Fatalf("failed to encode %s: %v", f.name, err)
		}
		entry := namespace.Entry{URN: c.URN(), Length: int64(len(f.content)), Updated: time.Now()}
		if err := names.Set(f.name, entry); err != nil {
			t.Fatalf("failed to tag %s: %v", f.name, err)
		}
	}

	return erisfs.New(blocks, names), alpha, beta
}

func TestFS_ReadDir(t *testing.T) {
	fs, alpha, beta := newTestFS(t)

	// 1. Root stats as a directory
	info, err := fs.Stat("/")
	if err != nil {
		t.Fatalf("failed to stat root: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("expected root to be a directory")
	}

	// 2. Listing the root returns both names, sorted, with sizes
	infos, err := fs.ReadDir("/")
	if err != nil {
		t.Fatalf("failed to read root dir: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(infos))
	}
	if infos[0].Name() != "alpha" || infos[1].Name() != "beta" {
		t.Fatalf("expected [alpha beta], got [%s %s]", infos[0].Name(), infos[1].Name())
	}
	if infos[0].Size() != int64(len(alpha)) || infos[1].Size() != int64(len(beta)) {
		t.Fatalf("expected sizes %d and %d, got %d and %d",
			len(alpha), len(beta), infos[0].Size(), infos[1].Size())
	}
	if infos[0].IsDir() {
		t.Fatalf("expected alpha to be a regular file")
	}

	// 3. Listing a file fails
	if _, err := fs.ReadDir("/alpha"); err == nil {
		t.Fatalf("expected error reading a file as a directory")
	}
}

func TestFS_ReadFile(t *testing.T) {
	fs, alpha, _ := newTestFS(t)

	// 1. Open and read the whole file
	f, err := fs.Open("/alpha")
	if err != nil {
		t.Fatalf("failed to open file: %v", err)
	}
	defer f.Close()

	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if len(got) != len(alpha) {
		t.Fatalf("expected %d bytes, got %d", len(alpha), len(got))
	}
	for i := range got {
		if got[i] != alpha[i] {
			t.Fatalf("content mismatch at offset %d", i)
		}
	}

	// 2. Seek back and re-read a slice
	if _, err := f.Seek(1024, io.SeekStart); err != nil {
		t.Fatalf("failed to seek: %v", err)
	}
	part := make([]byte, 100)
	if _, err := io.ReadFull(f, part); err != nil {
		t.Fatalf("failed to read after seek: %v", err)
	}
	for i := range part {
		if part[i] != alpha[1024+i] {
			t.Fatalf("content mismatch after seek at offset %d", i)
		}
	}

	// 3. ReadAt does not disturb the position
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		t.Fatalf("failed to query position: %v", err)
	}
	at := make([]byte, 10)
	if _, err := f.ReadAt(at, 17); err != nil {
		t.Fatalf("failed to read at offset: %v", err)
	}
	for i := range at {
		if at[i] != alpha[17+i] {
			t.Fatalf("content mismatch for ReadAt at offset %d", i)
		}
	}
	if now, _ := f.Seek(0, io.SeekCurrent); now != pos {
		t.Fatalf("expected position %d after ReadAt, got %d", pos, now)
	}

	// 4. Stat reports the tagged length
	info, err := fs.Stat("alpha")
	if err != nil {
		t.Fatalf("failed to stat file: %v", err)
	}
	if info.Size() != int64(len(alpha)) {
		t.Fatalf("expected size %d, got %d", len(alpha), info.Size())
	}
}

func TestFS_NotExist(t *testing.T) {
	fs, _, _ := newTestFS(t)

	if _, err := fs.Open("/gamma"); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if _, err := fs.Stat("/gamma"); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	// Nothing nests below the root
	if _, err := fs.Open("/alpha/nested"); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error for nested path, got %v", err)
	}
}

func TestFS_ReadOnly(t *testing.T) {
	fs, _, _ := newTestFS(t)

	if _, err := fs.Create("/new"); !errors.Is(err, billy.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly from Create, got %v", err)
	}
	if _, err := fs.OpenFile("/alpha", os.O_RDWR, 0644); !errors.Is(err, billy.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly from OpenFile O_RDWR, got %v", err)
	}
	if err := fs.Rename("/alpha", "/gamma"); !errors.Is(err, billy.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly from Rename, got %v", err)
	}
	if err := fs.Remove("/alpha"); !errors.Is(err, billy.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly from Remove, got %v", err)
	}
	if err := fs.MkdirAll("/dir", 0755); !errors.Is(err, billy.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly from MkdirAll, got %v", err)
	}

	f, err := fs.Open("/beta")
	if err != nil {
		t.Fatalf("failed to open file: %v", err)
	}
	defer f.Close()
	if _, err := f.Write([]byte("x")); !errors.Is(err, billy.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly from Write, got %v", err)
	}
	if err := f.Truncate(0); !errors.Is(err, billy.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly from Truncate, got %v", err)
	}

	if fs.Capabilities()&billy.WriteCapability != 0 {
		t.Fatalf("expected filesystem to not advertise write capability")
	}
}
