// Package fusefs implements github.com/hanwen/go-fuse/v2/fs for a name
// registry: a single read-only directory with one file per registered
// name, decoded from the block store on demand. Content is immutable,
// so attributes and pages cache aggressively.
package fusefs

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/crypto/blake2b"

	"eris/internal/eris"
	"eris/internal/namespace"
)

// Root is the mount point directory.
type Root struct {
	fs.Inode

	store eris.Store
	names namespace.Namespace
}

var (
	_ fs.NodeReaddirer = (*Root)(nil)
	_ fs.NodeLookuper  = (*Root)(nil)
	_ fs.NodeGetattrer = (*Root)(nil)
)

// NewRoot creates the FUSE root inode over the given registry and
// block store.
func NewRoot(store eris.Store, names namespace.Namespace) *Root {
	return &Root{store: store, names: names}
}

// inoFor derives a stable nonzero inode number from a name, so the
// kernel sees the same inode across lookups.
func inoFor(name string) uint64 {
	sum := blake2b.Sum256([]byte(name))
	ino := binary.BigEndian.Uint64(sum[:8])
	if ino <= 1 {
		ino += 2
	}
	return ino
}

func (r *Root) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	named, err := r.names.List()
	if err != nil {
		return nil, syscall.EIO
	}
	entries := make([]fuse.DirEntry, 0, len(named))
	for _, n := range named {
		entries = append(entries, fuse.DirEntry{
			Name: n.Name,
			Mode: fuse.S_IFREG,
			Ino:  inoFor(n.Name),
		})
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (r *Root) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	entry, err := r.names.Get(name)
	if err != nil {
		if errors.Is(err, namespace.ErrNameNotFound) {
			return nil, syscall.ENOENT
		}
		return nil, syscall.EIO
	}
	node := &file{store: r.store, name: name, entry: entry}
	setFileAttr(&out.Attr, entry)
	child := r.NewInode(ctx, node, fs.StableAttr{Mode: fuse.S_IFREG, Ino: inoFor(name)})
	return child, fs.OK
}

func (r *Root) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = fuse.S_IFDIR | 0555
	return fs.OK
}

func setFileAttr(attr *fuse.Attr, entry namespace.Entry) {
	attr.Mode = fuse.S_IFREG | 0444
	attr.Size = uint64(entry.Length)
	t := entry.Updated
	attr.SetTimes(&t, &t, &t)
}

// file is a regular file inode for one registered name.
type file struct {
	fs.Inode

	store eris.Store
	name  string
	entry namespace.Entry
}

var (
	_ fs.NodeOpener    = (*file)(nil)
	_ fs.NodeGetattrer = (*file)(nil)
)

func (f *file) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	setFileAttr(&out.Attr, f.entry)
	return fs.OK
}

func (f *file) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&syscall.O_ACCMODE != syscall.O_RDONLY {
		return nil, 0, syscall.EROFS
	}
	c, err := f.entry.Capability()
	if err != nil {
		return nil, 0, syscall.EIO
	}
	r, err := eris.NewReader(f.store, c)
	if err != nil {
		return nil, 0, syscall.EIO
	}
	// Content behind a capability never changes, keep kernel pages.
	return &handle{r: r}, fuse.FOPEN_KEEP_CACHE, fs.OK
}

// handle serves reads for one open file. The kernel issues reads on a
// handle concurrently, so they are serialised over the reader.
type handle struct {
	mu sync.Mutex
	r  *eris.Reader
}

var _ fs.FileReader = (*handle)(nil)

func (h *handle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, err := h.r.ReadAt(ctx, dest, off)
	if err != nil && err != io.EOF {
		return nil, syscall.EIO
	}
	return fuse.ReadResultData(dest[:n]), fs.OK
}

// MountOptions returns the options the gateway mounts with.
func MountOptions() *fs.Options {
	attrTimeout := time.Minute
	return &fs.Options{
		AttrTimeout:  &attrTimeout,
		EntryTimeout: &attrTimeout,
		MountOptions: fuse.MountOptions{
			FsName:        "eris",
			Name:          "eris",
			Options:       []string{"ro"},
			DisableXAttrs: true,
		},
	}
}
