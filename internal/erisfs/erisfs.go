// Package erisfs exposes a name registry as a read-only billy
// filesystem: one flat directory with a file per registered name,
// backed by decode-on-demand readers over a block store. It is the
// filesystem surface served by the NFS gateway.
package erisfs

import (
	"context"
	"errors"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"

	"eris/internal/eris"
	"eris/internal/namespace"
)

var (
	_ billy.Filesystem = (*FS)(nil)
	_ billy.Capable    = (*FS)(nil)
	_ billy.File       = (*File)(nil)
)

// FS is the read-only filesystem view. All mutating operations return
// billy.ErrReadOnly; content changes by tagging names in the registry,
// not through the filesystem.
type FS struct {
	store   eris.Store
	names   namespace.Namespace
	started time.Time
}

// New returns a filesystem over the given registry and block store.
func New(store eris.Store, names namespace.Namespace) *FS {
	return &FS{store: store, names: names, started: time.Now()}
}

// splitName reduces filename to a single path element. ok is false for
// paths below the root directory, which never exist here. The root
// itself is the empty name.
func splitName(filename string) (name string, ok bool) {
	name = strings.TrimPrefix(path.Clean("/"+filename), "/")
	if strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

func notExist(op, filename string) error {
	return &os.PathError{Op: op, Path: filename, Err: os.ErrNotExist}
}

func (f *FS) Create(filename string) (billy.File, error) {
	return nil, billy.ErrReadOnly
}

func (f *FS) Open(filename string) (billy.File, error) {
	return f.OpenFile(filename, os.O_RDONLY, 0)
}

func (f *FS) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, billy.ErrReadOnly
	}
	name, ok := splitName(filename)
	if !ok {
		return nil, notExist("open", filename)
	}
	if name == "" {
		return nil, &os.PathError{Op: "open", Path: filename, Err: os.ErrInvalid}
	}
	entry, err := f.names.Get(name)
	if err != nil {
		if errors.Is(err, namespace.ErrNameNotFound) {
			return nil, notExist("open", filename)
		}
		return nil, err
	}
	c, err := entry.Capability()
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: filename, Err: err}
	}
	r, err := eris.NewReader(f.store, c)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: filename, Err: err}
	}
	return &File{name: filename, r: r}, nil
}

func (f *FS) Stat(filename string) (os.FileInfo, error) {
	name, ok := splitName(filename)
	if !ok {
		return nil, notExist("stat", filename)
	}
	if name == "" {
		return fileInfo{name: "/", mode: os.ModeDir | 0555, modTime: f.started}, nil
	}
	entry, err := f.names.Get(name)
	if err != nil {
		if errors.Is(err, namespace.ErrNameNotFound) {
			return nil, notExist("stat", filename)
		}
		return nil, err
	}
	return entryInfo(name, entry), nil
}

func (f *FS) Lstat(filename string) (os.FileInfo, error) {
	return f.Stat(filename)
}

func (f *FS) ReadDir(p string) ([]os.FileInfo, error) {
	name, ok := splitName(p)
	if !ok {
		return nil, notExist("readdir", p)
	}
	if name != "" {
		if _, err := f.names.Get(name); err == nil {
			return nil, &os.PathError{Op: "readdir", Path: p, Err: os.ErrInvalid}
		}
		return nil, notExist("readdir", p)
	}
	named, err := f.names.List()
	if err != nil {
		return nil, err
	}
	infos := make([]os.FileInfo, 0, len(named))
	for _, n := range named {
		infos = append(infos, entryInfo(n.Name, n.Entry))
	}
	return infos, nil
}

func (f *FS) Rename(oldpath, newpath string) error { return billy.ErrReadOnly }

func (f *FS) Remove(filename string) error { return billy.ErrReadOnly }

func (f *FS) MkdirAll(filename string, perm os.FileMode) error { return billy.ErrReadOnly }

func (f *FS) Symlink(target, link string) error { return billy.ErrReadOnly }

func (f *FS) TempFile(dir, prefix string) (billy.File, error) {
	return nil, billy.ErrReadOnly
}

func (f *FS) Readlink(link string) (string, error) {
	return "", &os.PathError{Op: "readlink", Path: link, Err: os.ErrInvalid}
}

func (f *FS) Join(elem ...string) string { return path.Join(elem...) }

func (f *FS) Chroot(p string) (billy.Filesystem, error) {
	return chroot.New(f, p), nil
}

func (f *FS) Root() string { return "/" }

// Capabilities marks the filesystem read-only for callers that check
// before attempting writes.
func (f *FS) Capabilities() billy.Capability {
	return billy.ReadCapability | billy.SeekCapability
}

func entryInfo(name string, entry namespace.Entry) os.FileInfo {
	return fileInfo{name: name, size: entry.Length, mode: 0444, modTime: entry.Updated}
}

type fileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
}

func (fi fileInfo) Name() string       { return fi.name }
func (fi fileInfo) Size() int64        { return fi.size }
func (fi fileInfo) Mode() os.FileMode  { return fi.mode }
func (fi fileInfo) ModTime() time.Time { return fi.modTime }
func (fi fileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi fileInfo) Sys() any           { return nil }

// File is an open handle on one encoded stream. The NFS layer issues
// reads on a handle from multiple goroutines, so all operations are
// serialised over the underlying reader.
type File struct {
	name string
	mu   sync.Mutex
	r    *eris.Reader
}

func (f *File) Name() string { return f.name }

func (f *File) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.r.Read(context.Background(), p)
}

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.r.ReadAt(context.Background(), p, off)
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.r.Seek(context.Background(), offset, whence)
}

func (f *File) Write(p []byte) (int, error) { return 0, billy.ErrReadOnly }

func (f *File) Truncate(size int64) error { return billy.ErrReadOnly }

func (f *File) Close() error { return nil }

func (f *File) Lock() error { return nil }

func (f *File) Unlock() error { return nil }
