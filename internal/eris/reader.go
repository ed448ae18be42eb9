package eris

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// Reader provides random access to an encoded stream. Blocks are
// fetched, verified against their references, and decrypted on demand;
// the flat ordered list of leaf pairs is materialised from the
// interior nodes on first use. A Reader is not safe for concurrent
// use.
type Reader struct {
	store   Store
	cap     Capability
	pos     int64
	stopped bool

	leaves  []Pair
	length  int64
	lastIdx int
	last    []byte
}

// NewReader returns a reader positioned at the start of the stream
// described by c.
func NewReader(store Store, c Capability) (*Reader, error) {
	if !c.BlockSize.Valid() {
		return nil, fmt.Errorf("block size %d: %w", c.BlockSize, ErrBadBlockSize)
	}
	return &Reader{store: store, cap: c, length: -1, lastIdx: -1}, nil
}

// Capability returns the capability the reader was opened with.
func (r *Reader) Capability() Capability { return r.cap }

// init expands the interior nodes into the flat list of leaf pairs,
// left to right. Each node contributes its children up to the first
// all-zero pair slot.
func (r *Reader) init(ctx context.Context) error {
	if r.leaves != nil {
		return nil
	}
	list := []Pair{r.cap.Root}
	for level := int(r.cap.Level); level >= 1; level-- {
		next := make([]Pair, 0, len(list)*r.cap.BlockSize.Arity())
		for _, p := range list {
			node, err := r.fetch(ctx, p, uint8(level))
			if err != nil {
				return err
			}
			for off := 0; off+PairSize <= len(node); off += PairSize {
				child := Pair(node[off : off+PairSize])
				if child.IsZero() {
					break
				}
				next = append(next, child)
			}
		}
		if len(next) == 0 {
			return fmt.Errorf("node at level %d has no children: %w", level, ErrBadCapability)
		}
		list = next
	}
	r.leaves = list
	return nil
}

// fetch gets one block, verifies it against its reference, and
// decrypts it at the given level.
func (r *Reader) fetch(ctx context.Context, p Pair, level uint8) ([]byte, error) {
	block, err := r.store.Get(ctx, p.Reference())
	if err != nil {
		return nil, fmt.Errorf("get block %s: %w", p.Reference(), err)
	}
	if err := verifyBlock(block, p.Reference(), r.cap.BlockSize); err != nil {
		return nil, err
	}
	return decryptBlock(block, p.Key(), level), nil
}

// leaf returns the decrypted content of leaf idx, unpadded when idx is
// the final leaf. The most recently decrypted leaf is kept so byte-wise
// consumers do not refetch it.
func (r *Reader) leaf(ctx context.Context, idx int) ([]byte, error) {
	if idx == r.lastIdx {
		return r.last, nil
	}
	blk, err := r.fetch(ctx, r.leaves[idx], 0)
	if err != nil {
		return nil, err
	}
	if idx == len(r.leaves)-1 {
		if blk, err = unpad(blk); err != nil {
			return nil, fmt.Errorf("leaf %s: %w", r.leaves[idx].Reference(), err)
		}
	}
	r.lastIdx = idx
	r.last = blk
	return blk, nil
}

// Read copies up to len(p) bytes from the current position, advancing
// it. At the end of the stream it returns io.EOF, and keeps doing so
// until the position is moved with Seek.
func (r *Reader) Read(ctx context.Context, p []byte) (int, error) {
	if r.stopped {
		return 0, io.EOF
	}
	if err := r.init(ctx); err != nil {
		return 0, err
	}
	n := 0
	for n < len(p) {
		blk, off, err := r.blockAt(ctx, r.pos)
		if err != nil {
			return n, err
		}
		if blk == nil || off >= len(blk) {
			r.stopped = true
			if n > 0 {
				return n, nil
			}
			return 0, io.EOF
		}
		c := copy(p[n:], blk[off:])
		n += c
		r.pos += int64(c)
	}
	return n, nil
}

// blockAt returns the decrypted leaf covering pos and the offset of
// pos within it. A nil block means pos is beyond the final leaf.
func (r *Reader) blockAt(ctx context.Context, pos int64) ([]byte, int, error) {
	idx := int(pos / int64(r.cap.BlockSize))
	if idx >= len(r.leaves) {
		return nil, 0, nil
	}
	blk, err := r.leaf(ctx, idx)
	if err != nil {
		return nil, 0, err
	}
	return blk, int(pos % int64(r.cap.BlockSize)), nil
}

// ReadAt reads len(p) bytes starting at off without moving the current
// position. It returns io.EOF when fewer than len(p) bytes remain,
// following the io.ReaderAt contract.
func (r *Reader) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative read offset %d", off)
	}
	if err := r.init(ctx); err != nil {
		return 0, err
	}
	n := 0
	for n < len(p) {
		blk, o, err := r.blockAt(ctx, off)
		if err != nil {
			return n, err
		}
		if blk == nil || o >= len(blk) {
			return n, io.EOF
		}
		c := copy(p[n:], blk[o:])
		n += c
		off += int64(c)
	}
	return n, nil
}

// ReadLine reads from the current position through the next '\n' or
// '\r'. The terminator is consumed but not included in the returned
// line. At the end of the stream the remaining bytes are returned
// together with io.EOF.
func (r *Reader) ReadLine(ctx context.Context) ([]byte, error) {
	if r.stopped {
		return nil, io.EOF
	}
	if err := r.init(ctx); err != nil {
		return nil, err
	}
	var line []byte
	for {
		blk, off, err := r.blockAt(ctx, r.pos)
		if err != nil {
			return line, err
		}
		if blk == nil || off >= len(blk) {
			r.stopped = true
			return line, io.EOF
		}
		rest := blk[off:]
		if i := bytes.IndexAny(rest, "\n\r"); i >= 0 {
			line = append(line, rest[:i]...)
			r.pos += int64(i) + 1
			return line, nil
		}
		line = append(line, rest...)
		r.pos += int64(len(rest))
	}
}

// Seek sets the position, clearing any end-of-stream latch. Seeking
// relative to the end computes the stream length, which fetches the
// final leaf.
func (r *Reader) Seek(ctx context.Context, offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = r.pos
	case io.SeekEnd:
		l, err := r.Length(ctx)
		if err != nil {
			return r.pos, err
		}
		base = l
	default:
		return r.pos, fmt.Errorf("invalid seek whence %d", whence)
	}
	npos := base + offset
	if npos < 0 {
		return r.pos, fmt.Errorf("invalid seek to %d", npos)
	}
	r.pos = npos
	r.stopped = false
	return npos, nil
}

// Position returns the current read position.
func (r *Reader) Position() int64 { return r.pos }

// Length returns the content length in bytes, fetching the final leaf
// to measure its unpadded tail the first time it is called.
func (r *Reader) Length(ctx context.Context) (int64, error) {
	if r.length >= 0 {
		return r.length, nil
	}
	if err := r.init(ctx); err != nil {
		return 0, err
	}
	last, err := r.leaf(ctx, len(r.leaves)-1)
	if err != nil {
		return 0, err
	}
	r.length = int64(len(r.leaves)-1)*int64(r.cap.BlockSize) + int64(len(last))
	return r.length, nil
}

// StdReader binds a Reader to a context so it can be used where the
// standard io reader interfaces are expected. It is as safe for
// concurrent use as the Reader it wraps, which is to say not at all;
// callers needing shared access wrap it in their own lock.
type StdReader struct {
	ctx context.Context
	r   *Reader
}

var (
	_ io.ReadSeeker = (*StdReader)(nil)
	_ io.ReaderAt   = (*StdReader)(nil)
)

// Std returns the reader bound to ctx as a standard io reader.
func (r *Reader) Std(ctx context.Context) *StdReader {
	return &StdReader{ctx: ctx, r: r}
}

func (s *StdReader) Read(p []byte) (int, error) { return s.r.Read(s.ctx, p) }

func (s *StdReader) Seek(offset int64, whence int) (int64, error) {
	return s.r.Seek(s.ctx, offset, whence)
}

func (s *StdReader) ReadAt(p []byte, off int64) (int, error) {
	return s.r.ReadAt(s.ctx, p, off)
}
