package eris

import (
	"context"
	"fmt"
)

// Ingest encodes a byte stream incrementally. Appended bytes fill a
// working buffer; each completed block is encrypted and put to the
// store before Append returns. Cap seals the stream as it stands and
// returns the root capability without disturbing later appends, so a
// caller can observe capabilities mid-stream. An Ingest is not safe
// for concurrent use; the store it writes to must be. After any error
// the ingest must be discarded.
type Ingest struct {
	store  Store
	bs     BlockSize
	secret Secret
	buf    []byte
	pos    int64
	leaves []Pair
}

// NewIngest returns an empty ingest writing blocks of the given size,
// salted with secret. The zero secret is the public convergence mode.
func NewIngest(store Store, bs BlockSize, secret Secret) (*Ingest, error) {
	if !bs.Valid() {
		return nil, fmt.Errorf("block size %d: %w", bs, ErrBadBlockSize)
	}
	return &Ingest{
		store:  store,
		bs:     bs,
		secret: secret,
		buf:    make([]byte, bs),
	}, nil
}

// BlockSize returns the block size the ingest encodes with.
func (in *Ingest) BlockSize() BlockSize { return in.bs }

// Position returns the number of bytes appended so far.
func (in *Ingest) Position() int64 { return in.pos }

// Append adds data to the stream, storing each leaf block as it
// completes.
func (in *Ingest) Append(ctx context.Context, data []byte) error {
	for len(data) > 0 {
		off := int(in.pos % int64(in.bs))
		n := copy(in.buf[off:], data)
		data = data[n:]
		in.pos += int64(n)
		if off+n == int(in.bs) {
			pair, err := in.putBlock(ctx, in.buf, in.secret, 0)
			if err != nil {
				return err
			}
			in.leaves = append(in.leaves, pair)
		}
	}
	return nil
}

// Cap pads and seals the stream as appended so far and returns its
// root capability. The working buffer is restored afterwards, so the
// ingest keeps accepting appends that extend the same stream.
func (in *Ingest) Cap(ctx context.Context) (Capability, error) {
	p := int(in.pos % int64(in.bs))
	pad(in.buf, p)
	padding, err := in.putBlock(ctx, in.buf, in.secret, 0)
	if err != nil {
		return Capability{}, err
	}
	// The buffer was encrypted in place; strip the keystream off again
	// so the plaintext prefix below p is writable by the next Append.
	xorKeystream(in.buf, in.buf, padding.Key(), 0)
	if len(in.leaves) == 0 {
		return Capability{BlockSize: in.bs, Level: 0, Root: padding}, nil
	}
	pairs := make([]Pair, 0, len(in.leaves)+1)
	pairs = append(pairs, in.leaves...)
	pairs = append(pairs, padding)
	level := uint8(0)
	for len(pairs) > 1 {
		level++
		if pairs, err = in.putNodes(ctx, pairs, level); err != nil {
			return Capability{}, err
		}
	}
	return Capability{BlockSize: in.bs, Level: level, Root: pairs[0]}, nil
}

// putNodes packs one level of child pairs into interior node blocks
// and stores them, returning the pairs of the level above in order.
func (in *Ingest) putNodes(ctx context.Context, children []Pair, level uint8) ([]Pair, error) {
	arity := in.bs.Arity()
	out := make([]Pair, 0, (len(children)+arity-1)/arity)
	node := make([]byte, in.bs)
	for start := 0; start < len(children); start += arity {
		end := min(start+arity, len(children))
		n := 0
		for _, child := range children[start:end] {
			n += copy(node[n:], child[:])
		}
		clear(node[n:])
		pair, err := in.putBlock(ctx, node, Secret{}, level)
		if err != nil {
			return nil, err
		}
		out = append(out, pair)
	}
	return out, nil
}

// putBlock encrypts block in place at level and stores the ciphertext.
func (in *Ingest) putBlock(ctx context.Context, block []byte, secret Secret, level uint8) (Pair, error) {
	pair := encryptBlock(block, secret, level)
	if err := in.store.Put(ctx, pair.Reference(), block); err != nil {
		return Pair{}, fmt.Errorf("put block %s: %w", pair.Reference(), err)
	}
	return pair, nil
}
