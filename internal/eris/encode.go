package eris

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// Encode reads r to the end, encodes the content, and returns the root
// capability.
func Encode(ctx context.Context, store Store, r io.Reader, bs BlockSize, secret Secret) (Capability, error) {
	in, err := NewIngest(store, bs, secret)
	if err != nil {
		return Capability{}, err
	}
	buf := make([]byte, in.BlockSize())
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if err := in.Append(ctx, buf[:n]); err != nil {
				return Capability{}, err
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Capability{}, fmt.Errorf("read content: %w", err)
		}
	}
	return in.Cap(ctx)
}

// EncodeBytes encodes content held in memory.
func EncodeBytes(ctx context.Context, store Store, content []byte, bs BlockSize, secret Secret) (Capability, error) {
	return Encode(ctx, store, bytes.NewReader(content), bs, secret)
}

// Decode fetches and decodes the complete content addressed by c.
func Decode(ctx context.Context, store Store, c Capability) ([]byte, error) {
	r, err := NewReader(store, c)
	if err != nil {
		return nil, err
	}
	l, err := r.Length(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]byte, l)
	if l == 0 {
		return out, nil
	}
	n, err := r.ReadAt(ctx, out, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if int64(n) != l {
		return nil, fmt.Errorf("decoded %d of %d bytes: %w", n, l, ErrHashMismatch)
	}
	return out, nil
}

// DecodeTo streams the content addressed by c into w, returning the
// number of bytes written.
func DecodeTo(ctx context.Context, store Store, c Capability, w io.Writer) (int64, error) {
	r, err := NewReader(store, c)
	if err != nil {
		return 0, err
	}
	return io.Copy(w, r.Std(ctx))
}
