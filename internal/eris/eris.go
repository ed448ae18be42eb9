// Package eris implements the ERIS encoding (Encoding for Robust
// Immutable Storage). Content is padded, split into fixed-size blocks,
// encrypted, and arranged into a fixed-arity tree of interior node
// blocks. The whole tree is addressed by a compact capability: whoever
// holds it can fetch, verify, and decrypt the content from any block
// store; whoever does not sees only opaque ciphertext. The encoding is
// convergent: the same content with the same secret produces the same
// blocks and the same capability.
package eris

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrBlockNotFound = errors.New("block not found")
	ErrHashMismatch  = errors.New("block hash mismatch")
	ErrBadPadding    = errors.New("invalid block padding")
	ErrBadCapability = errors.New("invalid capability")
	ErrBadReference  = errors.New("invalid block reference")
	ErrBadBlockSize  = errors.New("invalid block size")
)

// BlockSize is the size of every block of one encoded stream. Only the
// two sizes below are encodable.
type BlockSize int

const (
	BlockSize1KiB  BlockSize = 1024
	BlockSize32KiB BlockSize = 32768
)

// Block size codes are the base-2 logarithm of the size.
const (
	blockSizeCode1KiB  = 0x0a
	blockSizeCode32KiB = 0x0f
)

// Valid reports whether bs is one of the two encodable block sizes.
func (bs BlockSize) Valid() bool {
	return bs == BlockSize1KiB || bs == BlockSize32KiB
}

// Arity is the number of child pairs an interior node block holds.
func (bs BlockSize) Arity() int { return int(bs) / PairSize }

func (bs BlockSize) String() string {
	switch bs {
	case BlockSize1KiB:
		return "1KiB"
	case BlockSize32KiB:
		return "32KiB"
	}
	return "invalid"
}

func (bs BlockSize) code() byte {
	if bs == BlockSize32KiB {
		return blockSizeCode32KiB
	}
	return blockSizeCode1KiB
}

func blockSizeFromCode(code byte) (BlockSize, error) {
	switch code {
	case blockSizeCode1KiB:
		return BlockSize1KiB, nil
	case blockSizeCode32KiB:
		return BlockSize32KiB, nil
	}
	return 0, fmt.Errorf("block size code %#02x: %w", code, ErrBadCapability)
}

// Sizes of the fixed-width values making up an encoded tree.
const (
	ReferenceSize  = 32
	KeySize        = 32
	SecretSize     = 32
	PairSize       = ReferenceSize + KeySize
	CapabilitySize = 2 + PairSize
)

// Reference is the content address of one stored block: the
// BLAKE2b-256 digest of its ciphertext.
type Reference [ReferenceSize]byte

// String returns the unpadded base32 form used inside URNs and on the
// block server wire.
func (r Reference) String() string { return base32Codec.EncodeToString(r[:]) }

// Key decrypts exactly one block.
type Key [KeySize]byte

// String returns the key in unpadded base32. Keys are secrets; this is
// for tools the capability holder runs, not for logs.
func (k Key) String() string { return base32Codec.EncodeToString(k[:]) }

// Secret is the convergence salt mixed into every leaf key. The zero
// value is the public mode: anyone holding the same content derives
// the same blocks.
type Secret [SecretSize]byte

// Pair is a Reference followed by the Key for the block it addresses.
// Pairs are laid out back to back inside interior node blocks, so the
// byte image is also the wire format.
type Pair [PairSize]byte

func NewPair(r Reference, k Key) Pair {
	var p Pair
	copy(p[:ReferenceSize], r[:])
	copy(p[ReferenceSize:], k[:])
	return p
}

// Reference returns the address half of the pair.
func (p Pair) Reference() Reference { return Reference(p[:ReferenceSize]) }

// Key returns the decryption half of the pair.
func (p Pair) Key() Key { return Key(p[ReferenceSize:]) }

// IsZero reports whether every byte of the pair is zero, the encoding
// of an absent child inside an interior node block.
func (p Pair) IsZero() bool { return p == Pair{} }

// Store is the block store the encoder and reader operate against.
// Blocks are opaque ciphertext of exactly one block size, keyed by
// their reference. Implementations must be safe for concurrent use.
// Put is idempotent for a reference because references are
// content-derived; it may read block only for the duration of the
// call. Get returns a slice the caller owns.
type Store interface {
	// Get returns the block stored under ref, or an error wrapping
	// ErrBlockNotFound when the store does not hold it.
	Get(ctx context.Context, ref Reference) ([]byte, error)

	// Put stores block under ref.
	Put(ctx context.Context, ref Reference, block []byte) error

	// Close releases the resources held by the store.
	Close() error
}
