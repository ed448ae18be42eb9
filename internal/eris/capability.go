package eris

import "fmt"

// Capability is the root descriptor of one encoded stream: everything
// needed to fetch, verify, and decrypt the content from a block store.
// Level 0 means the root block is itself a leaf; level n >= 1 means
// the root is an interior node n levels above the leaves.
type Capability struct {
	BlockSize BlockSize
	Level     uint8
	Root      Pair
}

// Bytes returns the 66-byte binary layout: block-size code, level,
// root reference, root key.
func (c Capability) Bytes() []byte {
	b := make([]byte, CapabilitySize)
	b[0] = c.BlockSize.code()
	b[1] = c.Level
	copy(b[2:], c.Root[:])
	return b
}

// CapabilityFromBytes parses the 66-byte binary layout produced by
// Bytes. Any level byte is accepted; an unknown block-size code is an
// error.
func CapabilityFromBytes(b []byte) (Capability, error) {
	if len(b) != CapabilitySize {
		return Capability{}, fmt.Errorf("capability length %d: %w", len(b), ErrBadCapability)
	}
	bs, err := blockSizeFromCode(b[0])
	if err != nil {
		return Capability{}, err
	}
	return Capability{BlockSize: bs, Level: b[1], Root: Pair(b[2:])}, nil
}
