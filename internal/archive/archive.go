// Package archive packs blocks into a compressed stream for offline
// transport between stores. The stream is a sequence of records, each
// a 32-byte reference, a 4-byte big-endian block length, and the block
// itself, compressed as a whole with xz. Blocks are encrypted, so the
// archive leaks no more than the stores it moves between.
package archive

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"

	"eris/internal/eris"
	"eris/internal/store"
)

const headerSize = eris.ReferenceSize + 4

// Export writes every block of the store to w and returns the number
// of blocks written.
func Export(ctx context.Context, blocks store.Lister, w io.Writer) (int, error) {
	zw, err := xz.NewWriter(w)
	if err != nil {
		return 0, err
	}

	count := 0
	header := make([]byte, headerSize)
	err = blocks.List(ctx, func(ref eris.Reference, block []byte) error {
		copy(header, ref[:])
		binary.BigEndian.PutUint32(header[eris.ReferenceSize:], uint32(len(block)))
		if _, err := zw.Write(header); err != nil {
			return err
		}
		if _, err := zw.Write(block); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		zw.Close()
		return count, err
	}
	return count, zw.Close()
}

// Import reads an archive from r into the store, verifying each block
// against its recorded reference before storing it. It returns the
// number of blocks imported.
func Import(ctx context.Context, blocks eris.Store, r io.Reader) (int, error) {
	zr, err := xz.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}

	count := 0
	header := make([]byte, headerSize)
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if _, err := io.ReadFull(zr, header); err != nil {
			if err == io.EOF {
				return count, nil
			}
			return count, fmt.Errorf("read record header: %w", err)
		}
		ref := eris.Reference(header[:eris.ReferenceSize])
		length := binary.BigEndian.Uint32(header[eris.ReferenceSize:])
		// Reject bad lengths before allocating; the field is
		// attacker-controlled.
		if !eris.BlockSize(length).Valid() {
			return count, fmt.Errorf("block %s claims length %d: %w", ref, length, eris.ErrBadBlockSize)
		}

		block := make([]byte, length)
		if _, err := io.ReadFull(zr, block); err != nil {
			return count, fmt.Errorf("read block %s: %w", ref, err)
		}
		derived, err := eris.ReferenceOf(block)
		if err != nil {
			return count, fmt.Errorf("block %s: %w", ref, err)
		}
		if derived != ref {
			return count, fmt.Errorf("block %s does not match its reference: %w", ref, eris.ErrHashMismatch)
		}
		if err := blocks.Put(ctx, ref, block); err != nil {
			return count, err
		}
		count++
	}
}
