package eris

import (
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20"
)

// nonceFor builds the 12-byte ChaCha20 nonce for a block at the given
// tree level: all zero except the final byte, which carries the level.
// Leaves are level 0 and therefore use the all-zero nonce.
func nonceFor(level uint8) []byte {
	nonce := make([]byte, chacha20.NonceSize)
	nonce[chacha20.NonceSize-1] = level
	return nonce
}

// xorKeystream XORs the ChaCha20 keystream for (key, level) over src
// into dst, which may be the same slice. Applying it twice restores
// the input.
func xorKeystream(dst, src []byte, key Key, level uint8) {
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonceFor(level))
	if err != nil {
		panic(err) // key and nonce lengths are fixed
	}
	c.XORKeyStream(dst, src)
}

// deriveKey computes the convergent block key: the keyed BLAKE2b-256
// of the plaintext block under the secret. Interior nodes pass the
// zero secret.
func deriveKey(secret Secret, plaintext []byte) Key {
	h, err := blake2b.New256(secret[:])
	if err != nil {
		panic(err)
	}
	h.Write(plaintext)
	var k Key
	h.Sum(k[:0])
	return k
}

// ReferenceOf returns the content address of a block: the unkeyed
// BLAKE2b-256 digest of its bytes. The block must be exactly one of
// the two valid block sizes.
func ReferenceOf(block []byte) (Reference, error) {
	if !BlockSize(len(block)).Valid() {
		return Reference{}, fmt.Errorf("block length %d: %w", len(block), ErrBadBlockSize)
	}
	return Reference(blake2b.Sum256(block)), nil
}

// encryptBlock encrypts a full plaintext block in place at the given
// level and returns the pair addressing the resulting ciphertext.
func encryptBlock(block []byte, secret Secret, level uint8) Pair {
	key := deriveKey(secret, block)
	xorKeystream(block, block, key, level)
	return NewPair(Reference(blake2b.Sum256(block)), key)
}

// decryptBlock reverses encryptBlock into a fresh buffer, leaving the
// fetched ciphertext intact.
func decryptBlock(block []byte, key Key, level uint8) []byte {
	plain := make([]byte, len(block))
	xorKeystream(plain, block, key, level)
	return plain
}

// verifyBlock checks a fetched block against the reference it was
// requested under.
func verifyBlock(block []byte, ref Reference, bs BlockSize) error {
	if len(block) != int(bs) {
		return fmt.Errorf("block %s has length %d: %w", ref, len(block), ErrHashMismatch)
	}
	if Reference(blake2b.Sum256(block)) != ref {
		return fmt.Errorf("block %s: %w", ref, ErrHashMismatch)
	}
	return nil
}

// pad writes the padding sentinel into block: 0x80 at offset n, zeros
// to the end. Bytes before n are left untouched.
func pad(block []byte, n int) {
	block[n] = 0x80
	clear(block[n+1:])
}

// unpad strips the padding of the final leaf of a stream: trailing
// zeros down to a mandatory 0x80 sentinel, which is removed as well.
func unpad(block []byte) ([]byte, error) {
	i := len(block) - 1
	for i >= 0 && block[i] == 0 {
		i--
	}
	if i < 0 || block[i] != 0x80 {
		return nil, ErrBadPadding
	}
	return block[:i], nil
}
