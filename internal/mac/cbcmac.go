// Package mac implements the shard's deterministic CBC-MAC over a fixed
// 128-bit key, used for transient-file cookies, per-block write/erase
// certificates and proofs, and signed-message integrity tags.
//
// This is deliberately built directly on crypto/aes + crypto/cipher
// rather than a third-party MAC/AEAD library: every keyed-hash library in
// the example pool (golang.org/x/crypto's hmac-adjacent packages, the
// blake2/ed25519 packages bazil-bazil depends on) implements a different
// primitive — HMAC or a signature scheme — with different determinism and
// key-size properties than the raw CBC-MAC this protocol specifies. Using
// one of those would silently change the wire format. See DESIGN.md for
// the corresponding standard-library justification entry.
package mac

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// KeySize is the fixed 128-bit key size CBC-MAC operates under.
const KeySize = 16

// TagSize is the size of a CBC-MAC tag as emitted by Sum: the last cipher
// block of the CBC chain, truncated to 8 bytes for cookies/certificates
// per the wire format in §6, or returned full-width via SumFull for
// signed-message integrity tags that need the whole block.
const TagSize = 8

// Key is a validated 128-bit CBC-MAC key.
type Key [KeySize]byte

// NewKey validates and wraps a 16-byte key.
func NewKey(b []byte) (Key, error) {
	var k Key
	if len(b) != KeySize {
		return k, fmt.Errorf("mac: key must be %d bytes, got %d", KeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// SumFull computes the raw 16-byte CBC-MAC of msg under key: encrypt msg
// (PKCS#7 padded to the AES block size) in CBC mode with a zero IV, and
// take the final ciphertext block.
func SumFull(key Key, msg []byte) [aes.BlockSize]byte {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		// key is always KeySize==16 bytes, i.e. always a valid AES-128
		// key; aes.NewCipher can only fail on wrong key length.
		panic(err)
	}

	padded := pkcs7Pad(msg, aes.BlockSize)
	var iv [aes.BlockSize]byte
	enc := cipher.NewCBCEncrypter(block, iv[:])
	out := make([]byte, len(padded))
	enc.CryptBlocks(out, padded)

	var tag [aes.BlockSize]byte
	copy(tag[:], out[len(out)-aes.BlockSize:])
	return tag
}

// Sum computes the 8-byte truncated CBC-MAC used by cookies and
// certificates: the low 8 bytes of SumFull.
func Sum(key Key, msg []byte) [TagSize]byte {
	full := SumFull(key, msg)
	var tag [TagSize]byte
	copy(tag[:], full[:TagSize])
	return tag
}

// Verify reports whether tag is the correct 8-byte CBC-MAC of msg under
// key, using a constant-time comparison.
func Verify(key Key, msg []byte, tag [TagSize]byte) bool {
	got := Sum(key, msg)
	var diff byte
	for i := range got {
		diff |= got[i] ^ tag[i]
	}
	return diff == 0
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	padLen := blockSize - (len(b) % blockSize)
	out := make([]byte, len(b)+padLen)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}
