// Package xxh registers the directory name-hash modes. Every directory
// carries a HashMode byte selecting the function used to hash child names
// into the 8-byte name-hash field of an EdgeKey; today there is exactly
// one mode, XXH3_63, built on github.com/cespare/xxhash/v2 (the same
// package cockroachdb/pebble and this module's teacher, dittofs, both
// depend on for fast non-cryptographic hashing).
package xxh

import "github.com/cespare/xxhash/v2"

// HashMode identifies a directory name-hashing function.
type HashMode uint8

const (
	// HashModeXXH3_63 truncates xxhash.Sum64 to 63 bits, matching the
	// original shard's default hash mode for newly created directories.
	HashModeXXH3_63 HashMode = 1
)

// hashFunc is the signature every registered hash mode implements.
type hashFunc func(name []byte) uint64

var registry = map[HashMode]hashFunc{
	HashModeXXH3_63: xxh3_63,
}

// Sum hashes name under the given mode. It panics on an unregistered
// mode, since a directory's persisted HashMode byte is validated at write
// time (create-directory-inode) and must never reach here unrecognized —
// an unrecognized mode found here means on-disk corruption, not a
// request the caller could retry.
func Sum(mode HashMode, name []byte) uint64 {
	fn, ok := registry[mode]
	if !ok {
		panic("xxh: unregistered hash mode")
	}
	return fn(name)
}

// Valid reports whether mode is a registered hash mode.
func Valid(mode HashMode) bool {
	_, ok := registry[mode]
	return ok
}

// xxh3_63 truncates the 64-bit xxhash digest to 63 bits so the resulting
// name-hash always fits in the signed range used by EdgeKey ordering.
func xxh3_63(name []byte) uint64 {
	return xxhash.Sum64(name) & 0x7FFF_FFFF_FFFF_FFFF
}
