// Package crc implements CRC32C (Castagnoli) checksumming with the
// combine/extend/XOR helpers the span and stripe checksum protocol needs:
// a span's overall crc is the length-weighted combine of its stripe crcs
// zero-extended to the full span size, so plain hash/crc32 alone is not
// enough — combining two already-computed CRCs of adjoining regions
// without re-hashing their bytes requires the standard GF(2) polynomial
// exponentiation trick (the same one zlib's crc32_combine uses), grounded
// on original_source/cpp/crc32c.
package crc

import "hash/crc32"

// Table is the Castagnoli polynomial table used throughout the shard for
// span, block and stripe checksums.
var Table = crc32.MakeTable(crc32.Castagnoli)

// Checksum computes the CRC32C of b.
func Checksum(b []byte) uint32 {
	return crc32.Checksum(b, Table)
}

// Update extends an in-progress CRC32C computation with more bytes,
// matching hash/crc32's incremental update semantics.
func Update(crc uint32, b []byte) uint32 {
	return crc32.Update(crc, Table, b)
}

const gf2Dim = 32

// castagnoliPolyReflected is the bit-reflected CRC32C polynomial, i.e. the
// GF(2) operator for shifting a single zero bit into the CRC.
const castagnoliPolyReflected = 0x82F63B78

func gf2MatrixTimes(mat *[gf2Dim]uint32, vec uint32) uint32 {
	var sum uint32
	for i := 0; vec != 0; i++ {
		if vec&1 != 0 {
			sum ^= mat[i]
		}
		vec >>= 1
	}
	return sum
}

func gf2MatrixSquare(square, mat *[gf2Dim]uint32) {
	for n := 0; n < gf2Dim; n++ {
		square[n] = gf2MatrixTimes(mat, mat[n])
	}
}

// Combine computes the CRC32C of the concatenation of two byte ranges
// given only their individual CRC32Cs and the length of the second range,
// without touching either range's bytes.
func Combine(crc1, crc2 uint32, len2 int64) uint32 {
	if len2 <= 0 {
		return crc1
	}

	var odd, even [gf2Dim]uint32

	odd[0] = castagnoliPolyReflected
	row := uint32(1)
	for n := 1; n < gf2Dim; n++ {
		odd[n] = row
		row <<= 1
	}

	gf2MatrixSquare(&even, &odd) // even = combine 2 zero bits
	gf2MatrixSquare(&odd, &even) // odd  = combine 4 zero bits

	crc1n := crc1
	n := len2
	for {
		gf2MatrixSquare(&even, &odd)
		if n&1 != 0 {
			crc1n = gf2MatrixTimes(&even, crc1n)
		}
		n >>= 1
		if n == 0 {
			break
		}
		gf2MatrixSquare(&odd, &even)
		if n&1 != 0 {
			crc1n = gf2MatrixTimes(&odd, crc1n)
		}
		n >>= 1
		if n == 0 {
			break
		}
	}

	return crc1n ^ crc2
}

// zeroChunk is reused as a source of zero bytes for ExtendZeros so that
// extending by a large n does not allocate proportionally to n.
var zeroChunk = make([]byte, 64*1024)

// ExtendZeros returns the CRC32C that results from appending n zero bytes
// to a region whose CRC32C is crc. hash/crc32's CRC is not invariant under
// GF(2) zero-shift the way a raw (non-inverted) CRC is, so this walks the
// n zero bytes in reusable chunks via Update rather than trying to fold
// Combine's zero-operator matrices through the package's pre/post
// inversion — simpler and exactly correct, at the cost of O(n/chunk) hash
// calls instead of O(log n) matrix squarings.
func ExtendZeros(crc uint32, n int64) uint32 {
	for n > 0 {
		step := n
		if step > int64(len(zeroChunk)) {
			step = int64(len(zeroChunk))
		}
		crc = Update(crc, zeroChunk[:step])
		n -= step
	}
	return crc
}

// XOR combines two independently-computed CRC32Cs over disjoint,
// identical-length regions, as required when verifying that a
// Reed-Solomon parity block's crc equals the XOR of the corresponding
// data-block crcs stripe by stripe.
func XOR(a, b uint32) uint32 {
	return a ^ b
}
