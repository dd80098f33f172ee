// Package schema supplies typed key/value views over the raw byte slices
// stored in each of the seven column families §3 defines. Every key
// builder here enforces the field layout and big-endian byte order that
// makes lexicographic byte comparison imply the intended semantic
// ordering (directory grouping, current-before-snapshot, hash then name
// then descending creation time). This is the same "keyXxx() function per
// namespace" convention pkg/store/metadata/badger/keys.go uses, adapted
// from that store's UUID/string keys to this shard's fixed-width,
// big-endian integer keys — required here because ordering, not just
// uniqueness, is load-bearing (range scans over directories and spans
// depend on it).
package schema

import (
	"encoding/binary"

	"github.com/shardfs/shard/internal/codec"
	"github.com/shardfs/shard/pkg/shardid"
)

// MetadataKey enumerates the small number of singleton keys in the
// metadata column family.
type MetadataKey byte

const (
	MetadataKeyShardInfo MetadataKey = iota
	MetadataKeyNextFileId
	MetadataKeyNextSymlinkId
	MetadataKeyNextBlockId
	MetadataKeyLastAppliedLogIndex
)

// EncodeMetadataKey returns the raw key bytes for a metadata singleton.
func EncodeMetadataKey(k MetadataKey) []byte {
	return []byte{byte(k)}
}

// InodeKey is the raw key for the directories/files/transientFiles
// families: an 8-byte big-endian inode id.
func InodeKey(id shardid.InodeId) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b[:]
}

// DecodeInodeKey parses an InodeKey back into an InodeId.
func DecodeInodeKey(b []byte) (shardid.InodeId, error) {
	if len(b) != 8 {
		return 0, &codec.ErrShortBuffer{Field: "InodeKey", Need: 8, Have: len(b)}
	}
	return shardid.InodeId(binary.BigEndian.Uint64(b)), nil
}

// EdgeKey identifies one edge: a current edge (Current==true, CreationTime
// ignored) or a snapshot edge (Current==false, CreationTime set).
//
// Wire layout (bit-exact, per §6):
//
//	8 bytes  (dir-id<<1 | current-bit), big-endian
//	8 bytes  name hash, big-endian
//	1 byte   name length
//	N bytes  name
//	8 bytes  creation time, big-endian, stored as ^t (snapshot only)
//
// Storing ^t (bitwise complement) for the creation time makes ascending
// byte order sort newer snapshot edges first, matching §6's requirement
// that forward iteration see newer times before older ones without a
// reverse iterator.
type EdgeKey struct {
	DirId        shardid.InodeId
	Current      bool
	NameHash     uint64
	Name         string
	CreationTime shardid.TernTime // only meaningful when !Current
}

// dirCurrentField packs (dir-id, current-bit) so that, for a fixed
// directory, current edges sort before snapshot edges in ascending byte
// order: the current bit is 0 for current edges and 1 for snapshot ones.
func dirCurrentField(dirID shardid.InodeId, current bool) uint64 {
	bit := uint64(1)
	if current {
		bit = 0
	}
	return (uint64(dirID) << 1) | bit
}

// Encode serializes the key. Names longer than codec.MaxShortStringLen
// are rejected by the caller before this is reached (prepare-path
// validation); Encode itself trusts its input, matching every other
// schema encoder in this package.
func (k EdgeKey) Encode() []byte {
	w := codec.NewWriter(8 + 8 + 1 + len(k.Name) + 8)
	w.PutUint64(beSwap64(dirCurrentField(k.DirId, k.Current)))
	w.PutUint64(beSwap64(k.NameHash))
	w.PutUint8(uint8(len(k.Name)))
	w.PutFixed([]byte(k.Name))
	if !k.Current {
		w.PutUint64(beSwap64(^uint64(k.CreationTime)))
	}
	return w.Bytes()
}

// beSwap64 turns a little-endian codec.Writer append into a big-endian
// field: codec.Writer only knows how to append little-endian scalars, so
// keys that must sort in big-endian byte order swap the value's byte
// order before handing it to PutUint64. This keeps codec itself free of
// an endianness switch while still letting EdgeKey/SpanKey/etc. get the
// big-endian-on-the-wire layout §6 mandates.
func beSwap64(v uint64) uint64 {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return binary.LittleEndian.Uint64(b[:])
}

// DecodeEdgeKey parses raw edge-family key bytes back into an EdgeKey.
func DecodeEdgeKey(raw []byte) (EdgeKey, error) {
	var k EdgeKey
	if len(raw) < 8+8+1 {
		return k, &codec.ErrShortBuffer{Field: "EdgeKey", Need: 17, Have: len(raw)}
	}
	dirCurrent := binary.BigEndian.Uint64(raw[0:8])
	k.DirId = shardid.InodeId(dirCurrent >> 1)
	k.Current = dirCurrent&1 == 0
	k.NameHash = binary.BigEndian.Uint64(raw[8:16])
	nameLen := int(raw[16])
	if len(raw) < 17+nameLen {
		return k, &codec.ErrShortBuffer{Field: "EdgeKey.Name", Need: 17 + nameLen, Have: len(raw)}
	}
	k.Name = string(raw[17 : 17+nameLen])
	rest := raw[17+nameLen:]
	if !k.Current {
		if len(rest) < 8 {
			return k, &codec.ErrShortBuffer{Field: "EdgeKey.CreationTime", Need: 8, Have: len(rest)}
		}
		k.CreationTime = shardid.TernTime(^binary.BigEndian.Uint64(rest[0:8]))
	}
	return k, nil
}

// EdgeDirPrefix returns the key prefix matching every edge (current or
// snapshot, per the current flag) for one directory — used to bound a
// full-directory scan.
func EdgeDirPrefix(dirID shardid.InodeId, current bool) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], dirCurrentField(dirID, current))
	return b[:]
}

// EdgeNamePrefix returns the key prefix matching every snapshot edge for
// one (dir, name-hash, name) tuple, used by the "same-name" full-read-dir
// mode and by the create-current-edge subroutine's "greatest snapshot
// edge for this name" seek.
func EdgeNamePrefix(dirID shardid.InodeId, nameHash uint64, name string) []byte {
	w := codec.NewWriter(8 + 8 + 1 + len(name))
	w.PutUint64(beSwap64(dirCurrentField(dirID, false)))
	w.PutUint64(beSwap64(nameHash))
	w.PutUint8(uint8(len(name)))
	w.PutFixed([]byte(name))
	return w.Bytes()
}

// SpanKey is the raw key for the spans family: 8-byte file id, 8-byte
// byte offset, both big-endian.
func SpanKey(fileID shardid.InodeId, offset uint64) []byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], uint64(fileID))
	binary.BigEndian.PutUint64(b[8:16], offset)
	return b[:]
}

// DecodeSpanKey parses a SpanKey back into (fileID, offset).
func DecodeSpanKey(raw []byte) (shardid.InodeId, uint64, error) {
	if len(raw) != 16 {
		return 0, 0, &codec.ErrShortBuffer{Field: "SpanKey", Need: 16, Have: len(raw)}
	}
	fileID := shardid.InodeId(binary.BigEndian.Uint64(raw[0:8]))
	offset := binary.BigEndian.Uint64(raw[8:16])
	return fileID, offset, nil
}

// SpanFilePrefix bounds an iterator to all spans of one file.
func SpanFilePrefix(fileID shardid.InodeId) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(fileID))
	return b[:]
}

// BlockServiceToFileKey is the raw key for the blockServicesToFiles
// family: 8-byte block-service id, 8-byte file id, both big-endian.
func BlockServiceToFileKey(bs shardid.BlockServiceId, fileID shardid.InodeId) []byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], uint64(bs))
	binary.BigEndian.PutUint64(b[8:16], uint64(fileID))
	return b[:]
}

// DecodeBlockServiceToFileKey parses the key back into its two ids.
func DecodeBlockServiceToFileKey(raw []byte) (shardid.BlockServiceId, shardid.InodeId, error) {
	if len(raw) != 16 {
		return 0, 0, &codec.ErrShortBuffer{Field: "BlockServiceToFileKey", Need: 16, Have: len(raw)}
	}
	bs := shardid.BlockServiceId(binary.BigEndian.Uint64(raw[0:8]))
	fileID := shardid.InodeId(binary.BigEndian.Uint64(raw[8:16]))
	return bs, fileID, nil
}

// BlockServicePrefix bounds an iterator to all reverse-index entries for
// one block service, used by block-service-files pagination.
func BlockServicePrefix(bs shardid.BlockServiceId) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(bs))
	return b[:]
}
