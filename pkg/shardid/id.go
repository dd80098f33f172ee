// Package shardid defines the identifier types shared across the shard:
// inode ids, block ids, block-service ids and the shard's own wall-clock
// timestamp type, along with the bit-packing rules that tie an id to the
// shard that owns it.
package shardid

import "fmt"

// ShardId identifies one of the disjoint metadata shards. It is embedded
// as the low byte of every InodeId and BlockId the shard allocates.
type ShardId uint8

// InodeType discriminates the three kinds of inode this shard tracks.
type InodeType uint8

const (
	InodeTypeFile InodeType = iota
	InodeTypeDirectory
	InodeTypeSymlink
)

func (t InodeType) String() string {
	switch t {
	case InodeTypeFile:
		return "FILE"
	case InodeTypeDirectory:
		return "DIRECTORY"
	case InodeTypeSymlink:
		return "SYMLINK"
	default:
		return fmt.Sprintf("InodeType(%d)", uint8(t))
	}
}

// InodeId packs (type:2, shard:8, counter:54) into 64 bits, low bit first:
//
//	bits [0:8)   shard id
//	bits [8:62)  counter
//	bits [62:64) type
//
// The shard occupies the low byte, so successive ids for the same
// (type, shard) differ by 0x100: the counter grows by one in its own
// field, which starts at bit 8. See NewInodeId / NextInodeId.
type InodeId uint64

// RootDirInodeId is the well-known root directory inode: a DIRECTORY with
// shard 0 and counter 0, owned by no directory.
const RootDirInodeId InodeId = InodeId(uint64(InodeTypeDirectory) << inodeTypeShift)

const (
	inodeTypeBits     = 2
	inodeShardBits    = 8
	inodeCounterBits  = 54
	inodeCounterShift = inodeShardBits
	inodeTypeShift    = inodeShardBits + inodeCounterBits
	inodeTypeMask     = (uint64(1) << inodeTypeBits) - 1
	inodeShardMask    = (uint64(1) << inodeShardBits) - 1
	inodeCounterMask  = (uint64(1) << inodeCounterBits) - 1
)

// NewInodeId packs a type, shard and counter into an InodeId.
func NewInodeId(t InodeType, shard ShardId, counter uint64) InodeId {
	return InodeId(((uint64(t) & inodeTypeMask) << inodeTypeShift) |
		((counter & inodeCounterMask) << inodeCounterShift) |
		(uint64(shard) & inodeShardMask))
}

// Type extracts the inode type.
func (id InodeId) Type() InodeType {
	return InodeType((uint64(id) >> inodeTypeShift) & inodeTypeMask)
}

// Shard extracts the owning shard id.
func (id InodeId) Shard() ShardId {
	return ShardId(uint64(id) & inodeShardMask)
}

// Counter extracts the raw counter field (already shifted down).
func (id InodeId) Counter() uint64 {
	return (uint64(id) >> inodeCounterShift) & inodeCounterMask
}

// IsNull reports whether this is the zero id, used as NULL target/owner.
func (id InodeId) IsNull() bool {
	return id == 0
}

// NextInodeId returns the id that follows prev for the same (type, shard):
// prev's counter plus 1 in counter-field units, so the raw id advances by
// 0x100.
func NextInodeId(prev InodeId, t InodeType, shard ShardId) InodeId {
	return NewInodeId(t, shard, prev.Counter()+1)
}

func (id InodeId) String() string {
	return fmt.Sprintf("0x%016x", uint64(id))
}

// BlockServiceId is an opaque 64-bit identifier for a block service,
// assigned by an external registry this shard does not own.
type BlockServiceId uint64

// BlockId is a 64-bit block identifier. The low byte carries the owning
// shard id; the upper bits are derived from the allocation time so that
// ids are monotonically increasing with wall-clock time within a shard.
type BlockId uint64

const blockShardMask = 0xFF

// NewBlockId packs an allocation time and a per-allocation offset into a
// BlockId for the given shard. allocTimeNanos is masked to clear its own
// low byte before the shard id is OR'd in, and offset (0..255) is added on
// top so a single call site can allocate a contiguous run of ids that
// still respects the "≥ time & ~0xFF | shard" floor spec.md requires.
func NewBlockId(allocTimeNanos int64, shard ShardId, offset uint8) BlockId {
	base := uint64(allocTimeNanos) &^ blockShardMask
	return BlockId((base + uint64(offset)<<8) | uint64(shard))
}

// Shard extracts the owning shard id from a block id's low byte.
func (id BlockId) Shard() ShardId {
	return ShardId(uint64(id) & blockShardMask)
}

func (id BlockId) String() string {
	return fmt.Sprintf("0x%016x", uint64(id))
}

// TernTime is a 64-bit nanosecond wall-clock timestamp. Zero means
// "unset" except where a specific operation documents otherwise (e.g. a
// deletion snapshot edge's target creation policy).
type TernTime int64

// Unset is the zero TernTime, meaning "not set".
const Unset TernTime = 0

// Sub returns the difference t - other as a time.Duration-compatible
// nanosecond count.
func (t TernTime) Sub(other TernTime) int64 {
	return int64(t) - int64(other)
}

func (t TernTime) String() string {
	return fmt.Sprintf("%d", int64(t))
}
