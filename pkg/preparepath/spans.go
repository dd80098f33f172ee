package preparepath

import (
	"github.com/shardfs/shard/internal/crc"
	"github.com/shardfs/shard/pkg/applypath"
	"github.com/shardfs/shard/pkg/blockcache"
	"github.com/shardfs/shard/pkg/schema"
	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
)

// combinedCrc recomputes a span's overall crc from its per-stripe crcs,
// zero-extending the final stripe to whatever remains of size — the
// length-weighted combine described in §3.
func combinedCrc(stripeCrcs []uint32, cellSize uint32, size uint32) uint32 {
	var acc uint32
	remaining := int64(size)
	for i, c := range stripeCrcs {
		length := int64(cellSize)
		if i == len(stripeCrcs)-1 {
			length = remaining
		}
		acc = crc.Combine(acc, c, length)
		remaining -= length
	}
	return acc
}

// validateParity checks the mirrored-or-XOR parity property from §3
// against the caller-declared per-block crcs: for mirrored spans
// (data-blocks == 1) every block carries the same crc; for general
// Reed-Solomon, the first parity block's crc equals the XOR of the
// data blocks' crcs.
func validateParity(parity schema.Parity, blockCrcs []uint32) error {
	if len(blockCrcs) != parity.Blocks() {
		return shardstore.NewError(shardstore.ErrorCodeBadSpanBody, "block crc count does not match parity")
	}
	if parity.Mirrored() {
		want := blockCrcs[0]
		for _, c := range blockCrcs {
			if c != want {
				return shardstore.NewError(shardstore.ErrorCodeBadSpanBody, "mirrored blocks disagree on crc")
			}
		}
		return nil
	}
	var xor uint32
	for _, c := range blockCrcs[:parity.DataBlocks] {
		xor ^= c
	}
	if xor != blockCrcs[parity.DataBlocks] {
		return shardstore.NewError(shardstore.ErrorCodeBadSpanBody, "parity block crc does not match data xor")
	}
	return nil
}

// AddSpanAtLocationRequest is the caller-supplied request for a new
// blocked span, before block services or block ids have been picked.
type AddSpanAtLocationRequest struct {
	File             shardid.InodeId
	Offset           uint64
	Size             uint32
	Parity           schema.Parity
	Stripes          uint32
	CellSize         uint32
	StorageClass     blockcache.StorageClass
	Location         uint8
	BlockCrcs        []uint32
	StripeCrcs       []uint32
	SpanCrc          uint32
	BlacklistIds     []shardid.BlockServiceId
	BlacklistDomains []string
}

// PrepareAddSpanAtLocationInitiate validates the span body per §4.2,
// picks block services and freshly allocates block ids, and freezes them
// into a log entry so replaying it never re-picks anything.
func PrepareAddSpanAtLocationInitiate(cache blockcache.Snapshot, store *shardstore.Store, snap *shardstore.ReadSnapshot, req AddSpanAtLocationRequest, now shardid.TernTime) (applypath.AddSpanAtLocationInitiate, error) {
	var e applypath.AddSpanAtLocationInitiate
	if req.File.Type() == shardid.InodeTypeDirectory {
		return e, shardstore.NewError(shardstore.ErrorCodeTypeIsDirectory, "")
	}
	if err := validateParity(req.Parity, req.BlockCrcs); err != nil {
		return e, err
	}
	if combinedCrc(req.StripeCrcs, req.CellSize, req.Size) != req.SpanCrc {
		return e, shardstore.NewError(shardstore.ErrorCodeBadSpanBody, "span crc does not match stripe crcs")
	}

	blockServices, err := SelectBlockServices(cache, snap, BlockServiceSelection{
		Location:         req.Location,
		StorageClass:     req.StorageClass,
		Parity:           req.Parity,
		BlacklistIds:     req.BlacklistIds,
		BlacklistDomains: req.BlacklistDomains,
		ReferenceFile:    req.File,
	}, now)
	if err != nil {
		return e, err
	}
	blockIds := store.AllocateBlockIds(now, len(blockServices))

	return applypath.AddSpanAtLocationInitiate{
		File:                req.File,
		Offset:              req.Offset,
		Size:                req.Size,
		Parity:              req.Parity,
		Stripes:             req.Stripes,
		CellSize:            req.CellSize,
		StorageClass:        uint8(req.StorageClass),
		Location:            req.Location,
		PickedBlockServices: blockServices,
		PickedBlockIds:      blockIds,
		StripeCrcs:          req.StripeCrcs,
		SpanCrc:             req.SpanCrc,
	}, nil
}

// PrepareAddInlineSpan validates an inline span's crc against its body
// before handing the request to the apply path unchanged; inline spans
// carry no non-deterministic value for prepare to allocate.
func PrepareAddInlineSpan(file shardid.InodeId, offset uint64, body []byte, declaredCrc uint32) (applypath.AddInlineSpan, error) {
	var e applypath.AddInlineSpan
	if file.Type() == shardid.InodeTypeDirectory {
		return e, shardstore.NewError(shardstore.ErrorCodeTypeIsDirectory, "")
	}
	if crc.Checksum(body) != declaredCrc {
		return e, shardstore.NewError(shardstore.ErrorCodeBadSpanBody, "inline body crc mismatch")
	}
	return applypath.AddInlineSpan{File: file, Offset: offset, Size: uint32(len(body)), Body: body, Crc: declaredCrc}, nil
}
