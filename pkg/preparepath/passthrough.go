package preparepath

import (
	"github.com/shardfs/shard/pkg/applypath"
	"github.com/shardfs/shard/pkg/schema"
	"github.com/shardfs/shard/pkg/shardid"
)

// The handlers below carry no non-deterministic value for prepare to
// allocate — the caller already supplies every field the apply handler
// needs (proofs, offsets, block layouts) — so each one copies its
// arguments into the log entry unchanged and performs no checks.

func PrepareAddSpanCertify(file shardid.InodeId, offset uint64, proofs [][8]byte) (applypath.AddSpanCertify, error) {
	return applypath.AddSpanCertify{File: file, Offset: offset, Proofs: proofs}, nil
}

func PrepareAddSpanLocation(srcFile shardid.InodeId, srcOffset uint64, dstFile shardid.InodeId, dstOffset uint64, location uint8, blocks []schema.BlockLayout) (applypath.AddSpanLocation, error) {
	return applypath.AddSpanLocation{
		SrcFile: srcFile, SrcOffset: srcOffset, DstFile: dstFile, DstOffset: dstOffset,
		Location: location, Blocks: blocks,
	}, nil
}

func PrepareRemoveSpanInitiate(file shardid.InodeId) (applypath.RemoveSpanInitiate, error) {
	return applypath.RemoveSpanInitiate{File: file}, nil
}

func PrepareRemoveSpanCertify(file shardid.InodeId, offset uint64, proofs [][8]byte) (applypath.RemoveSpanCertify, error) {
	return applypath.RemoveSpanCertify{File: file, Offset: offset, Proofs: proofs}, nil
}
