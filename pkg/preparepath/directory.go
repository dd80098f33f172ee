package preparepath

import (
	"github.com/shardfs/shard/pkg/applypath"
	"github.com/shardfs/shard/pkg/schema"
	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
)

// PrepareCreateDirectoryInode stamps the current wall clock as the new
// directory's mtime; hash-mode selection is fixed (XXH3_63 is the only
// registered mode) rather than caller-chosen.
func PrepareCreateDirectoryInode(id, owner shardid.InodeId, info []schema.DirectoryInfoEntry, now shardid.TernTime) (applypath.CreateDirectoryInode, error) {
	if err := validateType(id, shardid.InodeTypeDirectory); err != nil {
		return applypath.CreateDirectoryInode{}, err
	}
	return applypath.CreateDirectoryInode{Id: id, Owner: owner, Info: info, Now: now}, nil
}

func PrepareSetDirectoryInfo(dir shardid.InodeId, info []schema.DirectoryInfoEntry, now shardid.TernTime) (applypath.SetDirectoryInfo, error) {
	if err := validateType(dir, shardid.InodeTypeDirectory); err != nil {
		return applypath.SetDirectoryInfo{}, err
	}
	return applypath.SetDirectoryInfo{Dir: dir, Info: info, Now: now}, nil
}

func PrepareSetDirectoryOwner(dir, owner shardid.InodeId, now shardid.TernTime) (applypath.SetDirectoryOwner, error) {
	if err := validateType(dir, shardid.InodeTypeDirectory); err != nil {
		return applypath.SetDirectoryOwner{}, err
	}
	return applypath.SetDirectoryOwner{Dir: dir, Owner: owner, Now: now}, nil
}

func PrepareRemoveDirectoryOwner(dir shardid.InodeId, now shardid.TernTime) (applypath.RemoveDirectoryOwner, error) {
	if err := validateType(dir, shardid.InodeTypeDirectory); err != nil {
		return applypath.RemoveDirectoryOwner{}, err
	}
	return applypath.RemoveDirectoryOwner{Dir: dir, Now: now}, nil
}

// PrepareCreateLockedCurrentEdge validates the name and freezes the
// locker's chosen old-creation-time and the current wall clock, since the
// apply-side subroutine treats OldCreation as the caller's idempotency key.
func PrepareCreateLockedCurrentEdge(dir shardid.InodeId, name string, target shardid.InodeId, oldCreation, now shardid.TernTime) (applypath.CreateLockedCurrentEdge, error) {
	var e applypath.CreateLockedCurrentEdge
	if err := validateType(dir, shardid.InodeTypeDirectory); err != nil {
		return e, err
	}
	if err := validateName(name); err != nil {
		return e, err
	}
	return applypath.CreateLockedCurrentEdge{Dir: dir, Name: name, Target: target, OldCreation: oldCreation, Now: now}, nil
}

func PrepareLockCurrentEdge(dir shardid.InodeId, name string, now shardid.TernTime) (applypath.LockCurrentEdge, error) {
	var e applypath.LockCurrentEdge
	if err := validateType(dir, shardid.InodeTypeDirectory); err != nil {
		return e, err
	}
	if err := validateName(name); err != nil {
		return e, err
	}
	return applypath.LockCurrentEdge{Dir: dir, Name: name, Now: now}, nil
}

func PrepareUnlockCurrentEdge(dir shardid.InodeId, name string, target shardid.InodeId, creationTime, now shardid.TernTime) (applypath.UnlockCurrentEdge, error) {
	var e applypath.UnlockCurrentEdge
	if err := validateType(dir, shardid.InodeTypeDirectory); err != nil {
		return e, err
	}
	if err := validateName(name); err != nil {
		return e, err
	}
	return applypath.UnlockCurrentEdge{Dir: dir, Name: name, Target: target, CreationTime: creationTime, Now: now}, nil
}

func PrepareSoftUnlinkFile(dir shardid.InodeId, name string, target shardid.InodeId, creationTime shardid.TernTime, transferOwnership bool, now shardid.TernTime) (applypath.SoftUnlinkFile, error) {
	var e applypath.SoftUnlinkFile
	if err := validateType(dir, shardid.InodeTypeDirectory); err != nil {
		return e, err
	}
	if err := validateName(name); err != nil {
		return e, err
	}
	return applypath.SoftUnlinkFile{
		Dir: dir, Name: name, Target: target, CreationTime: creationTime,
		TransferOwnership: transferOwnership, Now: now,
	}, nil
}

// SetTimeRequest carries the optional atime/mtime fields set-time may
// update; unset fields leave the corresponding stamp untouched.
type SetTimeRequest struct {
	Id       shardid.InodeId
	SetAtime bool
	Atime    shardid.TernTime
	SetMtime bool
	Mtime    shardid.TernTime
}

func PrepareSetTime(req SetTimeRequest) (applypath.SetTime, error) {
	return applypath.SetTime{
		Id: req.Id, AtimeSet: req.SetAtime, Atime: req.Atime, MtimeSet: req.SetMtime, Mtime: req.Mtime,
	}, nil
}

func PrepareRemoveOwnedSnapshotFileEdge(dir shardid.InodeId, name string, creationTime shardid.TernTime) (applypath.RemoveOwnedSnapshotFileEdge, error) {
	return applypath.RemoveOwnedSnapshotFileEdge{Dir: dir, Name: name, CreationTime: creationTime}, nil
}

func PrepareRemoveNonOwnedEdge(dir shardid.InodeId, name string, creationTime shardid.TernTime) (applypath.RemoveNonOwnedEdge, error) {
	return applypath.RemoveNonOwnedEdge{Dir: dir, Name: name, CreationTime: creationTime}, nil
}

func PrepareRemoveZeroBlockServiceFiles(startBS shardid.BlockServiceId, startFile shardid.InodeId) (applypath.RemoveZeroBlockServiceFiles, error) {
	return applypath.RemoveZeroBlockServiceFiles{StartBlockService: startBS, StartFile: startFile}, nil
}

// PrepareMoveSpan is a thin pass-through: move-span's preconditions are
// deterministic and live entirely in the apply handler, the same as its
// swap-blocks and swap-spans siblings below.
func PrepareMoveSpan(file shardid.InodeId, srcOffset, dstOffset uint64) (applypath.MoveSpan, error) {
	if file.Type() == shardid.InodeTypeDirectory {
		return applypath.MoveSpan{}, shardstore.NewError(shardstore.ErrorCodeTypeIsDirectory, "")
	}
	return applypath.MoveSpan{File: file, SrcOffset: srcOffset, DstOffset: dstOffset}, nil
}

// PrepareSwapBlocks is a thin pass-through, same as PrepareMoveSpan: the
// size/crc/state/collision preconditions live entirely in the apply
// handler.
func PrepareSwapBlocks(file1 shardid.InodeId, offset1 uint64, blockId1 shardid.BlockId, file2 shardid.InodeId, offset2 uint64, blockId2 shardid.BlockId) (applypath.SwapBlocks, error) {
	if file1.Type() == shardid.InodeTypeDirectory || file2.Type() == shardid.InodeTypeDirectory {
		return applypath.SwapBlocks{}, shardstore.NewError(shardstore.ErrorCodeTypeIsDirectory, "")
	}
	return applypath.SwapBlocks{
		File1: file1, Offset1: offset1, BlockId1: blockId1,
		File2: file2, Offset2: offset2, BlockId2: blockId2,
	}, nil
}

// PrepareSwapSpans is a thin pass-through, same as PrepareMoveSpan. The
// caller supplies each span's current block ids so the apply handler can
// distinguish "not yet applied" from "already applied" without deriving
// intent from storage alone.
func PrepareSwapSpans(file1 shardid.InodeId, offset1 uint64, blocks1 []shardid.BlockId, file2 shardid.InodeId, offset2 uint64, blocks2 []shardid.BlockId) (applypath.SwapSpans, error) {
	if file1.Type() == shardid.InodeTypeDirectory || file2.Type() == shardid.InodeTypeDirectory {
		return applypath.SwapSpans{}, shardstore.NewError(shardstore.ErrorCodeTypeIsDirectory, "")
	}
	return applypath.SwapSpans{
		File1: file1, Offset1: offset1, Blocks1: blocks1,
		File2: file2, Offset2: offset2, Blocks2: blocks2,
	}, nil
}
