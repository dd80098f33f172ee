package preparepath

import (
	"time"

	"github.com/shardfs/shard/pkg/applypath"
	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
	"github.com/shardfs/shard/pkg/wire"
)

// ConstructFileRequest asks for a new transient inode of the given type
// (FILE or SYMLINK).
type ConstructFileRequest struct {
	Type shardid.InodeType
	Note string
}

// PrepareConstructFile allocates the next file or symlink id and computes
// the initial deadline, per §4.2/§4.3.
func PrepareConstructFile(store *shardstore.Store, req ConstructFileRequest, now shardid.TernTime, deadlineInterval time.Duration) (applypath.ConstructFile, error) {
	var id shardid.InodeId
	switch req.Type {
	case shardid.InodeTypeFile:
		id = store.AllocateFileId()
	case shardid.InodeTypeSymlink:
		id = store.AllocateSymlinkId()
	default:
		return applypath.ConstructFile{}, shardstore.NewError(shardstore.ErrorCodeTypeIsDirectory, "")
	}
	return applypath.ConstructFile{
		Id:       id,
		Deadline: now + shardid.TernTime(deadlineInterval.Nanoseconds()),
		Note:     req.Note,
	}, nil
}

// LinkFileRequest is link-file's caller-supplied request.
type LinkFileRequest struct {
	File     shardid.InodeId
	Cookie   [8]byte
	OwnerDir shardid.InodeId
	Name     string
}

// PrepareLinkFile validates the name and the construct-file cookie
// before moving a transient file into a directory.
func PrepareLinkFile(store *shardstore.Store, req LinkFileRequest, shardID shardid.ShardId) (applypath.LinkFile, error) {
	var e applypath.LinkFile
	if err := validateName(req.Name); err != nil {
		return e, err
	}
	if err := validateShard(shardID, req.File); err != nil {
		return e, err
	}
	if err := validateType(req.OwnerDir, shardid.InodeTypeDirectory); err != nil {
		return e, err
	}
	if !wire.VerifyTransientFileCookie(store.SecretKey(), req.File, req.Cookie) {
		return e, shardstore.NewError(shardstore.ErrorCodeBadCookie, "")
	}
	return applypath.LinkFile{File: req.File, OwnerDir: req.OwnerDir, Name: req.Name}, nil
}

// PrepareMakeFileTransient computes the new deadline for a file being
// moved back to transient.
func PrepareMakeFileTransient(id shardid.InodeId, note string, now shardid.TernTime, deadlineInterval time.Duration) (applypath.MakeFileTransient, error) {
	if id.Type() == shardid.InodeTypeDirectory {
		return applypath.MakeFileTransient{}, shardstore.NewError(shardstore.ErrorCodeTypeIsDirectory, "")
	}
	return applypath.MakeFileTransient{
		Id: id, Deadline: now + shardid.TernTime(deadlineInterval.Nanoseconds()), Note: note,
	}, nil
}

// SameShardHardFileUnlinkRequest is same-shard-hard-file-unlink's
// caller-supplied request.
type SameShardHardFileUnlinkRequest struct {
	Owner        shardid.InodeId
	Target       shardid.InodeId
	Name         string
	CreationTime shardid.TernTime
}

// PrepareSameShardHardFileUnlink validates the name and computes the new
// deadline for the target's transition to transient.
func PrepareSameShardHardFileUnlink(req SameShardHardFileUnlinkRequest, now shardid.TernTime, deadlineInterval time.Duration) (applypath.SameShardHardFileUnlink, error) {
	var e applypath.SameShardHardFileUnlink
	if err := validateName(req.Name); err != nil {
		return e, err
	}
	if err := validateType(req.Owner, shardid.InodeTypeDirectory); err != nil {
		return e, err
	}
	return applypath.SameShardHardFileUnlink{
		Owner: req.Owner, Target: req.Target, Name: req.Name, CreationTime: req.CreationTime,
		Deadline: now + shardid.TernTime(deadlineInterval.Nanoseconds()),
	}, nil
}

// PrepareScrapTransientFile verifies the caller's construct-file cookie
// before hastening a transient file's removal.
func PrepareScrapTransientFile(store *shardstore.Store, id shardid.InodeId, cookie [8]byte, newDeadline shardid.TernTime) (applypath.ScrapTransientFile, error) {
	if !wire.VerifyTransientFileCookie(store.SecretKey(), id, cookie) {
		return applypath.ScrapTransientFile{}, shardstore.NewError(shardstore.ErrorCodeBadCookie, "")
	}
	return applypath.ScrapTransientFile{Id: id, Deadline: newDeadline}, nil
}

// PrepareRemoveInode is a thin pass-through: remove-inode's preconditions
// (owner-cleared, no edges, past deadline) are all deterministic and
// belong to the apply handler, not prepare.
func PrepareRemoveInode(id shardid.InodeId) (applypath.RemoveInode, error) {
	return applypath.RemoveInode{Id: id}, nil
}
