package applypath

import (
	"github.com/shardfs/shard/internal/xxh"
	"github.com/shardfs/shard/pkg/schema"
	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
)

// ApplyCreateDirectoryInode creates a fresh directory owned by e.Owner.
// Idempotent if the directory already exists with the same owner.
func ApplyCreateDirectoryInode(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, e CreateDirectoryInode) (Response, error) {
	if existing, err := snap.GetDirectory(e.Id); err == nil {
		if existing.OwnerId != e.Owner {
			return nil, shardstore.NewError(shardstore.ErrorCodeMismatchingOwner, "")
		}
		return OkResponse{}, nil
	} else if de, ok := err.(*shardstore.Error); !ok || de.Code != shardstore.ErrorCodeDirectoryNotFound {
		return nil, err
	}

	body := schema.DirectoryBody{
		Version:  1,
		OwnerId:  e.Owner,
		Mtime:    e.Now,
		HashMode: xxh.HashModeXXH3_63,
		Info:     e.Info,
	}
	batch.PutDirectory(e.Id, body)
	return OkResponse{}, nil
}

// ApplySetDirectoryInfo overwrites a directory's opaque info segments.
func ApplySetDirectoryInfo(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, e SetDirectoryInfo) (Response, error) {
	dir, err := snap.GetDirectory(e.Dir)
	if err != nil {
		return nil, err
	}
	if e.Now <= dir.Mtime {
		return nil, shardstore.NewError(shardstore.ErrorCodeMtimeIsTooRecent, "")
	}
	dir.Mtime = e.Now
	dir.Info = e.Info
	batch.PutDirectory(e.Dir, dir)
	return OkResponse{}, nil
}

// ApplySetDirectoryOwner attaches an owner (a symlink-like pointer used
// while a directory is being relocated across shards) to a directory that
// has none; a directory owned by a different inode is refused with
// DIRECTORY_HAS_OWNER. Idempotent if already owned by e.Owner.
func ApplySetDirectoryOwner(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, e SetDirectoryOwner) (Response, error) {
	dir, err := snap.GetDirectory(e.Dir)
	if err != nil {
		return nil, err
	}
	if dir.OwnerId == e.Owner {
		return OkResponse{}, nil
	}
	if !dir.OwnerId.IsNull() {
		return nil, shardstore.NewError(shardstore.ErrorCodeDirectoryHasOwner, "")
	}
	dir.OwnerId = e.Owner
	dir.Mtime = e.Now
	batch.PutDirectory(e.Dir, dir)
	return OkResponse{}, nil
}

// ApplyRemoveDirectoryOwner clears a directory's owner once a relocation
// or deletion has completed. Idempotent if already cleared.
func ApplyRemoveDirectoryOwner(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, e RemoveDirectoryOwner) (Response, error) {
	dir, err := snap.GetDirectory(e.Dir)
	if err != nil {
		return nil, err
	}
	if dir.OwnerId.IsNull() {
		return OkResponse{}, nil
	}
	dir.OwnerId = 0
	dir.Mtime = e.Now
	batch.PutDirectory(e.Dir, dir)
	return OkResponse{}, nil
}

// ApplyCreateLockedCurrentEdge creates a current edge already in the
// locked state, used by cross-shard rename to reserve a name before the
// target inode exists on this shard.
func ApplyCreateLockedCurrentEdge(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, entryTime shardid.TernTime, e CreateLockedCurrentEdge) (Response, error) {
	hashMode, err := directoryPreamble(snap, batch, e.Dir, entryTime)
	if err != nil {
		return nil, err
	}
	creationTime, err := createCurrentEdge(snap, batch, e.Dir, hashMode, e.Name, e.Target, e.Now, true, e.OldCreation)
	if err != nil {
		return nil, err
	}
	return CreateCurrentEdgeResponse{CreationTime: creationTime}, nil
}

// ApplyLockCurrentEdge marks an already-existing, unlocked current edge as
// locked in place, without changing its target or creation time. Runs the
// directory modification preamble first, per §4.3's "every write that
// touches a directory" rule. Idempotent if already locked.
func ApplyLockCurrentEdge(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, entryTime shardid.TernTime, e LockCurrentEdge) (Response, error) {
	hashMode, err := directoryPreamble(snap, batch, e.Dir, entryTime)
	if err != nil {
		return nil, err
	}
	h := nameHash(hashMode, e.Name)
	edge, ok, err := snap.GetCurrentEdge(e.Dir, h, e.Name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shardstore.NewError(shardstore.ErrorCodeEdgeNotFound, "")
	}
	if edge.Locked {
		return CreateCurrentEdgeResponse{CreationTime: edge.CreationTime}, nil
	}
	edge.Locked = true
	edge.LockOldCreationTime = edge.CreationTime
	batch.PutCurrentEdge(e.Dir, h, e.Name, edge)
	return CreateCurrentEdgeResponse{CreationTime: edge.CreationTime}, nil
}

// ApplyUnlockCurrentEdge releases a locked current edge, either simply
// clearing the lock or, if the edge WasMoved during the lock (a cross-shard
// rename that relocated the target elsewhere), promoting it to a snapshot
// edge and writing a deletion edge in its place, per §4.3. Runs the
// directory modification preamble first, the same as every other
// directory-touching write.
func ApplyUnlockCurrentEdge(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, entryTime shardid.TernTime, e UnlockCurrentEdge) (Response, error) {
	hashMode, err := directoryPreamble(snap, batch, e.Dir, entryTime)
	if err != nil {
		return nil, err
	}
	h := nameHash(hashMode, e.Name)
	edge, ok, err := snap.GetCurrentEdge(e.Dir, h, e.Name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return OkResponse{}, nil
	}
	if !edge.Locked {
		if edge.Target == e.Target && edge.CreationTime == e.CreationTime {
			return OkResponse{}, nil
		}
		return nil, shardstore.NewError(shardstore.ErrorCodeEdgeIsLocked, "")
	}
	if edge.Target != e.Target || edge.CreationTime != e.CreationTime {
		return nil, shardstore.NewError(shardstore.ErrorCodeMismatchingTarget, "")
	}

	if edge.WasMoved {
		// The reference moved to another shard: this shard no longer owns
		// it, so the preserved snapshot edge is unowned, and a second
		// snapshot edge at e.Now marks the deletion — the same
		// preserve-then-delete pair softUnlinkCurrentEdge writes.
		batch.DeleteCurrentEdge(e.Dir, h, e.Name)
		batch.PutSnapshotEdge(e.Dir, h, e.Name, edge.CreationTime, schema.SnapshotEdgeBody{Target: edge.Target, Owned: false})
		batch.PutSnapshotEdge(e.Dir, h, e.Name, e.Now, schema.SnapshotEdgeBody{Target: 0, Owned: false})
		return OkResponse{}, nil
	}

	edge.Locked = false
	batch.PutCurrentEdge(e.Dir, h, e.Name, edge)
	return OkResponse{}, nil
}

// ApplySoftUnlinkFile removes a current edge, preserving history as a pair
// of snapshot edges, via the shared softUnlinkCurrentEdge subroutine.
func ApplySoftUnlinkFile(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, e SoftUnlinkFile) (Response, error) {
	dir, err := snap.GetDirectory(e.Dir)
	if err != nil {
		return nil, err
	}
	if e.Now <= dir.Mtime {
		return nil, shardstore.NewError(shardstore.ErrorCodeMtimeIsTooRecent, "")
	}
	if err := softUnlinkCurrentEdge(snap, batch, e.Dir, dir.HashMode, e.Name, e.Target, e.CreationTime, e.TransferOwnership, e.Now); err != nil {
		return nil, err
	}
	dir.Mtime = e.Now
	batch.PutDirectory(e.Dir, dir)
	return OkResponse{}, nil
}
