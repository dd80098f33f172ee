// Package applypath executes prepared log entries against a shardstore
// under the exclusive write lock, per §4.3. Every exported Apply* handler
// takes an already-open *shardstore.WriteBatch and a *shardstore.ReadSnapshot
// consistent with it, mutates the batch, and returns a typed response or
// a *shardstore.Error — it never partially mutates state: callers roll
// back to the batch's savepoint on any non-nil error, keeping only the
// log-index advance, exactly as §4.3 step 4 requires.
//
// This mirrors the handler-per-operation, savepoint-guarded transaction
// style of pkg/store/metadata/badger/directory.go and file.go, generalized
// from NFS's fixed operation set to this shard's dozens of log-entry kinds.
package applypath

import (
	"github.com/shardfs/shard/internal/xxh"
	"github.com/shardfs/shard/pkg/schema"
	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
)

// directoryPreamble implements §4.3's "directory modification preamble":
// every write touching a directory reads its body, asserts
// entry-time > dir.mtime, updates mtime, rewrites the body, and returns
// the directory's hash mode.
func directoryPreamble(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, dir shardid.InodeId, entryTime shardid.TernTime) (xxh.HashMode, error) {
	body, err := snap.GetDirectory(dir)
	if err != nil {
		return 0, err
	}
	if entryTime <= body.Mtime {
		return 0, shardstore.NewError(shardstore.ErrorCodeMtimeIsTooRecent, "")
	}
	body.Mtime = entryTime
	batch.PutDirectory(dir, body)
	return body.HashMode, nil
}

func nameHash(mode xxh.HashMode, name string) uint64 { return xxh.Sum(mode, []byte(name)) }

// createCurrentEdge is the core subroutine used by link, rename, and
// locked-edge creation (§4.3). lockerOldCreationTime is only meaningful
// when locking is true; it is the locker-supplied old creation time used
// to recognize a retried lock-creation request as idempotent.
func createCurrentEdge(
	snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch,
	dir shardid.InodeId, hashMode xxh.HashMode, name string, target shardid.InodeId,
	entryTime shardid.TernTime, locking bool, lockerOldCreationTime shardid.TernTime,
) (shardid.TernTime, error) {
	h := nameHash(hashMode, name)
	existing, exists, err := snap.GetCurrentEdge(dir, h, name)
	if err != nil {
		return 0, err
	}

	if !exists {
		key, _, hasSnap, err := snap.GetLatestSnapshotEdge(dir, h, name)
		if err != nil {
			return 0, err
		}
		if hasSnap && key.CreationTime >= entryTime {
			return 0, shardstore.NewError(shardstore.ErrorCodeMoreRecentSnapshotEdge, "")
		}
		creationTime := entryTime
		if locking {
			creationTime = lockerOldCreationTime
		}
		body := schema.CurrentEdgeBody{Target: target, Locked: locking, CreationTime: creationTime, LockOldCreationTime: lockerOldCreationTime}
		batch.PutCurrentEdge(dir, h, name, body)
		return creationTime, nil
	}

	if existing.Locked {
		if existing.Target != target || existing.LockOldCreationTime != lockerOldCreationTime {
			return 0, shardstore.NewError(shardstore.ErrorCodeNameIsLocked, "")
		}
		return existing.CreationTime, nil
	}

	if target.Type() == shardid.InodeTypeDirectory || existing.Target.Type() == shardid.InodeTypeDirectory {
		return 0, shardstore.NewError(shardstore.ErrorCodeCannotOverrideName, "")
	}
	if existing.CreationTime >= entryTime {
		return 0, shardstore.NewError(shardstore.ErrorCodeMoreRecentCurrentEdge, "")
	}

	batch.PutSnapshotEdge(dir, h, name, existing.CreationTime, schema.SnapshotEdgeBody{Target: existing.Target, Owned: true})

	creationTime := entryTime
	if locking {
		creationTime = lockerOldCreationTime
	}
	batch.PutCurrentEdge(dir, h, name, schema.CurrentEdgeBody{Target: target, Locked: locking, CreationTime: creationTime, LockOldCreationTime: lockerOldCreationTime})
	return creationTime, nil
}

// softUnlinkCurrentEdge is the subroutine used by rename-away and
// soft-unlink-file (§4.3): deletes the current edge and writes two
// snapshot edges — one preserving the previous target, one marking the
// deletion.
func softUnlinkCurrentEdge(
	snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch,
	dir shardid.InodeId, hashMode xxh.HashMode, name string,
	expectTarget shardid.InodeId, expectCreationTime shardid.TernTime,
	transferOwnership bool, entryTime shardid.TernTime,
) error {
	h := nameHash(hashMode, name)
	existing, exists, err := snap.GetCurrentEdge(dir, h, name)
	if err != nil {
		return err
	}
	if !exists {
		return shardstore.NewError(shardstore.ErrorCodeEdgeNotFound, "")
	}
	if existing.Locked {
		return shardstore.NewError(shardstore.ErrorCodeEdgeIsLocked, "")
	}
	if existing.Target != expectTarget || existing.CreationTime != expectCreationTime {
		return shardstore.NewError(shardstore.ErrorCodeMismatchingTarget, "")
	}

	batch.DeleteCurrentEdge(dir, h, name)
	batch.PutSnapshotEdge(dir, h, name, existing.CreationTime, schema.SnapshotEdgeBody{Target: existing.Target, Owned: transferOwnership})
	batch.PutSnapshotEdge(dir, h, name, entryTime, schema.SnapshotEdgeBody{Target: 0, Owned: false})
	return nil
}
