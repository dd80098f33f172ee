package applypath

import (
	"fmt"

	"github.com/shardfs/shard/pkg/blockcache"
	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
)

// Dispatch is the total match over EntryKind required by §9: every kind
// DecodeEntry can produce has a case here, and an entry whose concrete
// type doesn't match its own declared Kind() — which should be
// impossible outside of a decoder bug — aborts the process rather than
// silently misapplying it.
func Dispatch(store *shardstore.Store, snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, cache blockcache.Snapshot, entryTime shardid.TernTime, entry Entry) (Response, error) {
	switch e := entry.(type) {
	case ConstructFile:
		return ApplyConstructFile(store, batch, e)
	case LinkFile:
		return ApplyLinkFile(snap, batch, entryTime, e)
	case MakeFileTransient:
		return ApplyMakeFileTransient(snap, batch, e)
	case SameShardHardFileUnlink:
		return ApplySameShardHardFileUnlink(snap, batch, e)
	case ScrapTransientFile:
		return ApplyScrapTransientFile(snap, batch, e)
	case RemoveInode:
		return ApplyRemoveInode(snap, batch, e, entryTime)
	case AddInlineSpan:
		return ApplyAddInlineSpan(snap, batch, e)
	case AddSpanAtLocationInitiate:
		return ApplyAddSpanAtLocationInitiate(snap, batch, e)
	case AddSpanCertify:
		return ApplyAddSpanCertify(snap, batch, cache, e)
	case AddSpanLocation:
		return ApplyAddSpanLocation(snap, batch, e)
	case RemoveSpanInitiate:
		return ApplyRemoveSpanInitiate(snap, batch, cache, e)
	case RemoveSpanCertify:
		return ApplyRemoveSpanCertify(snap, batch, cache, e)
	case MoveSpan:
		return ApplyMoveSpan(snap, batch, e)
	case SwapBlocks:
		return ApplySwapBlocks(snap, batch, cache, e)
	case SwapSpans:
		return ApplySwapSpans(snap, batch, e)
	case CreateDirectoryInode:
		return ApplyCreateDirectoryInode(snap, batch, e)
	case SetDirectoryInfo:
		return ApplySetDirectoryInfo(snap, batch, e)
	case SetDirectoryOwner:
		return ApplySetDirectoryOwner(snap, batch, e)
	case RemoveDirectoryOwner:
		return ApplyRemoveDirectoryOwner(snap, batch, e)
	case CreateLockedCurrentEdge:
		return ApplyCreateLockedCurrentEdge(snap, batch, entryTime, e)
	case LockCurrentEdge:
		return ApplyLockCurrentEdge(snap, batch, entryTime, e)
	case UnlockCurrentEdge:
		return ApplyUnlockCurrentEdge(snap, batch, entryTime, e)
	case SoftUnlinkFile:
		return ApplySoftUnlinkFile(snap, batch, e)
	case SetTime:
		return ApplySetTime(snap, batch, e)
	case RemoveOwnedSnapshotFileEdge:
		return ApplyRemoveOwnedSnapshotFileEdge(snap, batch, e)
	case RemoveNonOwnedEdge:
		return ApplyRemoveNonOwnedEdge(snap, batch, e)
	case RemoveZeroBlockServiceFiles:
		return ApplyRemoveZeroBlockServiceFiles(snap, batch, e)
	default:
		panic(&shardstore.FatalError{Reason: fmt.Sprintf("applypath: unhandled entry kind %d in dispatch", entry.Kind())})
	}
}

// Apply runs one already-decoded entry end to end: opens a write batch at
// logIndex, dispatches to the matching handler, and either commits or
// rolls back to the batch's pre-entry savepoint, keeping only the
// log-index advance, per §4.3 step 4. Callers must hold store's write
// lock for the duration.
func Apply(store *shardstore.Store, cache blockcache.Snapshot, logIndex uint64, entryTime shardid.TernTime, entry Entry) (Response, error) {
	snap := store.NewReadSnapshot()
	defer snap.Close()

	batch := store.NewWriteBatch(logIndex)
	sp := batch.Savepoint()

	resp, err := Dispatch(store, snap, batch, cache, entryTime, entry)
	if err != nil {
		batch.RollbackToSavepoint(sp)
		if commitErr := batch.Commit(); commitErr != nil {
			return nil, commitErr
		}
		return nil, err
	}
	if err := batch.Commit(); err != nil {
		return nil, err
	}
	return resp, nil
}
