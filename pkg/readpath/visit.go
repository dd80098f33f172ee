package readpath

import (
	"context"

	"github.com/shardfs/shard/internal/kv"
	"github.com/shardfs/shard/pkg/schema"
	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
	"github.com/shardfs/shard/pkg/wire"
)

// VisitResponse is the paginated id enumeration result shared by
// visit-transient-files, visit-directories and visit-files.
type VisitResponse struct {
	Ids                 []shardid.InodeId
	NextId              shardid.InodeId
	Done                bool
	LastAppliedLogIndex uint64
}

func visit(snap *shardstore.ReadSnapshot, cf kv.ColumnFamily, start shardid.InodeId, mtuHint uint16) (VisitResponse, error) {
	it := snap.InodeIterator(cf, start)
	defer it.Close()

	budget := wire.NewBudget(mtuHint, 16)
	var ids []shardid.InodeId
	for it.Valid() {
		id, err := schema.DecodeInodeKey(it.Key())
		if err != nil {
			return VisitResponse{}, err
		}
		if !budget.TryTake(entryOverhead) {
			return VisitResponse{Ids: ids, NextId: id, Done: false, LastAppliedLogIndex: snap.LastAppliedLogIndex()}, nil
		}
		ids = append(ids, id)
		it.Next()
	}
	return VisitResponse{Ids: ids, Done: true, LastAppliedLogIndex: snap.LastAppliedLogIndex()}, nil
}

func VisitTransientFiles(ctx context.Context, snap *shardstore.ReadSnapshot, start shardid.InodeId, mtuHint uint16) (VisitResponse, error) {
	return visit(snap, kv.CFTransientFiles, start, mtuHint)
}

func VisitDirectories(ctx context.Context, snap *shardstore.ReadSnapshot, start shardid.InodeId, mtuHint uint16) (VisitResponse, error) {
	return visit(snap, kv.CFDirectories, start, mtuHint)
}

func VisitFiles(ctx context.Context, snap *shardstore.ReadSnapshot, start shardid.InodeId, mtuHint uint16) (VisitResponse, error) {
	return visit(snap, kv.CFFiles, start, mtuHint)
}
