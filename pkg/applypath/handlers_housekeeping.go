package applypath

import (
	"github.com/shardfs/shard/pkg/schema"
	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
)

// ApplySetTime updates atime and/or mtime on a durable file or directory,
// per field flags packed into the entry. Only the fields marked set are
// touched.
func ApplySetTime(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, e SetTime) (Response, error) {
	if e.Id.Type() == shardid.InodeTypeDirectory {
		dir, err := snap.GetDirectory(e.Id)
		if err != nil {
			return nil, err
		}
		if e.MtimeSet {
			dir.Mtime = e.Mtime
		}
		batch.PutDirectory(e.Id, dir)
		return OkResponse{}, nil
	}

	file, err := snap.GetFile(e.Id)
	if err != nil {
		return nil, err
	}
	if e.AtimeSet {
		file.Atime = e.Atime
	}
	if e.MtimeSet {
		file.Mtime = e.Mtime
	}
	batch.PutFile(e.Id, file)
	return OkResponse{}, nil
}

// ApplyRemoveOwnedSnapshotFileEdge deletes a snapshot edge this shard owns
// once the file it pointed at has itself been fully removed. Idempotent
// on an already-missing edge.
func ApplyRemoveOwnedSnapshotFileEdge(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, e RemoveOwnedSnapshotFileEdge) (Response, error) {
	dir, err := snap.GetDirectory(e.Dir)
	if err != nil {
		return nil, err
	}
	h := nameHash(dir.HashMode, e.Name)
	key, body, ok, err := snap.GetLatestSnapshotEdge(e.Dir, h, e.Name)
	if err != nil {
		return nil, err
	}
	if !ok || key.CreationTime != e.CreationTime {
		return OkResponse{}, nil
	}
	if !body.Owned {
		return nil, shardstore.NewError(shardstore.ErrorCodeEdgeNotOwned, "")
	}
	batch.DeleteSnapshotEdge(e.Dir, h, e.Name, e.CreationTime)
	return OkResponse{}, nil
}

// ApplyRemoveNonOwnedEdge deletes a snapshot edge this shard does not own
// (a historical record of a name that once pointed elsewhere), once the
// garbage collector has determined it is no longer reachable. Idempotent
// on an already-missing edge.
func ApplyRemoveNonOwnedEdge(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, e RemoveNonOwnedEdge) (Response, error) {
	dir, err := snap.GetDirectory(e.Dir)
	if err != nil {
		return nil, err
	}
	h := nameHash(dir.HashMode, e.Name)
	key, body, ok, err := snap.GetLatestSnapshotEdge(e.Dir, h, e.Name)
	if err != nil {
		return nil, err
	}
	if !ok || key.CreationTime != e.CreationTime {
		return OkResponse{}, nil
	}
	if body.Owned {
		return nil, shardstore.NewError(shardstore.ErrorCodeEdgeNotOwned, "")
	}
	batch.DeleteSnapshotEdge(e.Dir, h, e.Name, e.CreationTime)
	return OkResponse{}, nil
}

// ApplyRemoveZeroBlockServiceFiles sweeps at most 1000 reverse-index
// entries starting at (StartBlockService, StartFile), deleting every entry
// whose count has decayed to zero, and reports where the next call should
// resume.
func ApplyRemoveZeroBlockServiceFiles(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, e RemoveZeroBlockServiceFiles) (Response, error) {
	const sweepLimit = 1000

	it := snap.BlockServiceFileIterator(e.StartBlockService, e.StartFile)
	defer it.Close()

	swept := 0
	var lastBS shardid.BlockServiceId
	var lastFile shardid.InodeId
	for it.Valid() && swept < sweepLimit {
		bs, file, err := schema.DecodeBlockServiceToFileKey(it.Key())
		if err != nil {
			return nil, err
		}
		count, err := snap.GetBlockServiceFileCount(bs, file)
		if err != nil {
			return nil, err
		}
		if count <= 0 {
			batch.DeleteBlockServiceFileCount(bs, file)
		}
		lastBS, lastFile = bs, file
		swept++
		it.Next()
	}

	if !it.Valid() {
		return RemoveZeroBlockServiceFilesResponse{Done: true}, nil
	}
	nextFile := lastFile + 1
	nextBS := lastBS
	if nextFile == 0 {
		nextBS++
	}
	return RemoveZeroBlockServiceFilesResponse{NextBlockService: nextBS, NextFile: nextFile, Done: false}, nil
}
