package shardstore

import (
	"github.com/shardfs/shard/internal/kv"
	"github.com/shardfs/shard/pkg/schema"
	"github.com/shardfs/shard/pkg/shardid"
)

// WriteBatch accumulates one log entry's mutations. Created by
// Store.NewWriteBatch while holding the write lock; the log-index advance
// is staged immediately so a rollback-to-savepoint still leaves it
// visible on Commit, per §4.3 step 4.
type WriteBatch struct {
	batch    kv.Batch
	store    *Store
	logIndex uint64
}

// Savepoint marks the current position so a handler error can discard
// everything recorded since, keeping only the log-index advance.
func (b *WriteBatch) Savepoint() int { return b.batch.Savepoint() }

func (b *WriteBatch) RollbackToSavepoint(sp int) { b.batch.RollbackToSavepoint(sp) }

// Commit atomically applies the batch and, on success, publishes the new
// last-applied-log-index to the store's in-memory cache and to the kv
// adapter, whose value later read snapshots report.
func (b *WriteBatch) Commit() error {
	if err := b.batch.Commit(); err != nil {
		return err
	}
	b.store.lastAppliedLogIndex.Store(b.logIndex)
	if ks, ok := b.store.kv.(interface{ SetLastAppliedLogIndex(uint64) }); ok {
		ks.SetLastAppliedLogIndex(b.logIndex)
	}
	return nil
}

func (b *WriteBatch) PutDirectory(id shardid.InodeId, body schema.DirectoryBody) {
	b.batch.Set(kv.CFDirectories, schema.InodeKey(id), body.Encode())
}

func (b *WriteBatch) DeleteDirectory(id shardid.InodeId) {
	b.batch.Delete(kv.CFDirectories, schema.InodeKey(id))
}

func (b *WriteBatch) PutFile(id shardid.InodeId, body schema.FileBody) {
	b.batch.Set(kv.CFFiles, schema.InodeKey(id), body.Encode())
}

func (b *WriteBatch) DeleteFile(id shardid.InodeId) {
	b.batch.Delete(kv.CFFiles, schema.InodeKey(id))
}

func (b *WriteBatch) PutTransientFile(id shardid.InodeId, body schema.TransientFileBody) {
	b.batch.Set(kv.CFTransientFiles, schema.InodeKey(id), body.Encode())
}

func (b *WriteBatch) DeleteTransientFile(id shardid.InodeId) {
	b.batch.Delete(kv.CFTransientFiles, schema.InodeKey(id))
}

func (b *WriteBatch) PutCurrentEdge(dir shardid.InodeId, nameHash uint64, name string, body schema.CurrentEdgeBody) {
	key := schema.EdgeKey{DirId: dir, Current: true, NameHash: nameHash, Name: name}.Encode()
	b.batch.Set(kv.CFEdges, key, body.Encode())
}

func (b *WriteBatch) DeleteCurrentEdge(dir shardid.InodeId, nameHash uint64, name string) {
	key := schema.EdgeKey{DirId: dir, Current: true, NameHash: nameHash, Name: name}.Encode()
	b.batch.Delete(kv.CFEdges, key)
}

func (b *WriteBatch) PutSnapshotEdge(dir shardid.InodeId, nameHash uint64, name string, creationTime shardid.TernTime, body schema.SnapshotEdgeBody) {
	key := schema.EdgeKey{DirId: dir, Current: false, NameHash: nameHash, Name: name, CreationTime: creationTime}.Encode()
	b.batch.Set(kv.CFEdges, key, body.Encode())
}

func (b *WriteBatch) DeleteSnapshotEdge(dir shardid.InodeId, nameHash uint64, name string, creationTime shardid.TernTime) {
	key := schema.EdgeKey{DirId: dir, Current: false, NameHash: nameHash, Name: name, CreationTime: creationTime}.Encode()
	b.batch.Delete(kv.CFEdges, key)
}

func (b *WriteBatch) PutSpan(file shardid.InodeId, offset uint64, body schema.SpanBody) error {
	raw, err := body.Encode()
	if err != nil {
		return err
	}
	b.batch.Set(kv.CFSpans, schema.SpanKey(file, offset), raw)
	return nil
}

func (b *WriteBatch) DeleteSpan(file shardid.InodeId, offset uint64) {
	b.batch.Delete(kv.CFSpans, schema.SpanKey(file, offset))
}

// AdjustBlockServiceFileCount stages a signed delta against the reverse
// index count for (bs, file), combined at commit time by the registered
// additive merge operator.
func (b *WriteBatch) AdjustBlockServiceFileCount(bs shardid.BlockServiceId, file shardid.InodeId, delta int64) {
	b.batch.Merge(kv.CFBlockServicesToFiles, schema.BlockServiceToFileKey(bs, file), encodeSignedCount(delta))
}

func (b *WriteBatch) DeleteBlockServiceFileCount(bs shardid.BlockServiceId, file shardid.InodeId) {
	b.batch.Delete(kv.CFBlockServicesToFiles, schema.BlockServiceToFileKey(bs, file))
}

// SetNextFileCounterWatermark and its symlink/block counterparts persist
// the id counters past whatever value a construct/span-allocation handler
// just used, so a restart never reissues an id. These are separate from
// Store's in-memory prepare-time atomics: apply must be deterministic, so
// it only ever writes the watermark forward, never reads the atomics.
func (b *WriteBatch) SetNextFileCounterWatermark(v uint64) {
	b.batch.Set(kv.CFMetadata, schema.EncodeMetadataKey(schema.MetadataKeyNextFileId), schema.EncodeCounterValue(v))
}

func (b *WriteBatch) SetNextSymlinkCounterWatermark(v uint64) {
	b.batch.Set(kv.CFMetadata, schema.EncodeMetadataKey(schema.MetadataKeyNextSymlinkId), schema.EncodeCounterValue(v))
}

func (b *WriteBatch) SetNextBlockWatermark(v uint64) {
	b.batch.Set(kv.CFMetadata, schema.EncodeMetadataKey(schema.MetadataKeyNextBlockId), schema.EncodeCounterValue(v))
}
