package shardstore

import (
	"github.com/shardfs/shard/internal/kv"
	"github.com/shardfs/shard/pkg/schema"
	"github.com/shardfs/shard/pkg/shardid"
)

// ReadSnapshot is a typed, point-in-time view of the store, handed to
// every read-path query and to prepare-path context lookups. It must be
// closed by the caller.
type ReadSnapshot struct {
	snap kv.Snapshot
}

func (r *ReadSnapshot) Close() { r.snap.Close() }

// LastAppliedLogIndex reports the log index this snapshot reflects.
func (r *ReadSnapshot) LastAppliedLogIndex() uint64 { return r.snap.LastAppliedLogIndex() }

func (r *ReadSnapshot) GetDirectory(id shardid.InodeId) (schema.DirectoryBody, error) {
	raw, err := r.snap.Get(kv.CFDirectories, schema.InodeKey(id))
	if err == kv.ErrNotFound {
		return schema.DirectoryBody{}, NewError(ErrorCodeDirectoryNotFound, "")
	}
	if err != nil {
		return schema.DirectoryBody{}, err
	}
	return schema.DecodeDirectoryBody(raw)
}

func (r *ReadSnapshot) GetFile(id shardid.InodeId) (schema.FileBody, error) {
	raw, err := r.snap.Get(kv.CFFiles, schema.InodeKey(id))
	if err == kv.ErrNotFound {
		return schema.FileBody{}, NewError(ErrorCodeFileNotFound, "")
	}
	if err != nil {
		return schema.FileBody{}, err
	}
	return schema.DecodeFileBody(raw)
}

func (r *ReadSnapshot) GetTransientFile(id shardid.InodeId) (schema.TransientFileBody, error) {
	raw, err := r.snap.Get(kv.CFTransientFiles, schema.InodeKey(id))
	if err == kv.ErrNotFound {
		return schema.TransientFileBody{}, NewError(ErrorCodeFileNotFound, "")
	}
	if err != nil {
		return schema.TransientFileBody{}, err
	}
	return schema.DecodeTransientFileBody(raw)
}

// GetCurrentEdge returns the current edge for (dir, name), and whether
// one exists.
func (r *ReadSnapshot) GetCurrentEdge(dir shardid.InodeId, nameHash uint64, name string) (schema.CurrentEdgeBody, bool, error) {
	key := schema.EdgeKey{DirId: dir, Current: true, NameHash: nameHash, Name: name}.Encode()
	raw, err := r.snap.Get(kv.CFEdges, key)
	if err == kv.ErrNotFound {
		return schema.CurrentEdgeBody{}, false, nil
	}
	if err != nil {
		return schema.CurrentEdgeBody{}, false, err
	}
	body, err := schema.DecodeCurrentEdgeBody(raw)
	return body, true, err
}

// GetLatestSnapshotEdge returns the most recent snapshot edge for
// (dir, name), used by current-edge creation's MORE_RECENT_SNAPSHOT_EDGE
// check.
func (r *ReadSnapshot) GetLatestSnapshotEdge(dir shardid.InodeId, nameHash uint64, name string) (schema.EdgeKey, schema.SnapshotEdgeBody, bool, error) {
	prefix := schema.EdgeNamePrefix(dir, nameHash, name)
	it := r.snap.NewIterator(kv.CFEdges, kv.IterOptions{Prefix: prefix})
	defer it.Close()
	it.Seek(prefix)
	if !it.Valid() {
		return schema.EdgeKey{}, schema.SnapshotEdgeBody{}, false, nil
	}
	key, err := schema.DecodeEdgeKey(it.Key())
	if err != nil {
		return schema.EdgeKey{}, schema.SnapshotEdgeBody{}, false, err
	}
	body, err := schema.DecodeSnapshotEdgeBody(it.Value())
	if err != nil {
		return schema.EdgeKey{}, schema.SnapshotEdgeBody{}, false, err
	}
	return key, body, true, nil
}

// EdgeIterator walks either the current or the snapshot half of a
// directory's edges in ascending key order.
func (r *ReadSnapshot) EdgeIterator(dir shardid.InodeId, current bool) kv.Iterator {
	return r.snap.NewIterator(kv.CFEdges, kv.IterOptions{Prefix: schema.EdgeDirPrefix(dir, current)})
}

// ReverseEdgeIterator walks the snapshot half of a directory's edges in
// descending key order, used by full-read-dir's backwards mode.
func (r *ReadSnapshot) ReverseEdgeIterator(dir shardid.InodeId) kv.Iterator {
	return r.snap.NewIterator(kv.CFEdges, kv.IterOptions{Prefix: schema.EdgeDirPrefix(dir, false), Reverse: true})
}

func (r *ReadSnapshot) GetSpan(file shardid.InodeId, offset uint64) (schema.SpanBody, bool, error) {
	raw, err := r.snap.Get(kv.CFSpans, schema.SpanKey(file, offset))
	if err == kv.ErrNotFound {
		return schema.SpanBody{}, false, nil
	}
	if err != nil {
		return schema.SpanBody{}, false, err
	}
	body, err := schema.DecodeSpanBody(raw)
	return body, true, err
}

// SpanIteratorFrom opens a reverse iterator seeked to the last span at or
// before byteOffset, implementing §4.1's SeekForPrev discipline for
// local-file-spans/file-spans.
func (r *ReadSnapshot) SpanIteratorFrom(file shardid.InodeId, byteOffset uint64) kv.Iterator {
	it := r.snap.NewIterator(kv.CFSpans, kv.IterOptions{Prefix: schema.SpanFilePrefix(file), Reverse: true})
	it.Seek(schema.SpanKey(file, byteOffset))
	return it
}

// SpanIteratorForward opens a forward iterator over a file's spans
// starting at exactly byteOffset, used once SpanIteratorFrom has located
// the first span to emit.
func (r *ReadSnapshot) SpanIteratorForward(file shardid.InodeId, byteOffset uint64) kv.Iterator {
	it := r.snap.NewIterator(kv.CFSpans, kv.IterOptions{Prefix: schema.SpanFilePrefix(file)})
	it.Seek(schema.SpanKey(file, byteOffset))
	return it
}

// LastSpanAtOrBefore decodes the last span at or before byteOffset,
// sharing the SeekForPrev discipline of SpanIteratorFrom across every
// caller that needs "the file's last span" rather than a page of spans:
// remove-span-initiate's target lookup and block-service placement
// inheritance both reduce to byteOffset = ^uint64(0).
func (r *ReadSnapshot) LastSpanAtOrBefore(file shardid.InodeId, byteOffset uint64) (schema.SpanBody, uint64, bool, error) {
	it := r.SpanIteratorFrom(file, byteOffset)
	defer it.Close()
	if !it.Valid() {
		return schema.SpanBody{}, 0, false, nil
	}
	body, err := schema.DecodeSpanBody(it.Value())
	if err != nil {
		return schema.SpanBody{}, 0, false, err
	}
	_, offset, err := schema.DecodeSpanKey(it.Key())
	if err != nil {
		return schema.SpanBody{}, 0, false, err
	}
	return body, offset, true, nil
}

func (r *ReadSnapshot) GetBlockServiceFileCount(bs shardid.BlockServiceId, file shardid.InodeId) (int64, error) {
	raw, err := r.snap.Get(kv.CFBlockServicesToFiles, schema.BlockServiceToFileKey(bs, file))
	if err == kv.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeSignedCount(raw), nil
}

// BlockServiceFileIterator walks the reverse index for one block service
// in ascending file-id order, starting at startFile.
func (r *ReadSnapshot) BlockServiceFileIterator(bs shardid.BlockServiceId, startFile shardid.InodeId) kv.Iterator {
	it := r.snap.NewIterator(kv.CFBlockServicesToFiles, kv.IterOptions{Prefix: schema.BlockServicePrefix(bs)})
	it.Seek(schema.BlockServiceToFileKey(bs, startFile))
	return it
}

// InodeIterator paginates raw inode keys within one family (files,
// directories, transientFiles), used by visit-files/visit-directories/
// visit-transient-files.
func (r *ReadSnapshot) InodeIterator(cf kv.ColumnFamily, start shardid.InodeId) kv.Iterator {
	it := r.snap.NewIterator(cf, kv.IterOptions{})
	it.Seek(schema.InodeKey(start))
	return it
}
