package applypath

import (
	"github.com/shardfs/shard/internal/xxh"
	"github.com/shardfs/shard/pkg/schema"
	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
	"github.com/shardfs/shard/pkg/wire"
)

// ApplyConstructFile creates a new transient inode, per §4.3.
func ApplyConstructFile(store *shardstore.Store, batch *shardstore.WriteBatch, e ConstructFile) (Response, error) {
	body := schema.TransientFileBody{Version: 1, Deadline: e.Deadline, LastSpanState: schema.SpanStateClean, Note: e.Note}
	batch.PutTransientFile(e.Id, body)
	cookie := wire.TransientFileCookie(store.SecretKey(), e.Id)
	return ConstructFileResponse{Id: e.Id, Cookie: cookie}, nil
}

// ApplyLinkFile moves a transient file to durable and creates its
// current edge, per §4.3. Idempotent when the file was already linked
// under the same name to the same target.
func ApplyLinkFile(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, entryTime shardid.TernTime, e LinkFile) (Response, error) {
	tf, err := snap.GetTransientFile(e.File)
	if err != nil {
		if existing, fErr := snap.GetFile(e.File); fErr == nil {
			hashMode, _ := hashModeOf(snap, e.OwnerDir)
			h := nameHash(hashMode, e.Name)
			if edge, ok, gErr := snap.GetCurrentEdge(e.OwnerDir, h, e.Name); gErr == nil && ok && edge.Target == e.File {
				_ = existing
				return CreateCurrentEdgeResponse{CreationTime: edge.CreationTime}, nil
			}
		}
		return nil, err
	}
	if tf.LastSpanState != schema.SpanStateClean {
		return nil, shardstore.NewError(shardstore.ErrorCodeLastSpanStateNotClean, "")
	}

	hashMode, err := directoryPreamble(snap, batch, e.OwnerDir, entryTime)
	if err != nil {
		return nil, err
	}
	creationTime, err := createCurrentEdge(snap, batch, e.OwnerDir, hashMode, e.Name, e.File, entryTime, false, 0)
	if err != nil {
		return nil, err
	}

	batch.DeleteTransientFile(e.File)
	batch.PutFile(e.File, schema.FileBody{Version: 1, Mtime: entryTime, Atime: entryTime, Size: tf.Size})
	return CreateCurrentEdgeResponse{CreationTime: creationTime}, nil
}

func hashModeOf(snap *shardstore.ReadSnapshot, dir shardid.InodeId) (xxh.HashMode, error) {
	d, err := snap.GetDirectory(dir)
	return d.HashMode, err
}

// ApplyMakeFileTransient is the inverse of link: idempotent if already
// transient.
func ApplyMakeFileTransient(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, e MakeFileTransient) (Response, error) {
	if _, err := snap.GetTransientFile(e.Id); err == nil {
		return OkResponse{}, nil
	}
	file, err := snap.GetFile(e.Id)
	if err != nil {
		return nil, err
	}
	batch.DeleteFile(e.Id)
	batch.PutTransientFile(e.Id, schema.TransientFileBody{
		Version: 1, Size: file.Size, Mtime: file.Mtime, Deadline: e.Deadline,
		LastSpanState: schema.SpanStateClean, Note: e.Note,
	})
	return OkResponse{}, nil
}

// ApplySameShardHardFileUnlink deletes a non-current owned snapshot edge
// and moves the target file to transient with a new deadline, in one
// transaction. Idempotent if the file is already transient.
func ApplySameShardHardFileUnlink(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, e SameShardHardFileUnlink) (Response, error) {
	if _, err := snap.GetTransientFile(e.Target); err == nil {
		return OkResponse{}, nil
	}
	file, err := snap.GetFile(e.Target)
	if err != nil {
		return nil, err
	}

	hashMode, err := hashModeOf(snap, e.Owner)
	if err != nil {
		return nil, err
	}
	h := nameHash(hashMode, e.Name)
	_, body, ok, err := snap.GetLatestSnapshotEdge(e.Owner, h, e.Name)
	if err != nil {
		return nil, err
	}
	if !ok || !body.Owned || body.Target != e.Target {
		return nil, shardstore.NewError(shardstore.ErrorCodeEdgeNotOwned, "")
	}
	batch.DeleteSnapshotEdge(e.Owner, h, e.Name, e.CreationTime)

	batch.DeleteFile(e.Target)
	batch.PutTransientFile(e.Target, schema.TransientFileBody{
		Version: 1, Size: file.Size, Mtime: file.Mtime, Deadline: e.Deadline, LastSpanState: schema.SpanStateClean,
	})
	return OkResponse{}, nil
}

// ApplyScrapTransientFile hastens removal by moving the deadline.
func ApplyScrapTransientFile(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, e ScrapTransientFile) (Response, error) {
	tf, err := snap.GetTransientFile(e.Id)
	if err != nil {
		return nil, err
	}
	tf.Deadline = e.Deadline
	batch.PutTransientFile(e.Id, tf)
	return OkResponse{}, nil
}

// ApplyRemoveInode removes a directory (owner-cleared, no edges) or a
// transient file (past deadline, no spans). Idempotent on a missing id;
// refuses the root.
func ApplyRemoveInode(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, e RemoveInode, entryTime shardid.TernTime) (Response, error) {
	if e.Id == shardid.RootDirInodeId {
		return nil, shardstore.NewError(shardstore.ErrorCodeCannotRemoveRoot, "")
	}

	switch e.Id.Type() {
	case shardid.InodeTypeDirectory:
		dir, err := snap.GetDirectory(e.Id)
		if err != nil {
			if de, ok := err.(*shardstore.Error); ok && de.Code == shardstore.ErrorCodeDirectoryNotFound {
				return OkResponse{}, nil
			}
			return nil, err
		}
		if !dir.OwnerId.IsNull() {
			return nil, shardstore.NewError(shardstore.ErrorCodeDirectoryHasOwner, "")
		}
		for _, current := range []bool{true, false} {
			it := snap.EdgeIterator(e.Id, current)
			it.Seek(schema.EdgeDirPrefix(e.Id, current))
			nonEmpty := it.Valid()
			it.Close()
			if nonEmpty {
				return nil, shardstore.NewError(shardstore.ErrorCodeDirectoryNotEmpty, "")
			}
		}
		batch.DeleteDirectory(e.Id)
		return OkResponse{}, nil
	default:
		tf, err := snap.GetTransientFile(e.Id)
		if err != nil {
			if de, ok := err.(*shardstore.Error); ok && de.Code == shardstore.ErrorCodeFileNotFound {
				return OkResponse{}, nil
			}
			return nil, err
		}
		if entryTime < tf.Deadline {
			return nil, shardstore.NewError(shardstore.ErrorCodeDeadlineNotPassed, "")
		}
		if tf.Size != 0 {
			return nil, shardstore.NewError(shardstore.ErrorCodeFileNotEmpty, "")
		}
		batch.DeleteTransientFile(e.Id)
		return OkResponse{}, nil
	}
}
