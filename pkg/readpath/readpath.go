// Package readpath implements the shard's stateless query operations
// against a shared read snapshot, MTU-budgeted per §4.1. Handlers never
// mutate anything and never take the write lock: they run entirely off
// pkg/shardstore.ReadSnapshot, mirroring the read side of
// pkg/store/metadata/badger/directory.go and file.go in the teacher.
package readpath

import (
	"context"

	"github.com/shardfs/shard/internal/xxh"
	"github.com/shardfs/shard/pkg/schema"
	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
)

// nameHash reproduces the directory's registered hash mode, matching
// pkg/applypath's own nameHash helper — both sides of the write/read
// split need identical hashing for lookups to agree.
func nameHash(mode xxh.HashMode, name string) uint64 { return xxh.Sum(mode, []byte(name)) }

// entryOverhead is the estimated framed-response bytes attributable to a
// fixed-size scalar field (an id, a timestamp, a hash) once wire-encoded,
// used by every paginated handler's per-entry budget accounting alongside
// the actual variable-length payload (names, notes).
const entryOverhead = 24

func nameCost(name string) int { return entryOverhead + len(name) }

// StatFileResponse is stat-file's result.
type StatFileResponse struct {
	Mtime               shardid.TernTime
	Atime               shardid.TernTime
	Size                uint64
	LastAppliedLogIndex uint64
}

// StatFile returns mtime/atime/size for a durable file or symlink.
func StatFile(ctx context.Context, snap *shardstore.ReadSnapshot, id shardid.InodeId) (StatFileResponse, error) {
	if id.Type() == shardid.InodeTypeDirectory {
		return StatFileResponse{}, shardstore.NewError(shardstore.ErrorCodeTypeIsDirectory, "")
	}
	file, err := snap.GetFile(id)
	if err != nil {
		return StatFileResponse{}, err
	}
	return StatFileResponse{
		Mtime: file.Mtime, Atime: file.Atime, Size: file.Size,
		LastAppliedLogIndex: snap.LastAppliedLogIndex(),
	}, nil
}

// StatTransientFileResponse is stat-transient-file's result.
type StatTransientFileResponse struct {
	Mtime               shardid.TernTime
	Size                uint64
	Note                string
	LastAppliedLogIndex uint64
}

func StatTransientFile(ctx context.Context, snap *shardstore.ReadSnapshot, id shardid.InodeId) (StatTransientFileResponse, error) {
	tf, err := snap.GetTransientFile(id)
	if err != nil {
		return StatTransientFileResponse{}, err
	}
	return StatTransientFileResponse{
		Mtime: tf.Mtime, Size: tf.Size, Note: tf.Note,
		LastAppliedLogIndex: snap.LastAppliedLogIndex(),
	}, nil
}

// StatDirectoryResponse is stat-directory's result. Owner is the null
// InodeId (IsNull() true) for a snapshot/owner-cleared directory, which
// is a valid, non-error result per §4.1.
type StatDirectoryResponse struct {
	Mtime               shardid.TernTime
	Owner               shardid.InodeId
	Info                []schema.DirectoryInfoEntry
	LastAppliedLogIndex uint64
}

func StatDirectory(ctx context.Context, snap *shardstore.ReadSnapshot, id shardid.InodeId) (StatDirectoryResponse, error) {
	dir, err := snap.GetDirectory(id)
	if err != nil {
		return StatDirectoryResponse{}, err
	}
	return StatDirectoryResponse{
		Mtime: dir.Mtime, Owner: dir.OwnerId, Info: dir.Info,
		LastAppliedLogIndex: snap.LastAppliedLogIndex(),
	}, nil
}

// LookupResponse is lookup's result.
type LookupResponse struct {
	Target              shardid.InodeId
	CreationTime        shardid.TernTime
	LastAppliedLogIndex uint64
}

// Lookup resolves a name to its current-edge target within dir.
func Lookup(ctx context.Context, snap *shardstore.ReadSnapshot, dir shardid.InodeId, name string) (LookupResponse, error) {
	d, err := snap.GetDirectory(dir)
	if err != nil {
		return LookupResponse{}, err
	}
	h := nameHash(d.HashMode, name)
	edge, ok, err := snap.GetCurrentEdge(dir, h, name)
	if err != nil {
		return LookupResponse{}, err
	}
	if !ok {
		return LookupResponse{}, shardstore.NewError(shardstore.ErrorCodeNameNotFound, "")
	}
	return LookupResponse{
		Target: edge.Target, CreationTime: edge.CreationTime,
		LastAppliedLogIndex: snap.LastAppliedLogIndex(),
	}, nil
}
