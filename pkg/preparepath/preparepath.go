// Package preparepath implements the shard's prepare handlers: request
// validation, non-deterministic value allocation (wall clock,
// block-service picks, ids), and log-entry construction, per §4.2. A
// prepare handler never mutates the store — it only reads a snapshot for
// context an apply handler must not be left to redo non-deterministically
// — and returns either a fully-resolved pkg/applypath.Entry ready to log,
// or a typed *pkg/shardstore.Error. This mirrors the validate-then-build
// request handling in pkg/store/metadata/badger/directory.go and file.go,
// generalized from the teacher's fixed NFS operation set to this shard's
// per-operation prepare handlers.
package preparepath

import (
	"strings"

	"github.com/shardfs/shard/internal/codec"
	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
)

// validateName enforces §4.2 step 1's name well-formedness rule: non-empty,
// at most codec.MaxShortStringLen bytes, not "." or "..", and free of '/'
// and NUL.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." || len(name) > codec.MaxShortStringLen {
		return shardstore.NewError(shardstore.ErrorCodeBadName, "")
	}
	if strings.ContainsAny(name, "/\x00") {
		return shardstore.NewError(shardstore.ErrorCodeBadName, "")
	}
	return nil
}

// validateShard rejects a request whose target id was minted for a
// different shard than the one preparing it.
func validateShard(want shardid.ShardId, id shardid.InodeId) error {
	if id.Shard() != want {
		return shardstore.NewError(shardstore.ErrorCodeBadShard, "")
	}
	return nil
}

// validateType rejects a request whose id is not of the expected inode
// type (e.g. a file operation targeting a directory id).
func validateType(id shardid.InodeId, want shardid.InodeType) error {
	if id.Type() != want {
		if want == shardid.InodeTypeDirectory {
			return shardstore.NewError(shardstore.ErrorCodeTypeIsNotDirectory, "")
		}
		return shardstore.NewError(shardstore.ErrorCodeTypeIsDirectory, "")
	}
	return nil
}
