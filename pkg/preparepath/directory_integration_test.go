//go:build integration

package preparepath

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
)

func TestPrepareCreateDirectoryInodeRejectsNonDirectory(t *testing.T) {
	file := shardid.NewInodeId(shardid.InodeTypeFile, shardid.ShardId(1), 1)
	_, err := PrepareCreateDirectoryInode(file, shardid.RootDirInodeId, nil, shardid.TernTime(1))
	require.Error(t, err)
	var se *shardstore.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, shardstore.ErrorCodeTypeIsNotDirectory, se.Code)
}

func TestPrepareCreateLockedCurrentEdgeValidatesDirAndName(t *testing.T) {
	dir := shardid.NewInodeId(shardid.InodeTypeDirectory, shardid.ShardId(1), 1)
	target := shardid.NewInodeId(shardid.InodeTypeFile, shardid.ShardId(1), 2)

	entry, err := PrepareCreateLockedCurrentEdge(dir, "a.txt", target, shardid.TernTime(0), shardid.TernTime(100))
	require.NoError(t, err)
	require.Equal(t, dir, entry.Dir)
	require.Equal(t, "a.txt", entry.Name)
	require.Equal(t, target, entry.Target)

	_, err = PrepareCreateLockedCurrentEdge(target, "a.txt", target, shardid.TernTime(0), shardid.TernTime(100))
	require.Error(t, err)
	var se *shardstore.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, shardstore.ErrorCodeTypeIsNotDirectory, se.Code)

	_, err = PrepareCreateLockedCurrentEdge(dir, "..", target, shardid.TernTime(0), shardid.TernTime(100))
	require.ErrorAs(t, err, &se)
	require.Equal(t, shardstore.ErrorCodeBadName, se.Code)
}

func TestPrepareMoveSpanRejectsDirectory(t *testing.T) {
	dir := shardid.NewInodeId(shardid.InodeTypeDirectory, shardid.ShardId(1), 1)
	_, err := PrepareMoveSpan(dir, 0, 10)
	require.Error(t, err)
	var se *shardstore.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, shardstore.ErrorCodeTypeIsDirectory, se.Code)
}
