package preparepath

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
)

func TestValidateNameRejectsReservedAndMalformedNames(t *testing.T) {
	for _, name := range []string{"", ".", "..", "a/b", "a\x00b"} {
		err := validateName(name)
		require.Error(t, err, "name %q must be rejected", name)
		var se *shardstore.Error
		require.ErrorAs(t, err, &se)
		require.Equal(t, shardstore.ErrorCodeBadName, se.Code)
	}
}

func TestValidateNameAcceptsOrdinaryNames(t *testing.T) {
	for _, name := range []string{"a", "file.txt", "...", ".hidden"} {
		require.NoError(t, validateName(name))
	}
}

func TestValidateShardRejectsMismatch(t *testing.T) {
	id := shardid.NewInodeId(shardid.InodeTypeFile, shardid.ShardId(2), 1)
	err := validateShard(shardid.ShardId(1), id)
	require.Error(t, err)
	var se *shardstore.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, shardstore.ErrorCodeBadShard, se.Code)

	require.NoError(t, validateShard(shardid.ShardId(2), id))
}

func TestValidateTypeReportsDirectoryMismatchBothWays(t *testing.T) {
	dir := shardid.NewInodeId(shardid.InodeTypeDirectory, shardid.ShardId(1), 1)
	file := shardid.NewInodeId(shardid.InodeTypeFile, shardid.ShardId(1), 2)

	err := validateType(file, shardid.InodeTypeDirectory)
	require.Error(t, err)
	var se *shardstore.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, shardstore.ErrorCodeTypeIsNotDirectory, se.Code)

	err = validateType(dir, shardid.InodeTypeFile)
	require.ErrorAs(t, err, &se)
	require.Equal(t, shardstore.ErrorCodeTypeIsDirectory, se.Code)

	require.NoError(t, validateType(dir, shardid.InodeTypeDirectory))
}
