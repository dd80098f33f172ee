//go:build integration

package preparepath

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
	"github.com/shardfs/shard/pkg/wire"
)

func TestPrepareConstructFileAllocatesTypedId(t *testing.T) {
	store := openTestStore(t)

	entry, err := PrepareConstructFile(store, ConstructFileRequest{Type: shardid.InodeTypeFile, Note: "n"}, shardid.TernTime(1000), time.Minute)
	require.NoError(t, err)
	require.Equal(t, shardid.InodeTypeFile, entry.Id.Type())
	require.Equal(t, "n", entry.Note)
	require.Greater(t, int64(entry.Deadline), int64(1000))
}

func TestPrepareConstructFileRejectsDirectoryType(t *testing.T) {
	store := openTestStore(t)
	_, err := PrepareConstructFile(store, ConstructFileRequest{Type: shardid.InodeTypeDirectory}, shardid.TernTime(0), time.Minute)
	require.Error(t, err)
	var se *shardstore.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, shardstore.ErrorCodeTypeIsDirectory, se.Code)
}

func TestPrepareLinkFileVerifiesCookie(t *testing.T) {
	store := openTestStore(t)
	entry, err := PrepareConstructFile(store, ConstructFileRequest{Type: shardid.InodeTypeFile}, shardid.TernTime(0), time.Minute)
	require.NoError(t, err)
	cookie := wire.TransientFileCookie(store.SecretKey(), entry.Id)

	_, err = PrepareLinkFile(store, LinkFileRequest{
		File:     entry.Id,
		Cookie:   cookie,
		OwnerDir: shardid.RootDirInodeId,
		Name:     "a.txt",
	}, shardid.ShardId(1))
	require.NoError(t, err)

	_, err = PrepareLinkFile(store, LinkFileRequest{
		File:     entry.Id,
		Cookie:   [8]byte{},
		OwnerDir: shardid.RootDirInodeId,
		Name:     "a.txt",
	}, shardid.ShardId(1))
	require.Error(t, err)
	var se *shardstore.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, shardstore.ErrorCodeBadCookie, se.Code)
}

func TestPrepareLinkFileRejectsBadName(t *testing.T) {
	store := openTestStore(t)
	entry, err := PrepareConstructFile(store, ConstructFileRequest{Type: shardid.InodeTypeFile}, shardid.TernTime(0), time.Minute)
	require.NoError(t, err)
	cookie := wire.TransientFileCookie(store.SecretKey(), entry.Id)

	_, err = PrepareLinkFile(store, LinkFileRequest{
		File: entry.Id, Cookie: cookie, OwnerDir: shardid.RootDirInodeId, Name: "..",
	}, shardid.ShardId(1))
	require.Error(t, err)
	var se *shardstore.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, shardstore.ErrorCodeBadName, se.Code)
}

func TestPrepareLinkFileRejectsWrongShard(t *testing.T) {
	store := openTestStore(t)
	entry, err := PrepareConstructFile(store, ConstructFileRequest{Type: shardid.InodeTypeFile}, shardid.TernTime(0), time.Minute)
	require.NoError(t, err)
	cookie := wire.TransientFileCookie(store.SecretKey(), entry.Id)

	_, err = PrepareLinkFile(store, LinkFileRequest{
		File: entry.Id, Cookie: cookie, OwnerDir: shardid.RootDirInodeId, Name: "a.txt",
	}, shardid.ShardId(2))
	require.Error(t, err)
	var se *shardstore.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, shardstore.ErrorCodeBadShard, se.Code)
}
