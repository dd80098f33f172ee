//go:build integration

package preparepath

import (
	"os"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/shardfs/shard/internal/crc"
	"github.com/shardfs/shard/internal/kv"
	"github.com/shardfs/shard/pkg/blockcache"
	"github.com/shardfs/shard/pkg/schema"
	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
)

func openTestStore(t *testing.T) *shardstore.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "preparepath-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := shardstore.Open(kv.NewBadgerStore(db, 0), shardid.ShardId(1), true)
	require.NoError(t, err)
	return store
}

func TestPrepareAddSpanAtLocationInitiateRejectsDirectory(t *testing.T) {
	store := openTestStore(t)
	snap := store.NewReadSnapshot()
	defer snap.Close()

	dir := shardid.NewInodeId(shardid.InodeTypeDirectory, shardid.ShardId(1), 1)
	cache := cacheWith(blockcache.Info{Id: 1, FailureDomain: "rack-a", StorageClass: 1})

	_, err := PrepareAddSpanAtLocationInitiate(cache, store, snap, AddSpanAtLocationRequest{
		File:         dir,
		Parity:       schema.Parity{DataBlocks: 1, ParityBlocks: 1},
		BlockCrcs:    []uint32{1, 1},
		CellSize:     4,
	}, shardid.TernTime(1))
	require.Error(t, err)
	var se *shardstore.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, shardstore.ErrorCodeTypeIsDirectory, se.Code)
}

func TestPrepareAddSpanAtLocationInitiateAllocatesFreshBlockIdsAndPicks(t *testing.T) {
	store := openTestStore(t)
	snap := store.NewReadSnapshot()
	defer snap.Close()

	file := store.AllocateFileId()
	cache := cacheWith(
		blockcache.Info{Id: 1, FailureDomain: "rack-a", StorageClass: 1},
		blockcache.Info{Id: 2, FailureDomain: "rack-b", StorageClass: 1},
	)

	body := []byte{1, 2, 3, 4}
	stripeCrc := crc.Checksum(body)

	entry, err := PrepareAddSpanAtLocationInitiate(cache, store, snap, AddSpanAtLocationRequest{
		File:         file,
		Offset:       0,
		Size:         uint32(len(body)),
		Parity:       schema.Parity{DataBlocks: 1, ParityBlocks: 1},
		Stripes:      1,
		CellSize:     4,
		StorageClass: 1,
		BlockCrcs:    []uint32{stripeCrc, stripeCrc},
		StripeCrcs:   []uint32{stripeCrc},
		SpanCrc:      stripeCrc,
	}, shardid.TernTime(1))
	require.NoError(t, err)
	require.Len(t, entry.PickedBlockServices, 2)
	require.Len(t, entry.PickedBlockIds, 2)
	require.NotEqual(t, entry.PickedBlockIds[0], entry.PickedBlockIds[1])
	require.Equal(t, file, entry.File)
	require.Equal(t, stripeCrc, entry.SpanCrc)
}

func TestPrepareAddSpanAtLocationInitiateRejectsBadSpanCrc(t *testing.T) {
	store := openTestStore(t)
	snap := store.NewReadSnapshot()
	defer snap.Close()

	file := store.AllocateFileId()
	cache := cacheWith(
		blockcache.Info{Id: 1, FailureDomain: "rack-a", StorageClass: 1},
		blockcache.Info{Id: 2, FailureDomain: "rack-b", StorageClass: 1},
	)

	_, err := PrepareAddSpanAtLocationInitiate(cache, store, snap, AddSpanAtLocationRequest{
		File:         file,
		Size:         4,
		Parity:       schema.Parity{DataBlocks: 1, ParityBlocks: 1},
		Stripes:      1,
		CellSize:     4,
		StorageClass: 1,
		BlockCrcs:    []uint32{9, 9},
		StripeCrcs:   []uint32{9},
		SpanCrc:      0,
	}, shardid.TernTime(1))
	require.Error(t, err)
	var se *shardstore.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, shardstore.ErrorCodeBadSpanBody, se.Code)
}
