//go:build integration

package applypath

import (
	"os"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/shardfs/shard/internal/kv"
	"github.com/shardfs/shard/internal/mac"
	"github.com/shardfs/shard/pkg/blockcache"
	"github.com/shardfs/shard/pkg/schema"
	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
	"github.com/shardfs/shard/pkg/wire"
)

func openTestStore(t *testing.T) *shardstore.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "applypath-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := shardstore.Open(kv.NewBadgerStore(db, 0), shardid.ShardId(1), true)
	require.NoError(t, err)
	return store
}

func apply(t *testing.T, store *shardstore.Store, cache blockcache.Snapshot, logIndex uint64, entryTime shardid.TernTime, e Entry) (Response, error) {
	t.Helper()
	store.Lock()
	defer store.Unlock()
	return Apply(store, cache, logIndex, entryTime, e)
}

func TestConstructThenLinkIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	fileID := store.AllocateFileId()

	resp1, err := apply(t, store, nil, 1, 100, ConstructFile{Id: fileID, Deadline: 1000})
	require.NoError(t, err)
	cf1 := resp1.(ConstructFileResponse)

	resp2, err := apply(t, store, nil, 2, 101, ConstructFile{Id: fileID, Deadline: 1000})
	require.NoError(t, err)
	cf2 := resp2.(ConstructFileResponse)
	require.Equal(t, cf1.Cookie, cf2.Cookie)

	link := LinkFile{File: fileID, OwnerDir: shardid.RootDirInodeId, Name: "a.txt"}
	r1, err := apply(t, store, nil, 3, 200, link)
	require.NoError(t, err)
	c1 := r1.(CreateCurrentEdgeResponse)

	r2, err := apply(t, store, nil, 4, 201, link)
	require.NoError(t, err)
	c2 := r2.(CreateCurrentEdgeResponse)
	require.Equal(t, c1.CreationTime, c2.CreationTime)

	snap := store.NewReadSnapshot()
	defer snap.Close()
	_, err = snap.GetTransientFile(fileID)
	require.Error(t, err, "file should no longer be transient after linking")
	file, err := snap.GetFile(fileID)
	require.NoError(t, err)
	require.Equal(t, shardid.TernTime(200), file.Mtime)
}

func TestRemoveInodeIsIdempotentOnMissingTransientFile(t *testing.T) {
	store := openTestStore(t)
	fileID := store.AllocateFileId()

	_, err := apply(t, store, nil, 1, 100, ConstructFile{Id: fileID, Deadline: 50})
	require.NoError(t, err)

	_, err = apply(t, store, nil, 2, 200, RemoveInode{Id: fileID})
	require.NoError(t, err)

	_, err = apply(t, store, nil, 3, 201, RemoveInode{Id: fileID})
	require.NoError(t, err, "removing an already-removed inode must be a no-op, not an error")
}

func TestMakeFileTransientIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	fileID := store.AllocateFileId()
	_, err := apply(t, store, nil, 1, 100, ConstructFile{Id: fileID, Deadline: 1000})
	require.NoError(t, err)
	_, err = apply(t, store, nil, 2, 200, LinkFile{File: fileID, OwnerDir: shardid.RootDirInodeId, Name: "b.txt"})
	require.NoError(t, err)

	_, err = apply(t, store, nil, 3, 300, MakeFileTransient{Id: fileID, Deadline: 400})
	require.NoError(t, err)
	_, err = apply(t, store, nil, 4, 301, MakeFileTransient{Id: fileID, Deadline: 500})
	require.NoError(t, err, "retrying make-file-transient against an already-transient file must succeed")
}

func TestAddSpanAtLocationInitiateReturnsSameBlockIdsOnRetry(t *testing.T) {
	store := openTestStore(t)
	fileID := store.AllocateFileId()
	_, err := apply(t, store, nil, 1, 100, ConstructFile{Id: fileID, Deadline: 1000})
	require.NoError(t, err)

	ids := store.AllocateBlockIds(100, 2)
	entry := AddSpanAtLocationInitiate{
		File:                fileID,
		Offset:              0,
		Size:                4096,
		Parity:              schema.Parity{DataBlocks: 1, ParityBlocks: 1},
		Stripes:             1,
		CellSize:            4096,
		PickedBlockServices: []shardid.BlockServiceId{1, 2},
		PickedBlockIds:      ids,
		StripeCrcs:          []uint32{0xdeadbeef},
		SpanCrc:             0xdeadbeef,
	}
	r1, err := apply(t, store, nil, 2, 200, entry)
	require.NoError(t, err)
	resp1 := r1.(AddSpanAtLocationInitiateResponse)

	r2, err := apply(t, store, nil, 3, 201, entry)
	require.NoError(t, err)
	resp2 := r2.(AddSpanAtLocationInitiateResponse)

	require.Equal(t, resp1.BlockIds, resp2.BlockIds)
	require.Equal(t, ids, resp1.BlockIds)
}

func TestAddSpanCertifyRejectsBadProofAndAcceptsGoodOneIdempotently(t *testing.T) {
	store := openTestStore(t)
	fileID := store.AllocateFileId()
	_, err := apply(t, store, nil, 1, 100, ConstructFile{Id: fileID, Deadline: 1000})
	require.NoError(t, err)

	rawKey := make([]byte, mac.KeySize)
	for i := range rawKey {
		rawKey[i] = byte(i + 1)
	}
	bsKey, err := mac.NewKey(rawKey)
	require.NoError(t, err)
	cache := blockcache.NewCache(nil)
	cache.Put(blockcache.Info{Id: 1, SecretKey: bsKey})
	snap := cache.Snapshot()

	ids := store.AllocateBlockIds(100, 1)
	initiate := AddSpanAtLocationInitiate{
		File:                fileID,
		Offset:              0,
		Size:                10,
		Parity:              schema.Parity{DataBlocks: 1, ParityBlocks: 0},
		Stripes:             1,
		CellSize:            10,
		PickedBlockServices: []shardid.BlockServiceId{1},
		PickedBlockIds:      ids,
		SpanCrc:             1,
	}
	_, err = apply(t, store, nil, 2, 200, initiate)
	require.NoError(t, err)

	_, err = apply(t, store, snap, 3, 300, AddSpanCertify{File: fileID, Offset: 0, Proofs: [][8]byte{{1, 2, 3}}})
	require.Error(t, err, "a forged write proof must be rejected")

	proof := wire.WriteProof(bsKey, 1, ids[0])
	_, err = apply(t, store, snap, 4, 301, AddSpanCertify{File: fileID, Offset: 0, Proofs: [][8]byte{proof}})
	require.NoError(t, err, "a genuine write proof must be accepted")

	_, err = apply(t, store, snap, 5, 302, AddSpanCertify{File: fileID, Offset: 0, Proofs: [][8]byte{proof}})
	require.NoError(t, err, "retrying add-span-certify once already clean must be a no-op")
}

func TestRemoveSpanInitiateDeletesInlineSpanAndShrinksFile(t *testing.T) {
	store := openTestStore(t)
	fileID := store.AllocateFileId()
	_, err := apply(t, store, nil, 1, 100, ConstructFile{Id: fileID, Deadline: 1000})
	require.NoError(t, err)

	_, err = apply(t, store, nil, 2, 200, AddInlineSpan{File: fileID, Offset: 0, Size: 5, Crc: 1, Body: []byte("hello")})
	require.NoError(t, err)

	_, err = apply(t, store, nil, 3, 300, RemoveSpanInitiate{File: fileID})
	require.NoError(t, err)

	snap := store.NewReadSnapshot()
	defer snap.Close()
	_, ok, err := snap.GetSpan(fileID, 0)
	require.NoError(t, err)
	require.False(t, ok, "inline span must be deleted, not merely certified for erasure")
	tf, err := snap.GetTransientFile(fileID)
	require.NoError(t, err)
	require.Equal(t, uint64(0), tf.Size, "file must shrink to the removed span's offset")
}

func TestRemoveSpanInitiateCondemnsLastSpanAndBlocksCertifyUntilErased(t *testing.T) {
	store := openTestStore(t)
	fileID := store.AllocateFileId()
	_, err := apply(t, store, nil, 1, 100, ConstructFile{Id: fileID, Deadline: 1000})
	require.NoError(t, err)

	rawKey := make([]byte, mac.KeySize)
	for i := range rawKey {
		rawKey[i] = byte(i + 1)
	}
	bsKey, err := mac.NewKey(rawKey)
	require.NoError(t, err)
	cache := blockcache.NewCache(nil)
	cache.Put(blockcache.Info{Id: 1, SecretKey: bsKey})
	snap := cache.Snapshot()

	ids := store.AllocateBlockIds(100, 1)
	initiate := AddSpanAtLocationInitiate{
		File:                fileID,
		Offset:              0,
		Size:                10,
		Parity:              schema.Parity{DataBlocks: 1, ParityBlocks: 0},
		Stripes:             1,
		CellSize:            10,
		PickedBlockServices: []shardid.BlockServiceId{1},
		PickedBlockIds:      ids,
		SpanCrc:             1,
	}
	_, err = apply(t, store, nil, 2, 200, initiate)
	require.NoError(t, err)
	proof := wire.WriteProof(bsKey, 1, ids[0])
	_, err = apply(t, store, snap, 3, 300, AddSpanCertify{File: fileID, Offset: 0, Proofs: [][8]byte{proof}})
	require.NoError(t, err)

	resp, err := apply(t, store, snap, 4, 400, RemoveSpanInitiate{File: fileID})
	require.NoError(t, err)
	init := resp.(RemoveSpanInitiateResponse)
	require.Len(t, init.EraseCertificates, 1)

	_, err = apply(t, store, snap, 5, 401, AddSpanCertify{File: fileID, Offset: 0, Proofs: [][8]byte{proof}})
	require.Error(t, err, "a condemned last span must not be certifiable")

	eraseProof := wire.EraseProof(bsKey, 1, ids[0])
	_, err = apply(t, store, snap, 6, 500, RemoveSpanCertify{File: fileID, Offset: 0, Proofs: [][8]byte{eraseProof}})
	require.NoError(t, err)

	final := store.NewReadSnapshot()
	defer final.Close()
	_, ok, err := final.GetSpan(fileID, 0)
	require.NoError(t, err)
	require.False(t, ok)
	tf, err := final.GetTransientFile(fileID)
	require.NoError(t, err)
	require.Equal(t, schema.SpanStateClean, tf.LastSpanState, "erase completion must take the last span back to clean")
	require.Equal(t, uint64(0), tf.Size)
}

func TestSwapBlocksExchangesBlocksBetweenSpansIdempotently(t *testing.T) {
	store := openTestStore(t)
	fileA := store.AllocateFileId()
	fileB := store.AllocateFileId()
	_, err := apply(t, store, nil, 1, 100, ConstructFile{Id: fileA, Deadline: 1000})
	require.NoError(t, err)
	_, err = apply(t, store, nil, 2, 101, ConstructFile{Id: fileB, Deadline: 1000})
	require.NoError(t, err)

	rawKey1 := make([]byte, mac.KeySize)
	rawKey2 := make([]byte, mac.KeySize)
	for i := range rawKey1 {
		rawKey1[i] = byte(i + 1)
		rawKey2[i] = byte(i + 2)
	}
	key1, err := mac.NewKey(rawKey1)
	require.NoError(t, err)
	key2, err := mac.NewKey(rawKey2)
	require.NoError(t, err)
	cache := blockcache.NewCache(nil)
	cache.Put(blockcache.Info{Id: 1, SecretKey: key1, FailureDomain: "rack-a"})
	cache.Put(blockcache.Info{Id: 2, SecretKey: key2, FailureDomain: "rack-b"})
	snap := cache.Snapshot()

	idsA := store.AllocateBlockIds(100, 1)
	idsB := store.AllocateBlockIds(200, 1)
	_, err = apply(t, store, nil, 3, 200, AddSpanAtLocationInitiate{
		File: fileA, Offset: 0, Size: 10,
		Parity: schema.Parity{DataBlocks: 1, ParityBlocks: 0}, Stripes: 1, CellSize: 10,
		PickedBlockServices: []shardid.BlockServiceId{1}, PickedBlockIds: idsA, SpanCrc: 7,
	})
	require.NoError(t, err)
	_, err = apply(t, store, snap, 4, 201, AddSpanCertify{File: fileA, Offset: 0, Proofs: [][8]byte{wire.WriteProof(key1, 1, idsA[0])}})
	require.NoError(t, err)

	_, err = apply(t, store, nil, 5, 300, AddSpanAtLocationInitiate{
		File: fileB, Offset: 0, Size: 10,
		Parity: schema.Parity{DataBlocks: 1, ParityBlocks: 0}, Stripes: 1, CellSize: 10,
		PickedBlockServices: []shardid.BlockServiceId{2}, PickedBlockIds: idsB, SpanCrc: 9,
	})
	require.NoError(t, err)
	_, err = apply(t, store, snap, 6, 301, AddSpanCertify{File: fileB, Offset: 0, Proofs: [][8]byte{wire.WriteProof(key2, 2, idsB[0])}})
	require.NoError(t, err)

	swap := SwapBlocks{File1: fileA, Offset1: 0, BlockId1: idsA[0], File2: fileB, Offset2: 0, BlockId2: idsB[0]}
	_, err = apply(t, store, snap, 7, 400, swap)
	require.NoError(t, err)

	after := store.NewReadSnapshot()
	defer after.Close()
	spanA, ok, err := after.GetSpan(fileA, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, idsB[0], spanA.Locations[0].Blocks[0].BlockId)
	spanB, ok, err := after.GetSpan(fileB, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, idsA[0], spanB.Locations[0].Blocks[0].BlockId)

	_, err = apply(t, store, snap, 8, 401, swap)
	require.NoError(t, err, "retrying an already-applied swap-blocks must be a no-op")
}

func TestSwapSpansExchangesWholeSpansIdempotently(t *testing.T) {
	store := openTestStore(t)
	fileA := store.AllocateFileId()
	fileB := store.AllocateFileId()
	_, err := apply(t, store, nil, 1, 100, ConstructFile{Id: fileA, Deadline: 1000})
	require.NoError(t, err)
	_, err = apply(t, store, nil, 2, 101, ConstructFile{Id: fileB, Deadline: 1000})
	require.NoError(t, err)

	rawKey := make([]byte, mac.KeySize)
	for i := range rawKey {
		rawKey[i] = byte(i + 1)
	}
	key, err := mac.NewKey(rawKey)
	require.NoError(t, err)
	cache := blockcache.NewCache(nil)
	cache.Put(blockcache.Info{Id: 1, SecretKey: key})
	snap := cache.Snapshot()

	idsA := store.AllocateBlockIds(100, 1)
	idsB := store.AllocateBlockIds(200, 1)
	_, err = apply(t, store, nil, 3, 200, AddSpanAtLocationInitiate{
		File: fileA, Offset: 0, Size: 10,
		Parity: schema.Parity{DataBlocks: 1, ParityBlocks: 0}, Stripes: 1, CellSize: 10,
		PickedBlockServices: []shardid.BlockServiceId{1}, PickedBlockIds: idsA, SpanCrc: 7,
	})
	require.NoError(t, err)
	_, err = apply(t, store, snap, 4, 201, AddSpanCertify{File: fileA, Offset: 0, Proofs: [][8]byte{wire.WriteProof(key, 1, idsA[0])}})
	require.NoError(t, err)

	_, err = apply(t, store, nil, 5, 300, AddSpanAtLocationInitiate{
		File: fileB, Offset: 0, Size: 10,
		Parity: schema.Parity{DataBlocks: 1, ParityBlocks: 0}, Stripes: 1, CellSize: 10,
		PickedBlockServices: []shardid.BlockServiceId{1}, PickedBlockIds: idsB, SpanCrc: 7,
	})
	require.NoError(t, err)
	_, err = apply(t, store, snap, 6, 301, AddSpanCertify{File: fileB, Offset: 0, Proofs: [][8]byte{wire.WriteProof(key, 1, idsB[0])}})
	require.NoError(t, err)

	swap := SwapSpans{File1: fileA, Offset1: 0, Blocks1: idsA, File2: fileB, Offset2: 0, Blocks2: idsB}
	_, err = apply(t, store, snap, 7, 400, swap)
	require.NoError(t, err)

	after := store.NewReadSnapshot()
	defer after.Close()
	spanA, ok, err := after.GetSpan(fileA, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, idsB[0], spanA.Locations[0].Blocks[0].BlockId)
	spanB, ok, err := after.GetSpan(fileB, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, idsA[0], spanB.Locations[0].Blocks[0].BlockId)

	_, err = apply(t, store, snap, 8, 401, swap)
	require.NoError(t, err, "retrying an already-applied swap-spans must be a no-op")
}
