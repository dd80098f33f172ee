//go:build integration

package shardstore

import (
	"os"
	"testing"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/shardfs/shard/internal/kv"
	"github.com/shardfs/shard/pkg/schema"
	"github.com/shardfs/shard/pkg/shardid"
)

func openTestStore(t *testing.T, ownsRoot bool) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "shardstore-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := Open(kv.NewBadgerStore(db, 0), shardid.ShardId(1), ownsRoot)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestOpenGeneratesSecretKeyOnce(t *testing.T) {
	dir, err := os.MkdirTemp("", "shardstore-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s1, err := Open(kv.NewBadgerStore(db, 0), shardid.ShardId(1), false)
	if err != nil {
		t.Fatal(err)
	}
	key1 := s1.SecretKey()

	s2, err := Open(kv.NewBadgerStore(db, 0), shardid.ShardId(1), false)
	if err != nil {
		t.Fatal(err)
	}
	if s2.SecretKey() != key1 {
		t.Fatal("secret key should be stable across reopen")
	}
}

func TestOpenRejectsShardIdMismatch(t *testing.T) {
	dir, err := os.MkdirTemp("", "shardstore-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if _, err := Open(kv.NewBadgerStore(db, 0), shardid.ShardId(1), false); err != nil {
		t.Fatal(err)
	}
	_, err = Open(kv.NewBadgerStore(db, 0), shardid.ShardId(2), false)
	if _, ok := err.(*FatalError); !ok {
		t.Fatalf("expected FatalError, got %v", err)
	}
}

func TestOpenCreatesRootWhenOwned(t *testing.T) {
	store := openTestStore(t, true)
	snap := store.NewReadSnapshot()
	defer snap.Close()

	dir, err := snap.GetDirectory(shardid.RootDirInodeId)
	if err != nil {
		t.Fatal(err)
	}
	if !dir.OwnerId.IsNull() {
		t.Fatalf("root directory should have no owner, got %v", dir.OwnerId)
	}
}

func TestAllocateFileIdIncrementsByCounterStep(t *testing.T) {
	store := openTestStore(t, false)
	a := store.AllocateFileId()
	b := store.AllocateFileId()
	if b != shardid.NextInodeId(a, shardid.InodeTypeFile, store.ShardId()) {
		t.Fatalf("expected consecutive allocation, got %v then %v", a, b)
	}
}

func TestAllocateBlockIdsMonotonic(t *testing.T) {
	store := openTestStore(t, false)
	ids := store.AllocateBlockIds(shardid.TernTime(1_000_000_000), 4)
	if len(ids) != 4 {
		t.Fatalf("got %d ids, want 4", len(ids))
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("block ids must be strictly increasing: %v", ids)
		}
	}
	more := store.AllocateBlockIds(shardid.TernTime(1_000_000_000), 1)
	if more[0] <= ids[len(ids)-1] {
		t.Fatal("subsequent allocation must stay past the watermark")
	}
}

func TestWriteBatchCommitPublishesLogIndex(t *testing.T) {
	store := openTestStore(t, false)
	b := store.NewWriteBatch(7)
	dirBody := schema.DirectoryBody{Version: 1, HashMode: 1}
	b.PutDirectory(shardid.RootDirInodeId, dirBody)
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}
	if store.LastAppliedLogIndex() != 7 {
		t.Fatalf("got log index %d, want 7", store.LastAppliedLogIndex())
	}
}

func TestWriteBatchRollbackKeepsLogIndexAdvance(t *testing.T) {
	store := openTestStore(t, false)
	b := store.NewWriteBatch(3)
	sp := b.Savepoint()
	b.PutDirectory(shardid.RootDirInodeId, schema.DirectoryBody{Version: 1, HashMode: 1})
	b.RollbackToSavepoint(sp)
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	snap := store.NewReadSnapshot()
	defer snap.Close()
	if _, err := snap.GetDirectory(shardid.RootDirInodeId); err == nil {
		t.Fatal("expected rolled-back directory write to not be visible")
	}
	if store.LastAppliedLogIndex() != 3 {
		t.Fatalf("got log index %d, want 3", store.LastAppliedLogIndex())
	}
}
