//go:build integration

package kv

import (
	"os"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
)

// openTestStore opens a throwaway on-disk badger database, matching the
// teacher's own integration-test convention (test/integration/badger)
// of exercising the real engine rather than a mock.
func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "shard-kv-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	return NewBadgerStore(db, 0)
}

func TestBatchSetAndSnapshotGet(t *testing.T) {
	store := openTestStore(t)

	batch := store.NewBatch()
	batch.Set(CFFiles, []byte("file-1"), []byte("body-1"))
	if err := batch.Commit(); err != nil {
		t.Fatal(err)
	}

	snap := store.NewSnapshot()
	defer snap.Close()

	v, err := snap.Get(CFFiles, []byte("file-1"))
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "body-1" {
		t.Fatalf("got %q", v)
	}
}

func TestSavepointRollback(t *testing.T) {
	store := openTestStore(t)

	batch := store.NewBatch()
	batch.Set(CFFiles, []byte("keep"), []byte("v1"))
	sp := batch.Savepoint()
	batch.Set(CFFiles, []byte("rolled-back"), []byte("v2"))
	batch.RollbackToSavepoint(sp)
	if err := batch.Commit(); err != nil {
		t.Fatal(err)
	}

	snap := store.NewSnapshot()
	defer snap.Close()

	if _, err := snap.Get(CFFiles, []byte("keep")); err != nil {
		t.Fatalf("expected 'keep' to survive rollback: %v", err)
	}
	if _, err := snap.Get(CFFiles, []byte("rolled-back")); err != ErrNotFound {
		t.Fatalf("expected 'rolled-back' to be discarded, got err=%v", err)
	}
}

func addMerge(existing, operand []byte) []byte {
	var cur, delta int64
	if len(existing) == 8 {
		for i := 0; i < 8; i++ {
			cur |= int64(existing[i]) << (8 * i)
		}
	}
	for i := 0; i < 8 && i < len(operand); i++ {
		delta |= int64(operand[i]) << (8 * i)
	}
	sum := cur + delta
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(sum >> (8 * i))
	}
	return out
}

func encodeInt64(v int64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out
}

func decodeInt64(b []byte) int64 {
	var v int64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= int64(b[i]) << (8 * i)
	}
	return v
}

func TestMergeAccumulates(t *testing.T) {
	store := openTestStore(t)
	store.RegisterMergeOperator(CFBlockServicesToFiles, addMerge)

	batch := store.NewBatch()
	batch.Merge(CFBlockServicesToFiles, []byte("bs1:file1"), encodeInt64(1))
	batch.Merge(CFBlockServicesToFiles, []byte("bs1:file1"), encodeInt64(1))
	batch.Merge(CFBlockServicesToFiles, []byte("bs1:file1"), encodeInt64(-1))
	if err := batch.Commit(); err != nil {
		t.Fatal(err)
	}

	snap := store.NewSnapshot()
	defer snap.Close()
	v, err := snap.Get(CFBlockServicesToFiles, []byte("bs1:file1"))
	if err != nil {
		t.Fatal(err)
	}
	if decodeInt64(v) != 1 {
		t.Fatalf("count = %d, want 1", decodeInt64(v))
	}
}

func TestIteratorPrefixScan(t *testing.T) {
	store := openTestStore(t)
	batch := store.NewBatch()
	batch.Set(CFEdges, []byte("dir1:a"), []byte("1"))
	batch.Set(CFEdges, []byte("dir1:b"), []byte("2"))
	batch.Set(CFEdges, []byte("dir2:a"), []byte("3"))
	if err := batch.Commit(); err != nil {
		t.Fatal(err)
	}

	snap := store.NewSnapshot()
	defer snap.Close()

	it := snap.NewIterator(CFEdges, IterOptions{Prefix: []byte("dir1:")})
	defer it.Close()

	var got []string
	for it.Seek([]byte("dir1:")); it.Valid(); it.Next() {
		got = append(got, string(it.Key()))
	}
	if len(got) != 2 {
		t.Fatalf("got %v, want 2 entries under dir1:", got)
	}
}
