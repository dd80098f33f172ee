// Package kv defines the shard's private view of an embedded ordered
// key-value engine: snapshot reads, write batches with savepoints, an
// additive merge operator, and bounded prefix iterators. The engine
// itself (§1's "embedded ordered key-value store") is an external
// collaborator out of this module's scope; this package is the thin,
// column-family-shaped interface the rest of the shard programs against,
// plus one concrete adapter (badger.go) onto
// github.com/dgraph-io/badger/v4 — the persistence engine
// pkg/store/metadata/badger already uses in the teacher repo.
package kv

import "errors"

// ErrNotFound is returned by Snapshot.Get when the key is absent.
var ErrNotFound = errors.New("kv: key not found")

// ColumnFamily names one of the shard's seven logical record families.
// The underlying engine need not support column families natively —
// badger doesn't — so a ColumnFamily is realized as a one-byte key
// prefix; see badger.go's prefixedKey.
type ColumnFamily byte

const (
	CFMetadata ColumnFamily = iota
	CFDirectories
	CFFiles
	CFTransientFiles
	CFEdges
	CFSpans
	CFBlockServicesToFiles
)

// MergeFunc combines an existing value (nil if absent) with an operand
// and returns the new value. The only merge family in this shard is
// blockServicesToFiles, whose MergeFunc adds a signed delta to a
// zero-or-more running count.
type MergeFunc func(existing, operand []byte) []byte

// Iterator walks a bounded range of keys within one column family, in the
// single direction fixed at creation by IterOptions.Reverse. All keys and
// values returned are only valid until the next call to Next/Close.
//
// Seek's semantics follow the iterator's direction, matching badger's own
// Iterator.Seek: on a forward iterator it is a SeekGE (first key >= key);
// on a reverse iterator it is a SeekForPrev (last key <= key). Handlers
// that need "the span/edge at or before an offset" (§4.1's SeekForPrev
// discipline) open a reverse iterator and Seek once, then read; handlers
// that need ascending order from a start key open a forward iterator.
// Bidirectional single-cursor iteration is never required by any read or
// apply handler in this shard, so the interface stays single-direction
// rather than emulating RocksDB's true bidirectional cursor.
type Iterator interface {
	Seek(key []byte)
	// Valid reports whether the iterator is positioned on an entry.
	Valid() bool
	Key() []byte
	Value() []byte
	Next()
	Close() error
}

// IterOptions bounds an iterator to a key prefix and/or direction.
type IterOptions struct {
	// Prefix restricts iteration to keys sharing this prefix. Empty
	// means unrestricted (within the column family).
	Prefix []byte
	// Reverse iterates from high to low keys.
	Reverse bool
}

// Snapshot is a point-in-time, read-only view of the store, used by the
// read path and by the prepare path's context lookups. Never mutated;
// released via Close when the caller is done with it.
type Snapshot interface {
	Get(cf ColumnFamily, key []byte) ([]byte, error)
	NewIterator(cf ColumnFamily, opts IterOptions) Iterator
	// LastAppliedLogIndex is the log index reflected by this snapshot,
	// for staleness reporting to callers per §5.
	LastAppliedLogIndex() uint64
	Close()
}

// Batch accumulates a set of mutations to be applied atomically. It
// supports savepoints so a handler can roll back everything except an
// already-recorded log-index advance on error, per §4.3.
type Batch interface {
	Set(cf ColumnFamily, key, value []byte)
	Delete(cf ColumnFamily, key []byte)
	// Merge stages an additive operand against key's current value,
	// combined via the column family's registered MergeFunc at Commit
	// time.
	Merge(cf ColumnFamily, key, operand []byte)
	// Savepoint returns a marker that RollbackToSavepoint can later
	// return the batch to, discarding every mutation recorded since.
	Savepoint() int
	RollbackToSavepoint(sp int)
	// Commit atomically applies every remaining mutation and returns.
	Commit() error
}

// Store is the shard's handle onto the embedded engine: it opens
// snapshots and batches and owns the merge operator registrations.
type Store interface {
	NewSnapshot() Snapshot
	NewBatch() Batch
	// RegisterMergeOperator installs fn as the merge combiner for cf.
	// Must be called before any Merge against cf.
	RegisterMergeOperator(cf ColumnFamily, fn MergeFunc)
	Close() error
}
