// Package shardstore wraps internal/kv's column-family store with the
// shard's typed schema and process-wide metadata: shard id, secret key,
// the three monotonic id counters, and the last-applied-log-index. It
// owns the exclusive apply lock and the read-snapshot lifecycle described
// in §5, grounded on the same open/init/handle split
// pkg/store/metadata/badger/store.go and handle.go use for the teacher's
// own badger-backed metadata store.
package shardstore

import (
	"crypto/rand"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shardfs/shard/internal/kv"
	"github.com/shardfs/shard/internal/mac"
	"github.com/shardfs/shard/pkg/schema"
	"github.com/shardfs/shard/pkg/shardid"
)

// Store is the shard's handle onto its persisted metadata. Reads go
// through NewReadSnapshot (lock-free); writes go through NewWriteBatch
// while holding the apply lock (Lock/Unlock).
type Store struct {
	kv kv.Store

	shardID   shardid.ShardId
	secretKey mac.Key

	// writeLock serializes the apply path per §5: at most one batch is
	// ever open for writing at a time. The read path never takes it.
	writeLock sync.Mutex

	// lastAppliedLogIndex is also durable (metadata family) but cached
	// here for LastAppliedLogIndex. Read snapshots report the kv
	// adapter's own copy, which Open and WriteBatch.Commit keep equal to
	// this one.
	lastAppliedLogIndex atomic.Uint64

	// The three id counters are kept in memory for prepare-path
	// allocation (§4.2's "fresh ids picked from cache"): allocation is
	// non-deterministic and must not touch the KV engine on every
	// request, so prepare bumps these atomics directly and freezes the
	// chosen id into the log entry. Apply trusts the frozen id and
	// persists a new watermark past it; a crash before that persist
	// only wastes ids, it never reissues one, since a fresh process
	// reloads the watermark from the last successful apply.
	nextFileCounter    atomic.Uint64
	nextSymlinkCounter atomic.Uint64
	nextBlockWatermark atomic.Int64
}

// ShardId returns the shard's own id, fixed for the process lifetime.
func (s *Store) ShardId() shardid.ShardId { return s.shardID }

// SecretKey returns the shard's 128-bit MAC key.
func (s *Store) SecretKey() mac.Key { return s.secretKey }

// Open initializes or resumes shard metadata against an already-opened
// kv.Store, per §4.4:
//   - if shard-info is absent, generates a fresh secret key and persists
//     it alongside configuredShardID;
//   - if present, the persisted shard id must match configuredShardID,
//     a fatal mismatch otherwise;
//   - the three id counters and last-applied-log-index default to zero;
//   - if ownsRoot, creates the root directory when missing.
func Open(store kv.Store, configuredShardID shardid.ShardId, ownsRoot bool) (*Store, error) {
	store.RegisterMergeOperator(kv.CFBlockServicesToFiles, blockServiceCountMerge)

	s := &Store{kv: store, shardID: configuredShardID}

	batch := store.NewBatch()
	snap := store.NewSnapshot()

	info, err := loadShardInfo(snap)
	if err != nil {
		snap.Close()
		return nil, err
	}
	if info == nil {
		secret, genErr := generateSecretKey()
		if genErr != nil {
			snap.Close()
			return nil, genErr
		}
		s.secretKey = secret
		batch.Set(kv.CFMetadata, schema.EncodeMetadataKey(schema.MetadataKeyShardInfo),
			schema.ShardInfoValue{ShardId: configuredShardID, SecretKey: secret}.Encode())
	} else {
		if info.ShardId != configuredShardID {
			snap.Close()
			return nil, &FatalError{Reason: fmt.Sprintf(
				"persisted shard id %d does not match configured shard id %d", info.ShardId, configuredShardID)}
		}
		s.secretKey = info.SecretKey
	}

	for _, k := range []schema.MetadataKey{
		schema.MetadataKeyNextFileId,
		schema.MetadataKeyNextSymlinkId,
		schema.MetadataKeyNextBlockId,
		schema.MetadataKeyLastAppliedLogIndex,
	} {
		if _, err := snap.Get(kv.CFMetadata, schema.EncodeMetadataKey(k)); err == kv.ErrNotFound {
			batch.Set(kv.CFMetadata, schema.EncodeMetadataKey(k), schema.EncodeCounterValue(0))
		} else if err != nil {
			snap.Close()
			return nil, err
		}
	}

	if lastIdx, err := snap.Get(kv.CFMetadata, schema.EncodeMetadataKey(schema.MetadataKeyLastAppliedLogIndex)); err == nil {
		v, decErr := schema.DecodeCounterValue(lastIdx)
		if decErr != nil {
			snap.Close()
			return nil, decErr
		}
		s.lastAppliedLogIndex.Store(v)
		if ks, ok := store.(interface{ SetLastAppliedLogIndex(uint64) }); ok {
			ks.SetLastAppliedLogIndex(v)
		}
	}

	if raw, err := snap.Get(kv.CFMetadata, schema.EncodeMetadataKey(schema.MetadataKeyNextFileId)); err == nil {
		v, decErr := schema.DecodeCounterValue(raw)
		if decErr != nil {
			snap.Close()
			return nil, decErr
		}
		s.nextFileCounter.Store(v)
	}
	if raw, err := snap.Get(kv.CFMetadata, schema.EncodeMetadataKey(schema.MetadataKeyNextSymlinkId)); err == nil {
		v, decErr := schema.DecodeCounterValue(raw)
		if decErr != nil {
			snap.Close()
			return nil, decErr
		}
		s.nextSymlinkCounter.Store(v)
	}

	if ownsRoot {
		if _, err := snap.Get(kv.CFDirectories, schema.InodeKey(shardid.RootDirInodeId)); err == kv.ErrNotFound {
			root := schema.DirectoryBody{Version: 1, OwnerId: 0, Mtime: 0, HashMode: 1}
			batch.Set(kv.CFDirectories, schema.InodeKey(shardid.RootDirInodeId), root.Encode())
		} else if err != nil {
			snap.Close()
			return nil, err
		}
	}

	snap.Close()
	if err := batch.Commit(); err != nil {
		return nil, err
	}
	return s, nil
}

func generateSecretKey() (mac.Key, error) {
	var raw [mac.KeySize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return mac.Key{}, fmt.Errorf("shardstore: generating secret key: %w", err)
	}
	return mac.NewKey(raw[:])
}

func loadShardInfo(snap kv.Snapshot) (*schema.ShardInfoValue, error) {
	raw, err := snap.Get(kv.CFMetadata, schema.EncodeMetadataKey(schema.MetadataKeyShardInfo))
	if err == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	v, err := schema.DecodeShardInfoValue(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// blockServiceCountMerge is the additive merge operator for
// blockServicesToFiles: existing and operand are both 8-byte signed
// little-endian deltas/counts, per §3's "signed 64-bit count".
func blockServiceCountMerge(existing, operand []byte) []byte {
	var cur, delta int64
	if len(existing) == 8 {
		cur = decodeSignedCount(existing)
	}
	if len(operand) == 8 {
		delta = decodeSignedCount(operand)
	}
	return encodeSignedCount(cur + delta)
}

func decodeSignedCount(b []byte) int64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return int64(v)
}

func encodeSignedCount(v int64) []byte {
	out := make([]byte, 8)
	u := uint64(v)
	for i := 0; i < 8; i++ {
		out[i] = byte(u >> (8 * i))
	}
	return out
}

// NewReadSnapshot returns a lock-free, point-in-time view of the store.
// Because the underlying kv.Store's snapshots are already MVCC-isolated,
// "the atomic pointer load" §5 describes is realized here by simply
// opening a fresh kv snapshot per call: badger guarantees it observes
// every batch committed before this call and none committed after,
// exactly the refresh-on-flush semantics required, without this package
// needing to separately cache and swap a snapshot handle.
func (s *Store) NewReadSnapshot() *ReadSnapshot {
	return &ReadSnapshot{snap: s.kv.NewSnapshot()}
}

// NewWriteBatch begins a new apply-path transaction. Callers must hold
// the write lock (Lock/Unlock) for the duration.
func (s *Store) NewWriteBatch(logIndex uint64) *WriteBatch {
	b := s.kv.NewBatch()
	b.Set(kv.CFMetadata, schema.EncodeMetadataKey(schema.MetadataKeyLastAppliedLogIndex), schema.EncodeCounterValue(logIndex))
	return &WriteBatch{batch: b, store: s, logIndex: logIndex}
}

// Lock acquires the exclusive apply lock. Every write batch must be
// created and committed while holding it.
func (s *Store) Lock() { s.writeLock.Lock() }

// Unlock releases the exclusive apply lock.
func (s *Store) Unlock() { s.writeLock.Unlock() }

// LastAppliedLogIndex returns the most recently committed log index, as
// cached after the last successful WriteBatch.Commit.
func (s *Store) LastAppliedLogIndex() uint64 { return s.lastAppliedLogIndex.Load() }

func (s *Store) Close() error { return s.kv.Close() }

// AllocateFileId allocates the next FILE inode id, for use by the
// construct-file prepare handler.
func (s *Store) AllocateFileId() shardid.InodeId {
	c := s.nextFileCounter.Add(1)
	return shardid.NewInodeId(shardid.InodeTypeFile, s.shardID, c)
}

// AllocateSymlinkId allocates the next SYMLINK inode id.
func (s *Store) AllocateSymlinkId() shardid.InodeId {
	c := s.nextSymlinkCounter.Add(1)
	return shardid.NewInodeId(shardid.InodeTypeSymlink, s.shardID, c)
}

// AllocateBlockIds allocates a contiguous run of count block ids for a
// new span, each taking allocTime with its low byte cleared and this
// shard's id placed in that low byte, per §3 and the boundary law in §8: each new id is
// ≥ previous+0x100 and ≥ (log-entry-time & ~0xFF | shard).
func (s *Store) AllocateBlockIds(allocTime shardid.TernTime, count int) []shardid.BlockId {
	floor := int64(allocTime) &^ 0xFF
	for {
		prev := s.nextBlockWatermark.Load()
		start := floor
		if prev+0x100 > start {
			start = prev + 0x100
		}
		next := start + int64(count-1)*0x100
		if s.nextBlockWatermark.CompareAndSwap(prev, next) {
			ids := make([]shardid.BlockId, count)
			for i := 0; i < count; i++ {
				ids[i] = shardid.NewBlockId(start+int64(i)*0x100, s.shardID, 0)
			}
			return ids
		}
	}
}
