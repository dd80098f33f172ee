package readpath

import (
	"context"

	"github.com/shardfs/shard/pkg/schema"
	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
	"github.com/shardfs/shard/pkg/wire"
)

// ReadDirEntry is one current edge returned by ReadDir.
type ReadDirEntry struct {
	NameHash     uint64
	Name         string
	Target       shardid.InodeId
	CreationTime shardid.TernTime
}

// ReadDirResponse is read-dir's result: a batch of current edges with
// hash >= the request's start-hash, plus the hash to resume from.
type ReadDirResponse struct {
	Entries             []ReadDirEntry
	NextHash            uint64
	Done                bool
	LastAppliedLogIndex uint64
}

// ReadDir walks dir's current edges in ascending (hash, name) order
// starting at startHash, filling responses up to the MTU budget. Per
// §4.1, a same-hash group is never split across responses: on overflow,
// every entry sharing the last emitted hash is dropped and that hash is
// returned as the resume point.
func ReadDir(ctx context.Context, snap *shardstore.ReadSnapshot, dir shardid.InodeId, startHash uint64, mtuHint uint16) (ReadDirResponse, error) {
	if _, err := snap.GetDirectory(dir); err != nil {
		return ReadDirResponse{}, err
	}

	it := snap.EdgeIterator(dir, true)
	defer it.Close()
	it.Seek(schema.EdgeDirPrefix(dir, true))

	budget := wire.NewBudget(mtuHint, 16)
	var entries []ReadDirEntry
	var lastHash uint64
	haveLastHash := false

	for it.Valid() {
		key, err := schema.DecodeEdgeKey(it.Key())
		if err != nil {
			return ReadDirResponse{}, err
		}
		if key.NameHash < startHash {
			it.Next()
			continue
		}
		body, err := schema.DecodeCurrentEdgeBody(it.Value())
		if err != nil {
			return ReadDirResponse{}, err
		}
		if !budget.TryTake(nameCost(key.Name)) {
			return ReadDirResponse{
				Entries: dropTrailingGroup(entries), NextHash: lastHash, Done: false,
				LastAppliedLogIndex: snap.LastAppliedLogIndex(),
			}, nil
		}
		entries = append(entries, ReadDirEntry{
			NameHash: key.NameHash, Name: key.Name, Target: body.Target, CreationTime: body.CreationTime,
		})
		lastHash, haveLastHash = key.NameHash, true
		it.Next()
	}
	_ = haveLastHash
	return ReadDirResponse{Entries: entries, Done: true, LastAppliedLogIndex: snap.LastAppliedLogIndex()}, nil
}

// dropTrailingGroup removes every entry sharing the last entry's hash,
// implementing read-dir's never-split-a-hash-group rule.
func dropTrailingGroup(entries []ReadDirEntry) []ReadDirEntry {
	if len(entries) == 0 {
		return entries
	}
	last := entries[len(entries)-1].NameHash
	i := len(entries)
	for i > 0 && entries[i-1].NameHash == last {
		i--
	}
	return entries[:i]
}

// FullReadDirEdge is one edge returned by FullReadDir, current or
// snapshot.
type FullReadDirEdge struct {
	Current      bool
	Owned        bool // meaningful only for snapshot edges
	Name         string
	CreationTime shardid.TernTime
	Target       shardid.InodeId // null InodeId for a deletion snapshot edge
}

// FullReadDirCursor resumes a FullReadDir call.
type FullReadDirCursor struct {
	Current   bool
	StartName string
	StartTime shardid.TernTime
}

type FullReadDirResponse struct {
	Edges               []FullReadDirEdge
	Cursor              FullReadDirCursor
	Done                bool
	LastAppliedLogIndex uint64
}

// FullReadDirFlags selects one of full-read-dir's four iteration modes.
type FullReadDirFlags struct {
	Current   bool // include the current edge in the walk
	Backwards bool
	SameName  bool
}

// FullReadDir implements §4.1's four-mode directory walk over both
// current and snapshot edges.
func FullReadDir(ctx context.Context, snap *shardstore.ReadSnapshot, dir shardid.InodeId, cursor FullReadDirCursor, flags FullReadDirFlags, limit int, mtuHint uint16) (FullReadDirResponse, error) {
	if _, err := snap.GetDirectory(dir); err != nil {
		return FullReadDirResponse{}, err
	}

	budget := wire.NewBudget(mtuHint, 16)
	var edges []FullReadDirEdge

	collect := func(e FullReadDirEdge) bool {
		if limit > 0 && len(edges) >= limit {
			return false
		}
		if !budget.TryTake(nameCost(e.Name)) {
			return false
		}
		edges = append(edges, e)
		return true
	}

	if flags.SameName {
		resp, err := fullReadDirSameName(snap, dir, cursor, flags, collect)
		resp.Edges = edges
		return resp, err
	}
	resp, err := fullReadDirNormal(snap, dir, cursor, flags, collect)
	resp.Edges = edges
	return resp, err
}

func fullReadDirNormal(snap *shardstore.ReadSnapshot, dir shardid.InodeId, cursor FullReadDirCursor, flags FullReadDirFlags, collect func(FullReadDirEdge) bool) (FullReadDirResponse, error) {
	if !flags.Backwards {
		if flags.Current {
			if err := walkCurrentEdges(snap, dir, cursor.StartName, collect); err != nil {
				return FullReadDirResponse{}, err
			}
		}
		exhausted, next, err := walkSnapshotEdgesForward(snap, dir, cursor.StartName, cursor.StartTime, collect)
		if err != nil {
			return FullReadDirResponse{}, err
		}
		return FullReadDirResponse{
			Cursor: next, Done: exhausted, LastAppliedLogIndex: snap.LastAppliedLogIndex(),
		}, nil
	}

	exhausted, next, err := walkSnapshotEdgesBackward(snap, dir, cursor.StartName, cursor.StartTime, collect)
	if err != nil {
		return FullReadDirResponse{}, err
	}
	if exhausted && flags.Current {
		if err := walkCurrentEdges(snap, dir, "", collect); err != nil {
			return FullReadDirResponse{}, err
		}
	}
	return FullReadDirResponse{Cursor: next, Done: exhausted, LastAppliedLogIndex: snap.LastAppliedLogIndex()}, nil
}

func fullReadDirSameName(snap *shardstore.ReadSnapshot, dir shardid.InodeId, cursor FullReadDirCursor, flags FullReadDirFlags, collect func(FullReadDirEdge) bool) (FullReadDirResponse, error) {
	d, err := snap.GetDirectory(dir)
	if err != nil {
		return FullReadDirResponse{}, err
	}
	name := cursor.StartName
	h := nameHash(d.HashMode, name)

	if !flags.Backwards {
		if flags.Current {
			if edge, ok, err := snap.GetCurrentEdge(dir, h, name); err != nil {
				return FullReadDirResponse{}, err
			} else if ok {
				collect(FullReadDirEdge{Current: true, Name: name, CreationTime: edge.CreationTime, Target: edge.Target})
			}
		}
		exhausted, next, err := walkSnapshotEdgesForName(snap, dir, name, cursor.StartTime, false, collect)
		if err != nil {
			return FullReadDirResponse{}, err
		}
		return FullReadDirResponse{Cursor: next, Done: exhausted, LastAppliedLogIndex: snap.LastAppliedLogIndex()}, nil
	}

	exhausted, next, err := walkSnapshotEdgesForName(snap, dir, name, cursor.StartTime, true, collect)
	if err != nil {
		return FullReadDirResponse{}, err
	}
	if exhausted && flags.Current {
		if edge, ok, err := snap.GetCurrentEdge(dir, h, name); err != nil {
			return FullReadDirResponse{}, err
		} else if ok {
			collect(FullReadDirEdge{Current: true, Name: name, CreationTime: edge.CreationTime, Target: edge.Target})
		}
	}
	return FullReadDirResponse{Cursor: next, Done: exhausted, LastAppliedLogIndex: snap.LastAppliedLogIndex()}, nil
}

// resumeSnapshotKey builds the raw key to seek to when resuming a
// snapshot-edge walk at (name, time): the directory's hash mode is needed
// to reproduce the name-hash field that leads the key's byte layout.
func resumeSnapshotKey(snap *shardstore.ReadSnapshot, dir shardid.InodeId, name string, t shardid.TernTime) ([]byte, error) {
	d, err := snap.GetDirectory(dir)
	if err != nil {
		return nil, err
	}
	h := nameHash(d.HashMode, name)
	return schema.EdgeKey{DirId: dir, Current: false, NameHash: h, Name: name, CreationTime: t}.Encode(), nil
}

// walkCurrentEdges walks current edges in raw key order (name-hash major),
// which is the order the underlying store actually maintains; startName
// resumes via the same name-hash used to write the edge in the first
// place, so Seek lands exactly where the previous call left off.
func walkCurrentEdges(snap *shardstore.ReadSnapshot, dir shardid.InodeId, startName string, collect func(FullReadDirEdge) bool) error {
	it := snap.EdgeIterator(dir, true)
	defer it.Close()
	if startName == "" {
		it.Seek(schema.EdgeDirPrefix(dir, true))
	} else {
		d, err := snap.GetDirectory(dir)
		if err != nil {
			return err
		}
		it.Seek(schema.EdgeKey{DirId: dir, Current: true, NameHash: nameHash(d.HashMode, startName), Name: startName}.Encode())
	}
	for it.Valid() {
		key, err := schema.DecodeEdgeKey(it.Key())
		if err != nil {
			return err
		}
		body, err := schema.DecodeCurrentEdgeBody(it.Value())
		if err != nil {
			return err
		}
		if !collect(FullReadDirEdge{Current: true, Name: key.Name, CreationTime: body.CreationTime, Target: body.Target}) {
			return nil
		}
		it.Next()
	}
	return nil
}

func walkSnapshotEdgesForward(snap *shardstore.ReadSnapshot, dir shardid.InodeId, startName string, startTime shardid.TernTime, collect func(FullReadDirEdge) bool) (bool, FullReadDirCursor, error) {
	it := snap.EdgeIterator(dir, false)
	defer it.Close()
	if startName == "" {
		it.Seek(schema.EdgeDirPrefix(dir, false))
	} else {
		key, err := resumeSnapshotKey(snap, dir, startName, startTime)
		if err != nil {
			return false, FullReadDirCursor{}, err
		}
		it.Seek(key)
	}
	for it.Valid() {
		key, err := schema.DecodeEdgeKey(it.Key())
		if err != nil {
			return false, FullReadDirCursor{}, err
		}
		body, err := schema.DecodeSnapshotEdgeBody(it.Value())
		if err != nil {
			return false, FullReadDirCursor{}, err
		}
		e := FullReadDirEdge{Name: key.Name, CreationTime: key.CreationTime, Target: body.Target, Owned: body.Owned}
		if !collect(e) {
			return false, FullReadDirCursor{Current: false, StartName: key.Name, StartTime: key.CreationTime}, nil
		}
		it.Next()
	}
	return true, FullReadDirCursor{}, nil
}

func walkSnapshotEdgesBackward(snap *shardstore.ReadSnapshot, dir shardid.InodeId, startName string, startTime shardid.TernTime, collect func(FullReadDirEdge) bool) (bool, FullReadDirCursor, error) {
	it := snap.ReverseEdgeIterator(dir)
	defer it.Close()
	if startName == "" {
		it.Seek(schema.EdgeDirPrefix(dir, false))
	} else {
		key, err := resumeSnapshotKey(snap, dir, startName, startTime)
		if err != nil {
			return false, FullReadDirCursor{}, err
		}
		it.Seek(key)
	}
	for it.Valid() {
		key, err := schema.DecodeEdgeKey(it.Key())
		if err != nil {
			return false, FullReadDirCursor{}, err
		}
		body, err := schema.DecodeSnapshotEdgeBody(it.Value())
		if err != nil {
			return false, FullReadDirCursor{}, err
		}
		e := FullReadDirEdge{Name: key.Name, CreationTime: key.CreationTime, Target: body.Target, Owned: body.Owned}
		if !collect(e) {
			return false, FullReadDirCursor{Current: false, StartName: key.Name, StartTime: key.CreationTime}, nil
		}
		it.Next()
	}
	return true, FullReadDirCursor{}, nil
}

// walkSnapshotEdgesForName walks every snapshot edge for exactly one
// name, ascending or descending by creation time.
func walkSnapshotEdgesForName(snap *shardstore.ReadSnapshot, dir shardid.InodeId, name string, startTime shardid.TernTime, backwards bool, collect func(FullReadDirEdge) bool) (bool, FullReadDirCursor, error) {
	d, err := snap.GetDirectory(dir)
	if err != nil {
		return false, FullReadDirCursor{}, err
	}
	h := nameHash(d.HashMode, name)
	prefix := schema.EdgeNamePrefix(dir, h, name)

	if !backwards {
		it := snap.EdgeIterator(dir, false)
		defer it.Close()
		it.Seek(prefix)
		for it.Valid() {
			key, err := schema.DecodeEdgeKey(it.Key())
			if err != nil {
				return false, FullReadDirCursor{}, err
			}
			if key.Name != name {
				break
			}
			if startTime != 0 && key.CreationTime < startTime {
				it.Next()
				continue
			}
			body, err := schema.DecodeSnapshotEdgeBody(it.Value())
			if err != nil {
				return false, FullReadDirCursor{}, err
			}
			e := FullReadDirEdge{Name: key.Name, CreationTime: key.CreationTime, Target: body.Target, Owned: body.Owned}
			if !collect(e) {
				return false, FullReadDirCursor{StartName: name, StartTime: key.CreationTime}, nil
			}
			it.Next()
		}
		return true, FullReadDirCursor{}, nil
	}

	it := snap.ReverseEdgeIterator(dir)
	defer it.Close()
	it.Seek(prefix)
	for it.Valid() {
		key, err := schema.DecodeEdgeKey(it.Key())
		if err != nil {
			return false, FullReadDirCursor{}, err
		}
		if key.Name != name {
			break
		}
		if startTime != 0 && key.CreationTime > startTime {
			it.Next()
			continue
		}
		body, err := schema.DecodeSnapshotEdgeBody(it.Value())
		if err != nil {
			return false, FullReadDirCursor{}, err
		}
		e := FullReadDirEdge{Name: key.Name, CreationTime: key.CreationTime, Target: body.Target, Owned: body.Owned}
		if !collect(e) {
			return false, FullReadDirCursor{StartName: name, StartTime: key.CreationTime}, nil
		}
		it.Next()
	}
	return true, FullReadDirCursor{}, nil
}
