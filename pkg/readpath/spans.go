package readpath

import (
	"context"

	"github.com/shardfs/shard/pkg/schema"
	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
	"github.com/shardfs/shard/pkg/wire"
)

// SpanEntry is one span returned by LocalFileSpans/FileSpans.
type SpanEntry struct {
	Offset    uint64
	Size      uint32
	Crc       uint32
	Locations []schema.SpanLocation // one entry for LocalFileSpans, all for FileSpans
	Inline    bool
	Body      []byte
}

type FileSpansResponse struct {
	Spans               []SpanEntry
	NextOffset          uint64
	Done                bool
	LastAppliedLogIndex uint64
}

// FileSpans returns every location of every span covering byteOffset
// onward, per §4.1.
func FileSpans(ctx context.Context, snap *shardstore.ReadSnapshot, file shardid.InodeId, byteOffset uint64, limit int, mtuHint uint16) (FileSpansResponse, error) {
	return fileSpans(snap, file, byteOffset, limit, mtuHint, 0, false)
}

// LocalFileSpans returns each span projected to callerLocation, falling
// back to the first location if that one is missing.
func LocalFileSpans(ctx context.Context, snap *shardstore.ReadSnapshot, file shardid.InodeId, byteOffset uint64, limit int, mtuHint uint16, callerLocation uint8) (FileSpansResponse, error) {
	return fileSpans(snap, file, byteOffset, limit, mtuHint, callerLocation, true)
}

// firstSpanOffset locates the last span at or before byteOffset via the
// SeekForPrev discipline §4.1 requires, so a span straddling byteOffset is
// included rather than skipped.
func firstSpanOffset(snap *shardstore.ReadSnapshot, file shardid.InodeId, byteOffset uint64) (uint64, bool, error) {
	_, offset, found, err := snap.LastSpanAtOrBefore(file, byteOffset)
	return offset, found, err
}

func fileSpans(snap *shardstore.ReadSnapshot, file shardid.InodeId, byteOffset uint64, limit int, mtuHint uint16, callerLocation uint8, projectLocal bool) (FileSpansResponse, error) {
	start, found, err := firstSpanOffset(snap, file, byteOffset)
	if err != nil {
		return FileSpansResponse{}, err
	}
	if !found {
		start = byteOffset
	}
	it := snap.SpanIteratorForward(file, start)
	defer it.Close()

	budget := wire.NewBudget(mtuHint, 16)
	var out []SpanEntry
	emitted := false

	for it.Valid() {
		_, offset, err := schema.DecodeSpanKey(it.Key())
		if err != nil {
			return FileSpansResponse{}, err
		}
		body, err := schema.DecodeSpanBody(it.Value())
		if err != nil {
			return FileSpansResponse{}, err
		}

		entry := SpanEntry{Offset: offset, Size: body.Size, Crc: body.Crc, Inline: body.Inline, Body: body.InlineBody}
		cost := entryOverhead
		if body.Inline {
			cost += len(body.InlineBody)
		} else if projectLocal {
			loc, ok := body.LocationByIndex(callerLocation)
			if !ok {
				loc, _ = body.LocationByIndex(0)
			}
			entry.Locations = []schema.SpanLocation{loc}
			cost += len(loc.Blocks) * 24
		} else {
			entry.Locations = body.Locations
			for _, l := range body.Locations {
				cost += len(l.Blocks) * 24
			}
		}

		if (limit > 0 && len(out) >= limit) || !budget.TryTake(cost) {
			return FileSpansResponse{
				Spans: out, NextOffset: offset, Done: false, LastAppliedLogIndex: snap.LastAppliedLogIndex(),
			}, nil
		}
		out = append(out, entry)
		emitted = true
		it.Next()
	}

	if !emitted {
		if _, err := snap.GetFile(file); err == nil {
			return FileSpansResponse{Done: true, LastAppliedLogIndex: snap.LastAppliedLogIndex()}, nil
		}
		if _, err := snap.GetTransientFile(file); err == nil {
			return FileSpansResponse{Done: true, LastAppliedLogIndex: snap.LastAppliedLogIndex()}, nil
		}
		return FileSpansResponse{}, shardstore.NewError(shardstore.ErrorCodeFileNotFound, "")
	}
	return FileSpansResponse{Spans: out, Done: true, LastAppliedLogIndex: snap.LastAppliedLogIndex()}, nil
}

// BlockServiceFilesResponse is block-service-files' result: file ids with
// a non-zero reverse count for the requested block service.
type BlockServiceFilesResponse struct {
	Files               []shardid.InodeId
	NextFile            shardid.InodeId
	Done                bool
	LastAppliedLogIndex uint64
}

// BlockServiceFiles walks the reverse index for one block service,
// skipping zero-count entries left behind by remove-span-certify until
// remove-zero-block-service-files sweeps them.
func BlockServiceFiles(ctx context.Context, snap *shardstore.ReadSnapshot, bs shardid.BlockServiceId, startFile shardid.InodeId, mtuHint uint16) (BlockServiceFilesResponse, error) {
	it := snap.BlockServiceFileIterator(bs, startFile)
	defer it.Close()

	budget := wire.NewBudget(mtuHint, 16)
	var out []shardid.InodeId

	for it.Valid() {
		_, file, err := schema.DecodeBlockServiceToFileKey(it.Key())
		if err != nil {
			return BlockServiceFilesResponse{}, err
		}
		count, err := snap.GetBlockServiceFileCount(bs, file)
		if err != nil {
			return BlockServiceFilesResponse{}, err
		}
		if count <= 0 {
			it.Next()
			continue
		}
		if !budget.TryTake(entryOverhead) {
			return BlockServiceFilesResponse{
				Files: out, NextFile: file, Done: false, LastAppliedLogIndex: snap.LastAppliedLogIndex(),
			}, nil
		}
		out = append(out, file)
		it.Next()
	}
	return BlockServiceFilesResponse{Files: out, Done: true, LastAppliedLogIndex: snap.LastAppliedLogIndex()}, nil
}
