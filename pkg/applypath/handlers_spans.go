package applypath

import (
	"github.com/shardfs/shard/pkg/blockcache"
	"github.com/shardfs/shard/pkg/schema"
	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
	"github.com/shardfs/shard/pkg/wire"
)

// ApplyAddInlineSpan writes a span whose body is stored directly in the
// spans family rather than on block services. Idempotent: retried with the
// same offset and body it just overwrites an identical record.
func ApplyAddInlineSpan(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, e AddInlineSpan) (Response, error) {
	if _, err := snap.GetTransientFile(e.File); err != nil {
		return nil, err
	}
	body := schema.SpanBody{Size: e.Size, Crc: e.Crc, Inline: true, InlineBody: e.Body}
	if err := batch.PutSpan(e.File, e.Offset, body); err != nil {
		return nil, err
	}
	return OkResponse{}, nil
}

// ApplyAddSpanAtLocationInitiate stages a span's block layout ahead of the
// block services actually accepting the write. The block ids were already
// frozen by the prepare path, so replaying this entry always proposes the
// same ids — idempotency just means "return them again" rather than
// picking fresh ones.
func ApplyAddSpanAtLocationInitiate(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, e AddSpanAtLocationInitiate) (Response, error) {
	tf, err := snap.GetTransientFile(e.File)
	if err != nil {
		return nil, err
	}

	if existing, ok, err := snap.GetSpan(e.File, e.Offset); err != nil {
		return nil, err
	} else if ok {
		if loc, found := existing.LocationByIndex(e.Location); found {
			ids := make([]shardid.BlockId, len(loc.Blocks))
			for i, b := range loc.Blocks {
				ids[i] = b.BlockId
			}
			return AddSpanAtLocationInitiateResponse{BlockIds: ids}, nil
		}
	}

	if len(e.PickedBlockServices) != len(e.PickedBlockIds) {
		return nil, shardstore.NewError(shardstore.ErrorCodeBadSpanBody, "picked block services/ids length mismatch")
	}
	blocks := make([]schema.BlockLayout, len(e.PickedBlockIds))
	for i := range blocks {
		blocks[i] = schema.BlockLayout{BlockServiceId: e.PickedBlockServices[i], BlockId: e.PickedBlockIds[i]}
	}
	loc := schema.SpanLocation{
		Location:     e.Location,
		StorageClass: e.StorageClass,
		Parity:       e.Parity,
		Stripes:      e.Stripes,
		CellSize:     e.CellSize,
		Blocks:       blocks,
		StripeCrcs:   e.StripeCrcs,
	}
	body := schema.SpanBody{Size: e.Size, Crc: e.SpanCrc, Locations: []schema.SpanLocation{loc}}
	if err := batch.PutSpan(e.File, e.Offset, body); err != nil {
		return nil, err
	}

	if tf.LastSpanState == schema.SpanStateClean {
		tf.LastSpanState = schema.SpanStateDirty
		batch.PutTransientFile(e.File, tf)
	}
	return AddSpanAtLocationInitiateResponse{BlockIds: e.PickedBlockIds}, nil
}

// ApplyAddSpanCertify verifies every block service's write proof against
// its own key and, once all check out, marks the transient file's last
// span clean and records the reverse block-service-to-file index.
// Idempotent: a file already past LAST_SPAN_STATE clean is a no-op, so the
// per-block reference counts are never adjusted twice.
func ApplyAddSpanCertify(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, cache blockcache.Snapshot, e AddSpanCertify) (Response, error) {
	span, ok, err := snap.GetSpan(e.File, e.Offset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shardstore.NewError(shardstore.ErrorCodeSpanNotFound, "")
	}
	if span.Inline || len(span.Locations) == 0 {
		return nil, shardstore.NewError(shardstore.ErrorCodeCannotCertifyBlocklessSpan, "")
	}
	loc := span.Locations[0]
	if len(e.Proofs) != len(loc.Blocks) {
		return nil, shardstore.NewError(shardstore.ErrorCodeBadNumberOfBlockProofs, "")
	}
	for i, blk := range loc.Blocks {
		info, ok := cache.Get(blk.BlockServiceId)
		if !ok {
			return nil, shardstore.NewError(shardstore.ErrorCodeBadBlockProof, "block service not cached")
		}
		if !wire.VerifyWriteProof(info.SecretKey, blk.BlockServiceId, blk.BlockId, e.Proofs[i]) {
			return nil, shardstore.NewError(shardstore.ErrorCodeBadBlockProof, "")
		}
	}

	tf, err := snap.GetTransientFile(e.File)
	if err != nil {
		return nil, err
	}
	if tf.LastSpanState == schema.SpanStateClean {
		return OkResponse{}, nil
	}
	if tf.LastSpanState == schema.SpanStateCondemned {
		return nil, shardstore.NewError(shardstore.ErrorCodeLastSpanStateNotClean, "")
	}
	tf.LastSpanState = schema.SpanStateClean
	if end := e.Offset + uint64(span.Size); end > tf.Size {
		tf.Size = end
	}
	batch.PutTransientFile(e.File, tf)

	for _, blk := range loc.Blocks {
		batch.AdjustBlockServiceFileCount(blk.BlockServiceId, e.File, 1)
	}
	return OkResponse{}, nil
}

// ApplyAddSpanLocation attaches an additional storage-tier location
// (e.g. after a flash-to-hdd migration) to a span already present at
// (DstFile, DstOffset), sourcing size/crc from (SrcFile, SrcOffset).
// Idempotent when the location index is already attached.
func ApplyAddSpanLocation(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, e AddSpanLocation) (Response, error) {
	src, ok, err := snap.GetSpan(e.SrcFile, e.SrcOffset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shardstore.NewError(shardstore.ErrorCodeSpanNotFound, "")
	}

	dst, ok, err := snap.GetSpan(e.DstFile, e.DstOffset)
	if err != nil {
		return nil, err
	}
	if !ok {
		dst = schema.SpanBody{Size: src.Size, Crc: src.Crc}
	}
	if _, found := dst.LocationByIndex(e.Location); found {
		return OkResponse{}, nil
	}

	base, _ := src.LocationByIndex(0)
	dst.Locations = append(dst.Locations, schema.SpanLocation{
		Location:     e.Location,
		StorageClass: base.StorageClass,
		Parity:       base.Parity,
		Stripes:      base.Stripes,
		CellSize:     base.CellSize,
		Blocks:       e.Blocks,
		StripeCrcs:   base.StripeCrcs,
	})
	if err := batch.PutSpan(e.DstFile, e.DstOffset, dst); err != nil {
		return nil, err
	}
	for _, blk := range e.Blocks {
		batch.AdjustBlockServiceFileCount(blk.BlockServiceId, e.DstFile, 1)
	}
	return OkResponse{}, nil
}

// ApplyRemoveSpanInitiate finds the transient file's last span. If it's
// inline (or otherwise blockless) there is nothing to certify: it is
// deleted immediately and the file shrinks to the span's offset. Otherwise
// erase certificates are issued for every block it occupies and the last
// span state is condemned so ApplyAddSpanCertify can no longer certify a
// write against it; the span itself is deleted once every erase proof
// comes back, in ApplyRemoveSpanCertify. Idempotent: a last span already
// condemned just gets its certificates reissued.
func ApplyRemoveSpanInitiate(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, cache blockcache.Snapshot, e RemoveSpanInitiate) (Response, error) {
	tf, err := snap.GetTransientFile(e.File)
	if err != nil {
		return nil, err
	}
	span, offset, found, err := snap.LastSpanAtOrBefore(e.File, ^uint64(0))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, shardstore.NewError(shardstore.ErrorCodeFileEmpty, "")
	}
	if span.Inline || len(span.Locations) == 0 {
		batch.DeleteSpan(e.File, offset)
		tf.Size = offset
		batch.PutTransientFile(e.File, tf)
		return RemoveSpanInitiateResponse{}, nil
	}
	if tf.LastSpanState == schema.SpanStateClean || tf.LastSpanState == schema.SpanStateDirty {
		tf.LastSpanState = schema.SpanStateCondemned
		batch.PutTransientFile(e.File, tf)
	} else if tf.LastSpanState != schema.SpanStateCondemned {
		return nil, shardstore.NewError(shardstore.ErrorCodeLastSpanStateNotClean, "")
	}
	loc := span.Locations[0]
	certs := make([][8]byte, len(loc.Blocks))
	for i, blk := range loc.Blocks {
		info, ok := cache.Get(blk.BlockServiceId)
		if !ok {
			return nil, shardstore.NewError(shardstore.ErrorCodeBadBlockProof, "block service not cached")
		}
		certs[i] = wire.EraseCertificate(info.SecretKey, blk.BlockServiceId, blk.BlockId)
	}
	return RemoveSpanInitiateResponse{EraseCertificates: certs}, nil
}

// ApplyRemoveSpanCertify verifies every erase proof against the issuing
// block service's own key, the same way ApplyAddSpanCertify verifies write
// proofs, decrements the reverse-index count of each of its blocks
// (zero counts stay for the zero-count sweep), deletes the span, and shrinks the
// transient file to the erased span's offset, taking its condemned last
// span back to clean. Idempotent on a missing span.
func ApplyRemoveSpanCertify(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, cache blockcache.Snapshot, e RemoveSpanCertify) (Response, error) {
	span, ok, err := snap.GetSpan(e.File, e.Offset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return OkResponse{}, nil
	}
	if !span.Inline && len(span.Locations) > 0 {
		loc := span.Locations[0]
		if len(e.Proofs) != len(loc.Blocks) {
			return nil, shardstore.NewError(shardstore.ErrorCodeBadNumberOfBlockProofs, "")
		}
		for i, blk := range loc.Blocks {
			info, ok := cache.Get(blk.BlockServiceId)
			if !ok || !wire.VerifyEraseProof(info.SecretKey, blk.BlockServiceId, blk.BlockId, e.Proofs[i]) {
				return nil, shardstore.NewError(shardstore.ErrorCodeBadBlockProof, "")
			}
		}
		for _, blk := range loc.Blocks {
			batch.AdjustBlockServiceFileCount(blk.BlockServiceId, e.File, -1)
		}
	}
	batch.DeleteSpan(e.File, e.Offset)

	tf, err := snap.GetTransientFile(e.File)
	if err == nil {
		tf.LastSpanState = schema.SpanStateClean
		tf.Size = e.Offset
		batch.PutTransientFile(e.File, tf)
	}
	return OkResponse{}, nil
}

// spanState reports the effective state of the span ending at spanEnd in
// file: CLEAN unless it is the transient file's current last span, in
// which case it's whatever the transient file's last-span-state says.
// Already-durable spans further back in the file are implicitly clean.
func spanState(snap *shardstore.ReadSnapshot, file shardid.InodeId, spanEnd uint64) (schema.SpanState, error) {
	tf, err := snap.GetTransientFile(file)
	if err != nil {
		return 0, err
	}
	if tf.Size == spanEnd {
		return tf.LastSpanState, nil
	}
	return schema.SpanStateClean, nil
}

func findBlockInSpan(span schema.SpanBody, id shardid.BlockId) (locIdx int, blockIdx int, block schema.BlockLayout, found bool) {
	for li, loc := range span.Locations {
		for bi, b := range loc.Blocks {
			if b.BlockId == id {
				return li, bi, b, true
			}
		}
	}
	return -1, -1, schema.BlockLayout{}, false
}

// ApplySwapBlocks exchanges one block each between two spans, used to
// rebalance individual blocks across block services without moving an
// entire span. Both spans must be in the same effective state (both
// clean or both dirty, matching whichever span is the current last span
// of its file) and the swap must not create a duplicate block service or
// failure domain within either span. Idempotent: if the blocks are
// already swapped, returns success without touching storage again.
func ApplySwapBlocks(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, cache blockcache.Snapshot, e SwapBlocks) (Response, error) {
	span1, ok, err := snap.GetSpan(e.File1, e.Offset1)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shardstore.NewError(shardstore.ErrorCodeSpanNotFound, "")
	}
	span2, ok, err := snap.GetSpan(e.File2, e.Offset2)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shardstore.NewError(shardstore.ErrorCodeSpanNotFound, "")
	}
	if span1.Inline || span2.Inline {
		return nil, shardstore.NewError(shardstore.ErrorCodeSwapInlineStorage, "")
	}

	state1, err := spanState(snap, e.File1, e.Offset1+uint64(span1.Size))
	if err != nil {
		return nil, err
	}
	state2, err := spanState(snap, e.File2, e.Offset2+uint64(span2.Size))
	if err != nil {
		return nil, err
	}
	if state1 != state2 {
		return nil, shardstore.NewError(shardstore.ErrorCodeSwapMismatchingState, "")
	}

	loc1Idx, blk1Idx, block1, found1 := findBlockInSpan(span1, e.BlockId1)
	loc2Idx, blk2Idx, block2, found2 := findBlockInSpan(span2, e.BlockId2)
	if !found1 || !found2 {
		if !found1 && !found2 {
			if _, _, _, already1 := findBlockInSpan(span1, e.BlockId2); already1 {
				if _, _, _, already2 := findBlockInSpan(span2, e.BlockId1); already2 {
					return OkResponse{}, nil
				}
			}
		}
		return nil, shardstore.NewError(shardstore.ErrorCodeBlockNotFound, "")
	}

	loc1 := span1.Locations[loc1Idx]
	loc2 := span2.Locations[loc2Idx]
	if loc1.CellSize*loc1.Stripes != loc2.CellSize*loc2.Stripes {
		return nil, shardstore.NewError(shardstore.ErrorCodeSwapMismatchingSize, "")
	}
	if block1.Crc != block2.Crc {
		return nil, shardstore.NewError(shardstore.ErrorCodeSwapMismatchingCrc, "")
	}
	if loc1.Location != loc2.Location {
		return nil, shardstore.NewError(shardstore.ErrorCodeSwapMismatchingLocation, "")
	}

	noDuplicates := func(loc schema.SpanLocation, replacedIdx int, newBlock schema.BlockLayout) error {
		newInfo, ok := cache.Get(newBlock.BlockServiceId)
		if !ok {
			return shardstore.NewError(shardstore.ErrorCodeBadBlockProof, "block service not cached")
		}
		for i, b := range loc.Blocks {
			if i == replacedIdx {
				continue
			}
			if b.BlockServiceId == newBlock.BlockServiceId {
				return shardstore.NewError(shardstore.ErrorCodeSwapLocationExists, "duplicate block service")
			}
			info, ok := cache.Get(b.BlockServiceId)
			if ok && info.FailureDomain == newInfo.FailureDomain {
				return shardstore.NewError(shardstore.ErrorCodeSwapLocationExists, "duplicate failure domain")
			}
		}
		return nil
	}
	if err := noDuplicates(loc1, blk1Idx, block2); err != nil {
		return nil, err
	}
	if err := noDuplicates(loc2, blk2Idx, block1); err != nil {
		return nil, err
	}

	batch.AdjustBlockServiceFileCount(block1.BlockServiceId, e.File1, -1)
	batch.AdjustBlockServiceFileCount(block2.BlockServiceId, e.File1, 1)
	batch.AdjustBlockServiceFileCount(block1.BlockServiceId, e.File2, 1)
	batch.AdjustBlockServiceFileCount(block2.BlockServiceId, e.File2, -1)

	span1.Locations[loc1Idx].Blocks[blk1Idx] = block2
	span2.Locations[loc2Idx].Blocks[blk2Idx] = block1
	if err := batch.PutSpan(e.File1, e.Offset1, span1); err != nil {
		return nil, err
	}
	if err := batch.PutSpan(e.File2, e.Offset2, span2); err != nil {
		return nil, err
	}
	return OkResponse{}, nil
}

func spanBlockIds(span schema.SpanBody) []shardid.BlockId {
	var ids []shardid.BlockId
	for _, loc := range span.Locations {
		for _, b := range loc.Blocks {
			ids = append(ids, b.BlockId)
		}
	}
	return ids
}

func blockIdsEqual(a, b []shardid.BlockId) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ApplySwapSpans exchanges two entire spans between two files. Both spans
// must be the same size and crc, and both must be in the clean state
// (whichever is the current last span of its file must already be
// certified). The caller's expected block lists let the handler tell
// "not yet applied" from "already applied" without re-deriving intent
// purely from storage. Idempotent for the same reason.
func ApplySwapSpans(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, e SwapSpans) (Response, error) {
	span1, ok, err := snap.GetSpan(e.File1, e.Offset1)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shardstore.NewError(shardstore.ErrorCodeSpanNotFound, "")
	}
	span2, ok, err := snap.GetSpan(e.File2, e.Offset2)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shardstore.NewError(shardstore.ErrorCodeSpanNotFound, "")
	}
	if span1.Inline || span2.Inline {
		return nil, shardstore.NewError(shardstore.ErrorCodeSwapInlineStorage, "")
	}
	if span1.Size != span2.Size {
		return nil, shardstore.NewError(shardstore.ErrorCodeSwapMismatchingSize, "")
	}
	if span1.Crc != span2.Crc {
		return nil, shardstore.NewError(shardstore.ErrorCodeSwapMismatchingCrc, "")
	}

	state1, err := spanState(snap, e.File1, e.Offset1+uint64(span1.Size))
	if err != nil {
		return nil, err
	}
	state2, err := spanState(snap, e.File2, e.Offset2+uint64(span2.Size))
	if err != nil {
		return nil, err
	}
	if state1 != schema.SpanStateClean || state2 != schema.SpanStateClean {
		return nil, shardstore.NewError(shardstore.ErrorCodeSwapNotClean, "")
	}

	if blockIdsEqual(spanBlockIds(span1), e.Blocks2) && blockIdsEqual(spanBlockIds(span2), e.Blocks1) {
		return OkResponse{}, nil
	}
	if !(blockIdsEqual(spanBlockIds(span1), e.Blocks1) && blockIdsEqual(spanBlockIds(span2), e.Blocks2)) {
		return nil, shardstore.NewError(shardstore.ErrorCodeSwapMismatchingLocation, "mismatching blocks")
	}

	adjust := func(span schema.SpanBody, addTo, subtractFrom shardid.InodeId) {
		for _, loc := range span.Locations {
			for _, b := range loc.Blocks {
				batch.AdjustBlockServiceFileCount(b.BlockServiceId, addTo, 1)
				batch.AdjustBlockServiceFileCount(b.BlockServiceId, subtractFrom, -1)
			}
		}
	}
	adjust(span1, e.File2, e.File1)
	adjust(span2, e.File1, e.File2)

	if err := batch.PutSpan(e.File1, e.Offset1, span2); err != nil {
		return nil, err
	}
	if err := batch.PutSpan(e.File2, e.Offset2, span1); err != nil {
		return nil, err
	}
	return OkResponse{}, nil
}

// ApplyMoveSpan relocates a span from one offset to another within the
// same file, used by the rearrangement family described alongside
// swap-blocks and swap-spans. Idempotent: if the source is already gone
// and the destination already holds it, treat the retry as a success.
func ApplyMoveSpan(snap *shardstore.ReadSnapshot, batch *shardstore.WriteBatch, e MoveSpan) (Response, error) {
	src, ok, err := snap.GetSpan(e.File, e.SrcOffset)
	if err != nil {
		return nil, err
	}
	if !ok {
		if _, ok, err := snap.GetSpan(e.File, e.DstOffset); err != nil {
			return nil, err
		} else if ok {
			return OkResponse{}, nil
		}
		return nil, shardstore.NewError(shardstore.ErrorCodeSpanNotFound, "")
	}
	if err := batch.PutSpan(e.File, e.DstOffset, src); err != nil {
		return nil, err
	}
	batch.DeleteSpan(e.File, e.SrcOffset)
	return OkResponse{}, nil
}
