package preparepath

import (
	"math/rand"

	"github.com/shardfs/shard/pkg/blockcache"
	"github.com/shardfs/shard/pkg/schema"
	"github.com/shardfs/shard/pkg/shardid"
	"github.com/shardfs/shard/pkg/shardstore"
)

// BlockServiceSelection is one call's input to block-service selection
// for a new span, per §4.2.
type BlockServiceSelection struct {
	Location         uint8
	StorageClass     blockcache.StorageClass
	Parity           schema.Parity
	BlacklistIds     []shardid.BlockServiceId
	BlacklistDomains []string
	// ReferenceFile, if non-zero, is consulted to inherit placement from
	// its span at offset 0 (or failing that, its last span).
	ReferenceFile shardid.InodeId
}

// SelectBlockServices implements §4.2's block-service selection
// algorithm: candidate filtering by storage class, usability and
// blacklist, strict failure-domain deduplication, placement inheritance
// from a reference file's span 0 or last span, and a timestamp-seeded
// random fill of whatever slots remain. Candidates are not filtered by
// location (blockcache.Info carries none); sel.Location only chooses
// which location of the reference span placement is inherited from.
func SelectBlockServices(cache blockcache.Snapshot, snap *shardstore.ReadSnapshot, sel BlockServiceSelection, now shardid.TernTime) ([]shardid.BlockServiceId, error) {
	blacklistIds := make(map[shardid.BlockServiceId]bool, len(sel.BlacklistIds))
	for _, id := range sel.BlacklistIds {
		blacklistIds[id] = true
	}
	blacklistDomains := make(map[string]bool, len(sel.BlacklistDomains))
	for _, d := range sel.BlacklistDomains {
		blacklistDomains[d] = true
	}

	candidates := make(map[shardid.BlockServiceId]blockcache.Info)
	for _, info := range cache.ByStorageClass(sel.StorageClass) {
		if !info.Usable() {
			continue
		}
		if blacklistIds[info.Id] || blacklistDomains[info.FailureDomain] {
			continue
		}
		candidates[info.Id] = info
	}

	usedDomains := make(map[string]bool)
	var picked []shardid.BlockServiceId

	take := func(id shardid.BlockServiceId) bool {
		info, ok := candidates[id]
		if !ok || usedDomains[info.FailureDomain] {
			return false
		}
		picked = append(picked, id)
		usedDomains[info.FailureDomain] = true
		delete(candidates, id)
		return true
	}

	if !sel.ReferenceFile.IsNull() {
		for _, refBlockService := range referenceSpanBlockServices(snap, sel.ReferenceFile, sel.Location) {
			if len(picked) >= sel.Parity.Blocks() {
				break
			}
			take(refBlockService)
		}
	}

	if len(picked) < sel.Parity.Blocks() {
		remaining := make([]shardid.BlockServiceId, 0, len(candidates))
		for id := range candidates {
			remaining = append(remaining, id)
		}
		rng := rand.New(rand.NewSource(int64(now)))
		rng.Shuffle(len(remaining), func(i, j int) { remaining[i], remaining[j] = remaining[j], remaining[i] })
		for _, id := range remaining {
			if len(picked) >= sel.Parity.Blocks() {
				break
			}
			take(id)
		}
	}

	if len(picked) < sel.Parity.Blocks() {
		return nil, shardstore.NewError(shardstore.ErrorCodeCouldNotPickBlockServices, "")
	}
	return picked, nil
}

// referenceSpanBlockServices returns the block services already backing
// file's location-matching blocks, checked first at span offset 0 and
// then at the file's last span, per §4.2's placement-inheritance rule.
func referenceSpanBlockServices(snap *shardstore.ReadSnapshot, file shardid.InodeId, location uint8) []shardid.BlockServiceId {
	if body, ok, _ := snap.GetSpan(file, 0); ok {
		if bs := blockServicesAtLocation(body, location); len(bs) > 0 {
			return bs
		}
	}
	body, _, found, err := snap.LastSpanAtOrBefore(file, ^uint64(0))
	if err != nil || !found {
		return nil
	}
	return blockServicesAtLocation(body, location)
}

func blockServicesAtLocation(body schema.SpanBody, location uint8) []shardid.BlockServiceId {
	loc, ok := body.LocationByIndex(location)
	if !ok {
		return nil
	}
	out := make([]shardid.BlockServiceId, 0, len(loc.Blocks))
	for _, b := range loc.Blocks {
		out = append(out, b.BlockServiceId)
	}
	return out
}
