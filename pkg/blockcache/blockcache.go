// Package blockcache defines the shard's read-only view of the
// block-service cache: an in-memory map of block-service id to its
// addresses, flags, failure domain and secret key. The cache's population
// (registration, heartbeats, eviction) is an external collaborator out of
// this module's scope per §1; this package only defines the snapshot
// interface the prepare and read paths consume, plus an in-memory
// reference implementation for tests, styled after
// pkg/store/content/memory/memory.go's snapshot-map approach.
package blockcache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shardfs/shard/internal/mac"
	"github.com/shardfs/shard/pkg/shardid"
)

// StorageClass identifies a storage tier a block service participates in
// (e.g. flash vs. hdd); the concrete enumeration is owned by the cluster
// configuration, not this module, so it stays an opaque byte here.
type StorageClass uint8

// Flags carries the block service's operational flags (read-only,
// decommissioning, etc.) as an opaque bitset the cache's owner defines.
type Flags uint32

const (
	FlagReadOnly       Flags = 1 << 0
	FlagDecommissioned Flags = 1 << 1
)

// Info is everything the shard needs to know about a block service to
// pick it for a new span or to validate a certificate against it.
type Info struct {
	Id            shardid.BlockServiceId
	Addresses     []string
	Flags         Flags
	FailureDomain string
	StorageClass  StorageClass
	SecretKey     mac.Key
}

// Usable reports whether a block service may be picked for new writes.
func (i Info) Usable() bool {
	return i.Flags&(FlagReadOnly|FlagDecommissioned) == 0
}

// Snapshot is a read-only, point-in-time view of the block-service cache.
type Snapshot interface {
	// Get returns the info for id, and whether it was present.
	Get(id shardid.BlockServiceId) (Info, bool)
	// ByStorageClass returns every currently-known block service
	// serving the given storage class. Info carries no location, so the
	// result is not filtered by location, and prepare-path block
	// selection applies no location filter to it either.
	ByStorageClass(class StorageClass) []Info
}

// Cache is a mutable, externally-owned block-service cache; the shard
// only ever calls Snapshot() on it. The in-memory implementation here is
// a reference/test double for the real cache, which lives outside this
// module.
type Cache struct {
	mu   sync.RWMutex
	byID map[shardid.BlockServiceId]Info

	hits   prometheus.Counter
	misses prometheus.Counter
}

// NewCache returns an empty in-memory cache instrumented with the given
// Prometheus registerer (nil skips registration, useful in tests).
func NewCache(reg prometheus.Registerer) *Cache {
	c := &Cache{
		byID: make(map[shardid.BlockServiceId]Info),
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shard_blockcache_hits_total",
			Help: "Block-service cache lookups that found the requested id.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shard_blockcache_misses_total",
			Help: "Block-service cache lookups for an id not currently cached.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.hits, c.misses)
	}
	return c
}

// Put installs or replaces the cached info for a block service.
func (c *Cache) Put(info Info) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[info.Id] = info
}

// Remove evicts a block service from the cache.
func (c *Cache) Remove(id shardid.BlockServiceId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byID, id)
}

// Snapshot returns a point-in-time copy of the cache contents.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byID := make(map[shardid.BlockServiceId]Info, len(c.byID))
	for k, v := range c.byID {
		byID[k] = v
	}
	return &memorySnapshot{byID: byID, hits: c.hits, misses: c.misses}
}

type memorySnapshot struct {
	byID   map[shardid.BlockServiceId]Info
	hits   prometheus.Counter
	misses prometheus.Counter
}

func (s *memorySnapshot) Get(id shardid.BlockServiceId) (Info, bool) {
	info, ok := s.byID[id]
	if ok {
		s.hits.Inc()
	} else {
		s.misses.Inc()
	}
	return info, ok
}

func (s *memorySnapshot) ByStorageClass(class StorageClass) []Info {
	var out []Info
	for _, info := range s.byID {
		if info.StorageClass == class {
			out = append(out, info)
		}
	}
	return out
}
