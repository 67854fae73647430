// Package flowcache implements the per-worker keyed lookup from a
// packet-header fingerprint to the last-matched flow (spec §3 "Flow
// cache entry", §4.5). One Cache instance belongs to exactly one
// worker; invalidation is implicit via the bridge's generation counter
// — no cross-worker synchronization is required.
package flowcache

import (
	"sync"

	"github.com/hcswitch/ofcore/internal/flowtable"
	"github.com/hcswitch/ofcore/internal/xerr"
)

// Kind selects a cache backend (spec §4.5, CLI --kvstype).
type Kind int

const (
	NoLock Kind = iota
	RWLock
	Hardware
)

// Parse maps a --kvstype CLI token to a Kind.
func Parse(s string) (Kind, bool) {
	switch s {
	case "hashmap_nolock", "":
		return NoLock, true
	case "hashmap":
		return RWLock, true
	case "rte_hash":
		return Hardware, true
	default:
		return 0, false
	}
}

// entry is one fingerprint -> flow-reference mapping, tagged with the
// bridge generation current at insertion time (spec §3 "Flow cache
// entry").
type entry struct {
	flow       *flowtable.Entry
	generation uint64
}

// Cache is the per-worker lookup: Lookup ignores (does not delete)
// entries whose generation no longer matches the bridge's current
// generation, treating a mismatch as a miss (spec §4.5).
type Cache interface {
	Lookup(fingerprint uint64, currentGeneration uint64) (*flowtable.Entry, bool)
	Insert(fingerprint uint64, flow *flowtable.Entry, generation uint64)
	Clear()
}

// New constructs a Cache backend of the given Kind with the given
// initial bucket-count hint.
func New(kind Kind, sizeHint int) (Cache, error) {
	switch kind {
	case NoLock:
		return newNoLockCache(sizeHint), nil
	case RWLock:
		return newRWLockCache(sizeHint), nil
	case Hardware:
		// A real rte_hash-equivalent requires NIC/driver offload
		// outside the scope of this module (spec §1 "NIC PMD and raw-
		// socket drivers... out of scope"); reported as not-operational
		// rather than silently degrading to a software backend.
		return nil, xerr.NotOperational("flowcache.New(Hardware)")
	default:
		return nil, xerr.InvalidArgs("flowcache.New", nil)
	}
}

// noLockCache is a plain map, valid because exactly one goroutine (the
// owning worker) ever reads or writes it — the default backend.
type noLockCache struct {
	m map[uint64]entry
}

func newNoLockCache(sizeHint int) *noLockCache {
	return &noLockCache{m: make(map[uint64]entry, sizeHint)}
}

func (c *noLockCache) Lookup(fp uint64, currentGeneration uint64) (*flowtable.Entry, bool) {
	e, ok := c.m[fp]
	if !ok || e.generation != currentGeneration {
		return nil, false
	}
	return e.flow, true
}

func (c *noLockCache) Insert(fp uint64, flow *flowtable.Entry, generation uint64) {
	c.m[fp] = entry{flow: flow, generation: generation}
}

func (c *noLockCache) Clear() {
	c.m = make(map[uint64]entry, len(c.m))
}

// rwLockCache is the shared-cache backend, guarded by a RWMutex, used
// when a cache is intentionally shared across more than one reader.
type rwLockCache struct {
	mu sync.RWMutex
	m  map[uint64]entry
}

func newRWLockCache(sizeHint int) *rwLockCache {
	return &rwLockCache{m: make(map[uint64]entry, sizeHint)}
}

func (c *rwLockCache) Lookup(fp uint64, currentGeneration uint64) (*flowtable.Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.m[fp]
	if !ok || e.generation != currentGeneration {
		return nil, false
	}
	return e.flow, true
}

func (c *rwLockCache) Insert(fp uint64, flow *flowtable.Entry, generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[fp] = entry{flow: flow, generation: generation}
}

func (c *rwLockCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[uint64]entry, len(c.m))
}
