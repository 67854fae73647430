package flowtable

import (
	"sort"
	"sync/atomic"

	"github.com/hcswitch/ofcore/internal/hashfn"
)

// MissBehavior determines what a Table does when no entry matches
// (spec §4.4 step 4: "apply the table's miss behavior").
type MissBehavior uint8

const (
	MissDrop MissBehavior = iota
	MissControllerSend
	MissNextTable
)

// indexBucket groups entries that share an exact-match signature: the
// set of FieldKinds they constrain. This is the secondary index for
// fast match — entries that pin the same fields can be looked up by a
// hash of those field values instead of a linear priority scan.
type indexBucket struct {
	signature uint64 // bitmask of the FieldKinds constrained
	byValue   map[uint64][]*Entry
}

// Table is an ordered sequence of flow entries plus an opaque match
// index (spec §3 "Flow table"). Iteration order is priority-descending
// with ties broken by insertion order; the index is rebuilt on demand
// and may lag the authoritative slice within a bounded staleness
// window, exactly as spec'd.
type Table struct {
	ID   uint8
	Miss MissBehavior

	entries []*Entry // authoritative, kept priority/insertion sorted
	nextSeq uint64

	index      map[uint64]*indexBucket
	indexStale bool

	hash hashfn.Func
}

// NewTable constructs an empty table using fn for index bucketing.
func NewTable(id uint8, fn hashfn.Func) *Table {
	return &Table{ID: id, hash: fn, index: make(map[uint64]*indexBucket)}
}

// insert adds e to the authoritative slice in priority order (desc),
// ties broken by insertion order, and marks the index stale.
func (t *Table) insert(e *Entry) {
	t.nextSeq++
	e.insertSeq = t.nextSeq
	i := sort.Search(len(t.entries), func(i int) bool {
		a := t.entries[i]
		if a.Priority != e.Priority {
			return a.Priority < e.Priority
		}
		return a.insertSeq > e.insertSeq
	})
	t.entries = append(t.entries, nil)
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = e
	t.indexStale = true
}

// remove deletes e from the authoritative slice by identity.
func (t *Table) remove(e *Entry) bool {
	for i, cur := range t.entries {
		if cur == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			t.indexStale = true
			return true
		}
	}
	return false
}

// find returns the entry matching identity (table, priority, cookie,
// match), used to detect "already exists" on add (spec §9 Open
// Question decision, DESIGN.md).
func (t *Table) find(priority uint16, cookie uint64, match MatchList) *Entry {
	for _, e := range t.entries {
		if e.Priority == priority && e.Cookie == cookie && matchListEqual(e.Match, match) {
			return e
		}
	}
	return nil
}

func matchListEqual(a, b MatchList) bool {
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

// Match walks entries in priority order and returns the first whose
// MatchList is satisfied by pk (spec §4.4 step 4). Match always scans
// the authoritative slice linearly; the secondary index built by
// Rebuild is not consulted, so its staleness never affects the result.
func (t *Table) Match(pk PacketKey) (*Entry, bool) {
	for _, e := range t.entries {
		if e.Match.Matches(pk) {
			return e, true
		}
	}
	return nil, false
}

// Rebuild recomputes the secondary index from the authoritative slice
// (spec §4.6 "match-index-rebuild" timer slot kind). Buckets group
// entries by the set of FieldKinds they constrain; within a bucket,
// entries are keyed by a hash of their concrete field values. Match
// does not read this index.
func (t *Table) Rebuild() {
	idx := make(map[uint64]*indexBucket)
	for _, e := range t.entries {
		sig := fieldSetSignature(e.Match)
		b, ok := idx[sig]
		if !ok {
			b = &indexBucket{signature: sig, byValue: make(map[uint64][]*Entry)}
			idx[sig] = b
		}
		key := fieldValuesHash(e.Match)
		b.byValue[key] = append(b.byValue[key], e)
	}
	t.index = idx
	t.indexStale = false
}

// Stale reports whether Rebuild has not been run since the last
// mutation.
func (t *Table) Stale() bool { return t.indexStale }

// Len returns the number of entries currently in the table.
func (t *Table) Len() int { return len(t.entries) }

// Entries returns a priority-ordered snapshot of the table's entries.
func (t *Table) Entries() []*Entry {
	out := make([]*Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func fieldSetSignature(m MatchList) uint64 {
	var sig uint64
	for _, f := range m {
		sig |= 1 << uint(f.Kind)
	}
	return sig
}

func fieldValuesHash(m MatchList) uint64 {
	var h uint64 = 1469598103934665603 // FNV offset basis, local mixing only
	for _, f := range m {
		h ^= f.Value
		h *= 1099511628211
	}
	return h
}

// generationCounter is shared by every Table in a Bridge; it is bumped
// whenever any table is mutated, invalidating per-worker flow caches
// without walking them (spec §4.5, Glossary "Generation").
type generationCounter struct {
	g atomic.Uint64
}

func (g *generationCounter) bump() uint64 { return g.g.Add(1) }
func (g *generationCounter) value() uint64 { return g.g.Load() }
