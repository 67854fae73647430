package flowtable

import (
	"sync"

	"github.com/hcswitch/ofcore/internal/hashfn"
)

// MutationKind classifies the outcome of a table-mutation call (spec
// §6 "Internal API surface": "add/modify/remove each returning an
// error variant {ok, table-full, bad-match, bad-instruction,
// bad-action}"). These are OpenFlow-shaped, distinct from the general
// lifecycle vocabulary in internal/xerr (spec §7: "Table-mutation
// failures propagate to the external protocol agent as OpenFlow-shaped
// errors").
type MutationKind uint8

const (
	MutationOK MutationKind = iota
	MutationTableFull
	MutationBadMatch
	MutationBadInstruction
	MutationBadAction
	MutationAlreadyExists
	MutationNotFound
)

func (k MutationKind) String() string {
	switch k {
	case MutationOK:
		return "ok"
	case MutationTableFull:
		return "table-full"
	case MutationBadMatch:
		return "bad-match"
	case MutationBadInstruction:
		return "bad-instruction"
	case MutationBadAction:
		return "bad-action"
	case MutationAlreadyExists:
		return "already-exists"
	case MutationNotFound:
		return "not-found"
	default:
		return "unknown"
	}
}

// MutationError wraps a MutationKind as an error.
type MutationError struct{ Kind MutationKind }

func (e *MutationError) Error() string { return e.Kind.String() }

func mutationErr(k MutationKind) error {
	if k == MutationOK {
		return nil
	}
	return &MutationError{Kind: k}
}

// MaxEntriesPerTable bounds how many entries a single table may hold,
// enforced by AddFlow (spec §6 "table-full").
const MaxEntriesPerTable = 1 << 16

// RemovalNotifier is the external protocol agent's removal-event
// callback (spec §4.6: "a removal event is dispatched to the external
// protocol agent with the appropriate reason"). It is a contract-only
// collaborator interface (spec §1 "Explicitly out of scope").
type RemovalNotifier interface {
	FlowRemoved(tableID uint8, e *Entry, reason RemovalReason)
}

// Bridge owns a set of flow tables and the generation counter that
// invalidates per-worker flow caches. Mutations are serialized by lock;
// readers (table Match, cache Generation comparisons) need no lock.
type Bridge struct {
	mu         sync.RWMutex
	tables     map[uint8]*Table
	generation generationCounter
	hash       hashfn.Func
	notifier   RemovalNotifier
}

// NewBridge constructs an empty Bridge using fn for match-index
// bucketing.
func NewBridge(fn hashfn.Func) *Bridge {
	return &Bridge{tables: make(map[uint8]*Table), hash: fn}
}

// SetRemovalNotifier registers the external protocol agent's removal
// callback.
func (b *Bridge) SetRemovalNotifier(n RemovalNotifier) { b.notifier = n }

// Generation returns the current bridge generation, compared by
// internal/flowcache entries on lookup.
func (b *Bridge) Generation() uint64 { return b.generation.value() }

// Table returns (creating if absent) the table with the given id.
func (b *Bridge) Table(id uint8) *Table {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tableLocked(id)
}

func (b *Bridge) tableLocked(id uint8) *Table {
	t, ok := b.tables[id]
	if !ok {
		t = NewTable(id, b.hash)
		b.tables[id] = t
	}
	return t
}

// validate rejects malformed match lists and action lists before they
// touch a table: a FieldKind repeated in the match is bad-match, an
// unknown action kind in the apply or write list is bad-action. No
// check returns bad-instruction.
func validate(match MatchList, instr InstructionSet) MutationKind {
	seen := make(map[FieldKind]bool, len(match))
	for _, f := range match {
		if seen[f.Kind] {
			return MutationBadMatch
		}
		seen[f.Kind] = true
	}
	for _, a := range instr.Slot(SlotApplyActions).Apply {
		if !validActionKind(a.Kind) {
			return MutationBadAction
		}
	}
	for _, a := range instr.Slot(SlotWriteActions).Write {
		if !validActionKind(a.Kind) {
			return MutationBadAction
		}
	}
	return MutationOK
}

func validActionKind(k ActionKind) bool {
	return k <= ActionSetQueue
}

// AddFlow inserts a new entry into tableID. An add whose (table,
// priority, cookie, match) tuple already identifies a live entry
// returns already-exists (see DESIGN.md for the rationale).
func (b *Bridge) AddFlow(tableID uint8, priority uint16, cookie uint64, idle, hard uint32, match MatchList, instr InstructionSet) (*Entry, error) {
	if kind := validate(match, instr); kind != MutationOK {
		return nil, mutationErr(kind)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.tableLocked(tableID)
	if t.Len() >= MaxEntriesPerTable {
		return nil, mutationErr(MutationTableFull)
	}
	if existing := t.find(priority, cookie, match); existing != nil {
		return nil, mutationErr(MutationAlreadyExists)
	}
	e := NewEntry(tableID, priority, cookie, idle, hard, match, instr)
	t.insert(e)
	b.generation.bump()
	return e, nil
}

// ModifyFlow replaces the instruction set of the entry identified by
// (tableID, priority, cookie, match).
func (b *Bridge) ModifyFlow(tableID uint8, priority uint16, cookie uint64, match MatchList, instr InstructionSet) error {
	if kind := validate(match, instr); kind != MutationOK {
		return mutationErr(kind)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tables[tableID]
	if !ok {
		return mutationErr(MutationNotFound)
	}
	e := t.find(priority, cookie, match)
	if e == nil {
		return mutationErr(MutationNotFound)
	}
	e.Instructions = instr
	t.indexStale = true
	b.generation.bump()
	return nil
}

// RemoveFlow deletes the entry identified by (tableID, priority,
// cookie, match), invoking the removal notifier with RemovalExplicit.
func (b *Bridge) RemoveFlow(tableID uint8, priority uint16, cookie uint64, match MatchList) error {
	b.mu.Lock()
	t, ok := b.tables[tableID]
	if !ok {
		b.mu.Unlock()
		return mutationErr(MutationNotFound)
	}
	e := t.find(priority, cookie, match)
	if e == nil {
		b.mu.Unlock()
		return mutationErr(MutationNotFound)
	}
	t.remove(e)
	b.generation.bump()
	notifier := b.notifier
	b.mu.Unlock()
	if notifier != nil {
		notifier.FlowRemoved(tableID, e, RemovalExplicit)
	}
	return nil
}

// removeExpired is called by internal/timeout with the bridge already
// identified as the owner of e; it removes e and fires the removal
// notification with reason. It does not re-validate e's identity
// tuple, since the timer holds e by pointer (arena back-reference), not
// by (table, priority, cookie, match).
func (b *Bridge) removeExpired(tableID uint8, e *Entry, reason RemovalReason) {
	b.mu.Lock()
	t, ok := b.tables[tableID]
	if !ok {
		b.mu.Unlock()
		return
	}
	removed := t.remove(e)
	if removed {
		b.generation.bump()
	}
	notifier := b.notifier
	b.mu.Unlock()
	if removed && notifier != nil {
		notifier.FlowRemoved(tableID, e, reason)
	}
}

// RemoveExpired is the exported entry point internal/timeout uses to
// expire a flow entry it owns a back-reference to.
func (b *Bridge) RemoveExpired(tableID uint8, e *Entry, reason RemovalReason) {
	b.removeExpired(tableID, e, reason)
}

// RebuildStaleIndexes rebuilds the match index of every table whose
// index is currently stale (spec §4.6 "match-index-rebuild" slot
// kind).
func (b *Bridge) RebuildStaleIndexes() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.tables {
		if t.Stale() {
			t.Rebuild()
		}
	}
}

// TableIDs returns the ids of all tables currently registered.
func (b *Bridge) TableIDs() []uint8 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]uint8, 0, len(b.tables))
	for id := range b.tables {
		ids = append(ids, id)
	}
	return ids
}
