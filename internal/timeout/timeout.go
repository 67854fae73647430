// Package timeout implements the flow-expiry and match-index-rebuild
// timer wheel (spec §4.6), grounded on the slot-splicing algorithm in
// original_source's dp_timer (timer.c): slots are created on demand,
// entries that share a deadline bucket and slot kind share a slot up to
// a fixed capacity, and each slot holds an absolute deadline in a slice
// sorted by deadline (no slot stores a timeout relative to its
// predecessor, so inserting a slot adjusts no other slot). A flow's slot
// membership is tracked
// by an arena (slotID, position) pair rather than a pointer (Design
// Notes), so clearing a flow out from under a pending slot is an O(1)
// write to a sentinel instead of a list walk.
package timeout

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hcswitch/ofcore/internal/flowtable"
)

// MaxEntriesPerSlot bounds how many flow records one slot may hold
// before a new slot is created for the same deadline bucket (spec
// grounding: original_source's MAX_TIMEOUT_ENTRIES).
const MaxEntriesPerSlot = 256

// deadlineQuantum buckets nearby deadlines into the same slot, standing
// in for original_source's exact-match-on-relative-timeout test
// (`prev_time + dp_timer->timeout == timeout`) without requiring
// nanosecond-exact coincidence.
const deadlineQuantum = 10 * time.Millisecond

// SlotKind distinguishes the two timer-entry kinds the wheel carries:
// a flow-kind slot and a match-index-rebuild slot.
type SlotKind int

const (
	FlowSlot SlotKind = iota
	IndexRebuildSlot
)

type flowRecord struct {
	tableID uint8
	entry   *flowtable.Entry
}

// slot is one arena cell: a deadline bucket holding up to
// MaxEntriesPerSlot flow records, or (for IndexRebuildSlot) the single
// table id whose match index should be rebuilt when this slot fires.
type slot struct {
	id             int64
	kind           SlotKind
	deadline       time.Time
	flows          []flowRecord // flows[i].entry == nil is a cleared sentinel
	live           int
	rebuildTableID uint8
}

// IndexRebuilder is the match-index-rebuild collaborator; satisfied by
// *flowtable.Bridge.
type IndexRebuilder interface {
	RebuildStaleIndexes()
}

// Wheel is the single timer thread's owned state (spec §4.6: "A single
// thread owns the timer wheel"). It also implements
// flowtable.RemovalNotifier so it observes explicit removals and clears
// the corresponding arena slot before forwarding to any downstream
// notifier (e.g. the external protocol agent).
type Wheel struct {
	mu        sync.Mutex
	slots     []*slot // sorted ascending by deadline
	byID      map[int64]*slot
	nextID    int64
	bridge    *flowtable.Bridge
	rebuilder IndexRebuilder
	next      flowtable.RemovalNotifier

	stop atomic.Bool
}

// NewWheel constructs a Wheel bound to bridge (for expiry removal and
// RebuildStaleIndexes).
func NewWheel(bridge *flowtable.Bridge) *Wheel {
	return &Wheel{bridge: bridge, byID: make(map[int64]*slot), rebuilder: bridge}
}

// SetNext registers a downstream RemovalNotifier (e.g. the external
// protocol agent) invoked after the Wheel has observed the removal.
func (w *Wheel) SetNext(n flowtable.RemovalNotifier) { w.next = n }

// Stop requests the Run loop to exit at its next safe point.
func (w *Wheel) Stop() { w.stop.Store(true) }

// deadlineFor computes a flow entry's nearest expiry instant from its
// idle/hard deadlines (original_source's add_flow_timer: "timeout =
// MIN(idle_elapsed, hard_elapsed)" when both are configured).
func deadlineFor(e *flowtable.Entry) (time.Time, bool) {
	idle := e.IdleDeadline()
	hard := e.HardDeadline()
	switch {
	case !idle.IsZero() && !hard.IsZero():
		if idle.Before(hard) {
			return idle, true
		}
		return hard, true
	case !idle.IsZero():
		return idle, true
	case !hard.IsZero():
		return hard, true
	default:
		return time.Time{}, false
	}
}

// AddFlowTimer schedules e for expiry evaluation at its nearest
// deadline. A no-op if e has neither idle nor hard timeout configured.
func (w *Wheel) AddFlowTimer(tableID uint8, e *flowtable.Entry) {
	deadline, ok := deadlineFor(e)
	if !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.insertLocked(FlowSlot, deadline, flowRecord{tableID: tableID, entry: e})
}

// AddIndexRebuildTimer schedules a periodic match-index-rebuild check
// for tableID, firing after interval.
func (w *Wheel) AddIndexRebuildTimer(tableID uint8, interval time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := &slot{id: w.nextID, kind: IndexRebuildSlot, deadline: time.Now().Add(interval), rebuildTableID: tableID}
	w.nextID++
	w.spliceLocked(s)
}

// insertLocked implements the find-or-create step of the slot-splicing
// algorithm: reuse an existing same-kind slot whose deadline falls
// within the same quantum bucket and has spare capacity, else splice in
// a new slot at the correct sorted position.
func (w *Wheel) insertLocked(kind SlotKind, deadline time.Time, rec flowRecord) {
	for _, s := range w.slots {
		if s.kind != kind {
			continue
		}
		if s.deadline.Sub(deadline) > deadlineQuantum || deadline.Sub(s.deadline) > deadlineQuantum {
			continue
		}
		if s.live >= MaxEntriesPerSlot {
			continue
		}
		pos := w.appendToSlotLocked(s, rec)
		rec.entry.SetTimerRef(s.id, int64(pos))
		return
	}
	s := &slot{id: w.nextID, kind: kind, deadline: deadline}
	w.nextID++
	pos := w.appendToSlotLocked(s, rec)
	rec.entry.SetTimerRef(s.id, int64(pos))
	w.spliceLocked(s)
}

func (w *Wheel) appendToSlotLocked(s *slot, rec flowRecord) int {
	for i, f := range s.flows {
		if f.entry == nil {
			s.flows[i] = rec
			s.live++
			return i
		}
	}
	s.flows = append(s.flows, rec)
	s.live++
	return len(s.flows) - 1
}

// spliceLocked inserts a freshly created slot into the sorted list and
// registers it by id.
func (w *Wheel) spliceLocked(s *slot) {
	i := sort.Search(len(w.slots), func(i int) bool { return w.slots[i].deadline.After(s.deadline) })
	w.slots = append(w.slots, nil)
	copy(w.slots[i+1:], w.slots[i:])
	w.slots[i] = s
	w.byID[s.id] = s
}

// clearLocked nils the flow record at (slotID, position), the O(1)
// "clear to sentinel" operation (spec §4.6: "Removal of a flow while it
// sits in the timer clears the slot's corresponding entry to a
// sentinel").
func (w *Wheel) clearLocked(slotID, position int64) {
	s, ok := w.byID[slotID]
	if !ok || position < 0 || int(position) >= len(s.flows) {
		return
	}
	if s.flows[position].entry != nil {
		s.flows[position] = flowRecord{}
		s.live--
	}
}

// FlowRemoved implements flowtable.RemovalNotifier: it clears the
// entry's arena slot (idempotent — a no-op if the entry was not
// pending, or was already cleared by the expiry pass that triggered
// this very notification) and forwards to any registered next notifier.
func (w *Wheel) FlowRemoved(tableID uint8, e *flowtable.Entry, reason flowtable.RemovalReason) {
	slotID, position := e.TimerRef()
	if slotID != flowtable.SentinelTimerPosition {
		w.mu.Lock()
		w.clearLocked(slotID, position)
		w.mu.Unlock()
	}
	e.ClearTimerRef()
	if w.next != nil {
		w.next.FlowRemoved(tableID, e, reason)
	}
}

// popDue removes and returns the head slot if its deadline has passed,
// and the wait duration until it would fire otherwise (spec §5: "only
// pselect/sleep inside the timer").
func (w *Wheel) popDue(now time.Time) (*slot, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.slots) == 0 {
		return nil, time.Second
	}
	head := w.slots[0]
	if head.deadline.After(now) {
		return nil, head.deadline.Sub(now)
	}
	w.slots = w.slots[1:]
	delete(w.byID, head.id)
	return head, 0
}

// expire processes a due slot: for FlowSlot, re-evaluates each live
// entry's expiry and either removes it (with precedence decided by
// flowtable.Entry.Expiry) or re-inserts it with a fresh deadline; for
// IndexRebuildSlot, triggers a rebuild and reschedules itself (spec
// §4.6 final paragraph).
func (w *Wheel) expire(s *slot, rebuildInterval time.Duration) {
	switch s.kind {
	case FlowSlot:
		now := time.Now()
		for _, rec := range s.flows {
			if rec.entry == nil {
				continue
			}
			reason, expired := rec.entry.Expiry(now)
			if expired {
				rec.entry.ClearTimerRef()
				w.bridge.RemoveExpired(rec.tableID, rec.entry, reason)
				continue
			}
			w.AddFlowTimer(rec.tableID, rec.entry)
		}
	case IndexRebuildSlot:
		if w.rebuilder != nil {
			w.rebuilder.RebuildStaleIndexes()
		}
		w.AddIndexRebuildTimer(s.rebuildTableID, rebuildInterval)
	}
}

// Run is the timer thread's loop: sleep to the head slot's deadline,
// expire it, repeat, until Stop is called (spec §4.6/§5).
func (w *Wheel) Run(rebuildInterval time.Duration) {
	for !w.stop.Load() {
		s, wait := w.popDue(time.Now())
		if s == nil {
			time.Sleep(wait)
			continue
		}
		w.expire(s, rebuildInterval)
	}
}
