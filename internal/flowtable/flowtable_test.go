package flowtable_test

import (
	"testing"
	"time"

	"github.com/hcswitch/ofcore/internal/flowtable"
	"github.com/hcswitch/ofcore/internal/hashfn"
)

func ipv4Dst(v uint32, mask uint32) flowtable.Field {
	f := flowtable.Field{Kind: flowtable.FieldIPv4Dst, Value: uint64(v)}
	if mask != 0 {
		f.Mask = uint64(mask)
	}
	return f
}

func keyForDst(dst uint32) flowtable.PacketKey {
	var pk flowtable.PacketKey
	pk.ParseL3(0, dst, 6)
	return pk
}

func TestPriorityOrderingWithInsertionTieBreak(t *testing.T) {
	b := flowtable.NewBridge(hashfn.City64.Select())
	if _, err := b.AddFlow(0, 100, 1, 0, 0, flowtable.MatchList{ipv4Dst(1, 0)}, flowtable.InstructionSet{}); err != nil {
		t.Fatalf("AddFlow low: %v", err)
	}
	if _, err := b.AddFlow(0, 200, 2, 0, 0, flowtable.MatchList{ipv4Dst(1, 0)}, flowtable.InstructionSet{}); err != nil {
		t.Fatalf("AddFlow high: %v", err)
	}
	if _, err := b.AddFlow(0, 100, 3, 0, 0, flowtable.MatchList{ipv4Dst(1, 0)}, flowtable.InstructionSet{}); err != nil {
		t.Fatalf("AddFlow second low: %v", err)
	}
	entries := b.Table(0).Entries()
	if len(entries) != 3 || entries[0].Priority != 200 || entries[1].Priority != 100 || entries[2].Priority != 100 {
		t.Fatalf("expected priority-descending order, got %+v", entries)
	}
	if entries[1].Cookie != 1 || entries[2].Cookie != 3 {
		t.Fatalf("expected equal-priority entries in insertion order, got cookies %d, %d", entries[1].Cookie, entries[2].Cookie)
	}
}

func TestCacheInvalidationScenarioS6(t *testing.T) {
	b := flowtable.NewBridge(hashfn.City64.Select())
	match := flowtable.MatchList{ipv4Dst(0x0A000001, 0xFFFFFFFF)}

	f1, err := b.AddFlow(0, 100, 1, 0, 0, match, flowtable.InstructionSet{})
	if err != nil {
		t.Fatalf("AddFlow F1: %v", err)
	}
	pk := keyForDst(0x0A000001)
	matched, ok := b.Table(0).Match(pk)
	if !ok || matched != f1 {
		t.Fatalf("expected first match to hit F1")
	}
	genBeforeF2 := b.Generation()

	f2, err := b.AddFlow(0, 200, 2, 0, 0, match, flowtable.InstructionSet{})
	if err != nil {
		t.Fatalf("AddFlow F2: %v", err)
	}
	if b.Generation() == genBeforeF2 {
		t.Fatalf("expected generation to bump on AddFlow")
	}
	matched, ok = b.Table(0).Match(pk)
	if !ok || matched != f2 {
		t.Fatalf("expected second match to hit F2 (higher priority), got %+v", matched)
	}
}

func TestAddFlowAlreadyExists(t *testing.T) {
	b := flowtable.NewBridge(hashfn.City64.Select())
	match := flowtable.MatchList{ipv4Dst(1, 0)}
	if _, err := b.AddFlow(0, 100, 1, 0, 0, match, flowtable.InstructionSet{}); err != nil {
		t.Fatalf("first AddFlow: %v", err)
	}
	_, err := b.AddFlow(0, 100, 1, 0, 0, match, flowtable.InstructionSet{})
	me, ok := err.(*flowtable.MutationError)
	if !ok || me.Kind != flowtable.MutationAlreadyExists {
		t.Fatalf("expected MutationAlreadyExists, got %v", err)
	}
}

func TestBadMatchDuplicateField(t *testing.T) {
	b := flowtable.NewBridge(hashfn.City64.Select())
	match := flowtable.MatchList{ipv4Dst(1, 0), ipv4Dst(2, 0)}
	_, err := b.AddFlow(0, 100, 1, 0, 0, match, flowtable.InstructionSet{})
	me, ok := err.(*flowtable.MutationError)
	if !ok || me.Kind != flowtable.MutationBadMatch {
		t.Fatalf("expected MutationBadMatch, got %v", err)
	}
}

type recordingNotifier struct {
	reasons []flowtable.RemovalReason
}

func (r *recordingNotifier) FlowRemoved(tableID uint8, e *flowtable.Entry, reason flowtable.RemovalReason) {
	r.reasons = append(r.reasons, reason)
}

func TestRemoveFlowNotifiesExplicit(t *testing.T) {
	b := flowtable.NewBridge(hashfn.City64.Select())
	n := &recordingNotifier{}
	b.SetRemovalNotifier(n)
	match := flowtable.MatchList{ipv4Dst(1, 0)}
	if _, err := b.AddFlow(0, 100, 1, 0, 0, match, flowtable.InstructionSet{}); err != nil {
		t.Fatalf("AddFlow: %v", err)
	}
	if err := b.RemoveFlow(0, 100, 1, match); err != nil {
		t.Fatalf("RemoveFlow: %v", err)
	}
	if len(n.reasons) != 1 || n.reasons[0] != flowtable.RemovalExplicit {
		t.Fatalf("expected one explicit removal notification, got %+v", n.reasons)
	}
}

func TestHardOverIdlePrecedence(t *testing.T) {
	e := flowtable.NewEntry(0, 100, 1, 1, 1, nil, flowtable.InstructionSet{})
	e.CreateTime = time.Now().Add(-2 * time.Second)
	e.Touch()
	// update_time is "now" (not expired for idle), but create_time is
	// 2s in the past with hard_timeout=1s, so hard must fire even
	// though idle alone would not have.
	reason, expired := e.Expiry(time.Now())
	if !expired || reason != flowtable.RemovalHardTimeout {
		t.Fatalf("expected hard-timeout precedence, got reason=%v expired=%v", reason, expired)
	}
	// 2s later both deadlines have passed; hard still takes precedence.
	reason, expired = e.Expiry(time.Now().Add(2 * time.Second))
	if !expired || reason != flowtable.RemovalHardTimeout {
		t.Fatalf("expected hard-timeout when both fire, got reason=%v expired=%v", reason, expired)
	}
}

func TestIdleTimeoutWithoutHard(t *testing.T) {
	e := flowtable.NewEntry(0, 100, 1, 1, 0, nil, flowtable.InstructionSet{})
	reason, expired := e.Expiry(time.Now().Add(2 * time.Second))
	if !expired || reason != flowtable.RemovalIdleTimeout {
		t.Fatalf("expected idle-timeout, got reason=%v expired=%v", reason, expired)
	}
}

func TestRebuildClearsStaleFlag(t *testing.T) {
	tbl := flowtable.NewTable(0, hashfn.City64.Select())
	if tbl.Stale() {
		t.Fatalf("empty table should not start stale")
	}
	b := flowtable.NewBridge(hashfn.City64.Select())
	if _, err := b.AddFlow(0, 100, 1, 0, 0, flowtable.MatchList{ipv4Dst(1, 0)}, flowtable.InstructionSet{}); err != nil {
		t.Fatalf("AddFlow: %v", err)
	}
	if !b.Table(0).Stale() {
		t.Fatalf("expected table to be marked stale after insert")
	}
	b.RebuildStaleIndexes()
	if b.Table(0).Stale() {
		t.Fatalf("expected RebuildStaleIndexes to clear the stale flag")
	}
}

func TestGroupSelectWeighted(t *testing.T) {
	g := flowtable.Group{ID: 1, Buckets: []flowtable.Bucket{
		{Weight: 1, Actions: flowtable.ActionList{{Kind: flowtable.ActionOutput, Port: 1}}},
		{Weight: 3, Actions: flowtable.ActionList{{Kind: flowtable.ActionOutput, Port: 2}}},
	}}
	counts := map[uint32]int{}
	for h := uint64(0); h < 400; h++ {
		b, ok := g.Select(h)
		if !ok {
			t.Fatalf("Select failed")
		}
		counts[b.Actions[0].Port]++
	}
	if counts[1] == 0 || counts[2] == 0 {
		t.Fatalf("expected both buckets to be selectable, got %+v", counts)
	}
	if counts[2] <= counts[1] {
		t.Fatalf("expected heavier bucket to win more often: %+v", counts)
	}
}

func TestGroupSelectEmpty(t *testing.T) {
	g := flowtable.Group{ID: 1}
	if _, ok := g.Select(42); ok {
		t.Fatalf("expected Select on empty group to fail")
	}
}
