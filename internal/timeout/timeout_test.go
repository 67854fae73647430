package timeout_test

import (
	"testing"
	"time"

	"github.com/hcswitch/ofcore/internal/flowtable"
	"github.com/hcswitch/ofcore/internal/hashfn"
	"github.com/hcswitch/ofcore/internal/timeout"
)

func ipv4Dst(v uint32) flowtable.Field {
	return flowtable.Field{Kind: flowtable.FieldIPv4Dst, Value: uint64(v)}
}

func TestAddFlowTimerNoTimeoutIsNoop(t *testing.T) {
	b := flowtable.NewBridge(hashfn.City64.Select())
	w := timeout.NewWheel(b)
	e, err := b.AddFlow(0, 100, 1, 0, 0, flowtable.MatchList{ipv4Dst(1)}, flowtable.InstructionSet{})
	if err != nil {
		t.Fatalf("AddFlow: %v", err)
	}
	w.AddFlowTimer(0, e)
	if slotID, _ := e.TimerRef(); slotID != flowtable.SentinelTimerPosition {
		t.Fatalf("expected entry with no timeout to remain unscheduled")
	}
}

func TestFlowTimerExpiresAndRemoves(t *testing.T) {
	b := flowtable.NewBridge(hashfn.City64.Select())
	var removed []flowtable.RemovalReason
	w := timeout.NewWheel(b)
	b.SetRemovalNotifier(w)
	w.SetNext(recorderNotifier(func(id uint8, e *flowtable.Entry, r flowtable.RemovalReason) {
		removed = append(removed, r)
	}))

	e, err := b.AddFlow(0, 100, 1, 1, 0, flowtable.MatchList{ipv4Dst(1)}, flowtable.InstructionSet{})
	if err != nil {
		t.Fatalf("AddFlow: %v", err)
	}
	// The idle deadline is UpdateTime+1s, so the wheel must run past it.
	w.AddFlowTimer(0, e)

	if slotID, _ := e.TimerRef(); slotID == flowtable.SentinelTimerPosition {
		t.Fatalf("expected entry to be scheduled")
	}

	go func() {
		time.Sleep(1500 * time.Millisecond)
		w.Stop()
	}()
	w.Run(time.Hour)

	if len(removed) != 1 || removed[0] != flowtable.RemovalIdleTimeout {
		t.Fatalf("expected one idle-timeout removal, got %+v", removed)
	}
	if b.Table(0).Len() != 0 {
		t.Fatalf("expected flow removed from table")
	}
}

func TestExplicitRemoveClearsTimerSlot(t *testing.T) {
	b := flowtable.NewBridge(hashfn.City64.Select())
	w := timeout.NewWheel(b)
	b.SetRemovalNotifier(w)

	e, err := b.AddFlow(0, 100, 1, 30, 0, flowtable.MatchList{ipv4Dst(1)}, flowtable.InstructionSet{})
	if err != nil {
		t.Fatalf("AddFlow: %v", err)
	}
	w.AddFlowTimer(0, e)
	if slotID, _ := e.TimerRef(); slotID == flowtable.SentinelTimerPosition {
		t.Fatalf("expected entry to be scheduled")
	}

	if err := b.RemoveFlow(0, 100, 1, flowtable.MatchList{ipv4Dst(1)}); err != nil {
		t.Fatalf("RemoveFlow: %v", err)
	}
	if slotID, _ := e.TimerRef(); slotID != flowtable.SentinelTimerPosition {
		t.Fatalf("expected timer ref cleared after explicit removal")
	}
}

type recorderNotifier func(tableID uint8, e *flowtable.Entry, reason flowtable.RemovalReason)

func (f recorderNotifier) FlowRemoved(tableID uint8, e *flowtable.Entry, reason flowtable.RemovalReason) {
	f(tableID, e, reason)
}
