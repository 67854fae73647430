package dataplane_test

import (
	"testing"

	"github.com/hcswitch/ofcore/internal/dataplane"
)

func TestAssignAutoPerformanceScenarioS1(t *testing.T) {
	lcores := []dataplane.LcoreInfo{
		{ID: 0, PhysicalCore: 0, NUMASocket: 0},
		{ID: 1, PhysicalCore: 1, NUMASocket: 0},
		{ID: 2, PhysicalCore: 2, NUMASocket: 0},
		{ID: 3, PhysicalCore: 3, NUMASocket: 0},
		{ID: 4, PhysicalCore: 4, NUMASocket: 0},
	}
	a, err := dataplane.AssignAuto(0, lcores, dataplane.PolicyPerformance)
	if err != nil {
		t.Fatalf("AssignAuto: %v", err)
	}
	if len(a.IO) != 2 || a.IO[0] != 1 || a.IO[1] != 2 {
		t.Fatalf("expected I/O lcores [1 2], got %v", a.IO)
	}
	if len(a.Workers) != 2 || a.Workers[0] != 3 || a.Workers[1] != 4 {
		t.Fatalf("expected worker lcores [3 4], got %v", a.Workers)
	}
}

func TestAssignExplicitScenarioS2(t *testing.T) {
	rx := []dataplane.RXTriple{{Port: 0, Queue: 0, Lcore: 1}}
	tx := []dataplane.TXPair{{Port: 0, Lcore: 2}}
	a, err := dataplane.AssignExplicit(0, rx, tx, []int{3}, dataplane.DefaultLimits)
	if err != nil {
		t.Fatalf("AssignExplicit: %v", err)
	}
	if len(a.Workers) != 1 || a.Workers[0] != 3 {
		t.Fatalf("expected worker [3], got %v", a.Workers)
	}
	if len(a.IO) != 2 {
		t.Fatalf("expected 2 I/O lcores, got %v", a.IO)
	}
}

func TestAssignExplicitConflictScenarioS3(t *testing.T) {
	rx := []dataplane.RXTriple{{Port: 0, Queue: 0, Lcore: 1}}
	_, err := dataplane.AssignExplicit(0, rx, nil, []int{1}, dataplane.DefaultLimits)
	if err == nil {
		t.Fatalf("expected conflict error for lcore assigned to both I/O and worker")
	}
}

func TestAssignExplicitRXWithoutTXIsRejected(t *testing.T) {
	rx := []dataplane.RXTriple{{Port: 0, Queue: 0, Lcore: 1}}
	_, err := dataplane.AssignExplicit(0, rx, nil, []int{2}, dataplane.DefaultLimits)
	if err == nil {
		t.Fatalf("expected error for RX port not bound to TX")
	}
}

func TestAssignExplicitDuplicateQueueRejected(t *testing.T) {
	rx := []dataplane.RXTriple{{Port: 0, Queue: 0, Lcore: 1}, {Port: 0, Queue: 0, Lcore: 2}}
	tx := []dataplane.TXPair{{Port: 0, Lcore: 3}}
	_, err := dataplane.AssignExplicit(0, rx, tx, nil, dataplane.DefaultLimits)
	if err == nil {
		t.Fatalf("expected error for duplicate queue on same port")
	}
}

func TestAssignAutoSingleLcoreIsCombined(t *testing.T) {
	lcores := []dataplane.LcoreInfo{{ID: 0}, {ID: 1}}
	a, err := dataplane.AssignAuto(0, lcores, dataplane.PolicyPerformance)
	if err != nil {
		t.Fatalf("AssignAuto: %v", err)
	}
	if !a.Combined || len(a.IO) != 1 || len(a.Workers) != 1 || a.IO[0] != a.Workers[0] {
		t.Fatalf("expected single combined lcore, got %+v", a)
	}
}

func TestAssignAutoMinimumPolicy(t *testing.T) {
	lcores := []dataplane.LcoreInfo{{ID: 0}, {ID: 1}, {ID: 2}, {ID: 3}}
	a, err := dataplane.AssignAuto(0, lcores, dataplane.PolicyMinimum)
	if err != nil {
		t.Fatalf("AssignAuto: %v", err)
	}
	if !a.Combined || len(a.IO) != 1 || len(a.Workers) != 1 {
		t.Fatalf("expected exactly one combined lcore under minimum policy, got %+v", a)
	}
}

func TestBurstSizesOutOfRangeScenarioS4(t *testing.T) {
	sizes := dataplane.BurstSizes{NICRXRead: 2048, NICRXWrite: 16, WorkerRead: 16, WorkerWrite: 16, IOTXRead: 16, IOTXWrite: 16}
	if err := sizes.Validate(); err == nil {
		t.Fatalf("expected out-of-range error for burst size exceeding capacity")
	}
}

func TestBurstSizesTXReadDoublingConstraint(t *testing.T) {
	sizes := dataplane.DefaultBurstSizes()
	sizes.IOTXRead = 600
	if err := sizes.Validate(); err == nil {
		t.Fatalf("expected error: 2*io_tx_read_burst exceeds capacity")
	}
}

func TestDefaultBurstSizesValidate(t *testing.T) {
	if err := dataplane.DefaultBurstSizes().Validate(); err != nil {
		t.Fatalf("expected default burst sizes to validate, got %v", err)
	}
}
