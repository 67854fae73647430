package lifecycle_test

import (
	"testing"
	"time"

	"github.com/hcswitch/ofcore/internal/lifecycle"
)

func TestGateWaitForReturnsImmediatelyWhenAlreadyPast(t *testing.T) {
	g := lifecycle.NewGate()
	g.Set(lifecycle.StateStarted)
	done := make(chan lifecycle.GState, 1)
	go func() { done <- g.WaitFor(lifecycle.StateInitialized) }()
	select {
	case got := <-done:
		if got != lifecycle.StateStarted {
			t.Fatalf("expected observed state StateStarted, got %v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("WaitFor blocked despite state already past target")
	}
}

func TestGateWaitForBlocksUntilSet(t *testing.T) {
	g := lifecycle.NewGate()
	done := make(chan lifecycle.GState, 1)
	go func() { done <- g.WaitFor(lifecycle.StateStarted) }()
	select {
	case <-done:
		t.Fatalf("WaitFor returned before state reached target")
	case <-time.After(50 * time.Millisecond):
	}
	g.Set(lifecycle.StateStarted)
	select {
	case got := <-done:
		if got != lifecycle.StateStarted {
			t.Fatalf("expected StateStarted, got %v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("WaitFor did not unblock after Set")
	}
}

func TestRequestShutdownCarriesGraceLevel(t *testing.T) {
	g := lifecycle.NewGate()
	done := make(chan lifecycle.GraceLevel, 1)
	go func() { done <- g.WaitForShutdownRequest() }()
	time.Sleep(20 * time.Millisecond)
	g.RequestShutdown(lifecycle.GraceGracefully)
	select {
	case got := <-done:
		if got != lifecycle.GraceGracefully {
			t.Fatalf("expected GraceGracefully, got %v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("WaitForShutdownRequest did not unblock")
	}
}

func TestIsShutdownAndIsKindaShutdown(t *testing.T) {
	cases := []struct {
		state     lifecycle.GState
		kindaShut bool
		shut      bool
	}{
		{lifecycle.StateStarted, false, false},
		{lifecycle.StateRequestShutdown, true, false},
		{lifecycle.StateAcceptShutdown, true, true},
		{lifecycle.StateShuttingDown, true, true},
		{lifecycle.StateFinalized, true, true},
	}
	for _, c := range cases {
		if c.state.IsKindaShutdown() != c.kindaShut {
			t.Fatalf("%v: IsKindaShutdown() = %v, want %v", c.state, c.state.IsKindaShutdown(), c.kindaShut)
		}
		if c.state.IsShutdown() != c.shut {
			t.Fatalf("%v: IsShutdown() = %v, want %v", c.state, c.state.IsShutdown(), c.shut)
		}
	}
}
