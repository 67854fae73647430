package portmon_test

import (
	"sync"
	"testing"
	"time"

	"github.com/hcswitch/ofcore/internal/portmon"
)

type fakeProber struct {
	mu     sync.Mutex
	states map[uint32]portmon.LinkState
}

func newFakeProber() *fakeProber {
	return &fakeProber{states: make(map[uint32]portmon.LinkState)}
}

func (f *fakeProber) Probe(port uint32) portmon.LinkState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[port]
}

func (f *fakeProber) set(port uint32, s portmon.LinkState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[port] = s
}

func TestWatchReportsInitialState(t *testing.T) {
	prober := newFakeProber()
	m := portmon.NewMonitor(prober, time.Hour, 16)
	m.Watch(1, portmon.StateDown)
	got, ok := m.State(1)
	if !ok || got != portmon.StateDown {
		t.Fatalf("expected StateDown, got %v ok=%v", got, ok)
	}
}

func TestUnwatchedPortReportsNotOK(t *testing.T) {
	prober := newFakeProber()
	m := portmon.NewMonitor(prober, time.Hour, 16)
	if _, ok := m.State(99); ok {
		t.Fatalf("expected unwatched port to report not-ok")
	}
}

func TestPollDetectsStateChangeAndEnqueuesEvent(t *testing.T) {
	prober := newFakeProber()
	prober.set(1, portmon.StateDown)
	m := portmon.NewMonitor(prober, time.Millisecond, 16)
	m.Watch(1, portmon.StateDown)

	go m.Run()
	defer m.Stop()

	prober.set(1, portmon.StateUp)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		ev, err := m.Next()
		if err == nil {
			if ev.Port != 1 || ev.State != portmon.StateUp {
				t.Fatalf("unexpected event: %+v", ev)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected a state-change event within deadline")
}

func TestLastChangeUpdatesOnTransition(t *testing.T) {
	prober := newFakeProber()
	prober.set(1, portmon.StateDown)
	m := portmon.NewMonitor(prober, time.Millisecond, 16)
	m.Watch(1, portmon.StateDown)
	before, _ := m.LastChange(1)

	go m.Run()
	defer m.Stop()

	time.Sleep(5 * time.Millisecond)
	prober.set(1, portmon.StateUp)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		after, _ := m.LastChange(1)
		if after.After(before) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected LastChange to advance after a transition")
}

func TestListenerInvokesNotifyForEachEvent(t *testing.T) {
	prober := newFakeProber()
	prober.set(1, portmon.StateDown)
	m := portmon.NewMonitor(prober, time.Millisecond, 16)
	m.Watch(1, portmon.StateDown)

	var mu sync.Mutex
	var seen []portmon.LinkState
	stop := make(chan struct{})
	go portmon.Listener(m, func(ev portmon.Event) {
		mu.Lock()
		seen = append(seen, ev.State)
		mu.Unlock()
	}, stop)

	go m.Run()
	defer m.Stop()
	defer close(stop)

	prober.set(1, portmon.StateUp)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected listener to observe at least one event")
}

func TestLinkStateString(t *testing.T) {
	cases := map[portmon.LinkState]string{
		portmon.StateUp:             "up",
		portmon.StateDown:           "down",
		portmon.StateTesting:        "testing",
		portmon.StateDormant:        "dormant",
		portmon.StateNotPresent:     "not-present",
		portmon.StateLowerLayerDown: "lower-layer-down",
		portmon.StateUnknown:        "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
