// Package portmon implements periodic port link/oper-state polling and
// change notification, grounded on the port/bridge status surface an
// external SNMP-style collaborator would read. One Run goroutine polls
// every watched port and enqueues status-change events on an MPSC ring
// (internal/ring) read by a single consumer.
package portmon

import (
	"sync"
	"time"

	"github.com/hcswitch/ofcore/internal/ring"
)

// LinkState is the OpenFlow 1.3 port state set (spec §4.8).
type LinkState int

const (
	StateUnknown LinkState = iota
	StateUp
	StateDown
	StateTesting
	StateDormant
	StateNotPresent
	StateLowerLayerDown
)

func (s LinkState) String() string {
	switch s {
	case StateUp:
		return "up"
	case StateDown:
		return "down"
	case StateTesting:
		return "testing"
	case StateDormant:
		return "dormant"
	case StateNotPresent:
		return "not-present"
	case StateLowerLayerDown:
		return "lower-layer-down"
	default:
		return "unknown"
	}
}

// Event is one port status-change notification.
type Event struct {
	Port       uint32
	State      LinkState
	LastChange time.Time
}

// Prober reads a single port's current link state; satisfied by the
// driver layer (out of scope here, per spec Non-goals on NIC drivers).
type Prober interface {
	Probe(port uint32) LinkState
}

// portRecord tracks one monitored port's last-observed state.
type portRecord struct {
	mu         sync.Mutex
	state      LinkState
	lastChange time.Time
}

// Monitor polls a set of ports on an interval and fans state-change
// events through an MPSC ring to a single consumer (spec §4.8: periodic
// poll, notify on change).
type Monitor struct {
	prober   Prober
	interval time.Duration
	queue    *ring.MPSC[Event]

	mu     sync.Mutex
	ports  map[uint32]*portRecord
	stop   chan struct{}
	closed bool
}

// NewMonitor constructs a Monitor polling via prober every interval,
// with a bounded event queue of the given capacity.
func NewMonitor(prober Prober, interval time.Duration, queueCapacity int) *Monitor {
	return &Monitor{
		prober:   prober,
		interval: interval,
		queue:    ring.NewMPSC[Event](queueCapacity),
		ports:    make(map[uint32]*portRecord),
		stop:     make(chan struct{}),
	}
}

// Watch registers port for polling with an initial state.
func (m *Monitor) Watch(port uint32, initial LinkState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ports[port] = &portRecord{state: initial, lastChange: time.Now()}
}

// LastChange reports when port's state last transitioned, and whether
// port is watched at all.
func (m *Monitor) LastChange(port uint32) (time.Time, bool) {
	m.mu.Lock()
	rec, ok := m.ports[port]
	m.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.lastChange, true
}

// State reports port's last-observed state, and whether port is
// watched at all.
func (m *Monitor) State(port uint32) (LinkState, bool) {
	m.mu.Lock()
	rec, ok := m.ports[port]
	m.mu.Unlock()
	if !ok {
		return StateUnknown, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state, true
}

// pollOnce probes every watched port once, enqueuing an Event for each
// one whose state changed since the last poll.
func (m *Monitor) pollOnce() {
	m.mu.Lock()
	ports := make([]uint32, 0, len(m.ports))
	for p := range m.ports {
		ports = append(ports, p)
	}
	m.mu.Unlock()

	for _, port := range ports {
		observed := m.prober.Probe(port)

		m.mu.Lock()
		rec, ok := m.ports[port]
		m.mu.Unlock()
		if !ok {
			continue
		}

		rec.mu.Lock()
		changed := rec.state != observed
		if changed {
			rec.state = observed
			rec.lastChange = time.Now()
		}
		lastChange := rec.lastChange
		rec.mu.Unlock()

		if changed {
			ev := Event{Port: port, State: observed, LastChange: lastChange}
			_ = m.queue.Enqueue(&ev)
		}
	}
}

// Run polls at Monitor's configured interval until Stop is called.
func (m *Monitor) Run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.pollOnce()
		}
	}
}

// Stop requests the Run loop to exit; further calls are no-ops. It also
// calls Drain on the event queue, which records that no more events will
// be enqueued; a consumer still reading via Next empties whatever is
// left exactly as before.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.stop)
	m.queue.Drain()
}

// Next drains one pending status-change event, or returns the ring's
// would-block error if none is pending.
func (m *Monitor) Next() (Event, error) {
	return m.queue.Dequeue()
}

// Listener consumes status-change events delivered from a Monitor's
// queue until Stop, invoking notify for each one.
func Listener(m *Monitor, notify func(Event), stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		ev, err := m.Next()
		if err != nil {
			time.Sleep(time.Millisecond)
			continue
		}
		notify(ev)
	}
}
