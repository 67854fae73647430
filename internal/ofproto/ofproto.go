// Package ofproto is the external-facing API surface (spec §6): flow
// mutation delegated straight to internal/flowtable.Bridge, read-only
// port statistics, bridge enumeration, and port-status notification
// registration fed by internal/portmon. Grounded on the read-only stats
// surface original_source's dataplane_apis.h exposes to snmpmgr.c,
// reframed here as the one seam an external controller or CLI talks
// through instead of touching the dataplane packages directly.
package ofproto

import (
	"sync"

	"github.com/hcswitch/ofcore/internal/dataplane"
	"github.com/hcswitch/ofcore/internal/flowtable"
	"github.com/hcswitch/ofcore/internal/portmon"
	"github.com/hcswitch/ofcore/internal/xerr"
)

// PortStats is a point-in-time snapshot of one port's counters.
type PortStats struct {
	RXPackets uint64
	RXDropped uint64
	TXPackets uint64
	TXDropped uint64
}

// Snapshot reads c's current values without resetting them.
func Snapshot(c *dataplane.Counters) PortStats {
	return PortStats{
		RXPackets: c.RXPackets.Load(),
		RXDropped: c.RXDropped.Load(),
		TXPackets: c.TXPackets.Load(),
		TXDropped: c.TXDropped.Load(),
	}
}

// Bridge is the named OpenFlow bridge an Agent fronts: the mutable
// flow-table state plus the per-port counters contributed by the
// dataplane lcores serving it.
type Bridge struct {
	Name   string
	Tables *flowtable.Bridge

	mu    sync.RWMutex
	ports map[uint32]*dataplane.Counters
}

// NewBridge constructs a named Bridge around an existing flow-table
// bridge.
func NewBridge(name string, tables *flowtable.Bridge) *Bridge {
	return &Bridge{Name: name, Tables: tables, ports: make(map[uint32]*dataplane.Counters)}
}

// RegisterPort associates port with the Counters its I/O lcores
// update, making it visible to PortStats.
func (b *Bridge) RegisterPort(port uint32, counters *dataplane.Counters) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ports[port] = counters
}

// PortStats returns a snapshot of port's counters.
func (b *Bridge) PortStats(port uint32) (PortStats, error) {
	b.mu.RLock()
	c, ok := b.ports[port]
	b.mu.RUnlock()
	if !ok {
		return PortStats{}, xerr.NotFound("ofproto.Bridge.PortStats")
	}
	return Snapshot(c), nil
}

// Ports returns the port numbers registered on this bridge.
func (b *Bridge) Ports() []uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]uint32, 0, len(b.ports))
	for p := range b.ports {
		out = append(out, p)
	}
	return out
}

// Agent is the process-wide registry of named bridges and the single
// entry point through which an external controller or CLI reaches the
// dataplane (spec §6).
type Agent struct {
	mu      sync.RWMutex
	bridges map[string]*Bridge
}

// NewAgent constructs an empty Agent.
func NewAgent() *Agent {
	return &Agent{bridges: make(map[string]*Bridge)}
}

// AddBridge registers a named bridge; name must be unique.
func (a *Agent) AddBridge(b *Bridge) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.bridges[b.Name]; exists {
		return xerr.AlreadyExists("ofproto.Agent.AddBridge")
	}
	a.bridges[b.Name] = b
	return nil
}

// Bridge returns the named bridge, or an error if it was never added.
func (a *Agent) Bridge(name string) (*Bridge, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.bridges[name]
	if !ok {
		return nil, xerr.NotFound("ofproto.Agent.Bridge")
	}
	return b, nil
}

// Bridges lists every registered bridge name.
func (a *Agent) Bridges() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.bridges))
	for name := range a.bridges {
		out = append(out, name)
	}
	return out
}

// AddFlow delegates to the named bridge's flow table.
func (a *Agent) AddFlow(bridgeName string, tableID uint8, priority uint16, cookie uint64, idle, hard uint32, match flowtable.MatchList, instr flowtable.InstructionSet) (*flowtable.Entry, error) {
	b, err := a.Bridge(bridgeName)
	if err != nil {
		return nil, err
	}
	return b.Tables.AddFlow(tableID, priority, cookie, idle, hard, match, instr)
}

// ModifyFlow delegates to the named bridge's flow table.
func (a *Agent) ModifyFlow(bridgeName string, tableID uint8, priority uint16, cookie uint64, match flowtable.MatchList, instr flowtable.InstructionSet) error {
	b, err := a.Bridge(bridgeName)
	if err != nil {
		return err
	}
	return b.Tables.ModifyFlow(tableID, priority, cookie, match, instr)
}

// RemoveFlow delegates to the named bridge's flow table.
func (a *Agent) RemoveFlow(bridgeName string, tableID uint8, priority uint16, cookie uint64, match flowtable.MatchList) error {
	b, err := a.Bridge(bridgeName)
	if err != nil {
		return err
	}
	return b.Tables.RemoveFlow(tableID, priority, cookie, match)
}

// PortStatusNotifier implements flowtable.RemovalNotifier and
// portmon's notify callback shape, forwarding both flow-removal and
// port-status events to a single registered subscriber (spec §6:
// "Port-status notification registration").
type PortStatusNotifier struct {
	mu            sync.Mutex
	onFlowRemoved func(tableID uint8, e *flowtable.Entry, reason flowtable.RemovalReason)
	onPortStatus  func(portmon.Event)
}

// NewPortStatusNotifier constructs an empty notifier; both callbacks
// default to no-ops until set.
func NewPortStatusNotifier() *PortStatusNotifier {
	return &PortStatusNotifier{}
}

// OnFlowRemoved registers the callback invoked for flow removals.
func (n *PortStatusNotifier) OnFlowRemoved(f func(tableID uint8, e *flowtable.Entry, reason flowtable.RemovalReason)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onFlowRemoved = f
}

// OnPortStatus registers the callback invoked for port-status events.
func (n *PortStatusNotifier) OnPortStatus(f func(portmon.Event)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onPortStatus = f
}

// FlowRemoved implements flowtable.RemovalNotifier.
func (n *PortStatusNotifier) FlowRemoved(tableID uint8, e *flowtable.Entry, reason flowtable.RemovalReason) {
	n.mu.Lock()
	f := n.onFlowRemoved
	n.mu.Unlock()
	if f != nil {
		f(tableID, e, reason)
	}
}

// NotifyPortStatus dispatches ev to the registered port-status
// callback; intended as the notify argument to portmon.Listener.
func (n *PortStatusNotifier) NotifyPortStatus(ev portmon.Event) {
	n.mu.Lock()
	f := n.onPortStatus
	n.mu.Unlock()
	if f != nil {
		f(ev)
	}
}
