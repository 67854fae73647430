// Package dataplane wires together role assignment, ring allocation,
// and the three lcore loop kinds (I/O-RX, worker, I/O-TX) that make up
// the packet forwarding pipeline (spec §4.2-§4.4).
package dataplane

import (
	"sort"

	"github.com/hcswitch/ofcore/internal/xerr"
)

// CoreAssignPolicy selects the automatic lcore-role split used when no
// explicit (port,queue,lcore) triples are supplied (spec §4.2).
type CoreAssignPolicy int

const (
	PolicyPerformance CoreAssignPolicy = iota
	PolicyBalance
	PolicyMinimum
)

// Parse maps a --core-assign CLI token to a CoreAssignPolicy.
func Parse(s string) (CoreAssignPolicy, bool) {
	switch s {
	case "performance", "":
		return PolicyPerformance, true
	case "balance":
		return PolicyBalance, true
	case "minimum":
		return PolicyMinimum, true
	default:
		return 0, false
	}
}

// LcoreInfo describes one enabled logical core as reported by the
// platform layer: its id and the physical core it shares with any HT
// sibling.
type LcoreInfo struct {
	ID            int
	PhysicalCore  int
	NUMASocket    int
}

// RXTriple is one explicit (port, queue, lcore) RX assignment; Queue
// may represent a range collapsed by the config layer to one entry per
// queue before reaching this package.
type RXTriple struct {
	Port  uint16
	Queue uint16
	Lcore int
}

// TXPair is one explicit (port, lcore) TX assignment.
type TXPair struct {
	Port  uint16
	Lcore int
}

// Limits bounds an explicit or auto-derived role assignment (spec
// §4.2: "limits are enforced").
type Limits struct {
	MaxIOLcores     int
	MaxWorkerLcores int
	MaxQueuesPerPort int
	MaxPortsPerIOLcore int
}

// DefaultLimits is conservative enough for a small switch. No CLI flag
// overrides it; a caller of AssignExplicit may pass other Limits.
var DefaultLimits = Limits{
	MaxIOLcores:        32,
	MaxWorkerLcores:    64,
	MaxQueuesPerPort:   16,
	MaxPortsPerIOLcore: 8,
}

// RoleAssignment is the resolved mapping from lcores to I/O/worker
// roles and the explicit RX/TX bindings that drive ring wiring.
type RoleAssignment struct {
	Master  int
	IO      []int
	Workers []int
	RX      []RXTriple
	TX      []TXPair
	// Combined marks the single-lcore case (spec §4.2: "When only one
	// lcore is available, it is tagged combined").
	Combined bool
}

// AssignExplicit honors operator-supplied RX/TX/worker lists verbatim,
// after the validation rules in spec §4.2.
func AssignExplicit(master int, rx []RXTriple, tx []TXPair, workers []int, limits Limits) (*RoleAssignment, error) {
	ioSet := make(map[int]bool)
	for _, t := range rx {
		ioSet[t.Lcore] = true
	}
	for _, t := range tx {
		ioSet[t.Lcore] = true
	}
	workerSet := make(map[int]bool, len(workers))
	for _, l := range workers {
		if ioSet[l] {
			return nil, xerr.InvalidArgs("dataplane.AssignExplicit: lcore already assigned as I/O", nil)
		}
		workerSet[l] = true
	}

	queueSeen := make(map[[2]uint16]bool)
	portsRX := make(map[uint16]bool)
	portsTX := make(map[uint16]bool)
	perIOLcorePorts := make(map[int]map[uint16]bool)
	for _, t := range rx {
		key := [2]uint16{t.Port, t.Queue}
		if queueSeen[key] {
			return nil, xerr.InvalidArgs("dataplane.AssignExplicit: queue bound twice on the same port", nil)
		}
		queueSeen[key] = true
		portsRX[t.Port] = true
		if perIOLcorePorts[t.Lcore] == nil {
			perIOLcorePorts[t.Lcore] = make(map[uint16]bool)
		}
		perIOLcorePorts[t.Lcore][t.Port] = true
	}
	for _, t := range tx {
		portsTX[t.Port] = true
		if perIOLcorePorts[t.Lcore] == nil {
			perIOLcorePorts[t.Lcore] = make(map[uint16]bool)
		}
		perIOLcorePorts[t.Lcore][t.Port] = true
	}
	for port := range portsRX {
		if !portsTX[port] {
			return nil, xerr.InvalidArgs("dataplane.AssignExplicit: RX port not bound to TX", nil)
		}
	}

	io := make([]int, 0, len(ioSet))
	for l := range ioSet {
		io = append(io, l)
	}
	sort.Ints(io)
	if len(io) > limits.MaxIOLcores {
		return nil, xerr.OutOfRange("dataplane.AssignExplicit: too many I/O lcores")
	}
	if len(workers) > limits.MaxWorkerLcores {
		return nil, xerr.OutOfRange("dataplane.AssignExplicit: too many worker lcores")
	}
	for _, ports := range perIOLcorePorts {
		if len(ports) > limits.MaxPortsPerIOLcore {
			return nil, xerr.OutOfRange("dataplane.AssignExplicit: too many ports on one I/O lcore")
		}
	}
	queuesPerPort := make(map[uint16]int)
	for _, t := range rx {
		queuesPerPort[t.Port]++
	}
	for _, n := range queuesPerPort {
		if n > limits.MaxQueuesPerPort {
			return nil, xerr.OutOfRange("dataplane.AssignExplicit: too many queues on one port")
		}
	}

	return &RoleAssignment{Master: master, IO: io, Workers: append([]int(nil), workers...), RX: append([]RXTriple(nil), rx...), TX: append([]TXPair(nil), tx...)}, nil
}

// AssignAuto derives I/O/worker roles from the enabled lcore set and
// policy when no explicit assignment is supplied (spec §4.2).
func AssignAuto(master int, lcores []LcoreInfo, policy CoreAssignPolicy) (*RoleAssignment, error) {
	enabled := make([]LcoreInfo, 0, len(lcores))
	for _, l := range lcores {
		if l.ID != master {
			enabled = append(enabled, l)
		}
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].ID < enabled[j].ID })

	if len(enabled) == 1 {
		only := enabled[0].ID
		return &RoleAssignment{Master: master, IO: []int{only}, Workers: []int{only}, Combined: true}, nil
	}

	if policy == PolicyMinimum {
		if len(enabled) == 0 {
			return nil, xerr.InvalidArgs("dataplane.AssignAuto: no lcores available", nil)
		}
		only := enabled[0].ID
		return &RoleAssignment{Master: master, IO: []int{only}, Workers: []int{only}, Combined: true}, nil
	}

	selected := enabled
	if policy == PolicyPerformance {
		selected = selected[:0]
		seenPhysical := make(map[int]bool)
		for _, l := range enabled {
			if seenPhysical[l.PhysicalCore] {
				continue
			}
			seenPhysical[l.PhysicalCore] = true
			selected = append(selected, l)
		}
	}

	half := len(selected) / 2
	io := make([]int, 0, half)
	workers := make([]int, 0, len(selected)-half)
	for i, l := range selected {
		if i < half {
			io = append(io, l.ID)
		} else {
			workers = append(workers, l.ID)
		}
	}
	return &RoleAssignment{Master: master, IO: io, Workers: workers}, nil
}
