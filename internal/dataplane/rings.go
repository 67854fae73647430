package dataplane

import (
	"github.com/hcswitch/ofcore/internal/pktbuf"
	"github.com/hcswitch/ofcore/internal/ring"
	"github.com/hcswitch/ofcore/internal/xerr"
)

// BurstArrayCapacity bounds every burst-size parameter (spec §4.3:
// "All burst sizes must not exceed a per-buffer-array capacity").
const BurstArrayCapacity = 1024

// Default ring and burst sizes (spec §4.3).
const (
	DefaultNICRXRingSize  = 1024
	DefaultNICTXRingSize  = 1024
	DefaultWorkerInSize   = 1024
	DefaultWorkerOutSize  = 1024
	DefaultBurstSize      = 144
)

// RingSizes holds the four operator-overridable ring-size parameters
// (A,B,C,D) = NIC-RX, worker-in, worker-out, NIC-TX.
type RingSizes struct {
	NICRX    int
	WorkerIn int
	WorkerOut int
	NICTX    int
}

// DefaultRingSizes returns the default (A,B,C,D) ring sizes.
func DefaultRingSizes() RingSizes {
	return RingSizes{NICRX: DefaultNICRXRingSize, WorkerIn: DefaultWorkerInSize, WorkerOut: DefaultWorkerOutSize, NICTX: DefaultNICTXRingSize}
}

// BurstSizes holds the six operator-overridable burst-size parameters
// (A,B),(C,D),(E,F): NIC-RX read/write, worker read/write,
// I/O-TX read/write.
type BurstSizes struct {
	NICRXRead, NICRXWrite   int
	WorkerRead, WorkerWrite int
	IOTXRead, IOTXWrite     int
}

// DefaultBurstSizes returns the default six burst sizes.
func DefaultBurstSizes() BurstSizes {
	return BurstSizes{
		NICRXRead: DefaultBurstSize, NICRXWrite: DefaultBurstSize,
		WorkerRead: DefaultBurstSize, WorkerWrite: DefaultBurstSize,
		IOTXRead: DefaultBurstSize, IOTXWrite: DefaultBurstSize,
	}
}

// Validate rejects burst sizes exceeding BurstArrayCapacity and
// violating the "2*io_tx_read_burst <= capacity" relation (spec §8
// property 8); IOTXLoop.RunOnce also does nothing when its Burst breaks
// that relation.
func (b BurstSizes) Validate() error {
	vals := []int{b.NICRXRead, b.NICRXWrite, b.WorkerRead, b.WorkerWrite, b.IOTXRead, b.IOTXWrite}
	for _, v := range vals {
		if v <= 0 || v > BurstArrayCapacity {
			return xerr.OutOfRange("dataplane.BurstSizes.Validate")
		}
	}
	if 2*b.IOTXRead > BurstArrayCapacity {
		return xerr.OutOfRange("dataplane.BurstSizes.Validate: 2*io_tx_read_burst exceeds capacity")
	}
	return nil
}

// Rings is the complete set of SPSC rings wired for one RoleAssignment:
// one worker-input ring per (I/O-RX lcore, worker) pair, one
// worker-output ring per (worker, TX port) pair (spec §4.3).
type Rings struct {
	WorkerInput  map[[2]int]*ring.SPSC[pktbuf.Handle]    // (ioLcore, worker) -> ring
	WorkerOutput map[[2]int]*ring.SPSC[pktbuf.Handle]    // (worker, txPort) -> ring
}

// Wire allocates the worker-input and worker-output rings implied by
// assignment, using sizes for capacities.
func Wire(assignment *RoleAssignment, sizes RingSizes) *Rings {
	r := &Rings{
		WorkerInput:  make(map[[2]int]*ring.SPSC[pktbuf.Handle]),
		WorkerOutput: make(map[[2]int]*ring.SPSC[pktbuf.Handle]),
	}
	for _, io := range assignment.IO {
		for _, w := range assignment.Workers {
			r.WorkerInput[[2]int{io, w}] = ring.NewSPSC[pktbuf.Handle](sizes.WorkerIn)
		}
	}
	txPorts := make(map[uint16]bool)
	for _, t := range assignment.TX {
		txPorts[t.Port] = true
	}
	for _, w := range assignment.Workers {
		for port := range txPorts {
			r.WorkerOutput[[2]int{w, int(port)}] = ring.NewSPSC[pktbuf.Handle](sizes.WorkerOut)
		}
	}
	return r
}
