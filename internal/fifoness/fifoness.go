// Package fifoness resolves the worker a packet is routed to by the
// I/O-RX loop (spec §4.4 step 1, "FIFO-ness guarantee"): the policy
// determines which packets must land on the same worker to preserve
// relative order.
package fifoness

import (
	"sync/atomic"

	"github.com/hcswitch/ofcore/internal/flowtable"
	"github.com/hcswitch/ofcore/internal/hashfn"
)

// Policy selects how the worker index is derived from a packet (spec
// §4.4: "none: round-robin or hash; port: hash by ingress port only;
// flow: hash by the standard 5-tuple or available subset — default").
type Policy int

const (
	PolicyNone Policy = iota
	PolicyPort
	PolicyFlow
)

// Parse maps a --fifoness CLI token to a Policy.
func Parse(s string) (Policy, bool) {
	switch s {
	case "none":
		return PolicyNone, true
	case "port":
		return PolicyPort, true
	case "flow", "":
		return PolicyFlow, true
	default:
		return 0, false
	}
}

func (p Policy) String() string {
	switch p {
	case PolicyNone:
		return "none"
	case PolicyPort:
		return "port"
	case PolicyFlow:
		return "flow"
	default:
		return "unknown"
	}
}

// Selector picks a worker index for a packet under a fixed Policy and
// hash family. None mode round-robins via an internal counter rather
// than hashing, since it makes no ordering promise to begin with.
type Selector struct {
	policy Policy
	hash   hashfn.Func
	rr     atomic.Uint64
}

// NewSelector constructs a Selector for policy using fn as the hash
// family (spec §4.6/§9: hash family is frozen once selected at startup).
func NewSelector(policy Policy, fn hashfn.Func) *Selector {
	return &Selector{policy: policy, hash: fn}
}

// WorkerIndex returns the worker index in [0, numWorkers) for pk,
// according to the Selector's policy. numWorkers must be > 0.
func (s *Selector) WorkerIndex(pk flowtable.PacketKey, numWorkers int) int {
	if numWorkers <= 0 {
		return 0
	}
	switch s.policy {
	case PolicyPort:
		var buf [4]byte
		buf[0] = byte(pk.InPort >> 24)
		buf[1] = byte(pk.InPort >> 16)
		buf[2] = byte(pk.InPort >> 8)
		buf[3] = byte(pk.InPort)
		return int(s.hash(buf[:]) % uint64(numWorkers))
	case PolicyFlow:
		var scratch [19]byte
		key := pk.FiveTuple(scratch[:0])
		return int(s.hash(key) % uint64(numWorkers))
	default:
		next := s.rr.Add(1) - 1
		return int(next % uint64(numWorkers))
	}
}
