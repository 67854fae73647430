package dataplane

import (
	"sync/atomic"

	"code.hybscloud.com/spin"

	"github.com/hcswitch/ofcore/internal/fifoness"
	"github.com/hcswitch/ofcore/internal/flowcache"
	"github.com/hcswitch/ofcore/internal/flowtable"
	"github.com/hcswitch/ofcore/internal/pipeline"
	"github.com/hcswitch/ofcore/internal/pktbuf"
	"github.com/hcswitch/ofcore/internal/ring"
)

// Counters are the relaxed-atomic per-lcore port statistics: enough
// for concurrent readers without forcing a memory fence per packet.
type Counters struct {
	RXPackets  atomic.Uint64
	RXDropped  atomic.Uint64
	TXPackets  atomic.Uint64
	TXDropped  atomic.Uint64
}

// Port is the thin frame-source/sink interface the I/O lcores drive;
// the real NIC PMD or raw-socket driver lives outside this module
// (spec §1 "Explicitly out of scope").
type Port interface {
	// RXBurst reads up to len(handles) frames into buffers allocated
	// from pool, returning the count actually read.
	RXBurst(queue uint16, pool *pktbuf.Pool, socket int, handles []pktbuf.Handle, buffers []*pktbuf.Buffer) int
	// TXBurst writes up to len(buffers) frames and returns the count
	// transmitted.
	TXBurst(buffers []*pktbuf.Buffer) int
}

// StopSignal is the atomic stop flag every hot-path loop polls once
// per iteration (spec §5: "A stop request becomes visible on the next
// iteration via an atomic stop flag").
type StopSignal struct {
	stop atomic.Bool
}

func (s *StopSignal) Request()      { s.stop.Store(true) }
func (s *StopSignal) Requested() bool { return s.stop.Load() }

// IORXLoop runs one I/O-RX lcore: pull bursts from its assigned
// (port, queue) sources, compute each packet's worker index, and
// enqueue into that worker's input ring (spec §4.4 "I/O-RX lcore
// loop").
type IORXLoop struct {
	Lcore    int
	Socket   int
	Port     Port
	Queue    uint16
	Pool     *pktbuf.Pool
	Selector *fifoness.Selector
	Inputs   []*ring.SPSC[pktbuf.Handle] // indexed by worker position
	Burst    int
	Stop     *StopSignal
	Counters *Counters
}

// RunOnce executes one iteration of the I/O-RX loop: one RX burst
// followed by classification and enqueue of every packet it read.
func (l *IORXLoop) RunOnce() {
	if l.Burst <= 0 || l.Burst > BurstArrayCapacity {
		return
	}
	handles := make([]pktbuf.Handle, l.Burst)
	buffers := make([]*pktbuf.Buffer, l.Burst)
	n := l.Port.RXBurst(l.Queue, l.Pool, l.Socket, handles, buffers)
	for i := 0; i < n; i++ {
		buf := buffers[i]
		pk := ParseL2(buf.Meta.IngressPort, buf.Data())
		pk = ParseL3L4(pk, buf.Data())
		idx := l.Selector.WorkerIndex(pk, len(l.Inputs))
		if idx < 0 || idx >= len(l.Inputs) {
			l.Counters.RXDropped.Add(1)
			continue
		}
		h := handles[i]
		if err := l.Inputs[idx].Enqueue(&h); err != nil {
			l.Counters.RXDropped.Add(1)
			continue
		}
		l.Counters.RXPackets.Add(1)
	}
}

// Run drives RunOnce until Stop is requested, pausing with an
// exponential-style spin wait between empty iterations (spec §5:
// "busy-poll with optional pause hints").
func (l *IORXLoop) Run() {
	sw := spin.Wait{}
	for !l.Stop.Requested() {
		before := l.Counters.RXPackets.Load()
		l.RunOnce()
		if l.Counters.RXPackets.Load() == before {
			sw.Once()
		} else {
			sw = spin.Wait{}
		}
	}
}

// Dispatch is the matched-flow resolution and instruction execution for
// one buffer (spec §4.4 worker-loop steps 1-7).
type Dispatch struct {
	Bridge *flowtable.Bridge
	Cache  flowcache.Cache
	Groups pipeline.GroupLookup
	Hash   func(data []byte) uint64
	Meters pipeline.MeterBank
}

// Process runs one buffer through the flow cache / table match /
// instruction interpreter chain, returning the pipeline.Result and the
// matched entry (nil on drop-before-match).
func (d *Dispatch) Process(pk flowtable.PacketKey, buf *pktbuf.Buffer) (pipeline.Result, *flowtable.Entry) {
	fp := d.Hash(pk.FiveTuple(nil))
	gen := d.Bridge.Generation()

	var entry *flowtable.Entry
	if d.Cache != nil {
		if e, ok := d.Cache.Lookup(fp, gen); ok {
			entry = e
		}
	}

	tableID := uint8(0)
	ctx := pipeline.NewContext()
	for {
		if entry == nil {
			tbl := d.Bridge.Table(tableID)
			matched, ok := tbl.Match(pk)
			if !ok {
				return pipeline.MissOutcome(tbl.Miss, tableID), nil
			}
			matched.Touch()
			entry = matched
			if d.Cache != nil {
				d.Cache.Insert(fp, entry, gen)
			}
		}
		res := ctx.Execute(entry.Instructions, buf.Len(), d.Meters, d.Groups, fp)
		if res.Outcome == pipeline.OutcomeGotoTable {
			tableID = res.NextTable
			entry = nil
			continue
		}
		return res, entry
	}
}

// WorkerLoop runs one worker lcore: fair dequeue from each assigned
// input ring, dispatch through flow cache/match/pipeline, and enqueue
// the outcome onto the appropriate worker-output ring (spec §4.4
// "Worker lcore loop"). Resolve maps a dequeued Handle back to its
// *pktbuf.Buffer and parses the header fields needed for matching
// (spec §4.4 step 1, "lazy: parse only as far as the first table's
// matches require"); the concrete mapping is owned by whichever driver
// populated the Pool, a boundary this module does not cross.
type WorkerLoop struct {
	Lcore    int
	Inputs   []*ring.SPSC[pktbuf.Handle]
	Outputs  map[uint32]*ring.SPSC[pktbuf.Handle] // keyed by output port
	Pool     *pktbuf.Pool
	Socket   int
	Dispatch *Dispatch
	Resolve  func(pktbuf.Handle) (*pktbuf.Buffer, flowtable.PacketKey)
	Burst    int
	Stop     *StopSignal
	Counters *Counters
}

// RunOnce drains up to Burst handles from each input ring in turn
// ("fairly", per spec §4.4) and processes each.
func (l *WorkerLoop) RunOnce() int {
	processed := 0
	for _, in := range l.Inputs {
		for i := 0; i < l.Burst; i++ {
			h, err := in.Dequeue()
			if err != nil {
				break
			}
			buf, pk := l.Resolve(h)
			l.Process(pk, h, buf)
			processed++
		}
	}
	return processed
}

// Process runs one buffer through dispatch and routes the outcome to
// the appropriate output ring(s), or back to the pool on drop.
func (l *WorkerLoop) Process(pk flowtable.PacketKey, h pktbuf.Handle, buf *pktbuf.Buffer) {
	res, _ := l.Dispatch.Process(pk, buf)
	switch res.Outcome {
	case pipeline.OutcomeDrop:
		if err := l.Pool.Free(l.Socket, h, buf); err != nil {
			l.Counters.RXDropped.Add(1)
		}
	case pipeline.OutcomeControllerSend:
		// Controller hand-off is the external protocol agent's concern
		// (spec §1 out of scope); the buffer is released here since this
		// core does not itself hold a controller channel.
		_ = l.Pool.Free(l.Socket, h, buf)
	case pipeline.OutcomeOutput:
		for i, out := range res.Outputs {
			if i > 0 {
				buf.Retain()
			}
			outRing, ok := l.Outputs[out.Port]
			if !ok {
				l.Counters.TXDropped.Add(1)
				_ = l.Pool.Free(l.Socket, h, buf)
				continue
			}
			if err := outRing.Enqueue(&h); err != nil {
				l.Counters.TXDropped.Add(1)
				_ = l.Pool.Free(l.Socket, h, buf)
				continue
			}
		}
	}
}

// Run drives RunOnce until Stop is requested.
func (l *WorkerLoop) Run() {
	sw := spin.Wait{}
	for !l.Stop.Requested() {
		if l.RunOnce() == 0 {
			sw.Once()
		} else {
			sw = spin.Wait{}
		}
	}
}

// IOTXLoop runs one I/O-TX lcore: drain all worker-output rings
// assigned to its port and transmit in bursts (spec §4.4 "I/O-TX lcore
// loop").
type IOTXLoop struct {
	Lcore    int
	Port     Port
	Outputs  []*ring.SPSC[pktbuf.Handle]
	Pool     *pktbuf.Pool
	Socket   int
	Burst    int
	Stop     *StopSignal
	Counters *Counters
	Resolve  func(pktbuf.Handle) *pktbuf.Buffer
}

// RunOnce drains up to Burst handles from every assigned output ring
// and transmits them in one TXBurst call per ring.
func (l *IOTXLoop) RunOnce() int {
	if l.Burst <= 0 || 2*l.Burst > BurstArrayCapacity {
		return 0
	}
	total := 0
	buffers := make([]*pktbuf.Buffer, 0, l.Burst)
	for _, out := range l.Outputs {
		buffers = buffers[:0]
		for i := 0; i < l.Burst; i++ {
			h, err := out.Dequeue()
			if err != nil {
				break
			}
			if l.Resolve == nil {
				continue
			}
			buffers = append(buffers, l.Resolve(h))
		}
		if len(buffers) == 0 {
			continue
		}
		n := l.Port.TXBurst(buffers)
		l.Counters.TXPackets.Add(uint64(n))
		total += n
	}
	return total
}

// Run drives RunOnce until Stop is requested.
func (l *IOTXLoop) Run() {
	sw := spin.Wait{}
	for !l.Stop.Requested() {
		if l.RunOnce() == 0 {
			sw.Once()
		} else {
			sw = spin.Wait{}
		}
	}
}
