// Package pktbuf implements the packet buffer pool and descriptor
// (spec §3 "Packet buffer", §4.1). A Buffer is a reference-counted,
// fixed-capacity byte region with a headroom prefix and a metadata
// trailer; the pool is NUMA-aware and falls back to a heap allocation
// with a bit-compatible trailer layout when no socket pool is configured.
package pktbuf

import (
	"sync/atomic"

	"code.hybscloud.com/iobuf"
	"code.hybscloud.com/iox"

	"github.com/hcswitch/ofcore/internal/xerr"
)

// Capacity is the fixed payload capacity of a pool buffer, sized for a
// full Ethernet jumbo frame plus headroom for header manipulation
// (VLAN push, MPLS push) without a copy.
const Capacity = 9216

// Headroom is the number of leading bytes reserved for header
// insertion before the parsed packet's first byte.
const Headroom = 128

// Origin tags whether a Buffer came from a pool or a fallback allocator;
// it disambiguates the release path in Free.
type Origin uint8

const (
	OriginPool Origin = iota
	OriginFallback
)

// Kind tags the highest parsed header layer cached in Metadata.
type Kind uint8

const (
	KindUnparsed Kind = iota
	KindL2
	KindL3
	KindL4
)

// Metadata is the per-packet pipeline state carried in a Buffer's
// trailer: ingress port identity, parsed header offsets, the cached
// flow-match key, the table currently executing, the accumulated
// action set, the output queue, and the buffer's origin.
type Metadata struct {
	IngressPort  uint32
	L2Offset     int
	L3Offset     int
	L4Offset     int
	ParsedKind   Kind
	MatchKey     [40]byte // scratch area for the fingerprint input (5-tuple + in-port)
	MatchKeyLen  int
	TableID      uint8
	OutputQueue  uint16
	Origin       Origin
	CachedFlow   uintptr // opaque flowtable.Entry pointer slot; no code in this module sets it
	CachedGen    uint64
}

// Buffer is a fixed-capacity byte region plus the Metadata trailer.
// Ownership: created by the I/O-RX path, consumed by the worker,
// transferred to the I/O-TX path; Free decrements the refcount and at
// zero the buffer returns to its pool (or, for a fallback buffer, is
// left for the garbage collector).
type Buffer struct {
	data   [Capacity]byte
	length int
	refs   atomic.Int32
	Meta   Metadata
}

// Reset clears metadata and rewinds write pointers. Called by the pool
// before handing a reused buffer back out, and by callers wishing to
// recycle a buffer for a new packet without reallocating.
func (b *Buffer) Reset() {
	b.length = 0
	b.Meta = Metadata{}
	b.refs.Store(1)
}

// Data returns the packet payload (after headroom, before length).
func (b *Buffer) Data() []byte { return b.data[Headroom : Headroom+b.length] }

// HeadroomBytes returns the headroom prefix, usable for prepending headers.
func (b *Buffer) HeadroomBytes() []byte { return b.data[:Headroom] }

// SetLength sets the packet payload length; it must not exceed
// Capacity-Headroom.
func (b *Buffer) SetLength(n int) error {
	if n < 0 || n > Capacity-Headroom {
		return xerr.OutOfRange("pktbuf.Buffer.SetLength")
	}
	b.length = n
	return nil
}

// Len returns the current payload length.
func (b *Buffer) Len() int { return b.length }

// Retain increments the reference count. Used when a buffer is handed
// to more than one downstream consumer (e.g. a group bucket that
// replicates to multiple ports).
func (b *Buffer) Retain() { b.refs.Add(1) }

// release decrements the refcount and reports whether it reached zero.
func (b *Buffer) release() bool { return b.refs.Add(-1) == 0 }

// Handle is an index into a socket Pool, standing in for a buffer
// reference on rings (spec §3 "Ring": "bounded FIFO of buffer
// references"). Handles are only meaningful relative to the Pool that
// issued them.
type Handle uint32

// socketPool wraps one iobuf.BoundedPool[*Buffer] for a single NUMA
// socket, adding the explicit refcounting iobuf's borrow/return pool
// does not provide on its own. The pool stores pointers (not values),
// so a worker's in-place mutations stay visible without a Get/SetValue
// round trip per field write.
type socketPool struct {
	pool *iobuf.BoundedPool[*Buffer]
}

func newSocketPool(capacity int) *socketPool {
	p := iobuf.NewBoundedPool[*Buffer](capacity)
	p.Fill(func() *Buffer { return &Buffer{} })
	p.SetNonblock(true)
	return &socketPool{pool: p}
}

func (s *socketPool) alloc() (Handle, *Buffer, error) {
	idx, err := s.pool.Get()
	if err != nil {
		if xerr.IsWouldBlock(err) {
			return 0, nil, xerr.NoMemory("pktbuf.Pool.Alloc")
		}
		return 0, nil, err
	}
	buf := s.pool.Value(idx)
	buf.Reset()
	buf.Meta.Origin = OriginPool
	return Handle(idx), buf, nil
}

func (s *socketPool) free(idx int) error {
	return s.pool.Put(idx)
}

// Pool is the NUMA-aware packet buffer pool (spec §4.1): alloc chooses
// the pool whose socket matches the caller's lcore, or the first
// available if none matches, falling back to a heap allocation when no
// socket pool is configured at all.
type Pool struct {
	sockets map[int]*socketPool
	order   []int // socket ids in NewPool's map iteration order (unspecified), for "first available"
}

// NewPool constructs a Pool with one buffer arena per socket in
// perSocketCapacity (socket id -> buffer count).
func NewPool(perSocketCapacity map[int]int) *Pool {
	p := &Pool{sockets: make(map[int]*socketPool, len(perSocketCapacity))}
	for socket, capacity := range perSocketCapacity {
		p.sockets[socket] = newSocketPool(capacity)
		p.order = append(p.order, socket)
	}
	return p
}

// Alloc acquires a buffer, preferring the pool for socket; falling back
// to the first pool in p.order (which socket that is, is not defined)
// if socket has none, and to a
// heap allocation (Origin = OriginFallback) if no socket pools exist at
// all (i.e. running without the high-speed driver).
func (p *Pool) Alloc(socket int) (Handle, *Buffer, error) {
	if sp, ok := p.sockets[socket]; ok {
		return sp.alloc()
	}
	for _, id := range p.order {
		return p.sockets[id].alloc()
	}
	buf := &Buffer{}
	buf.Reset()
	buf.Meta.Origin = OriginFallback
	return 0, buf, nil
}

// Free decrements the buffer's reference count; at zero it returns the
// buffer to its socket pool (OriginPool) or leaves it for the garbage
// collector (OriginFallback). socket and handle identify the pool the
// buffer was allocated from; callers must track these alongside the
// *Buffer since a Handle is only meaningful relative to its own Pool.
func (p *Pool) Free(socket int, handle Handle, buf *Buffer) error {
	if !buf.release() {
		return nil
	}
	if buf.Meta.Origin == OriginFallback {
		return nil
	}
	sp, ok := p.sockets[socket]
	if !ok {
		return xerr.NotFound("pktbuf.Pool.Free")
	}
	return sp.free(int(handle))
}

// Sockets returns the configured socket ids in p.order, the order in
// which NewPool iterated its map argument (not sorted, not defined).
func (p *Pool) Sockets() []int {
	out := make([]int, len(p.order))
	copy(out, p.order)
	return out
}

var _ = iox.IsWouldBlock // keep iox import alive for doc-linked guarantees
