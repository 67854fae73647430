package flowtable

import "encoding/binary"

// FieldKind names a matchable packet field (spec §3 "Flow entry",
// OpenFlow 1.3 match fields, the subset this core interprets).
type FieldKind uint8

const (
	FieldInPort FieldKind = iota
	FieldEthSrc
	FieldEthDst
	FieldEthType
	FieldIPv4Src
	FieldIPv4Dst
	FieldIPProto
	FieldTCPSrcPort
	FieldTCPDstPort
	FieldUDPSrcPort
	FieldUDPDstPort
)

// Field is one match predicate: the packet's bytes at this field must
// equal Value after masking with Mask (an all-ones Mask is an exact
// match; a zero Mask is treated as all-ones, for every field kind).
type Field struct {
	Kind  FieldKind
	Value uint64
	Mask  uint64 // 0 means "all ones" (exact match) for fixed-width fields
}

// MatchList is a conjunction (AND) of Fields; an absent FieldKind is a
// wildcard. Order does not affect matching semantics.
type MatchList []Field

// effectiveMask returns f.Mask, defaulting to all-ones when unset.
func (f Field) effectiveMask() uint64 {
	if f.Mask == 0 {
		return ^uint64(0)
	}
	return f.Mask
}

// Matches reports whether pk satisfies every field in the list.
func (m MatchList) Matches(pk PacketKey) bool {
	for _, f := range m {
		v, ok := pk.field(f.Kind)
		if !ok {
			return false
		}
		mask := f.effectiveMask()
		if v&mask != f.Value&mask {
			return false
		}
	}
	return true
}

// Specificity counts the non-wildcard fields in the list.
func (m MatchList) Specificity() int { return len(m) }

// PacketKey is the parsed subset of a packet's headers relevant to
// matching, extracted lazily by the worker (spec §4.4 step 1: "parse
// only as far as the first table's matches require").
type PacketKey struct {
	InPort    uint32
	EthSrc    uint64 // low 48 bits
	EthDst    uint64 // low 48 bits
	EthType   uint16
	IPv4Src   uint32
	IPv4Dst   uint32
	IPProto   uint8
	L4SrcPort uint16
	L4DstPort uint16

	parsedL3 bool
	parsedL4 bool
}

func (pk PacketKey) field(kind FieldKind) (uint64, bool) {
	switch kind {
	case FieldInPort:
		return uint64(pk.InPort), true
	case FieldEthSrc:
		return pk.EthSrc, true
	case FieldEthDst:
		return pk.EthDst, true
	case FieldEthType:
		return uint64(pk.EthType), true
	case FieldIPv4Src:
		if !pk.parsedL3 {
			return 0, false
		}
		return uint64(pk.IPv4Src), true
	case FieldIPv4Dst:
		if !pk.parsedL3 {
			return 0, false
		}
		return uint64(pk.IPv4Dst), true
	case FieldIPProto:
		if !pk.parsedL3 {
			return 0, false
		}
		return uint64(pk.IPProto), true
	case FieldTCPSrcPort, FieldUDPSrcPort:
		if !pk.parsedL4 {
			return 0, false
		}
		return uint64(pk.L4SrcPort), true
	case FieldTCPDstPort, FieldUDPDstPort:
		if !pk.parsedL4 {
			return 0, false
		}
		return uint64(pk.L4DstPort), true
	default:
		return 0, false
	}
}

// ParseL3 records that L3 fields are now present in the key.
func (pk *PacketKey) ParseL3(src, dst uint32, proto uint8) {
	pk.IPv4Src, pk.IPv4Dst, pk.IPProto = src, dst, proto
	pk.parsedL3 = true
}

// ParseL4 records that L4 fields are now present in the key.
func (pk *PacketKey) ParseL4(srcPort, dstPort uint16) {
	pk.L4SrcPort, pk.L4DstPort = srcPort, dstPort
	pk.parsedL4 = true
}

// FiveTuple serializes the standard 5-tuple (or the subset available)
// for fingerprinting by internal/hashfn and internal/fifoness. The
// layout is frozen: InPort(4) EthType(2) IPv4Src(4) IPv4Dst(4)
// IPProto(1) L4SrcPort(2) L4DstPort(2).
func (pk PacketKey) FiveTuple(buf []byte) []byte {
	if cap(buf) < 19 {
		buf = make([]byte, 19)
	}
	buf = buf[:19]
	binary.BigEndian.PutUint32(buf[0:4], pk.InPort)
	binary.BigEndian.PutUint16(buf[4:6], pk.EthType)
	binary.BigEndian.PutUint32(buf[6:10], pk.IPv4Src)
	binary.BigEndian.PutUint32(buf[10:14], pk.IPv4Dst)
	buf[14] = pk.IPProto
	binary.BigEndian.PutUint16(buf[15:17], pk.L4SrcPort)
	binary.BigEndian.PutUint16(buf[17:19], pk.L4DstPort)
	return buf
}
