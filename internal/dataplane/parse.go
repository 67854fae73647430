package dataplane

import (
	"encoding/binary"

	"github.com/hcswitch/ofcore/internal/flowtable"
)

// Ethernet/IPv4/L4 offsets and EtherTypes needed to parse only as far
// as a lookup requires (spec §4.4 step 1: "parse only as far as the
// first table's matches require").
const (
	ethHeaderLen  = 14
	ipv4MinLen    = 20
	etherTypeIPv4 = 0x0800

	ipProtoTCP = 6
	ipProtoUDP = 17
)

// ParseL2 extracts the ingress port (caller-supplied, not carried in
// the frame itself) and EtherType from raw into a PacketKey, without
// touching L3/L4.
func ParseL2(inPort uint32, raw []byte) flowtable.PacketKey {
	var pk flowtable.PacketKey
	pk.InPort = inPort
	if len(raw) < ethHeaderLen {
		return pk
	}
	pk.EthDst = macToUint64(raw[0:6])
	pk.EthSrc = macToUint64(raw[6:12])
	pk.EthType = binary.BigEndian.Uint16(raw[12:14])
	return pk
}

// ParseL3L4 extends pk with IPv4 and TCP/UDP fields when raw's
// EtherType is IPv4, mirroring the worker loop's lazy parse (spec §4.4
// step 1).
func ParseL3L4(pk flowtable.PacketKey, raw []byte) flowtable.PacketKey {
	if pk.EthType != etherTypeIPv4 || len(raw) < ethHeaderLen+ipv4MinLen {
		return pk
	}
	ip := raw[ethHeaderLen:]
	ihl := int(ip[0]&0x0F) * 4
	if ihl < ipv4MinLen || len(ip) < ihl {
		return pk
	}
	src := binary.BigEndian.Uint32(ip[12:16])
	dst := binary.BigEndian.Uint32(ip[16:20])
	proto := ip[9]
	pk.ParseL3(src, dst, proto)

	if (proto != ipProtoTCP && proto != ipProtoUDP) || len(ip) < ihl+4 {
		return pk
	}
	l4 := ip[ihl:]
	srcPort := binary.BigEndian.Uint16(l4[0:2])
	dstPort := binary.BigEndian.Uint16(l4[2:4])
	pk.ParseL4(srcPort, dstPort)
	return pk
}

func macToUint64(b []byte) uint64 {
	var v uint64
	for _, x := range b[:6] {
		v = v<<8 | uint64(x)
	}
	return v
}
