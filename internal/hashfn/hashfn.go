// Package hashfn provides the selectable fingerprint hash families used
// by the flow cache (internal/flowcache) and the FIFO-ness worker
// selector (internal/fifoness): city64, intel64, murmur3.
package hashfn

import (
	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

// Kind names a hash family. The zero value is City64, the frozen default.
type Kind int

const (
	City64 Kind = iota
	Intel64
	Murmur3
)

// Func is a deterministic 64-bit fingerprint function over raw bytes.
type Func func(data []byte) uint64

// Parse maps a --hashtype CLI token to a Kind.
func Parse(s string) (Kind, bool) {
	switch s {
	case "city64", "":
		return City64, true
	case "intel64":
		return Intel64, true
	case "murmur3":
		return Murmur3, true
	default:
		return 0, false
	}
}

func (k Kind) String() string {
	switch k {
	case City64:
		return "city64"
	case Intel64:
		return "intel64"
	case Murmur3:
		return "murmur3"
	default:
		return "unknown"
	}
}

// Select returns the Func for a Kind. Selection happens once at startup
// and is frozen for the lifetime of the bridge generation, per spec
// Open Question guidance ("freeze it as part of the ABI").
func (k Kind) Select() Func {
	switch k {
	case Intel64:
		return xxhash.Sum64
	case Murmur3:
		return func(b []byte) uint64 { return murmur3.Sum64(b) }
	default:
		return City64Sum
	}
}

// City64Sum implements a CityHash64-style 64-bit hash: wide odd
// multiplicative constants, rotate-mix, length folded into the seed.
// There is no corpus-grounded third-party Go implementation of
// CityHash64 (see DESIGN.md); this is a compact, deterministic,
// from-scratch mix frozen as the default fingerprint function.
func City64Sum(data []byte) uint64 {
	const (
		k0 = 0xc3a5c85c97cb3127
		k1 = 0xb492b66fbe98f273
		k2 = 0x9ae16a3b2f90404f
	)
	n := uint64(len(data))
	h := k2 ^ (n * k0)
	var i int
	for ; i+8 <= len(data); i += 8 {
		w := load64(data[i:])
		h ^= mix64(w * k1)
		h = rotr64(h, 37) * k0
	}
	if rem := len(data) - i; rem > 0 {
		var buf [8]byte
		copy(buf[:], data[i:])
		w := load64(buf[:])
		h ^= mix64(w * k2)
		h = rotr64(h, 29) * k1
	}
	h = mix64(h)
	return h
}

func load64(b []byte) uint64 {
	var w uint64
	for i := 0; i < 8 && i < len(b); i++ {
		w |= uint64(b[i]) << (8 * uint(i))
	}
	return w
}

func mix64(v uint64) uint64 {
	v ^= v >> 33
	v *= 0xff51afd7ed558ccd
	v ^= v >> 33
	v *= 0xc4ceb9fe1a85ec53
	v ^= v >> 33
	return v
}

func rotr64(v uint64, k uint) uint64 {
	return (v >> k) | (v << (64 - k))
}
