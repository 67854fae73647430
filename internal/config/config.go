// Package config parses the CLI surface named in spec.md §6 into the
// validated values internal/dataplane, internal/flowcache, and
// internal/fifoness actually consume. The grammar ("(P,Q,L),…" tuple
// lists, Qmin-Qmax ranges, "(A,B,C,D)" ring sizes) is bespoke enough
// that no CLI framework in the retrieval pack reduces the parsing
// work, so this package is built on stdlib flag.Value implementations
// (see DESIGN.md for the standard-library justification this
// requires).
package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/hcswitch/ofcore/internal/dataplane"
	"github.com/hcswitch/ofcore/internal/fifoness"
	"github.com/hcswitch/ofcore/internal/flowcache"
	"github.com/hcswitch/ofcore/internal/hashfn"
)

// Config is every flag-derived value, already parsed into the types
// the rest of ofcore consumes.
type Config struct {
	Master         int
	RX             []dataplane.RXTriple
	TX             []dataplane.TXPair
	Workers        []int
	CoreAssign     dataplane.CoreAssignPolicy
	ShowCoreConfig bool
	NoCache        bool
	KVSType        flowcache.Kind
	HashType       hashfn.Kind
	FIFOness       fifoness.Policy
	RingSizes      dataplane.RingSizes
	BurstSizes     dataplane.BurstSizes
}

// rxTripleList parses "(P,Q,L),…" with Q optionally a "Qmin-Qmax"
// range, expanding each queue in the range to its own RXTriple sharing
// L (spec §6: "`--rx "(P,Q,L),…"` : explicit RX assignments; Q may be
// a range Qmin-Qmax").
type rxTripleList struct{ triples *[]dataplane.RXTriple }

func (v rxTripleList) String() string {
	if v.triples == nil {
		return ""
	}
	return fmt.Sprintf("%v", *v.triples)
}

func (v rxTripleList) Set(s string) error {
	groups, err := splitParenGroups(s)
	if err != nil {
		return err
	}
	var out []dataplane.RXTriple
	for _, g := range groups {
		parts := strings.Split(g, ",")
		if len(parts) != 3 {
			return fmt.Errorf("config: --rx tuple %q: want (port,queue,lcore)", g)
		}
		port, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 16)
		if err != nil {
			return fmt.Errorf("config: --rx port: %w", err)
		}
		lcore, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return fmt.Errorf("config: --rx lcore: %w", err)
		}
		qmin, qmax, err := parseQueueRange(strings.TrimSpace(parts[1]))
		if err != nil {
			return err
		}
		for q := qmin; q <= qmax; q++ {
			out = append(out, dataplane.RXTriple{Port: uint16(port), Queue: uint16(q), Lcore: lcore})
		}
	}
	*v.triples = append(*v.triples, out...)
	return nil
}

func parseQueueRange(s string) (int, int, error) {
	if i := strings.IndexByte(s, '-'); i >= 0 {
		lo, err := strconv.Atoi(s[:i])
		if err != nil {
			return 0, 0, fmt.Errorf("config: queue range lower bound: %w", err)
		}
		hi, err := strconv.Atoi(s[i+1:])
		if err != nil {
			return 0, 0, fmt.Errorf("config: queue range upper bound: %w", err)
		}
		if hi < lo {
			return 0, 0, fmt.Errorf("config: queue range %q is inverted", s)
		}
		return lo, hi, nil
	}
	q, err := strconv.Atoi(s)
	if err != nil {
		return 0, 0, fmt.Errorf("config: queue: %w", err)
	}
	return q, q, nil
}

// txPairList parses "(P,L),…" (spec §6: "--tx").
type txPairList struct{ pairs *[]dataplane.TXPair }

func (v txPairList) String() string {
	if v.pairs == nil {
		return ""
	}
	return fmt.Sprintf("%v", *v.pairs)
}

func (v txPairList) Set(s string) error {
	groups, err := splitParenGroups(s)
	if err != nil {
		return err
	}
	var out []dataplane.TXPair
	for _, g := range groups {
		parts := strings.Split(g, ",")
		if len(parts) != 2 {
			return fmt.Errorf("config: --tx pair %q: want (port,lcore)", g)
		}
		port, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 16)
		if err != nil {
			return fmt.Errorf("config: --tx port: %w", err)
		}
		lcore, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return fmt.Errorf("config: --tx lcore: %w", err)
		}
		out = append(out, dataplane.TXPair{Port: uint16(port), Lcore: lcore})
	}
	*v.pairs = append(*v.pairs, out...)
	return nil
}

// splitParenGroups splits "(a,b),(c,d)" into ["a,b", "c,d"].
func splitParenGroups(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var groups []string
	depth := 0
	start := -1
	for i, r := range s {
		switch r {
		case '(':
			depth++
			if depth == 1 {
				start = i + 1
			}
		case ')':
			depth--
			if depth == 0 {
				if start < 0 {
					return nil, fmt.Errorf("config: unmatched ')' in %q", s)
				}
				groups = append(groups, s[start:i])
				start = -1
			} else if depth < 0 {
				return nil, fmt.Errorf("config: unmatched ')' in %q", s)
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("config: unmatched '(' in %q", s)
	}
	return groups, nil
}

// intList parses "A,B,C,…" into ints (spec §6: "--w \"L,…\"").
type intList struct{ ints *[]int }

func (v intList) String() string {
	if v.ints == nil {
		return ""
	}
	return fmt.Sprintf("%v", *v.ints)
}

func (v intList) Set(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fmt.Errorf("config: integer list entry %q: %w", part, err)
		}
		*v.ints = append(*v.ints, n)
	}
	return nil
}

// quadList parses "A,B,C,D" into exactly four ints (spec §6: "--rsz").
type quadList struct {
	dst *[4]int
	set *bool
}

func (v quadList) String() string {
	if v.dst == nil {
		return ""
	}
	return fmt.Sprintf("%v", *v.dst)
}

func (v quadList) Set(s string) error {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return fmt.Errorf("config: --rsz %q: want exactly 4 comma-separated sizes", s)
	}
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fmt.Errorf("config: --rsz entry %q: %w", part, err)
		}
		v.dst[i] = n
	}
	*v.set = true
	return nil
}

// burstSizeList parses "(A,B),(C,D),(E,F)" into the six burst sizes
// (spec §6: "--bsz"), in the order NIC-RX-read, NIC-RX-write,
// worker-read, worker-write, I/O-TX-read, I/O-TX-write.
type burstSizeList struct {
	dst *dataplane.BurstSizes
	set *bool
}

func (v burstSizeList) String() string {
	if v.dst == nil {
		return ""
	}
	return fmt.Sprintf("%+v", *v.dst)
}

func (v burstSizeList) Set(s string) error {
	groups, err := splitParenGroups(s)
	if err != nil {
		return err
	}
	if len(groups) != 3 {
		return fmt.Errorf("config: --bsz %q: want exactly 3 (read,write) pairs", s)
	}
	var flat [6]int
	idx := 0
	for _, g := range groups {
		parts := strings.Split(g, ",")
		if len(parts) != 2 {
			return fmt.Errorf("config: --bsz pair %q: want (read,write)", g)
		}
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return fmt.Errorf("config: --bsz entry %q: %w", p, err)
			}
			flat[idx] = n
			idx++
		}
	}
	*v.dst = dataplane.BurstSizes{
		NICRXRead:   flat[0],
		NICRXWrite:  flat[1],
		WorkerRead:  flat[2],
		WorkerWrite: flat[3],
		IOTXRead:    flat[4],
		IOTXWrite:   flat[5],
	}
	*v.set = true
	return nil
}

// Parse builds a FlagSet over the CLI surface and parses args into a
// validated Config.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("ofswitch", flag.ContinueOnError)

	var workerList []int
	var rx []dataplane.RXTriple
	var tx []dataplane.TXPair
	var rszQuad [4]int
	rszSet := false
	var bsz dataplane.BurstSizes
	bszSet := false

	master := fs.Int("master", 0, "master lcore id")
	fs.Var(rxTripleList{&rx}, "rx", `explicit RX assignments: "(port,queue,lcore),…", queue may be a Qmin-Qmax range`)
	fs.Var(txPairList{&tx}, "tx", `explicit TX assignments: "(port,lcore),…"`)
	fs.Var(intList{&workerList}, "w", `explicit worker lcore list: "lcore,…"`)
	coreAssign := fs.String("core-assign", "performance", "core assignment policy: performance|balance|minimum")
	showCoreConfig := fs.Bool("show-core-config", false, "print resolved assignment and exit")
	noCache := fs.Bool("no-cache", false, "disable the flow cache")
	kvsType := fs.String("kvstype", "", "flow cache backend: hashmap_nolock|hashmap|rte_hash")
	hashType := fs.String("hashtype", "", "hash family: city64|intel64|murmur3")
	fifonessFlag := fs.String("fifoness", "", "worker-selection policy: none|port|flow")
	fs.Var(quadList{&rszQuad, &rszSet}, "rsz", `ring sizes: "nic-rx,worker-in,worker-out,nic-tx"`)
	fs.Var(burstSizeList{&bsz, &bszSet}, "bsz", `burst sizes: "(nic-rx-read,nic-rx-write),(worker-read,worker-write),(io-tx-read,io-tx-write)"`)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	policy, ok := dataplane.Parse(*coreAssign)
	if !ok {
		return nil, fmt.Errorf("config: unknown --core-assign %q", *coreAssign)
	}
	kvsKind, ok := flowcache.Parse(*kvsType)
	if !ok {
		return nil, fmt.Errorf("config: unknown --kvstype %q", *kvsType)
	}
	hashKind, ok := hashfn.Parse(*hashType)
	if !ok {
		return nil, fmt.Errorf("config: unknown --hashtype %q", *hashType)
	}
	fifoPolicy, ok := fifoness.Parse(*fifonessFlag)
	if !ok {
		return nil, fmt.Errorf("config: unknown --fifoness %q", *fifonessFlag)
	}

	ringSizes := dataplane.DefaultRingSizes()
	if rszSet {
		ringSizes = dataplane.RingSizes{
			NICRX:     rszQuad[0],
			WorkerIn:  rszQuad[1],
			WorkerOut: rszQuad[2],
			NICTX:     rszQuad[3],
		}
	}
	burstSizes := dataplane.DefaultBurstSizes()
	if bszSet {
		burstSizes = bsz
	}
	if err := burstSizes.Validate(); err != nil {
		return nil, err
	}

	if len(rx) > 0 {
		txPorts := make(map[uint16]bool, len(tx))
		ioLcores := make(map[int]bool, len(rx)+len(tx))
		for _, t := range tx {
			txPorts[t.Port] = true
			ioLcores[t.Lcore] = true
		}
		for _, r := range rx {
			ioLcores[r.Lcore] = true
		}
		// A --w lcore that is also an I/O lcore is a role conflict;
		// ResolveRoles reports it, so the RX/TX check is left to it.
		conflict := false
		for _, w := range workerList {
			conflict = conflict || ioLcores[w]
		}
		for _, r := range rx {
			if !conflict && !txPorts[r.Port] {
				return nil, fmt.Errorf("config: RX port %d has no matching --tx entry", r.Port)
			}
		}
	}

	return &Config{
		Master:         *master,
		RX:             rx,
		TX:             tx,
		Workers:        workerList,
		CoreAssign:     policy,
		ShowCoreConfig: *showCoreConfig,
		NoCache:        *noCache,
		KVSType:        kvsKind,
		HashType:       hashKind,
		FIFOness:       fifoPolicy,
		RingSizes:      ringSizes,
		BurstSizes:     burstSizes,
	}, nil
}

// ResolveRoles derives a dataplane.RoleAssignment from a Config: if RX,
// TX, or Workers were given explicitly, AssignExplicit validates and
// wires them; otherwise AssignAuto distributes lcores by CoreAssign
// policy (spec §4.2: "Without explicit assignment, automatic
// distribution applies according to the configured core-assignment
// policy").
func ResolveRoles(c *Config, lcores []dataplane.LcoreInfo, limits dataplane.Limits) (*dataplane.RoleAssignment, error) {
	if len(c.RX) > 0 || len(c.TX) > 0 || len(c.Workers) > 0 {
		return dataplane.AssignExplicit(c.Master, c.RX, c.TX, c.Workers, limits)
	}
	return dataplane.AssignAuto(c.Master, lcores, c.CoreAssign)
}
