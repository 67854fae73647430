// Package pipeline implements the six-slot instruction interpreter a
// worker runs against a matched flow entry (spec §4.4 step 5): meter,
// apply-actions, clear-actions, write-actions, write-metadata,
// goto-table, walked in that fixed order regardless of how the
// instruction set's slots were populated.
package pipeline

import (
	"sort"

	"github.com/hcswitch/ofcore/internal/flowtable"
)

// PortController is the reserved output port identifying "send to the
// controller" (OpenFlow 1.3 OFPP_CONTROLLER), distinguishing a
// controller-send outcome from a regular physical/logical port output.
const PortController uint32 = 0xfffffffd

// Outcome classifies the terminal result of executing an instruction
// set against one buffer (spec §4.4 steps 5-7).
type Outcome int

const (
	OutcomeDrop Outcome = iota
	OutcomeOutput
	OutcomeControllerSend
	OutcomeGotoTable
)

// Output names one destination a buffer (or a copy of it, for a
// replicating group) should be enqueued to.
type Output struct {
	Port  uint32
	Queue uint32
}

// Result is the terminal or chaining outcome of one Execute call.
type Result struct {
	Outcome   Outcome
	Outputs   []Output
	NextTable uint8 // valid when Outcome == OutcomeGotoTable
}

// MeterBank rate-limits per meter id; Consume reports whether length
// bytes are admitted (false means the packet is dropped by the meter
// slot). A nil MeterBank makes every meter slot a no-op, matching "any
// slot may be absent" for deployments without metering configured.
type MeterBank interface {
	Consume(meterID uint32, length int) bool
}

// GroupLookup resolves a group action's target Group by id, matching
// Bridge-owned group tables the pipeline itself has no access to.
type GroupLookup func(id uint32) (flowtable.Group, bool)

// Context carries the OpenFlow write-action-set and metadata state
// that persists across a goto-table chain within one buffer's pass
// through the pipeline (spec §4.4 step 5, Glossary "write-actions").
// Callers construct one Context per buffer and reuse it across
// successive Execute calls as goto-table chains tables.
type Context struct {
	writeSet     map[flowtable.ActionKind]flowtable.Action
	metadata     uint64
	metadataMask uint64
}

// NewContext returns an empty execution context for one buffer.
func NewContext() *Context {
	return &Context{writeSet: make(map[flowtable.ActionKind]flowtable.Action)}
}

// Metadata returns the accumulated write-metadata value.
func (c *Context) Metadata() uint64 { return c.metadata }

// Execute runs instr's six slots in fixed order against a buffer of
// the given length, returning either a terminal outcome (drop, output,
// controller-send) or a goto-table continuation the caller re-enters
// at NextTable (spec §4.4 step 5: "a nonzero return from any slot
// terminates execution").
func (c *Context) Execute(instr flowtable.InstructionSet, bufLen int, meters MeterBank, groups GroupLookup, hash uint64) Result {
	if m := instr.Slot(flowtable.SlotMeter); m.Present && meters != nil {
		if !meters.Consume(m.MeterID, bufLen) {
			return Result{Outcome: OutcomeDrop}
		}
	}

	var outputs []Output
	controllerSend := false

	if ap := instr.Slot(flowtable.SlotApplyActions); ap.Present {
		outs, toCtrl := c.applyActionList(ap.Apply, groups, hash)
		outputs = append(outputs, outs...)
		controllerSend = controllerSend || toCtrl
	}

	if instr.Slot(flowtable.SlotClearActions).Present {
		c.writeSet = make(map[flowtable.ActionKind]flowtable.Action)
	}

	if wr := instr.Slot(flowtable.SlotWriteActions); wr.Present {
		for _, a := range wr.Write {
			c.writeSet[a.Kind] = a
		}
	}

	if wm := instr.Slot(flowtable.SlotWriteMetadata); wm.Present {
		mask := wm.MetadataMask
		if mask == 0 {
			mask = ^uint64(0)
		}
		c.metadata = (c.metadata &^ mask) | (wm.MetadataValue & mask)
	}

	if gt := instr.Slot(flowtable.SlotGotoTable); gt.Present {
		return Result{Outcome: OutcomeGotoTable, NextTable: gt.GotoTableID, Outputs: outputs}
	}

	finalOuts, toCtrl := c.flushWriteSet(groups, hash)
	outputs = append(outputs, finalOuts...)
	controllerSend = controllerSend || toCtrl

	switch {
	case controllerSend:
		return Result{Outcome: OutcomeControllerSend, Outputs: outputs}
	case len(outputs) == 0:
		return Result{Outcome: OutcomeDrop}
	default:
		return Result{Outcome: OutcomeOutput, Outputs: outputs}
	}
}

// applyActionList executes an action list immediately, recursing into
// a group's selected bucket for ActionGroup (spec §4.4 step 6: "apply
// a weighted/hash selector over the bucket list").
func (c *Context) applyActionList(actions flowtable.ActionList, groups GroupLookup, hash uint64) ([]Output, bool) {
	var outs []Output
	controllerSend := false
	for _, a := range actions {
		switch a.Kind {
		case flowtable.ActionOutput:
			if a.Port == PortController {
				controllerSend = true
				continue
			}
			outs = append(outs, Output{Port: a.Port, Queue: a.Queue})
		case flowtable.ActionGroup:
			if groups == nil {
				continue
			}
			g, ok := groups(a.GroupID)
			if !ok {
				continue
			}
			b, ok := g.Select(hash)
			if !ok {
				continue
			}
			sub, toCtrl := c.applyActionList(b.Actions, groups, hash)
			outs = append(outs, sub...)
			controllerSend = controllerSend || toCtrl
		case flowtable.ActionSetField, flowtable.ActionPushVLAN, flowtable.ActionPopVLAN, flowtable.ActionSetQueue:
			// Header-rewrite actions mutate the buffer's bytes/metadata;
			// that is the worker's concern (internal/dataplane), not the
			// instruction interpreter's control flow.
		}
	}
	return outs, controllerSend
}

// flushWriteSet executes the accumulated write-action set at the end
// of a chain with no further goto-table, ordered by ActionKind for
// determinism (the OpenFlow write-action set has no inherent order).
func (c *Context) flushWriteSet(groups GroupLookup, hash uint64) ([]Output, bool) {
	if len(c.writeSet) == 0 {
		return nil, false
	}
	kinds := make([]flowtable.ActionKind, 0, len(c.writeSet))
	for k := range c.writeSet {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	list := make(flowtable.ActionList, 0, len(kinds))
	for _, k := range kinds {
		list = append(list, c.writeSet[k])
	}
	return c.applyActionList(list, groups, hash)
}

// MissOutcome translates a table's miss behavior into the same Result
// shape Execute produces, so callers handle match-hit and match-miss
// uniformly (spec §4.4 step 4: "apply the table's miss behavior
// (controller-send, drop, or next-table)").
func MissOutcome(mb flowtable.MissBehavior, currentTable uint8) Result {
	switch mb {
	case flowtable.MissControllerSend:
		return Result{Outcome: OutcomeControllerSend}
	case flowtable.MissNextTable:
		return Result{Outcome: OutcomeGotoTable, NextTable: currentTable + 1}
	default:
		return Result{Outcome: OutcomeDrop}
	}
}
