package pipeline_test

import (
	"testing"

	"github.com/hcswitch/ofcore/internal/flowtable"
	"github.com/hcswitch/ofcore/internal/pipeline"
)

func TestApplyActionsOutput(t *testing.T) {
	var instr flowtable.InstructionSet
	instr[flowtable.SlotApplyActions] = flowtable.Instruction{
		Present: true,
		Apply:   flowtable.ActionList{{Kind: flowtable.ActionOutput, Port: 3}},
	}
	c := pipeline.NewContext()
	res := c.Execute(instr, 64, nil, nil, 0)
	if res.Outcome != pipeline.OutcomeOutput || len(res.Outputs) != 1 || res.Outputs[0].Port != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestTableMissDefaultDrop(t *testing.T) {
	res := pipeline.MissOutcome(flowtable.MissDrop, 0)
	if res.Outcome != pipeline.OutcomeDrop {
		t.Fatalf("expected drop on miss, got %+v", res)
	}
}

func TestTableMissControllerSend(t *testing.T) {
	res := pipeline.MissOutcome(flowtable.MissControllerSend, 0)
	if res.Outcome != pipeline.OutcomeControllerSend {
		t.Fatalf("expected controller-send on miss, got %+v", res)
	}
}

func TestGotoTableChaining(t *testing.T) {
	var instr flowtable.InstructionSet
	instr[flowtable.SlotGotoTable] = flowtable.Instruction{Present: true, GotoTableID: 1}
	c := pipeline.NewContext()
	res := c.Execute(instr, 64, nil, nil, 0)
	if res.Outcome != pipeline.OutcomeGotoTable || res.NextTable != 1 {
		t.Fatalf("expected goto-table(1), got %+v", res)
	}
}

func TestWriteActionsFlushedAtChainEnd(t *testing.T) {
	var instr flowtable.InstructionSet
	instr[flowtable.SlotWriteActions] = flowtable.Instruction{
		Present: true,
		Write:   flowtable.ActionList{{Kind: flowtable.ActionOutput, Port: 7}},
	}
	c := pipeline.NewContext()
	res := c.Execute(instr, 64, nil, nil, 0)
	if res.Outcome != pipeline.OutcomeOutput || len(res.Outputs) != 1 || res.Outputs[0].Port != 7 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestClearActionsDropsWriteSet(t *testing.T) {
	var instr flowtable.InstructionSet
	instr[flowtable.SlotWriteActions] = flowtable.Instruction{
		Present: true,
		Write:   flowtable.ActionList{{Kind: flowtable.ActionOutput, Port: 7}},
	}
	c := pipeline.NewContext()
	c.Execute(instr, 64, nil, nil, 0)

	var instr2 flowtable.InstructionSet
	instr2[flowtable.SlotClearActions] = flowtable.Instruction{Present: true}
	res := c.Execute(instr2, 64, nil, nil, 0)
	if res.Outcome != pipeline.OutcomeDrop {
		t.Fatalf("expected write-action set cleared, got %+v", res)
	}
}

func TestMeterDropsBeforeApply(t *testing.T) {
	var instr flowtable.InstructionSet
	instr[flowtable.SlotMeter] = flowtable.Instruction{Present: true, MeterID: 1}
	instr[flowtable.SlotApplyActions] = flowtable.Instruction{
		Present: true,
		Apply:   flowtable.ActionList{{Kind: flowtable.ActionOutput, Port: 3}},
	}
	c := pipeline.NewContext()
	res := c.Execute(instr, 64, rejectAllMeters{}, nil, 0)
	if res.Outcome != pipeline.OutcomeDrop {
		t.Fatalf("expected meter to drop before apply-actions, got %+v", res)
	}
}

type rejectAllMeters struct{}

func (rejectAllMeters) Consume(meterID uint32, length int) bool { return false }

func TestControllerSendAction(t *testing.T) {
	var instr flowtable.InstructionSet
	instr[flowtable.SlotApplyActions] = flowtable.Instruction{
		Present: true,
		Apply:   flowtable.ActionList{{Kind: flowtable.ActionOutput, Port: pipeline.PortController}},
	}
	c := pipeline.NewContext()
	res := c.Execute(instr, 64, nil, nil, 0)
	if res.Outcome != pipeline.OutcomeControllerSend {
		t.Fatalf("expected controller-send, got %+v", res)
	}
}

func TestGroupActionSelectsBucket(t *testing.T) {
	groups := func(id uint32) (flowtable.Group, bool) {
		if id != 1 {
			return flowtable.Group{}, false
		}
		return flowtable.Group{ID: 1, Buckets: []flowtable.Bucket{
			{Weight: 1, Actions: flowtable.ActionList{{Kind: flowtable.ActionOutput, Port: 9}}},
		}}, true
	}
	var instr flowtable.InstructionSet
	instr[flowtable.SlotApplyActions] = flowtable.Instruction{
		Present: true,
		Apply:   flowtable.ActionList{{Kind: flowtable.ActionGroup, GroupID: 1}},
	}
	c := pipeline.NewContext()
	res := c.Execute(instr, 64, nil, groups, 0)
	if res.Outcome != pipeline.OutcomeOutput || len(res.Outputs) != 1 || res.Outputs[0].Port != 9 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestWriteMetadataAccumulates(t *testing.T) {
	var instr flowtable.InstructionSet
	instr[flowtable.SlotWriteMetadata] = flowtable.Instruction{Present: true, MetadataValue: 0xFF, MetadataMask: 0x0F}
	c := pipeline.NewContext()
	c.Execute(instr, 64, nil, nil, 0)
	if c.Metadata() != 0x0F {
		t.Fatalf("expected masked metadata 0x0F, got %#x", c.Metadata())
	}
}
