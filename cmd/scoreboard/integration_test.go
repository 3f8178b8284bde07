package main

import (
	"os"
	"testing"

	"github.com/FelSiq/scoreboarding-for-dynamic-instruction-scheduling/internal/arch"
	"github.com/FelSiq/scoreboarding-for-dynamic-instruction-scheduling/internal/program"
	"github.com/FelSiq/scoreboarding-for-dynamic-instruction-scheduling/internal/scoreboard"
)

// These tests drive the A->B->C pipeline against the testdata/ fixtures,
// exercising the --arch YAML override and the mixed-hazard program end to
// end rather than through hand-built strings.

func statusAt(t *testing.T, trace *scoreboard.Trace, pc int, stage arch.Stage) int {
	t.Helper()
	cycle, ok := trace.InstStatus[pc][stage]
	if !ok {
		t.Fatalf("pc %d never reached stage %s", pc, stage)
	}
	return cycle
}

func TestIntegrationRAWHazardWithArchOverride(t *testing.T) {
	machine, err := arch.LoadYAMLFile("../../testdata/arch.yaml")
	if err != nil {
		t.Fatalf("LoadYAMLFile: %v", err)
	}

	file, err := os.Open("../../testdata/raw_hazard.asm")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer file.Close()

	prog, err := program.Parse(file, machine, program.Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	engine, err := scoreboard.New(machine, prog, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	trace, err := engine.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	ldPC, addPC := 0, 4
	ldWrite := statusAt(t, trace, ldPC, arch.WriteResult)
	addRead := statusAt(t, trace, addPC, arch.ReadOperands)
	if addRead < ldWrite+1 {
		t.Fatalf("RAW hazard not respected: ADD.D read_operands=%d, L.D write_result=%d", addRead, ldWrite)
	}
}

func TestIntegrationMixedHazardsAgainstDefaultArchitecture(t *testing.T) {
	machine, err := arch.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}

	file, err := os.Open("../../testdata/mixed_hazards.asm")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer file.Close()

	prog, err := program.Parse(file, machine, program.Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	engine, err := scoreboard.New(machine, prog, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	trace, err := engine.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// L.D F0,0(R1); MUL.D F4,F0,F2; SUB.D F8,F0,F6; DIV.D F0,F10,F12; ADD.D F6,F0,F2
	ldPC, mulPC, subPC, divPC, addPC := 0, 4, 8, 12, 16

	// WAW: DIV.D's dest F0 collides with L.D's dest F0.
	ldWrite := statusAt(t, trace, ldPC, arch.WriteResult)
	divIssue := statusAt(t, trace, divPC, arch.Issue)
	if divIssue <= ldWrite {
		t.Fatalf("WAW hazard not respected: DIV.D issue=%d, L.D write_result=%d", divIssue, ldWrite)
	}

	// WAR: MUL.D and SUB.D both read F0 before DIV.D overwrites it.
	divWrite := statusAt(t, trace, divPC, arch.WriteResult)
	mulRead := statusAt(t, trace, mulPC, arch.ReadOperands)
	subRead := statusAt(t, trace, subPC, arch.ReadOperands)
	if mulRead > divWrite {
		t.Fatalf("WAR hazard not respected: MUL.D read_operands=%d after DIV.D write_result=%d", mulRead, divWrite)
	}
	if subRead > divWrite {
		t.Fatalf("WAR hazard not respected: SUB.D read_operands=%d after DIV.D write_result=%d", subRead, divWrite)
	}

	// RAW: ADD.D reads F0, produced by DIV.D.
	addRead := statusAt(t, trace, addPC, arch.ReadOperands)
	if addRead < divWrite+1 {
		t.Fatalf("RAW hazard not respected: ADD.D read_operands=%d, DIV.D write_result=%d", addRead, divWrite)
	}

	// Structural: SUB.D and ADD.D share float_add_sub (quantity 1, default
	// architecture), so ADD.D cannot issue before SUB.D frees the replica.
	subWrite := statusAt(t, trace, subPC, arch.WriteResult)
	addIssue := statusAt(t, trace, addPC, arch.Issue)
	if addIssue <= subWrite {
		t.Fatalf("structural hazard not respected: ADD.D issue=%d, SUB.D write_result=%d", addIssue, subWrite)
	}
}
