package scoreboard

import (
	"strings"
	"testing"

	"github.com/FelSiq/scoreboarding-for-dynamic-instruction-scheduling/internal/arch"
	"github.com/FelSiq/scoreboarding-for-dynamic-instruction-scheduling/internal/program"
)

func mustParse(t *testing.T, a *arch.Architecture, src string) *program.Program {
	t.Helper()
	prog, err := program.Parse(strings.NewReader(src), a, program.Options{})
	if err != nil {
		t.Fatalf("program.Parse: %v", err)
	}
	return prog
}

func mustRun(t *testing.T, a *arch.Architecture, prog *program.Program, fiveStage bool) *Trace {
	t.Helper()
	e, err := New(a, prog, fiveStage)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	trace, err := e.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return trace
}

// scenario 1 from SPEC_FULL.md §8: a single L.D.
func TestScenarioSingleLoad(t *testing.T) {
	a, err := arch.Default()
	if err != nil {
		t.Fatal(err)
	}
	prog := mustParse(t, a, "L.D F0, 0(R1)\n")
	trace := mustRun(t, a, prog, true)

	want := map[arch.Stage]int{
		arch.Issue:        1,
		arch.ReadOperands: 3,
		arch.Execution:    5,
		arch.WriteResult:  7,
		arch.UpdateFlags:  8,
	}
	got := trace.InstStatus[0]
	for stage, cycle := range want {
		if got[stage] != cycle {
			t.Errorf("stage %s completed at %d, want %d (full: %+v)", stage, got[stage], cycle, got)
		}
	}
}

// scenario 3 from SPEC_FULL.md §8: RAW hazard stalls ADD.D in read_operands
// until L.D's update_flags propagates r_j.
func TestScenarioRAW(t *testing.T) {
	a, err := arch.Default()
	if err != nil {
		t.Fatal(err)
	}
	prog := mustParse(t, a, "L.D F0, 0(R1)\nADD.D F4, F0, F2\n")
	trace := mustRun(t, a, prog, true)

	addPC := prog.Instructions[1].PC
	want := map[arch.Stage]int{
		arch.Issue:        2,
		arch.ReadOperands: 9,
		arch.Execution:    12,
		arch.WriteResult:  14,
		arch.UpdateFlags:  15,
	}
	got := trace.InstStatus[addPC]
	for stage, cycle := range want {
		if got[stage] != cycle {
			t.Errorf("ADD.D stage %s completed at %d, want %d (full: %+v)", stage, got[stage], cycle, got)
		}
	}
}

// scenario 4: WAR. SUB.D must not clear F8 (write_result) before ADD.D has
// read it in read_operands.
func TestScenarioWAR(t *testing.T) {
	a, err := arch.Default()
	if err != nil {
		t.Fatal(err)
	}
	prog := mustParse(t, a, "DIV.D F0, F2, F4\nADD.D F6, F0, F8\nSUB.D F8, F10, F14\n")
	trace := mustRun(t, a, prog, true)

	addPC := prog.Instructions[1].PC
	subPC := prog.Instructions[2].PC
	addRead := trace.InstStatus[addPC][arch.ReadOperands]
	subWrite := trace.InstStatus[subPC][arch.WriteResult]
	if addRead > subWrite {
		t.Errorf("WAR violated: ADD.D read_operands=%d happened after SUB.D write_result=%d", addRead, subWrite)
	}
}

// scenario 5: WAW. ADD.D cannot issue until MUL.D's write_result clears F0.
func TestScenarioWAW(t *testing.T) {
	a, err := arch.Default()
	if err != nil {
		t.Fatal(err)
	}
	prog := mustParse(t, a, "MUL.D F0, F2, F4\nADD.D F0, F6, F8\n")
	trace := mustRun(t, a, prog, true)

	mulPC := prog.Instructions[0].PC
	addPC := prog.Instructions[1].PC
	mulWrite := trace.InstStatus[mulPC][arch.WriteResult]
	addIssue := trace.InstStatus[addPC][arch.Issue]
	if addIssue <= mulWrite {
		t.Errorf("WAW violated: ADD.D issued at %d, want strictly after MUL.D write_result=%d", addIssue, mulWrite)
	}
}

// scenario 6: structural hazard. Three MUL.D against a float_mult with
// quantity=2: the third stalls at issue until a replica frees.
func TestScenarioStructuralHazard(t *testing.T) {
	a, err := arch.Default()
	if err != nil {
		t.Fatal(err)
	}
	prog := mustParse(t, a, "MUL.D F0, F2, F4\nMUL.D F6, F8, F10\nMUL.D F12, F14, F16\n")
	trace := mustRun(t, a, prog, true)

	firstPC := prog.Instructions[0].PC
	thirdPC := prog.Instructions[2].PC
	firstWrite := trace.InstStatus[firstPC][arch.WriteResult]
	thirdIssue := trace.InstStatus[thirdPC][arch.Issue]
	if thirdIssue < firstWrite {
		t.Errorf("structural hazard violated: third MUL.D issued at %d before any replica freed (first write_result=%d)", thirdIssue, firstWrite)
	}
}

// General invariants from SPEC_FULL.md §8, checked against a mixed program
// exercising every hazard kind at once.
func TestInvariants(t *testing.T) {
	a, err := arch.Default()
	if err != nil {
		t.Fatal(err)
	}
	prog := mustParse(t, a, strings.Join([]string{
		"L.D F0, 0(R1)",
		"MUL.D F4, F0, F2",
		"SUB.D F8, F0, F6",
		"DIV.D F0, F10, F12",
		"ADD.D F6, F0, F2",
	}, "\n")+"\n")
	trace := mustRun(t, a, prog, true)

	stages := arch.Stages(true)
	for _, inst := range prog.Instructions {
		status := trace.InstStatus[inst.PC]
		prevCycle := -1
		for _, s := range stages {
			cycle, ok := status[s]
			if !ok {
				t.Fatalf("instruction at pc %d never completed stage %s", inst.PC, s)
			}
			if cycle <= prevCycle {
				t.Errorf("pc %d: stage %s completed at %d, not strictly after previous stage's %d", inst.PC, s, cycle, prevCycle)
			}
			prevCycle = cycle
		}
	}

	for i := 0; i < len(prog.Instructions)-1; i++ {
		a, b := prog.Instructions[i], prog.Instructions[i+1]
		if trace.InstStatus[a.PC][arch.Issue] > trace.InstStatus[b.PC][arch.Issue] {
			t.Errorf("issue order violated: pc %d issued after pc %d", a.PC, b.PC)
		}
	}

	unitBusyCount := make(map[string]map[int]int)
	for _, unit := range trace.Units {
		quantity := trace.UnitQuantity[unit]
		for clock := 1; clock <= trace.FinalClock; clock++ {
			busy := 0
			for idx := 0; idx < quantity; idx++ {
				if trace.ReplicaStateAt(unit, idx, clock).Busy {
					busy++
				}
			}
			if busy > quantity {
				t.Errorf("unit %s: %d busy replicas at clock %d exceeds quantity %d", unit, busy, clock, quantity)
			}
			if unitBusyCount[unit] == nil {
				unitBusyCount[unit] = make(map[int]int)
			}
			unitBusyCount[unit][clock] = busy
		}
	}
}

func TestFourStageCompatibilityModeOmitsUpdateFlags(t *testing.T) {
	a, err := arch.Default()
	if err != nil {
		t.Fatal(err)
	}
	prog := mustParse(t, a, "L.D F0, 0(R1)\n")
	trace := mustRun(t, a, prog, false)

	if _, ok := trace.InstStatus[0][arch.UpdateFlags]; ok {
		t.Error("four-stage compatibility mode must not record an update_flags completion")
	}
	if _, ok := trace.InstStatus[0][arch.WriteResult]; !ok {
		t.Error("expected write_result to complete in four-stage mode")
	}
}

func TestNewRejectsMissingInputs(t *testing.T) {
	a, err := arch.Default()
	if err != nil {
		t.Fatal(err)
	}
	prog := mustParse(t, a, "L.D F0, 0(R1)\n")

	if _, err := New(nil, prog, true); err == nil {
		t.Error("expected error for nil architecture")
	}
	if _, err := New(a, nil, true); err == nil {
		t.Error("expected error for nil program")
	}
}
