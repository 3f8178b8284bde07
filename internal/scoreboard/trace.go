package scoreboard

import (
	"sort"

	"github.com/FelSiq/scoreboarding-for-dynamic-instruction-scheduling/internal/arch"
	"github.com/FelSiq/scoreboarding-for-dynamic-instruction-scheduling/internal/program"
)

// Trace is the engine's immutable output: everything the renderer needs
// to print per-cycle tables without re-running the simulation
// (SPEC_FULL.md §4.4, §5).
type Trace struct {
	Stages  []arch.Stage
	Program *program.Program

	Units          []string
	UnitQuantity   map[string]int
	Registers      []string // every register the architecture defines, sorted
	InstStatus     map[int]map[arch.Stage]int
	ReplicaHistory map[string][]ReplicaHistoryEntry // keyed "unit_index"
	RegHistory     map[string][]RegHistoryEntry
	UpdateTimers   []int
	FinalClock     int
}

func replicaHistoryKey(unit string, index int) string {
	return ReplicaRef{Unit: unit, Index: index}.String()
}

func (e *Engine) buildTrace() *Trace {
	registers := make([]string, 0, len(e.arch.Registers))
	for reg := range e.arch.Registers {
		registers = append(registers, reg)
	}
	sort.Strings(registers)

	t := &Trace{
		Stages:         e.stages,
		Program:        e.prog,
		Units:          append([]string(nil), e.units...),
		UnitQuantity:   make(map[string]int, len(e.units)),
		Registers:      registers,
		InstStatus:     e.instStatus,
		ReplicaHistory: make(map[string][]ReplicaHistoryEntry),
		RegHistory:     e.regHistory,
		UpdateTimers:   e.globalUpdateTimers,
		FinalClock:     e.clock,
	}
	for _, unit := range e.units {
		t.UnitQuantity[unit] = len(e.replicas[unit])
		for _, rt := range e.replicas[unit] {
			t.ReplicaHistory[replicaHistoryKey(unit, rt.index)] = rt.history
		}
	}
	return t
}

// ReplicaStateAt returns the replica's bookkeeping state as committed at
// or before clock, or the idle state if the replica never changed by then.
func (t *Trace) ReplicaStateAt(unit string, index int, clock int) ReplicaState {
	history := t.ReplicaHistory[replicaHistoryKey(unit, index)]
	state := idleReplicaState()
	for _, entry := range history {
		if entry.Clock > clock {
			break
		}
		state = entry.State
	}
	return state
}

// RegProducerAt returns the register's producer as committed at or before
// clock, or the zero ReplicaRef if it was never written by then.
func (t *Trace) RegProducerAt(reg string, clock int) ReplicaRef {
	producer := ReplicaRef{}
	for _, entry := range t.RegHistory[reg] {
		if entry.Clock > clock {
			break
		}
		producer = entry.Producer
	}
	return producer
}

// ChangedFieldsAt reports which fields of (unit,index) changed exactly at
// clock, for cell-highlighting in full-trace mode.
func (t *Trace) ChangedFieldsAt(unit string, index int, clock int) map[Field]bool {
	result := make(map[Field]bool)
	for _, entry := range t.ReplicaHistory[replicaHistoryKey(unit, index)] {
		if entry.Clock == clock {
			for _, f := range entry.Changed {
				result[f] = true
			}
		}
	}
	return result
}

// ChangedRegistersAt reports which registers changed producer exactly at
// clock.
func (t *Trace) ChangedRegistersAt(clock int) map[string]bool {
	result := make(map[string]bool)
	for reg, history := range t.RegHistory {
		for _, entry := range history {
			if entry.Clock == clock {
				result[reg] = true
			}
		}
	}
	return result
}

// RenderCycles returns the list of cycles to render in full-trace mode:
// every cycle that produced a change, plus one trailing "final state"
// cycle (SPEC_FULL.md §4.4).
func (t *Trace) RenderCycles() []int {
	cycles := append([]int(nil), t.UpdateTimers...)
	sort.Ints(cycles)
	cycles = append(cycles, t.FinalClock+1)
	return cycles
}

// SortedRegisters returns every register this trace ever touched, in a
// stable order, for table rendering.
func (t *Trace) SortedRegisters() []string {
	regs := make([]string, 0, len(t.RegHistory))
	for reg := range t.RegHistory {
		regs = append(regs, reg)
	}
	sort.Strings(regs)
	return regs
}
