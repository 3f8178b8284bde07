package scoreboard

import (
	"fmt"
	"sort"

	"github.com/FelSiq/scoreboarding-for-dynamic-instruction-scheduling/internal/arch"
	"github.com/FelSiq/scoreboarding-for-dynamic-instruction-scheduling/internal/program"
)

// replicaRuntime is one functional-unit replica's live state plus its
// append-only change history.
type replicaRuntime struct {
	unit    string
	index   int
	current ReplicaState
	history []ReplicaHistoryEntry
}

// instRuntime tracks an issued-but-not-yet-retired instruction's progress
// through the configured pipeline stages (SPEC_FULL.md §4.3.8).
type instRuntime struct {
	pc       int
	stageIdx int // index into Engine.stages of the next stage to attempt
	replica  ReplicaRef
	minCycle int // earliest cycle the current stage may fire
}

// Engine is the discrete-event scoreboard simulator. It owns every piece
// of mutable scoreboard state for the duration of Run and is not safe for
// concurrent use (SPEC_FULL.md §5: single-threaded and deterministic).
type Engine struct {
	arch      *arch.Architecture
	prog      *program.Program
	fiveStage bool
	stages    []arch.Stage

	units    []string // sorted unit names that actually appear in the program's instructions
	replicas map[string][]*replicaRuntime

	regCurrent map[string]ReplicaRef
	regHistory map[string][]RegHistoryEntry

	instStatus map[int]map[arch.Stage]int
	active     map[int]*instRuntime

	clock                int
	nextIssuePC           int
	lastIssueCompletion   int
	globalUpdateTimers    []int
}

// New builds an Engine for the given architecture and program. Per
// SPEC_FULL.md §4.3.9, the engine never runs without both loaded; New
// returns an error rather than let Run discover this later.
func New(a *arch.Architecture, prog *program.Program, fiveStage bool) (*Engine, error) {
	if a == nil {
		return nil, fmt.Errorf("scoreboard: cannot build engine without a loaded architecture")
	}
	if prog == nil {
		return nil, fmt.Errorf("scoreboard: cannot build engine without a loaded program")
	}

	e := &Engine{
		arch:       a,
		prog:       prog,
		fiveStage:  fiveStage,
		stages:     arch.Stages(fiveStage),
		replicas:   make(map[string][]*replicaRuntime),
		regCurrent: make(map[string]ReplicaRef),
		regHistory: make(map[string][]RegHistoryEntry),
		instStatus: make(map[int]map[arch.Stage]int),
		active:     make(map[int]*instRuntime),
	}

	unitSet := make(map[string]struct{})
	for _, inst := range prog.Instructions {
		unitSet[inst.FunctionalUnit] = struct{}{}
	}
	for name := range unitSet {
		e.units = append(e.units, name)
	}
	sort.Strings(e.units)

	for _, name := range e.units {
		fu, ok := a.Unit(name)
		if !ok {
			return nil, fmt.Errorf("scoreboard: program references unknown functional unit %q", name)
		}
		runtimes := make([]*replicaRuntime, fu.Quantity)
		for i := 0; i < fu.Quantity; i++ {
			runtimes[i] = &replicaRuntime{unit: name, index: i, current: idleReplicaState()}
		}
		e.replicas[name] = runtimes
	}

	for reg := range a.Registers {
		e.regCurrent[reg] = ReplicaRef{}
	}

	return e, nil
}

// Run executes the scoreboard to completion and returns the immutable
// trace. It terminates once every instruction has issued and every issued
// instruction has retired past its last configured stage.
func (e *Engine) Run() (*Trace, error) {
	for !e.done() {
		e.clock++
		patches, regPatch, changed := e.stepCycle()
		e.commit(patches, regPatch, changed)
	}
	return e.buildTrace(), nil
}

func (e *Engine) done() bool {
	return e.nextIssuePC >= e.prog.Size && len(e.active) == 0
}

// stepCycle evaluates every admissible action for the current clock
// against the pre-cycle (committed) snapshot and stages their mutations;
// nothing here is applied to live state until commit. This is the heart
// of SPEC_FULL.md §4.3.5's two-phase commit.
func (e *Engine) stepCycle() (map[ReplicaRef]*replicaPatch, map[string]ReplicaRef, bool) {
	patches := make(map[ReplicaRef]*replicaPatch)
	regPatch := make(map[string]ReplicaRef)
	changed := false

	pcs := make([]int, 0, len(e.active)+1)
	for pc := range e.active {
		pcs = append(pcs, pc)
	}
	sort.Ints(pcs)

	for _, pc := range pcs {
		ir := e.active[pc]
		stage := e.stages[ir.stageIdx]
		if e.clock < ir.minCycle {
			continue
		}
		if !e.checkReady(pc, ir, stage) {
			continue
		}
		e.bookkeep(pc, ir, stage, patches, regPatch)
		e.instStatus[pc][stage] = e.clock
		changed = true
		e.advance(ir, stage)
	}

	// In-order issue: only the single next unissued PC is ever attempted.
	if e.nextIssuePC < e.prog.Size {
		inst, ok := e.prog.At(e.nextIssuePC)
		if !ok {
			return patches, regPatch, changed
		}
		minCycle := e.lastIssueCompletion + 1
		if e.clock >= minCycle && e.checkIssueReady(inst) {
			ir := &instRuntime{pc: inst.PC, stageIdx: 0}
			e.instStatus[inst.PC] = make(map[arch.Stage]int)
			e.bookkeep(inst.PC, ir, arch.Issue, patches, regPatch)
			e.instStatus[inst.PC][arch.Issue] = e.clock
			changed = true
			e.lastIssueCompletion = e.clock
			e.nextIssuePC += e.arch.WordSize
			e.advance(ir, arch.Issue)
		}
	}

	return patches, regPatch, changed
}

func (e *Engine) advance(ir *instRuntime, fired arch.Stage) {
	ir.stageIdx++
	if ir.stageIdx >= len(e.stages) {
		delete(e.active, ir.pc)
		return
	}
	next := e.stages[ir.stageIdx]
	ir.minCycle = e.instStatus[ir.pc][fired] + 1 + e.stageCost(ir.pc, next)
	e.active[ir.pc] = ir
}

func (e *Engine) stageCost(pc int, s arch.Stage) int {
	switch s {
	case arch.Issue, arch.UpdateFlags:
		return 0
	case arch.ReadOperands:
		return e.arch.StageDelay[arch.ReadOperands]
	case arch.WriteResult:
		return e.arch.StageDelay[arch.WriteResult]
	case arch.Execution:
		inst, _ := e.prog.At(pc)
		fu, _ := e.arch.Unit(inst.FunctionalUnit)
		return fu.ClockCycles + inst.AdditionalCost
	}
	return 0
}

// checkIssueReady implements the issue hazard gate: a free replica of the
// required unit, and (when the instruction has a destination) no in-flight
// producer for it.
func (e *Engine) checkIssueReady(inst program.Instruction) bool {
	if e.freeReplicaIndex(inst.FunctionalUnit) < 0 {
		return false
	}
	if inst.HasDest() {
		if !e.regCurrent[inst.RegDest].IsZero() {
			return false
		}
	}
	return true
}

func (e *Engine) freeReplicaIndex(unit string) int {
	for _, r := range e.replicas[unit] {
		if !r.current.Busy {
			return r.index
		}
	}
	return -1
}

func (e *Engine) checkReady(pc int, ir *instRuntime, stage arch.Stage) bool {
	switch stage {
	case arch.ReadOperands:
		rt := e.replicaRuntime(ir.replica)
		return rt.current.RJ && rt.current.RK
	case arch.Execution:
		return true
	case arch.WriteResult:
		rt := e.replicaRuntime(ir.replica)
		fi := rt.current.FI
		if fi == "" {
			return true
		}
		for _, units := range e.replicas {
			for _, x := range units {
				if x == rt || !x.current.Busy {
					continue
				}
				if x.current.FJ == fi && x.current.RJ {
					return false
				}
				if x.current.FK == fi && x.current.RK {
					return false
				}
			}
		}
		return true
	case arch.UpdateFlags:
		return true
	}
	return false
}

func (e *Engine) replicaRuntime(ref ReplicaRef) *replicaRuntime {
	for _, r := range e.replicas[ref.Unit] {
		if r.index == ref.Index {
			return r
		}
	}
	return nil
}

// bookkeep stages the mutation for stage on pc, per SPEC_FULL.md §4.3.6.
func (e *Engine) bookkeep(pc int, ir *instRuntime, stage arch.Stage, patches map[ReplicaRef]*replicaPatch, regPatch map[string]ReplicaRef) {
	switch stage {
	case arch.Issue:
		inst, _ := e.prog.At(pc)
		idx := e.freeReplicaIndex(inst.FunctionalUnit)
		ref := ReplicaRef{Unit: inst.FunctionalUnit, Index: idx}
		ir.replica = ref

		fi, fj, fk := "", "", ""
		if inst.HasDest() {
			fi = inst.RegDest
		}
		switch inst.Type {
		case arch.TypeR:
			fj, fk = inst.RegSourceJ, inst.RegSourceK
		case arch.TypeI:
			fj = inst.RegSourceJ
			fk = inst.RegSourceK // empty unless the two-source I-type variant
		}

		qj, qk := ReplicaRef{}, ReplicaRef{}
		rj, rk := true, true
		if fj != "" {
			qj = e.regCurrent[fj]
			rj = qj.IsZero()
		}
		if fk != "" {
			qk = e.regCurrent[fk]
			rk = qk.IsZero()
		}

		p := patch(patches, ref)
		p.busy = boolPtr(true)
		p.op = intPtr(pc)
		p.fi, p.fj, p.fk = strPtr(fi), strPtr(fj), strPtr(fk)
		p.qj, p.qk = refPtr(qj), refPtr(qk)
		p.rj, p.rk = boolPtr(rj), boolPtr(rk)
		if fi != "" {
			regPatch[fi] = ref
			p.changedRegisters = append(p.changedRegisters, fi)
		}

	case arch.ReadOperands:
		p := patch(patches, ir.replica)
		p.rj, p.rk = boolPtr(false), boolPtr(false)
		p.qj, p.qk = refPtr(ReplicaRef{}), refPtr(ReplicaRef{})

	case arch.Execution:
		// no state mutation; the stage exists so later stages gate on it.

	case arch.WriteResult:
		rt := e.replicaRuntime(ir.replica)
		p := patch(patches, ir.replica)
		p.busy = boolPtr(false)
		if rt.current.FI != "" {
			regPatch[rt.current.FI] = ReplicaRef{}
			p.changedRegisters = append(p.changedRegisters, rt.current.FI)
		}
		if !e.fiveStage {
			e.propagateFlags(ir.replica, patches)
		}

	case arch.UpdateFlags:
		e.propagateFlags(ir.replica, patches)
	}
}

// propagateFlags stages r_j/r_k flips on every replica still waiting on
// ref's result (SPEC_FULL.md §4.3.6's update_flags action).
func (e *Engine) propagateFlags(ref ReplicaRef, patches map[ReplicaRef]*replicaPatch) {
	for _, units := range e.replicas {
		for _, x := range units {
			if !x.current.Busy {
				continue
			}
			xref := ReplicaRef{Unit: x.unit, Index: x.index}
			if x.current.QJ == ref {
				patch(patches, xref).rj = boolPtr(true)
			}
			if x.current.QK == ref {
				patch(patches, xref).rk = boolPtr(true)
			}
		}
	}
}

func patch(patches map[ReplicaRef]*replicaPatch, ref ReplicaRef) *replicaPatch {
	p, ok := patches[ref]
	if !ok {
		p = &replicaPatch{}
		patches[ref] = p
	}
	return p
}

// commit applies every staged mutation atomically, in deterministic order
// (unit name lexicographic, then replica index ascending, per SPEC_FULL.md
// §9), and appends the resulting history entries.
func (e *Engine) commit(patches map[ReplicaRef]*replicaPatch, regPatch map[string]ReplicaRef, changed bool) {
	refs := make([]ReplicaRef, 0, len(patches))
	for ref := range patches {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Unit != refs[j].Unit {
			return refs[i].Unit < refs[j].Unit
		}
		return refs[i].Index < refs[j].Index
	})

	for _, ref := range refs {
		p := patches[ref]
		rt := e.replicaRuntime(ref)
		var fields []Field
		if p.busy != nil {
			rt.current.Busy = *p.busy
			fields = append(fields, FieldBusy)
		}
		if p.op != nil {
			rt.current.Op = *p.op
			fields = append(fields, FieldOp)
		}
		if p.fi != nil {
			rt.current.FI = *p.fi
			fields = append(fields, FieldFI)
		}
		if p.fj != nil {
			rt.current.FJ = *p.fj
			fields = append(fields, FieldFJ)
		}
		if p.fk != nil {
			rt.current.FK = *p.fk
			fields = append(fields, FieldFK)
		}
		if p.qj != nil {
			rt.current.QJ = *p.qj
			fields = append(fields, FieldQJ)
		}
		if p.qk != nil {
			rt.current.QK = *p.qk
			fields = append(fields, FieldQK)
		}
		if p.rj != nil {
			rt.current.RJ = *p.rj
			fields = append(fields, FieldRJ)
		}
		if p.rk != nil {
			rt.current.RK = *p.rk
			fields = append(fields, FieldRK)
		}
		if len(fields) == 0 && len(p.changedRegisters) == 0 {
			continue
		}
		rt.history = append(rt.history, ReplicaHistoryEntry{
			Clock:            e.clock,
			State:            rt.current,
			Changed:          fields,
			ChangedRegisters: p.changedRegisters,
		})
	}

	regs := make([]string, 0, len(regPatch))
	for reg := range regPatch {
		regs = append(regs, reg)
	}
	sort.Strings(regs)
	for _, reg := range regs {
		e.regCurrent[reg] = regPatch[reg]
		e.regHistory[reg] = append(e.regHistory[reg], RegHistoryEntry{Clock: e.clock, Producer: regPatch[reg]})
	}

	if changed {
		e.globalUpdateTimers = append(e.globalUpdateTimers, e.clock)
	}
}
