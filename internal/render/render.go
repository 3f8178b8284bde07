// Package render prints a scoreboard trace as the three tables described
// in SPEC_FULL.md §4.4: instruction status, per-replica functional-unit
// status, and register-result status.
package render

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/FelSiq/scoreboarding-for-dynamic-instruction-scheduling/internal/arch"
	"github.com/FelSiq/scoreboarding-for-dynamic-instruction-scheduling/internal/scoreboard"
)

// maxRegisterRows is the register-set size above which the register-result
// table lists only registers that have a producer (or changed) at the
// rendered cycle, collapsing the rest into a summary row that mirrors
// original_source/modules/interface.py's "(More N omitted registers)" line.
// If more than maxRegisterRows registers have a producer, every register is
// listed and no summary row is printed.
const maxRegisterRows = 16

// Printer renders a Trace to an io.Writer. It owns the color decision so
// that --nocolor only needs to be threaded through once.
type Printer struct {
	Out      io.Writer
	NoColor  bool
	highlight *color.Color
}

// NewPrinter builds a Printer; when noColor is true, highlighting is a
// no-op so piped output stays plain text.
func NewPrinter(out io.Writer, noColor bool) *Printer {
	p := &Printer{Out: out, NoColor: noColor}
	p.highlight = color.New(color.FgGreen, color.Bold)
	if noColor {
		p.highlight.DisableColor()
	}
	return p
}

func (p *Printer) cell(text string, changed bool) string {
	if !changed {
		return text
	}
	return p.highlight.Sprint(text)
}

// Summary prints the instruction-status table once, with every
// instruction's final stage-completion cycles.
func (p *Printer) Summary(trace *scoreboard.Trace) {
	p.instStatusTable(trace, trace.FinalClock+1, false)
}

// Full prints one block per cycle of interest: a header line, then the
// three tables, with cells that changed exactly at that cycle highlighted.
// clockStep, when > 0, is handled by the caller (cmd/scoreboard), which
// calls Full once per block and pauses between calls.
func (p *Printer) Full(trace *scoreboard.Trace, clock int, isFinal bool) {
	if isFinal {
		fmt.Fprintln(p.Out, "========================================")
		fmt.Fprintln(p.Out, "Final state")
	} else {
		fmt.Fprintln(p.Out, "========================================")
		fmt.Fprintf(p.Out, "State for clock cycle %d of %d total\n", clock, trace.FinalClock)
	}
	p.instStatusTable(trace, clock, !isFinal)
	p.funcUnitTable(trace, clock, !isFinal)
	p.regResultTable(trace, clock, !isFinal)
}

func (p *Printer) instStatusTable(trace *scoreboard.Trace, clock int, highlightChanges bool) {
	table := tablewriter.NewWriter(p.Out)
	header := []string{"PC", "Opcode"}
	for _, s := range trace.Stages {
		header = append(header, string(s))
	}
	table.SetHeader(header)

	for _, inst := range trace.Program.Instructions {
		row := []string{strconv.Itoa(inst.PC), inst.Label}
		status := trace.InstStatus[inst.PC]
		for _, s := range trace.Stages {
			cycle, ok := status[s]
			text := "-"
			changed := false
			if ok && cycle <= clock {
				text = strconv.Itoa(cycle)
				changed = highlightChanges && cycle == clock
			}
			row = append(row, p.cell(text, changed))
		}
		table.Append(row)
	}
	table.Render()
}

func (p *Printer) funcUnitTable(trace *scoreboard.Trace, clock int, highlightChanges bool) {
	table := tablewriter.NewWriter(p.Out)
	table.SetHeader([]string{"Unit", "Busy", "Op(PC)", "F_i", "F_j", "F_k", "Q_j", "Q_k", "R_j", "R_k"})

	for _, unit := range trace.Units {
		for idx := 0; idx < trace.UnitQuantity[unit]; idx++ {
			state := trace.ReplicaStateAt(unit, idx, clock)
			var changed map[scoreboard.Field]bool
			if highlightChanges {
				changed = trace.ChangedFieldsAt(unit, idx, clock)
			}

			op := "-"
			if state.Op >= 0 {
				op = strconv.Itoa(state.Op)
			}
			row := []string{
				fmt.Sprintf("%s_%d", unit, idx),
				p.cell(strconv.FormatBool(state.Busy), changed[scoreboard.FieldBusy]),
				p.cell(op, changed[scoreboard.FieldOp]),
				p.cell(orDash(state.FI), changed[scoreboard.FieldFI]),
				p.cell(orDash(state.FJ), changed[scoreboard.FieldFJ]),
				p.cell(orDash(state.FK), changed[scoreboard.FieldFK]),
				p.cell(refOrZero(state.QJ), changed[scoreboard.FieldQJ]),
				p.cell(refOrZero(state.QK), changed[scoreboard.FieldQK]),
				p.cell(strconv.FormatBool(state.RJ), changed[scoreboard.FieldRJ]),
				p.cell(strconv.FormatBool(state.RK), changed[scoreboard.FieldRK]),
			}
			table.Append(row)
		}
	}
	table.Render()
}

func (p *Printer) regResultTable(trace *scoreboard.Trace, clock int, highlightChanges bool) {
	table := tablewriter.NewWriter(p.Out)
	table.SetHeader([]string{"Register", "Producer"})

	var changedRegs map[string]bool
	if highlightChanges {
		changedRegs = trace.ChangedRegistersAt(clock)
	}

	regs := trace.Registers
	shown := regs
	omitted := 0
	if len(regs) > maxRegisterRows {
		nonZero := make([]string, 0, len(regs))
		for _, reg := range regs {
			if !trace.RegProducerAt(reg, clock).IsZero() || changedRegs[reg] {
				nonZero = append(nonZero, reg)
			}
		}
		if len(nonZero) <= maxRegisterRows {
			shown = nonZero
			omitted = len(regs) - len(nonZero)
		}
	}

	for _, reg := range shown {
		producer := trace.RegProducerAt(reg, clock)
		text := "-"
		if !producer.IsZero() {
			text = producer.String()
		}
		table.Append([]string{reg, p.cell(text, changedRegs[reg])})
	}
	table.Render()

	if omitted > 0 {
		fmt.Fprintf(p.Out, "(More %d omitted registers)\n", omitted)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func refOrZero(r scoreboard.ReplicaRef) string {
	if r.IsZero() {
		return "0"
	}
	return r.String()
}

// StageLabels returns the header labels for the configured stage list, for
// callers that need them outside of a table.
func StageLabels(stages []arch.Stage) []string {
	labels := make([]string, len(stages))
	for i, s := range stages {
		labels[i] = string(s)
	}
	return labels
}
