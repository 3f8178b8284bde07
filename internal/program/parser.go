package program

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/FelSiq/scoreboarding-for-dynamic-instruction-scheduling/internal/arch"
)

// the three per-instruction-type grammars from SPEC_FULL.md §4.2, ported
// verbatim from original_source/modules/readfile.py's three re.compile
// VERBOSE patterns.
var (
	rGrammar = regexp.MustCompile(`^(\S+)\s+(\S+)\s*,\s*(\S+)\s*,\s*(\S+)\s*$`)
	iGrammar = regexp.MustCompile(`^(\S+)\s+(\S+)\s*,\s*([-+0-9]+)\s*\(\s*(\S+)\s*\)\s*$`)
	// the two-source I-type variant from §9(c): label rd, imm(rs), rt
	iGrammarTwoSource = regexp.MustCompile(`^(\S+)\s+(\S+)\s*,\s*([-+0-9]+)\s*\(\s*(\S+)\s*\)\s*,\s*(\S+)\s*$`)
	jGrammar          = regexp.MustCompile(`^(\S+)\s+(\S+)\s*$`)
)

// ParseError reports a failure with the line number and computed PC of the
// offending instruction, per SPEC_FULL.md §7.
type ParseError struct {
	Line int
	PC   int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d (pc %d): %s", e.Line, e.PC, e.Msg)
}

// Options controls optional parser-level validation.
type Options struct {
	CheckRegisters bool // --checkreg
}

// Parse reads an assembly source from r and produces a Program against a.
// Lines are stripped of everything from '#' onward; blank or pure-comment
// lines are skipped and do not consume a PC slot.
func Parse(r io.Reader, a *arch.Architecture, opts Options) (*Program, error) {
	scanner := bufio.NewScanner(r)
	prog := &Program{WordSize: a.WordSize}

	lineNo := 0
	pc := 0
	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		inst, err := parseLine(line, a, opts, lineNo, pc)
		if err != nil {
			return nil, err
		}
		inst.PC = pc
		prog.Instructions = append(prog.Instructions, inst)
		pc += a.WordSize
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("program: reading source: %w", err)
	}

	prog.Size = len(prog.Instructions) * a.WordSize
	return prog, nil
}

func stripComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		return line[:idx]
	}
	return line
}

func parseLine(line string, a *arch.Architecture, opts Options, lineNo, pc int) (Instruction, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Instruction{}, &ParseError{Line: lineNo, PC: pc, Msg: "empty instruction"}
	}
	opcode := fields[0]

	def, ok := a.Lookup(opcode)
	if !ok {
		return Instruction{}, &ParseError{Line: lineNo, PC: pc, Msg: fmt.Sprintf("unknown opcode %q", opcode)}
	}

	unit, ok := a.Unit(def.FunctionalUnit)
	if !ok {
		return Instruction{}, &ParseError{Line: lineNo, PC: pc, Msg: fmt.Sprintf("opcode %q references unknown functional unit %q", opcode, def.FunctionalUnit)}
	}

	inst := Instruction{
		Line:           lineNo,
		Label:          opcode,
		FunctionalUnit: unit.Name,
		Type:           def.Type,
		AdditionalCost: a.AdditionalCost(opcode),
	}

	switch def.Type {
	case arch.TypeR:
		m := rGrammar.FindStringSubmatch(line)
		if m == nil {
			return Instruction{}, &ParseError{Line: lineNo, PC: pc, Msg: fmt.Sprintf("%q does not match R-type grammar 'label rd, rs, rt'", line)}
		}
		inst.RegDest, inst.RegSourceJ, inst.RegSourceK = m[2], m[3], m[4]

	case arch.TypeI:
		if m := iGrammarTwoSource.FindStringSubmatch(line); m != nil {
			imm, err := strconv.Atoi(m[3])
			if err != nil {
				return Instruction{}, &ParseError{Line: lineNo, PC: pc, Msg: fmt.Sprintf("invalid immediate %q", m[3])}
			}
			inst.RegDest, inst.Immediate, inst.RegSourceJ, inst.RegSourceK = m[2], imm, m[4], m[5]
			break
		}
		m := iGrammar.FindStringSubmatch(line)
		if m == nil {
			return Instruction{}, &ParseError{Line: lineNo, PC: pc, Msg: fmt.Sprintf("%q does not match I-type grammar 'label rd, imm(rs)'", line)}
		}
		imm, err := strconv.Atoi(m[3])
		if err != nil {
			return Instruction{}, &ParseError{Line: lineNo, PC: pc, Msg: fmt.Sprintf("invalid immediate %q", m[3])}
		}
		inst.RegDest, inst.Immediate, inst.RegSourceJ = m[2], imm, m[4]

	case arch.TypeJ:
		m := jGrammar.FindStringSubmatch(line)
		if m == nil {
			return Instruction{}, &ParseError{Line: lineNo, PC: pc, Msg: fmt.Sprintf("%q does not match J-type grammar 'label jump_label'", line)}
		}
		inst.JumpLabel = m[2]

	default:
		return Instruction{}, &ParseError{Line: lineNo, PC: pc, Msg: fmt.Sprintf("opcode %q has unknown instruction type %q", opcode, def.Type)}
	}

	if opts.CheckRegisters {
		for _, reg := range []string{inst.RegDest, inst.RegSourceJ, inst.RegSourceK} {
			if reg == "" {
				continue
			}
			if !a.HasRegister(reg) {
				return Instruction{}, &ParseError{Line: lineNo, PC: pc, Msg: fmt.Sprintf("unknown register %q", reg)}
			}
		}
	}

	return inst, nil
}
