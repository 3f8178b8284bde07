package arch

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// defaultRegisters mirrors configme.py's architecture_register_set: 32
// floating-point registers and 32 general registers.
func defaultRegisters() []string {
	regs := make([]string, 0, 64)
	for i := 0; i < 32; i++ {
		regs = append(regs, fmt.Sprintf("F%d", i))
	}
	for i := 0; i < 32; i++ {
		regs = append(regs, fmt.Sprintf("R%d", i))
	}
	return regs
}

// DefaultConfig is the embedded machine description used when no
// external --arch file is given. It reproduces the classic CDC 6600
// scoreboard textbook setup that original_source/configme.py shipped:
// one integer ALU, one add/sub unit, two multipliers and a divider.
func DefaultConfig() RawConfig {
	return RawConfig{
		WordSize: 4,
		Registers: defaultRegisters(),
		FunctionalUnits: map[string]RawFunctionUnit{
			"integer_alu":    {Quantity: 1, ClockCycles: 1},
			"float_add_sub":  {Quantity: 1, ClockCycles: 2},
			"float_mult":     {Quantity: 2, ClockCycles: 10},
			"float_div":      {Quantity: 1, ClockCycles: 40},
		},
		StageDelay: map[string]int{
			"issue":         1,
			"read_operands": 1,
			"write_result":  1,
		},
		AdditionalDelay: map[string]int{},
		Instructions: map[string]RawInstruction{
			"L.D":   {FunctionalUnit: "integer_alu", InstructionType: "I"},
			"S.D":   {FunctionalUnit: "integer_alu", InstructionType: "I"},
			"ADD.D": {FunctionalUnit: "float_add_sub", InstructionType: "R"},
			"SUB.D": {FunctionalUnit: "float_add_sub", InstructionType: "R"},
			"MUL.D": {FunctionalUnit: "float_mult", InstructionType: "R"},
			"DIV.D": {FunctionalUnit: "float_div", InstructionType: "R"},
		},
	}
}

// Default builds and validates the embedded default architecture.
func Default() (*Architecture, error) {
	return Load(DefaultConfig())
}

// LoadYAMLFile reads a RawConfig from a YAML file and validates it. This
// is the additive --arch override described in SPEC_FULL.md §4.6; the
// zero-flag behavior never touches the filesystem and uses Default
// instead.
func LoadYAMLFile(path string) (*Architecture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("arch: reading %s: %w", path, err)
	}

	var cfg RawConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("arch: parsing %s: %w", path, err)
	}

	return Load(cfg)
}
