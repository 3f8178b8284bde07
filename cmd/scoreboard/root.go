package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/FelSiq/scoreboarding-for-dynamic-instruction-scheduling/internal/arch"
	"github.com/FelSiq/scoreboarding-for-dynamic-instruction-scheduling/internal/program"
	"github.com/FelSiq/scoreboarding-for-dynamic-instruction-scheduling/internal/render"
	"github.com/FelSiq/scoreboarding-for-dynamic-instruction-scheduling/internal/scoreboard"
)

type flags struct {
	checkReg  bool
	noGUI     bool
	complete  bool
	noColor   bool
	noUFStage bool
	clockStep int
	archFile  string
}

// exitError carries the process exit code a failure should produce, so that
// the code computing it (runCLI) never has to call os.Exit itself and stays
// testable in-process.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// newRootCmd builds the root command. The returned *bool is flipped to true
// if and only if cobra's help handling fires (--help or -h), since that path returns a nil error from cmd.Execute() and
// would otherwise be indistinguishable from success.
func newRootCmd() (*cobra.Command, *bool) {
	f := &flags{}
	helpShown := new(bool)

	cmd := &cobra.Command{
		Use:           "scoreboard <source_code_filepath>",
		Short:         "Simulate a CDC 6600 scoreboard running a MIPS-style assembly program",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("clockstep") && f.clockStep <= 0 {
				return &exitError{code: 2, err: errors.New("scoreboard: --clockstep requires a positive integer argument")}
			}
			return run(args[0], f)
		},
	}
	cmd.SetHelpFunc(func(c *cobra.Command, args []string) {
		*helpShown = true
		printUsage(c)
	})

	flagset := cmd.Flags()
	flagset.BoolVar(&f.checkReg, "checkreg", false, "reject unknown register names during parsing")
	flagset.BoolVar(&f.noGUI, "nogui", false, "textual output (currently the only mode)")
	flagset.BoolVar(&f.complete, "complete", false, "emit the per-cycle full trace instead of only the final summary")
	flagset.BoolVar(&f.noColor, "nocolor", false, "suppress terminal color codes")
	flagset.BoolVar(&f.noUFStage, "noufstage", false, "disable the update_flags fifth stage (four-stage compatibility mode)")
	flagset.IntVar(&f.clockStep, "clockstep", 0, "in full-trace mode, pause for confirmation every N cycles (N>=1)")
	flagset.StringVar(&f.archFile, "arch", "", "path to a YAML machine-description override (default: the embedded configuration)")

	return cmd, helpShown
}

func printUsage(cmd *cobra.Command) {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] <source_code_filepath>\n\n", cmd.CommandPath())
	fmt.Fprintln(os.Stderr, cmd.Flags().FlagUsages())
}

// runCLI parses args against the root command and returns the process exit
// code, without calling os.Exit itself, so tests can drive the full
// cmd.Execute() path and assert on the result directly.
func runCLI(args []string) int {
	cmd, helpShown := newRootCmd()
	cmd.SetArgs(args)

	err := cmd.Execute()
	if *helpShown {
		return 1
	}
	if err == nil {
		return 0
	}

	var ee *exitError
	if errors.As(err, &ee) {
		fmt.Fprintln(os.Stderr, ee.err)
		return ee.code
	}
	if isMissingFlagValueErr(err, "clockstep") {
		fmt.Fprintln(os.Stderr, "scoreboard: --clockstep requires a positive integer argument")
		return 2
	}

	fmt.Fprintln(os.Stderr, err)
	printUsage(cmd)
	return 1
}

// isMissingFlagValueErr matches pflag's "flag needs an argument: --name"
// parse error, which is raised inside cmd.Execute() before RunE ever runs.
func isMissingFlagValueErr(err error, name string) bool {
	msg := err.Error()
	return strings.Contains(msg, "flag needs an argument") && strings.Contains(msg, name)
}

func run(path string, f *flags) error {
	machine, err := loadArchitecture(f.archFile)
	if err != nil {
		log.WithError(err).Error("failed to load machine description")
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		log.WithError(err).Error("failed to open source file")
		return err
	}
	defer file.Close()

	prog, err := program.Parse(file, machine, program.Options{CheckRegisters: f.checkReg})
	if err != nil {
		log.WithError(err).Error("failed to parse program")
		return err
	}

	engine, err := scoreboard.New(machine, prog, !f.noUFStage)
	if err != nil {
		log.WithError(err).Error("failed to build scoreboard engine")
		return err
	}

	trace, err := engine.Run()
	if err != nil {
		log.WithError(err).Error("simulation failed")
		return err
	}

	printer := render.NewPrinter(os.Stdout, f.noColor || !isTerminal(os.Stdout))
	if !f.complete {
		printer.Summary(trace)
		return nil
	}

	cycles := trace.RenderCycles()
	for i, c := range cycles {
		isFinal := i == len(cycles)-1
		printer.Full(trace, c, isFinal)
		if f.clockStep > 0 && !isFinal && (i+1)%f.clockStep == 0 {
			waitForKeypress()
		}
	}
	return nil
}

func loadArchitecture(path string) (*arch.Architecture, error) {
	if path == "" {
		return arch.Default()
	}
	return arch.LoadYAMLFile(path)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// waitForKeypress pauses --clockstep's cycle stream for a single keypress.
func waitForKeypress() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return
	}
	defer term.Restore(fd, state)

	fmt.Fprint(os.Stderr, "-- press any key to continue --")
	buf := make([]byte, 1)
	os.Stdin.Read(buf)
	fmt.Fprint(os.Stderr, "\r\n")
}
