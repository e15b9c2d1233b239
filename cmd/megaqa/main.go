// megaqa runs the configured QA suites, gates the run on required coverage
// tags, and persists a self-contained evidence bundle.
//
// Usage:
//
//	megaqa run --mode quick
//	megaqa run --mode ci --seed 42
//	megaqa summary latest
//	megaqa diff qa-results/mega-qa/<old> latest
//
// Exit codes: 0 when every suite passed and the coverage gate held, 1 on
// failing tests, crashed tools or missing tags, 2 when configuration is
// invalid or the bundle or ledger could not be written.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dkoosis/megaqa/internal/config"
	"github.com/dkoosis/megaqa/internal/version"
	"github.com/dkoosis/megaqa/pkg/pipeline"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code, so tests can
// drive it without os.Exit.
func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return exitCode(root.ExecuteContext(ctx), stderr)
}

// globals are the flags shared by every subcommand.
type globals struct {
	configPath string
	outputDir  string
	debug      bool
	noColor    bool
	ci         bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "megaqa",
		Short:         "Run QA suites and collect a coverage-gated evidence bundle",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Version,
	}
	cmd.SetVersionTemplate("megaqa {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Path to "+config.FileName+" (default: ./"+config.FileName+")")
	pf.StringVar(&g.outputDir, "output", "", "Bundle root directory (env: MEGAQA_OUTPUT_DIR)")
	pf.BoolVar(&g.debug, "debug", false, "Enable debug logging on stderr")
	pf.BoolVar(&g.noColor, "no-color", false, "Disable colors")
	pf.BoolVar(&g.ci, "ci", false, "CI mode: no live progress, packaging on")

	cmd.AddCommand(newRunCmd(g))
	cmd.AddCommand(newPackageCmd(g))
	cmd.AddCommand(newCoverageCmd(g))
	cmd.AddCommand(newSummaryCmd(g))
	cmd.AddCommand(newDiffCmd(g))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// flags collects the global flags into config.CliFlags, marking only the
// ones the user actually passed.
func (g *globals) flags(cmd *cobra.Command) config.CliFlags {
	f := cmd.Flags()
	return config.CliFlags{
		ConfigPath: g.configPath,
		OutputDir:  g.outputDir,
		OutputSet:  f.Changed("output"),
		Debug:      g.debug,
		DebugSet:   f.Changed("debug"),
		NoColor:    g.noColor,
		NoColorSet: f.Changed("no-color"),
		CI:         g.ci,
		CISet:      f.Changed("ci"),
	}
}

// exitError carries a specific exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if code == 0 && err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCode maps a command error to the process exit code. Errors without
// an explicit code are configuration or persistence failures.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return pipeline.ExitPass
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "megaqa: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "megaqa: %v\n", err)
	return pipeline.ExitPersist
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "megaqa version %s\n", version.Version)
			fmt.Fprintf(out, "Commit: %s\n", version.CommitHash)
			fmt.Fprintf(out, "Built: %s\n", version.BuildDate)
		},
	}
}
