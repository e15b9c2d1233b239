package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkoosis/megaqa/internal/logging"
	"github.com/dkoosis/megaqa/internal/sysinfo"
	"github.com/dkoosis/megaqa/pkg/bundle"
	"github.com/dkoosis/megaqa/pkg/knownfail"
	"github.com/dkoosis/megaqa/pkg/pipeline"
	"github.com/dkoosis/megaqa/pkg/render"
	"github.com/dkoosis/megaqa/pkg/runner"
)

type runFlags struct {
	mode     string
	scenario string
	seed     int64
	suites   []string
	grep     string
	pkg      bool
}

func newRunCmd(g *globals) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the suites selected by mode and write a report bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, g, rf)
		},
	}
	f := cmd.Flags()
	f.StringVar(&rf.mode, "mode", "", "Run mode: quick, unit, full, ci (env: MEGAQA_MODE)")
	f.StringVar(&rf.scenario, "scenario", "", "Scenario label recorded in the manifest")
	f.Int64Var(&rf.seed, "seed", 0, "Seed for randomized suites (env: MEGAQA_SEED; default random)")
	f.StringArrayVar(&rf.suites, "suite", nil, "Run only the named suite (repeatable)")
	f.StringVar(&rf.grep, "grep", "", "Run only the test with this recorded name (as printed in replay commands)")
	f.BoolVar(&rf.pkg, "package", false, "Package new failures into the ledger")
	return cmd
}

func runPipeline(cmd *cobra.Command, g *globals, rf *runFlags) error {
	flags := g.flags(cmd)
	f := cmd.Flags()
	flags.Mode, flags.ModeSet = rf.mode, f.Changed("mode")
	flags.Scenario, flags.ScenarioSet = rf.scenario, f.Changed("scenario")
	flags.Seed, flags.SeedSet = rf.seed, f.Changed("seed")
	flags.Package, flags.PackageSet = rf.pkg, f.Changed("package")
	flags.Suites = rf.suites

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	live := render.IsTTY(stderr) && !g.ci

	consoleLevel := slog.LevelInfo
	if live {
		consoleLevel = slog.LevelWarn
	}
	s, err := g.open(cmd, flags, consoleLevel)
	if err != nil {
		return err
	}
	defer s.Close()
	cfg := s.cfg
	live = live && !cfg.CI && cfg.ModeValue != pipeline.ModeCI

	suites, err := cfg.Suites()
	if err != nil {
		return err
	}
	selected := pipeline.Select(suites, cfg.ModeValue, cfg.Only)
	if len(selected) == 0 {
		return fmt.Errorf("no suites selected for mode %s", cfg.ModeValue)
	}

	ctx := cmd.Context()
	runID := bundle.GenerateRunID(time.Now())
	log := s.log.With("run_id", runID)
	sha, branch := sysinfo.Git(ctx, ".")
	env := sysinfo.Environment(ctx, cfg.CI, cfg.OutputDir)
	log.Info("run starting", "mode", cfg.ModeValue, "seed", cfg.Seed, "suites", len(selected), "grep", rf.grep, "git_sha", sha)

	pk, err := s.packager()
	if err != nil {
		return err
	}
	exec := &runner.Exec{
		RunID:       runID,
		Mode:        string(cfg.ModeValue),
		Scenario:    cfg.Scenario,
		Seed:        cfg.Seed,
		Persona:     cfg.Persona,
		APIPrefixes: cfg.APIPrefixes,
		Grep:        rf.grep,
		Known:       knownfail.Load(cfg.KnownFailures, logging.Component(log, "knownfail")),
		Log:         logging.Component(log, "runner"),
	}

	names := make([]string, len(selected))
	for i, spec := range selected {
		names[i] = spec.Name
	}
	theme := render.DefaultTheme()
	if cfg.NoColor {
		theme = render.MonoTheme()
	}
	progress := render.NewProgress(stderr, names, theme, live)

	p := &pipeline.Pipeline{
		Runner:          exec,
		Registry:        s.registry(),
		Writer:          &bundle.Writer{Log: logging.Component(log, "bundle"), Disk: sysinfo.DiskFree},
		Packager:        pk,
		OutputDir:       cfg.OutputDir,
		RequiredTagsOut: cfg.RequiredTagsOut,
		MaxParallel:     cfg.MaxWorkers(),
		Log:             logging.Component(log, "pipeline"),
		OnState:         progress.OnState,
		OnSuite:         progress.OnSuite,
	}
	res, runErr := p.Execute(ctx, pipeline.Run{
		ID:          runID,
		Mode:        cfg.ModeValue,
		Scenario:    cfg.Scenario,
		Seed:        cfg.Seed,
		GitSHA:      sha,
		GitBranch:   branch,
		Environment: env,
		Suites:      selected,
		Package:     cfg.Package,
	})
	progress.Stop()

	if res.Dir.Path == "" {
		return withCode(res.ExitCode, runErr)
	}
	fmt.Fprintln(stdout, bundle.SummaryLine(res.Bundle))
	fmt.Fprint(stdout, render.ForWriter(stdout, cfg.NoColor).Render(render.Report{
		Bundle: res.Bundle,
		Bugs:   res.Bugs,
		Dir:    res.Dir.Path,
	}))
	return withCode(res.ExitCode, runErr)
}
