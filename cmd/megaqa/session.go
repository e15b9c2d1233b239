package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dkoosis/megaqa/internal/config"
	"github.com/dkoosis/megaqa/internal/logging"
	"github.com/dkoosis/megaqa/pkg/coverage"
	"github.com/dkoosis/megaqa/pkg/packager"
)

// session is the resolved configuration and logger for one command.
type session struct {
	cfg    *config.ResolvedConfig
	log    *slog.Logger
	closer io.Closer
}

// open resolves configuration and builds the logger. consoleLevel is the
// stderr threshold when --debug is not set.
func (g *globals) open(cmd *cobra.Command, flags config.CliFlags, consoleLevel slog.Level) (*session, error) {
	cfg, err := config.ResolveConfig(flags)
	if err != nil {
		return nil, err
	}
	opts := logging.Options{
		Console:      cmd.ErrOrStderr(),
		ConsoleLevel: consoleLevel,
		Debug:        cfg.Debug,
		File:         cfg.LogFile,
	}
	log, closer, err := logging.New(opts)
	if err != nil {
		opts.File = ""
		log, closer, _ = logging.New(opts)
		log.Warn("log file unavailable", "path", cfg.LogFile, "error", err)
	}
	log.Debug("config resolved",
		"file", cfg.ConfigFile,
		"mode", cfg.ModeValue, "mode_source", cfg.ModeSource,
		"seed", cfg.Seed, "seed_source", cfg.SeedSource,
		"output", cfg.OutputDir, "output_source", cfg.OutputSource,
	)
	return &session{cfg: cfg, log: log, closer: closer}, nil
}

func (s *session) Close() {
	_ = s.closer.Close()
}

func (s *session) registry() *coverage.Registry {
	log := logging.Component(s.log, "coverage")
	return coverage.LoadRegistry(s.cfg.Registry, coverage.LoadWaivers(s.cfg.Waivers, log), log)
}

func (s *session) packager() (*packager.Packager, error) {
	priorities, err := s.cfg.PriorityMap()
	if err != nil {
		return nil, err
	}
	return &packager.Packager{
		LedgerPath: s.cfg.Ledger,
		PromptsDir: s.cfg.PromptsDir,
		Prefix:     s.cfg.BugPrefix,
		IDWidth:    s.cfg.IDWidth,
		Priorities: priorities,
		Log:        logging.Component(s.log, "packager"),
	}, nil
}
