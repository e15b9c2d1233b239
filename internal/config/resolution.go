package config

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dkoosis/megaqa/pkg/pipeline"
	"github.com/dkoosis/megaqa/pkg/qa"
	"github.com/dkoosis/megaqa/pkg/runner"
)

// CliFlags holds the values of command-line flags. The *Set fields record
// whether the user passed the flag explicitly.
type CliFlags struct {
	ConfigPath string
	Mode       string
	Scenario   string
	Seed       int64
	Suites     []string
	OutputDir  string
	Package    bool
	NoColor    bool
	CI         bool
	Debug      bool

	ModeSet     bool
	ScenarioSet bool
	SeedSet     bool
	OutputSet   bool
	PackageSet  bool
	NoColorSet  bool
	CISet       bool
	DebugSet    bool
}

// ResolvedConfig holds the final resolved configuration after applying all priority rules.
type ResolvedConfig struct {
	*AppConfig

	ModeValue pipeline.Mode
	Seed      int64
	Only      []string

	// Resolution metadata (for debugging)
	ConfigFile   string // "" when defaults were used
	ModeSource   string // "cli", "env", "file", "ci", "default"
	SeedSource   string // "cli", "env", "random"
	OutputSource string // "cli", "env", "file"
}

// ResolveConfig resolves configuration from all sources with explicit priority order.
//
// Resolution order:
//  1. Load base config from .megaqa.yaml (or defaults)
//  2. Apply environment variables
//  3. Apply CLI flags (highest priority)
//  4. Validate
func ResolveConfig(flags CliFlags) (*ResolvedConfig, error) {
	appCfg, path, err := LoadConfig(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	r := &ResolvedConfig{
		AppConfig:    appCfg,
		ConfigFile:   path,
		ModeSource:   "file",
		OutputSource: "file",
		Only:         flags.Suites,
	}

	if v := getEnvBool("MEGAQA_NO_COLOR", "NO_COLOR"); v != nil {
		r.NoColor = *v
	}
	if v := getEnvBool("MEGAQA_CI", "CI"); v != nil {
		r.CI = *v
	}
	if os.Getenv("MEGAQA_DEBUG") != "" {
		r.Debug = true
	}
	if v := os.Getenv("MEGAQA_OUTPUT_DIR"); v != "" {
		r.OutputDir = v
		r.OutputSource = "env"
	}
	if v := os.Getenv("MEGAQA_LEDGER"); v != "" {
		r.Ledger = v
	}

	if flags.NoColorSet {
		r.NoColor = flags.NoColor
	}
	if flags.CISet {
		r.CI = flags.CI
	}
	if flags.DebugSet {
		r.Debug = flags.Debug
	}
	if flags.OutputSet {
		r.OutputDir = flags.OutputDir
		r.OutputSource = "cli"
	}
	if flags.PackageSet {
		r.Package = flags.Package
	}
	if flags.ScenarioSet {
		r.Scenario = flags.Scenario
	}

	mode := r.Mode
	switch {
	case flags.ModeSet:
		mode, r.ModeSource = flags.Mode, "cli"
	case os.Getenv("MEGAQA_MODE") != "":
		mode, r.ModeSource = os.Getenv("MEGAQA_MODE"), "env"
	case r.CI && r.Mode == DefaultMode:
		mode, r.ModeSource = string(pipeline.ModeCI), "ci"
	case r.ConfigFile == "":
		r.ModeSource = "default"
	}
	if r.ModeValue, err = pipeline.ParseMode(mode); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	switch {
	case flags.SeedSet:
		r.Seed, r.SeedSource = flags.Seed, "cli"
	case os.Getenv("MEGAQA_SEED") != "":
		seed, err := strconv.ParseInt(os.Getenv("MEGAQA_SEED"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config validation failed: MEGAQA_SEED: %w", err)
		}
		r.Seed, r.SeedSource = seed, "env"
	default:
		r.Seed, r.SeedSource = rand.Int64N(1_000_000), "random"
	}

	if err := validateResolvedConfig(r); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return r, nil
}

// Suites converts the configured suites for the pipeline.
func (r *ResolvedConfig) Suites() ([]pipeline.Suite, error) {
	out := make([]pipeline.Suite, 0, len(r.AppConfig.Suites))
	for _, s := range r.AppConfig.Suites {
		spec := runner.Spec{
			Name:        s.Name,
			Category:    s.Category,
			Tool:        strings.ToLower(s.Tool),
			Command:     s.Command,
			Dir:         s.Dir,
			Env:         s.Env,
			ReportFile:  s.ReportFile,
			ArtifactDir: s.ArtifactDir,
			Tags:        s.Tags,
			Persona:     s.Persona,
		}
		if spec.Persona == "" {
			spec.Persona = r.Persona
		}
		if s.Timeout != "" {
			d, err := time.ParseDuration(s.Timeout)
			if err != nil {
				return nil, fmt.Errorf("suite %q: timeout: %w", s.Name, err)
			}
			spec.Timeout = d
		}
		ps := pipeline.Suite{Spec: spec}
		for _, m := range s.Modes {
			mode, err := pipeline.ParseMode(m)
			if err != nil {
				return nil, fmt.Errorf("suite %q: %w", s.Name, err)
			}
			ps.Modes = append(ps.Modes, mode)
		}
		out = append(out, ps)
	}
	return out, nil
}

// PriorityMap converts the priorities section into packager overrides.
func (r *ResolvedConfig) PriorityMap() (map[qa.Classification]qa.Priority, error) {
	out := make(map[qa.Classification]qa.Priority, len(r.Priorities))
	for k, v := range r.Priorities {
		class, ok := qa.ParseClassification(k)
		if !ok {
			return nil, fmt.Errorf("priorities: unknown classification %q", k)
		}
		p := qa.Priority(strings.ToUpper(strings.TrimSpace(v)))
		switch p {
		case qa.PriorityHigh, qa.PriorityMedium, qa.PriorityLow:
		default:
			return nil, fmt.Errorf("priorities: %s: unknown priority %q", k, v)
		}
		out[class] = p
	}
	return out, nil
}

// MaxWorkers is the suite concurrency the pipeline should use.
func (r *ResolvedConfig) MaxWorkers() int {
	if !r.Parallel {
		return 1
	}
	return r.MaxParallel
}

// getEnvBool reads a boolean from environment variables, trying multiple keys.
// Returns nil if none are set, or a pointer to the boolean value.
func getEnvBool(keys ...string) *bool {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				return &b
			}
		}
	}
	return nil
}

// validateResolvedConfig validates the resolved configuration and returns errors for invalid states.
func validateResolvedConfig(cfg *ResolvedConfig) error {
	var errs []error
	if cfg.OutputDir == "" {
		errs = append(errs, errors.New("output_dir cannot be empty"))
	}
	if cfg.IDWidth < 1 || cfg.IDWidth > 9 {
		errs = append(errs, fmt.Errorf("id_width must be between 1 and 9, got: %d", cfg.IDWidth))
	}
	if cfg.MaxParallel < 1 {
		errs = append(errs, fmt.Errorf("max_parallel must be positive, got: %d", cfg.MaxParallel))
	}
	if _, err := cfg.PriorityMap(); err != nil {
		errs = append(errs, err)
	}

	seen := map[string]bool{}
	for i, s := range cfg.AppConfig.Suites {
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Errorf("suites[%d]: name is required", i))
			continue
		case seen[runner.Slug(s.Name)]:
			errs = append(errs, fmt.Errorf("suites[%d]: duplicate suite %q", i, s.Name))
		case len(s.Command) == 0:
			errs = append(errs, fmt.Errorf("suite %q: command is required", s.Name))
		case !validTool(s.Tool):
			errs = append(errs, fmt.Errorf("suite %q: unknown tool %q (want one of %s)", s.Name, s.Tool, strings.Join(runner.Tools, ", ")))
		}
		seen[runner.Slug(s.Name)] = true
	}
	if _, err := cfg.Suites(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func validTool(tool string) bool {
	for _, t := range runner.Tools {
		if strings.EqualFold(t, tool) {
			return true
		}
	}
	return false
}
