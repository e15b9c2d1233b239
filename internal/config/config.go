package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file name.
const FileName = ".megaqa.yaml"

// SuiteConfig declares one suite in .megaqa.yaml.
type SuiteConfig struct {
	Name        string            `yaml:"name"`
	Category    string            `yaml:"category"`
	Tool        string            `yaml:"tool"`
	Command     []string          `yaml:"command"`
	Dir         string            `yaml:"dir,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	ReportFile  string            `yaml:"report_file,omitempty"`
	ArtifactDir string            `yaml:"artifact_dir,omitempty"`
	Tags        []string          `yaml:"tags,omitempty"`
	Persona     string            `yaml:"persona,omitempty"`
	Timeout     string            `yaml:"timeout,omitempty"`
	Modes       []string          `yaml:"modes,omitempty"`
}

// AppConfig represents the application's overall configuration from .megaqa.yaml.
type AppConfig struct {
	OutputDir       string            `yaml:"output_dir"`
	Registry        string            `yaml:"registry"`
	Waivers         string            `yaml:"waivers"`
	KnownFailures   string            `yaml:"known_failures"`
	RequiredTagsOut string            `yaml:"required_tags_out"`
	Ledger          string            `yaml:"ledger"`
	PromptsDir      string            `yaml:"prompts_dir"`
	BugPrefix       string            `yaml:"bug_prefix"`
	IDWidth         int               `yaml:"id_width"`
	Priorities      map[string]string `yaml:"priorities"`
	APIPrefixes     []string          `yaml:"api_prefixes"`
	Persona         string            `yaml:"persona"`
	Mode            string            `yaml:"mode"`
	Scenario        string            `yaml:"scenario"`
	Parallel        bool              `yaml:"parallel"`
	MaxParallel     int               `yaml:"max_parallel"`
	Package         bool              `yaml:"package"`
	NoColor         bool              `yaml:"no_color"`
	CI              bool              `yaml:"ci"`
	Debug           bool              `yaml:"debug"`
	LogFile         string            `yaml:"log_file"`
	Suites          []SuiteConfig     `yaml:"suites"`
}

// Constants for default values.
const (
	DefaultOutputDir       = "qa-results/mega-qa"
	DefaultRegistry        = "qa/coverage-tags.yaml"
	DefaultWaivers         = "qa/waivers.yaml"
	DefaultKnownFailures   = "qa/known-failures.yaml"
	DefaultRequiredTagsOut = "qa-results/required-tags.json"
	DefaultLedger          = "docs/roadmaps/MASTER_ROADMAP.md"
	DefaultPromptsDir      = "docs/prompts"
	DefaultBugPrefix       = "BUG"
	DefaultIDWidth         = 3
	DefaultPersona         = "standard"
	DefaultMode            = "full"
	DefaultScenario        = "full"
	DefaultMaxParallel     = 4
	DefaultLogFile         = "qa-results/megaqa.log"
)

// Defaults returns the configuration used when no file is present.
func Defaults() *AppConfig {
	return &AppConfig{
		OutputDir:       DefaultOutputDir,
		Registry:        DefaultRegistry,
		Waivers:         DefaultWaivers,
		KnownFailures:   DefaultKnownFailures,
		RequiredTagsOut: DefaultRequiredTagsOut,
		Ledger:          DefaultLedger,
		PromptsDir:      DefaultPromptsDir,
		BugPrefix:       DefaultBugPrefix,
		IDWidth:         DefaultIDWidth,
		Priorities:      map[string]string{},
		APIPrefixes:     []string{"/api/", "/trpc/"},
		Persona:         DefaultPersona,
		Mode:            DefaultMode,
		Scenario:        DefaultScenario,
		MaxParallel:     DefaultMaxParallel,
		LogFile:         DefaultLogFile,
		Suites:          DefaultSuites(),
	}
}

// DefaultSuites mirrors the suites of the original mega QA runner.
func DefaultSuites() []SuiteConfig {
	pw := func(name, category, pattern string, modes ...string) SuiteConfig {
		return SuiteConfig{
			Name:        name,
			Category:    category,
			Tool:        "playwright",
			Command:     []string{"npx", "playwright", "test", pattern, "--reporter=json"},
			ArtifactDir: "test-results",
			Modes:       modes,
		}
	}
	vt := func(name, category, dir string) SuiteConfig {
		return SuiteConfig{
			Name:     name,
			Category: category,
			Tool:     "vitest",
			Command:  []string{"npx", "vitest", "run", dir, "--reporter=json"},
		}
	}
	return []SuiteConfig{
		pw("Must-Hit Suite", "must-hit", "tests-e2e/mega/must-hit.spec.ts"),
		pw("Core E2E Suite", "must-hit", "tests-e2e/"),
		pw("Randomized Journeys", "journey", "tests-e2e/mega/journeys/", "full", "ci"),
		vt("Property-Based Tests", "property", "tests/property/"),
		vt("Contract Tests", "contract", "tests/contracts/"),
		{
			Name:     "Lint",
			Category: "lint",
			Tool:     "sarif",
			Command:  []string{"npx", "eslint", ".", "--format", "@microsoft/eslint-formatter-sarif"},
			Modes:    []string{"full", "ci"},
		},
		{
			Name:     "Typecheck",
			Category: "typecheck",
			Tool:     "diag",
			Command:  []string{"npx", "tsc", "--noEmit", "--pretty", "false"},
			Modes:    []string{"full", "ci"},
		},
		{
			Name:     "Backend Invariants",
			Category: "invariant",
			Tool:     "command",
			Command:  []string{"npx", "tsx", "scripts/mega-qa/invariants/db-invariants.ts"},
			Tags:     []string{"db-invariants"},
			Modes:    []string{"full", "ci"},
		},
	}
}

// LoadConfig loads the configuration file at path, or the first
// .megaqa.yaml found by getConfigPath when path is empty. The returned
// string is the file actually read ("" when defaults were used). Unlike the
// waiver and registry files, a malformed project file is an error: running
// the default suites against a broken config would report a misleading
// verdict.
func LoadConfig(path string) (*AppConfig, string, error) {
	appCfg := Defaults()

	explicit := path != ""
	if !explicit {
		path = getConfigPath()
		if path == "" {
			return appCfg, "", nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return appCfg, "", nil
		}
		return nil, path, fmt.Errorf("read config %s: %w", path, err)
	}

	var fileCfg AppConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, path, fmt.Errorf("parse config %s: %w", path, err)
	}
	merge(appCfg, &fileCfg)
	return appCfg, path, nil
}

// merge copies every value set in file onto base.
func merge(base, file *AppConfig) {
	str := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	str(&base.OutputDir, file.OutputDir)
	str(&base.Registry, file.Registry)
	str(&base.Waivers, file.Waivers)
	str(&base.KnownFailures, file.KnownFailures)
	str(&base.RequiredTagsOut, file.RequiredTagsOut)
	str(&base.Ledger, file.Ledger)
	str(&base.PromptsDir, file.PromptsDir)
	str(&base.BugPrefix, file.BugPrefix)
	str(&base.Persona, file.Persona)
	str(&base.Mode, file.Mode)
	str(&base.Scenario, file.Scenario)
	str(&base.LogFile, file.LogFile)

	if file.IDWidth != 0 {
		base.IDWidth = file.IDWidth
	}
	if file.MaxParallel != 0 {
		base.MaxParallel = file.MaxParallel
	}
	for k, v := range file.Priorities {
		base.Priorities[k] = v
	}
	if file.APIPrefixes != nil {
		base.APIPrefixes = file.APIPrefixes
	}
	if file.Suites != nil {
		base.Suites = file.Suites
	}
	base.Parallel = file.Parallel
	base.Package = file.Package
	base.NoColor = file.NoColor
	base.CI = file.CI
	base.Debug = file.Debug
}

// getConfigPath tries to find the .megaqa.yaml configuration file.
// It checks the working directory first, then the XDG user config dir.
func getConfigPath() string {
	if _, err := os.Stat(FileName); err == nil {
		return FileName
	}

	configHome, err := os.UserConfigDir()
	if err != nil || configHome == "" || configHome == "/" {
		return ""
	}
	xdgPath := filepath.Join(configHome, "megaqa", FileName)
	if _, err := os.Stat(xdgPath); err == nil {
		return xdgPath
	}
	return ""
}
