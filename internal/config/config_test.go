package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/megaqa/pkg/pipeline"
	"github.com/dkoosis/megaqa/pkg/qa"
)

// isolate moves the test into an empty working directory with no user
// config and a clean environment.
func isolate(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()
	t.Chdir(tempDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tempDir, "xdg"))
	t.Setenv("HOME", filepath.Join(tempDir, "home"))
	for _, k := range []string{"CI", "MEGAQA_CI", "NO_COLOR", "MEGAQA_NO_COLOR", "MEGAQA_DEBUG",
		"MEGAQA_MODE", "MEGAQA_SEED", "MEGAQA_OUTPUT_DIR", "MEGAQA_LEDGER"} {
		t.Setenv(k, "")
	}
	return tempDir
}

func TestGetConfigPath_ReturnsLocalConfig_When_FileExists(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(FileName, []byte("mode: quick\n"), 0o600))

	assert.Equal(t, FileName, getConfigPath())
}

func TestGetConfigPath_UsesXDGPath_When_LocalMissing(t *testing.T) {
	dir := isolate(t)
	configHome := filepath.Join(dir, "xdg", "megaqa")
	require.NoError(t, os.MkdirAll(configHome, 0o755))
	path := filepath.Join(configHome, FileName)
	require.NoError(t, os.WriteFile(path, []byte("mode: quick\n"), 0o600))

	assert.Equal(t, path, getConfigPath())
}

func TestGetConfigPath_ReturnsEmpty_When_NoConfigAvailable(t *testing.T) {
	isolate(t)
	assert.Equal(t, "", getConfigPath())
}

func TestLoadConfig_ReturnsDefaults_When_NoConfigFound(t *testing.T) {
	isolate(t)

	cfg, path, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "", path)
	assert.Equal(t, DefaultOutputDir, cfg.OutputDir)
	assert.Equal(t, DefaultIDWidth, cfg.IDWidth)
	assert.Equal(t, DefaultMaxParallel, cfg.MaxParallel)
	assert.Len(t, cfg.Suites, len(DefaultSuites()))
	assert.False(t, cfg.Parallel || cfg.Package || cfg.CI || cfg.NoColor || cfg.Debug)
}

func TestLoadConfig_MergesYAMLOverrides_When_FilePresent(t *testing.T) {
	isolate(t)
	yamlContent := "" +
		"output_dir: out\n" +
		"ledger: ROADMAP.md\n" +
		"bug_prefix: QA\n" +
		"id_width: 4\n" +
		"parallel: true\n" +
		"max_parallel: 2\n" +
		"priorities:\n" +
		"  frontend: high\n" +
		"suites:\n" +
		"  - name: Unit\n" +
		"    category: unit\n" +
		"    tool: gotest\n" +
		"    command: [go, test, -json, ./...]\n" +
		"    timeout: 5m\n" +
		"    tags: [go-unit]\n"
	require.NoError(t, os.WriteFile(FileName, []byte(yamlContent), 0o600))

	cfg, path, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, FileName, path)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, "ROADMAP.md", cfg.Ledger)
	assert.Equal(t, "QA", cfg.BugPrefix)
	assert.Equal(t, 4, cfg.IDWidth)
	assert.True(t, cfg.Parallel)
	assert.Equal(t, 2, cfg.MaxParallel)
	assert.Equal(t, "high", cfg.Priorities["frontend"])
	require.Len(t, cfg.Suites, 1)
	assert.Equal(t, []string{"go", "test", "-json", "./..."}, cfg.Suites[0].Command)
	assert.Equal(t, DefaultPromptsDir, cfg.PromptsDir, "unset keys keep defaults")
}

func TestLoadConfig_MalformedFileIsAnError(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(FileName, []byte("suites: {not: [a list"), 0o600))

	_, _, err := LoadConfig("")
	assert.Error(t, err)
}

func TestLoadConfig_ExplicitMissingFileIsAnError(t *testing.T) {
	isolate(t)
	_, _, err := LoadConfig("nope.yaml")
	assert.Error(t, err)
}

func TestResolveConfig_PriorityOrder(t *testing.T) {
	tests := []struct {
		name       string
		file       string
		env        map[string]string
		flags      CliFlags
		wantMode   pipeline.Mode
		wantSource string
		wantOutput string
	}{
		{
			name:       "defaults",
			wantMode:   pipeline.ModeFull,
			wantSource: "default",
			wantOutput: DefaultOutputDir,
		},
		{
			name:       "file over defaults",
			file:       "mode: quick\noutput_dir: from-file\n",
			wantMode:   pipeline.ModeQuick,
			wantSource: "file",
			wantOutput: "from-file",
		},
		{
			name:       "env over file",
			file:       "mode: quick\noutput_dir: from-file\n",
			env:        map[string]string{"MEGAQA_MODE": "unit", "MEGAQA_OUTPUT_DIR": "from-env"},
			wantMode:   pipeline.ModeUnit,
			wantSource: "env",
			wantOutput: "from-env",
		},
		{
			name:       "cli over env",
			env:        map[string]string{"MEGAQA_MODE": "unit", "MEGAQA_OUTPUT_DIR": "from-env"},
			flags:      CliFlags{Mode: "full", ModeSet: true, OutputDir: "from-cli", OutputSet: true},
			wantMode:   pipeline.ModeFull,
			wantSource: "cli",
			wantOutput: "from-cli",
		},
		{
			name:       "CI implies ci mode",
			env:        map[string]string{"CI": "true"},
			wantMode:   pipeline.ModeCI,
			wantSource: "ci",
			wantOutput: DefaultOutputDir,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			if tt.file != "" {
				require.NoError(t, os.WriteFile(FileName, []byte(tt.file), 0o600))
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			r, err := ResolveConfig(tt.flags)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, r.ModeValue)
			assert.Equal(t, tt.wantSource, r.ModeSource)
			assert.Equal(t, tt.wantOutput, r.OutputDir)
		})
	}
}

func TestResolveConfig_Seed(t *testing.T) {
	isolate(t)

	r, err := ResolveConfig(CliFlags{Seed: 12345, SeedSet: true})
	require.NoError(t, err)
	assert.Equal(t, int64(12345), r.Seed)

	t.Setenv("MEGAQA_SEED", "42")
	r, err = ResolveConfig(CliFlags{})
	require.NoError(t, err)
	assert.Equal(t, int64(42), r.Seed)
	assert.Equal(t, "env", r.SeedSource)

	t.Setenv("MEGAQA_SEED", "forty-two")
	_, err = ResolveConfig(CliFlags{})
	assert.Error(t, err)

	t.Setenv("MEGAQA_SEED", "")
	r, err = ResolveConfig(CliFlags{})
	require.NoError(t, err)
	assert.Equal(t, "random", r.SeedSource)
	assert.GreaterOrEqual(t, r.Seed, int64(0))
}

func TestResolveConfig_BoolPrecedence(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(FileName, []byte("no_color: false\npackage: true\n"), 0o600))
	t.Setenv("NO_COLOR", "1")

	r, err := ResolveConfig(CliFlags{})
	require.NoError(t, err)
	assert.True(t, r.NoColor)
	assert.True(t, r.Package)

	r, err = ResolveConfig(CliFlags{NoColorSet: true, PackageSet: true})
	require.NoError(t, err)
	assert.False(t, r.NoColor)
	assert.False(t, r.Package)
}

func TestResolveConfig_ValidationErrors(t *testing.T) {
	tests := map[string]string{
		"unknown tool":       "suites:\n  - {name: A, tool: jest, command: [x]}\n",
		"duplicate suite":    "suites:\n  - {name: A, tool: command, command: [x]}\n  - {name: a, tool: command, command: [y]}\n",
		"missing command":    "suites:\n  - {name: A, tool: command}\n",
		"bad timeout":        "suites:\n  - {name: A, tool: command, command: [x], timeout: soon}\n",
		"bad suite mode":     "suites:\n  - {name: A, tool: command, command: [x], modes: [nightly]}\n",
		"bad priority":       "priorities:\n  backend: urgent\n",
		"bad classification": "priorities:\n  database: HIGH\n",
		"bad id width":       "id_width: 12\n",
		"bad mode":           "mode: soak\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			isolate(t)
			require.NoError(t, os.WriteFile(FileName, []byte(content), 0o600))
			_, err := ResolveConfig(CliFlags{})
			assert.Error(t, err)
		})
	}
}

func TestResolvedConfig_Suites(t *testing.T) {
	isolate(t)
	content := "persona: admin\nsuites:\n" +
		"  - name: Unit\n    category: unit\n    tool: GoTest\n    command: [go, test, -json]\n    timeout: 90s\n" +
		"  - name: Journeys\n    category: journey\n    tool: playwright\n    command: [npx, playwright, test]\n    persona: viewer\n    modes: [full]\n"
	require.NoError(t, os.WriteFile(FileName, []byte(content), 0o600))

	r, err := ResolveConfig(CliFlags{})
	require.NoError(t, err)
	suites, err := r.Suites()
	require.NoError(t, err)
	require.Len(t, suites, 2)

	assert.Equal(t, "gotest", suites[0].Tool)
	assert.Equal(t, 90*time.Second, suites[0].Timeout)
	assert.Equal(t, "admin", suites[0].Persona)
	assert.Equal(t, "viewer", suites[1].Persona)
	assert.Equal(t, []pipeline.Mode{pipeline.ModeFull}, suites[1].Modes)
}

func TestResolvedConfig_PriorityMapAndWorkers(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(FileName, []byte("priorities:\n  test-issue: medium\nparallel: true\nmax_parallel: 3\n"), 0o600))

	r, err := ResolveConfig(CliFlags{})
	require.NoError(t, err)
	m, err := r.PriorityMap()
	require.NoError(t, err)
	assert.Equal(t, map[qa.Classification]qa.Priority{qa.ClassTestIssue: qa.PriorityMedium}, m)
	assert.Equal(t, 3, r.MaxWorkers())

	r.Parallel = false
	assert.Equal(t, 1, r.MaxWorkers())
}

func TestDefaultSuites_AreValid(t *testing.T) {
	isolate(t)
	r, err := ResolveConfig(CliFlags{})
	require.NoError(t, err)
	suites, err := r.Suites()
	require.NoError(t, err)

	quick := pipeline.Select(suites, pipeline.ModeQuick, nil)
	var names []string
	for _, s := range quick {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Must-Hit Suite", "Core E2E Suite", "Property-Based Tests", "Contract Tests"}, names)
}
