package main

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/megaqa/pkg/bundle"
)

const projectConfig = `output_dir: out
registry: tags.yaml
waivers: waivers.yaml
known_failures: known.yaml
ledger: docs/ROADMAP.md
prompts_dir: docs/prompts
required_tags_out: out/required-tags.json
log_file: out/megaqa.log
suites:
  - name: Smoke
    category: unit
    tool: command
    command: [sh, -c, "echo ok"]
    tags: [smoke]
  - name: Broken
    category: integration
    tool: command
    command: [sh, -c, "echo kaput >&2; exit 3"]
    modes: [full, ci]
`

// project creates a throwaway project in a fresh working directory.
func project(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	for _, k := range []string{"CI", "MEGAQA_CI", "NO_COLOR", "MEGAQA_NO_COLOR", "MEGAQA_DEBUG",
		"MEGAQA_MODE", "MEGAQA_SEED", "MEGAQA_OUTPUT_DIR", "MEGAQA_LEDGER"} {
		t.Setenv(k, "")
	}
	write(t, ".megaqa.yaml", projectConfig)
	write(t, "tags.yaml", "tags:\n  - {id: smoke, category: other, description: smoke check, required: true}\n")
	return dir
}

func write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(name, []byte(content), 0o600))
}

func megaqa(args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRun_QuickModePasses(t *testing.T) {
	project(t)

	code, stdout, stderr := megaqa("run", "--mode", "quick", "--seed", "7")
	require.Equal(t, 0, code, stderr)

	first := strings.SplitN(stdout, "\n", 2)[0]
	assert.True(t, strings.HasPrefix(first, "MEGAQA v1 result=PASS tests=1/1 coverage=100.0%"), first)
	assert.Contains(t, stdout, "SUITE PASS Smoke")
	assert.NotContains(t, stdout, "Broken")
	assert.Contains(t, stderr, "[1/1] Smoke ...")
	assert.FileExists(t, filepath.Join("out", "required-tags.json"))
	assert.FileExists(t, filepath.Join("out", "megaqa.log"))

	dir, err := bundle.ResolveLatest("out")
	require.NoError(t, err)
	b, err := bundle.Read(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(7), b.Manifest.Seed)
	assert.Equal(t, "quick", b.Manifest.Mode)

	code, stdout, _ = megaqa("summary")
	assert.Equal(t, 0, code)
	assert.Equal(t, first+"\n", stdout)
}

func TestRun_FullModeFailsAndPackages(t *testing.T) {
	project(t)

	code, stdout, _ := megaqa("run", "--mode", "full")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "result=FAIL")
	assert.Contains(t, stdout, "FAIL NEW")
	assert.Contains(t, stdout, "kaput")
	assert.NoFileExists(t, filepath.Join("docs", "ROADMAP.md"), "full mode does not package")

	code, stdout, stderr := megaqa("package", "latest")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "BUG-001")
	assert.FileExists(t, filepath.Join("docs", "ROADMAP.md"))
	assert.FileExists(t, filepath.Join("docs", "prompts", "BUG-001.md"))

	code, stdout, _ = megaqa("package", "latest")
	assert.Equal(t, 0, code)
	assert.Equal(t, "no new failures to package\n", stdout)

	code, _, _ = megaqa("summary", "latest")
	assert.Equal(t, 1, code, "summary exits with the recorded run code")
}

func TestRun_CIModePackagesInline(t *testing.T) {
	project(t)
	t.Setenv("CI", "true")

	code, stdout, _ := megaqa("run")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "BUG BUG-001")
	assert.FileExists(t, filepath.Join("docs", "prompts", "BUG-001.md"))
}

func TestRun_SuiteFilter(t *testing.T) {
	project(t)

	code, stdout, _ := megaqa("run", "--mode", "full", "--suite", "smoke")
	assert.Equal(t, 0, code)
	assert.NotContains(t, stdout, "Broken")

	code, _, stderr := megaqa("run", "--suite", "nope")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "no suites selected")
}

func TestRun_ReplayCommandReproducesFailure(t *testing.T) {
	project(t)

	code, _, _ := megaqa("run", "--mode", "full", "--seed", "7")
	require.Equal(t, 1, code)
	dir, err := bundle.ResolveLatest("out")
	require.NoError(t, err)
	b, err := bundle.Read(dir)
	require.NoError(t, err)
	require.Len(t, b.Failures, 1)

	replay := strings.Fields(b.Failures[0].Replay.ReplayCommand)
	require.Equal(t, []string{"megaqa", "run"}, replay[:2])
	assert.Contains(t, replay, "--grep=Broken")

	code, stdout, stderr := megaqa(replay[1:]...)
	require.Equal(t, 1, code, stderr)
	assert.NotContains(t, stdout, "Smoke")

	dir, err = bundle.ResolveLatest("out")
	require.NoError(t, err)
	again, err := bundle.Read(dir)
	require.NoError(t, err)
	require.Len(t, again.Failures, 1)
	assert.Equal(t, int64(7), again.Manifest.Seed)
	assert.Equal(t, b.Failures[0].TestName, again.Failures[0].TestName)
	assert.Equal(t, b.Failures[0].Replay.ReplayCommand, again.Failures[0].Replay.ReplayCommand)
}

func TestRun_ConfigErrorsExitTwo(t *testing.T) {
	project(t)

	code, _, stderr := megaqa("run", "--mode", "soak")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "megaqa:")

	write(t, ".megaqa.yaml", "suites: [{name: X, tool: jest, command: [x]}]\n")
	code, _, _ = megaqa("run")
	assert.Equal(t, 2, code)
}

func TestRun_PersistFailureExitsTwo(t *testing.T) {
	project(t)
	write(t, "blocker", "x")

	code, stdout, stderr := megaqa("run", "--mode", "quick", "--output", "blocker")
	assert.Equal(t, 2, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "persist bundle")
}

func TestDiff_ReportsIntroducedFailures(t *testing.T) {
	project(t)

	code, _, _ := megaqa("run", "--mode", "quick")
	require.Equal(t, 0, code)
	firstDir, err := bundle.ResolveLatest("out")
	require.NoError(t, err)

	code, _, _ = megaqa("run", "--mode", "full")
	require.Equal(t, 1, code)

	code, stdout, stderr := megaqa("diff", firstDir, "latest")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "result: pass -> fail")
	assert.Contains(t, stdout, "failures: 1 introduced, 0 resolved, 0 persisting")
	assert.Contains(t, stdout, "+ Broken > Broken")

	code, _, _ = megaqa("diff", firstDir)
	assert.Equal(t, 2, code)
}

func TestCoverage_CheckAndWriteRequired(t *testing.T) {
	project(t)

	code, stdout, _ := megaqa("coverage", "check", "smoke")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "gate passed")

	code, stdout, _ = megaqa("coverage", "check", "other")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "missing: smoke")

	write(t, "waivers.yaml", "- tagId: smoke\n  rationale: covered manually\n")
	code, stdout, _ = megaqa("coverage", "check")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "waived: smoke")

	code, stdout, _ = megaqa("coverage", "write-required", "--out", "req.json")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "wrote 1 required tags to req.json")
	data, err := os.ReadFile("req.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"smoke"`)
}

func TestVersion(t *testing.T) {
	code, stdout, _ := megaqa("version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "megaqa version dev")

	code, stdout, _ = megaqa("--version")
	assert.Equal(t, 0, code)
	assert.Equal(t, "megaqa dev\n", stdout)
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range newRootCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "package", "coverage", "summary", "diff", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}
