package runner

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/megaqa/pkg/knownfail"
	"github.com/dkoosis/megaqa/pkg/qa"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func newExec() *Exec {
	return &Exec{
		RunID:    "20260301-120000-abc123",
		Mode:     "full",
		Scenario: "default",
		Seed:     42,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return fixedNow },
	}
}

func shell(script string) []string {
	return []string{"sh", "-c", script}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_CommandPassCreditsMarkersAndStaticTags(t *testing.T) {
	requireShell(t)

	out := newExec().Run(context.Background(), Spec{
		Name:     "Backend Invariants",
		Category: "invariant",
		Tool:     ToolCommand,
		Command:  shell(`echo "checking"; echo "[COVERAGE] api:orders.list"`),
		Tags:     []string{"db-invariants"},
	})

	assert.Equal(t, qa.SuitePass, out.Result.Status)
	assert.Equal(t, qa.Counts{Passed: 1, Total: 1}, out.Result.Counts)
	assert.Equal(t, []string{"api:orders.list", "db-invariants"}, out.Tags)
	assert.Empty(t, out.Failures)
}

func TestRun_CommandFailureBuildsFailureRecord(t *testing.T) {
	requireShell(t)

	out := newExec().Run(context.Background(), Spec{
		Name:     "Backend Invariants",
		Category: "invariant",
		Tool:     ToolCommand,
		Command:  shell(`echo "negative stock for sku 12" >&2; exit 3`),
		Persona:  "warehouse",
	})

	require.Equal(t, qa.SuiteFail, out.Result.Status)
	assert.Equal(t, 3, out.Result.ExitCode)
	require.Len(t, out.Failures, 1)

	f := out.Failures[0]
	assert.Equal(t, "backend-invariants-1", f.ID)
	assert.Equal(t, []string{f.ID}, out.Result.FailureIDs)
	assert.Equal(t, "negative stock for sku 12", f.ErrorMessage)
	assert.Equal(t, qa.ClassBackend, f.Classification)
	assert.Equal(t, fixedNow, f.Timestamp)
	assert.Equal(t, int64(42), f.Replay.Seed)
	assert.Equal(t, "warehouse", f.Replay.Persona)
	assert.NotNil(t, f.Replay.Steps)
	assert.NotNil(t, f.Evidence.ConsoleErrors)
	assert.Equal(t,
		"megaqa run --mode=full --scenario=default --seed=42 '--suite=Backend Invariants' '--grep=Backend Invariants'",
		f.Replay.ReplayCommand)
	assert.Empty(t, out.Tags)
}

func TestRun_MissingBinaryIsError(t *testing.T) {
	out := newExec().Run(context.Background(), Spec{
		Name:    "Core E2E Suite",
		Tool:    ToolPlaywright,
		Command: []string{"definitely-not-a-real-binary-megaqa"},
		Tags:    []string{"route:/login"},
	})

	assert.Equal(t, qa.SuiteError, out.Result.Status)
	assert.NotEmpty(t, out.Result.Error)
	assert.Empty(t, out.Failures)
	assert.Empty(t, out.Tags)
}

func TestRun_CrashWithGarbageOutputIsError(t *testing.T) {
	requireShell(t)

	out := newExec().Run(context.Background(), Spec{
		Name:    "Property Tests",
		Tool:    ToolVitest,
		Command: shell(`echo "Segmentation fault"; echo "fatal: heap corrupted" >&2; exit 139`),
	})

	assert.Equal(t, qa.SuiteError, out.Result.Status)
	assert.Contains(t, out.Result.Error, "heap corrupted")
	assert.Empty(t, out.Failures)
}

func TestRun_NonZeroExitWithoutFailuresIsError(t *testing.T) {
	requireShell(t)
	report := writeFile(t, "lint.sarif", `{"version":"2.1.0","runs":[{"tool":{"driver":{"name":"eslint"}},"results":[]}]}`)

	out := newExec().Run(context.Background(), Spec{
		Name:       "Lint",
		Tool:       ToolSARIF,
		Command:    shell("exit 2"),
		ReportFile: report,
	})

	assert.Equal(t, qa.SuiteError, out.Result.Status)
}

func TestRun_GoTestWithKnownFailure(t *testing.T) {
	requireShell(t)
	stream := strings.Join([]string{
		`{"Action":"run","Package":"example.com/orders","Test":"TestTotals"}`,
		`{"Action":"pass","Package":"example.com/orders","Test":"TestTotals","Elapsed":0.01}`,
		`{"Action":"run","Package":"example.com/orders","Test":"TestRounding"}`,
		`{"Action":"output","Package":"example.com/orders","Test":"TestRounding","Output":"    r_test.go:9: got 0.30000000000000004\n"}`,
		`{"Action":"output","Package":"example.com/orders","Test":"TestRounding","Output":"[CONSOLE] float drift\n"}`,
		`{"Action":"fail","Package":"example.com/orders","Test":"TestRounding","Elapsed":0.02}`,
		`{"Action":"fail","Package":"example.com/orders","Elapsed":0.05}`,
	}, "\n") + "\n"
	path := writeFile(t, "go.json", stream)

	e := newExec()
	e.Known = knownfail.NewFile([]knownfail.Entry{{
		Suite: "Unit", TestName: "example.com/orders TestRounding", Error: "r_test.go:1: got 0.5",
	}})
	out := e.Run(context.Background(), Spec{
		Name:     "Unit",
		Category: "unit",
		Tool:     ToolGoTest,
		Command:  shell("cat '" + path + "'; exit 1"),
	})

	require.Equal(t, qa.SuiteFail, out.Result.Status)
	assert.Equal(t, qa.Counts{Passed: 1, Failed: 1, Total: 2}, out.Result.Counts)
	require.Len(t, out.Failures, 1)
	f := out.Failures[0]
	assert.True(t, f.IsKnown)
	assert.Equal(t, "r_test.go:9: got 0.30000000000000004", f.ErrorMessage)
	assert.Equal(t, []string{"float drift"}, f.Evidence.ConsoleErrors)
	assert.Equal(t, qa.ClassFrontend, f.Classification)
}

func TestRun_PlaywrightReportFileWithEvidence(t *testing.T) {
	requireShell(t)
	report := writeFile(t, "results.json", `{
  "suites": [{"title": "must-hit.spec.ts", "file": "must-hit.spec.ts", "specs": [
    {"title": "dashboard @route:/dashboard", "ok": true, "tests": [{"status": "expected", "projectName": "chromium",
      "results": [{"status": "passed", "duration": 10, "retry": 0, "stdout": [{"text": "[COVERAGE] TS-1.1\n"}]}]}]},
    {"title": "orders", "ok": false, "tests": [{"status": "unexpected", "projectName": "chromium",
      "annotations": [{"type": "coverage", "description": "route:/orders"}],
      "results": [{"status": "failed", "duration": 20, "retry": 0,
        "error": {"message": "expect(locator).toBeVisible() failed"},
        "stdout": [{"text": "[NETWORK] GET 500 http://localhost:3000/api/orders\n"}],
        "attachments": [
          {"name": "trace", "contentType": "application/zip", "path": "/tmp/pw/trace.zip"},
          {"name": "screenshot", "contentType": "image/png", "path": "/tmp/pw/shot.png"},
          {"name": "replay", "contentType": "application/json", "body": "eyJzZWVkIjo5OSwicGVyc29uYSI6ImFkbWluIiwic3RlcHMiOlt7ImFjdGlvbiI6ImNsaWNrIiwidGFyZ2V0IjoiI3NhdmUifV0sInVybEhpc3RvcnkiOlsiL29yZGVycyJdfQ=="}
        ]}]}]}
  ]}]
}`)

	out := newExec().Run(context.Background(), Spec{
		Name:       "Must-Hit",
		Category:   "must-hit",
		Tool:       ToolPlaywright,
		Command:    shell("exit 1"),
		ReportFile: report,
	})

	require.Equal(t, qa.SuiteFail, out.Result.Status)
	// tags from the failing test are not credited
	assert.Equal(t, []string{"TS-1.1", "route:/dashboard"}, out.Tags)

	require.Len(t, out.Failures, 1)
	f := out.Failures[0]
	assert.Equal(t, qa.ClassBackend, f.Classification)
	assert.Equal(t, "/tmp/pw/trace.zip", f.Evidence.TracePath)
	assert.Equal(t, "/tmp/pw/shot.png", f.Evidence.ScreenshotPath)
	assert.Equal(t, []qa.NetworkFailure{{Method: "GET", URL: "http://localhost:3000/api/orders", Status: 500}}, f.Evidence.NetworkFailures)
	assert.Equal(t, int64(99), f.Replay.Seed)
	assert.Equal(t, "admin", f.Replay.Persona)
	assert.Equal(t, []qa.Step{{Action: "click", Target: "#save"}}, f.Replay.Steps)
	assert.Contains(t, f.Replay.ReplayCommand, "--seed=99")
	assert.Equal(t, []string{"route:/orders"}, f.CoveredTags)
}

func TestRun_DiagnosticsThroughSARIF(t *testing.T) {
	requireShell(t)

	out := newExec().Run(context.Background(), Spec{
		Name:     "Typecheck",
		Category: "typecheck",
		Tool:     ToolDiag,
		Command:  shell(`echo "src/a.ts(3,5): error TS2304: Cannot find name 'x'."; exit 2`),
	})

	require.Equal(t, qa.SuiteFail, out.Result.Status)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, "TS2304 src/a.ts:3:5", out.Failures[0].TestName)
	assert.Equal(t, qa.ClassFrontend, out.Failures[0].Classification)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := newExec().Run(ctx, Spec{Name: "x", Tool: ToolCommand, Command: []string{"true"}})
	assert.Equal(t, qa.SuiteError, out.Result.Status)
	assert.Contains(t, out.Result.Error, "not started")
}

func TestRun_Timeout(t *testing.T) {
	requireShell(t)

	out := newExec().Run(context.Background(), Spec{
		Name:    "slow",
		Tool:    ToolCommand,
		Command: shell("exec sleep 5"),
		Timeout: 100 * time.Millisecond,
	})
	assert.Equal(t, qa.SuiteError, out.Result.Status)
	assert.Contains(t, out.Result.Error, "timed out")
}

func TestRun_UnknownTool(t *testing.T) {
	out := newExec().Run(context.Background(), Spec{Name: "x", Tool: "junit", Command: []string{"true"}})
	assert.Equal(t, qa.SuiteError, out.Result.Status)
}

func TestRun_SeedlessReplayBlockKeepsRunSeed(t *testing.T) {
	requireShell(t)

	out := newExec().Run(context.Background(), Spec{
		Name:    "Journeys",
		Tool:    ToolCommand,
		Command: shell(`echo '[REPLAY] {"persona":"admin","steps":[{"action":"goto","url":"/orders"}]}'; echo "order total mismatch" >&2; exit 1`),
	})

	require.Len(t, out.Failures, 1)
	r := out.Failures[0].Replay
	assert.Equal(t, int64(42), r.Seed)
	assert.Equal(t, "admin", r.Persona)
	assert.Contains(t, r.ReplayCommand, "--seed=42")
}

func TestRun_GrepNarrowsToolAndEnv(t *testing.T) {
	requireShell(t)
	stream := `{"Action":"run","Package":"example.com/orders","Test":"TestTotals"}` + "\n" +
		`{"Action":"pass","Package":"example.com/orders","Test":"TestTotals","Elapsed":0.01}` + "\n" +
		`{"Action":"pass","Package":"example.com/orders","Elapsed":0.02}` + "\n"
	path := writeFile(t, "go.json", stream)
	seen := filepath.Join(t.TempDir(), "seen")

	e := newExec()
	e.Grep = "example.com/orders TestTotals"
	out := e.Run(context.Background(), Spec{
		Name:    "Unit",
		Tool:    ToolGoTest,
		Command: shell(`printf '%s|%s' "$0" "$MEGAQA_GREP" > '` + seen + `'; cat '` + path + `'`),
	})

	require.Equal(t, qa.SuitePass, out.Result.Status)
	got, err := os.ReadFile(seen)
	require.NoError(t, err)
	assert.Equal(t, "-run=^TestTotals$|example.com/orders TestTotals", string(got))
}
