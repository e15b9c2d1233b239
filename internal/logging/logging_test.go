package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_TeesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "megaqa.log")

	log, closer, err := New(Options{Console: &console, File: path})
	require.NoError(t, err)
	log = Component(log, "runner")

	log.Debug("only in file", "n", 1)
	log.Info("suite finished", "suite", "Lint")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "suite finished")
	assert.Contains(t, console.String(), "component=runner")
	assert.NotContains(t, console.String(), "only in file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "suite finished", rec["msg"])
	assert.Equal(t, "runner", rec["component"])
	assert.Equal(t, "Lint", rec["suite"])
}

func TestNew_DebugConsole(t *testing.T) {
	var console bytes.Buffer
	log, closer, err := New(Options{Console: &console, Debug: true})
	require.NoError(t, err)
	defer closer.Close()

	log.Debug("state", "to", "gating")
	assert.Contains(t, console.String(), "to=gating")
}

func TestNew_NoSinks(t *testing.T) {
	log, closer, err := New(Options{})
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
	log.Error("dropped")
}

func TestTee_WithGroupReachesEveryHandler(t *testing.T) {
	var a, b bytes.Buffer
	h := tee{slog.NewTextHandler(&a, nil), slog.NewTextHandler(&b, nil)}
	log := slog.New(h.WithGroup("run")).With("id", "r1")

	log.Info("hello")
	assert.Contains(t, a.String(), "run.id=r1")
	assert.Contains(t, b.String(), "run.id=r1")
}

func TestNew_ConsoleLevelRaisesThreshold(t *testing.T) {
	var console bytes.Buffer
	log, closer, err := New(Options{Console: &console, ConsoleLevel: slog.LevelWarn})
	require.NoError(t, err)
	defer closer.Close()

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "shown")
}
