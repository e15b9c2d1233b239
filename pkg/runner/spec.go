// Package runner invokes external test tools and normalizes what they
// report into suite results and failure records.
//
// Each suite is one subprocess. The adapter named by Spec.Tool decides how
// the tool's report is read; everything after parsing (tag crediting,
// evidence extraction, classification, known-failure lookup, replay
// defaults) is shared.
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/dkoosis/megaqa/pkg/qa"
)

// Tool names accepted in Spec.Tool.
const (
	ToolGoTest     = "gotest"
	ToolPlaywright = "playwright"
	ToolVitest     = "vitest"
	ToolSARIF      = "sarif"
	ToolDiag       = "diag"
	ToolCommand    = "command"
)

// Tools lists every supported adapter.
var Tools = []string{ToolGoTest, ToolPlaywright, ToolVitest, ToolSARIF, ToolDiag, ToolCommand}

// ErrToolCrash marks a suite whose tool produced nothing usable.
var ErrToolCrash = errors.New("tool crashed")

// Spec describes one suite invocation.
type Spec struct {
	Name        string
	Category    string
	Tool        string
	Command     []string
	Dir         string
	Env         map[string]string
	ReportFile  string
	ArtifactDir string
	Tags        []string
	Persona     string
	Timeout     time.Duration
}

// Outcome is everything a suite run produced. Tags are the coverage tags
// the suite proved.
type Outcome struct {
	Result   qa.SuiteResult
	Failures []qa.Failure
	Tags     []string
}

// Runner executes a suite. Implementations must not return a nil Outcome
// on tool failure: a crash is a SuiteResult with status error.
type Runner interface {
	Run(ctx context.Context, spec Spec) Outcome
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, spec Spec) Outcome

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, spec Spec) Outcome { return f(ctx, spec) }

// caseResult is the adapter-neutral form of one parsed test.
type caseResult struct {
	name          string
	status        qa.TestStatus
	durationMs    int64
	errMsg        string
	stack         string
	tags          []string
	output        []string
	passedOnRetry bool
	evidence      qa.Evidence
	replay        *qa.Replay
}
