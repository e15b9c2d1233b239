package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dkoosis/megaqa/pkg/classify"
	"github.com/dkoosis/megaqa/pkg/knownfail"
	"github.com/dkoosis/megaqa/pkg/qa"
)

const maxErrorBytes = 4000

// Exec runs suites as subprocesses.
type Exec struct {
	RunID       string
	Mode        string
	Scenario    string
	Seed        int64
	Persona     string
	APIPrefixes []string
	// Grep restricts every suite to the test with this recorded name.
	Grep        string
	Known       knownfail.Registry
	Log         *slog.Logger
	Now         func() time.Time
}

var _ Runner = (*Exec)(nil)

// Run executes one suite and never returns an error: every failure mode
// is folded into the Outcome.
func (e *Exec) Run(ctx context.Context, spec Spec) Outcome {
	log := e.logger().With("suite", spec.Name, "tool", spec.Tool)
	res := qa.SuiteResult{
		Name:        spec.Name,
		Category:    spec.Category,
		Tool:        spec.Tool,
		Tests:       []qa.Test{},
		CoveredTags: []string{},
		FailureIDs:  []string{},
	}

	if err := ctx.Err(); err != nil {
		return crashed(res, fmt.Sprintf("not started: %v", err))
	}
	if !knownTool(spec.Tool) {
		return crashed(res, fmt.Sprintf("unknown tool %q", spec.Tool))
	}

	if e.Grep != "" {
		spec.Command = append(append([]string(nil), spec.Command...), FilterArgs(spec.Tool, e.Grep)...)
	}
	log.Info("suite started", "command", strings.Join(spec.Command, " "))
	c := execute(ctx, spec, e.childEnv(spec))
	res.DurationMs = c.duration.Milliseconds()
	res.ExitCode = c.exitCode

	if c.startErr != nil {
		log.Warn("suite could not start", "error", c.startErr)
		return crashed(res, c.startErr.Error())
	}
	if c.timedOut {
		log.Warn("suite timed out", "timeout", spec.Timeout)
		return crashed(res, fmt.Sprintf("timed out after %s", spec.Timeout))
	}

	cases, err := parseCases(spec, c)
	if err != nil {
		log.Warn("suite output unparseable", "exit_code", c.exitCode, "error", err)
		return crashed(res, crashMessage(c, err))
	}

	out := e.normalize(spec, res, cases, c)
	if len(out.Failures) == 0 && c.exitCode != 0 {
		log.Warn("suite exited non-zero without failing tests", "exit_code", c.exitCode)
		return crashed(res, crashMessage(c, fmt.Errorf("exit status %d with no failing tests", c.exitCode)))
	}
	log.Info("suite finished",
		"status", out.Result.Status,
		"passed", out.Result.Counts.Passed,
		"failed", out.Result.Counts.Failed,
		"duration_ms", out.Result.DurationMs)
	return out
}

func (e *Exec) normalize(spec Spec, res qa.SuiteResult, cases []caseResult, c capture) Outcome {
	tags := map[string]bool{}
	suiteMarkers := scanMarkers(rawOutput(spec, c))
	for _, t := range suiteMarkers.tags {
		tags[t] = true
	}
	for _, t := range spec.Tags {
		tags[t] = true
	}

	classifier := classify.New(e.APIPrefixes)
	slug := Slug(spec.Name)

	var failures []qa.Failure
	for _, cr := range cases {
		res.Tests = append(res.Tests, qa.Test{
			Name:       cr.name,
			Status:     cr.status,
			DurationMs: cr.durationMs,
			Tags:       cr.tags,
		})
		res.Counts.Add(cr.status)

		m := scanMarkers(cr.output)
		caseTags := dedupe(append(append([]string(nil), cr.tags...), m.tags...))
		if cr.status != qa.TestFail {
			if cr.status == qa.TestPass {
				for _, t := range caseTags {
					tags[t] = true
				}
			}
			continue
		}

		ev := cr.evidence
		ev.ConsoleErrors = append([]string{}, m.console...)
		ev.NetworkFailures = append([]qa.NetworkFailure{}, m.network...)
		replay := cr.replay
		if replay == nil {
			replay = m.replay
		}

		f := qa.Failure{
			ID:           slug + "-" + strconv.Itoa(len(failures)+1),
			TestName:     cr.name,
			Suite:        spec.Name,
			ErrorMessage: cr.errMsg,
			ErrorStack:   cr.stack,
			Evidence:     ev,
			Timestamp:    e.now().UTC(),
			CoveredTags:  caseTags,
			Replay: completeReplay(replay, e.Seed, firstNonEmpty(spec.Persona, e.Persona), ReplayTarget{
				Mode:     e.Mode,
				Scenario: e.Scenario,
				Suite:    spec.Name,
				Test:     cr.name,
			}),
		}
		f.Classification = classifier.Classify(classify.Input{
			ErrorMessage:    f.ErrorMessage,
			ErrorStack:      f.ErrorStack,
			ConsoleErrors:   ev.ConsoleErrors,
			NetworkFailures: ev.NetworkFailures,
			Category:        spec.Category,
			PassedOnRetry:   cr.passedOnRetry,
		})
		failures = append(failures, f)
		res.FailureIDs = append(res.FailureIDs, f.ID)
	}

	res.Status = qa.SuitePass
	if res.Counts.Failed > 0 {
		res.Status = qa.SuiteFail
	}
	res.CoveredTags = sortedKeys(tags)
	failures = knownfail.Mark(e.Known, failures)
	return Outcome{Result: res, Failures: failures, Tags: res.CoveredTags}
}

// rawOutput is the tool output not already consumed as a structured
// report. Markers embedded in a JSON report are read per test instead.
func rawOutput(spec Spec, c capture) []string {
	lines := splitOutput(c.stderr)
	if spec.ReportFile != "" || spec.Tool == ToolCommand || spec.Tool == ToolDiag {
		lines = append(splitOutput(c.stdout), lines...)
	}
	return lines
}

// childEnv exposes the run parameters to the tool so tests can seed
// their randomness and pick a persona.
func (e *Exec) childEnv(spec Spec) map[string]string {
	env := map[string]string{
		"MEGAQA_SEED":    strconv.FormatInt(e.Seed, 10),
		"MEGAQA_SUITE":   spec.Name,
		"MEGAQA_PERSONA": firstNonEmpty(spec.Persona, e.Persona, DefaultPersona),
	}
	if e.RunID != "" {
		env["MEGAQA_RUN_ID"] = e.RunID
	}
	if e.Mode != "" {
		env["MEGAQA_MODE"] = e.Mode
	}
	if e.Scenario != "" {
		env["MEGAQA_SCENARIO"] = e.Scenario
	}
	if e.Grep != "" {
		env["MEGAQA_GREP"] = e.Grep
	}
	if spec.ArtifactDir != "" {
		env["MEGAQA_ARTIFACT_DIR"] = spec.ArtifactDir
	}
	return env
}

func (e *Exec) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

func (e *Exec) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// crashed converts res into an error result with no failures and no
// credited tags.
func crashed(res qa.SuiteResult, msg string) Outcome {
	res.Status = qa.SuiteError
	res.Error = msg
	res.Tests = []qa.Test{}
	res.Counts = qa.Counts{}
	res.CoveredTags = []string{}
	res.FailureIDs = []string{}
	return Outcome{Result: res, Failures: []qa.Failure{}, Tags: []string{}}
}

func crashMessage(c capture, err error) string {
	msg := fmt.Sprintf("%v: %v", ErrToolCrash, err)
	if tail := truncateOutput(c.stderr, maxErrorBytes); tail != "" {
		msg += "\n" + tail
	}
	return msg
}

// Slug lowercases name and collapses everything but letters and digits
// into single dashes.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if s == "" {
		return "suite"
	}
	return s
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
