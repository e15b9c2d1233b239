package runner

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dkoosis/megaqa/pkg/playwright"
	"github.com/dkoosis/megaqa/pkg/qa"
	"github.com/dkoosis/megaqa/pkg/sarif"
	"github.com/dkoosis/megaqa/pkg/testjson"
	"github.com/dkoosis/megaqa/pkg/vitest"
)

var errNoReport = errors.New("no parseable report")

// knownTool reports whether name selects an adapter.
func knownTool(name string) bool {
	for _, t := range Tools {
		if t == name {
			return true
		}
	}
	return false
}

// parseCases runs the adapter for spec.Tool over the captured output.
func parseCases(spec Spec, c capture) ([]caseResult, error) {
	switch spec.Tool {
	case ToolCommand:
		return commandCases(spec, c), nil
	case ToolDiag:
		doc, err := sarif.FromDiagnostics(bytes.NewReader(append(append([]byte(nil), c.stdout...), c.stderr...)), spec.Name, "diagnostic", "error")
		if err != nil {
			return nil, err
		}
		return sarifCases(spec, doc), nil
	}

	data, err := reportBytes(spec, c)
	if err != nil {
		return nil, err
	}
	switch spec.Tool {
	case ToolGoTest:
		return goTestCases(data)
	case ToolPlaywright:
		rep, err := playwright.ParseBytes(data)
		if err != nil {
			return nil, err
		}
		return playwrightCases(rep), nil
	case ToolVitest:
		rep, err := vitest.ParseBytes(data)
		if err != nil {
			return nil, err
		}
		return vitestCases(rep), nil
	case ToolSARIF:
		doc, err := sarif.ReadBytes(data)
		if err != nil {
			return nil, err
		}
		return sarifCases(spec, doc), nil
	}
	return nil, fmt.Errorf("unknown tool %q", spec.Tool)
}

// reportBytes returns the configured report file, or stdout when none is
// configured.
func reportBytes(spec Spec, c capture) ([]byte, error) {
	if spec.ReportFile == "" {
		if len(bytes.TrimSpace(c.stdout)) == 0 {
			return nil, errNoReport
		}
		return c.stdout, nil
	}
	path := spec.ReportFile
	if !filepath.IsAbs(path) && spec.Dir != "" {
		path = filepath.Join(spec.Dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}
	return data, nil
}

func goTestCases(data []byte) ([]caseResult, error) {
	pkgs, malformed, err := testjson.ParseBytes(data)
	if err != nil {
		return nil, err
	}
	if len(pkgs) == 0 && malformed > 0 {
		return nil, errNoReport
	}
	out := []caseResult{}
	for _, p := range pkgs {
		if p.BuildError != "" {
			msg, detail := testjson.FailureMessage(strings.Split(p.BuildError, "\n"))
			out = append(out, caseResult{name: p.Name + " [build failed]", status: qa.TestFail, errMsg: msg, stack: detail})
		}
		failedTest := false
		for _, t := range p.Tests {
			cr := caseResult{
				name:       p.Name + " " + t.Name,
				status:     t.Status,
				durationMs: t.Duration.Milliseconds(),
				output:     t.Output,
			}
			if t.Status == qa.TestFail {
				failedTest = true
				cr.errMsg, cr.stack = testjson.FailureMessage(t.Output)
			}
			out = append(out, cr)
		}
		if p.Panicked && !failedTest {
			msg, detail := testjson.FailureMessage(p.PanicOutput)
			out = append(out, caseResult{name: p.Name + " [panic]", status: qa.TestFail, errMsg: msg, stack: detail})
		}
	}
	return out, nil
}

func playwrightCases(rep *playwright.Report) []caseResult {
	cases := rep.Cases()
	out := make([]caseResult, 0, len(cases)+len(rep.Errors))
	for _, c := range cases {
		cr := caseResult{
			name:          c.Title,
			status:        c.Status,
			durationMs:    c.DurationMs,
			errMsg:        c.Error,
			stack:         c.Stack,
			tags:          c.Tags,
			output:        c.Output,
			passedOnRetry: c.PassedOnRetry,
		}
		for _, a := range c.Attachments {
			attachEvidence(&cr, a)
		}
		out = append(out, cr)
	}
	// Global errors (globalSetup, config) have no test to hang on.
	for i, e := range rep.Errors {
		msg, stack, _ := strings.Cut(strings.TrimSpace(e.Message), "\n")
		if msg == "" {
			continue
		}
		if e.Stack != "" {
			stack = e.Stack
		}
		out = append(out, caseResult{name: fmt.Sprintf("global error %d", i+1), status: qa.TestFail, errMsg: msg, stack: stack})
	}
	return out
}

// attachEvidence sorts a Playwright attachment into the evidence slots.
// The first attachment of each kind wins.
func attachEvidence(cr *caseResult, a playwright.Attachment) {
	name := strings.ToLower(a.Name)
	ct := strings.ToLower(a.ContentType)
	switch {
	case name == "replay":
		data, err := a.Decode()
		if err != nil {
			return
		}
		var r qa.Replay
		if json.Unmarshal(data, &r) == nil {
			cr.replay = &r
		}
	case a.Path == "":
		return
	case name == "trace" || strings.HasSuffix(a.Path, ".zip"):
		if cr.evidence.TracePath == "" {
			cr.evidence.TracePath = a.Path
		}
	case name == "screenshot" || strings.HasPrefix(ct, "image/"):
		if cr.evidence.ScreenshotPath == "" {
			cr.evidence.ScreenshotPath = a.Path
		}
	case name == "video" || strings.HasPrefix(ct, "video/"):
		if cr.evidence.VideoPath == "" {
			cr.evidence.VideoPath = a.Path
		}
	}
}

func vitestCases(rep *vitest.Report) []caseResult {
	cases := rep.Cases()
	out := make([]caseResult, 0, len(cases))
	for _, c := range cases {
		out = append(out, caseResult{
			name:       c.Title,
			status:     c.Status,
			durationMs: c.DurationMs,
			errMsg:     c.Error,
			stack:      c.Stack,
			tags:       titleTags(c.Title),
		})
	}
	return out
}

// sarifCases turns blocking findings into failed cases. A clean report is
// a single passing case so the suite still has a test count.
func sarifCases(spec Spec, doc *sarif.Document) []caseResult {
	var out []caseResult
	for _, f := range sarif.Findings(doc) {
		if !f.Blocking() {
			continue
		}
		name := f.RuleID
		if loc := f.Location(); loc != "" {
			name = strings.TrimSpace(name + " " + loc)
		}
		out = append(out, caseResult{name: name, status: qa.TestFail, errMsg: f.Message, stack: f.Location()})
	}
	if len(out) == 0 {
		out = append(out, caseResult{name: spec.Name, status: qa.TestPass})
	}
	return out
}

// commandCases maps an exit-code-only check to a single case.
func commandCases(spec Spec, c capture) []caseResult {
	lines := append(splitOutput(c.stdout), splitOutput(c.stderr)...)
	cr := caseResult{name: spec.Name, status: qa.TestPass, durationMs: c.duration.Milliseconds(), output: lines}
	if c.exitCode != 0 {
		cr.status = qa.TestFail
		cr.errMsg = fmt.Sprintf("exit status %d", c.exitCode)
		for i := len(lines) - 1; i >= 0; i-- {
			if l := strings.TrimSpace(lines[i]); l != "" {
				cr.errMsg = l
				break
			}
		}
		cr.stack = truncateOutput(c.stderr, 4000)
	}
	return []caseResult{cr}
}

// titleTags extracts @tag tokens from a test title.
func titleTags(title string) []string {
	var tags []string
	for _, f := range strings.Fields(title) {
		if strings.HasPrefix(f, "@") && len(f) > 1 {
			tags = append(tags, f[1:])
		}
	}
	return tags
}
