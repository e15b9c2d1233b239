package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dkoosis/megaqa/pkg/qa"
)

// Plain renders a report as terse plain text for logs and pipes.
// Zero ANSI codes; failures are sorted so output is stable across runs.
type Plain struct{}

// NewPlain creates a plain renderer.
func NewPlain() *Plain {
	return &Plain{}
}

// Render formats the report as plain text.
func (p *Plain) Render(r Report) string {
	var sb strings.Builder
	b := r.Bundle
	m := b.Manifest

	fmt.Fprintf(&sb, "RESULT: %s run=%s mode=%s seed=%d duration=%s\n",
		strings.ToUpper(string(m.Result)), m.RunID, m.Mode, m.Seed, formatDuration(m.DurationMs))

	for _, s := range b.Suites {
		if s.Status == qa.SuiteError {
			fmt.Fprintf(&sb, "SUITE %s %s error=%q\n", strings.ToUpper(string(s.Status)), s.Name, s.Error)
			continue
		}
		fmt.Fprintf(&sb, "SUITE %s %s %d/%d skipped=%d %s\n",
			strings.ToUpper(string(s.Status)), s.Name, s.Counts.Passed, s.Counts.Total, s.Counts.Skipped, formatDuration(s.DurationMs))
	}

	c := b.Coverage
	gate := "pass"
	if !c.Passed {
		gate = "fail"
	}
	fmt.Fprintf(&sb, "COVERAGE %.1f%% gate=%s", c.CoveragePercent, gate)
	if len(c.Missing) > 0 {
		fmt.Fprintf(&sb, " missing=%s", strings.Join(c.Missing, ","))
	}
	if len(c.Waived) > 0 {
		fmt.Fprintf(&sb, " waived=%s", strings.Join(c.Waived, ","))
	}
	sb.WriteString("\n")

	failures := append([]qa.Failure(nil), b.Failures...)
	sort.SliceStable(failures, func(i, j int) bool {
		if failures[i].IsKnown != failures[j].IsKnown {
			return !failures[i].IsKnown
		}
		return failures[i].ID < failures[j].ID
	})
	for _, f := range failures {
		kind := "NEW"
		if f.IsKnown {
			kind = "KNOWN"
		}
		fmt.Fprintf(&sb, "FAIL %s %s [%s] %s > %s: %s\n",
			kind, f.ID, f.Classification, f.Suite, f.TestName, firstLine(f.ErrorMessage))
	}

	for _, bug := range r.Bugs {
		fmt.Fprintf(&sb, "BUG %s %s %s\n", bug.ID, bug.Priority, bug.PromptPath)
	}
	if r.Dir != "" {
		fmt.Fprintf(&sb, "BUNDLE %s\n", r.Dir)
	}
	return sb.String()
}
