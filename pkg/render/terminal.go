package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dkoosis/megaqa/pkg/qa"
)

// Terminal renders a run breakdown as styled terminal output via lipgloss.
type Terminal struct {
	theme Theme
	width int
}

// NewTerminal creates a terminal renderer with the given theme.
func NewTerminal(theme Theme, width int) *Terminal {
	if width <= 0 {
		width = 80
	}
	return &Terminal{theme: theme, width: width}
}

// Render formats the report for terminal display.
func (t *Terminal) Render(r Report) string {
	sections := []string{
		t.renderHeader(r.Bundle),
		t.renderSuites(r.Bundle.Suites),
		t.renderCoverage(r.Bundle.Coverage),
		t.renderFailures(r.Bundle.Failures, r.Bundle.Summary),
		t.renderBugs(r.Bugs),
	}
	if r.Dir != "" {
		sections = append(sections, t.theme.Muted.Render("Bundle: "+r.Dir)+"\n")
	}
	var out []string
	for _, s := range sections {
		if s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n")
}

func (t *Terminal) renderHeader(b qa.ReportBundle) string {
	m := b.Manifest
	verdict := t.theme.Success.Bold(true).Render("PASS")
	if m.Result != qa.RunPass {
		verdict = t.theme.Error.Bold(true).Render("FAIL")
	}
	meta := fmt.Sprintf("run %s  mode %s  seed %d  %s", m.RunID, m.Mode, m.Seed, formatDuration(m.DurationMs))
	if m.GitBranch != "" {
		meta += "  " + m.GitBranch
	}
	return t.theme.Bold.Render("Mega QA") + "  " + verdict + "  " + t.theme.Muted.Render(meta) + "\n"
}

func (t *Terminal) renderSuites(suites []qa.SuiteResult) string {
	if len(suites) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(t.theme.Bold.Render("Suites"))
	sb.WriteString("\n")

	nameWidth := 0
	for _, s := range suites {
		nameWidth = max(nameWidth, lipgloss.Width(s.Name))
	}
	nameWidth = min(nameWidth, max(20, t.width/2))

	for _, s := range suites {
		icon, style := t.theme.suiteIcon(s.Status)
		sb.WriteString("  ")
		sb.WriteString(style.Render(icon))
		sb.WriteString(" ")
		sb.WriteString(fit(s.Name, nameWidth))
		if s.Status == qa.SuiteError {
			rest := t.width - nameWidth - 12
			sb.WriteString("  ")
			sb.WriteString(t.theme.Warning.Render(clip("error: "+s.Error, rest)))
		} else {
			sb.WriteString(fmt.Sprintf("  %5d/%-5d", s.Counts.Passed, s.Counts.Total))
			if s.Counts.Skipped > 0 {
				sb.WriteString(t.theme.Muted.Render(fmt.Sprintf(" %d skipped", s.Counts.Skipped)))
			}
		}
		sb.WriteString(t.theme.Muted.Render("  " + formatDuration(s.DurationMs)))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (t *Terminal) renderCoverage(c qa.CoverageReport) string {
	if len(c.Required) == 0 && len(c.Missing) == 0 {
		return ""
	}
	var sb strings.Builder
	gate := t.theme.Success.Render(t.theme.Icons.Pass + " gate passed")
	if !c.Passed {
		gate = t.theme.Error.Render(t.theme.Icons.Fail + " gate failed")
	}
	satisfied := len(c.Required) - len(c.Missing)
	sb.WriteString(t.theme.Bold.Render("Coverage"))
	sb.WriteString(fmt.Sprintf(" %.1f%% (%d/%d)  ", c.CoveragePercent, satisfied, len(c.Required)))
	sb.WriteString(gate)
	sb.WriteString("\n")
	if len(c.Missing) > 0 {
		sb.WriteString("  " + t.theme.Error.Render("missing:") + " " + clip(strings.Join(c.Missing, ", "), t.width-11) + "\n")
	}
	if len(c.Waived) > 0 {
		sb.WriteString("  " + t.theme.Muted.Render("waived:  "+clip(strings.Join(c.Waived, ", "), t.width-11)) + "\n")
	}
	return sb.String()
}

func (t *Terminal) renderFailures(failures []qa.Failure, s qa.Summary) string {
	if len(failures) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(t.theme.Bold.Render(fmt.Sprintf("Failures (%d new, %d known)", s.NewFailures, s.KnownFailures)))
	sb.WriteString("\n")
	for _, f := range failures {
		icon, style := t.theme.Icons.Fail, t.theme.Error
		if f.IsKnown {
			icon, style = t.theme.Icons.Known, t.theme.Muted
		}
		label := f.Suite + " › " + f.TestName
		if msg := firstLine(f.ErrorMessage); msg != "" {
			label += ": " + msg
		}
		sb.WriteString("  ")
		sb.WriteString(style.Render(icon))
		sb.WriteString(" ")
		sb.WriteString(t.theme.Muted.Render(fit(string(f.Classification), 12)))
		sb.WriteString(clip(label, t.width-18))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (t *Terminal) renderBugs(bugs []qa.BugEntry) string {
	if len(bugs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(t.theme.Bold.Render("New bugs"))
	sb.WriteString("\n")
	for _, b := range bugs {
		sb.WriteString("  ")
		sb.WriteString(t.theme.Primary.Render(b.ID))
		sb.WriteString(" ")
		sb.WriteString(t.priorityStyle(b.Priority).Render(fit(string(b.Priority), 6)))
		sb.WriteString(" ")
		sb.WriteString(t.theme.Muted.Render(b.PromptPath))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (t *Terminal) priorityStyle(p qa.Priority) lipgloss.Style {
	switch p {
	case qa.PriorityHigh:
		return t.theme.Error
	case qa.PriorityMedium:
		return t.theme.Warning
	default:
		return t.theme.Muted
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
