package packager

import (
	"bytes"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dkoosis/megaqa/pkg/qa"
)

const (
	maxStackLines = 30
	maxSteps      = 10
	maxURLs       = 5
	maxTitleRunes = 80
)

// titleCase title-cases s in English. Casers are stateful, so each call builds one.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

func renderLedgerEntry(e qa.BugEntry, m qa.RunManifest) string {
	f := e.Failure
	var b strings.Builder
	b.WriteString("### " + e.ID + ": " + title(f) + "\n\n")
	b.WriteString("- **Status:** ready\n")
	b.WriteString("- **Priority:** " + string(e.Priority) + "\n")
	b.WriteString("- **Estimate:** TBD\n")
	b.WriteString("- **Module:** `" + f.Suite + "`\n")
	b.WriteString("- **Discovered:** " + discovered(f, m) + " (run " + m.RunID + ")\n")
	b.WriteString("- **Classification:** " + titleCase(string(f.Classification)) + "\n")
	b.WriteString("- **Test:** " + f.TestName + "\n")
	b.WriteString("- **Prompt:** `" + e.PromptPath + "`\n")
	b.WriteString("- **Signature:** `" + e.Signature + "`\n\n")
	b.WriteString("**Problem:** " + firstLine(f.ErrorMessage) + "\n\n")
	b.WriteString("**Investigation:**\n\n")
	b.WriteString("- [ ] Reproduce with `" + f.Replay.ReplayCommand + "`\n")
	b.WriteString("- [ ] Review evidence (trace, screenshot, console, network)\n")
	b.WriteString("- [ ] Identify root cause\n")
	b.WriteString("- [ ] Add or fix a regression test\n")
	return b.String()
}

func discovered(f qa.Failure, m qa.RunManifest) string {
	if !m.StartedAt.IsZero() {
		return m.StartedAt.UTC().Format("2006-01-02")
	}
	if !f.Timestamp.IsZero() {
		return f.Timestamp.UTC().Format("2006-01-02")
	}
	return "unknown"
}

func title(f qa.Failure) string {
	t := f.TestName
	if t == "" {
		t = firstLine(f.ErrorMessage)
	}
	if r := []rune(t); len(r) > maxTitleRunes {
		t = string(r[:maxTitleRunes-1]) + "…"
	}
	return t
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if s == "" {
		return "(no error message)"
	}
	return s
}

type promptData struct {
	Entry          qa.BugEntry
	Failure        qa.Failure
	Manifest       qa.RunManifest
	Kind           string
	Stack          string
	StackShown     int
	StackTruncated int
	Steps          []qa.Step
	StepsOmitted   int
	URLs           []string
	URLsOmitted    int
}

var promptTmpl = template.Must(template.New("prompt").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`# {{.Entry.ID}}: {{.Kind}} failure in {{.Failure.Suite}}

You are fixing a bug found by the automated QA run ` + "`{{.Manifest.RunID}}`" + `.
Priority: **{{.Entry.Priority}}**. Classification: **{{.Failure.Classification}}** (advisory).

## Failing test

- Suite: ` + "`{{.Failure.Suite}}`" + `
- Test: ` + "`{{.Failure.TestName}}`" + `
- Persona: ` + "`{{.Failure.Replay.Persona}}`" + `
- Seed: ` + "`{{.Failure.Replay.Seed}}`" + `

## Error

` + "```" + `
{{.Failure.ErrorMessage}}
` + "```" + `
{{- if .Stack}}

### Stack
{{- if .StackTruncated}} (first {{.StackShown}} lines, {{.StackTruncated}} more omitted){{end}}

` + "```" + `
{{.Stack}}
` + "```" + `
{{- end}}

## Steps to reproduce
{{if .Steps}}{{if .StepsOmitted}}
({{.StepsOmitted}} earlier steps omitted)
{{end}}
{{range $i, $s := .Steps}}{{inc $i}}. {{$s.Action}}{{if $s.Target}} ` + "`{{$s.Target}}`" + `{{end}}{{if $s.Value}} = ` + "`{{$s.Value}}`" + `{{end}}{{if $s.URL}} on {{$s.URL}}{{end}}
{{end}}{{else}}
No steps were recorded; use the replay command.
{{end}}
{{- if .URLs}}
### Recent URLs
{{if .URLsOmitted}}
({{.URLsOmitted}} earlier URLs omitted)
{{end}}
{{range .URLs}}- {{.}}
{{end}}{{end}}
### Replay

` + "```sh" + `
{{.Failure.Replay.ReplayCommand}}
` + "```" + `

## Evidence
{{with .Failure.Evidence}}
{{- if .TracePath}}
- Trace: ` + "`{{.TracePath}}`" + `{{end}}
{{- if .ScreenshotPath}}
- Screenshot: ` + "`{{.ScreenshotPath}}`" + `{{end}}
{{- if .VideoPath}}
- Video: ` + "`{{.VideoPath}}`" + `{{end}}
{{- range .ConsoleErrors}}
- Console: {{.}}{{end}}
{{- range .NetworkFailures}}
- Network: {{.Method}} {{.URL}} -> {{if .Status}}{{.Status}}{{else}}no response{{end}}{{if .Error}} ({{.Error}}){{end}}{{end}}
{{- if not (or .TracePath .ScreenshotPath .VideoPath .ConsoleErrors .NetworkFailures)}}
- None captured.{{end}}
{{- end}}

## Instructions

1. Reproduce the failure with the replay command above.
2. Find the root cause; do not weaken or skip the test.
3. Fix it and re-run the replay command.
4. Record the root cause in the ledger entry for {{.Entry.ID}}.

## Acceptance

- [ ] Replay command passes 3 consecutive times
- [ ] Root cause documented in the ledger
- [ ] No regressions in the full QA run
`))

func renderPrompt(e qa.BugEntry, m qa.RunManifest) (string, error) {
	f := e.Failure
	d := promptData{
		Entry:    e,
		Failure:  f,
		Manifest: m,
		Kind:     titleCase(strings.ReplaceAll(string(f.Classification), "-", " ")),
	}

	if stack := strings.TrimRight(f.ErrorStack, "\n"); stack != "" {
		lines := strings.Split(stack, "\n")
		if len(lines) > maxStackLines {
			d.StackTruncated = len(lines) - maxStackLines
			lines = lines[:maxStackLines]
		}
		d.Stack = strings.Join(lines, "\n")
		d.StackShown = len(lines)
	}

	d.Steps = f.Replay.Steps
	if n := len(d.Steps); n > maxSteps {
		d.StepsOmitted = n - maxSteps
		d.Steps = d.Steps[n-maxSteps:]
	}
	d.URLs = f.Replay.URLHistory
	if n := len(d.URLs); n > maxURLs {
		d.URLsOmitted = n - maxURLs
		d.URLs = d.URLs[n-maxURLs:]
	}

	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}
