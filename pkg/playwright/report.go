// Package playwright parses the Playwright JSON reporter output into a flat
// list of test cases.
package playwright

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/dkoosis/megaqa/pkg/qa"
)

// Report is the top level of the JSON reporter document.
type Report struct {
	Suites []Suite      `json:"suites"`
	Errors []ErrorInfo  `json:"errors,omitempty"`
	Stats  *ReportStats `json:"stats,omitempty"`
}

// ReportStats is the reporter's own tally.
type ReportStats struct {
	Expected   int     `json:"expected"`
	Unexpected int     `json:"unexpected"`
	Flaky      int     `json:"flaky"`
	Skipped    int     `json:"skipped"`
	Duration   float64 `json:"duration"`
}

// Suite is a file or describe block. Suites nest.
type Suite struct {
	Title  string  `json:"title"`
	File   string  `json:"file,omitempty"`
	Suites []Suite `json:"suites,omitempty"`
	Specs  []Spec  `json:"specs,omitempty"`
}

// Spec is one test() declaration; it has a TestCase per project.
type Spec struct {
	Title string     `json:"title"`
	OK    bool       `json:"ok"`
	Tags  []string   `json:"tags,omitempty"`
	File  string     `json:"file,omitempty"`
	Tests []TestCase `json:"tests,omitempty"`
}

// TestCase is a spec run under one project, possibly retried.
type TestCase struct {
	ExpectedStatus string       `json:"expectedStatus"`
	ProjectName    string       `json:"projectName"`
	Status         string       `json:"status"` // expected, unexpected, flaky, skipped
	Annotations    []Annotation `json:"annotations,omitempty"`
	Results        []Result     `json:"results"`
}

// Annotation is a test.info().annotations entry.
type Annotation struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Result is one attempt.
type Result struct {
	Status      string       `json:"status"` // passed, failed, timedOut, skipped, interrupted
	Duration    float64      `json:"duration"`
	Retry       int          `json:"retry"`
	Error       *ErrorInfo   `json:"error,omitempty"`
	Errors      []ErrorInfo  `json:"errors,omitempty"`
	Stdout      []Output     `json:"stdout,omitempty"`
	Stderr      []Output     `json:"stderr,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ErrorInfo is an error as serialized by the reporter.
type ErrorInfo struct {
	Message string `json:"message,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// Output is a chunk of captured stdio.
type Output struct {
	Text   string `json:"text,omitempty"`
	Buffer string `json:"buffer,omitempty"` // base64
}

// String returns the chunk as text.
func (o Output) String() string {
	if o.Text != "" || o.Buffer == "" {
		return o.Text
	}
	b, err := base64.StdEncoding.DecodeString(o.Buffer)
	if err != nil {
		return ""
	}
	return string(b)
}

// Attachment is a file or inline body attached to a result.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Path        string `json:"path,omitempty"`
	Body        string `json:"body,omitempty"` // base64
}

// Decode returns the attachment content, reading Path when there is no
// inline body.
func (a Attachment) Decode() ([]byte, error) {
	if a.Body != "" {
		return base64.StdEncoding.DecodeString(a.Body)
	}
	if a.Path == "" {
		return nil, fmt.Errorf("attachment %q has no content", a.Name)
	}
	return os.ReadFile(a.Path)
}

// Case is a flattened test case: the last attempt decides the status.
type Case struct {
	Title         string
	File          string
	Project       string
	Status        qa.TestStatus
	DurationMs    int64
	Attempts      int
	PassedOnRetry bool
	Error         string
	Stack         string
	Tags          []string
	Output        []string
	Attachments   []Attachment
}

// Parse decodes a reporter document.
func Parse(r io.Reader) (*Report, error) {
	var rep Report
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return nil, fmt.Errorf("decode playwright report: %w", err)
	}
	if rep.Suites == nil && rep.Stats == nil {
		return nil, fmt.Errorf("decode playwright report: no suites")
	}
	return &rep, nil
}

// ParseBytes decodes a reporter document held in memory. Leading noise
// before the first '{' (npm banners) is skipped.
func ParseBytes(data []byte) (*Report, error) {
	if i := bytes.IndexByte(data, '{'); i > 0 {
		data = data[i:]
	}
	return Parse(bytes.NewReader(data))
}

// Cases flattens the suite tree in document order.
func (r *Report) Cases() []Case {
	var out []Case
	for _, s := range r.Suites {
		out = walk(out, s, nil, s.File)
	}
	return out
}

func walk(out []Case, s Suite, path []string, file string) []Case {
	if s.File != "" {
		file = s.File
	}
	// File-level suites carry the file name as title; keep it out of test names.
	if s.Title != "" && s.Title != s.File {
		path = append(append([]string(nil), path...), s.Title)
	}
	for _, spec := range s.Specs {
		specFile := file
		if spec.File != "" {
			specFile = spec.File
		}
		title := strings.Join(append(append([]string(nil), path...), spec.Title), " › ")
		for _, tc := range spec.Tests {
			out = append(out, flatten(title, specFile, spec, tc))
		}
	}
	for _, child := range s.Suites {
		out = walk(out, child, path, file)
	}
	return out
}

var titleTag = regexp.MustCompile(`@([A-Za-z0-9:/._\-]+)`)

func flatten(title, file string, spec Spec, tc TestCase) Case {
	c := Case{
		Title:    title,
		File:     file,
		Project:  tc.ProjectName,
		Attempts: len(tc.Results),
	}

	tags := map[string]bool{}
	for _, t := range spec.Tags {
		tags[strings.TrimPrefix(t, "@")] = true
	}
	for _, m := range titleTag.FindAllStringSubmatch(spec.Title, -1) {
		tags[m[1]] = true
	}
	for _, a := range tc.Annotations {
		if a.Type == "coverage" && strings.TrimSpace(a.Description) != "" {
			tags[strings.TrimSpace(a.Description)] = true
		}
	}

	var last Result
	sawFailure := false
	for _, res := range tc.Results {
		c.DurationMs += int64(res.Duration)
		st, _ := qa.ParseTestStatus(res.Status)
		if st == qa.TestFail {
			sawFailure = true
			if e := firstError(res); e.Message != "" {
				c.Error, c.Stack = e.Message, e.Stack
			}
		}
		for _, o := range res.Stdout {
			c.Output = append(c.Output, splitLines(o.String())...)
		}
		for _, o := range res.Stderr {
			c.Output = append(c.Output, splitLines(o.String())...)
		}
		c.Attachments = append(c.Attachments, res.Attachments...)
		last = res
	}

	switch {
	case tc.Status == "skipped" || (len(tc.Results) == 0 && tc.ExpectedStatus == "skipped"):
		c.Status = qa.TestSkip
	case len(tc.Results) == 0:
		c.Status, _ = qa.ParseTestStatus(tc.Status)
	default:
		c.Status, _ = qa.ParseTestStatus(last.Status)
	}
	if c.Status == qa.TestPass && (sawFailure || tc.Status == "flaky") {
		c.PassedOnRetry = true
	}
	if c.Status == qa.TestFail && c.Error == "" {
		c.Error = "test " + last.Status
	}

	for t := range tags {
		c.Tags = append(c.Tags, t)
	}
	sort.Strings(c.Tags)
	return c
}

func firstError(res Result) ErrorInfo {
	if res.Error != nil && res.Error.Message != "" {
		return *res.Error
	}
	for _, e := range res.Errors {
		if e.Message != "" {
			return e
		}
	}
	return ErrorInfo{}
}

func splitLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimRight(l, "\r"); strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}
