// Package vitest parses the Jest-compatible JSON written by
// `vitest run --reporter=json`.
package vitest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dkoosis/megaqa/pkg/qa"
)

// Report is the reporter document.
type Report struct {
	NumTotalTests   int          `json:"numTotalTests"`
	NumPassedTests  int          `json:"numPassedTests"`
	NumFailedTests  int          `json:"numFailedTests"`
	NumPendingTests int          `json:"numPendingTests"`
	Success         bool         `json:"success"`
	TestResults     []FileResult `json:"testResults"`
}

// FileResult groups the assertions of one test file.
type FileResult struct {
	Name             string      `json:"name"`
	Status           string      `json:"status"`
	Message          string      `json:"message"`
	AssertionResults []Assertion `json:"assertionResults"`
}

// Assertion is a single test.
type Assertion struct {
	AncestorTitles  []string `json:"ancestorTitles"`
	FullName        string   `json:"fullName"`
	Title           string   `json:"title"`
	Status          string   `json:"status"`
	Duration        float64  `json:"duration"`
	FailureMessages []string `json:"failureMessages"`
}

// Case is a flattened test.
type Case struct {
	Title      string
	File       string
	Status     qa.TestStatus
	DurationMs int64
	Error      string
	Stack      string
}

// ParseBytes decodes a report, skipping any banner printed before the JSON.
func ParseBytes(data []byte) (*Report, error) {
	if i := bytes.IndexByte(data, '{'); i > 0 {
		data = data[i:]
	}
	var rep Report
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&rep); err != nil {
		return nil, fmt.Errorf("decode vitest report: %w", err)
	}
	if rep.TestResults == nil {
		return nil, fmt.Errorf("decode vitest report: no testResults")
	}
	return &rep, nil
}

// Cases flattens the report. A file that failed to load (syntax error,
// missing import) with no assertions becomes a single failed case so the
// failure is not lost.
func (r *Report) Cases() []Case {
	var out []Case
	for _, f := range r.TestResults {
		if len(f.AssertionResults) == 0 && f.Status == "failed" {
			msg, stack := splitMessage(f.Message)
			if msg == "" {
				msg = "test file failed to run"
			}
			out = append(out, Case{Title: f.Name, File: f.Name, Status: qa.TestFail, Error: msg, Stack: stack})
			continue
		}
		for _, a := range f.AssertionResults {
			c := Case{
				Title:      a.FullName,
				File:       f.Name,
				DurationMs: int64(a.Duration),
			}
			if c.Title == "" {
				c.Title = strings.Join(append(append([]string(nil), a.AncestorTitles...), a.Title), " > ")
			}
			c.Status, _ = qa.ParseTestStatus(a.Status)
			if c.Status == qa.TestFail {
				c.Error, c.Stack = splitMessage(strings.Join(a.FailureMessages, "\n"))
				if c.Error == "" {
					c.Error = "test " + a.Status
				}
			}
			out = append(out, c)
		}
	}
	return out
}

func splitMessage(s string) (msg, stack string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	msg, stack, _ = strings.Cut(s, "\n")
	return strings.TrimSpace(msg), stack
}
