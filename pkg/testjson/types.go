// Package testjson parses go test -json NDJSON streams.
package testjson

import (
	"time"

	"github.com/dkoosis/megaqa/pkg/qa"
)

// TestEvent represents a single event from go test -json output.
type TestEvent struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"` // start, run, pass, fail, skip, output, bench, pause, cont
	Package string    `json:"Package"`
	Test    string    `json:"Test"`
	Elapsed float64   `json:"Elapsed"`
	Output  string    `json:"Output"`
}

// TestResult represents a single test with its status.
type TestResult struct {
	Name     string
	Status   qa.TestStatus
	Duration time.Duration
	Output   []string
}

// PackageResult represents aggregated results for one package.
type PackageResult struct {
	Name        string
	Duration    time.Duration
	Coverage    float64
	Tests       []TestResult
	BuildError  string // non-empty if package failed to build
	Panicked    bool
	PanicOutput []string
}

// Counts tallies the package's test outcomes.
func (r *PackageResult) Counts() qa.Counts {
	var c qa.Counts
	for _, t := range r.Tests {
		c.Add(t.Status)
	}
	return c
}

// Failed reports whether the package should count as failing.
func (r *PackageResult) Failed() bool {
	return r.BuildError != "" || r.Panicked || r.Counts().Failed > 0
}
