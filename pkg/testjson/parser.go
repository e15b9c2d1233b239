package testjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dkoosis/megaqa/pkg/qa"
)

// ParseStream parses go test -json NDJSON from a reader, line by line.
// Returns the parsed results, the number of malformed lines skipped, and any error.
// Non-JSON lines (build output interleaved by go test) count as malformed.
func ParseStream(r io.Reader) ([]PackageResult, int, error) {
	agg := newAggregator()
	scanner := bufio.NewScanner(r)
	// Allow large lines for verbose test output
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var malformed int
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event TestEvent
		if err := json.Unmarshal(line, &event); err != nil {
			malformed++
			continue
		}
		agg.processEvent(event)
	}
	if err := scanner.Err(); err != nil {
		return nil, malformed, fmt.Errorf("scanning test output: %w", err)
	}
	return agg.results(), malformed, nil
}

// ParseBytes is a convenience for parsing from a byte slice.
func ParseBytes(data []byte) ([]PackageResult, int, error) {
	return ParseStream(bytes.NewReader(data))
}

// FailureMessage splits a failed test's output into a headline and the
// remaining detail. Framework chatter (=== RUN, --- FAIL) is dropped.
func FailureMessage(output []string) (msg, detail string) {
	var lines []string
	for _, l := range output {
		t := strings.TrimSpace(l)
		if t == "" || strings.HasPrefix(t, "=== ") || strings.HasPrefix(t, "--- ") {
			continue
		}
		lines = append(lines, t)
	}
	if len(lines) == 0 {
		return "test failed", ""
	}
	return lines[0], strings.Join(lines[1:], "\n")
}

type aggregator struct {
	packages map[string]*pkgState
	order    []string
}

type pkgState struct {
	name        string
	duration    time.Duration
	coverage    float64
	tests       map[string]*TestResult
	testOrder   []string
	buildError  string
	panicked    bool
	panicOutput []string
	// output per test; "" holds package-level output
	outputBuf map[string][]string
}

func newAggregator() *aggregator {
	return &aggregator{packages: make(map[string]*pkgState)}
}

func (a *aggregator) getOrCreate(name string) *pkgState {
	if pkg, ok := a.packages[name]; ok {
		return pkg
	}
	pkg := &pkgState{
		name:      name,
		tests:     make(map[string]*TestResult),
		outputBuf: make(map[string][]string),
	}
	a.packages[name] = pkg
	a.order = append(a.order, name)
	return pkg
}

func (a *aggregator) processEvent(e TestEvent) {
	pkg := a.getOrCreate(e.Package)
	elapsed := time.Duration(e.Elapsed * float64(time.Second))

	switch e.Action {
	case "run":
		if e.Test != "" {
			pkg.getOrCreateTest(e.Test)
		}

	case "pass", "fail", "skip":
		if e.Test == "" {
			pkg.duration = elapsed
			if e.Action == "fail" && len(pkg.testOrder) == 0 {
				pkg.buildError = strings.Join(pkg.outputBuf[""], "\n")
			}
			return
		}
		status, _ := qa.ParseTestStatus(e.Action)
		ts := pkg.getOrCreateTest(e.Test)
		ts.Status = status
		ts.Duration = elapsed
		if status == qa.TestFail {
			ts.Output = pkg.outputBuf[e.Test]
		}

	case "output":
		output := strings.TrimRight(e.Output, "\n")
		if output == "" {
			return
		}
		pkg.outputBuf[e.Test] = append(pkg.outputBuf[e.Test], output)

		if strings.Contains(output, "panic:") || strings.HasPrefix(output, "goroutine ") {
			pkg.panicked = true
			pkg.panicOutput = append(pkg.panicOutput, output)
		}

		if strings.Contains(output, "coverage:") && strings.Contains(output, "% of statements") {
			var cov float64
			_, _ = fmt.Sscanf(strings.TrimSpace(output), "coverage: %f%% of statements", &cov)
			if cov > 0 {
				pkg.coverage = cov
			}
		}
	}
}

func (pkg *pkgState) getOrCreateTest(name string) *TestResult {
	if ts, ok := pkg.tests[name]; ok {
		return ts
	}
	ts := &TestResult{Name: name}
	pkg.tests[name] = ts
	pkg.testOrder = append(pkg.testOrder, name)
	return ts
}

func (a *aggregator) results() []PackageResult {
	results := make([]PackageResult, 0, len(a.order))
	for _, name := range a.order {
		pkg := a.packages[name]
		// Skip packages with no test activity
		if len(pkg.testOrder) == 0 && pkg.buildError == "" && !pkg.panicked {
			continue
		}

		r := PackageResult{
			Name:        pkg.name,
			Duration:    pkg.duration,
			Coverage:    pkg.coverage,
			BuildError:  pkg.buildError,
			Panicked:    pkg.panicked,
			PanicOutput: pkg.panicOutput,
		}
		for _, testName := range pkg.testOrder {
			ts := pkg.tests[testName]
			if ts.Status == "" {
				// started but never finished: the binary died under it
				ts.Status = qa.TestFail
				ts.Output = pkg.outputBuf[testName]
			}
			r.Tests = append(r.Tests, *ts)
		}
		results = append(results, r)
	}
	return results
}
