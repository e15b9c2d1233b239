// Package qa defines the data model shared by the QA evidence pipeline.
package qa

import "time"

// BundleVersion is the schema version written into every manifest.
const BundleVersion = "1"

// CoverageTag names a required testing capability.
type CoverageTag struct {
	ID          string      `json:"id" yaml:"id"`
	Category    TagCategory `json:"category" yaml:"category"`
	Description string      `json:"description" yaml:"description"`
	Required    bool        `json:"required" yaml:"required"`
}

// Waiver satisfies a required tag without it being exercised.
type Waiver struct {
	TagID     string `json:"tagId" yaml:"tagId"`
	Rationale string `json:"rationale" yaml:"rationale"`
}

// CoverageReport is the gate verdict for one run.
type CoverageReport struct {
	Required        []CoverageTag `json:"required"`
	Covered         []string      `json:"covered"`
	Missing         []string      `json:"missing"`
	Waived          []string      `json:"waived"`
	Waivers         []Waiver      `json:"waivers"`
	CoveragePercent float64       `json:"coveragePercent"`
	Passed          bool          `json:"passed"`
}

// Counts tallies test outcomes within a suite.
type Counts struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}

// Add records one outcome.
func (c *Counts) Add(s TestStatus) {
	switch s {
	case TestPass:
		c.Passed++
	case TestSkip:
		c.Skipped++
	default:
		c.Failed++
	}
	c.Total++
}

// Test is a single test case observed in a suite.
type Test struct {
	Name       string     `json:"name"`
	Status     TestStatus `json:"status"`
	DurationMs int64      `json:"durationMs"`
	Tags       []string   `json:"tags,omitempty"`
}

// SuiteResult is the normalized outcome of one tool invocation.
type SuiteResult struct {
	Name        string      `json:"name"`
	Category    string      `json:"category"`
	Tool        string      `json:"tool"`
	Status      SuiteStatus `json:"status"`
	Counts      Counts      `json:"counts"`
	DurationMs  int64       `json:"durationMs"`
	ExitCode    int         `json:"exitCode"`
	Tests       []Test      `json:"tests"`
	CoveredTags []string    `json:"coveredTags"`
	FailureIDs  []string    `json:"failureIds"`
	Error       string      `json:"error,omitempty"`
}

// Broken reports whether the suite should fail the run.
func (s SuiteResult) Broken() bool {
	return s.Status == SuiteFail || s.Status == SuiteError
}

// Step is one recorded user interaction leading to a failure.
type Step struct {
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
	Value  string `json:"value,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Replay holds everything needed to reproduce a failure deterministically.
type Replay struct {
	Seed          int64    `json:"seed"`
	Persona       string   `json:"persona"`
	Steps         []Step   `json:"steps"`
	URLHistory    []string `json:"urlHistory"`
	ReplayCommand string   `json:"replayCommand"`
}

// NetworkFailure is a failed request captured while a test ran.
type NetworkFailure struct {
	Method string `json:"method"`
	URL    string `json:"url"`
	Status int    `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Evidence points at captured artifacts for a failure.
type Evidence struct {
	TracePath       string           `json:"tracePath,omitempty"`
	ScreenshotPath  string           `json:"screenshotPath,omitempty"`
	VideoPath       string           `json:"videoPath,omitempty"`
	ConsoleErrors   []string         `json:"consoleErrors"`
	NetworkFailures []NetworkFailure `json:"networkFailures"`
}

// Failure is an immutable record of one failed test in one run.
type Failure struct {
	ID             string         `json:"id"`
	TestName       string         `json:"testName"`
	Suite          string         `json:"suite"`
	Classification Classification `json:"classification"`
	ErrorMessage   string         `json:"errorMessage"`
	ErrorStack     string         `json:"errorStack,omitempty"`
	IsKnown        bool           `json:"isKnown"`
	Replay         Replay         `json:"replay"`
	Evidence       Evidence       `json:"evidence"`
	Timestamp      time.Time      `json:"timestamp"`
	CoveredTags    []string       `json:"coveredTags"`
}

// Environment describes the host a run executed on.
type Environment struct {
	GoVersion     string `json:"goVersion"`
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	Platform      string `json:"platform,omitempty"`
	Hostname      string `json:"hostname,omitempty"`
	CI            bool   `json:"ci"`
	DiskFreeBytes uint64 `json:"diskFreeBytes,omitempty"`
}

// RunManifest identifies a run and records its verdict.
type RunManifest struct {
	Version     string      `json:"version"`
	RunID       string      `json:"runId"`
	GitSHA      string      `json:"gitSha"`
	GitBranch   string      `json:"gitBranch"`
	Mode        string      `json:"mode"`
	Scenario    string      `json:"scenario"`
	Seed        int64       `json:"seed"`
	Result      RunResult   `json:"result"`
	ExitCode    int         `json:"exitCode"`
	DurationMs  int64       `json:"durationMs"`
	StartedAt   time.Time   `json:"startedAt"`
	FinishedAt  time.Time   `json:"finishedAt"`
	Environment Environment `json:"environment"`
}

// ArtifactIndex lists stored evidence files by kind, relative to the run
// directory.
type ArtifactIndex struct {
	Traces      []string `json:"traces"`
	Screenshots []string `json:"screenshots"`
	Videos      []string `json:"videos"`
	VisualDiffs []string `json:"visualDiffs"`
	Other       []string `json:"other"`
}

// Summary is the denormalized headline of a bundle.
type Summary struct {
	TotalTests      int     `json:"totalTests"`
	Passed          int     `json:"passed"`
	Failed          int     `json:"failed"`
	Skipped         int     `json:"skipped"`
	Flaky           int     `json:"flaky"`
	CoveragePercent float64 `json:"coveragePercent"`
	NewFailures     int     `json:"newFailures"`
	KnownFailures   int     `json:"knownFailures"`
	SuitesErrored   int     `json:"suitesErrored"`
}

// ReportBundle is the complete, immutable snapshot of one run.
type ReportBundle struct {
	Manifest  RunManifest    `json:"manifest"`
	Coverage  CoverageReport `json:"coverage"`
	Suites    []SuiteResult  `json:"suites"`
	Failures  []Failure      `json:"failures"`
	Artifacts ArtifactIndex  `json:"artifacts"`
	Summary   Summary        `json:"summary"`
}

// BugEntry is a packaged, numbered ticket for a new failure.
type BugEntry struct {
	ID              string   `json:"id"`
	Failure         Failure  `json:"failure"`
	Priority        Priority `json:"priority"`
	Signature       string   `json:"signature"`
	LedgerEntryText string   `json:"ledgerEntryText"`
	PromptText      string   `json:"promptText"`
	PromptPath      string   `json:"promptPath"`
}
