package qa

import (
	"encoding/json"
	"strings"
)

// Classification is the advisory root-cause bucket of a failure.
type Classification string

const (
	ClassFrontend    Classification = "frontend"
	ClassBackend     Classification = "backend"
	ClassTestIssue   Classification = "test-issue"
	ClassEnvironment Classification = "environment"
)

// DefaultClassification is used when evidence is ambiguous or a stored
// value is not recognized.
const DefaultClassification = ClassFrontend

// ParseClassification maps s to a known classification. ok is false when s
// was not recognized; the returned value is then DefaultClassification.
func ParseClassification(s string) (Classification, bool) {
	switch c := Classification(strings.ToLower(strings.TrimSpace(s))); c {
	case ClassFrontend, ClassBackend, ClassTestIssue, ClassEnvironment:
		return c, true
	case "test_issue", "testissue", "test":
		return ClassTestIssue, true
	case "env":
		return ClassEnvironment, true
	}
	return DefaultClassification, false
}

// UnmarshalJSON coerces unknown classifications to the default instead of
// failing the whole document.
func (c *Classification) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c, _ = ParseClassification(s)
	return nil
}

// SuiteStatus is the outcome of one suite invocation.
type SuiteStatus string

const (
	SuitePass  SuiteStatus = "pass"
	SuiteFail  SuiteStatus = "fail"
	SuiteError SuiteStatus = "error"
)

// ParseSuiteStatus maps s to a suite status. Unknown values become
// SuiteError, the only choice that cannot make a broken run look green.
func ParseSuiteStatus(s string) (SuiteStatus, bool) {
	switch st := SuiteStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case SuitePass, SuiteFail, SuiteError:
		return st, true
	case "passed", "ok":
		return SuitePass, true
	case "failed":
		return SuiteFail, true
	}
	return SuiteError, false
}

// UnmarshalJSON coerces unknown statuses to SuiteError.
func (s *SuiteStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s, _ = ParseSuiteStatus(raw)
	return nil
}

// TestStatus is the outcome of a single test case.
type TestStatus string

const (
	TestPass TestStatus = "pass"
	TestFail TestStatus = "fail"
	TestSkip TestStatus = "skip"
)

// ParseTestStatus accepts the spellings used by the supported tools
// (go test, Playwright, Vitest/Jest). Unknown values map to TestFail.
func ParseTestStatus(s string) (TestStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pass", "passed", "expected", "ok":
		return TestPass, true
	case "fail", "failed", "unexpected", "timedout", "interrupted", "broken":
		return TestFail, true
	case "skip", "skipped", "pending", "todo", "disabled":
		return TestSkip, true
	}
	return TestFail, false
}

// UnmarshalJSON coerces unknown statuses to TestFail.
func (s *TestStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s, _ = ParseTestStatus(raw)
	return nil
}

// RunResult is the overall verdict recorded in the manifest.
type RunResult string

const (
	RunPass RunResult = "pass"
	RunFail RunResult = "fail"
)

// TagCategory groups coverage tags for reporting.
type TagCategory string

const (
	CategoryProtocol   TagCategory = "protocol"
	CategoryRoute      TagCategory = "route"
	CategoryAPI        TagCategory = "api"
	CategoryRegression TagCategory = "regression"
	CategoryInvariant  TagCategory = "invariant"
	CategoryOther      TagCategory = "other"
)

// ParseTagCategory maps s to a category, falling back to CategoryOther.
func ParseTagCategory(s string) TagCategory {
	switch c := TagCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryProtocol, CategoryRoute, CategoryAPI, CategoryRegression, CategoryInvariant:
		return c
	}
	return CategoryOther
}

// Priority is the ticket priority assigned by the packager.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)
