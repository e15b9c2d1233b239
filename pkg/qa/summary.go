package qa

// Summarize computes the bundle headline from suites, failures and coverage.
func Summarize(suites []SuiteResult, failures []Failure, cov CoverageReport) Summary {
	s := Summary{CoveragePercent: cov.CoveragePercent}
	for _, suite := range suites {
		s.TotalTests += suite.Counts.Total
		s.Passed += suite.Counts.Passed
		s.Failed += suite.Counts.Failed
		s.Skipped += suite.Counts.Skipped
		if suite.Status == SuiteError {
			s.SuitesErrored++
		}
	}
	for _, f := range failures {
		if f.IsKnown {
			s.KnownFailures++
		} else {
			s.NewFailures++
		}
		if f.Classification == ClassTestIssue {
			s.Flaky++
		}
	}
	return s
}

// Verdict derives the run result and process exit code. A run passes only
// when the coverage gate passed and no suite failed or errored, so a crashed
// tool fails the run even when it produced zero failure records.
func Verdict(cov CoverageReport, suites []SuiteResult) (RunResult, int) {
	if !cov.Passed {
		return RunFail, 1
	}
	for _, s := range suites {
		if s.Broken() {
			return RunFail, 1
		}
	}
	return RunPass, 0
}

// NewFailures returns failures not matched by the known-failure registry,
// preserving order.
func NewFailures(failures []Failure) []Failure {
	out := make([]Failure, 0, len(failures))
	for _, f := range failures {
		if !f.IsKnown {
			out = append(out, f)
		}
	}
	return out
}
