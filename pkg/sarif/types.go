// Package sarif reads the subset of SARIF 2.1.0 that lint and type-check
// suites need, and converts line-oriented compiler output into the same
// shape, so both can be normalized like test suites.
package sarif

// Version is the only SARIF version produced here.
const Version = "2.1.0"

// Document is a SARIF log. Only the fields findings are built from are
// decoded; everything else in a tool's output is ignored.
type Document struct {
	Version string `json:"version"`
	Runs    []Run  `json:"runs"`
}

type Run struct {
	Tool    Tool     `json:"tool"`
	Results []Result `json:"results"`
}

type Tool struct {
	Driver struct {
		Name string `json:"name"`
	} `json:"driver"`
}

// Result is one reported issue. Level is "error", "warning", "note" or
// "none"; an absent level means warning.
type Result struct {
	RuleID    string     `json:"ruleId"`
	Level     string     `json:"level,omitempty"`
	Message   Message    `json:"message"`
	Locations []Location `json:"locations,omitempty"`
}

type Message struct {
	Text string `json:"text"`
}

type Location struct {
	PhysicalLocation struct {
		ArtifactLocation struct {
			URI string `json:"uri"`
		} `json:"artifactLocation"`
		Region struct {
			StartLine   int `json:"startLine,omitempty"`
			StartColumn int `json:"startColumn,omitempty"`
		} `json:"region"`
	} `json:"physicalLocation"`
}
