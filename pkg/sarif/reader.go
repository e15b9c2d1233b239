package sarif

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ReadFile parses a SARIF file from disk.
func ReadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sarif file: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Read parses SARIF from an io.Reader.
func Read(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode sarif: %w", err)
	}

	if doc.Version == "" {
		return nil, fmt.Errorf("missing sarif version")
	}

	return &doc, nil
}

// ReadBytes parses SARIF held in memory.
func ReadBytes(data []byte) (*Document, error) {
	return Read(bytes.NewReader(data))
}

// Finding is a flattened SARIF result.
type Finding struct {
	Tool    string
	RuleID  string
	Level   string
	Message string
	File    string
	Line    int
	Col     int
}

// Location renders file:line:col, omitting zero parts.
func (f Finding) Location() string {
	if f.File == "" {
		return ""
	}
	loc := f.File
	if f.Line > 0 {
		loc += ":" + strconv.Itoa(f.Line)
		if f.Col > 0 {
			loc += ":" + strconv.Itoa(f.Col)
		}
	}
	return loc
}

// Blocking reports whether the finding should fail a suite. SARIF treats a
// missing level as "warning".
func (f Finding) Blocking() bool {
	return f.Level == "error"
}

// Findings flattens every run's results in document order.
func Findings(doc *Document) []Finding {
	if doc == nil {
		return nil
	}
	var out []Finding
	for _, run := range doc.Runs {
		for _, r := range run.Results {
			f := Finding{
				Tool:    run.Tool.Driver.Name,
				RuleID:  r.RuleID,
				Level:   r.Level,
				Message: r.Message.Text,
			}
			if f.Level == "" {
				f.Level = "warning"
			}
			if len(r.Locations) > 0 {
				pl := r.Locations[0].PhysicalLocation
				f.File = pl.ArtifactLocation.URI
				f.Line = pl.Region.StartLine
				f.Col = pl.Region.StartColumn
			}
			out = append(out, f)
		}
	}
	return out
}
