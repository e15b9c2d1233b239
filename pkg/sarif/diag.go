package sarif

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// tscLine matches the TypeScript compiler's "file(line,col): error TS1234: msg".
var tscLine = regexp.MustCompile(`^(.+?)\((\d+),(\d+)\):\s*(error|warning)\s+([A-Za-z]+\d+):\s*(.*)$`)

// FromDiagnostics converts line-oriented compiler or linter output into a
// single-run SARIF document named after tool. Lines that are not
// diagnostics are dropped. ruleID and level apply to formats that carry
// neither.
func FromDiagnostics(r io.Reader, tool, ruleID, level string) (*Document, error) {
	run := Run{Results: []Result{}}
	run.Tool.Driver.Name = tool

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if m := tscLine.FindStringSubmatch(line); m != nil {
			ln, _ := strconv.Atoi(m[2])
			col, _ := strconv.Atoi(m[3])
			run.Results = append(run.Results, diagnostic(m[5], m[4], strings.TrimSpace(m[6]), m[1], ln, col))
			continue
		}
		file, ln, col, msg := ParseDiagLine(line)
		if file == "" {
			continue
		}
		run.Results = append(run.Results, diagnostic(ruleID, level, msg, file, ln, col))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading diagnostics: %w", err)
	}
	return &Document{Version: Version, Runs: []Run{run}}, nil
}

func diagnostic(ruleID, level, msg, file string, line, col int) Result {
	var loc Location
	loc.PhysicalLocation.ArtifactLocation.URI = file
	loc.PhysicalLocation.Region.StartLine = line
	loc.PhysicalLocation.Region.StartColumn = col
	return Result{
		RuleID:    ruleID,
		Level:     level,
		Message:   Message{Text: msg},
		Locations: []Location{loc},
	}
}

// ParseDiagLine parses the common diagnostic formats:
//  1. file:line:col: message
//  2. file:line: message
//  3. path/to/file.go  (file-only, e.g., gofmt -l)
//
// Handles Windows drive-letter prefixes (e.g. C:\path\file.go:10:5: msg).
func ParseDiagLine(line string) (file string, ln, col int, msg string) {
	rest := line
	var prefix string

	// Strip Windows drive letter (e.g. "C:") so the colon-split works.
	if len(rest) >= 3 && rest[1] == ':' && (rest[2] == '\\' || rest[2] == '/') {
		prefix = rest[:2]
		rest = rest[2:]
	}

	parts := strings.SplitN(rest, ":", 4)
	if len(parts) >= 4 {
		var l, c int
		if _, err := fmt.Sscanf(parts[1], "%d", &l); err == nil {
			if _, err := fmt.Sscanf(parts[2], "%d", &c); err == nil {
				return prefix + parts[0], l, c, strings.TrimSpace(parts[3])
			}
		}
	}

	if len(parts) >= 3 {
		var l int
		if _, err := fmt.Sscanf(parts[1], "%d", &l); err == nil {
			return prefix + parts[0], l, 0, strings.TrimSpace(strings.Join(parts[2:], ":"))
		}
	}

	// File-only lines must look like a Go path and contain no spaces.
	trimmed := strings.TrimSpace(line)
	if strings.HasSuffix(trimmed, ".go") && !strings.Contains(trimmed, " ") {
		return trimmed, 0, 0, "needs formatting"
	}

	return "", 0, 0, ""
}
