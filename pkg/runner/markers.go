package runner

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/dkoosis/megaqa/pkg/qa"
)

// Marker prefixes tests print to stdout to report what they exercised.
const (
	markerCoverage = "[COVERAGE]"
	markerConsole  = "[CONSOLE]"
	markerNetwork  = "[NETWORK]"
	markerReplay   = "[REPLAY]"
)

// markers is what a block of output lines declared.
type markers struct {
	tags    []string
	console []string
	network []qa.NetworkFailure
	replay  *qa.Replay
}

// scanMarkers extracts marker lines. Markers may appear anywhere in a
// line (test runners prefix their own decoration).
func scanMarkers(lines []string) markers {
	var m markers
	for _, line := range lines {
		if i := strings.Index(line, markerCoverage); i >= 0 {
			if tag := strings.TrimSpace(line[i+len(markerCoverage):]); tag != "" {
				m.tags = append(m.tags, strings.Fields(tag)[0])
			}
			continue
		}
		if i := strings.Index(line, markerConsole); i >= 0 {
			if msg := strings.TrimSpace(line[i+len(markerConsole):]); msg != "" {
				m.console = append(m.console, msg)
			}
			continue
		}
		if i := strings.Index(line, markerNetwork); i >= 0 {
			if nf, ok := parseNetwork(line[i+len(markerNetwork):]); ok {
				m.network = append(m.network, nf)
			}
			continue
		}
		if i := strings.Index(line, markerReplay); i >= 0 {
			var r qa.Replay
			if err := json.Unmarshal([]byte(strings.TrimSpace(line[i+len(markerReplay):])), &r); err == nil {
				m.replay = &r
			}
		}
	}
	return m
}

// parseNetwork reads "METHOD STATUS URL [error text]". A status of 0 or
// "-" means the request never got a response.
func parseNetwork(s string) (qa.NetworkFailure, bool) {
	f := strings.Fields(s)
	if len(f) < 3 {
		return qa.NetworkFailure{}, false
	}
	nf := qa.NetworkFailure{Method: strings.ToUpper(f[0]), URL: f[2]}
	if f[1] != "-" {
		st, err := strconv.Atoi(f[1])
		if err != nil {
			return qa.NetworkFailure{}, false
		}
		nf.Status = st
	}
	if len(f) > 3 {
		nf.Error = strings.Join(f[3:], " ")
	}
	return nf, true
}

func splitOutput(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	lines := strings.Split(string(b), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	return lines
}
