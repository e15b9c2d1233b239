package bundle

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/dkoosis/megaqa/pkg/knownfail"
	"github.com/dkoosis/megaqa/pkg/qa"
)

// Delta compares two runs. Failures are matched by known-failure key, so a
// failure with the same suite, test and normalized error is the same
// failure in both runs even though its per-run id differs.
type Delta struct {
	CoverageDelta float64
	NowCovered    []string
	NowMissing    []string
	Introduced    []qa.Failure
	Resolved      []qa.Failure
	Persisting    int
}

// Compare computes what changed from old to cur.
func Compare(old, cur qa.ReportBundle) Delta {
	d := Delta{CoverageDelta: cur.Coverage.CoveragePercent - old.Coverage.CoveragePercent}

	for _, id := range old.Coverage.Missing {
		if !slices.Contains(cur.Coverage.Missing, id) {
			d.NowCovered = append(d.NowCovered, id)
		}
	}
	for _, id := range cur.Coverage.Missing {
		if !slices.Contains(old.Coverage.Missing, id) {
			d.NowMissing = append(d.NowMissing, id)
		}
	}

	oldKeys := keySet(old.Failures)
	curKeys := keySet(cur.Failures)
	for _, f := range cur.Failures {
		if oldKeys[knownfail.KeyOf(f)] {
			d.Persisting++
		} else {
			d.Introduced = append(d.Introduced, f)
		}
	}
	for _, f := range old.Failures {
		if !curKeys[knownfail.KeyOf(f)] {
			d.Resolved = append(d.Resolved, f)
		}
	}
	return d
}

func keySet(failures []qa.Failure) map[knownfail.Key]bool {
	out := make(map[knownfail.Key]bool, len(failures))
	for _, f := range failures {
		out[knownfail.KeyOf(f)] = true
	}
	return out
}

// FileDiff returns a line diff of one bundle file between two run
// directories. Unchanged lines are omitted; changed lines carry a "-" or
// "+" prefix.
func FileDiff(oldDir, curDir, name string) ([]string, error) {
	a, err := os.ReadFile(filepath.Join(oldDir, name))
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(curDir, name))
	if err != nil {
		return nil, err
	}
	return LineDiff(string(a), string(b)), nil
}

// LineDiff diffs two texts line by line.
func LineDiff(a, b string) []string {
	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	var out []string
	for _, d := range diffs {
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		default:
			continue
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out = append(out, prefix+strings.TrimSuffix(line, "\n"))
		}
	}
	return out
}
