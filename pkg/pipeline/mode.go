package pipeline

import (
	"fmt"
	"strings"

	"github.com/dkoosis/megaqa/pkg/runner"
)

// Mode selects which configured suites a run executes.
type Mode string

const (
	ModeQuick Mode = "quick"
	ModeUnit  Mode = "unit"
	ModeFull  Mode = "full"
	ModeCI    Mode = "ci"
)

// Modes lists every accepted mode.
var Modes = []Mode{ModeQuick, ModeUnit, ModeFull, ModeCI}

// ParseMode accepts a mode name, case-insensitively. "unit-only" is an
// alias for unit.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeQuick, ModeUnit, ModeFull, ModeCI:
		return m, nil
	case "unit-only":
		return ModeUnit, nil
	case "":
		return ModeFull, nil
	}
	return "", fmt.Errorf("unknown mode %q (want one of quick, unit, full, ci)", s)
}

// Packages reports whether the mode packages new failures by default.
func (m Mode) Packages() bool { return m == ModeCI }

var unitCategories = map[string]bool{"unit": true, "property": true, "contract": true}

// Suite is a configured suite plus the modes it runs in. Empty Modes means
// the default for its category.
type Suite struct {
	runner.Spec
	Modes []Mode
}

// Includes reports whether the suite runs in mode m.
func (s Suite) Includes(m Mode) bool {
	if len(s.Modes) > 0 {
		for _, x := range s.Modes {
			if x == m {
				return true
			}
		}
		return false
	}
	cat := strings.ToLower(s.Category)
	switch m {
	case ModeQuick:
		return cat == "must-hit" || unitCategories[cat]
	case ModeUnit:
		return unitCategories[cat]
	}
	return true
}

// Select returns the specs that run in mode m, in configured order. When
// names is non-empty only suites whose name or slug matches one of them
// (case-insensitively) are kept.
func Select(suites []Suite, m Mode, names []string) []runner.Spec {
	want := map[string]bool{}
	for _, n := range names {
		want[strings.ToLower(strings.TrimSpace(n))] = true
	}
	var out []runner.Spec
	for _, s := range suites {
		if !s.Includes(m) {
			continue
		}
		if len(want) > 0 && !want[strings.ToLower(s.Name)] && !want[runner.Slug(s.Name)] {
			continue
		}
		out = append(out, s.Spec)
	}
	return out
}
