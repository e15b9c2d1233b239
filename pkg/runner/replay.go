package runner

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dkoosis/megaqa/pkg/qa"
)

// DefaultPersona is used when neither the test nor the suite names one.
const DefaultPersona = "standard"

// ReplayTarget is what a replay command reproduces.
type ReplayTarget struct {
	Mode     string
	Scenario string
	Seed     int64
	Suite    string
	Test     string
}

// ReplayCommand renders the deterministic command that re-runs one test.
// It is rebuilt from the run parameters, never copied from tool output.
func ReplayCommand(t ReplayTarget) string {
	args := []string{"megaqa", "run"}
	if t.Mode != "" {
		args = append(args, "--mode="+t.Mode)
	}
	if t.Scenario != "" {
		args = append(args, "--scenario="+t.Scenario)
	}
	args = append(args, "--seed="+strconv.FormatInt(t.Seed, 10))
	if t.Suite != "" {
		args = append(args, "--suite="+t.Suite)
	}
	if t.Test != "" {
		args = append(args, "--grep="+t.Test)
	}
	for i, a := range args {
		args[i] = shellQuote(a)
	}
	return strings.Join(args, " ")
}

// FilterArgs returns the arguments that narrow tool's run to the test
// recorded as name. Names are matched literally. Tools without a name
// filter get nil and see the name only through MEGAQA_GREP.
func FilterArgs(tool, name string) []string {
	if name == "" {
		return nil
	}
	switch tool {
	case ToolGoTest:
		// recorded as "<package> <Test>/<subtest>"
		if _, test, ok := strings.Cut(name, " "); ok {
			name = test
		}
		if strings.HasPrefix(name, "[") {
			return nil
		}
		parts := strings.Split(name, "/")
		for i, p := range parts {
			parts[i] = "^" + regexp.QuoteMeta(p) + "$"
		}
		return []string{"-run=" + strings.Join(parts, "/")}
	case ToolPlaywright:
		// Playwright greps its own title path, so match the leaf title.
		if i := strings.LastIndex(name, titleSep); i >= 0 {
			name = name[i+len(titleSep):]
		}
		return []string{"--grep=" + regexp.QuoteMeta(name)}
	case ToolVitest:
		return []string{"--testNamePattern=" + regexp.QuoteMeta(name)}
	}
	return nil
}

const titleSep = " › "

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// completeReplay fills in whatever the test did not report. Seed and
// persona default from the run; steps and URLs default to empty lists.
func completeReplay(r *qa.Replay, seed int64, persona string, target ReplayTarget) qa.Replay {
	var out qa.Replay
	if r != nil {
		out = *r
	}
	if out.Seed == 0 {
		out.Seed = seed
	}
	if out.Persona == "" {
		out.Persona = persona
	}
	if out.Persona == "" {
		out.Persona = DefaultPersona
	}
	if out.Steps == nil {
		out.Steps = []qa.Step{}
	}
	if out.URLHistory == nil {
		out.URLHistory = []string{}
	}
	target.Seed = out.Seed
	out.ReplayCommand = ReplayCommand(target)
	return out
}
