// Package coverage implements the required-capability gate.
//
// A Registry holds the declared coverage tags and the checked-in waivers.
// Compute is a pure function of the registry and the tags a run observed:
// a required tag is satisfied when it was observed or when a waiver names it.
// The waiver rationale is for human audit only and is never evaluated.
package coverage

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dkoosis/megaqa/internal/fsutil"
	"github.com/dkoosis/megaqa/pkg/qa"
)

// Registry is the immutable set of declared tags plus waivers for one run.
type Registry struct {
	tags    []qa.CoverageTag
	waivers []qa.Waiver
}

// NewRegistry builds a registry. Tags with an empty or duplicate id are
// dropped; the first declaration of an id wins.
func NewRegistry(tags []qa.CoverageTag, waivers []qa.Waiver) *Registry {
	seen := make(map[string]bool, len(tags))
	clean := make([]qa.CoverageTag, 0, len(tags))
	for _, t := range tags {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		t.Category = qa.ParseTagCategory(string(t.Category))
		clean = append(clean, t)
	}
	return &Registry{
		tags:    clean,
		waivers: append([]qa.Waiver(nil), waivers...),
	}
}

// Tags returns all declared tags in registry order.
func (r *Registry) Tags() []qa.CoverageTag {
	return append([]qa.CoverageTag(nil), r.tags...)
}

// Required returns the tags with Required set, in registry order.
func (r *Registry) Required() []qa.CoverageTag {
	out := make([]qa.CoverageTag, 0, len(r.tags))
	for _, t := range r.tags {
		if t.Required {
			out = append(out, t)
		}
	}
	return out
}

// Waivers returns the loaded waivers in file order.
func (r *Registry) Waivers() []qa.Waiver {
	return append([]qa.Waiver(nil), r.waivers...)
}

// WithWaivers returns a copy of r using the given waivers.
func (r *Registry) WithWaivers(waivers []qa.Waiver) *Registry {
	return &Registry{tags: r.tags, waivers: append([]qa.Waiver(nil), waivers...)}
}

// Compute evaluates the gate for the set of observed tag ids. Duplicate ids
// in observed collapse. Output order is deterministic: covered is sorted,
// missing and waived follow registry order.
func (r *Registry) Compute(observed []string) qa.CoverageReport {
	obs := make(map[string]bool, len(observed))
	for _, id := range observed {
		id = strings.TrimSpace(id)
		if id != "" {
			obs[id] = true
		}
	}
	waived := make(map[string]bool, len(r.waivers))
	for _, w := range r.waivers {
		waived[w.TagID] = true
	}

	covered := make([]string, 0, len(obs))
	for id := range obs {
		covered = append(covered, id)
	}
	sort.Strings(covered)

	required := r.Required()
	missing := []string{}
	waivedOnly := []string{}
	satisfied := 0
	for _, t := range required {
		switch {
		case obs[t.ID]:
			satisfied++
		case waived[t.ID]:
			satisfied++
			waivedOnly = append(waivedOnly, t.ID)
		default:
			missing = append(missing, t.ID)
		}
	}

	pct := 100.0
	if len(required) > 0 {
		pct = math.Round(10000*float64(satisfied)/float64(len(required))) / 100
	}

	waivers := r.Waivers()
	if waivers == nil {
		waivers = []qa.Waiver{}
	}

	return qa.CoverageReport{
		Required:        required,
		Covered:         covered,
		Missing:         missing,
		Waived:          waivedOnly,
		Waivers:         waivers,
		CoveragePercent: pct,
		Passed:          len(missing) == 0,
	}
}

// WriteRequiredTags persists the required tag list as JSON for downstream
// tooling. It is independent of any coverage computation.
func (r *Registry) WriteRequiredTags(path string) error {
	doc := struct {
		Required []qa.CoverageTag `json:"required"`
	}{Required: r.Required()}
	if err := fsutil.WriteJSON(path, doc); err != nil {
		return fmt.Errorf("write required tags: %w", err)
	}
	return nil
}

type registryFile struct {
	Tags []qa.CoverageTag `yaml:"tags"`
}

// LoadRegistry reads tag declarations from a YAML (or JSON) file. A missing
// file yields the built-in default tags. A malformed file also falls back to
// the defaults and logs a warning: the gate must never run against an empty
// registry because an operator mistyped the file.
func LoadRegistry(path string, waivers []qa.Waiver, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("coverage registry unreadable, using defaults", "path", path, "error", err)
		}
		return NewRegistry(DefaultTags(), waivers)
	}

	var rf registryFile
	if err := yaml.Unmarshal(data, &rf); err != nil || len(rf.Tags) == 0 {
		log.Warn("coverage registry malformed, using defaults", "path", path, "error", err)
		return NewRegistry(DefaultTags(), waivers)
	}
	return NewRegistry(rf.Tags, waivers)
}
