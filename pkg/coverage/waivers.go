package coverage

import (
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dkoosis/megaqa/pkg/qa"
)

// LoadWaivers reads a waiver list from a YAML or JSON file.
//
// The file must be a sequence of {tagId, rationale} mappings. Anything else
// (a mapping at the top level, a scalar, an entry missing either field)
// degrades to "no waivers", which only makes the gate stricter. A missing
// file is not an error.
func LoadWaivers(path string, log *slog.Logger) []qa.Waiver {
	if log == nil {
		log = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("waiver file unreadable, ignoring waivers", "path", path, "error", err)
		}
		return nil
	}
	waivers, ok := ParseWaivers(data)
	if !ok {
		log.Warn("waiver file malformed, ignoring waivers", "path", path)
		return nil
	}
	return waivers
}

// ParseWaivers validates and decodes a waiver document. ok is false when the
// document is not a well-formed list; an empty document is a valid empty
// list.
func ParseWaivers(data []byte) ([]qa.Waiver, bool) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, false
	}
	if root.Kind == 0 {
		return nil, true
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) != 1 {
		return nil, false
	}
	seq := root.Content[0]
	if seq.Kind != yaml.SequenceNode {
		return nil, false
	}

	waivers := make([]qa.Waiver, 0, len(seq.Content))
	for _, item := range seq.Content {
		if item.Kind != yaml.MappingNode {
			return nil, false
		}
		var w qa.Waiver
		if err := item.Decode(&w); err != nil {
			return nil, false
		}
		w.TagID = strings.TrimSpace(w.TagID)
		if w.TagID == "" || strings.TrimSpace(w.Rationale) == "" {
			return nil, false
		}
		waivers = append(waivers, w)
	}
	return waivers, true
}
