// Package knownfail looks failures up in an externally maintained list of
// previously triaged signatures.
//
// The pipeline does not own the matching policy. A Registry is a pluggable
// lookup keyed by (suite, test name, normalized error); the file-backed
// implementation here does exact key matching after normalization.
package knownfail

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/dkoosis/megaqa/pkg/qa"
)

// Key identifies a failure signature.
type Key struct {
	Suite           string
	TestName        string
	NormalizedError string
}

// KeyOf derives the lookup key of a failure.
func KeyOf(f qa.Failure) Key {
	return Key{
		Suite:           strings.TrimSpace(f.Suite),
		TestName:        strings.TrimSpace(f.TestName),
		NormalizedError: NormalizeError(f.ErrorMessage),
	}
}

// String renders the key in its canonical form.
func (k Key) String() string {
	return k.Suite + "\x1f" + k.TestName + "\x1f" + k.NormalizedError
}

// Signature is a short stable digest of the key, used to recognise a
// failure already written to the ledger.
func (k Key) Signature() string {
	sum := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:])[:12]
}

// Registry answers whether a failure was already triaged.
type Registry interface {
	IsKnown(k Key) bool
}

// None is a registry with no known failures.
type None struct{}

// IsKnown always reports false.
func (None) IsKnown(Key) bool { return false }

const maxNormalizedRunes = 200

var (
	ansiRe   = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)
	uuidRe   = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	hexIDRe  = regexp.MustCompile(`\b0x[0-9a-f]+\b|\b[0-9a-f]{16,}\b`)
	digitsRe = regexp.MustCompile(`[0-9]+`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// NormalizeError reduces an error message to a form that is stable across
// runs: lowercase, ANSI stripped, ids and numbers masked, whitespace
// collapsed, first line only, truncated.
func NormalizeError(msg string) string {
	msg = ansiRe.ReplaceAllString(msg, "")
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	msg = strings.ToLower(msg)
	msg = uuidRe.ReplaceAllString(msg, "<id>")
	msg = hexIDRe.ReplaceAllStringFunc(msg, func(m string) string {
		// long pure-digit runs are numbers, not ids
		if strings.Trim(m, "0123456789") == "" {
			return m
		}
		return "<id>"
	})
	msg = digitsRe.ReplaceAllString(msg, "#")
	msg = strings.TrimSpace(spaceRe.ReplaceAllString(msg, " "))
	if utf8.RuneCountInString(msg) > maxNormalizedRunes {
		msg = string([]rune(msg)[:maxNormalizedRunes])
	}
	return msg
}

// Entry is one triaged failure in the registry file.
type Entry struct {
	Suite    string `yaml:"suite"`
	TestName string `yaml:"testName"`
	Error    string `yaml:"error"`
	Note     string `yaml:"note,omitempty"`
}

// File is a registry loaded from a YAML list of entries.
type File struct {
	keys map[Key]bool
}

// NewFile builds a registry from entries. Entry errors are normalized the
// same way failure messages are, so the file may hold raw messages.
func NewFile(entries []Entry) *File {
	f := &File{keys: make(map[Key]bool, len(entries))}
	for _, e := range entries {
		f.keys[Key{
			Suite:           strings.TrimSpace(e.Suite),
			TestName:        strings.TrimSpace(e.TestName),
			NormalizedError: NormalizeError(e.Error),
		}] = true
	}
	return f
}

// IsKnown reports whether k matches a registry entry.
func (f *File) IsKnown(k Key) bool {
	return f.keys[k]
}

// Len returns the number of distinct signatures.
func (f *File) Len() int { return len(f.keys) }

// Load reads a known-failure file. A missing or malformed file yields an
// empty registry: every failure is then treated as new, which at worst
// produces a duplicate ticket rather than hiding a regression.
func Load(path string, log *slog.Logger) *File {
	if log == nil {
		log = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("known-failure registry unreadable", "path", path, "error", err)
		}
		return NewFile(nil)
	}
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		log.Warn("known-failure registry malformed", "path", path, "error", err)
		return NewFile(nil)
	}
	return NewFile(entries)
}

// Mark sets IsKnown on each failure from the registry and returns the
// updated copies. It is the only place isKnown is assigned.
func Mark(reg Registry, failures []qa.Failure) []qa.Failure {
	if reg == nil {
		reg = None{}
	}
	out := make([]qa.Failure, len(failures))
	for i, f := range failures {
		f.IsKnown = reg.IsKnown(KeyOf(f))
		out[i] = f
	}
	return out
}
