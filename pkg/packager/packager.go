// Package packager turns new failures from a persisted bundle into
// numbered ledger entries and agent-ready prompt documents.
//
// The packager reads the bundle and never changes it. It assumes it is the
// only process writing the ledger; concurrent packagers on one ledger can
// allocate the same ids.
package packager

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dkoosis/megaqa/internal/fsutil"
	"github.com/dkoosis/megaqa/pkg/knownfail"
	"github.com/dkoosis/megaqa/pkg/qa"
)

// DefaultPriorities maps classifications to ticket priority.
var DefaultPriorities = map[qa.Classification]qa.Priority{
	qa.ClassBackend:     qa.PriorityHigh,
	qa.ClassEnvironment: qa.PriorityMedium,
	qa.ClassFrontend:    qa.PriorityMedium,
	qa.ClassTestIssue:   qa.PriorityLow,
}

// Packager allocates bug ids and renders ledger entries and prompts.
type Packager struct {
	LedgerPath string
	PromptsDir string
	Prefix     string
	IDWidth    int
	// Priorities overrides DefaultPriorities per classification.
	Priorities map[qa.Classification]qa.Priority
	Log        *slog.Logger
}

// Package selects the bundle's new failures and builds an entry for each.
// Failures whose signature is already in the ledger are skipped, so
// packaging the same bundle twice yields nothing the second time.
func (p *Packager) Package(b qa.ReportBundle) ([]qa.BugEntry, error) {
	text, err := p.readLedger()
	if err != nil {
		return nil, err
	}
	led := parseLedger(text, p.prefix())

	var entries []qa.BugEntry
	next := led.maxID
	for _, f := range b.Failures {
		if f.IsKnown {
			continue
		}
		sig := knownfail.KeyOf(f).Signature()
		if led.signatures[sig] {
			p.logger().Debug("failure already in ledger", "failure", f.ID, "signature", sig)
			continue
		}
		led.signatures[sig] = true
		next++

		e := qa.BugEntry{
			ID:        fmt.Sprintf("%s-%0*d", p.prefix(), p.width(), next),
			Failure:   f,
			Priority:  p.priority(f.Classification),
			Signature: sig,
		}
		e.PromptPath = filepath.Join(p.PromptsDir, e.ID+".md")
		e.LedgerEntryText = renderLedgerEntry(e, b.Manifest)
		prompt, err := renderPrompt(e, b.Manifest)
		if err != nil {
			return nil, fmt.Errorf("render prompt %s: %w", e.ID, err)
		}
		e.PromptText = prompt
		entries = append(entries, e)
	}
	return entries, nil
}

// WriteBugs inserts the entries into the ledger and writes one prompt file
// per entry. With no entries nothing is touched.
func (p *Packager) WriteBugs(entries []qa.BugEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if err := fsutil.WriteFileAtomic(e.PromptPath, []byte(e.PromptText), 0o644); err != nil {
			return fmt.Errorf("write prompt %s: %w", e.ID, err)
		}
	}

	text, err := p.readLedger()
	if err != nil {
		return err
	}
	blocks := make([]string, len(entries))
	for i, e := range entries {
		blocks[i] = e.LedgerEntryText
	}
	if err := fsutil.WriteFileAtomic(p.LedgerPath, []byte(insertEntries(text, blocks)), 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	p.logger().Info("bugs packaged", "count", len(entries), "first", entries[0].ID, "last", entries[len(entries)-1].ID)
	return nil
}

func (p *Packager) readLedger() (string, error) {
	data, err := os.ReadFile(p.LedgerPath)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read ledger: %w", err)
	}
	return string(data), nil
}

func (p *Packager) prefix() string {
	if p.Prefix == "" {
		return "BUG"
	}
	return strings.TrimSuffix(p.Prefix, "-")
}

func (p *Packager) width() int {
	if p.IDWidth <= 0 {
		return 3
	}
	return p.IDWidth
}

func (p *Packager) priority(c qa.Classification) qa.Priority {
	if pr, ok := p.Priorities[c]; ok {
		return pr
	}
	if pr, ok := DefaultPriorities[c]; ok {
		return pr
	}
	return qa.PriorityMedium
}

func (p *Packager) logger() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}
