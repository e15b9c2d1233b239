// Package bundle persists a run as a directory of JSON documents plus the
// evidence files its failures point at.
//
// Layout of <root>/<runId>/:
//
//	manifest.json   run identity and verdict
//	coverage.json   coverage gate report
//	failures.json   failure records
//	suites.json     per-suite results
//	artifacts.json  artifact index
//	summary.json    headline counts
//	bundle.json     all of the above in one document
//	artifacts/{traces,screenshots,videos,visual-diffs,other}/
//
// Every file is replaced whole. <root>/latest names the newest complete run.
package bundle

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dkoosis/megaqa/internal/fsutil"
	"github.com/dkoosis/megaqa/pkg/qa"
)

// ErrPersist marks failures to write the bundle. The CLI maps it to exit
// code 2.
var ErrPersist = errors.New("persist bundle")

// File names inside a run directory.
const (
	ManifestFile  = "manifest.json"
	CoverageFile  = "coverage.json"
	FailuresFile  = "failures.json"
	SuitesFile    = "suites.json"
	ArtifactsFile = "artifacts.json"
	BundleFile    = "bundle.json"
	SummaryFile   = "summary.json"

	ArtifactsDir = "artifacts"
	LatestLink   = "latest"
	LatestFile   = "LATEST"
)

// Artifact kinds, also the subdirectory names under artifacts/.
const (
	KindTraces      = "traces"
	KindScreenshots = "screenshots"
	KindVideos      = "videos"
	KindVisualDiffs = "visual-diffs"
	KindOther       = "other"
)

var artifactKinds = []string{KindTraces, KindScreenshots, KindVideos, KindVisualDiffs}

// minFreeBytes is the free-space level below which Write warns.
const minFreeBytes = 50 << 20

// Dir is an initialized run directory.
type Dir struct {
	Root  string
	RunID string
	Path  string
}

// Artifacts returns the directory for one artifact kind.
func (d Dir) Artifacts(kind string) string {
	return filepath.Join(d.Path, ArtifactsDir, kind)
}

// GenerateRunID returns YYYYMMDD-HHMMSS-<6 hex>, sortable by start time.
func GenerateRunID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return now.UTC().Format("20060102-150405") + "-" + suffix
}

// InitDir creates the run directory and an empty artifact tree. Artifacts
// left by an earlier write of the same run id are removed.
func InitDir(root, runID string) (Dir, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return Dir{}, fmt.Errorf("%w: invalid run id %q", ErrPersist, runID)
	}
	d := Dir{Root: root, RunID: runID, Path: filepath.Join(root, runID)}
	if err := os.RemoveAll(filepath.Join(d.Path, ArtifactsDir)); err != nil {
		return Dir{}, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	for _, kind := range artifactKinds {
		if err := os.MkdirAll(d.Artifacts(kind), 0o755); err != nil {
			return Dir{}, fmt.Errorf("%w: %v", ErrPersist, err)
		}
	}
	return d, nil
}

// DiskProbe reports free bytes on the filesystem holding path.
type DiskProbe func(path string) (uint64, error)

// Writer persists bundles.
type Writer struct {
	Log  *slog.Logger
	Disk DiskProbe
}

// Write persists b into d, then repoints latest. Rewriting the same run
// replaces every file; other runs are untouched. Any write failure is
// returned wrapped in ErrPersist and leaves latest where it was.
func (w *Writer) Write(d Dir, b qa.ReportBundle) error {
	log := w.logger()
	w.checkDisk(d.Root)

	b = normalize(b)
	files := []struct {
		name string
		v    any
	}{
		{SuitesFile, b.Suites},
		{FailuresFile, b.Failures},
		{CoverageFile, b.Coverage},
		{ArtifactsFile, b.Artifacts},
		{SummaryFile, b.Summary},
		{ManifestFile, b.Manifest},
		{BundleFile, b},
	}
	for _, f := range files {
		if err := fsutil.WriteJSON(filepath.Join(d.Path, f.name), f.v); err != nil {
			return fmt.Errorf("%w: %v", ErrPersist, err)
		}
	}
	log.Info("bundle written", "dir", d.Path, "run_id", d.RunID)

	if err := UpdateLatest(d.Root, d.RunID); err != nil {
		log.Warn("could not update latest pointer", "root", d.Root, "error", err)
	}
	return nil
}

func (w *Writer) checkDisk(root string) {
	if w.Disk == nil {
		return
	}
	free, err := w.Disk(root)
	if err != nil {
		w.logger().Debug("disk probe failed", "path", root, "error", err)
		return
	}
	if free < minFreeBytes {
		w.logger().Warn("low disk space for bundle", "path", root, "free_bytes", free)
	}
}

func (w *Writer) logger() *slog.Logger {
	if w.Log != nil {
		return w.Log
	}
	return slog.Default()
}

// normalize replaces nil slices so every list field encodes as [].
func normalize(b qa.ReportBundle) qa.ReportBundle {
	if b.Suites == nil {
		b.Suites = []qa.SuiteResult{}
	}
	if b.Failures == nil {
		b.Failures = []qa.Failure{}
	}
	c := &b.Coverage
	if c.Required == nil {
		c.Required = []qa.CoverageTag{}
	}
	for _, s := range []*[]string{&c.Covered, &c.Missing, &c.Waived} {
		if *s == nil {
			*s = []string{}
		}
	}
	if c.Waivers == nil {
		c.Waivers = []qa.Waiver{}
	}
	a := &b.Artifacts
	for _, s := range []*[]string{&a.Traces, &a.Screenshots, &a.Videos, &a.VisualDiffs, &a.Other} {
		if *s == nil {
			*s = []string{}
		}
	}
	b.Manifest.Version = qa.BundleVersion
	return b
}

// UpdateLatest points root/latest at runID. A symlink is preferred; where
// symlinks are unavailable a LATEST file holding the run id is written and
// any stale symlink removed.
func UpdateLatest(root, runID string) error {
	link := filepath.Join(root, LatestLink)
	tmp := filepath.Join(root, "."+LatestLink+".tmp")
	_ = os.Remove(tmp)
	if err := os.Symlink(runID, tmp); err == nil {
		if err := os.Rename(tmp, link); err == nil {
			_ = os.Remove(filepath.Join(root, LatestFile))
			return nil
		}
		_ = os.Remove(tmp)
	}

	if fi, err := os.Lstat(link); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		_ = os.Remove(link)
	}
	return fsutil.WriteFileAtomic(filepath.Join(root, LatestFile), []byte(runID+"\n"), 0o644)
}

// ResolveLatest returns the directory of the newest complete run.
func ResolveLatest(root string) (string, error) {
	if target, err := os.Readlink(filepath.Join(root, LatestLink)); err == nil {
		if !filepath.IsAbs(target) {
			target = filepath.Join(root, target)
		}
		return target, nil
	}
	data, err := os.ReadFile(filepath.Join(root, LatestFile))
	if err != nil {
		return "", fmt.Errorf("no latest run under %s", root)
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", fmt.Errorf("empty latest pointer under %s", root)
	}
	return filepath.Join(root, id), nil
}

// Resolve maps a CLI argument to a run directory: "" or "latest" resolve
// through the pointer, anything else is taken as a path.
func Resolve(root, arg string) (string, error) {
	if arg == "" || arg == LatestLink {
		return ResolveLatest(root)
	}
	return arg, nil
}

// Read loads a persisted bundle.
func Read(dir string) (qa.ReportBundle, error) {
	var b qa.ReportBundle
	data, err := os.ReadFile(filepath.Join(dir, BundleFile))
	if err != nil {
		return b, fmt.Errorf("read bundle: %w", err)
	}
	if err := json.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("decode bundle %s: %w", dir, err)
	}
	return b, nil
}

// SummaryLine renders the one-line machine summary. The format is a
// stable contract; v1 is its version.
func SummaryLine(b qa.ReportBundle) string {
	return fmt.Sprintf("MEGAQA v1 result=%s tests=%d/%d coverage=%.1f%% new=%d known=%d duration=%dms run=%s",
		strings.ToUpper(string(b.Manifest.Result)),
		b.Summary.Passed,
		b.Summary.TotalTests,
		b.Summary.CoveragePercent,
		b.Summary.NewFailures,
		b.Summary.KnownFailures,
		b.Manifest.DurationMs,
		b.Manifest.RunID,
	)
}
