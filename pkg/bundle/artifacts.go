package bundle

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dkoosis/megaqa/pkg/qa"
)

// CollectArtifacts copies evidence into the run's artifact tree.
//
// Each failure's trace, screenshot and video are copied under a name
// prefixed with the failure id, and the returned failures point at the
// copies (paths relative to the run directory). Visual diff images
// (*-diff.*) and logs found under scanDirs are copied too. Missing files
// are skipped. The index is sorted and free of duplicates.
func CollectArtifacts(d Dir, failures []qa.Failure, scanDirs []string, log *slog.Logger) (qa.ArtifactIndex, []qa.Failure) {
	if log == nil {
		log = slog.Default()
	}
	c := collector{dir: d, log: log, seen: map[string]bool{}}

	out := make([]qa.Failure, len(failures))
	for i, f := range failures {
		f.Evidence.TracePath = c.copy(f.Evidence.TracePath, KindTraces, f.ID, &c.idx.Traces)
		f.Evidence.ScreenshotPath = c.copy(f.Evidence.ScreenshotPath, KindScreenshots, f.ID, &c.idx.Screenshots)
		f.Evidence.VideoPath = c.copy(f.Evidence.VideoPath, KindVideos, f.ID, &c.idx.Videos)
		out[i] = f
	}

	for _, root := range scanDirs {
		if root == "" {
			continue
		}
		_ = filepath.WalkDir(root, func(path string, de fs.DirEntry, err error) error {
			if err != nil || de.IsDir() {
				return nil
			}
			name := de.Name()
			prefix := filepath.Base(filepath.Dir(path))
			switch {
			case strings.Contains(name, "-diff."):
				c.copy(path, KindVisualDiffs, prefix, &c.idx.VisualDiffs)
			case strings.HasSuffix(name, ".log"):
				c.copy(path, KindOther, prefix, &c.idx.Other)
			}
			return nil
		})
	}

	for _, s := range []*[]string{&c.idx.Traces, &c.idx.Screenshots, &c.idx.Videos, &c.idx.VisualDiffs, &c.idx.Other} {
		if *s == nil {
			*s = []string{}
		}
		sort.Strings(*s)
	}
	return c.idx, out
}

type collector struct {
	dir  Dir
	log  *slog.Logger
	idx  qa.ArtifactIndex
	seen map[string]bool
}

// copy stores src under artifacts/<kind>/ and returns the stored path
// relative to the run directory. On any problem src is returned as is.
func (c *collector) copy(src, kind, prefix string, list *[]string) string {
	if src == "" {
		return ""
	}
	// already inside this run
	if !filepath.IsAbs(src) && strings.HasPrefix(filepath.ToSlash(src), ArtifactsDir+"/") {
		c.add(filepath.ToSlash(src), list)
		return src
	}
	if _, err := os.Stat(src); err != nil {
		c.log.Debug("evidence file missing", "path", src, "error", err)
		return src
	}

	name := filepath.Base(src)
	if prefix != "" {
		name = sanitize(prefix) + "-" + name
	}
	rel := filepath.ToSlash(filepath.Join(ArtifactsDir, kind, name))
	if !c.seen[rel] {
		if err := copyFile(src, filepath.Join(c.dir.Path, filepath.FromSlash(rel))); err != nil {
			c.log.Warn("could not copy evidence", "path", src, "error", err)
			return src
		}
	}
	c.add(rel, list)
	return rel
}

func (c *collector) add(rel string, list *[]string) {
	if c.seen[rel] {
		return
	}
	c.seen[rel] = true
	*list = append(*list, rel)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' || r == ':' {
			return '_'
		}
		return r
	}, s)
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
