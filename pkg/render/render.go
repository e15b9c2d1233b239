// Package render formats a finished run for people: a styled terminal
// breakdown, a plain variant for logs and pipes, and live suite progress.
package render

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/dkoosis/megaqa/pkg/qa"
)

// Report is what a renderer shows: the bundle plus any bugs packaged from it.
type Report struct {
	Bundle qa.ReportBundle
	Bugs   []qa.BugEntry
	// Dir is the bundle directory, shown as a pointer for details.
	Dir string
}

// Renderer converts a report to formatted output.
type Renderer interface {
	Render(r Report) string
}

// ForWriter picks the terminal renderer for a TTY and the plain renderer
// otherwise. noColor forces the monochrome theme.
func ForWriter(w io.Writer, noColor bool) Renderer {
	if !IsTTY(w) {
		return NewPlain()
	}
	theme := DefaultTheme()
	if noColor {
		theme = MonoTheme()
	}
	width, _ := TermSize(w)
	return NewTerminal(theme, width)
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// TermSize returns the terminal dimensions for w, defaulting to 80x24.
func TermSize(w io.Writer) (width, height int) {
	width, height = 80, 24
	if f, ok := w.(*os.File); ok {
		if tw, th, err := term.GetSize(int(f.Fd())); err == nil {
			if tw > 0 {
				width = tw
			}
			if th > 0 {
				height = th
			}
		}
	}
	return width, height
}

// fit pads or truncates s to exactly width display cells.
func fit(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "…")
	}
	return runewidth.FillRight(s, width)
}

func clip(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", ms)
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}
