package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dkoosis/megaqa/pkg/bundle"
	"github.com/dkoosis/megaqa/pkg/qa"
)

func newDiffCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Compare two bundles: coverage, introduced and resolved failures",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd, g.flags(cmd), slog.LevelWarn)
			if err != nil {
				return err
			}
			defer s.Close()

			var dirs [2]string
			var bundles [2]qa.ReportBundle
			for i, arg := range args {
				if dirs[i], err = bundle.Resolve(s.cfg.OutputDir, arg); err != nil {
					return err
				}
				if bundles[i], err = bundle.Read(dirs[i]); err != nil {
					return err
				}
			}
			lines, err := bundle.FileDiff(dirs[0], dirs[1], bundle.CoverageFile)
			if err != nil {
				return err
			}
			printDelta(cmd.OutOrStdout(), bundles[0], bundles[1], bundle.Compare(bundles[0], bundles[1]), lines)
			return nil
		},
	}
}

func printDelta(w io.Writer, old, cur qa.ReportBundle, d bundle.Delta, lines []string) {
	fmt.Fprintf(w, "%s -> %s\n", old.Manifest.RunID, cur.Manifest.RunID)
	fmt.Fprintf(w, "result: %s -> %s\n", old.Manifest.Result, cur.Manifest.Result)
	fmt.Fprintf(w, "coverage: %.1f%% -> %.1f%% (%+.1f)\n",
		old.Coverage.CoveragePercent, cur.Coverage.CoveragePercent, d.CoverageDelta)
	if len(d.NowCovered) > 0 {
		fmt.Fprintf(w, "  now covered: %s\n", strings.Join(d.NowCovered, ", "))
	}
	if len(d.NowMissing) > 0 {
		fmt.Fprintf(w, "  now missing: %s\n", strings.Join(d.NowMissing, ", "))
	}

	fmt.Fprintf(w, "failures: %d introduced, %d resolved, %d persisting\n",
		len(d.Introduced), len(d.Resolved), d.Persisting)
	for _, f := range d.Introduced {
		fmt.Fprintf(w, "  + %s > %s\n", f.Suite, f.TestName)
	}
	for _, f := range d.Resolved {
		fmt.Fprintf(w, "  - %s > %s\n", f.Suite, f.TestName)
	}

	if len(lines) > 0 {
		fmt.Fprintf(w, "%s:\n", bundle.CoverageFile)
		for _, l := range lines {
			fmt.Fprintf(w, "  %s\n", l)
		}
	}
}
