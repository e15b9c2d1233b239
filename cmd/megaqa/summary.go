package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dkoosis/megaqa/pkg/bundle"
	"github.com/dkoosis/megaqa/pkg/render"
)

func newSummaryCmd(g *globals) *cobra.Command {
	var details bool
	cmd := &cobra.Command{
		Use:   "summary [BUNDLE_DIR|latest]",
		Short: "Print the summary line of a bundle; exits with the run's recorded code",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd, g.flags(cmd), slog.LevelWarn)
			if err != nil {
				return err
			}
			defer s.Close()

			dir, err := bundle.Resolve(s.cfg.OutputDir, argOr(args, 0))
			if err != nil {
				return err
			}
			b, err := bundle.Read(dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, bundle.SummaryLine(b))
			if details {
				fmt.Fprint(out, render.ForWriter(out, s.cfg.NoColor).Render(render.Report{Bundle: b, Dir: dir}))
			}
			return withCode(b.Manifest.ExitCode, nil)
		},
	}
	cmd.Flags().BoolVar(&details, "details", false, "Also print the full breakdown")
	return cmd
}
