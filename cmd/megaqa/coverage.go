package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dkoosis/megaqa/pkg/pipeline"
)

func newCoverageCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Inspect the coverage tag registry",
	}
	cmd.AddCommand(newWriteRequiredCmd(g))
	cmd.AddCommand(newCheckCmd(g))
	return cmd
}

func newWriteRequiredCmd(g *globals) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "write-required",
		Short: "Write the required tag list as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.open(cmd, g.flags(cmd), slog.LevelWarn)
			if err != nil {
				return err
			}
			defer s.Close()

			path := out
			if path == "" {
				path = s.cfg.RequiredTagsOut
			}
			reg := s.registry()
			if err := reg.WriteRequiredTags(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d required tags to %s\n", len(reg.Required()), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Output path (default: required_tags_out from config)")
	return cmd
}

func newCheckCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "check TAG...",
		Short: "Evaluate the coverage gate against the given observed tags",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd, g.flags(cmd), slog.LevelWarn)
			if err != nil {
				return err
			}
			defer s.Close()

			report := s.registry().Compute(args)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "coverage %.1f%%\n", report.CoveragePercent)
			if len(report.Waived) > 0 {
				fmt.Fprintf(out, "waived: %s\n", strings.Join(report.Waived, ", "))
			}
			if report.Passed {
				fmt.Fprintln(out, "gate passed")
				return nil
			}
			fmt.Fprintf(out, "missing: %s\n", strings.Join(report.Missing, ", "))
			return withCode(pipeline.ExitFail, nil)
		},
	}
}
