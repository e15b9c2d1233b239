package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dkoosis/megaqa/pkg/bundle"
)

func newPackageCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "package [BUNDLE_DIR|latest]",
		Short: "Package new failures of an existing bundle into the ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd, g.flags(cmd), slog.LevelInfo)
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
			pk, err := s.packager()
			if err != nil {
				return err
			}
			entries, err := pk.Package(b)
			if err != nil {
				return err
			}
			if err := pk.WriteBugs(entries); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no new failures to package")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s %s %s\n", e.ID, e.Priority, e.PromptPath)
			}
			return nil
		},
	}
}

func argOr(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
