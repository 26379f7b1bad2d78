package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/nerprompt/internal/domain"
	collectionuc "github.com/kailas-cloud/nerprompt/internal/usecase/collection"
)

func statsCmd(g *globals) *cobra.Command {
	var languages []string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show record counts per language",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			langs, err := domain.ParseLanguages(languages)
			if err != nil {
				return err //nolint:wrapcheck // already an invalid input error
			}
			app, err := g.app(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			stats, err := app.Collections.Stats(cmd.Context(), langs)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&languages, "language", "l", nil, "languages to report (default all)")
	return cmd
}

func cleanupCmd(g *globals) *cobra.Command {
	var (
		languages []string
		yes       bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Drop entity and sentence collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			langs, err := domain.ParseLanguages(languages)
			if err != nil {
				return err //nolint:wrapcheck // already an invalid input error
			}
			if !yes {
				return fmt.Errorf("cleanup drops data irreversibly; pass --yes to confirm")
			}
			app, err := g.app(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			rep, err := app.Collections.Cleanup(cmd.Context(), langs)
			if err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "Dropped: %s\n", joinOrNone(rep.Dropped))
			_, _ = fmt.Fprintf(w, "Skipped: %s\n", joinOrNone(rep.Skipped))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&languages, "language", "l", nil, "languages to drop (default all)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm dropping collections")
	return cmd
}

func printStats(w io.Writer, s collectionuc.Stats) {
	_, _ = fmt.Fprintf(w, "%-8s %10s %10s\n", "language", "entities", "sentences")
	for _, l := range s.Languages {
		line := fmt.Sprintf("%-8s %10d %10d", l.Language, l.Entities, l.Sentences)
		if len(l.Missing) > 0 {
			line += "  (missing: " + strings.Join(l.Missing, ", ") + ")"
		}
		_, _ = fmt.Fprintln(w, line)
	}
	_, _ = fmt.Fprintf(w, "%-8s %10d %10d\n", "total", s.TotalEntities, s.TotalSentences)
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
