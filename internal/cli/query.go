package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/nerprompt/internal/domain"
)

func queryCmd(g *globals) *cobra.Command {
	var (
		language      string
		topKEntities  int
		topKSentences int
		asJSON        bool
		details       bool
	)

	cmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Build an enhanced NER instruction for one text",
		Long: `Query embeds the text, retrieves similar sentences and entities of every
type from the language's collections and prints the assembled instruction.

Examples:
  nerprompt query --language en "Barack Obama visited Paris"
  nerprompt query -l de --json --details "Angela Merkel sprach in Berlin"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, err := domain.ParseLanguage(language)
			if err != nil {
				return err //nolint:wrapcheck // already an invalid input error
			}
			q := domain.Query{
				Text:          strings.Join(args, " "),
				Language:      lang,
				TopKEntities:  topKEntities,
				TopKSentences: topKSentences,
			}

			app, err := g.app(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, usage := domain.NewContextWithUsage(cmd.Context())
			out, err := app.Instructions.Build(ctx, q, details)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				enc.SetEscapeHTML(false)
				return enc.Encode(out) //nolint:wrapcheck // stdout
			}

			_, _ = fmt.Fprintln(w, out.Instruction)
			for _, warn := range out.Statistics.Warnings {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s %s: %s\n", warn.Section, warn.EntityType, warn.Message)
			}
			if tokens, used := usage.Snapshot(); used {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "embedding tokens: %d\n", tokens)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", string(domain.LangEN), "query language code")
	cmd.Flags().IntVar(&topKEntities, "top-k-entities", 0, "entities per type (default retrieval.top_k_entities)")
	cmd.Flags().IntVar(&topKSentences, "top-k-sentences", 0, "example sentences (default retrieval.top_k_sentences)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	cmd.Flags().BoolVar(&details, "details", false, "include raw hits (with --json)")
	return cmd
}
