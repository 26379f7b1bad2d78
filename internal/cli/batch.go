package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func batchCmd(g *globals) *cobra.Command {
	var (
		inputField string
		outputDir  string
		metadata   bool
	)

	cmd := &cobra.Command{
		Use:   "batch [pattern]",
		Short: "Enhance every line of matching JSONL files",
		Long: `Batch reads each JSONL file matching the glob pattern (** is supported),
builds an instruction for the input field of every line and writes
enhanced_<name> into the output directory with the original fields kept.
The language is taken from the file name (data_de.jsonl), defaulting to en.

Examples:
  nerprompt batch "data/input/*.jsonl"
  nerprompt batch "data/**/*.jsonl" --input-field text --metadata`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if inputField == "" {
				inputField = g.cfg.Batch.InputField
			}
			if outputDir == "" {
				outputDir = g.cfg.Batch.OutputDir
			}
			if metadata {
				g.cfg.Batch.IncludeMetadata = true
			}

			app, err := g.app(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			sum, err := app.Batch.ProcessFiles(cmd.Context(), args[0], inputField, outputDir)
			if err != nil {
				return fmt.Errorf("batch: %w", err)
			}

			w := cmd.OutOrStdout()
			for _, f := range sum.Files {
				_, _ = fmt.Fprintf(w, "%s -> %s [%s]: %d/%d succeeded\n",
					f.Input, f.Output, f.Language, f.Succeeded, f.Total)
			}
			_, _ = fmt.Fprintf(w, "\nProcessed %d files: %d lines, %d succeeded, %d failed\n",
				len(sum.Files), sum.Total, sum.Succeeded, sum.Failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&inputField, "input-field", "", "JSON field holding the text (default batch.input_field)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "output directory (default batch.output_dir)")
	cmd.Flags().BoolVar(&metadata, "metadata", false, "attach retrieval_metadata to every line")
	return cmd
}
