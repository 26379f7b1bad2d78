package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kailas-cloud/nerprompt/internal/dataset"
	"github.com/kailas-cloud/nerprompt/internal/domain"
	"github.com/kailas-cloud/nerprompt/internal/usecase/ingestion"
)

func ingestCmd(g *globals) *cobra.Command {
	var (
		entitiesPath  string
		sentencesPath string
		noProgress    bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Embed and store reference entities and sentences",
		Long: `Ingest reads an entity document ({"en": {"PERSON": ["..."]}}) and/or a
sentence document ({"en": [{"sentence": "...", "ner_labels": {...}}]}),
embeds every item and appends it to the per-language collections.

Examples:
  nerprompt ingest --entities data/entities.json
  nerprompt ingest --entities data/entities.json --sentences data/sentences.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if entitiesPath == "" && sentencesPath == "" {
				return fmt.Errorf("at least one of --entities or --sentences is required")
			}
			app, err := g.app(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			progress := newProgressPrinter(cmd.ErrOrStderr(), !noProgress)

			var reports []ingestion.Report
			if entitiesPath != "" {
				r, err := ingestEntities(cmd.Context(), app, entitiesPath, progress.update)
				if err != nil {
					return err
				}
				reports = append(reports, r...)
			}
			if sentencesPath != "" {
				r, err := ingestSentences(cmd.Context(), app, sentencesPath, progress.update)
				if err != nil {
					return err
				}
				reports = append(reports, r...)
			}
			progress.finish()

			printReports(out, reports)
			return ingestion.Err(reports)
		},
	}

	cmd.Flags().StringVar(&entitiesPath, "entities", "", "entity document (JSON)")
	cmd.Flags().StringVar(&sentencesPath, "sentences", "", "sentence document (JSON)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	return cmd
}

func ingestEntities(
	ctx context.Context, app *App, path string, progress ingestion.ProgressFunc,
) ([]ingestion.Report, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open entities: %w", err)
	}
	defer func() { _ = f.Close() }()

	doc, err := dataset.ParseEntities(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	reports, err := app.Ingestion.IngestEntities(ctx, doc, progress)
	if err != nil {
		return reports, fmt.Errorf("ingest entities: %w", err)
	}
	return reports, nil
}

func ingestSentences(
	ctx context.Context, app *App, path string, progress ingestion.ProgressFunc,
) ([]ingestion.Report, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open sentences: %w", err)
	}
	defer func() { _ = f.Close() }()

	doc, err := dataset.ParseSentences(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	reports, err := app.Ingestion.IngestSentences(ctx, doc, progress)
	if err != nil {
		return reports, fmt.Errorf("ingest sentences: %w", err)
	}
	return reports, nil
}

// progressPrinter draws one bar per collection being ingested.
type progressPrinter struct {
	w       io.Writer
	enabled bool
	bar     *progressbar.ProgressBar
	current domain.Collection
}

func newProgressPrinter(w io.Writer, enabled bool) *progressPrinter {
	return &progressPrinter{w: w, enabled: enabled}
}

func (p *progressPrinter) update(pr ingestion.Progress) {
	if !p.enabled {
		return
	}
	c := domain.NewCollection(pr.Language, pr.Kind)
	if p.bar == nil || c != p.current {
		p.finish()
		p.current = c
		p.bar = progressbar.NewOptions(pr.Total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", c.Name())),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				_, _ = fmt.Fprintln(p.w)
			}),
		)
	}
	_ = p.bar.Set(pr.Done)
}

func (p *progressPrinter) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}

func printReports(w io.Writer, reports []ingestion.Report) {
	if len(reports) == 0 {
		_, _ = fmt.Fprintln(w, "Nothing to ingest.")
		return
	}
	_, _ = fmt.Fprintf(w, "\nIngestion complete:\n")
	for _, r := range reports {
		_, _ = fmt.Fprintf(w, "  %-12s received %5d  duplicates %5d  inserted %5d  failed %5d\n",
			domain.NewCollection(r.Language, r.Kind).Name(), r.Received, r.Duplicates, r.Inserted, r.Failed)
	}
	received, duplicates, inserted, failed := ingestion.Totals(reports)
	_, _ = fmt.Fprintf(w, "  %-12s received %5d  duplicates %5d  inserted %5d  failed %5d\n",
		"total", received, duplicates, inserted, failed)

	var failures []string
	for _, r := range reports {
		for _, f := range r.Failures {
			failures = append(failures, fmt.Sprintf("%s: %s", f.Ref, f.Reason))
		}
	}
	if len(failures) > 0 {
		_, _ = fmt.Fprintf(w, "\nRejected items:\n")
		for _, f := range failures {
			_, _ = fmt.Fprintf(w, "  - %s\n", f)
		}
	}
}
