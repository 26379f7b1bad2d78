package record

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kailas-cloud/nerprompt/internal/db"
	"github.com/kailas-cloud/nerprompt/internal/domain"
	"github.com/kailas-cloud/nerprompt/internal/repository/collection"
)

// writer is the consumer interface for record inserts (ISP).
type writer interface {
	InsertRecords(ctx context.Context, collection string, records []db.Record) ([]string, error)
}

// Repo appends entity and sentence records to verified collections.
type Repo struct {
	store writer
}

// New creates a record repository.
func New(s writer) *Repo {
	return &Repo{store: s}
}

// InsertEntities validates each record and writes the valid ones in a single call.
// Invalid records are reported per index and never abort the batch. A backend
// failure marks every valid record failed and is returned alongside the report.
func (r *Repo) InsertEntities(
	ctx context.Context, h collection.Handle, recs []domain.EntityRecord,
) (domain.InsertReport, error) {
	if h.Collection.Kind != domain.KindEntity {
		return domain.InsertReport{}, fmt.Errorf("insert entities into %s: wrong collection kind", h.Name())
	}
	rows := make([]row, 0, len(recs))
	report := newReport(len(recs))
	for i, rec := range recs {
		text := strings.TrimSpace(rec.Text)
		reason := validate(h, text, rec.Embedding)
		t, err := domain.ParseEntityType(string(rec.Type))
		if reason == "" && err != nil {
			reason = "unknown entity type " + string(rec.Type)
		}
		if reason != "" {
			report.fail(i, rec.Text, reason)
			continue
		}
		rows = append(rows, row{index: i, text: text, record: db.Record{
			Fields: map[string]string{
				collection.FieldText:       text,
				collection.FieldEntityType: string(t),
			},
			Vector: rec.Embedding,
		}})
	}
	return r.write(ctx, h, rows, report)
}

// InsertSentences validates each record and writes the valid ones in a single call.
// Labels are stored in their canonical JSON form.
func (r *Repo) InsertSentences(
	ctx context.Context, h collection.Handle, recs []domain.SentenceRecord,
) (domain.InsertReport, error) {
	if h.Collection.Kind != domain.KindSentence {
		return domain.InsertReport{}, fmt.Errorf("insert sentences into %s: wrong collection kind", h.Name())
	}
	rows := make([]row, 0, len(recs))
	report := newReport(len(recs))
	for i, rec := range recs {
		text := strings.TrimSpace(rec.Text)
		if reason := validate(h, text, rec.Embedding); reason != "" {
			report.fail(i, rec.Text, reason)
			continue
		}
		labels, err := rec.Labels.MarshalJSON()
		if err != nil {
			report.fail(i, rec.Text, "encode labels: "+err.Error())
			continue
		}
		rows = append(rows, row{index: i, text: text, record: db.Record{
			Fields: map[string]string{
				collection.FieldText:   text,
				collection.FieldLabels: string(labels),
			},
			Vector: rec.Embedding,
		}})
	}
	return r.write(ctx, h, rows, report)
}

type row struct {
	index  int
	text   string
	record db.Record
}

func (r *Repo) write(
	ctx context.Context, h collection.Handle, rows []row, report reportBuilder,
) (domain.InsertReport, error) {
	if len(rows) == 0 {
		return report.build(), nil
	}
	records := make([]db.Record, len(rows))
	for i := range rows {
		records[i] = rows[i].record
	}

	ids, err := r.store.InsertRecords(ctx, h.Name(), records)
	if err != nil {
		for _, rw := range rows {
			report.fail(rw.index, rw.text, err.Error())
		}
		return report.build(), fmt.Errorf("insert into %s: %w", h.Name(), mapErr(err))
	}
	for i, rw := range rows {
		report.ids[rw.index] = ids[i]
	}
	return report.build(), nil
}

func validate(h collection.Handle, text string, vec []float32) string {
	switch {
	case text == "":
		return "text must not be empty"
	case len(vec) == 0:
		return "embedding is required"
	case len(vec) != h.Dim:
		return fmt.Sprintf("embedding dimension %d, collection expects %d", len(vec), h.Dim)
	}
	return ""
}

type reportBuilder struct {
	ids      []string
	failures *[]domain.InsertFailure
}

func newReport(n int) reportBuilder {
	return reportBuilder{ids: make([]string, n), failures: new([]domain.InsertFailure)}
}

func (b reportBuilder) fail(index int, text, reason string) {
	*b.failures = append(*b.failures, domain.InsertFailure{Index: index, Text: text, Reason: reason})
}

func (b reportBuilder) build() domain.InsertReport {
	failures := *b.failures
	slices.SortStableFunc(failures, func(a, c domain.InsertFailure) int {
		return cmp.Compare(a.Index, c.Index)
	})
	return domain.InsertReport{IDs: b.ids, Failures: failures}
}
