package instruction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/nerprompt/internal/domain"
)

type stubRetriever struct {
	res domain.RetrievalResult
	err error
}

func (s *stubRetriever) Retrieve(_ context.Context, _ domain.Query) (domain.RetrievalResult, error) {
	return s.res, s.err
}

func TestBuild(t *testing.T) {
	res := obamaResult()
	res.Query = "Obama was born in Hawaii."
	res.Stats.TotalEntitiesFound = 3
	svc := NewService(&stubRetriever{res: res}, NewAssembler(Options{}))

	out, err := svc.Build(context.Background(), domain.Query{Text: " Obama was born in Hawaii. "}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(out.Instruction, "Input: Obama was born in Hawaii.") {
		t.Errorf("instruction tail = %q", out.Instruction[len(out.Instruction)-40:])
	}
	if out.Statistics.TotalEntitiesFound != 3 {
		t.Errorf("stats = %+v", out.Statistics)
	}
	if out.Sentences != nil || out.Entities != nil {
		t.Error("details must be omitted unless requested")
	}

	out, _ = svc.Build(context.Background(), domain.Query{Text: "x"}, true)
	if len(out.Sentences) != 1 || len(out.Entities) != 2 {
		t.Errorf("details = %d sentences, %d types", len(out.Sentences), len(out.Entities))
	}
}

func TestBuild_PropagatesError(t *testing.T) {
	svc := NewService(&stubRetriever{err: domain.ErrEmbeddingFailure}, NewAssembler(Options{}))

	if _, err := svc.Build(context.Background(), domain.Query{Text: "x"}, false); !errors.Is(err, domain.ErrEmbeddingFailure) {
		t.Fatalf("expected ErrEmbeddingFailure, got %v", err)
	}
}
