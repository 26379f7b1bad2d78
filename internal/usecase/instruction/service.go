package instruction

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/nerprompt/internal/domain"
)

// Output is the answer to one query: the rendered instruction plus what it was built from.
type Output struct {
	Instruction string                                   `json:"instruction"`
	Statistics  domain.Statistics                        `json:"statistics"`
	Sentences   []domain.SentenceHit                     `json:"similar_sentences,omitempty"`
	Entities    map[domain.EntityType][]domain.EntityHit `json:"entity_results,omitempty"`
}

// Service retrieves examples for a query and renders them into an instruction.
type Service struct {
	retriever Retriever
	assembler *Assembler
}

// NewService creates an instruction service.
func NewService(r Retriever, a *Assembler) *Service {
	return &Service{retriever: r, assembler: a}
}

// Build answers q. withDetails attaches the raw sentence and entity hits.
func (s *Service) Build(ctx context.Context, q domain.Query, withDetails bool) (Output, error) {
	res, err := s.retriever.Retrieve(ctx, q)
	if err != nil {
		return Output{}, fmt.Errorf("retrieve: %w", err)
	}
	out := Output{
		Instruction: s.assembler.Render(res.Query, res),
		Statistics:  res.Stats,
	}
	if withDetails {
		out.Sentences = res.Sentences
		out.Entities = res.Entities
	}
	return out, nil
}
