package instruction

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/nerprompt/internal/domain"
)

const (
	header        = "Please list all named entities of the following entity types in the input sentence"
	examplesTitle = "Here are some examples:"
	formatLine    = `You should output your results in the format {"type": ["entity"]} as a JSON.`
	inputMarker   = "Input: "
	outputMarker  = "Output: "
	noExamples    = "(no examples available)"
	entitySep     = ", \n       "
)

// EmptyTypePolicy decides how entity types without hits are rendered.
type EmptyTypePolicy string

// Empty type policies.
const (
	EmptyTypeEmit EmptyTypePolicy = "emit"
	EmptyTypeOmit EmptyTypePolicy = "omit"
)

// ParseEmptyTypePolicy accepts "emit", "omit" or "" (emit).
func ParseEmptyTypePolicy(s string) (EmptyTypePolicy, error) {
	switch EmptyTypePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", EmptyTypeEmit:
		return EmptyTypeEmit, nil
	case EmptyTypeOmit:
		return EmptyTypeOmit, nil
	default:
		return "", fmt.Errorf("unknown empty type policy %q", s)
	}
}

// Default caps.
const (
	DefaultMaxEntitiesPerType = 5
	DefaultMaxExamples        = 5
)

// Options tune rendering. Zero values take defaults.
type Options struct {
	EntityTypes        []domain.EntityType // rendered sections; empty means all
	EmptyType          EmptyTypePolicy
	MaxEntitiesPerType int
	MaxExamples        int
}

// Assembler renders retrieval results into an NER instruction prompt.
// Render is pure: identical input always yields identical output.
type Assembler struct {
	types       []domain.EntityType
	emptyType   EmptyTypePolicy
	maxEntities int
	maxExamples int
}

// NewAssembler creates an assembler.
func NewAssembler(opts Options) *Assembler {
	a := &Assembler{
		types:       domain.AllEntityTypes(),
		emptyType:   opts.EmptyType,
		maxEntities: opts.MaxEntitiesPerType,
		maxExamples: opts.MaxExamples,
	}
	if len(opts.EntityTypes) > 0 {
		set := make(map[domain.EntityType]bool, len(opts.EntityTypes))
		for _, t := range opts.EntityTypes {
			set[t] = true
		}
		a.types = domain.SortEntityTypes(set)
	}
	if a.emptyType == "" {
		a.emptyType = EmptyTypeEmit
	}
	if a.maxEntities <= 0 {
		a.maxEntities = DefaultMaxEntitiesPerType
	}
	if a.maxExamples <= 0 {
		a.maxExamples = DefaultMaxExamples
	}
	return a
}

// Render builds the instruction for query from res.
// Entity sections follow canonical type order regardless of how res.Entities was built.
func (a *Assembler) Render(query string, res domain.RetrievalResult) string {
	var b strings.Builder

	b.WriteString(header)
	b.WriteByte('\n')

	first := true
	for _, t := range a.types {
		hits := res.Entities[t]
		if len(hits) == 0 && a.emptyType == EmptyTypeOmit {
			continue
		}
		if !first {
			b.WriteByte('\n')
		}
		first = false
		a.writeType(&b, t, hits)
	}
	if !first {
		b.WriteByte('\n')
	}

	b.WriteString(examplesTitle)
	b.WriteByte('\n')
	n := min(len(res.Sentences), a.maxExamples)
	for i := range n {
		s := res.Sentences[i].Record
		b.WriteString(inputMarker)
		b.WriteString(s.Text)
		b.WriteByte('\n')
		b.WriteString(outputMarker)
		b.WriteString(s.Labels.String())
		b.WriteByte('\n')
		if i < n-1 {
			b.WriteByte('\n')
		}
	}
	b.WriteByte('\n')

	b.WriteString(formatLine)
	b.WriteByte('\n')
	b.WriteString(inputMarker)
	b.WriteString(strings.TrimSpace(query))
	return b.String()
}

func (a *Assembler) writeType(b *strings.Builder, t domain.EntityType, hits []domain.EntityHit) {
	b.WriteString("- ")
	b.WriteString(string(t))
	b.WriteString(": \n  e.g. ")
	if len(hits) == 0 {
		b.WriteString(noExamples)
		return
	}
	for i, h := range hits[:min(len(hits), a.maxEntities)] {
		if i > 0 {
			b.WriteString(entitySep)
		}
		b.WriteString(h.Record.Text)
	}
}
