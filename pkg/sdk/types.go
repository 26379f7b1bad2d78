package nerprompt

import (
	"github.com/kailas-cloud/nerprompt/internal/domain"
	collectionuc "github.com/kailas-cloud/nerprompt/internal/usecase/collection"
	"github.com/kailas-cloud/nerprompt/internal/usecase/ingestion"
	"github.com/kailas-cloud/nerprompt/internal/usecase/instruction"
)

// Language is a supported language code.
type Language = domain.Language

// Supported languages.
const (
	German   = domain.LangDE
	English  = domain.LangEN
	Spanish  = domain.LangES
	French   = domain.LangFR
	Japanese = domain.LangJA
	Korean   = domain.LangKO
	Russian  = domain.LangRU
	Chinese  = domain.LangZH
)

// EntityType is one of the eight NER categories.
type EntityType = domain.EntityType

// Query asks for an instruction for Text in Language.
// Zero TopK values fall back to the client defaults.
type Query = domain.Query

// Output is the rendered instruction with its retrieval statistics.
type Output = instruction.Output

// IngestReport summarizes ingestion into one collection.
type IngestReport = ingestion.Report

// Stats holds record counts per language.
type Stats = collectionuc.Stats

// CleanupReport lists dropped and skipped collections.
type CleanupReport = collectionuc.CleanupReport

// BatchResult is the outcome of one query of QueryBatch.
type BatchResult struct {
	Output Output
	Err    error
}

// ParseLanguage validates a language code.
func ParseLanguage(s string) (Language, error) {
	return domain.ParseLanguage(s) //nolint:wrapcheck // domain error is the API
}

// ParseEntityType accepts canonical names case-insensitively and "SCIENCE ENTITY".
func ParseEntityType(s string) (EntityType, error) {
	return domain.ParseEntityType(s) //nolint:wrapcheck // domain error is the API
}
