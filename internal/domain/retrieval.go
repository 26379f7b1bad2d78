package domain

import "time"

// Query is one retrieval request. Zero TopK values fall back to configured defaults.
type Query struct {
	Text          string   `json:"text"`
	Language      Language `json:"language"`
	TopKEntities  int      `json:"top_k_entities,omitempty"`
	TopKSentences int      `json:"top_k_sentences,omitempty"`
}

// Section names the part of a retrieval a warning refers to.
type Section string

// Retrieval sections.
const (
	SectionSentences Section = "sentences"
	SectionEntities  Section = "entities"
)

// Warning records a degraded part of a retrieval result.
type Warning struct {
	Section    Section    `json:"section"`
	EntityType EntityType `json:"entity_type,omitempty"`
	Kind       ErrorKind  `json:"kind"`
	Message    string     `json:"message"`
}

// Statistics summarize one retrieval.
type Statistics struct {
	TotalEntitiesFound int                `json:"total_entities_found"`
	PerTypeCounts      map[EntityType]int `json:"per_type_counts"`
	EntityTypesFound   []EntityType       `json:"entity_types_found"`
	SentenceCount      int                `json:"sentence_count"`
	Warnings           []Warning          `json:"warnings"`
	Duration           time.Duration      `json:"duration_ns"`
}

// Degraded reports whether any part of the retrieval was skipped.
func (s Statistics) Degraded() bool { return len(s.Warnings) > 0 }

// RetrievalResult is the per-query outcome of the retrieval engine. Never persisted.
type RetrievalResult struct {
	Query     string                     `json:"query"`
	Language  Language                   `json:"language"`
	Sentences []SentenceHit              `json:"similar_sentences"`
	Entities  map[EntityType][]EntityHit `json:"entity_results"`
	Stats     Statistics                 `json:"statistics"`
}
