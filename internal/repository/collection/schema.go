package collection

import (
	"github.com/kailas-cloud/nerprompt/internal/db"
	"github.com/kailas-cloud/nerprompt/internal/domain"
)

// Payload field names shared by the record and search repositories.
const (
	FieldText       = "text"
	FieldEntityType = "entity_type"
	FieldLabels     = "ner_labels"
)

// Field capacities in bytes (VARCHAR limits on milvus).
const (
	entityTextMaxLength   = 1024
	sentenceTextMaxLength = 8192
	labelsMaxLength       = 16384
)

// Schema is the deployment-wide vector configuration applied to every collection.
type Schema struct {
	Dim       int
	Metric    db.DistanceMetric
	Algorithm db.VectorAlgorithm

	M           int // HNSW
	EFConstruct int // HNSW
	NList       int // IVF_FLAT
}

// definition builds the backend definition of a collection.
// Entity collections carry a TAG field so searches can prefilter by type.
func definition(c domain.Collection, s Schema) (*db.CollectionDefinition, error) {
	b := db.NewCollection(c.Name())
	switch c.Kind {
	case domain.KindEntity:
		b.Tag(FieldEntityType).Text(FieldText, entityTextMaxLength)
	case domain.KindSentence:
		b.Text(FieldText, sentenceTextMaxLength).Text(FieldLabels, labelsMaxLength)
	}
	b.Vector(s.Dim, s.Metric)

	switch s.Algorithm {
	case db.VectorHNSW:
		b.HNSW(s.M, s.EFConstruct)
	case db.VectorIVFFlat:
		b.IVFFlat(s.NList)
	default:
		b.Flat(0)
	}
	return b.Build()
}
