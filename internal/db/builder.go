package db

import (
	"strconv"
	"strings"
)

// Default vector field name shared by all backends.
const DefaultVectorField = "embedding"

// CollectionBuilder is a fluent builder for collection definitions.
type CollectionBuilder struct {
	def CollectionDefinition
}

// NewCollection starts building a collection definition.
func NewCollection(name string) *CollectionBuilder {
	return &CollectionBuilder{
		def: CollectionDefinition{
			Name: name,
			Vector: VectorField{
				Name:      DefaultVectorField,
				Metric:    DistanceCosine,
				Algorithm: VectorFlat,
			},
		},
	}
}

// Tag adds a filterable TAG field.
func (b *CollectionBuilder) Tag(name string) *CollectionBuilder {
	b.def.Fields = append(b.def.Fields, Field{Name: name, Type: FieldTag, MaxLength: 256})
	return b
}

// Text adds a stored text field with the given capacity in bytes.
func (b *CollectionBuilder) Text(name string, maxLength int) *CollectionBuilder {
	b.def.Fields = append(b.def.Fields, Field{Name: name, Type: FieldText, MaxLength: maxLength})
	return b
}

// Vector sets dimension and metric of the vector field.
func (b *CollectionBuilder) Vector(dim int, metric DistanceMetric) *CollectionBuilder {
	b.def.Vector.Dim = dim
	b.def.Vector.Metric = metric
	return b
}

// VectorName renames the vector field.
func (b *CollectionBuilder) VectorName(name string) *CollectionBuilder {
	b.def.Vector.Name = name
	return b
}

// HNSW selects the HNSW index.
func (b *CollectionBuilder) HNSW(m, efConstruct int) *CollectionBuilder {
	b.def.Vector.Algorithm = VectorHNSW
	b.def.Vector.M = m
	b.def.Vector.EFConstruct = efConstruct
	return b
}

// Flat selects brute-force search.
func (b *CollectionBuilder) Flat(blockSize int) *CollectionBuilder {
	b.def.Vector.Algorithm = VectorFlat
	b.def.Vector.BlockSize = blockSize
	return b
}

// IVFFlat selects the IVF_FLAT index.
func (b *CollectionBuilder) IVFFlat(nlist int) *CollectionBuilder {
	b.def.Vector.Algorithm = VectorIVFFlat
	b.def.Vector.NList = nlist
	return b
}

// Build validates and returns the collection definition.
func (b *CollectionBuilder) Build() (*CollectionDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	def := b.def
	def.Fields = append([]Field(nil), b.def.Fields...)
	return &def, nil
}

// MustBuild calls Build and panics on error.
func (b *CollectionBuilder) MustBuild() *CollectionDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// String returns a debug representation of the schema.
func (c *CollectionDefinition) String() string {
	parts := []string{"COLLECTION", c.Name, "SCHEMA"}
	for _, f := range c.Fields {
		parts = append(parts, f.Name)
		switch f.Type {
		case FieldTag:
			parts = append(parts, "TAG")
		case FieldText:
			parts = append(parts, "TEXT")
		}
	}
	parts = append(parts,
		c.Vector.Name, "VECTOR", string(c.Vector.Algorithm),
		"DIM", strconv.Itoa(c.Vector.Dim),
		"DISTANCE_METRIC", string(c.Vector.Metric),
	)
	return strings.Join(parts, " ")
}
