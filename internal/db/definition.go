package db

import (
	"fmt"
	"strings"
)

// DistanceMetric is the vector similarity metric of a collection.
type DistanceMetric string

const (
	// DistanceL2 is Euclidean distance.
	DistanceL2 DistanceMetric = "L2"
	// DistanceIP is inner product distance.
	DistanceIP DistanceMetric = "IP"
	// DistanceCosine is cosine distance.
	DistanceCosine DistanceMetric = "COSINE"
)

// ParseDistanceMetric accepts metric names in any case.
func ParseDistanceMetric(s string) (DistanceMetric, error) {
	m := DistanceMetric(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case DistanceL2, DistanceIP, DistanceCosine:
		return m, nil
	case "":
		return DistanceCosine, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

// VectorAlgorithm selects the index algorithm for the vector field.
type VectorAlgorithm string

const (
	// VectorHNSW uses the HNSW graph index. Approximate.
	VectorHNSW VectorAlgorithm = "HNSW"
	// VectorFlat uses brute-force search. Exact.
	VectorFlat VectorAlgorithm = "FLAT"
	// VectorIVFFlat uses an inverted file index (Milvus only). Approximate.
	VectorIVFFlat VectorAlgorithm = "IVF_FLAT"
)

// ParseVectorAlgorithm accepts algorithm names in any case.
func ParseVectorAlgorithm(s string) (VectorAlgorithm, error) {
	a := VectorAlgorithm(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case VectorHNSW, VectorFlat, VectorIVFFlat:
		return a, nil
	case "":
		return VectorFlat, nil
	default:
		return "", fmt.Errorf("unknown vector algorithm %q", s)
	}
}

// FieldType enumerates payload field types.
type FieldType int

const (
	// FieldTag is an exact-match, filterable string field.
	FieldTag FieldType = iota
	// FieldText is a stored, non-filterable string field.
	FieldText
)

// Field describes a payload field of a collection.
type Field struct {
	Name      string
	Type      FieldType
	MaxLength int // VARCHAR capacity for backends with fixed-width strings
}

// VectorField describes the vector column of a collection.
type VectorField struct {
	Name      string
	Dim       int
	Metric    DistanceMetric
	Algorithm VectorAlgorithm

	M           int // HNSW max edges per node
	EFConstruct int // HNSW build-time candidate list size
	NList       int // IVF cluster count
	BlockSize   int // FLAT BLOCK_SIZE (valkey)
}

// CollectionDefinition is the complete schema of a vector collection.
type CollectionDefinition struct {
	Name   string
	Fields []Field
	Vector VectorField
}

// Field returns the named payload field.
func (c *CollectionDefinition) Field(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames lists payload field names in definition order.
func (c *CollectionDefinition) FieldNames() []string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return names
}

// Validate checks that the definition is well-formed.
func (c *CollectionDefinition) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: collection name is required", ErrInvalidDefinition)
	}
	if !IsValidIdentifier(c.Name) {
		return fmt.Errorf("%w: collection name contains invalid characters", ErrInvalidDefinition)
	}
	if c.Vector.Name == "" {
		return fmt.Errorf("%w: vector field name is required", ErrInvalidDefinition)
	}
	if c.Vector.Dim <= 0 {
		return fmt.Errorf("%w: vector field requires positive DIM", ErrInvalidDefinition)
	}

	seen := map[string]bool{c.Vector.Name: true}
	for i := range c.Fields {
		f := &c.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("%w: field name is required at index %d", ErrInvalidDefinition, i)
		}
		if !IsValidIdentifier(f.Name) {
			return fmt.Errorf("%w: field name %q contains invalid characters", ErrInvalidDefinition, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate field name: %s", ErrInvalidDefinition, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// ValidateRecord checks a record against the definition.
func (c *CollectionDefinition) ValidateRecord(r Record) error {
	if len(r.Vector) != c.Vector.Dim {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, c.Vector.Dim, len(r.Vector))
	}
	for _, f := range c.Fields {
		if f.MaxLength > 0 && len(r.Fields[f.Name]) > f.MaxLength {
			return fmt.Errorf("field %s exceeds %d bytes", f.Name, f.MaxLength)
		}
	}
	return nil
}

// IsValidIdentifier returns true if s matches [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isSpecial := r == '_' || r == ':' || r == '-'
		if !isAlpha && !isDigit && !isSpecial {
			return false
		}
	}
	return true
}
