package domain

import "fmt"

// Kind distinguishes entity collections from sentence collections.
type Kind string

const (
	// KindEntity holds entity records, one per (text, type).
	KindEntity Kind = "entity"
	// KindSentence holds example sentences with gold NER labels.
	KindSentence Kind = "sentence"
)

// ParseKind validates a collection kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindEntity, KindSentence:
		return Kind(s), nil
	default:
		return "", NewInvalidInput("kind", "unknown collection kind "+quote(s))
	}
}

// Collection identifies one vector collection: a kind partitioned by language.
type Collection struct {
	Language Language
	Kind     Kind
}

// NewCollection builds a collection identity.
func NewCollection(lang Language, kind Kind) Collection {
	return Collection{Language: lang, Kind: kind}
}

// Name is the storage name, "{kind}_{language}".
func (c Collection) Name() string {
	return CollectionName(c.Kind, c.Language)
}

func (c Collection) String() string { return c.Name() }

// CollectionName formats the storage name of a collection.
func CollectionName(kind Kind, lang Language) string {
	return fmt.Sprintf("%s_%s", kind, lang)
}

// CollectionInfo describes a stored collection.
type CollectionInfo struct {
	Name      string `json:"name"`
	VectorDim int    `json:"vector_dim"`
	Metric    string `json:"metric"`
	Count     int    `json:"count"`
}
