package domain

import "strings"

// EntityType is a named-entity category. The set is closed.
type EntityType string

// Entity types in canonical order.
const (
	EntityPerson        EntityType = "PERSON"
	EntityLocation      EntityType = "LOCATION"
	EntityProduct       EntityType = "PRODUCT"
	EntityFacility      EntityType = "FACILITY"
	EntityArt           EntityType = "ART"
	EntityGroup         EntityType = "GROUP"
	EntityMiscellaneous EntityType = "MISCELLANEOUS"
	EntityScience       EntityType = "SCIENCE_ENTITY"
)

var canonicalEntityTypes = []EntityType{
	EntityPerson,
	EntityLocation,
	EntityProduct,
	EntityFacility,
	EntityArt,
	EntityGroup,
	EntityMiscellaneous,
	EntityScience,
}

// AllEntityTypes returns every entity type in canonical order.
func AllEntityTypes() []EntityType {
	out := make([]EntityType, len(canonicalEntityTypes))
	copy(out, canonicalEntityTypes)
	return out
}

// ParseEntityType accepts the canonical name in any case, and space or dash
// separated spellings such as "SCIENCE ENTITY" used by the reference datasets.
func ParseEntityType(s string) (EntityType, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	for _, t := range canonicalEntityTypes {
		if EntityType(norm) == t {
			return t, nil
		}
	}
	return "", NewInvalidInput("entity_type", "unknown entity type "+quote(s))
}

// ParseEntityTypes parses a list of names; an empty list means all types.
// The result is always in canonical order without duplicates.
func ParseEntityTypes(names []string) ([]EntityType, error) {
	if len(names) == 0 {
		return AllEntityTypes(), nil
	}
	seen := make(map[EntityType]bool, len(names))
	for _, n := range names {
		t, err := ParseEntityType(n)
		if err != nil {
			return nil, err
		}
		seen[t] = true
	}
	return SortEntityTypes(seen), nil
}

// SortEntityTypes returns the types present in set, in canonical order.
func SortEntityTypes(set map[EntityType]bool) []EntityType {
	out := make([]EntityType, 0, len(set))
	for _, t := range canonicalEntityTypes {
		if set[t] {
			out = append(out, t)
		}
	}
	return out
}

// Rank is the position of t in canonical order, or -1 for unknown types.
func (t EntityType) Rank() int {
	for i, c := range canonicalEntityTypes {
		if c == t {
			return i
		}
	}
	return -1
}

func (t EntityType) String() string { return string(t) }
