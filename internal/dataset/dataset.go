// Package dataset parses the reference corpora used to populate the store:
//
//	entities:  {"en": {"PERSON": ["Barack Obama", ...], ...}, ...}
//	sentences: {"en": [{"sentence": "...", "ner_labels": {...}}, ...], ...}
//
// Malformed items are reported per item and never abort a parse.
package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"github.com/kailas-cloud/nerprompt/internal/domain"
)

// Failure describes one rejected item of a document.
type Failure struct {
	Language string `json:"language"`
	Ref      string `json:"ref"` // e.g. "en/PERSON[3]" or "ja[12]"
	Text     string `json:"text,omitempty"`
	Reason   string `json:"reason"`
}

// Entity is one parsed entity mention.
type Entity struct {
	Language domain.Language
	Type     domain.EntityType
	Text     string
	Ref      string
}

// Sentence is one parsed, labelled sentence.
type Sentence struct {
	Language domain.Language
	Text     string
	Labels   domain.NERLabels
	Ref      string
}

// Entities is a parsed entity document.
type Entities struct {
	Items    []Entity
	Failures []Failure
}

// Sentences is a parsed sentence document.
type Sentences struct {
	Items    []Sentence
	Failures []Failure
}

// ParseEntities reads an entity document. Languages come out in supported-language
// order and types in canonical order, so ingestion is reproducible.
func ParseEntities(r io.Reader) (Entities, error) {
	var doc map[string]map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Entities{}, fmt.Errorf("%w: decode entities document: %w", domain.ErrInvalidInput, err)
	}

	var out Entities
	for _, key := range languageKeys(doc) {
		lang, err := domain.ParseLanguage(key)
		if err != nil {
			out.Failures = append(out.Failures, Failure{Language: key, Ref: key, Reason: err.Error()})
			continue
		}

		byType := make(map[domain.EntityType][]json.RawMessage)
		var unknown []string
		for typeKey, raw := range doc[key] {
			t, err := domain.ParseEntityType(typeKey)
			if err != nil {
				unknown = append(unknown, typeKey)
				continue
			}
			byType[t] = append(byType[t], raw)
		}
		sort.Strings(unknown)
		for _, typeKey := range unknown {
			out.Failures = append(out.Failures, Failure{
				Language: key,
				Ref:      key + "/" + typeKey,
				Reason:   "unknown entity type " + typeKey,
			})
		}

		for _, t := range domain.AllEntityTypes() {
			for _, raw := range byType[t] {
				out.parseTexts(lang, t, raw)
			}
		}
	}
	return out, nil
}

func (e *Entities) parseTexts(lang domain.Language, t domain.EntityType, raw json.RawMessage) {
	base := string(lang) + "/" + string(t)

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		items = []json.RawMessage{raw} // a single string is a one-item list
	}
	for i, item := range items {
		ref := fmt.Sprintf("%s[%d]", base, i)
		var text string
		if err := json.Unmarshal(item, &text); err != nil {
			e.Failures = append(e.Failures, Failure{Language: string(lang), Ref: ref, Reason: "entity must be a string"})
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			e.Failures = append(e.Failures, Failure{Language: string(lang), Ref: ref, Reason: "empty entity text"})
			continue
		}
		e.Items = append(e.Items, Entity{Language: lang, Type: t, Text: text, Ref: ref})
	}
}

type rawSentence struct {
	Sentence  string          `json:"sentence"`
	Text      string          `json:"text"`
	NERLabels json.RawMessage `json:"ner_labels"`
	Entities  json.RawMessage `json:"entities"`
}

// ParseSentences reads a sentence document. Labels are normalized with
// domain.ParseNERLabels; "entities" is used when "ner_labels" is absent.
func ParseSentences(r io.Reader) (Sentences, error) {
	var doc map[string][]json.RawMessage
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Sentences{}, fmt.Errorf("%w: decode sentences document: %w", domain.ErrInvalidInput, err)
	}

	var out Sentences
	for _, key := range languageKeys(doc) {
		lang, err := domain.ParseLanguage(key)
		if err != nil {
			out.Failures = append(out.Failures, Failure{Language: key, Ref: key, Reason: err.Error()})
			continue
		}
		for i, raw := range doc[key] {
			ref := fmt.Sprintf("%s[%d]", key, i)
			s, reason := parseSentence(lang, raw)
			if reason != "" {
				out.Failures = append(out.Failures, Failure{Language: key, Ref: ref, Text: s.Text, Reason: reason})
				continue
			}
			s.Ref = ref
			out.Items = append(out.Items, s)
		}
	}
	return out, nil
}

func parseSentence(lang domain.Language, raw json.RawMessage) (Sentence, string) {
	var rs rawSentence
	if err := json.Unmarshal(raw, &rs); err != nil {
		return Sentence{}, "sentence must be an object"
	}
	text := strings.TrimSpace(rs.Sentence)
	if text == "" {
		text = strings.TrimSpace(rs.Text)
	}
	if text == "" {
		return Sentence{}, "empty sentence text"
	}

	labelsRaw := rs.NERLabels
	if len(labelsRaw) == 0 {
		labelsRaw = rs.Entities
	}
	labels, err := domain.ParseNERLabels(labelsRaw, lang)
	if err != nil {
		return Sentence{Text: text}, err.Error()
	}
	return Sentence{Language: lang, Text: text, Labels: labels}, ""
}

// languageKeys orders supported languages first, in their canonical order,
// followed by unknown keys alphabetically.
func languageKeys[V any](doc map[string]V) []string {
	known := make(map[string]bool, len(doc))
	var keys []string
	for _, l := range domain.AllLanguages() {
		for k := range doc {
			if strings.EqualFold(strings.TrimSpace(k), string(l)) {
				keys = append(keys, k)
				known[k] = true
			}
		}
	}
	var rest []string
	for k := range doc {
		if !known[k] {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	return append(keys, rest...)
}
