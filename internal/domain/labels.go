package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Span is one labelled entity mention inside a sentence.
type Span struct {
	Type EntityType `json:"type"`
	Text string     `json:"text"`
}

// NERLabels are the gold annotations of a sentence, in mention order.
type NERLabels []Span

// ByType groups mention texts by entity type, preserving mention order.
func (l NERLabels) ByType() map[EntityType][]string {
	out := make(map[EntityType][]string)
	for _, s := range l {
		out[s.Type] = append(out[s.Type], s.Text)
	}
	return out
}

// String renders labels as {"TYPE": ["text", ...], ...} with keys in canonical order.
func (l NERLabels) String() string {
	return string(l.render(": ", ", "))
}

// MarshalJSON renders the same object as String, compacted.
func (l NERLabels) MarshalJSON() ([]byte, error) {
	return l.render(":", ","), nil
}

// UnmarshalJSON accepts every shape ParseNERLabels does.
func (l *NERLabels) UnmarshalJSON(data []byte) error {
	parsed, err := ParseNERLabels(data, "")
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func (l NERLabels) render(kv, sep string) []byte {
	grouped := l.ByType()
	present := make(map[EntityType]bool, len(grouped))
	for t := range grouped {
		present[t] = true
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, t := range SortEntityTypes(present) {
		if i > 0 {
			buf.WriteString(sep)
		}
		key, _ := json.Marshal(string(t))
		buf.Write(key)
		buf.WriteString(kv)
		buf.WriteByte('[')
		for j, text := range grouped[t] {
			if j > 0 {
				buf.WriteString(sep)
			}
			buf.Write(marshalNoEscape(text))
		}
		buf.WriteByte(']')
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// marshalNoEscape encodes s as a JSON string without HTML escaping, so
// entity names like "AT&T" survive verbatim in prompts.
func marshalNoEscape(s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return bytes.TrimRight(buf.Bytes(), "\n")
}

// ParseNERLabels normalizes the annotation shapes found in NER datasets:
//
//   - object:      {"PERSON": ["Barack Obama"], "LOCATION": "Hawaii"}
//   - JSON string: "{\"PERSON\": [\"Barack Obama\"]}"
//   - span list:   [{"type": "PERSON", "text": "Barack Obama"}]
//   - token tags:  {"tokens": ["Barack", "Obama"], "tags": ["B-PERSON", "I-PERSON"]}
//
// Token spans are joined with a space, except for languages written without
// word separators (ja, zh). Unknown entity types are rejected.
func ParseNERLabels(raw json.RawMessage, lang Language) (NERLabels, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return NERLabels{}, nil
	}

	switch raw[0] {
	case '"':
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, labelsError("decode string: " + err.Error())
		}
		inner = strings.TrimSpace(inner)
		if inner == "" || inner[0] == '"' {
			return nil, labelsError("string must contain a JSON object or array")
		}
		return ParseNERLabels(json.RawMessage(inner), lang)
	case '[':
		return parseSpanList(raw)
	case '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, labelsError("decode object: " + err.Error())
		}
		if _, ok := probe["tokens"]; ok {
			return parseTokenTags(probe, lang)
		}
		return parseTypeMap(probe)
	default:
		return nil, labelsError("unsupported shape")
	}
}

func parseTypeMap(m map[string]json.RawMessage) (NERLabels, error) {
	byType := make(map[EntityType][]string, len(m))
	for key, val := range m {
		t, err := ParseEntityType(key)
		if err != nil {
			return nil, err
		}
		texts, err := decodeTexts(val)
		if err != nil {
			return nil, labelsError(fmt.Sprintf("type %s: %v", key, err))
		}
		byType[t] = append(byType[t], texts...)
	}

	present := make(map[EntityType]bool, len(byType))
	for t := range byType {
		present[t] = true
	}
	var out NERLabels
	for _, t := range SortEntityTypes(present) {
		for _, text := range byType[t] {
			if text = strings.TrimSpace(text); text != "" {
				out = append(out, Span{Type: t, Text: text})
			}
		}
	}
	if out == nil {
		out = NERLabels{}
	}
	return out, nil
}

func decodeTexts(val json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(val, &list); err == nil {
		return list, nil
	}
	var single string
	if err := json.Unmarshal(val, &single); err != nil {
		return nil, fmt.Errorf("expected string or list of strings")
	}
	return []string{single}, nil
}

type rawSpan struct {
	Type   string `json:"type"`
	Label  string `json:"label"`
	Text   string `json:"text"`
	Entity string `json:"entity"`
}

func parseSpanList(raw json.RawMessage) (NERLabels, error) {
	var spans []rawSpan
	if err := json.Unmarshal(raw, &spans); err != nil {
		return nil, labelsError("decode span list: " + err.Error())
	}
	out := make(NERLabels, 0, len(spans))
	for i, s := range spans {
		typ := firstNonEmpty(s.Type, s.Label)
		text := strings.TrimSpace(firstNonEmpty(s.Text, s.Entity))
		if typ == "" || text == "" {
			return nil, labelsError(fmt.Sprintf("span %d: type and text are required", i))
		}
		t, err := ParseEntityType(typ)
		if err != nil {
			return nil, err
		}
		out = append(out, Span{Type: t, Text: text})
	}
	return out, nil
}

func parseTokenTags(m map[string]json.RawMessage, lang Language) (NERLabels, error) {
	var tokens, tags []string
	if err := json.Unmarshal(m["tokens"], &tokens); err != nil {
		return nil, labelsError("decode tokens: " + err.Error())
	}
	tagsRaw, ok := m["tags"]
	if !ok {
		tagsRaw = m["ner_tags"]
	}
	if err := json.Unmarshal(tagsRaw, &tags); err != nil {
		return nil, labelsError("decode tags: " + err.Error())
	}
	if len(tokens) != len(tags) {
		return nil, labelsError(fmt.Sprintf("%d tokens but %d tags", len(tokens), len(tags)))
	}

	joiner := " "
	if lang == LangJA || lang == LangZH {
		joiner = ""
	}

	out := NERLabels{}
	var cur []string
	var curType EntityType
	flush := func() {
		if len(cur) > 0 {
			out = append(out, Span{Type: curType, Text: strings.Join(cur, joiner)})
		}
		cur = nil
	}

	for i, tag := range tags {
		prefix, name, hasType := strings.Cut(tag, "-")
		if tag == "O" || tag == "" || !hasType {
			flush()
			continue
		}
		t, err := ParseEntityType(name)
		if err != nil {
			return nil, err
		}
		switch prefix {
		case "B":
			flush()
			curType = t
			cur = []string{tokens[i]}
		case "S", "U":
			flush()
			curType = t
			cur = []string{tokens[i]}
			flush()
		case "I", "E", "M", "L":
			if len(cur) == 0 || curType != t {
				flush()
				curType = t
			}
			cur = append(cur, tokens[i])
			if prefix == "E" || prefix == "L" {
				flush()
			}
		default:
			return nil, labelsError("unknown tag scheme " + quote(tag))
		}
	}
	flush()
	return out, nil
}

func labelsError(reason string) error {
	return NewInvalidInput("ner_labels", reason)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
