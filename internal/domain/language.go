package domain

import "strings"

// Language is a supported corpus language (ISO 639-1).
type Language string

// Supported languages.
const (
	LangDE Language = "de"
	LangEN Language = "en"
	LangES Language = "es"
	LangFR Language = "fr"
	LangJA Language = "ja"
	LangKO Language = "ko"
	LangRU Language = "ru"
	LangZH Language = "zh"
)

var allLanguages = []Language{LangDE, LangEN, LangES, LangFR, LangJA, LangKO, LangRU, LangZH}

// AllLanguages returns every supported language in stable order.
func AllLanguages() []Language {
	out := make([]Language, len(allLanguages))
	copy(out, allLanguages)
	return out
}

// ParseLanguage validates a language code. Surrounding spaces and case are ignored.
func ParseLanguage(s string) (Language, error) {
	l := Language(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range allLanguages {
		if l == known {
			return l, nil
		}
	}
	return "", NewInvalidInput("language", "unsupported language "+quote(s))
}

// ParseLanguages parses a list of codes; an empty list means all languages.
func ParseLanguages(codes []string) ([]Language, error) {
	if len(codes) == 0 {
		return AllLanguages(), nil
	}
	out := make([]Language, 0, len(codes))
	for _, c := range codes {
		l, err := ParseLanguage(c)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (l Language) String() string { return string(l) }

func quote(s string) string { return `"` + s + `"` }
