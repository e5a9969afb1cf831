package preprocess

import (
	"context"
	"strings"
	"unicode"
)

// HeuristicLanguageTools is a dependency-free LanguageTools for local runs
// and tests. Detection is script-based, translation is a passthrough, and
// service names come from a configured dictionary.
type HeuristicLanguageTools struct {
	KnownServices []string
}

func (h HeuristicLanguageTools) LanguageCheck(_ context.Context, query string) (string, error) {
	for _, r := range query {
		if unicode.Is(unicode.Han, r) {
			return "zh", nil
		}
	}
	return "en", nil
}

func (h HeuristicLanguageTools) Translate(_ context.Context, query, _ string) (string, error) {
	return query, nil
}

func (h HeuristicLanguageTools) IsAPIQuery(_ context.Context, query string) (bool, error) {
	q := strings.ToLower(query)
	return strings.Contains(q, "api") || strings.Contains(q, "sdk"), nil
}

func (h HeuristicLanguageTools) ServiceNames(_ context.Context, query string) ([]string, error) {
	q := strings.ToLower(query)
	var names []string
	for _, svc := range h.KnownServices {
		if strings.Contains(q, strings.ToLower(svc)) {
			names = append(names, svc)
		}
	}
	return names, nil
}

var _ LanguageTools = HeuristicLanguageTools{}
