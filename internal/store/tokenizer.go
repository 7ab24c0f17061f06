package store

import (
	"regexp"
	"strings"
)

// domainTokenRegex matches alphanumeric runs optionally joined by '.', '-',
// or '#', so domain codes like "G.P.#" or "TCO-004" survive as single
// tokens. Trailing '#' is meaningful and kept; trailing '.' and '-' are
// ordinary punctuation and trimmed afterwards.
var domainTokenRegex = regexp.MustCompile(`[A-Za-z0-9]+(?:[.#\-][A-Za-z0-9]*)*`)

// TokenizeDomain lowercases text and extracts joined alphanumeric runs,
// emitting both the whole token and its split sub-parts so a code matches
// as a unit and by fragment.
//
//	"Invoice G.P.# 12345" -> ["invoice", "g.p.#", "g", "p", "12345"]
//	"TCO-004"             -> ["tco-004", "tco", "004"]
func TokenizeDomain(text string) []string {
	var tokens []string
	for _, raw := range domainTokenRegex.FindAllString(strings.ToLower(text), -1) {
		whole := strings.TrimRight(raw, ".-")
		if whole == "" {
			continue
		}

		parts := splitFragments(whole)
		if len(parts) > 1 || parts[0] != whole {
			tokens = append(tokens, whole)
		}
		tokens = append(tokens, parts...)
	}
	return tokens
}

// splitFragments splits a token on its joiner characters, dropping empties.
func splitFragments(token string) []string {
	parts := strings.FieldsFunc(token, func(r rune) bool {
		return r == '.' || r == '-' || r == '#'
	})
	if len(parts) == 0 {
		return []string{token}
	}
	return parts
}
