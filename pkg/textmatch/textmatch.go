// Package textmatch normalises free text typed by contacts so it can be compared
// against keywords, option labels and trigger phrases.
package textmatch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, strips diacritics and collapses whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// Contains reports whether needle occurs in haystack, ignoring case and accents.
func Contains(haystack, needle string) bool {
	return strings.Contains(Fold(haystack), Fold(needle))
}

// Words splits folded text into words, dropping surrounding punctuation.
func Words(s string) []string {
	fields := strings.Fields(Fold(s))
	words := make([]string, 0, len(fields))

	for _, field := range fields {
		word := strings.TrimFunc(field, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if word != "" {
			words = append(words, word)
		}
	}

	return words
}

// Truncate shortens s to at most limit runes, marking the cut with an ellipsis.
func Truncate(s string, limit int) string {
	r := []rune(s)
	if limit <= 0 || len(r) <= limit {
		return s
	}

	if limit == 1 {
		return string(r[:1])
	}

	return string(r[:limit-1]) + "…"
}
