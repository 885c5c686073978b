package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopwords are common Portuguese words dropped from token matching.
var stopwords = map[string]struct{}{
	"a": {}, "ao": {}, "aos": {}, "as": {}, "com": {}, "da": {}, "das": {}, "de": {},
	"do": {}, "dos": {}, "e": {}, "em": {}, "na": {}, "nas": {}, "no": {}, "nos": {},
	"o": {}, "os": {}, "ou": {}, "para": {}, "pela": {}, "pelo": {}, "por": {}, "que": {},
	"se": {}, "sem": {}, "um": {}, "uma": {},
}

// Normalize lowercases text and strips diacritics.
func Normalize(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		out = text
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// Tokens splits normalized text into words, dropping stopwords and punctuation.
func Tokens(text string) []string {
	fields := strings.FieldsFunc(Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}
