package country

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalises free text into an alias key: lowercase, diacritics
// stripped, everything except a-z removed. "États-Unis" becomes "etatsunis".
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	decomposer := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(decomposer, strings.ToLower(s))
	if err != nil {
		stripped = strings.ToLower(s)
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for i := 0; i < len(stripped); i++ {
		c := stripped[i]
		if c >= 'a' && c <= 'z' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
