package country

import (
	"strings"

	"github.com/rs/zerolog"
)

// minFuzzyAliasLen keeps short aliases ("at", "us") out of substring matching.
const minFuzzyAliasLen = 4

// Alias maps one spelling of a destination to its ISO2 code.
type Alias struct {
	Text string
	Code string
}

// Resolver maps user-supplied destination text to ISO2 country codes.
// It is immutable after construction and safe for concurrent use.
type Resolver struct {
	exact  map[string]string
	fuzzy  []Alias
	names  map[string]string
	logger zerolog.Logger
}

// NewResolver indexes aliases and display names. Aliases are normalised with
// Normalize before indexing; the first occurrence of a key wins. Every code
// present in names is also registered as an exact alias of itself.
func NewResolver(aliases []Alias, names map[string]string, logger zerolog.Logger) *Resolver {
	r := &Resolver{
		exact:  make(map[string]string, len(aliases)+len(names)),
		names:  make(map[string]string, len(names)),
		logger: logger.With().Str("component", "country_resolver").Logger(),
	}

	for code, name := range names {
		r.names[strings.ToUpper(strings.TrimSpace(code))] = name
	}

	for _, alias := range aliases {
		r.add(alias.Text, alias.Code)
	}
	for _, code := range sortedCodes(r.names) {
		r.add(code, code)
	}

	return r
}

func (r *Resolver) add(text, code string) {
	key := Normalize(text)
	code = strings.ToUpper(strings.TrimSpace(code))
	if key == "" || code == "" {
		r.logger.Warn().Str("alias", text).Str("code", code).Msg("ignoring alias with empty key or code")
		return
	}

	if existing, ok := r.exact[key]; ok {
		if existing != code {
			r.logger.Warn().Str("alias", key).Str("kept", existing).Str("dropped", code).Msg("conflicting alias")
		}
		return
	}

	r.exact[key] = code
	if len(key) >= minFuzzyAliasLen {
		r.fuzzy = append(r.fuzzy, Alias{Text: key, Code: code})
	}
}

// Resolve returns the ISO2 code for text. An exact alias match wins; otherwise
// the longest alias contained in the normalised text is used, ties going to
// the alias registered first.
func (r *Resolver) Resolve(text string) (string, bool) {
	key := Normalize(text)
	if key == "" {
		return "", false
	}

	if code, ok := r.exact[key]; ok {
		return code, true
	}

	var best Alias
	for _, alias := range r.fuzzy {
		if len(alias.Text) <= len(best.Text) {
			continue
		}
		if strings.Contains(key, alias.Text) {
			best = alias
		}
	}
	if best.Code == "" {
		return "", false
	}
	return best.Code, true
}

// Name returns the display name for an ISO2 code.
func (r *Resolver) Name(code string) (string, bool) {
	name, ok := r.names[strings.ToUpper(strings.TrimSpace(code))]
	return name, ok
}

// Len reports the number of indexed aliases.
func (r *Resolver) Len() int {
	return len(r.exact)
}
