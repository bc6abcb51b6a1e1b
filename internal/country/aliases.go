package country

import (
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

//go:embed countries.yaml
var embeddedCountries []byte

type countryFile struct {
	Countries []countryEntry `yaml:"countries"`
}

type countryEntry struct {
	Code    string   `yaml:"code"`
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// ParseCountries decodes a YAML country list into aliases and display names.
func ParseCountries(data []byte) ([]Alias, map[string]string, error) {
	var file countryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("decode country list: %w", err)
	}

	aliases := make([]Alias, 0, len(file.Countries)*3)
	names := make(map[string]string, len(file.Countries))
	for _, entry := range file.Countries {
		code := strings.ToUpper(strings.TrimSpace(entry.Code))
		if len(code) != 2 {
			return nil, nil, fmt.Errorf("country %q: code must be two letters", entry.Code)
		}
		if entry.Name != "" {
			names[code] = entry.Name
			aliases = append(aliases, Alias{Text: entry.Name, Code: code})
		}
		for _, text := range entry.Aliases {
			aliases = append(aliases, Alias{Text: text, Code: code})
		}
	}
	return aliases, names, nil
}

// Fallback returns the embedded minimal alias set and display names.
func Fallback() ([]Alias, map[string]string) {
	aliases, names, err := ParseCountries(embeddedCountries)
	if err != nil {
		panic("embedded country list is invalid: " + err.Error())
	}
	return aliases, names
}

// ReadAliasesCSV reads an (alias, country_iso2) table. Rows with a missing
// alias or code are skipped and reported through skipped.
func ReadAliasesCSV(r io.Reader) (aliases []Alias, skipped []string, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read alias header: %w", err)
	}
	aliasCol, codeCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "alias", "alias_normalized":
			aliasCol = i
		case "country_iso2", "iso2", "code":
			codeCol = i
		}
	}
	if aliasCol < 0 || codeCol < 0 {
		return nil, nil, errors.New("alias table needs alias and country_iso2 columns")
	}

	line := 1
	for {
		record, readErr := reader.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}
		line++
		if readErr != nil {
			return nil, nil, fmt.Errorf("read alias row %d: %w", line, readErr)
		}
		if aliasCol >= len(record) || codeCol >= len(record) {
			skipped = append(skipped, fmt.Sprintf("row %d: missing columns", line))
			continue
		}
		text := strings.TrimSpace(record[aliasCol])
		code := strings.ToUpper(strings.TrimSpace(record[codeCol]))
		if text == "" || len(code) != 2 {
			skipped = append(skipped, fmt.Sprintf("row %d: invalid alias %q -> %q", line, text, code))
			continue
		}
		aliases = append(aliases, Alias{Text: text, Code: code})
	}
	return aliases, skipped, nil
}

// Load builds a Resolver from the alias table at path, always including the
// embedded display names and aliases. A missing or unreadable table is not
// fatal: the embedded set is used alone and degraded is true.
func Load(path string, logger zerolog.Logger) (resolver *Resolver, degraded bool) {
	fallbackAliases, names := Fallback()
	log := logger.With().Str("component", "country_loader").Logger()

	if path == "" {
		log.Warn().Msg("no alias table configured; using embedded country list")
		return NewResolver(fallbackAliases, names, logger), true
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn().Str("path", path).Msg("alias table not found; using embedded country list")
		} else {
			log.Warn().Err(err).Str("path", path).Msg("cannot open alias table; using embedded country list")
		}
		return NewResolver(fallbackAliases, names, logger), true
	}
	defer file.Close()

	aliases, skipped, err := ReadAliasesCSV(file)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("cannot parse alias table; using embedded country list")
		return NewResolver(fallbackAliases, names, logger), true
	}
	for _, msg := range skipped {
		log.Warn().Str("path", path).Msg("skipped alias " + msg)
	}

	log.Info().Str("path", path).Int("aliases", len(aliases)).Msg("alias table loaded")
	return WithFallback(aliases, logger), len(skipped) > 0
}

// WithFallback builds a Resolver from extra aliases, which take precedence,
// followed by the embedded set.
func WithFallback(extra []Alias, logger zerolog.Logger) *Resolver {
	fallbackAliases, names := Fallback()
	merged := make([]Alias, 0, len(extra)+len(fallbackAliases))
	merged = append(merged, extra...)
	merged = append(merged, fallbackAliases...)
	return NewResolver(merged, names, logger)
}

func sortedCodes(names map[string]string) []string {
	codes := make([]string, 0, len(names))
	for code := range names {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
