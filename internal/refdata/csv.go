package refdata

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// DirSource reads the normalised CSV tables from one directory.
type DirSource struct {
	Dir string
}

// NewDirSource returns a Source backed by <dir>/<table>.csv files.
func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir}
}

// LoadTables reads every table. Mandatory tables abort on the first bad row.
// Any failure reading restrictions only degrades the load.
func (s *DirSource) LoadTables(ctx context.Context) (Tables, Report, error) {
	var (
		tables Tables
		report Report
	)

	steps := []struct {
		table string
		parse func(r row) error
	}{
		{TableCarriers, func(r row) error {
			c, err := parseCarrier(r)
			tables.Carriers = append(tables.Carriers, c)
			return err
		}},
		{TableServices, func(r row) error {
			svc, err := parseService(r)
			tables.Services = append(tables.Services, svc)
			return err
		}},
		{TableScopes, func(r row) error {
			sc, err := parseScope(r)
			tables.Scopes = append(tables.Scopes, sc)
			return err
		}},
		{TableScopeCountries, func(r row) error {
			sc, err := parseScopeCountry(r)
			tables.ScopeCountries = append(tables.ScopeCountries, sc)
			return err
		}},
		{TableBands, func(r row) error {
			b, err := parseBand(r)
			tables.Bands = append(tables.Bands, b)
			return err
		}},
		{TableSurcharges, func(r row) error {
			rule, err := parseSurcharge(r)
			tables.Surcharges = append(tables.Surcharges, rule)
			return err
		}},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return Tables{}, report, err
		}
		if err := s.readTable(step.table, step.parse); err != nil {
			return Tables{}, report, err
		}
	}

	err := s.readTable(TableRestrictions, func(r row) error {
		restriction, parseErr := parseRestriction(r)
		if parseErr != nil {
			report.Degradef("skipped %v", parseErr)
			return nil
		}
		tables.Restrictions = append(tables.Restrictions, restriction)
		return nil
	})
	switch {
	case errors.Is(err, ErrMissingTable):
		report.Degradef("%s table not found; offers will carry no restriction notices", TableRestrictions)
	case err != nil:
		report.Degradef("%s table unreadable, keeping %d rows read before the failure: %v", TableRestrictions, len(tables.Restrictions), err)
	}

	return tables, report, nil
}

func (s *DirSource) readTable(table string, fn func(r row) error) error {
	path := filepath.Join(s.Dir, table+".csv")
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &LoadError{Table: table, Err: fmt.Errorf("%w: %s", ErrMissingTable, path)}
		}
		return &LoadError{Table: table, Err: err}
	}
	defer file.Close()

	return readCSV(table, file, fn)
}

func readCSV(table string, r io.Reader, fn func(r row) error) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return &LoadError{Table: table, Row: 1, Err: fmt.Errorf("read header: %w", err)}
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	line := 1
	for {
		record, readErr := reader.Read()
		if errors.Is(readErr, io.EOF) {
			return nil
		}
		line++
		if readErr != nil {
			return &LoadError{Table: table, Row: line, Err: readErr}
		}
		if err := fn(row{table: table, line: line, columns: columns, record: record}); err != nil {
			return err
		}
	}
}

// row is one CSV record addressed by header name.
type row struct {
	table   string
	line    int
	columns map[string]int
	record  []string
}

func (r row) fail(column string, err error) error {
	return &LoadError{Table: r.table, Row: r.line, Column: column, Err: err}
}

func (r row) lookup(column string) (string, bool) {
	idx, ok := r.columns[column]
	if !ok || idx >= len(r.record) {
		return "", false
	}
	return strings.TrimSpace(r.record[idx]), true
}

func (r row) optional(column string) string {
	v, _ := r.lookup(column)
	return v
}

func (r row) str(column string) (string, error) {
	v, ok := r.lookup(column)
	if !ok || v == "" {
		return "", r.fail(column, errors.New("required value missing"))
	}
	return v, nil
}

func (r row) id(column string) (int64, error) {
	v, err := r.str(column)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, r.fail(column, fmt.Errorf("parse integer %q: %w", v, err))
	}
	return n, nil
}

func (r row) decimal(column string) (decimal.Decimal, error) {
	v, err := r.str(column)
	if err != nil {
		return decimal.Decimal{}, err
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, r.fail(column, fmt.Errorf("parse decimal %q: %w", v, err))
	}
	return d, nil
}

func (r row) flag(column string) (bool, error) {
	v, err := r.str(column)
	if err != nil {
		return false, err
	}
	return parseFlag(v, func(e error) error { return r.fail(column, e) })
}

func parseFlag(v string, wrap func(error) error) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, wrap(fmt.Errorf("parse boolean %q: want true or false", v))
	}
}

func parseCarrier(r row) (Carrier, error) {
	var (
		c   Carrier
		err error
	)
	if c.ID, err = r.id("carrier_id"); err != nil {
		return c, err
	}
	if c.Code, err = r.str("code"); err != nil {
		return c, err
	}
	if c.Name, err = r.str("name"); err != nil {
		return c, err
	}
	if c.Currency, err = r.str("currency"); err != nil {
		return c, err
	}
	c.Code = strings.ToUpper(c.Code)
	c.Currency = strings.ToUpper(c.Currency)
	return c, nil
}

func parseService(r row) (Service, error) {
	var (
		s   Service
		err error
	)
	if s.ID, err = r.id("service_id"); err != nil {
		return s, err
	}
	if s.CarrierID, err = r.id("carrier_id"); err != nil {
		return s, err
	}
	if s.Code, err = r.str("code"); err != nil {
		return s, err
	}
	if s.Label, err = r.str("label"); err != nil {
		return s, err
	}
	if s.MaxWeightKg, err = r.decimal("max_weight_kg"); err != nil {
		return s, err
	}
	s.Direction = Direction(strings.ToUpper(r.optional("direction")))
	s.OriginISO2 = strings.ToUpper(r.optional("origin_iso2"))
	s.Incoterm = strings.ToUpper(r.optional("incoterm"))
	s.ServiceType = strings.ToUpper(r.optional("service_type"))
	if v := r.optional("volumetric_divisor"); v != "" {
		if s.VolumetricDivisor, err = r.decimal("volumetric_divisor"); err != nil {
			return s, err
		}
	}
	return s, nil
}

func parseScope(r row) (TariffScope, error) {
	var (
		sc  TariffScope
		err error
	)
	if sc.ID, err = r.id("scope_id"); err != nil {
		return sc, err
	}
	if sc.ServiceID, err = r.id("service_id"); err != nil {
		return sc, err
	}
	if sc.Code, err = r.str("code"); err != nil {
		return sc, err
	}
	if sc.CatchAll, err = r.flag("is_catch_all"); err != nil {
		return sc, err
	}
	sc.Description = r.optional("description")
	return sc, nil
}

func parseScopeCountry(r row) (ScopeCountry, error) {
	var (
		sc  ScopeCountry
		err error
	)
	if sc.ScopeID, err = r.id("scope_id"); err != nil {
		return sc, err
	}
	if sc.CountryISO2, err = r.str("country_iso2"); err != nil {
		return sc, err
	}
	sc.CountryISO2 = strings.ToUpper(sc.CountryISO2)
	return sc, nil
}

func parseBand(r row) (TariffBand, error) {
	var (
		b   TariffBand
		err error
	)
	if b.ID, err = r.id("band_id"); err != nil {
		return b, err
	}
	if b.ScopeID, err = r.id("scope_id"); err != nil {
		return b, err
	}
	if b.MinWeightKg, err = r.decimal("min_weight_kg"); err != nil {
		return b, err
	}
	if b.MaxWeightKg, err = r.decimal("max_weight_kg"); err != nil {
		return b, err
	}
	if b.BaseAmount, err = r.decimal("base_amount"); err != nil {
		return b, err
	}
	if b.AmountPerKg, err = r.decimal("amount_per_kg"); err != nil {
		return b, err
	}
	if b.MinCharge, err = r.flag("is_min_charge"); err != nil {
		return b, err
	}
	return b, nil
}

func parseSurcharge(r row) (SurchargeRule, error) {
	var (
		rule SurchargeRule
		err  error
	)
	if rule.ID, err = r.id("surcharge_id"); err != nil {
		return rule, err
	}
	if rule.ServiceID, err = r.id("service_id"); err != nil {
		return rule, err
	}
	if rule.Name, err = r.str("name"); err != nil {
		return rule, err
	}
	if rule.Value, err = r.decimal("value"); err != nil {
		return rule, err
	}
	kind, err := r.str("kind")
	if err != nil {
		return rule, err
	}
	rule.Kind = SurchargeKind(strings.ToUpper(kind))
	rule.Basis = SurchargeBasis(strings.ToUpper(r.optional("basis")))

	rule.Conditions, err = ParseConditions(r.optional("conditions"))
	if err != nil {
		return rule, r.fail("conditions", err)
	}
	return rule, nil
}

func parseRestriction(r row) (Restriction, error) {
	var (
		res Restriction
		err error
	)
	if res.ServiceCode, err = r.str("service_code"); err != nil {
		return res, err
	}
	if res.CountryISO2, err = r.str("country_iso2"); err != nil {
		return res, err
	}
	if res.Status, err = r.str("status"); err != nil {
		return res, err
	}
	res.CountryISO2 = strings.ToUpper(res.CountryISO2)
	res.Message = r.optional("message")
	return res, nil
}

// ParseConditions decodes a JSON object of string values. Empty input and
// "{}" both yield an empty (unconditional) set; non-string values are rejected.
func ParseConditions(raw string) (Conditions, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "{}" || strings.EqualFold(raw, "null") {
		return Conditions{}, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("parse conditions %q: %w", raw, err)
	}
	out := make(Conditions, len(decoded))
	for key, value := range decoded {
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("condition %q must be a string, got %T", key, value)
		}
		out[key] = s
	}
	return out, nil
}

var _ Source = (*DirSource)(nil)
