package refdata

import (
	"context"
	"errors"
	"fmt"
)

// Table names shared by every source.
const (
	TableCarriers       = "carriers"
	TableServices       = "services"
	TableScopes         = "tariff_scopes"
	TableScopeCountries = "tariff_scope_countries"
	TableBands          = "tariff_bands"
	TableSurcharges     = "surcharge_rules"
	TableRestrictions   = "restrictions"
)

// ErrMissingTable marks a mandatory table that could not be found.
var ErrMissingTable = errors.New("mandatory table missing")

// Tables holds typed rows as read from a source, before validation and indexing.
type Tables struct {
	Carriers       []Carrier
	Services       []Service
	Scopes         []TariffScope
	ScopeCountries []ScopeCountry
	Bands          []TariffBand
	Surcharges     []SurchargeRule
	Restrictions   []Restriction
}

// Source produces reference tables. Implementations must fail on mandatory
// table errors and record auxiliary problems in the report.
type Source interface {
	LoadTables(ctx context.Context) (Tables, Report, error)
}

// LoadError is a fatal reference-data problem. Row is the 1-based data line
// (header is line 1) or zero when the problem is not tied to a row.
type LoadError struct {
	Table  string
	Row    int
	Column string
	Err    error
}

func (e *LoadError) Error() string {
	switch {
	case e.Row > 0 && e.Column != "":
		return fmt.Sprintf("%s row %d column %s: %v", e.Table, e.Row, e.Column, e.Err)
	case e.Row > 0:
		return fmt.Sprintf("%s row %d: %v", e.Table, e.Row, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Table, e.Err)
	}
}

func (e *LoadError) Unwrap() error { return e.Err }

// Report collects non-fatal findings of a load. Degraded is set when an
// auxiliary table was missing or had rows skipped.
type Report struct {
	Warnings []string
	Degraded bool
}

// Warnf records a warning that does not affect completeness.
func (r *Report) Warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Degradef records a warning about missing auxiliary data.
func (r *Report) Degradef(format string, args ...any) {
	r.Degraded = true
	r.Warnf(format, args...)
}

// Merge appends other into r.
func (r *Report) Merge(other Report) {
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Degraded = r.Degraded || other.Degraded
}
