package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shipping-bot/internal/country"
	"shipping-bot/internal/refdata"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	listCarriersSQL = `SELECT carrier_id, code, name, currency
    FROM carriers
    ORDER BY carrier_id;`

	listServicesSQL = `SELECT
        service_id,
        carrier_id,
        code,
        label,
        COALESCE(direction, ''),
        COALESCE(origin_iso2, ''),
        COALESCE(incoterm, ''),
        COALESCE(service_type, ''),
        max_weight_kg::text,
        COALESCE(volumetric_divisor::text, '')
    FROM services
    ORDER BY service_id;`

	listScopesSQL = `SELECT scope_id, service_id, code, COALESCE(description, ''), is_catch_all
    FROM tariff_scopes
    ORDER BY scope_id;`

	listScopeCountriesSQL = `SELECT scope_id, country_iso2
    FROM tariff_scope_countries
    ORDER BY scope_id, country_iso2;`

	listBandsSQL = `SELECT
        band_id,
        scope_id,
        min_weight_kg::text,
        max_weight_kg::text,
        base_amount::text,
        amount_per_kg::text,
        is_min_charge
    FROM tariff_bands
    ORDER BY band_id;`

	listSurchargesSQL = `SELECT
        surcharge_id,
        service_id,
        name,
        kind,
        COALESCE(basis, ''),
        value::text,
        COALESCE(conditions::text, '')
    FROM surcharge_rules
    ORDER BY surcharge_id;`

	listRestrictionsSQL = `SELECT service_code, country_iso2, status, COALESCE(message, '')
    FROM restrictions
    ORDER BY service_code, country_iso2;`

	listAliasesSQL = `SELECT alias, country_iso2
    FROM country_aliases
    ORDER BY alias;`

	tableExistsSQL = `SELECT to_regclass($1) IS NOT NULL;`
)

// Store reads reference data from PostgreSQL. It never writes.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// LoadTables reads every reference table. Mandatory tables fail the load;
// a missing restrictions relation only degrades it.
func (s *Store) LoadTables(ctx context.Context) (refdata.Tables, refdata.Report, error) {
	var (
		tables refdata.Tables
		report refdata.Report
	)

	pool, err := s.getPool()
	if err != nil {
		return tables, report, err
	}

	if tables.Carriers, err = queryTable(ctx, pool, refdata.TableCarriers, listCarriersSQL, scanCarrier); err != nil {
		return refdata.Tables{}, report, err
	}
	if tables.Services, err = queryTable(ctx, pool, refdata.TableServices, listServicesSQL, scanService); err != nil {
		return refdata.Tables{}, report, err
	}
	if tables.Scopes, err = queryTable(ctx, pool, refdata.TableScopes, listScopesSQL, scanScope); err != nil {
		return refdata.Tables{}, report, err
	}
	if tables.ScopeCountries, err = queryTable(ctx, pool, refdata.TableScopeCountries, listScopeCountriesSQL, scanScopeCountry); err != nil {
		return refdata.Tables{}, report, err
	}
	if tables.Bands, err = queryTable(ctx, pool, refdata.TableBands, listBandsSQL, scanBand); err != nil {
		return refdata.Tables{}, report, err
	}
	if tables.Surcharges, err = queryTable(ctx, pool, refdata.TableSurcharges, listSurchargesSQL, scanSurcharge); err != nil {
		return refdata.Tables{}, report, err
	}

	exists, err := tableExists(ctx, pool, refdata.TableRestrictions)
	if err != nil {
		return refdata.Tables{}, report, err
	}
	if !exists {
		report.Degradef("%s relation not found; offers will carry no restriction notices", refdata.TableRestrictions)
		return tables, report, nil
	}
	restrictions, err := queryTable(ctx, pool, refdata.TableRestrictions, listRestrictionsSQL, scanRestriction)
	if err != nil {
		report.Degradef("read %s: %v", refdata.TableRestrictions, err)
		return tables, report, nil
	}
	tables.Restrictions = restrictions

	return tables, report, nil
}

// LoadAliases reads the country alias relation. A missing relation returns
// no aliases and no error.
func (s *Store) LoadAliases(ctx context.Context) ([]country.Alias, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	exists, err := tableExists(ctx, pool, "country_aliases")
	if err != nil || !exists {
		return nil, err
	}
	return queryTable(ctx, pool, "country_aliases", listAliasesSQL, func(row pgx.CollectableRow) (country.Alias, error) {
		var a country.Alias
		if err := row.Scan(&a.Text, &a.Code); err != nil {
			return a, err
		}
		a.Code = strings.ToUpper(strings.TrimSpace(a.Code))
		return a, nil
	})
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, table string) (bool, error) {
	var exists bool
	if err := pool.QueryRow(ctx, tableExistsSQL, table).Scan(&exists); err != nil {
		return false, fmt.Errorf("check relation %s: %w", table, err)
	}
	return exists, nil
}

func queryTable[T any](ctx context.Context, pool *pgxpool.Pool, table, query string, scan pgx.RowToFunc[T]) ([]T, error) {
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, &refdata.LoadError{Table: table, Err: fmt.Errorf("query: %w", err)}
	}
	out, err := pgx.CollectRows(rows, scan)
	if err != nil {
		return nil, &refdata.LoadError{Table: table, Err: err}
	}
	return out, nil
}

var _ refdata.Source = (*Store)(nil)
