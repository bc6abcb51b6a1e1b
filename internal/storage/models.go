package storage

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"shipping-bot/internal/refdata"
)

// Numeric columns are selected as text and parsed here so that no precision
// is lost between PostgreSQL NUMERIC and decimal.Decimal.

func parseDecimal(column, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s %q: %w", column, v, err)
	}
	return d, nil
}

func scanCarrier(row pgx.CollectableRow) (refdata.Carrier, error) {
	var c refdata.Carrier
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Currency); err != nil {
		return c, err
	}
	c.Code = strings.ToUpper(c.Code)
	c.Currency = strings.ToUpper(c.Currency)
	return c, nil
}

func scanService(row pgx.CollectableRow) (refdata.Service, error) {
	var (
		s                  refdata.Service
		direction          string
		maxWeight, divisor string
	)
	if err := row.Scan(&s.ID, &s.CarrierID, &s.Code, &s.Label, &direction, &s.OriginISO2, &s.Incoterm, &s.ServiceType, &maxWeight, &divisor); err != nil {
		return s, err
	}
	var err error
	if s.MaxWeightKg, err = parseDecimal("max_weight_kg", maxWeight); err != nil {
		return s, err
	}
	if divisor != "" {
		if s.VolumetricDivisor, err = parseDecimal("volumetric_divisor", divisor); err != nil {
			return s, err
		}
	}
	s.Direction = refdata.Direction(strings.ToUpper(direction))
	s.OriginISO2 = strings.ToUpper(s.OriginISO2)
	s.Incoterm = strings.ToUpper(s.Incoterm)
	s.ServiceType = strings.ToUpper(s.ServiceType)
	return s, nil
}

func scanScope(row pgx.CollectableRow) (refdata.TariffScope, error) {
	var sc refdata.TariffScope
	err := row.Scan(&sc.ID, &sc.ServiceID, &sc.Code, &sc.Description, &sc.CatchAll)
	return sc, err
}

func scanScopeCountry(row pgx.CollectableRow) (refdata.ScopeCountry, error) {
	var sc refdata.ScopeCountry
	if err := row.Scan(&sc.ScopeID, &sc.CountryISO2); err != nil {
		return sc, err
	}
	sc.CountryISO2 = strings.ToUpper(sc.CountryISO2)
	return sc, nil
}

func scanBand(row pgx.CollectableRow) (refdata.TariffBand, error) {
	var (
		b                        refdata.TariffBand
		minW, maxW, base, perKg string
	)
	if err := row.Scan(&b.ID, &b.ScopeID, &minW, &maxW, &base, &perKg, &b.MinCharge); err != nil {
		return b, err
	}
	var err error
	if b.MinWeightKg, err = parseDecimal("min_weight_kg", minW); err != nil {
		return b, err
	}
	if b.MaxWeightKg, err = parseDecimal("max_weight_kg", maxW); err != nil {
		return b, err
	}
	if b.BaseAmount, err = parseDecimal("base_amount", base); err != nil {
		return b, err
	}
	if b.AmountPerKg, err = parseDecimal("amount_per_kg", perKg); err != nil {
		return b, err
	}
	return b, nil
}

func scanSurcharge(row pgx.CollectableRow) (refdata.SurchargeRule, error) {
	var (
		rule                    refdata.SurchargeRule
		kind, basis, value, raw string
	)
	if err := row.Scan(&rule.ID, &rule.ServiceID, &rule.Name, &kind, &basis, &value, &raw); err != nil {
		return rule, err
	}
	var err error
	if rule.Value, err = parseDecimal("value", value); err != nil {
		return rule, err
	}
	rule.Kind = refdata.SurchargeKind(strings.ToUpper(kind))
	rule.Basis = refdata.SurchargeBasis(strings.ToUpper(basis))
	if rule.Conditions, err = refdata.ParseConditions(raw); err != nil {
		return rule, fmt.Errorf("surcharge %d: %w", rule.ID, err)
	}
	return rule, nil
}

func scanRestriction(row pgx.CollectableRow) (refdata.Restriction, error) {
	var r refdata.Restriction
	if err := row.Scan(&r.ServiceCode, &r.CountryISO2, &r.Status, &r.Message); err != nil {
		return r, err
	}
	r.CountryISO2 = strings.ToUpper(r.CountryISO2)
	return r, nil
}
