package refdata

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Direction of a carrier service relative to its origin country.
type Direction string

const (
	DirectionExport   Direction = "EXPORT"
	DirectionImport   Direction = "IMPORT"
	DirectionDomestic Direction = "DOMESTIC"
)

// SurchargeKind selects how a surcharge value is scaled.
type SurchargeKind string

const (
	KindPercent SurchargeKind = "PERCENT"
	KindFlat    SurchargeKind = "FLAT"
	KindPerKg   SurchargeKind = "PER_KG"
)

// SurchargeBasis is the base a PERCENT surcharge is computed against.
type SurchargeBasis string

const (
	BasisFreight SurchargeBasis = "FREIGHT"
	BasisTotal   SurchargeBasis = "TOTAL"
)

// Well-known surcharge condition keys.
const (
	ConditionDeliveryType      = "delivery_type"
	ConditionDeliveryFrequency = "delivery_frequency"
)

// Carrier is one carrier brand.
type Carrier struct {
	ID       int64
	Code     string
	Name     string
	Currency string
}

// Service is a priced product offered by a carrier.
type Service struct {
	ID                int64
	CarrierID         int64
	Code              string
	Label             string
	Direction         Direction
	OriginISO2        string
	Incoterm          string
	ServiceType       string
	MaxWeightKg       decimal.Decimal
	VolumetricDivisor decimal.Decimal
}

// TariffScope is a destination zone of one service. Countries is sorted and
// empty only for catch-all scopes. Bands are sorted by MinWeightKg.
type TariffScope struct {
	ID          int64
	ServiceID   int64
	Code        string
	Description string
	CatchAll    bool
	Countries   []string
	Bands       []TariffBand
}

// ScopeCountry is one row of the scope membership table.
type ScopeCountry struct {
	ScopeID     int64
	CountryISO2 string
}

// TariffBand prices a closed weight interval [MinWeightKg, MaxWeightKg].
type TariffBand struct {
	ID          int64
	ScopeID     int64
	MinWeightKg decimal.Decimal
	MaxWeightKg decimal.Decimal
	BaseAmount  decimal.Decimal
	AmountPerKg decimal.Decimal
	MinCharge   bool
}

// Contains reports whether weight falls inside the band, bounds included.
func (b TariffBand) Contains(weightKg decimal.Decimal) bool {
	return b.MinWeightKg.LessThanOrEqual(weightKg) && weightKg.LessThanOrEqual(b.MaxWeightKg)
}

// Describe renders the band range, e.g. "0-2kg".
func (b TariffBand) Describe() string {
	return fmt.Sprintf("%s-%skg", b.MinWeightKg.String(), b.MaxWeightKg.String())
}

// Conditions are delivery attributes. On a rule they are requirements; on a
// query they are the attributes of the shipment being priced.
type Conditions map[string]string

// SatisfiedBy reports whether every requirement is present in query with an
// equal value. Empty requirements are always satisfied; extra query keys are ignored.
func (c Conditions) SatisfiedBy(query Conditions) bool {
	for key, required := range c {
		got, ok := query[key]
		if !ok || got != required {
			return false
		}
	}
	return true
}

// SurchargeRule is a service-wide surcharge or discount.
type SurchargeRule struct {
	ID         int64
	ServiceID  int64
	Name       string
	Kind       SurchargeKind
	Basis      SurchargeBasis
	Value      decimal.Decimal
	Conditions Conditions
}

// Restriction annotates a (service, country) pair.
type Restriction struct {
	ServiceCode string
	CountryISO2 string
	Status      string
	Message     string
}

// Suspended reports whether the restriction suspends the service.
func (r Restriction) Suspended() bool {
	return strings.EqualFold(strings.TrimSpace(r.Status), "suspended")
}
