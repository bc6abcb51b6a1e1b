package rating

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Source tells where an offer was priced.
type Source string

const (
	SourceTariff   Source = "tariff"
	SourceRealtime Source = "realtime"
)

// Offer is one priced shipping option. Real-time sources produce the same shape.
type Offer struct {
	CarrierCode  string          `json:"carrier_code"`
	CarrierName  string          `json:"carrier_name"`
	ServiceCode  string          `json:"service_code"`
	ServiceLabel string          `json:"service_label"`
	Freight      decimal.Decimal `json:"freight"`
	Surcharges   decimal.Decimal `json:"surcharges"`
	Total        decimal.Decimal `json:"total"`
	Currency     string          `json:"currency"`
	ScopeCode    string          `json:"scope_code,omitempty"`
	BandDetails  string          `json:"band_details,omitempty"`
	Warning      string          `json:"warning,omitempty"`
	Suspended    bool            `json:"suspended"`
	Source       Source          `json:"source"`
	DeliveryDays string          `json:"delivery_days,omitempty"`
}

// SortOffers orders offers by ascending total. Ties keep their current order,
// so callers can merge external offers and sort again.
func SortOffers(offers []Offer) {
	sort.SliceStable(offers, func(i, j int) bool {
		return offers[i].Total.LessThan(offers[j].Total)
	})
}
