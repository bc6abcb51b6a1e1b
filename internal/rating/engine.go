package rating

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"shipping-bot/internal/refdata"
)

// Reasons a service produces no offer. They drive trace output and never
// leave the engine as errors of Quote.
var (
	ErrWeightExceedsMax = errors.New("weight_exceeds_max")
	ErrNoScope          = errors.New("no_scope")
	ErrNoBand           = errors.New("no_band")
)

// SnapshotProvider yields the reference snapshot to price against.
type SnapshotProvider interface {
	Snapshot() *refdata.Snapshot
}

// Resolver maps free text to an ISO2 country code.
type Resolver interface {
	Resolve(text string) (string, bool)
}

// Outcome is the result of pricing one service: an offer or the reason it was skipped.
type Outcome struct {
	CarrierCode string `json:"carrier_code"`
	ServiceCode string `json:"service_code"`
	Offer       *Offer `json:"offer,omitempty"`
	Skip        error  `json:"-"`
	Reason      string `json:"reason,omitempty"`
}

// Explanation is the full trace of one query.
type Explanation struct {
	Destination string    `json:"destination"`
	Country     string    `json:"country,omitempty"`
	Resolved    bool      `json:"resolved"`
	Outcomes    []Outcome `json:"outcomes"`
	Offers      []Offer   `json:"offers"`
}

// Engine prices shipments against the current reference snapshot. It holds
// no per-query state and is safe for concurrent use.
type Engine struct {
	snapshots SnapshotProvider
	resolver  Resolver
	logger    zerolog.Logger
}

// NewEngine constructs a rating engine.
func NewEngine(snapshots SnapshotProvider, resolver Resolver, logger zerolog.Logger) *Engine {
	return &Engine{
		snapshots: snapshots,
		resolver:  resolver,
		logger:    logger.With().Str("component", "rating").Logger(),
	}
}

// Quote returns every tariff offer for destination text and weight, sorted by
// ascending total. An unresolvable destination yields an empty list.
func (e *Engine) Quote(destination string, weightKg decimal.Decimal, conditions refdata.Conditions) []Offer {
	code, ok := e.resolver.Resolve(destination)
	if !ok {
		e.logger.Debug().Str("destination", destination).Msg("destination not resolved")
		return []Offer{}
	}
	return e.QuoteCountry(code, weightKg, conditions)
}

// QuoteCountry is Quote for an already resolved ISO2 code.
func (e *Engine) QuoteCountry(code string, weightKg decimal.Decimal, conditions refdata.Conditions) []Offer {
	outcomes := e.evaluate(code, weightKg, conditions)
	offers := make([]Offer, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Offer == nil {
			e.logger.Debug().
				Str("carrier", o.CarrierCode).
				Str("service", o.ServiceCode).
				Str("country", code).
				Str("weight_kg", weightKg.String()).
				Str("reason", o.Reason).
				Msg("service skipped")
			continue
		}
		offers = append(offers, *o.Offer)
	}
	SortOffers(offers)
	return offers
}

// Explain runs a quote and reports the outcome of every service.
func (e *Engine) Explain(destination string, weightKg decimal.Decimal, conditions refdata.Conditions) Explanation {
	exp := Explanation{Destination: destination, Outcomes: []Outcome{}, Offers: []Offer{}}
	code, ok := e.resolver.Resolve(destination)
	if !ok {
		return exp
	}
	exp.Country = code
	exp.Resolved = true
	exp.Outcomes = e.evaluate(code, weightKg, conditions)
	for _, o := range exp.Outcomes {
		if o.Offer != nil {
			exp.Offers = append(exp.Offers, *o.Offer)
		}
	}
	SortOffers(exp.Offers)
	return exp
}

func (e *Engine) evaluate(code string, weightKg decimal.Decimal, conditions refdata.Conditions) []Outcome {
	snap := e.snapshots.Snapshot()
	if snap == nil {
		e.logger.Warn().Msg("no reference snapshot loaded")
		return []Outcome{}
	}

	services := snap.Services()
	outcomes := make([]Outcome, 0, len(services))
	for _, svc := range services {
		carrier, _ := snap.Carrier(svc.CarrierID)
		outcome := Outcome{CarrierCode: carrier.Code, ServiceCode: svc.Code}

		offer, err := rateService(snap, carrier, svc, code, weightKg, conditions)
		if err != nil {
			outcome.Skip = err
			outcome.Reason = err.Error()
		} else {
			outcome.Offer = &offer
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func rateService(snap *refdata.Snapshot, carrier refdata.Carrier, svc refdata.Service, code string, weightKg decimal.Decimal, conditions refdata.Conditions) (Offer, error) {
	if weightKg.GreaterThan(svc.MaxWeightKg) {
		return Offer{}, fmt.Errorf("%w: %s > %s", ErrWeightExceedsMax, weightKg, svc.MaxWeightKg)
	}

	scope, ok := snap.ScopeFor(svc.ID, code)
	if !ok {
		return Offer{}, fmt.Errorf("%w: %s not in scopes %s", ErrNoScope, code, scopeCodes(snap.ScopesFor(svc.ID)))
	}

	band, ok := findBand(scope.Bands, weightKg)
	if !ok {
		return Offer{}, fmt.Errorf("%w: scope %s has no band for %skg", ErrNoBand, scope.Code, weightKg)
	}

	freight := Freight(band, weightKg)
	surcharges := ComputeSurcharges(snap.SurchargesFor(svc.ID), weightKg, freight, conditions)

	offer := Offer{
		CarrierCode:  carrier.Code,
		CarrierName:  carrier.Name,
		ServiceCode:  svc.Code,
		ServiceLabel: svc.Label,
		Freight:      freight,
		Surcharges:   surcharges,
		Total:        freight.Add(surcharges),
		Currency:     carrier.Currency,
		ScopeCode:    scope.Code,
		BandDetails:  band.Describe(),
		Source:       SourceTariff,
	}

	if r, ok := snap.RestrictionFor(svc.Code, code); ok {
		offer.Suspended = r.Suspended()
		offer.Warning = r.Message
		if offer.Warning == "" {
			offer.Warning = r.Status
		}
	}
	return offer, nil
}

func findBand(bands []refdata.TariffBand, weightKg decimal.Decimal) (refdata.TariffBand, bool) {
	for _, b := range bands {
		if b.Contains(weightKg) {
			return b, true
		}
	}
	return refdata.TariffBand{}, false
}

// Freight applies the band formula base + perKg*weight, clamped to base for
// minimum-charge bands.
func Freight(band refdata.TariffBand, weightKg decimal.Decimal) decimal.Decimal {
	freight := band.BaseAmount.Add(band.AmountPerKg.Mul(weightKg))
	if band.MinCharge && freight.LessThan(band.BaseAmount) {
		return band.BaseAmount
	}
	return freight
}

func scopeCodes(scopes []refdata.TariffScope) string {
	if len(scopes) == 0 {
		return "(none)"
	}
	codes := make([]string, 0, len(scopes))
	for _, sc := range scopes {
		codes = append(codes, sc.Code)
	}
	return strings.Join(codes, ",")
}
