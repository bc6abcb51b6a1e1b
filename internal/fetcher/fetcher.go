package fetcher

import (
	"context"

	"github.com/shopspring/decimal"

	"shipping-bot/internal/rating"
)

// RateSource supplies real-time offers for a resolved destination. Offers
// use the same shape as tariff offers so callers can merge and re-sort them.
type RateSource interface {
	Name() string
	FetchRates(ctx context.Context, countryCode string, weightKg decimal.Decimal) ([]rating.Offer, error)
}
