package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"shipping-bot/internal/rating"
)

// OfferCache stores real-time offers by key.
type OfferCache interface {
	GetOffers(ctx context.Context, key string) ([]rating.Offer, bool, error)
	SetOffers(ctx context.Context, key string, offers []rating.Offer, ttl time.Duration) error
}

// CachedSource serves repeated lookups for the same destination and weight
// from an OfferCache. Cache failures are logged and fall through to the
// wrapped source; source errors are never cached.
type CachedSource struct {
	source RateSource
	cache  OfferCache
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedSource wraps source with cache.
func NewCachedSource(source RateSource, cache OfferCache, ttl time.Duration, logger zerolog.Logger) *CachedSource {
	return &CachedSource{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "rate_cache").Str("source", source.Name()).Logger(),
	}
}

// Name reports the wrapped source name.
func (c *CachedSource) Name() string { return c.source.Name() }

// FetchRates returns cached offers when present, otherwise fetches and stores them.
func (c *CachedSource) FetchRates(ctx context.Context, countryCode string, weightKg decimal.Decimal) ([]rating.Offer, error) {
	key := CacheKey(c.source.Name(), countryCode, weightKg)

	offers, ok, err := c.cache.GetOffers(ctx, key)
	switch {
	case err != nil:
		c.logger.Warn().Err(err).Str("key", key).Msg("rate cache read failed")
	case ok:
		c.logger.Debug().Str("key", key).Int("rates", len(offers)).Msg("rate cache hit")
		return offers, nil
	}

	offers, err = c.source.FetchRates(ctx, countryCode, weightKg)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetOffers(ctx, key, offers, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("rate cache write failed")
	}
	return offers, nil
}

// CacheKey builds the cache key for one lookup. Weights are normalised so
// "2" and "2.0" share an entry.
func CacheKey(source, countryCode string, weightKg decimal.Decimal) string {
	return fmt.Sprintf("shipquote:rates:%s:%s:%s",
		strings.ToLower(source),
		strings.ToUpper(strings.TrimSpace(countryCode)),
		weightKg.StringFixed(3))
}

var _ RateSource = (*CachedSource)(nil)
