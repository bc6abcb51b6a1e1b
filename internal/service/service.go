package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"shipping-bot/internal/config"
	"shipping-bot/internal/fetcher"
	"shipping-bot/internal/notify"
	"shipping-bot/internal/rating"
	"shipping-bot/internal/refdata"
)

// Input validation errors.
var (
	ErrInvalidWeight     = errors.New("invalid weight")
	ErrWeightAboveLimit  = errors.New("weight above limit")
	ErrEmptyDestination  = errors.New("destination is required")
	ErrSnapshotNotLoaded = refdata.ErrNotLoaded
)

// Resolver maps text to a country code and codes to display names.
type Resolver interface {
	Resolve(text string) (string, bool)
	Name(code string) (string, bool)
}

// Request is one quote request.
type Request struct {
	Destination string
	WeightKg    decimal.Decimal
	Conditions  refdata.Conditions
	Carriers    []string
	Limit       int
	Realtime    bool
	Notify      bool
}

// Result is a quote ready for presentation. Total counts offers after
// carrier filtering and before truncation to the limit.
type Result struct {
	Destination string          `json:"destination"`
	CountryCode string          `json:"country_code,omitempty"`
	CountryName string          `json:"country_name,omitempty"`
	Resolved    bool            `json:"resolved"`
	WeightKg    decimal.Decimal `json:"weight_kg"`
	Offers      []rating.Offer  `json:"offers"`
	Total       int             `json:"total"`
	Warnings    []string        `json:"warnings,omitempty"`
}

// CarrierInfo summarises a carrier for listings.
type CarrierInfo struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Services int    `json:"services"`
}

// Service orchestrates tariff rating, real-time augmentation and notification.
type Service struct {
	engine    *rating.Engine
	resolver  Resolver
	snapshots rating.SnapshotProvider
	sources   []fetcher.RateSource
	notifier  notify.Notifier
	logger    zerolog.Logger

	maxWeight       decimal.Decimal
	maxOffers       int
	realtimeTimeout time.Duration
}

// New constructs the quote service. sources and notifier may be empty.
func New(cfg *config.Config, engine *rating.Engine, resolver Resolver, snapshots rating.SnapshotProvider, sources []fetcher.RateSource, notifier notify.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		engine:          engine,
		resolver:        resolver,
		snapshots:       snapshots,
		sources:         sources,
		notifier:        notifier,
		logger:          logger.With().Str("component", "service").Logger(),
		maxWeight:       cfg.MaxWeight(),
		maxOffers:       cfg.Quote.MaxOffers,
		realtimeTimeout: cfg.Quote.RealtimeTimeout,
	}
}

// Validate checks destination and weight against service limits.
func (s *Service) Validate(destination string, weightKg decimal.Decimal) error {
	if strings.TrimSpace(destination) == "" {
		return ErrEmptyDestination
	}
	if !weightKg.IsPositive() {
		return fmt.Errorf("%w: %s must be greater than zero", ErrInvalidWeight, weightKg)
	}
	if weightKg.GreaterThan(s.maxWeight) {
		return fmt.Errorf("%w: %skg exceeds %skg", ErrWeightAboveLimit, weightKg, s.maxWeight)
	}
	return nil
}

// Quote prices a request. Unknown destinations produce a result with no
// offers; real-time failures become warnings.
func (s *Service) Quote(ctx context.Context, req Request) (Result, error) {
	if err := s.Validate(req.Destination, req.WeightKg); err != nil {
		return Result{}, err
	}
	if s.snapshots.Snapshot() == nil {
		return Result{}, ErrSnapshotNotLoaded
	}

	res := Result{
		Destination: strings.TrimSpace(req.Destination),
		WeightKg:    req.WeightKg,
		Offers:      []rating.Offer{},
	}

	code, ok := s.resolver.Resolve(req.Destination)
	if !ok {
		s.logger.Info().Str("destination", req.Destination).Msg("destination not resolved")
		return res, nil
	}
	res.Resolved = true
	res.CountryCode = code
	res.CountryName, _ = s.resolver.Name(code)

	offers := s.engine.QuoteCountry(code, req.WeightKg, req.Conditions)
	if req.Realtime && len(s.sources) > 0 {
		live, warnings := s.fetchRealtime(ctx, code, req.WeightKg)
		offers = append(offers, live...)
		res.Warnings = append(res.Warnings, warnings...)
		rating.SortOffers(offers)
	}

	offers = FilterCarriers(offers, req.Carriers)
	res.Total = len(offers)

	limit := req.Limit
	if limit <= 0 {
		limit = s.maxOffers
	}
	if len(offers) > limit {
		offers = offers[:limit]
	}
	res.Offers = offers

	s.logger.Info().
		Str("country", code).
		Str("weight_kg", req.WeightKg.String()).
		Int("offers", res.Total).
		Msg("quote computed")

	if req.Notify && s.notifier != nil {
		if err := s.notifier.Notify(ctx, notify.Notification{
			Destination: res.Destination,
			CountryCode: res.CountryCode,
			CountryName: res.CountryName,
			WeightKg:    res.WeightKg,
			Offers:      res.Offers,
			Warnings:    res.Warnings,
			RequestedAt: time.Now().UTC(),
		}); err != nil {
			s.logger.Warn().Err(err).Msg("quote notification failed")
			res.Warnings = append(res.Warnings, "notification failed: "+err.Error())
		}
	}

	return res, nil
}

// fetchRealtime queries every source in parallel under the real-time timeout.
// Source failures are logged and reported as warnings, never returned.
func (s *Service) fetchRealtime(ctx context.Context, code string, weightKg decimal.Decimal) ([]rating.Offer, []string) {
	ctx, cancel := context.WithTimeout(ctx, s.realtimeTimeout)
	defer cancel()

	var (
		mu       sync.Mutex
		offers   []rating.Offer
		warnings []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range s.sources {
		g.Go(func() error {
			got, err := src.FetchRates(gctx, code, weightKg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn().Err(err).Str("source", src.Name()).Str("country", code).Msg("real-time rates unavailable")
				warnings = append(warnings, fmt.Sprintf("%s rates unavailable: %v", src.Name(), err))
				return nil
			}
			offers = append(offers, got...)
			return nil
		})
	}
	_ = g.Wait()
	return offers, warnings
}

// Explain traces a request without real-time sources or truncation.
func (s *Service) Explain(req Request) (rating.Explanation, error) {
	if err := s.Validate(req.Destination, req.WeightKg); err != nil {
		return rating.Explanation{}, err
	}
	return s.engine.Explain(req.Destination, req.WeightKg, req.Conditions), nil
}

// Resolve returns the country code and display name for text.
func (s *Service) Resolve(text string) (code, name string, ok bool) {
	code, ok = s.resolver.Resolve(text)
	if !ok {
		return "", "", false
	}
	name, _ = s.resolver.Name(code)
	return code, name, true
}

// Carriers lists carriers with their service counts in load order.
func (s *Service) Carriers() ([]CarrierInfo, error) {
	snap := s.snapshots.Snapshot()
	if snap == nil {
		return nil, ErrSnapshotNotLoaded
	}
	carriers := snap.Carriers()
	out := make([]CarrierInfo, 0, len(carriers))
	for _, c := range carriers {
		out = append(out, CarrierInfo{
			Code:     c.Code,
			Name:     c.Name,
			Currency: c.Currency,
			Services: snap.ServiceCount(c.ID),
		})
	}
	return out, nil
}

// FilterCarriers keeps offers whose carrier code matches one of codes,
// case-insensitively. An empty filter keeps everything.
func FilterCarriers(offers []rating.Offer, codes []string) []rating.Offer {
	want := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			want[strings.ToUpper(c)] = struct{}{}
		}
	}
	if len(want) == 0 {
		return offers
	}
	out := make([]rating.Offer, 0, len(offers))
	for _, o := range offers {
		if _, ok := want[strings.ToUpper(o.CarrierCode)]; ok {
			out = append(out, o)
		}
	}
	return out
}
