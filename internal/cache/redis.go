package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"shipping-bot/internal/config"
	"shipping-bot/internal/fetcher"
	"shipping-bot/internal/rating"
)

// Redis stores real-time offers as JSON strings with a TTL.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a cache backed by the configured Redis instance.
func NewRedis(cfg config.RedisConfig) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Redis{client: rdb}
}

// Ping verifies connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// GetOffers returns the offers stored under key. A missing key is not an error.
func (r *Redis) GetOffers(ctx context.Context, key string) ([]rating.Offer, bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var offers []rating.Offer
	if err := json.Unmarshal(raw, &offers); err != nil {
		return nil, false, fmt.Errorf("decode cached offers %s: %w", key, err)
	}
	return offers, true, nil
}

// SetOffers stores offers under key for ttl.
func (r *Redis) SetOffers(ctx context.Context, key string, offers []rating.Offer, ttl time.Duration) error {
	raw, err := json.Marshal(offers)
	if err != nil {
		return fmt.Errorf("encode offers: %w", err)
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

var _ fetcher.OfferCache = (*Redis)(nil)
