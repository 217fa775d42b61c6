package rates

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const cachePrefix = "rates:v1:"

// Service serves quotes from Redis, falling back to the source on a miss.
// Cache failures degrade to source lookups rather than failing the caller.
type Service struct {
	source Source
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewService builds a caching rate service. cache may be nil, in which case
// every lookup hits the source.
func NewService(source Source, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Service {
	return &Service{source: source, cache: cache, ttl: ttl, logger: logger}
}

// GetRate returns a quote for the pair, cached up to the configured TTL.
func (s *Service) GetRate(ctx context.Context, from, to string) (Quote, error) {
	key := cachePrefix + from + "/" + to

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key).Result()
		if err == nil {
			var quote Quote
			if err := json.Unmarshal([]byte(cached), &quote); err == nil {
				return quote, nil
			}
			s.logger.Warn("discarding undecodable cached quote", slog.String("key", key))
		} else if err != redis.Nil {
			s.logger.Warn("rate cache lookup failed", slog.String("key", key), slog.Any("error", err))
		}
	}

	quote, err := s.source.Rate(ctx, from, to)
	if err != nil {
		return Quote{}, err
	}

	if s.cache != nil {
		payload, err := json.Marshal(quote)
		if err == nil {
			if err := s.cache.Set(ctx, key, payload, s.ttl).Err(); err != nil {
				s.logger.Warn("rate cache store failed", slog.String("key", key), slog.Any("error", err))
			}
		}
	}

	return quote, nil
}
