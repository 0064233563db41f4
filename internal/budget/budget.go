// Package budget enforces daily request quotas per external API provider.
// Counters live in the hot cache under "budget:<provider>:<YYYY-MM-DD>" and
// expire on their own after two days.
package budget

import (
	"context"
	"fmt"
	"strings"
	"time"

	"airapiserv/internal/store"
	"airapiserv/logger"
)

const (
	defaultDailyLimit   = 5000
	coingeckoDailyLimit = 20000
	counterTTL          = 48 * time.Hour
)

// Service tracks and limits per-provider daily API usage.
type Service struct {
	cache  store.HotCache
	limits map[string]int
	now    func() time.Time
	log    *logger.Entry
}

// NewService builds a budget service. limits overrides the built-in daily
// defaults per provider; nil keeps the defaults.
func NewService(cache store.HotCache, limits map[string]int) *Service {
	merged := make(map[string]int, len(limits))
	for provider, limit := range limits {
		merged[strings.ToLower(provider)] = limit
	}
	return &Service{
		cache:  cache,
		limits: merged,
		now:    time.Now,
		log:    logger.GetLogger().WithComponent("budget"),
	}
}

// Limit is the daily quota of one provider.
func (s *Service) Limit(provider string) int {
	provider = strings.ToLower(provider)
	if limit, ok := s.limits[provider]; ok {
		return limit
	}
	if provider == "coingecko" {
		return coingeckoDailyLimit
	}
	return defaultDailyLimit
}

func (s *Service) key(provider string) string {
	return "budget:" + strings.ToLower(provider) + ":" + s.now().UTC().Format("2006-01-02")
}

// CanSpend reports whether the provider still has quota for n more requests
// today. Cache failures allow the spend; losing budget accounting must not
// halt discovery.
func (s *Service) CanSpend(ctx context.Context, provider string, n int) bool {
	used, err := s.Usage(ctx, provider)
	if err != nil {
		s.log.WithError(err).WithFields(logger.Fields{"provider": provider}).Warn("budget lookup failed, allowing spend")
		return true
	}
	return used+int64(n) <= int64(s.Limit(provider))
}

// Consume records n requests against today's quota.
func (s *Service) Consume(ctx context.Context, provider string, n int) error {
	key := s.key(provider)
	if _, err := s.cache.Incr(ctx, key, int64(n)); err != nil {
		return fmt.Errorf("failed to consume budget for %s: %w", provider, err)
	}
	if err := s.cache.Expire(ctx, key, counterTTL); err != nil {
		return fmt.Errorf("failed to set budget ttl for %s: %w", provider, err)
	}
	return nil
}

// Usage returns the number of requests consumed today.
func (s *Service) Usage(ctx context.Context, provider string) (int64, error) {
	value, ok, err := s.cache.Get(ctx, s.key(provider))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	var used int64
	if _, err := fmt.Sscanf(value, "%d", &used); err != nil {
		return 0, fmt.Errorf("corrupt budget counter for %s: %w", provider, err)
	}
	return used, nil
}
