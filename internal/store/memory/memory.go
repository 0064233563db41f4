// Package memory provides in-process implementations of the store
// interfaces. They back tests and database-less deployments.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"airapiserv/internal/store"
	"airapiserv/models"
)

type cacheEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// HotCache is a mutex-guarded map with per-key TTLs. Expired keys are
// dropped lazily on access.
type HotCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewHotCache() *HotCache {
	return &HotCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *HotCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := cacheEntry{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

func (c *HotCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *HotCache) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[key]
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		e = cacheEntry{}
	}
	// A missing or non-numeric value counts from zero.
	current, _ := strconv.ParseInt(e.value, 10, 64)
	current += delta
	e.value = strconv.FormatInt(current, 10)
	c.entries[key] = e
	return current, nil
}

func (c *HotCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	e.expiresAt = c.now().Add(ttl)
	c.entries[key] = e
	return nil
}

func (c *HotCache) ScanKeys(ctx context.Context, prefix string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var keys []string
	for k, e := range c.entries {
		if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
			continue
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// CandleStore keeps finalized candles in memory keyed by market and interval.
type CandleStore struct {
	mu      sync.RWMutex
	candles map[string][]*models.Candle // key: marketID|intervalMs
}

func NewCandleStore() *CandleStore {
	return &CandleStore{candles: make(map[string][]*models.Candle)}
}

func candleKey(marketID string, intervalMs int64) string {
	return marketID + "|" + strconv.FormatInt(intervalMs, 10)
}

func (s *CandleStore) InsertCandle(ctx context.Context, c *models.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	key := candleKey(c.MarketID, c.IntervalMs)
	s.candles[key] = append(s.candles[key], &cp)
	return nil
}

func (s *CandleStore) QueryCandles(ctx context.Context, q store.CandleQuery) ([]*models.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Candle
	for _, c := range s.candles[candleKey(q.MarketID, q.IntervalMs)] {
		if q.From != 0 && c.StartTs < q.From {
			continue
		}
		if q.To != 0 && c.StartTs >= q.To {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTs < out[j].StartTs })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// TokenRepo keeps tokens and coverage edges in maps keyed by their natural
// keys.
type TokenRepo struct {
	mu     sync.RWMutex
	tokens map[string]*models.Token
	venues map[string]*models.TokenVenue
}

func NewTokenRepo() *TokenRepo {
	return &TokenRepo{
		tokens: make(map[string]*models.Token),
		venues: make(map[string]*models.TokenVenue),
	}
}

func (r *TokenRepo) UpsertToken(ctx context.Context, t *models.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tokens[t.TokenID] = &cp
	return nil
}

func (r *TokenRepo) GetToken(ctx context.Context, tokenID string) (*models.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[tokenID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *TokenRepo) ListActiveTokens(ctx context.Context) ([]*models.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Token
	for _, t := range r.tokens {
		if t.Status != models.TokenStatusActive {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out, nil
}

func (r *TokenRepo) SearchTokens(ctx context.Context, query string, limit int) ([]*models.Token, error) {
	if limit <= 0 {
		limit = 20
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Token
	for _, t := range r.tokens {
		if !strings.Contains(strings.ToLower(t.Symbol), needle) &&
			!strings.Contains(strings.ToLower(t.Name), needle) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func tokenVenueKey(tv *models.TokenVenue) string {
	return tv.TokenID + "|" + tv.Venue + "|" + tv.MarketType + "|" + tv.VenueSymbol
}

func (r *TokenRepo) UpsertTokenVenue(ctx context.Context, tv *models.TokenVenue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *tv
	r.venues[tokenVenueKey(tv)] = &cp
	return nil
}

func (r *TokenRepo) ListTokenVenues(ctx context.Context, tokenID string) ([]*models.TokenVenue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.TokenVenue
	for _, tv := range r.venues {
		if tv.TokenID != tokenID {
			continue
		}
		cp := *tv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return tokenVenueKey(out[i]) < tokenVenueKey(out[j])
	})
	return out, nil
}

// CatalogRepo keeps raw directory listings keyed by TokenKey.
type CatalogRepo struct {
	mu   sync.RWMutex
	rows map[string]*models.CatalogRow
}

func NewCatalogRepo() *CatalogRepo {
	return &CatalogRepo{rows: make(map[string]*models.CatalogRow)}
}

func (r *CatalogRepo) UpsertCatalogRow(ctx context.Context, row *models.CatalogRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *row
	cp.Sources = append([]string(nil), row.Sources...)
	if len(row.Metadata) > 0 {
		cp.Metadata = make(map[string]string, len(row.Metadata))
		for k, v := range row.Metadata {
			cp.Metadata[k] = v
		}
	}

	existing, ok := r.rows[row.TokenKey]
	if !ok {
		r.rows[row.TokenKey] = &cp
		return nil
	}

	// First write wins; a later listing only fills gaps, adds unseen metadata
	// keys, and extends the source list.
	if existing.Symbol == "" {
		existing.Symbol = cp.Symbol
	}
	if existing.Name == "" {
		existing.Name = cp.Name
	}
	if existing.Chain == "" {
		existing.Chain = cp.Chain
	}
	if existing.ContractAddress == "" {
		existing.ContractAddress = cp.ContractAddress
	}
	for _, src := range cp.Sources {
		found := false
		for _, have := range existing.Sources {
			if have == src {
				found = true
				break
			}
		}
		if !found {
			existing.Sources = append(existing.Sources, src)
		}
	}
	for k, v := range cp.Metadata {
		if existing.Metadata == nil {
			existing.Metadata = make(map[string]string)
		}
		if _, seen := existing.Metadata[k]; !seen {
			existing.Metadata[k] = v
		}
	}
	return nil
}

func (r *CatalogRepo) ListCatalogRows(ctx context.Context) ([]*models.CatalogRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.CatalogRow
	for _, row := range r.rows {
		cp := *row
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenKey < out[j].TokenKey })
	return out, nil
}

// MarketRepo keeps venue market listings.
type MarketRepo struct {
	mu      sync.RWMutex
	markets map[string]*models.VenueMarket
}

func NewMarketRepo() *MarketRepo {
	return &MarketRepo{markets: make(map[string]*models.VenueMarket)}
}

func venueMarketKey(m *models.VenueMarket) string {
	return m.Venue + "|" + m.MarketType + "|" + m.VenueSymbol
}

func (r *MarketRepo) UpsertMarket(ctx context.Context, m *models.VenueMarket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.markets[venueMarketKey(m)] = &cp
	return nil
}

func (r *MarketRepo) ListMarkets(ctx context.Context, venue string) ([]*models.VenueMarket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.VenueMarket
	for _, m := range r.markets {
		if venue != "" && m.Venue != venue {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return venueMarketKey(out[i]) < venueMarketKey(out[j])
	})
	return out, nil
}

func (r *MarketRepo) ListMarketsBySymbol(ctx context.Context, baseSymbol string) ([]*models.VenueMarket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.VenueMarket
	for _, m := range r.markets {
		if !strings.EqualFold(m.BaseSymbol, baseSymbol) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return venueMarketKey(out[i]) < venueMarketKey(out[j])
	})
	return out, nil
}

// RequestMetrics keeps per-minute request counters.
type RequestMetrics struct {
	mu      sync.Mutex
	buckets map[int64]int64 // unix minute -> count
}

func NewRequestMetrics() *RequestMetrics {
	return &RequestMetrics{buckets: make(map[int64]int64)}
}

func (m *RequestMetrics) Increment(ctx context.Context, bucket time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[bucket.Truncate(time.Minute).Unix()]++
	return nil
}

func (m *RequestMetrics) Recent(ctx context.Context, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	floor := since.Truncate(time.Minute).Unix()
	var total int64
	for minute, count := range m.buckets {
		if minute >= floor {
			total += count
		}
	}
	return total, nil
}
