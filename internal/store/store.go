// Package store defines the persistence interfaces of the gateway. The
// postgres subpackage implements them against PostgreSQL, the memory
// subpackage provides in-process implementations used by tests and by
// deployments without a database.
package store

import (
	"context"
	"time"

	"airapiserv/models"
)

// HotCache is a small key/value surface for latest trades, tickers, budget
// counters and config overrides. Keys follow "kind:identifier" naming, e.g.
// "trade:binance:BTCUSDT:spot" or "budget:coingecko:2026-08-29".
type HotCache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Incr(ctx context.Context, key string, delta int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	ScanKeys(ctx context.Context, prefix string) ([]string, error)
}

// CandleQuery selects finalized candles from the time-series store.
type CandleQuery struct {
	MarketID   string
	IntervalMs int64
	From       int64 // inclusive, unix ms
	To         int64 // exclusive, unix ms
	Limit      int
}

// TimeSeriesStore persists finalized candles.
type TimeSeriesStore interface {
	InsertCandle(ctx context.Context, c *models.Candle) error
	QueryCandles(ctx context.Context, q CandleQuery) ([]*models.Candle, error)
}

// TokenRepo stores canonical token identities and their venue coverage edges.
type TokenRepo interface {
	UpsertToken(ctx context.Context, t *models.Token) error
	GetToken(ctx context.Context, tokenID string) (*models.Token, error)
	ListActiveTokens(ctx context.Context) ([]*models.Token, error)
	SearchTokens(ctx context.Context, query string, limit int) ([]*models.Token, error)
	UpsertTokenVenue(ctx context.Context, tv *models.TokenVenue) error
	ListTokenVenues(ctx context.Context, tokenID string) ([]*models.TokenVenue, error)
}

// CatalogRepo stores raw directory listings keyed by TokenKey, prior to
// identity resolution.
type CatalogRepo interface {
	UpsertCatalogRow(ctx context.Context, row *models.CatalogRow) error
	ListCatalogRows(ctx context.Context) ([]*models.CatalogRow, error)
}

// MarketRepo stores venue market listings from the venue sync pass.
type MarketRepo interface {
	UpsertMarket(ctx context.Context, m *models.VenueMarket) error
	ListMarkets(ctx context.Context, venue string) ([]*models.VenueMarket, error)
	ListMarketsBySymbol(ctx context.Context, baseSymbol string) ([]*models.VenueMarket, error)
}

// TaskQueue is the persistent priority queue behind the scheduler. FetchNext
// claims atomically so concurrent runners never double-claim one task.
type TaskQueue interface {
	Enqueue(ctx context.Context, t *models.Task) error
	FetchNext(ctx context.Context, now time.Time) (*models.Task, error)
	MarkDone(ctx context.Context, taskID string) error
	MarkFailed(ctx context.Context, taskID, reason string) error
	HasHighPriorityPending(ctx context.Context, minPriority int, now time.Time) (bool, error)
}

// RequestMetrics tracks per-minute inbound request counts, consumed by the
// idle detector.
type RequestMetrics interface {
	Increment(ctx context.Context, bucket time.Time) error
	Recent(ctx context.Context, since time.Time) (int64, error)
}
