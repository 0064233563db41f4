// Package ingest turns the connector event stream into hot-cache updates,
// rolling candles and persisted history.
package ingest

import (
	"airapiserv/internal/symbols"
	"airapiserv/logger"
	"airapiserv/models"
)

type bucketKey struct {
	marketID string
	sizeMs   int64
}

// Aggregator builds rolling OHLCV candles from trades across several bucket
// sizes at once. It is NOT safe for concurrent use: exactly one goroutine
// (the orchestrator loop) applies trades and sweeps, which is what keeps the
// open-candle map free of locks.
type Aggregator struct {
	bucketSizes func(marketType string) []int64
	onFinal     func(*models.Candle)
	open        map[bucketKey]*models.Candle
	lateTrades  int64
	log         *logger.Entry
}

// NewAggregator builds an aggregator. bucketSizes returns the candle
// intervals for a market type; onFinal receives every finalized candle
// exactly once.
func NewAggregator(bucketSizes func(marketType string) []int64, onFinal func(*models.Candle)) *Aggregator {
	return &Aggregator{
		bucketSizes: bucketSizes,
		onFinal:     onFinal,
		open:        make(map[bucketKey]*models.Candle),
		log:         logger.GetLogger().WithComponent("aggregator"),
	}
}

// Apply folds one trade into the rolling candles of its market. A trade that
// starts a new bucket finalizes the previous one; trades older than the
// current bucket are dropped.
func (a *Aggregator) Apply(t models.Trade) {
	_, _, marketType := symbols.ParseMarketID(t.MarketID)
	for _, size := range a.bucketSizes(marketType) {
		a.applyBucket(t, size)
	}
}

func (a *Aggregator) applyBucket(t models.Trade, sizeMs int64) {
	start := (t.Timestamp / sizeMs) * sizeMs
	key := bucketKey{marketID: t.MarketID, sizeMs: sizeMs}

	current := a.open[key]
	if current != nil {
		if start < current.StartTs {
			a.lateTrades++
			return
		}
		if start > current.StartTs {
			a.finalize(key, current)
			current = nil
		}
	}

	if current == nil {
		a.open[key] = &models.Candle{
			MarketID:    t.MarketID,
			StartTs:     start,
			IntervalMs:  sizeMs,
			Open:        t.Price,
			High:        t.Price,
			Low:         t.Price,
			Close:       t.Price,
			Volume:      t.Size,
			TradesCount: 1,
			Rolling:     true,
			Source:      t.Source,
		}
		return
	}

	if t.Price > current.High {
		current.High = t.Price
	}
	if t.Price < current.Low {
		current.Low = t.Price
	}
	current.Close = t.Price
	current.Volume += t.Size
	current.TradesCount++
}

func (a *Aggregator) finalize(key bucketKey, c *models.Candle) {
	delete(a.open, key)
	c.IsFinal = true
	c.Rolling = false
	if a.onFinal != nil {
		a.onFinal(c)
	}
}

// SweepStale finalizes open candles whose bucket ended more than one full
// interval ago. Markets that go quiet still get their last candle flushed.
func (a *Aggregator) SweepStale(nowMs int64) int {
	swept := 0
	for key, c := range a.open {
		if nowMs-c.StartTs > 2*key.sizeMs {
			a.finalize(key, c)
			swept++
		}
	}
	return swept
}

// Open returns the number of in-flight rolling candles.
func (a *Aggregator) Open() int { return len(a.open) }

// LateTrades returns how many trades arrived for already-finalized buckets.
func (a *Aggregator) LateTrades() int64 { return a.lateTrades }

// Snapshot returns a copy of the current rolling candle for one market and
// interval, or nil when no trade opened one yet.
func (a *Aggregator) Snapshot(marketID string, sizeMs int64) *models.Candle {
	c := a.open[bucketKey{marketID: marketID, sizeMs: sizeMs}]
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
