package ingest

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"airapiserv/config"
	"airapiserv/internal/channel"
	"airapiserv/internal/store"
	"airapiserv/internal/store/memory"
	"airapiserv/models"
)

func testIngestConfig() config.IngestConfig {
	return config.IngestConfig{
		SpotBucketsMs:      []int64{1000},
		PerpBucketsMs:      []int64{5000},
		StaleSweepInterval: 10 * time.Millisecond,
	}
}

func startOrchestrator(t *testing.T, archive chan *models.Candle) (*Orchestrator, *channel.Events, *memory.HotCache, *memory.CandleStore, *memory.MarketRepo) {
	t.Helper()
	events := channel.NewEvents(64)
	cache := memory.NewHotCache()
	candles := memory.NewCandleStore()
	markets := memory.NewMarketRepo()

	var arch chan<- *models.Candle
	if archive != nil {
		arch = archive
	}
	o := NewOrchestrator(events, cache, candles, markets, testIngestConfig(), time.Minute, arch)
	if err := o.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(o.Stop)
	return o, events, cache, candles, markets
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestOrchestratorRoutesTradeAndTicker(t *testing.T) {
	_, events, cache, _, markets := startOrchestrator(t, nil)
	ctx := context.Background()

	events.Send(ctx, models.Trade{MarketID: "binance:BTCUSDT:spot", Price: 100, Size: 1, Timestamp: 1500, Source: "BINANCE_WS"})
	events.Send(ctx, models.Ticker{MarketID: "binance:BTCUSDT:spot", Last: 100, Timestamp: 1600})

	waitFor(t, func() bool {
		_, ok, _ := cache.Get(ctx, "ticker:binance:BTCUSDT:spot")
		return ok
	})

	raw, ok, _ := cache.Get(ctx, "trade:binance:BTCUSDT:spot")
	if !ok {
		t.Fatal("trade not cached")
	}
	var cached models.Trade
	if err := json.Unmarshal([]byte(raw), &cached); err != nil || cached.Price != 100 {
		t.Errorf("cached trade = %s err = %v", raw, err)
	}

	// Rolling candle snapshot is published alongside the trade.
	if _, ok, _ := cache.Get(ctx, "candle:binance:BTCUSDT:spot:1000"); !ok {
		t.Error("rolling candle not cached")
	}

	// First event upserted market coverage.
	listed, _ := markets.ListMarkets(ctx, "binance")
	if len(listed) != 1 || listed[0].BaseSymbol != "BTC" || listed[0].QuoteSymbol != "USDT" {
		t.Errorf("markets = %+v", listed)
	}
}

func TestOrchestratorFinalizesAndPersists(t *testing.T) {
	archive := make(chan *models.Candle, 8)
	_, events, _, candles, _ := startOrchestrator(t, archive)
	ctx := context.Background()

	events.Send(ctx, models.Trade{MarketID: "okx:ETHUSDT:spot", Price: 10, Size: 1, Timestamp: 1100, Source: "OKX_WS"})
	events.Send(ctx, models.Trade{MarketID: "okx:ETHUSDT:spot", Price: 12, Size: 1, Timestamp: 2100, Source: "OKX_WS"})

	waitFor(t, func() bool {
		stored, _ := candles.QueryCandles(ctx, store.CandleQuery{
			MarketID: "okx:ETHUSDT:spot", IntervalMs: 1000,
		})
		return len(stored) >= 1
	})

	stored, _ := candles.QueryCandles(ctx, store.CandleQuery{MarketID: "okx:ETHUSDT:spot", IntervalMs: 1000})
	if stored[0].StartTs != 1000 || stored[0].Close != 10 {
		t.Errorf("stored = %+v", stored[0])
	}

	select {
	case c := <-archive:
		if c.MarketID != "okx:ETHUSDT:spot" {
			t.Errorf("archived = %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("candle not offered to archive")
	}
}

func TestOrchestratorStoresStreamedFinalCandles(t *testing.T) {
	_, events, _, candles, _ := startOrchestrator(t, nil)
	ctx := context.Background()

	events.Send(ctx, &models.Candle{
		MarketID: "binance:BTCUSDT:spot", IntervalMs: 60000, StartTs: 60000,
		Open: 1, High: 2, Low: 1, Close: 2, Volume: 10, IsFinal: true, Source: "BINANCE_WS",
	})
	events.Send(ctx, &models.Candle{
		MarketID: "binance:BTCUSDT:spot", IntervalMs: 60000, StartTs: 120000,
		Open: 2, High: 2, Low: 2, Close: 2, Rolling: true,
	})

	waitFor(t, func() bool {
		stored, _ := candles.QueryCandles(ctx, store.CandleQuery{MarketID: "binance:BTCUSDT:spot", IntervalMs: 60000})
		return len(stored) == 1
	})
}

func TestOrchestratorAppliesConfigOverrides(t *testing.T) {
	events := channel.NewEvents(1)
	cache := memory.NewHotCache()
	ctx := context.Background()

	cache.Set(ctx, "config:overrides", `{"LOG_LEVEL":"debug","PATH":"/evil"}`, 0)
	os.Unsetenv("LOG_LEVEL")
	pathBefore := os.Getenv("PATH")

	o := NewOrchestrator(events, cache, memory.NewCandleStore(), memory.NewMarketRepo(), testIngestConfig(), time.Minute, nil)
	if err := o.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer o.Stop()

	if os.Getenv("LOG_LEVEL") != "debug" {
		t.Error("allow-listed override not applied")
	}
	if os.Getenv("PATH") != pathBefore {
		t.Error("non-allow-listed override applied")
	}
}
