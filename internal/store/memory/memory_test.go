package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"airapiserv/internal/store"
	"airapiserv/models"
)

func TestHotCacheTTL(t *testing.T) {
	c := NewHotCache()
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if err := c.Set(ctx, "trade:binance:BTCUSDT:spot", `{"price":1}`, time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, "trade:binance:BTCUSDT:spot"); !ok {
		t.Fatal("expected hit before expiry")
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "trade:binance:BTCUSDT:spot"); ok {
		t.Fatal("expected miss after expiry")
	}
}

func TestHotCacheIncrAndScan(t *testing.T) {
	c := NewHotCache()
	ctx := context.Background()

	if n, _ := c.Incr(ctx, "budget:coingecko:2026-08-29", 3); n != 3 {
		t.Fatalf("incr = %d", n)
	}
	if n, _ := c.Incr(ctx, "budget:coingecko:2026-08-29", 2); n != 5 {
		t.Fatalf("incr = %d", n)
	}
	c.Set(ctx, "budget:codex:2026-08-29", "1", 0)
	c.Set(ctx, "config:overrides", "{}", 0)

	keys, _ := c.ScanKeys(ctx, "budget:")
	if len(keys) != 2 {
		t.Fatalf("keys = %v", keys)
	}
}

func TestCandleStoreQueryWindow(t *testing.T) {
	s := NewCandleStore()
	ctx := context.Background()
	for _, ts := range []int64{1000, 2000, 3000, 4000} {
		s.InsertCandle(ctx, &models.Candle{
			MarketID: "binance:BTCUSDT:spot", IntervalMs: 1000, StartTs: ts, Close: float64(ts),
		})
	}

	got, _ := s.QueryCandles(ctx, store.CandleQuery{
		MarketID: "binance:BTCUSDT:spot", IntervalMs: 1000, From: 2000, To: 4000,
	})
	if len(got) != 2 || got[0].StartTs != 2000 || got[1].StartTs != 3000 {
		t.Fatalf("got = %+v", got)
	}
}

func TestTaskQueueClaimOrder(t *testing.T) {
	q := NewTaskQueue()
	ctx := context.Background()
	now := time.Now()
	soon := now.Add(-time.Minute)
	later := now.Add(time.Hour)

	q.Enqueue(ctx, &models.Task{Type: models.TaskDiscoverTokens, Priority: 10})
	q.Enqueue(ctx, &models.Task{Type: models.TaskSyncVenueMarkets, Priority: 20, RunAfter: &soon})
	q.Enqueue(ctx, &models.Task{Type: models.TaskResolveCoverage, Priority: 20, RunAfter: &later})

	first, err := q.FetchNext(ctx, now)
	if err != nil || first == nil {
		t.Fatalf("fetch = %v %v", first, err)
	}
	if first.Type != models.TaskSyncVenueMarkets {
		t.Errorf("first = %s", first.Type)
	}
	if first.Status != models.TaskRunning || first.Attempts != 1 {
		t.Errorf("claimed = %+v", first)
	}

	second, _ := q.FetchNext(ctx, now)
	if second == nil || second.Type != models.TaskDiscoverTokens {
		t.Fatalf("second = %+v", second)
	}

	// Third task is not due yet.
	if third, _ := q.FetchNext(ctx, now); third != nil {
		t.Fatalf("third = %+v", third)
	}
}

func TestTaskQueueClaimOnce(t *testing.T) {
	q := NewTaskQueue()
	ctx := context.Background()
	q.Enqueue(ctx, &models.Task{Type: models.TaskReverify, Priority: 15})

	var mu sync.Mutex
	claims := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t, _ := q.FetchNext(ctx, time.Now())
			if t != nil {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if claims != 1 {
		t.Fatalf("claims = %d", claims)
	}
}

func TestTaskQueueHighPriorityPending(t *testing.T) {
	q := NewTaskQueue()
	ctx := context.Background()
	now := time.Now()

	q.Enqueue(ctx, &models.Task{Type: models.TaskDiscoverTokens, Priority: 10})
	if ok, _ := q.HasHighPriorityPending(ctx, 100, now); ok {
		t.Fatal("no urgent task expected")
	}

	q.Enqueue(ctx, &models.Task{Type: models.TaskIngestOHLCV, Priority: 100})
	if ok, _ := q.HasHighPriorityPending(ctx, 100, now); !ok {
		t.Fatal("urgent task expected")
	}
}

func TestTaskQueueTerminalStates(t *testing.T) {
	q := NewTaskQueue()
	ctx := context.Background()

	task := &models.Task{Type: models.TaskResolveCoverage, Priority: 20}
	q.Enqueue(ctx, task)

	claimed, _ := q.FetchNext(ctx, time.Now())
	q.MarkFailed(ctx, claimed.TaskID, "venue unreachable")
	if again, _ := q.FetchNext(ctx, time.Now()); again != nil {
		t.Fatalf("failed task refetched: %+v", again)
	}

	q.Enqueue(ctx, &models.Task{Type: models.TaskReverify, Priority: 15})
	claimed, _ = q.FetchNext(ctx, time.Now())
	q.MarkDone(ctx, claimed.TaskID)
	if again, _ := q.FetchNext(ctx, time.Now()); again != nil {
		t.Fatalf("done task refetched: %+v", again)
	}
}

func TestRequestMetricsRecent(t *testing.T) {
	m := NewRequestMetrics()
	ctx := context.Background()
	now := time.Now().Truncate(time.Minute)

	m.Increment(ctx, now.Add(-5*time.Minute))
	m.Increment(ctx, now)
	m.Increment(ctx, now)

	got, _ := m.Recent(ctx, now.Add(-time.Minute))
	if got != 2 {
		t.Fatalf("recent = %d", got)
	}
}

func TestRepos(t *testing.T) {
	ctx := context.Background()

	tokens := NewTokenRepo()
	tokens.UpsertToken(ctx, &models.Token{TokenID: "eth:0xabc", Symbol: "PEPE", Status: models.TokenStatusActive})
	tokens.UpsertToken(ctx, &models.Token{TokenID: "symbol:OLD", Symbol: "OLD", Status: models.TokenStatusInactive})

	active, _ := tokens.ListActiveTokens(ctx)
	if len(active) != 1 || active[0].TokenID != "eth:0xabc" {
		t.Fatalf("active = %+v", active)
	}

	tokens.UpsertTokenVenue(ctx, &models.TokenVenue{TokenID: "eth:0xabc", Venue: "binance", MarketType: "spot", VenueSymbol: "PEPEUSDT"})
	tokens.UpsertTokenVenue(ctx, &models.TokenVenue{TokenID: "eth:0xabc", Venue: "binance", MarketType: "spot", VenueSymbol: "PEPEUSDT", WSSupported: true})
	edges, _ := tokens.ListTokenVenues(ctx, "eth:0xabc")
	if len(edges) != 1 || !edges[0].WSSupported {
		t.Fatalf("edges = %+v", edges)
	}

	markets := NewMarketRepo()
	markets.UpsertMarket(ctx, &models.VenueMarket{Venue: "binance", MarketType: "spot", BaseSymbol: "PEPE", QuoteSymbol: "USDT", VenueSymbol: "PEPEUSDT"})
	markets.UpsertMarket(ctx, &models.VenueMarket{Venue: "bybit", MarketType: "perp", BaseSymbol: "pepe", QuoteSymbol: "USDT", VenueSymbol: "1000PEPEUSDT"})

	bySym, _ := markets.ListMarketsBySymbol(ctx, "PEPE")
	if len(bySym) != 2 {
		t.Fatalf("bySym = %+v", bySym)
	}
	byVenue, _ := markets.ListMarkets(ctx, "bybit")
	if len(byVenue) != 1 || byVenue[0].VenueSymbol != "1000PEPEUSDT" {
		t.Fatalf("byVenue = %+v", byVenue)
	}
}

func TestCatalogRowMerge(t *testing.T) {
	ctx := context.Background()
	catalog := NewCatalogRepo()

	catalog.UpsertCatalogRow(ctx, &models.CatalogRow{
		TokenKey: "eth:0x1", Symbol: "PEPE", Name: "Pepe", Chain: "eth",
		Sources:  []string{"coingecko"},
		Metadata: map[string]string{"rank": "30"},
	})
	// A sparse later listing must not blank out what is already known.
	catalog.UpsertCatalogRow(ctx, &models.CatalogRow{
		TokenKey: "eth:0x1", Symbol: "PEPE", ContractAddress: "0x1",
		Sources:  []string{"dextools", "coingecko"},
		Metadata: map[string]string{"rank": "99", "pair": "PEPE/WETH"},
	})

	rows, _ := catalog.ListCatalogRows(ctx)
	if len(rows) != 1 {
		t.Fatalf("rows = %+v", rows)
	}
	row := rows[0]
	if row.Name != "Pepe" || row.Chain != "eth" {
		t.Errorf("scalars overwritten: %+v", row)
	}
	if row.ContractAddress != "0x1" {
		t.Errorf("gap not filled: %+v", row)
	}
	if len(row.Sources) != 2 {
		t.Errorf("sources = %v", row.Sources)
	}
	if row.Metadata["rank"] != "30" || row.Metadata["pair"] != "PEPE/WETH" {
		t.Errorf("metadata = %v", row.Metadata)
	}
}

func TestTokenSearch(t *testing.T) {
	ctx := context.Background()
	tokens := NewTokenRepo()
	tokens.UpsertToken(ctx, &models.Token{TokenID: "eth:0xabc", Symbol: "PEPE", Name: "Pepe", Status: models.TokenStatusActive})
	tokens.UpsertToken(ctx, &models.Token{TokenID: "symbol:WBTC", Symbol: "WBTC", Name: "Wrapped Bitcoin", Status: models.TokenStatusActive})
	tokens.UpsertToken(ctx, &models.Token{TokenID: "symbol:BTC", Symbol: "BTC", Name: "Bitcoin", Status: models.TokenStatusActive})

	hits, err := tokens.SearchTokens(ctx, "bitcoin", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %+v", hits)
	}

	one, _ := tokens.SearchTokens(ctx, "btc", 1)
	if len(one) != 1 {
		t.Fatalf("one = %+v", one)
	}
	if none, _ := tokens.SearchTokens(ctx, "  ", 5); none != nil {
		t.Fatalf("blank query = %+v", none)
	}
}
