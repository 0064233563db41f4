package scheduler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"airapiserv/config"
	"airapiserv/internal/budget"
	"airapiserv/internal/coverage"
	"airapiserv/internal/directory"
	"airapiserv/internal/ohlcv"
	"airapiserv/internal/store"
	"airapiserv/internal/store/memory"
	"airapiserv/internal/token"
	"airapiserv/models"
)

type stubDirectorySource struct {
	listings []models.DirectoryToken
}

func (stubDirectorySource) Provider() string { return "coingecko" }
func (stubDirectorySource) Cost() int        { return 1 }
func (s stubDirectorySource) Fetch(ctx context.Context) ([]models.DirectoryToken, error) {
	return s.listings, nil
}

type stubVenue struct {
	name    string
	markets []models.VenueMarket
	err     error
}

func (s stubVenue) Name() string { return s.name }
func (s stubVenue) FetchMarkets(ctx context.Context) ([]models.VenueMarket, error) {
	return s.markets, s.err
}

type fixture struct {
	runner  *Runner
	queue   *memory.TaskQueue
	tokens  *memory.TokenRepo
	catalog *memory.CatalogRepo
	markets *memory.MarketRepo
	candles *memory.CandleStore
}

func newFixture(t *testing.T, venues []VenueLister, sources ...directory.Source) *fixture {
	t.Helper()
	queue := memory.NewTaskQueue()
	tokens := memory.NewTokenRepo()
	catalog := memory.NewCatalogRepo()
	markets := memory.NewMarketRepo()
	candles := memory.NewCandleStore()

	budgets := budget.NewService(memory.NewHotCache(), nil)
	dir := directory.NewAggregator(budgets, sources...)
	cfg := config.SchedulerConfig{
		DiscoveryEvery: 24 * time.Hour,
		VenueSyncEvery: time.Hour,
		CoverageEvery:  30 * time.Minute,
		ReverifyEvery:  24 * time.Hour,
	}
	runner := NewRunner(queue, dir, token.NewResolver(), tokens, catalog, markets,
		coverage.NewEngine(tokens, markets), candles, ohlcv.NewClient(), venues, cfg)
	return &fixture{runner: runner, queue: queue, tokens: tokens, catalog: catalog, markets: markets, candles: candles}
}

func TestRunNextEmptyQueue(t *testing.T) {
	f := newFixture(t, nil)
	ran, err := f.runner.RunNext(context.Background())
	if err != nil || ran {
		t.Fatalf("ran=%v err=%v", ran, err)
	}
}

func TestDiscoveryTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, stubDirectorySource{listings: []models.DirectoryToken{
		{Symbol: "PEPE", Name: "Pepe", Chain: "eth", ContractAddress: "0x1", Provider: "coingecko", ProviderID: "pepe"},
	}})

	f.queue.Enqueue(ctx, &models.Task{Type: models.TaskDiscoverTokens, Priority: 10})
	ran, err := f.runner.RunNext(ctx)
	if err != nil || !ran {
		t.Fatalf("ran=%v err=%v", ran, err)
	}

	tok, _ := f.tokens.GetToken(ctx, "eth:0x1")
	if tok == nil || tok.CoingeckoID != "pepe" {
		t.Fatalf("token = %+v", tok)
	}
	rows, _ := f.catalog.ListCatalogRows(ctx)
	if len(rows) != 1 {
		t.Fatalf("catalog = %+v", rows)
	}

	// Periodic tasks reschedule themselves with a future run-after.
	next, _ := f.queue.FetchNext(ctx, time.Now().Add(25*time.Hour))
	if next == nil || next.Type != models.TaskDiscoverTokens || next.RunAfter == nil {
		t.Fatalf("rescheduled = %+v", next)
	}
	if sooner, _ := f.queue.FetchNext(ctx, time.Now()); sooner != nil {
		t.Fatalf("reschedule should not be immediately due: %+v", sooner)
	}
}

func TestVenueSyncTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []VenueLister{
		stubVenue{name: "binance", markets: []models.VenueMarket{
			{Venue: "binance", MarketType: "spot", BaseSymbol: "BTC", QuoteSymbol: "USDT", VenueSymbol: "BTCUSDT"},
		}},
		stubVenue{name: "okx", err: errors.New("down")},
	})

	f.queue.Enqueue(ctx, &models.Task{Type: models.TaskSyncVenueMarkets, Priority: 20})
	if _, err := f.runner.RunNext(ctx); err != nil {
		t.Fatal(err)
	}

	// The failing venue contributes nothing; the good venue's markets land.
	markets, _ := f.markets.ListMarkets(ctx, "binance")
	if len(markets) != 1 {
		t.Fatalf("markets = %+v", markets)
	}

	// A venue outage must not break the hourly chain: the task completes and
	// a future-dated successor is waiting.
	next, _ := f.queue.FetchNext(ctx, time.Now().Add(2*time.Hour))
	if next == nil || next.Type != models.TaskSyncVenueMarkets {
		t.Fatalf("rescheduled = %+v", next)
	}
	if next.RunAfter == nil || !next.RunAfter.After(time.Now()) {
		t.Fatalf("run_after = %+v", next.RunAfter)
	}
}

func TestCoverageTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.tokens.UpsertToken(ctx, &models.Token{TokenID: "symbol:BTC", Symbol: "BTC", Status: models.TokenStatusActive})
	f.markets.UpsertMarket(ctx, &models.VenueMarket{Venue: "binance", MarketType: "spot", BaseSymbol: "BTC", QuoteSymbol: "USDT", VenueSymbol: "BTCUSDT"})

	f.queue.Enqueue(ctx, &models.Task{Type: models.TaskResolveCoverage, Priority: 20})
	if _, err := f.runner.RunNext(ctx); err != nil {
		t.Fatal(err)
	}

	tok, _ := f.tokens.GetToken(ctx, "symbol:BTC")
	if tok.PrioritySource != "BINANCE_WS" {
		t.Errorf("priority source = %s", tok.PrioritySource)
	}
}

func TestBackfillTask(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[[60000,"1","2","0.5","1.5","100",119999,"0",1,"0","0","0"]]`))
	}))
	defer srv.Close()

	f := newFixture(t, nil)
	f.runner.backfill.BinanceURL = srv.URL

	f.queue.Enqueue(ctx, &models.Task{Type: models.TaskIngestOHLCV, Priority: 100, Payload: map[string]string{
		"venue": "binance", "venue_symbol": "BTCUSDT", "market_type": "spot",
		"interval_ms": "60000", "from": "60000", "to": "120000",
	}})
	if _, err := f.runner.RunNext(ctx); err != nil {
		t.Fatal(err)
	}

	stored, _ := f.candles.QueryCandles(ctx, store.CandleQuery{MarketID: "binance:BTCUSDT:spot", IntervalMs: 60000})
	if len(stored) != 1 || stored[0].Open != 1 {
		t.Fatalf("stored = %+v", stored)
	}

	// Backfill is payload-driven, never periodic.
	if next, _ := f.queue.FetchNext(ctx, time.Now().Add(48*time.Hour)); next != nil {
		t.Fatalf("backfill rescheduled itself: %+v", next)
	}
}

func TestBadBackfillPayloadFailsTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	task := &models.Task{Type: models.TaskIngestOHLCV, Priority: 100, Payload: map[string]string{"venue": "binance"}}
	f.queue.Enqueue(ctx, task)
	if _, err := f.runner.RunNext(ctx); err != nil {
		t.Fatal(err)
	}
	if again, _ := f.queue.FetchNext(ctx, time.Now()); again != nil {
		t.Fatalf("failed task still pending: %+v", again)
	}
}

func TestUnknownTaskTypeCompletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.queue.Enqueue(ctx, &models.Task{Type: "LEGACY_TASK", Priority: 50})
	ran, err := f.runner.RunNext(ctx)
	if err != nil || !ran {
		t.Fatalf("ran=%v err=%v", ran, err)
	}
	if again, _ := f.queue.FetchNext(ctx, time.Now()); again != nil {
		t.Fatalf("unknown task still pending: %+v", again)
	}
}

func TestBootstrapSeedsPeriodicTasks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	if err := f.runner.Bootstrap(ctx); err != nil {
		t.Fatal(err)
	}

	types := map[string]bool{}
	for {
		task, _ := f.queue.FetchNext(ctx, time.Now())
		if task == nil {
			break
		}
		types[task.Type] = true
		f.queue.MarkDone(ctx, task.TaskID)
	}
	for _, want := range []string{models.TaskDiscoverTokens, models.TaskSyncVenueMarkets, models.TaskResolveCoverage, models.TaskReverify} {
		if !types[want] {
			t.Errorf("missing seeded task %s", want)
		}
	}
}
