package coverage

import (
	"context"
	"testing"

	"airapiserv/internal/store/memory"
	"airapiserv/models"
)

func TestSelectPrioritySource(t *testing.T) {
	tests := []struct {
		candidates []string
		want       string
	}{
		{[]string{"KRAKEN_WS", "BINANCE_WS", "REST_EXCHANGE"}, "BINANCE_WS"},
		{[]string{"REST_EXCHANGE", "GATE_WS"}, "GATE_WS"},
		{[]string{"SOMETHING_ELSE", "API_FALLBACK"}, "API_FALLBACK"},
		{nil, "API_FALLBACK"},
	}
	for _, tt := range tests {
		if got := SelectPrioritySource(tt.candidates); got != tt.want {
			t.Errorf("SelectPrioritySource(%v)=%s want %s", tt.candidates, got, tt.want)
		}
	}
}

func TestQuoteRank(t *testing.T) {
	if quoteRank("USDT") >= quoteRank("BTC") {
		t.Error("USDT should rank above BTC")
	}
	if quoteRank("KRW") != quoteRank("TRY") {
		t.Error("unranked quotes should tie")
	}
}

func TestEngineRun(t *testing.T) {
	ctx := context.Background()
	tokens := memory.NewTokenRepo()
	markets := memory.NewMarketRepo()

	tokens.UpsertToken(ctx, &models.Token{TokenID: "eth:0x1", Symbol: "PEPE", Status: models.TokenStatusActive})
	tokens.UpsertToken(ctx, &models.Token{TokenID: "symbol:GHOST", Symbol: "GHOST", Status: models.TokenStatusActive})

	markets.UpsertMarket(ctx, &models.VenueMarket{Venue: "kraken", MarketType: "spot", BaseSymbol: "PEPE", QuoteSymbol: "EUR", VenueSymbol: "PEPE/EUR"})
	markets.UpsertMarket(ctx, &models.VenueMarket{Venue: "binance", MarketType: "spot", BaseSymbol: "PEPE", QuoteSymbol: "USDT", VenueSymbol: "PEPEUSDT"})

	e := NewEngine(tokens, markets)
	if err := e.Run(ctx); err != nil {
		t.Fatal(err)
	}

	pepe, _ := tokens.GetToken(ctx, "eth:0x1")
	if pepe.PrioritySource != "BINANCE_WS" {
		t.Errorf("priority source = %s", pepe.PrioritySource)
	}
	edges, _ := tokens.ListTokenVenues(ctx, "eth:0x1")
	if len(edges) != 2 {
		t.Fatalf("edges = %+v", edges)
	}
	for _, edge := range edges {
		if !edge.WSSupported || !edge.OHLCVSupported {
			t.Errorf("edge capabilities = %+v", edge)
		}
		if edge.LastVerifiedAt.IsZero() {
			t.Errorf("edge missing verification time: %+v", edge)
		}
	}

	// No markets anywhere: external APIs are the only source.
	ghost, _ := tokens.GetToken(ctx, "symbol:GHOST")
	if ghost.PrioritySource != SourceAPIFallback {
		t.Errorf("ghost priority source = %s", ghost.PrioritySource)
	}
}

func TestEngineCapabilityDowngrade(t *testing.T) {
	ctx := context.Background()
	tokens := memory.NewTokenRepo()
	markets := memory.NewMarketRepo()

	tokens.UpsertToken(ctx, &models.Token{TokenID: "symbol:ODD", Symbol: "ODD", Status: models.TokenStatusActive})
	markets.UpsertMarket(ctx, &models.VenueMarket{Venue: "obscurex", MarketType: "spot", BaseSymbol: "ODD", QuoteSymbol: "USDT", VenueSymbol: "ODDUSDT"})

	e := NewEngine(tokens, markets)
	e.capabilities = func(string) models.VenueCapabilities { return models.VenueCapabilities{} }
	if err := e.Run(ctx); err != nil {
		t.Fatal(err)
	}

	// A listing on a venue that can serve neither websocket nor candles is
	// recorded but cannot be the data source.
	odd, _ := tokens.GetToken(ctx, "symbol:ODD")
	if odd.PrioritySource != SourceAPIFallback {
		t.Errorf("priority source = %s", odd.PrioritySource)
	}
	edges, _ := tokens.ListTokenVenues(ctx, "symbol:ODD")
	if len(edges) != 1 || edges[0].WSSupported || edges[0].OHLCVSupported {
		t.Errorf("edges = %+v", edges)
	}
}

func TestEngineRESTOnlyVenue(t *testing.T) {
	ctx := context.Background()
	tokens := memory.NewTokenRepo()
	markets := memory.NewMarketRepo()

	tokens.UpsertToken(ctx, &models.Token{TokenID: "symbol:ODD", Symbol: "ODD", Status: models.TokenStatusActive})
	markets.UpsertMarket(ctx, &models.VenueMarket{Venue: "obscurex", MarketType: "spot", BaseSymbol: "ODD", QuoteSymbol: "USDT", VenueSymbol: "ODDUSDT"})

	e := NewEngine(tokens, markets)
	e.capabilities = func(string) models.VenueCapabilities { return models.VenueCapabilities{RESTOhlcv: true} }
	if err := e.Run(ctx); err != nil {
		t.Fatal(err)
	}

	odd, _ := tokens.GetToken(ctx, "symbol:ODD")
	if odd.PrioritySource != "REST_EXCHANGE" {
		t.Errorf("priority source = %s", odd.PrioritySource)
	}
}

func TestEngineIgnoresDerivativeMarkets(t *testing.T) {
	ctx := context.Background()
	tokens := memory.NewTokenRepo()
	markets := memory.NewMarketRepo()

	tokens.UpsertToken(ctx, &models.Token{TokenID: "symbol:FUT", Symbol: "FUT", Status: models.TokenStatusActive})
	markets.UpsertMarket(ctx, &models.VenueMarket{Venue: "binance", MarketType: "perp", BaseSymbol: "FUT", QuoteSymbol: "USDT", VenueSymbol: "FUTUSDT"})

	e := NewEngine(tokens, markets)
	if err := e.Run(ctx); err != nil {
		t.Fatal(err)
	}

	// A perp-only listing leaves the token on external APIs with no edges.
	fut, _ := tokens.GetToken(ctx, "symbol:FUT")
	if fut.PrioritySource != SourceAPIFallback {
		t.Errorf("priority source = %s", fut.PrioritySource)
	}
	edges, _ := tokens.ListTokenVenues(ctx, "symbol:FUT")
	if len(edges) != 0 {
		t.Errorf("edges = %+v", edges)
	}
}
