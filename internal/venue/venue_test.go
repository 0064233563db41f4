package venue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"airapiserv/models"
)

func TestCapabilitiesUnknownVenue(t *testing.T) {
	caps := Capabilities("nosuch")
	if caps.WSTrades || caps.RESTOhlcv {
		t.Fatalf("caps = %+v", caps)
	}
	if !Capabilities("Binance").WSKlines {
		t.Fatal("binance lookup should be case-insensitive")
	}
}

func TestBinanceFetchMarkets(t *testing.T) {
	spot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols":[
			{"symbol":"BTCUSDT","baseAsset":"BTC","quoteAsset":"USDT","status":"TRADING"},
			{"symbol":"OLDUSDT","baseAsset":"OLD","quoteAsset":"USDT","status":"BREAK"}]}`))
	}))
	defer spot.Close()
	perp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols":[
			{"symbol":"BTCUSDT","baseAsset":"BTC","quoteAsset":"USDT","status":"TRADING","contractType":"PERPETUAL"},
			{"symbol":"BTCUSDT_240927","baseAsset":"BTC","quoteAsset":"USDT","status":"TRADING","contractType":"CURRENT_QUARTER"}]}`))
	}))
	defer perp.Close()

	markets, err := Binance{SpotURL: spot.URL, PerpURL: perp.URL}.FetchMarkets(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(markets) != 2 {
		t.Fatalf("markets = %+v", markets)
	}
	if markets[0].MarketType != models.MarketTypeSpot || markets[1].MarketType != models.MarketTypePerp {
		t.Errorf("market types = %s %s", markets[0].MarketType, markets[1].MarketType)
	}
}

func TestBybitFetchMarketsFiltersNonTrading(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("category") {
		case "spot":
			w.Write([]byte(`{"result":{"list":[
				{"symbol":"PEPEUSDT","baseCoin":"PEPE","quoteCoin":"USDT","status":"Trading"}]}}`))
		case "linear":
			w.Write([]byte(`{"result":{"list":[
				{"symbol":"1000PEPEUSDT","baseCoin":"1000PEPE","quoteCoin":"USDT","status":"Trading","contractType":"LinearPerpetual"},
				{"symbol":"BTCUSDH26","baseCoin":"BTC","quoteCoin":"USD","status":"Trading","contractType":"LinearFutures"}]}}`))
		}
	}))
	defer srv.Close()

	markets, err := Bybit{BaseURL: srv.URL}.FetchMarkets(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(markets) != 2 {
		t.Fatalf("markets = %+v", markets)
	}
}

func TestOkxSwapPairFromInstID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("instType") {
		case "SPOT":
			w.Write([]byte(`{"data":[{"instId":"BTC-USDT","instType":"SPOT","baseCcy":"BTC","quoteCcy":"USDT","state":"live"}]}`))
		case "SWAP":
			w.Write([]byte(`{"data":[{"instId":"ETH-USDT-SWAP","instType":"SWAP","state":"live"}]}`))
		}
	}))
	defer srv.Close()

	markets, err := Okx{BaseURL: srv.URL}.FetchMarkets(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(markets) != 2 {
		t.Fatalf("markets = %+v", markets)
	}
	if markets[1].BaseSymbol != "ETH" || markets[1].QuoteSymbol != "USDT" {
		t.Errorf("swap pair = %s/%s", markets[1].BaseSymbol, markets[1].QuoteSymbol)
	}
}

func TestKrakenAssetNormalization(t *testing.T) {
	tests := []struct{ in, want string }{
		{"XXBT", "BTC"},
		{"ZUSD", "USD"},
		{"XBT", "BTC"},
		{"SOL", "SOL"},
	}
	for _, tt := range tests {
		if got := krakenAsset(tt.in); got != tt.want {
			t.Errorf("krakenAsset(%s)=%s want %s", tt.in, got, tt.want)
		}
	}
}

func TestGateFetchMarkets(t *testing.T) {
	spot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"BTC_USDT","base":"BTC","quote":"USDT","trade_status":"tradable"},
			{"id":"DEAD_USDT","base":"DEAD","quote":"USDT","trade_status":"untradable"}]`))
	}))
	defer spot.Close()
	perp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"name":"BTC_USDT"},{"name":"GONE_USDT","in_delisting":true}]`))
	}))
	defer perp.Close()

	markets, err := Gate{SpotURL: spot.URL, PerpURL: perp.URL}.FetchMarkets(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(markets) != 2 {
		t.Fatalf("markets = %+v", markets)
	}
	if markets[1].MarketType != models.MarketTypePerp || markets[1].BaseSymbol != "BTC" {
		t.Errorf("perp market = %+v", markets[1])
	}
}

func TestGetJSONNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var out map[string]any
	if err := getJSON(context.Background(), nil, srv.URL, &out); err == nil {
		t.Fatal("expected error on 429")
	}
}
