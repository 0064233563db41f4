package fallback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"airapiserv/config"
	"airapiserv/internal/budget"
	"airapiserv/internal/channel"
	"airapiserv/internal/store/memory"
	"airapiserv/models"
)

func drainTickers(t *testing.T, events *channel.Events) []models.Ticker {
	t.Helper()
	var out []models.Ticker
	for {
		select {
		case ev := <-events.C:
			ticker, ok := ev.(models.Ticker)
			if !ok {
				t.Fatalf("event = %T", ev)
			}
			out = append(out, ticker)
		default:
			return out
		}
	}
}

func TestCoinGeckoFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != "bitcoin,pepe" {
			t.Errorf("ids = %s", got)
		}
		w.Write([]byte(`{"bitcoin":{"usd":65000.5},"pepe":{"usd":0.0000112}}`))
	}))
	defer srv.Close()

	events := channel.NewEvents(8)
	p := NewCoinGecko(config.FallbackSourceConfig{
		Enabled: true,
		URL:     srv.URL,
		Symbols: []string{"bitcoin=BTC", "pepe"},
	}, events, nil)
	p.ctx = context.Background()

	if err := p.fetchOnce(); err != nil {
		t.Fatal(err)
	}

	tickers := drainTickers(t, events)
	if len(tickers) != 2 {
		t.Fatalf("tickers = %d", len(tickers))
	}
	if tickers[0].MarketID != "coingecko:BTCUSD:spot" || tickers[0].Last != 65000.5 {
		t.Errorf("ticker = %+v", tickers[0])
	}
	if tickers[1].MarketID != "coingecko:PEPEUSD:spot" {
		t.Errorf("ticker = %+v", tickers[1])
	}
	for _, tk := range tickers {
		if tk.Source != "API_FALLBACK" {
			t.Errorf("source = %s", tk.Source)
		}
	}
}

func TestCoinGeckoBudgetExhausted(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"bitcoin":{"usd":65000}}`))
	}))
	defer srv.Close()

	bud := budget.NewService(memory.NewHotCache(), map[string]int{"coingecko": 0})
	events := channel.NewEvents(8)
	p := NewCoinGecko(config.FallbackSourceConfig{
		Enabled: true,
		URL:     srv.URL,
		Symbols: []string{"bitcoin"},
	}, events, bud)
	p.ctx = context.Background()

	if err := p.fetchOnce(); err == nil {
		t.Fatal("expected budget error")
	}
	if calls != 0 {
		t.Errorf("calls = %d", calls)
	}
	if got := drainTickers(t, events); len(got) != 0 {
		t.Errorf("tickers = %+v", got)
	}
}

func TestCoinGeckoChargesBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bitcoin":{"usd":65000}}`))
	}))
	defer srv.Close()

	bud := budget.NewService(memory.NewHotCache(), nil)
	events := channel.NewEvents(8)
	p := NewCoinGecko(config.FallbackSourceConfig{
		Enabled: true,
		URL:     srv.URL,
		Symbols: []string{"bitcoin"},
	}, events, bud)
	p.ctx = context.Background()

	if err := p.fetchOnce(); err != nil {
		t.Fatal(err)
	}
	used, err := bud.Usage(context.Background(), "coingecko")
	if err != nil {
		t.Fatal(err)
	}
	if used != 1 {
		t.Errorf("usage = %d", used)
	}
}

func TestCryptoCompareFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("fsyms"); got != "BTC,ETH" {
			t.Errorf("fsyms = %s", got)
		}
		w.Write([]byte(`{"BTC":{"USD":65001},"ETH":{"USD":3000.25}}`))
	}))
	defer srv.Close()

	events := channel.NewEvents(8)
	p := NewCryptoCompare(config.FallbackSourceConfig{
		Enabled: true,
		URL:     srv.URL,
		Symbols: []string{"btc", "eth"},
	}, events, nil)
	p.ctx = context.Background()

	if err := p.fetchOnce(); err != nil {
		t.Fatal(err)
	}

	tickers := drainTickers(t, events)
	if len(tickers) != 2 {
		t.Fatalf("tickers = %d", len(tickers))
	}
	if tickers[0].MarketID != "cryptocompare:BTCUSD:spot" || tickers[0].Last != 65001 {
		t.Errorf("ticker = %+v", tickers[0])
	}
	if tickers[1].MarketID != "cryptocompare:ETHUSD:spot" || tickers[1].Last != 3000.25 {
		t.Errorf("ticker = %+v", tickers[1])
	}
}

func TestCryptoCompareBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Response":"Error","Message":"rate limited"`))
	}))
	defer srv.Close()

	events := channel.NewEvents(8)
	p := NewCryptoCompare(config.FallbackSourceConfig{
		Enabled: true,
		URL:     srv.URL,
		Symbols: []string{"BTC"},
	}, events, nil)
	p.ctx = context.Background()

	if err := p.fetchOnce(); err == nil {
		t.Fatal("expected decode error")
	}
	if got := drainTickers(t, events); len(got) != 0 {
		t.Errorf("tickers = %+v", got)
	}
}

func TestKucoinEmitContract(t *testing.T) {
	events := channel.NewEvents(8)
	p := NewKucoin(config.FallbackSourceConfig{Enabled: true, Symbols: []string{"XBTUSDTM"}}, events)
	p.ctx = context.Background()

	p.emitContract("XBTUSDTM", 65000.5, 65001)
	p.emitContract("ETHUSDTM", 0, 3000) // no trade price yet

	tickers := drainTickers(t, events)
	if len(tickers) != 1 {
		t.Fatalf("tickers = %d", len(tickers))
	}
	if tickers[0].MarketID != "kucoin:BTCUSDT:perp" {
		t.Errorf("market id = %s", tickers[0].MarketID)
	}
	if tickers[0].Mark != 65001 || tickers[0].Source != "API_FALLBACK" {
		t.Errorf("ticker = %+v", tickers[0])
	}
}

func TestSplitEntry(t *testing.T) {
	cases := []struct {
		entry, id, sym string
	}{
		{"bitcoin=BTC", "bitcoin", "BTC"},
		{"pepe", "pepe", "PEPE"},
		{"ethereum=eth", "ethereum", "ETH"},
	}
	for _, tc := range cases {
		id, sym := splitEntry(tc.entry)
		if id != tc.id || sym != tc.sym {
			t.Errorf("splitEntry(%q) = %q, %q", tc.entry, id, sym)
		}
	}
}
