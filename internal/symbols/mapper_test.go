package symbols

import "testing"

func TestCanonical(t *testing.T) {
	tests := []struct {
		venue string
		in    string
		want  string
	}{
		{"kucoin", "XBT-USDTM", "BTCUSDT"},
		{"coinbase", "BTC-USD", "BTCUSD"},
		{"kraken", "BTC/USD", "BTCUSD"},
		{"binance", "ETHUSDT", "ETHUSDT"},
		{"binance", "1000BONKUSDT", "BONKUSDT"},
		{"binance", "1000PEPEUSDT", "PEPEUSDT"},
		{"binance", "1000SHIBUSDT", "SHIBUSDT"},
		{"bybit", "SHIB1000USDT", "SHIBUSDT"},
		{"bybit", "1000BONKUSDT", "BONKUSDT"},
		{"okx", "BTC-USDT-SWAP", "BTCUSDT"},
		{"unknown", "btc_usdt", "BTCUSDT"},
	}
	for _, tt := range tests {
		if got := Canonical(tt.venue, tt.in); got != tt.want {
			t.Errorf("Canonical(%s,%s)=%s want %s", tt.venue, tt.in, got, tt.want)
		}
	}
}

func TestSplitPair(t *testing.T) {
	tests := []struct {
		in          string
		base, quote string
	}{
		{"BTCUSDT", "BTC", "USDT"},
		{"BTC-USD", "BTC", "USD"},
		{"ETHBTC", "ETH", "BTC"},
		{"PEPEUSDC", "PEPE", "USDC"},
		{"ABCDEF", "ABC", "DEF"},
	}
	for _, tt := range tests {
		base, quote := SplitPair(tt.in)
		if base != tt.base || quote != tt.quote {
			t.Errorf("SplitPair(%s)=(%s,%s) want (%s,%s)", tt.in, base, quote, tt.base, tt.quote)
		}
	}
}

func TestMarketIDRoundTrip(t *testing.T) {
	id := MarketID("Binance", "btcusdt", "spot")
	if id != "binance:BTCUSDT:spot" {
		t.Fatalf("id = %s", id)
	}
	venue, sym, mt := ParseMarketID(id)
	if venue != "binance" || sym != "BTCUSDT" || mt != "spot" {
		t.Errorf("parse = %s %s %s", venue, sym, mt)
	}

	venue, sym, mt = ParseMarketID("garbage")
	if venue != "unknown" || sym != "garbage" || mt != "spot" {
		t.Errorf("fallback parse = %s %s %s", venue, sym, mt)
	}
}
