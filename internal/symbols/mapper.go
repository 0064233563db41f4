package symbols

import "strings"

// Canonical converts venue-specific symbol formats to the canonical form:
// uppercase alphanumerics, no separators, BTC instead of XBT, without
// multiplier prefixes. Currently supported venues: binance, bybit, kucoin,
// coinbase, kraken, okx.
func Canonical(venue, sym string) string {
	switch strings.ToLower(venue) {
	case "binance":
		switch sym {
		case "1000BONKUSDT":
			sym = "BONKUSDT"
		case "1000PEPEUSDT":
			sym = "PEPEUSDT"
		case "1000SHIBUSDT":
			sym = "SHIBUSDT"
		}
	case "bybit":
		switch sym {
		case "1000BONKUSDT":
			sym = "BONKUSDT"
		case "1000PEPEUSDT":
			sym = "PEPEUSDT"
		case "SHIB1000USDT":
			sym = "SHIBUSDT"
		}
	case "coinbase":
		sym = strings.ReplaceAll(sym, "-", "")
	case "kraken":
		sym = strings.ReplaceAll(sym, "/", "")
		sym = strings.ReplaceAll(sym, "-", "")
	case "kucoin":
		sym = strings.ReplaceAll(sym, "-", "")
		sym = strings.TrimSuffix(sym, "M")
		if strings.HasPrefix(sym, "XBT") {
			sym = "BTC" + sym[3:]
		}
	case "okx":
		sym = strings.TrimSuffix(sym, "-SWAP")
		sym = strings.ReplaceAll(sym, "-", "")
	default:
		// others already use the desired format
	}
	return Normalize(sym)
}

// Normalize strips everything but alphanumerics and uppercases.
func Normalize(sym string) string {
	var b strings.Builder
	b.Grow(len(sym))
	for _, r := range sym {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		}
	}
	return b.String()
}

var knownQuotes = []string{"USDT", "USD", "USDC", "BUSD", "EUR", "BTC", "ETH", "DAI", "KRW", "GBP", "JPY"}

// SplitPair splits a normalized pair like BTCUSDT, BTC-USD, BTC_USD or
// BTC/USD into base and quote using a known-quote suffix table. Pairs with
// an unknown quote are split down the middle as a best effort.
func SplitPair(pair string) (base, quote string) {
	cleaned := Normalize(pair)
	for _, q := range knownQuotes {
		if strings.HasSuffix(cleaned, q) && len(cleaned) > len(q) {
			return cleaned[:len(cleaned)-len(q)], q
		}
	}
	mid := len(cleaned) / 2
	return cleaned[:mid], cleaned[mid:]
}

// MarketID builds the canonical market identifier "venue:SYMBOL:marketType".
func MarketID(venue, venueSymbol, marketType string) string {
	return strings.ToLower(venue) + ":" + Normalize(venueSymbol) + ":" + marketType
}

// ParseMarketID splits a canonical market identifier. Unparseable IDs fall
// back to venue "unknown" and market type "spot".
func ParseMarketID(marketID string) (venue, venueSymbol, marketType string) {
	parts := strings.SplitN(marketID, ":", 3)
	venue = "unknown"
	venueSymbol = marketID
	marketType = "spot"
	if len(parts) >= 2 {
		venue = strings.ToLower(parts[0])
		venueSymbol = parts[1]
	}
	if len(parts) == 3 && parts[2] != "" {
		marketType = parts[2]
	}
	return venue, venueSymbol, marketType
}
