// Package coverage maps canonical tokens onto venue markets and decides the
// best data source for each token.
package coverage

import "strings"

// Source names, best first. Websocket feeds beat REST polling, and REST
// polling beats external API fallback. Venues not running a connector yet
// still rank so coverage stays stable when connectors are added.
var sourceRanking = []string{
	"BINANCE_WS",
	"BYBIT_WS",
	"OKX_WS",
	"KUCOIN_WS",
	"KRAKEN_WS",
	"COINBASE_WS",
	"BITFINEX_WS",
	"BITSTAMP_WS",
	"GATE_WS",
	"MEXC_WS",
	"HTX_WS",
	"CRYPTOCOM_WS",
	"GEMINI_WS",
	"UPBIT_WS",
	"BITGET_WS",
	"PHEMEX_WS",
	"HYPERLIQUID_WS",
	"DYDX_WS",
	"BITMEX_WS",
	"DERIBIT_WS",
	"REST_EXCHANGE",
	"API_FALLBACK",
}

// SourceAPIFallback is assigned to tokens with zero venue markets.
const SourceAPIFallback = "API_FALLBACK"

const sourceRESTExchange = "REST_EXCHANGE"

var sourceRank = func() map[string]int {
	m := make(map[string]int, len(sourceRanking))
	for i, s := range sourceRanking {
		m[s] = i
	}
	return m
}()

// SelectPrioritySource picks the best-ranked candidate. Unknown candidates
// rank below every known source; an empty candidate list yields the API
// fallback.
func SelectPrioritySource(candidates []string) string {
	best := ""
	bestRank := len(sourceRanking) + 1
	for _, c := range candidates {
		r, known := sourceRank[c]
		if !known {
			r = len(sourceRanking)
		}
		if r < bestRank {
			best = c
			bestRank = r
		}
	}
	if best == "" {
		return SourceAPIFallback
	}
	return best
}

// wsSource maps a venue name to its websocket source identifier.
func wsSource(venue string) string {
	return strings.ToUpper(venue) + "_WS"
}

// Preferred quotes, best first. Quotes off the list rank equally bad.
var quotePreference = []string{"USDT", "USDC", "USD", "EUR", "BTC", "ETH"}

func quoteRank(quote string) int {
	q := strings.ToUpper(quote)
	for i, pref := range quotePreference {
		if q == pref {
			return i
		}
	}
	return len(quotePreference) + 10
}
