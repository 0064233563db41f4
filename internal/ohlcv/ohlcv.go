// Package ohlcv backfills historical candles over venue REST APIs. The
// venues disagree on interval notation, row ordering and even column order,
// so each gets its own parser that emits canonical candles.
package ohlcv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"airapiserv/internal/symbols"
	"airapiserv/logger"
	"airapiserv/models"
)

// Client fetches candle history from supported venues. URL fields exist for
// tests; empty means the production endpoint.
type Client struct {
	HTTP       *http.Client
	BinanceURL string
	BybitURL   string
	OkxURL     string
	GateURL    string
	log        *logger.Entry
}

func NewClient() *Client {
	return &Client{
		HTTP: &http.Client{Timeout: 30 * time.Second},
		log:  logger.GetLogger().WithComponent("ohlcv"),
	}
}

const (
	binanceKlinesURL = "https://api.binance.com/api/v3/klines"
	bybitKlinesURL   = "https://api.bybit.com/v5/market/kline"
	okxCandlesURL    = "https://www.okx.com/api/v5/market/candles"
	gateCandlesURL   = "https://api.gateio.ws/api/v4/spot/candlesticks"
)

// Request describes one backfill window.
type Request struct {
	Venue       string
	VenueSymbol string
	MarketType  string
	IntervalMs  int64
	From        int64 // unix ms, inclusive
	To          int64 // unix ms, exclusive
	Limit       int
}

// Fetch pulls candles for one window, sorted ascending by start time and
// flagged final.
func (c *Client) Fetch(ctx context.Context, req Request) ([]*models.Candle, error) {
	if req.Limit <= 0 {
		req.Limit = 1000
	}

	var (
		candles []*models.Candle
		err     error
	)
	switch req.Venue {
	case "binance":
		candles, err = c.fetchBinance(ctx, req)
	case "bybit":
		candles, err = c.fetchBybit(ctx, req)
	case "okx":
		candles, err = c.fetchOkx(ctx, req)
	case "gate":
		candles, err = c.fetchGate(ctx, req)
	default:
		return nil, fmt.Errorf("no candle backfill support for venue %q", req.Venue)
	}
	if err != nil {
		return nil, err
	}

	marketID := symbols.MarketID(req.Venue, req.VenueSymbol, req.MarketType)
	for _, candle := range candles {
		candle.MarketID = marketID
		candle.IntervalMs = req.IntervalMs
		candle.IsFinal = true
		candle.Source = "REST_EXCHANGE"
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].StartTs < candles[j].StartTs })
	return candles, nil
}

// Interval notations per venue.

var binanceIntervals = map[int64]string{
	60_000:     "1m",
	300_000:    "5m",
	900_000:    "15m",
	3_600_000:  "1h",
	14_400_000: "4h",
	86_400_000: "1d",
}

var bybitIntervals = map[int64]string{
	60_000:     "1",
	300_000:    "5",
	900_000:    "15",
	3_600_000:  "60",
	14_400_000: "240",
	86_400_000: "D",
}

var okxIntervals = map[int64]string{
	60_000:     "1m",
	300_000:    "5m",
	900_000:    "15m",
	3_600_000:  "1H",
	14_400_000: "4H",
	86_400_000: "1D",
}

var gateIntervals = map[int64]string{
	60_000:     "1m",
	300_000:    "5m",
	900_000:    "15m",
	3_600_000:  "1h",
	14_400_000: "4h",
	86_400_000: "1d",
}

func interval(table map[int64]string, venue string, ms int64) (string, error) {
	s, ok := table[ms]
	if !ok {
		return "", fmt.Errorf("venue %s does not support %dms candles", venue, ms)
	}
	return s, nil
}

func (c *Client) fetchBinance(ctx context.Context, req Request) ([]*models.Candle, error) {
	iv, err := interval(binanceIntervals, "binance", req.IntervalMs)
	if err != nil {
		return nil, err
	}
	baseURL := c.BinanceURL
	if baseURL == "" {
		baseURL = binanceKlinesURL
	}
	url := fmt.Sprintf("%s?symbol=%s&interval=%s&startTime=%d&endTime=%d&limit=%d",
		baseURL, req.VenueSymbol, iv, req.From, req.To, req.Limit)

	var rows [][]json.RawMessage
	if err := c.getJSON(ctx, url, &rows); err != nil {
		return nil, err
	}

	candles := make([]*models.Candle, 0, len(rows))
	for _, row := range rows {
		// [openTime, open, high, low, close, volume, ...]
		if len(row) < 6 {
			return nil, fmt.Errorf("short binance kline row: %d columns", len(row))
		}
		candle := &models.Candle{}
		if err := json.Unmarshal(row[0], &candle.StartTs); err != nil {
			return nil, fmt.Errorf("bad binance kline open time: %w", err)
		}
		if err := parseFloats(row[1:6], &candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.Volume); err != nil {
			return nil, fmt.Errorf("bad binance kline row: %w", err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

type bybitKlineResp struct {
	Result struct {
		List [][]string `json:"list"`
	} `json:"result"`
}

func (c *Client) fetchBybit(ctx context.Context, req Request) ([]*models.Candle, error) {
	iv, err := interval(bybitIntervals, "bybit", req.IntervalMs)
	if err != nil {
		return nil, err
	}
	category := "spot"
	if req.MarketType == models.MarketTypePerp {
		category = "linear"
	}
	baseURL := c.BybitURL
	if baseURL == "" {
		baseURL = bybitKlinesURL
	}
	url := fmt.Sprintf("%s?category=%s&symbol=%s&interval=%s&start=%d&end=%d&limit=%d",
		baseURL, category, req.VenueSymbol, iv, req.From, req.To, req.Limit)

	var resp bybitKlineResp
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	candles := make([]*models.Candle, 0, len(resp.Result.List))
	for _, row := range resp.Result.List {
		// [start, open, high, low, close, volume, turnover], newest first.
		if len(row) < 6 {
			return nil, fmt.Errorf("short bybit kline row: %d columns", len(row))
		}
		candle := &models.Candle{}
		if candle.StartTs, err = strconv.ParseInt(row[0], 10, 64); err != nil {
			return nil, fmt.Errorf("bad bybit kline start: %w", err)
		}
		if err := parseFloatStrings(row[1:6], &candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.Volume); err != nil {
			return nil, fmt.Errorf("bad bybit kline row: %w", err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

type okxCandlesResp struct {
	Data [][]string `json:"data"`
}

func (c *Client) fetchOkx(ctx context.Context, req Request) ([]*models.Candle, error) {
	iv, err := interval(okxIntervals, "okx", req.IntervalMs)
	if err != nil {
		return nil, err
	}
	baseURL := c.OkxURL
	if baseURL == "" {
		baseURL = okxCandlesURL
	}
	// OKX pages backwards: "after" excludes newer rows, "before" older ones.
	url := fmt.Sprintf("%s?instId=%s&bar=%s&before=%d&after=%d&limit=%d",
		baseURL, req.VenueSymbol, iv, req.From-1, req.To, req.Limit)

	var resp okxCandlesResp
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	candles := make([]*models.Candle, 0, len(resp.Data))
	for _, row := range resp.Data {
		// [ts, open, high, low, close, volume, ...], newest first.
		if len(row) < 6 {
			return nil, fmt.Errorf("short okx candle row: %d columns", len(row))
		}
		candle := &models.Candle{}
		if candle.StartTs, err = strconv.ParseInt(row[0], 10, 64); err != nil {
			return nil, fmt.Errorf("bad okx candle ts: %w", err)
		}
		if err := parseFloatStrings(row[1:6], &candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.Volume); err != nil {
			return nil, fmt.Errorf("bad okx candle row: %w", err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func (c *Client) fetchGate(ctx context.Context, req Request) ([]*models.Candle, error) {
	iv, err := interval(gateIntervals, "gate", req.IntervalMs)
	if err != nil {
		return nil, err
	}
	baseURL := c.GateURL
	if baseURL == "" {
		baseURL = gateCandlesURL
	}
	url := fmt.Sprintf("%s?currency_pair=%s&interval=%s&from=%d&to=%d",
		baseURL, req.VenueSymbol, iv, req.From/1000, (req.To-1)/1000)

	var rows [][]string
	if err := c.getJSON(ctx, url, &rows); err != nil {
		return nil, err
	}

	candles := make([]*models.Candle, 0, len(rows))
	for _, row := range rows {
		// Gate's column order is [t, quote_volume, close, high, low, open,
		// base_volume], with close before open.
		if len(row) < 7 {
			return nil, fmt.Errorf("short gate candle row: %d columns", len(row))
		}
		candle := &models.Candle{}
		seconds, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad gate candle ts: %w", err)
		}
		candle.StartTs = seconds * 1000
		if err := parseFloatStrings(
			[]string{row[5], row[3], row[4], row[2], row[6]},
			&candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.Volume); err != nil {
			return nil, fmt.Errorf("bad gate candle row: %w", err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request to %s returned %d: %s", url, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}

// parseFloats decodes JSON values that may be numbers or numeric strings.
func parseFloats(raw []json.RawMessage, dst ...*float64) error {
	if len(raw) != len(dst) {
		return fmt.Errorf("expected %d values, got %d", len(dst), len(raw))
	}
	for i, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return err
			}
			*dst[i] = f
			continue
		}
		if err := json.Unmarshal(r, dst[i]); err != nil {
			return err
		}
	}
	return nil
}

func parseFloatStrings(values []string, dst ...*float64) error {
	if len(values) != len(dst) {
		return fmt.Errorf("expected %d values, got %d", len(dst), len(values))
	}
	for i, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst[i] = f
	}
	return nil
}
