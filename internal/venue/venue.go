// Package venue fetches market listings from exchange REST APIs and carries
// the static capability table that drives coverage flags.
package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"airapiserv/models"
)

// Source lists the markets of one venue.
type Source interface {
	Name() string
	FetchMarkets(ctx context.Context) ([]models.VenueMarket, error)
}

// capabilities is what each venue can deliver over websocket and REST. A
// venue missing from the table reports zero capabilities, which downgrades
// its coverage edges rather than failing.
var capabilities = map[string]models.VenueCapabilities{
	"binance":  {HasSpot: true, HasPerp: true, WSTrades: true, WSKlines: true, RESTOhlcv: true},
	"bybit":    {HasSpot: true, HasPerp: true, WSTrades: true, WSKlines: true, RESTOhlcv: true},
	"okx":      {HasSpot: true, HasPerp: true, WSTrades: true, WSKlines: true, RESTOhlcv: true},
	"kucoin":   {HasSpot: true, HasPerp: true, WSTrades: true, WSKlines: false, RESTOhlcv: true},
	"coinbase": {HasSpot: true, WSTrades: true, WSKlines: false, RESTOhlcv: true},
	"kraken":   {HasSpot: true, HasPerp: true, WSTrades: true, WSKlines: true, RESTOhlcv: true},
	"gate":     {HasSpot: true, HasPerp: true, WSTrades: true, WSKlines: true, RESTOhlcv: true},
}

// Capabilities returns the capability row for a venue, zero for unknown
// venues.
func Capabilities(venue string) models.VenueCapabilities {
	return capabilities[strings.ToLower(venue)]
}

var defaultClient = &http.Client{Timeout: 15 * time.Second}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	if client == nil {
		client = defaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", url, err)
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
