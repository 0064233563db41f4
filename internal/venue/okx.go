package venue

import (
	"context"
	"net/http"
	"strings"

	"airapiserv/models"
)

const okxInstrumentsURL = "https://www.okx.com/api/v5/public/instruments"

// Okx lists spot and perpetual swap instruments.
type Okx struct {
	Client  *http.Client
	BaseURL string
}

func (Okx) Name() string { return "okx" }

type okxInstrumentsResp struct {
	Data []struct {
		InstID   string `json:"instId"`
		InstType string `json:"instType"`
		BaseCcy  string `json:"baseCcy"`
		QuoteCcy string `json:"quoteCcy"`
		CtValCcy string `json:"ctValCcy"`
		SettleCcy string `json:"settleCcy"`
		State    string `json:"state"`
	} `json:"data"`
}

func (o Okx) FetchMarkets(ctx context.Context) ([]models.VenueMarket, error) {
	baseURL := o.BaseURL
	if baseURL == "" {
		baseURL = okxInstrumentsURL
	}

	var markets []models.VenueMarket
	for _, instType := range []struct {
		name       string
		marketType string
	}{
		{"SPOT", models.MarketTypeSpot},
		{"SWAP", models.MarketTypePerp},
	} {
		var resp okxInstrumentsResp
		if err := getJSON(ctx, o.Client, baseURL+"?instType="+instType.name, &resp); err != nil {
			return nil, err
		}
		for _, inst := range resp.Data {
			if inst.State != "live" {
				continue
			}
			base, quote := inst.BaseCcy, inst.QuoteCcy
			if base == "" {
				// Swaps carry the pair in the instrument id (BTC-USDT-SWAP).
				parts := strings.Split(inst.InstID, "-")
				if len(parts) >= 2 {
					base, quote = parts[0], parts[1]
				}
			}
			markets = append(markets, models.VenueMarket{
				Venue:       "okx",
				MarketType:  instType.marketType,
				BaseSymbol:  base,
				QuoteSymbol: quote,
				VenueSymbol: inst.InstID,
				Status:      inst.State,
			})
		}
	}
	return markets, nil
}
