package venue

import (
	"context"
	"net/http"
	"strings"

	"airapiserv/models"
)

const (
	gateSpotPairsURL = "https://api.gateio.ws/api/v4/spot/currency_pairs"
	gatePerpURL      = "https://api.gateio.ws/api/v4/futures/usdt/contracts"
)

// Gate lists spot currency pairs and USDT-settled perpetual contracts.
type Gate struct {
	Client  *http.Client
	SpotURL string
	PerpURL string
}

func (Gate) Name() string { return "gate" }

type gateSpotPair struct {
	ID          string `json:"id"`
	Base        string `json:"base"`
	Quote       string `json:"quote"`
	TradeStatus string `json:"trade_status"`
}

type gateContract struct {
	Name       string `json:"name"`
	InDelisting bool  `json:"in_delisting"`
}

func (g Gate) FetchMarkets(ctx context.Context) ([]models.VenueMarket, error) {
	spotURL, perpURL := g.SpotURL, g.PerpURL
	if spotURL == "" {
		spotURL = gateSpotPairsURL
	}
	if perpURL == "" {
		perpURL = gatePerpURL
	}

	var markets []models.VenueMarket

	var pairs []gateSpotPair
	if err := getJSON(ctx, g.Client, spotURL, &pairs); err != nil {
		return nil, err
	}
	for _, p := range pairs {
		if p.TradeStatus != "tradable" {
			continue
		}
		markets = append(markets, models.VenueMarket{
			Venue:       "gate",
			MarketType:  models.MarketTypeSpot,
			BaseSymbol:  p.Base,
			QuoteSymbol: p.Quote,
			VenueSymbol: p.ID,
			Status:      p.TradeStatus,
		})
	}

	var contracts []gateContract
	if err := getJSON(ctx, g.Client, perpURL, &contracts); err != nil {
		return nil, err
	}
	for _, c := range contracts {
		if c.InDelisting {
			continue
		}
		// Contract names look like BTC_USDT.
		parts := strings.SplitN(c.Name, "_", 2)
		if len(parts) != 2 {
			continue
		}
		markets = append(markets, models.VenueMarket{
			Venue:       "gate",
			MarketType:  models.MarketTypePerp,
			BaseSymbol:  parts[0],
			QuoteSymbol: parts[1],
			VenueSymbol: c.Name,
			Status:      "tradable",
		})
	}
	return markets, nil
}
