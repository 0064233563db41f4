package directory

import (
	"context"
	"net/http"

	"airapiserv/models"
)

const coingeckoListURL = "https://api.coingecko.com/api/v3/coins/list?include_platform=true"

// CoinGecko lists all coins with their contract platforms.
type CoinGecko struct {
	Client  *http.Client
	BaseURL string
	APIKey  string
}

func (CoinGecko) Provider() string { return "coingecko" }
func (CoinGecko) Cost() int        { return 1 }

type coingeckoCoin struct {
	ID        string            `json:"id"`
	Symbol    string            `json:"symbol"`
	Name      string            `json:"name"`
	Platforms map[string]string `json:"platforms"`
}

func (c CoinGecko) Fetch(ctx context.Context) ([]models.DirectoryToken, error) {
	url := c.BaseURL
	if url == "" {
		url = coingeckoListURL
	}
	var headers map[string]string
	if c.APIKey != "" {
		headers = map[string]string{"x-cg-demo-api-key": c.APIKey}
	}

	var coins []coingeckoCoin
	if err := getJSON(ctx, c.Client, url, headers, &coins); err != nil {
		return nil, err
	}

	listings := make([]models.DirectoryToken, 0, len(coins))
	for _, coin := range coins {
		listing := models.DirectoryToken{
			Symbol:     coin.Symbol,
			Name:       coin.Name,
			Provider:   "coingecko",
			ProviderID: coin.ID,
		}
		// One listing per token; take the first platform with an address.
		for chain, addr := range coin.Platforms {
			if addr != "" {
				listing.Chain = chain
				listing.ContractAddress = addr
				break
			}
		}
		listings = append(listings, listing)
	}
	return listings, nil
}
