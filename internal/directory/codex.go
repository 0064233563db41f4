package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"airapiserv/models"
)

const codexGraphURL = "https://graph.codex.io/graphql"

// Codex lists top tokens through the GraphQL API.
type Codex struct {
	Client  *http.Client
	BaseURL string
	APIKey  string
	Limit   int
}

func (Codex) Provider() string { return "codex" }
func (Codex) Cost() int        { return 1 }

type codexTokensResp struct {
	Data struct {
		ListTopTokens []struct {
			Address   string `json:"address"`
			Symbol    string `json:"symbol"`
			Name      string `json:"name"`
			NetworkID int    `json:"networkId"`
		} `json:"listTopTokens"`
	} `json:"data"`
}

func (c Codex) Fetch(ctx context.Context) ([]models.DirectoryToken, error) {
	url := c.BaseURL
	if url == "" {
		url = codexGraphURL
	}
	limit := c.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`{"query":"{ listTopTokens(limit: %d) { address symbol name networkId } }"}`, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(query)))
	if err != nil {
		return nil, fmt.Errorf("failed to build codex request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.APIKey)

	client := c.Client
	if client == nil {
		client = defaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("codex request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("codex request returned %d: %s", resp.StatusCode, string(body))
	}

	var out codexTokensResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode codex response: %w", err)
	}

	listings := make([]models.DirectoryToken, 0, len(out.Data.ListTopTokens))
	for _, tok := range out.Data.ListTopTokens {
		listings = append(listings, models.DirectoryToken{
			Symbol:          tok.Symbol,
			Name:            tok.Name,
			Chain:           strconv.Itoa(tok.NetworkID),
			ContractAddress: tok.Address,
			Provider:        "codex",
			ProviderID:      strconv.Itoa(tok.NetworkID) + ":" + tok.Address,
		})
	}
	return listings, nil
}
