// Package directory pulls token listings from external data providers. Each
// source speaks one provider API; the aggregator fans out across all of them
// with budget gating and fault isolation.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"airapiserv/internal/budget"
	"airapiserv/logger"
	"airapiserv/models"
)

// Source lists tokens from one external provider. Cost is the number of API
// requests one Fetch consumes, charged against the provider's daily budget.
type Source interface {
	Provider() string
	Cost() int
	Fetch(ctx context.Context) ([]models.DirectoryToken, error)
}

// Aggregator queries every source and concatenates the listings. A failing
// or over-budget source contributes nothing instead of failing the pass.
type Aggregator struct {
	sources []Source
	budgets *budget.Service
	log     *logger.Entry
}

func NewAggregator(budgets *budget.Service, sources ...Source) *Aggregator {
	return &Aggregator{
		sources: sources,
		budgets: budgets,
		log:     logger.GetLogger().WithComponent("directory"),
	}
}

func (a *Aggregator) FetchAll(ctx context.Context) []models.DirectoryToken {
	var all []models.DirectoryToken
	for _, src := range a.sources {
		fields := logger.Fields{"provider": src.Provider()}
		if !a.budgets.CanSpend(ctx, src.Provider(), src.Cost()) {
			a.log.WithFields(fields).Warn("daily budget exhausted, skipping provider")
			continue
		}
		listings, err := src.Fetch(ctx)
		if cerr := a.budgets.Consume(ctx, src.Provider(), src.Cost()); cerr != nil {
			a.log.WithError(cerr).WithFields(fields).Warn("budget accounting failed")
		}
		if err != nil {
			a.log.WithError(err).WithFields(fields).Error("directory fetch failed")
			continue
		}
		fields["listings"] = len(listings)
		a.log.WithFields(fields).Info("directory fetch complete")
		all = append(all, listings...)
	}
	return all
}

var defaultClient = &http.Client{Timeout: 30 * time.Second}

func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out any) error {
	if client == nil {
		client = defaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
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
