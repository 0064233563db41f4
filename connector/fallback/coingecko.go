// Package fallback holds REST pollers for markets with no websocket
// coverage. They emit tickers only, rate limited and budget gated.
package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"airapiserv/config"
	"airapiserv/internal/budget"
	"airapiserv/internal/channel"
	"airapiserv/internal/symbols"
	"airapiserv/logger"
	"airapiserv/models"
)

const (
	defaultCoinGeckoURL = "https://api.coingecko.com"
	sourceAPIFallback   = "API_FALLBACK"
)

// CoinGeckoPoller batches all configured coin ids into one simple/price
// request per interval. Config entries are coin ids, optionally with a
// display symbol: "bitcoin=BTC". Without an alias the id itself is used.
type CoinGeckoPoller struct {
	cfg     config.FallbackSourceConfig
	events  *channel.Events
	budget  *budget.Service
	client  *http.Client
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	limiter *rate.Limiter
	log     *logger.Log
}

func NewCoinGecko(cfg config.FallbackSourceConfig, events *channel.Events, bud *budget.Service) *CoinGeckoPoller {
	return &CoinGeckoPoller{
		cfg:     cfg,
		events:  events,
		budget:  bud,
		client:  &http.Client{Timeout: 15 * time.Second},
		wg:      &sync.WaitGroup{},
		limiter: newLimiter(cfg),
		log:     logger.GetLogger(),
	}
}

func (p *CoinGeckoPoller) Name() string { return "coingecko_fallback" }

func (p *CoinGeckoPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("coingecko fallback poller already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	if !p.cfg.Enabled {
		return fmt.Errorf("coingecko fallback disabled via configuration")
	}
	if len(p.cfg.Symbols) == 0 {
		return fmt.Errorf("no coin ids configured for coingecko fallback")
	}

	p.wg.Add(1)
	go p.poll()

	p.log.WithComponent("coingecko_fallback").WithFields(logger.Fields{
		"ids":      p.cfg.Symbols,
		"interval": pollInterval(p.cfg).String(),
	}).Info("coingecko fallback poller started")
	return nil
}

func (p *CoinGeckoPoller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.log.WithComponent("coingecko_fallback").Info("stopping coingecko fallback poller")
	p.wg.Wait()
	p.log.WithComponent("coingecko_fallback").Info("coingecko fallback poller stopped")
}

func (p *CoinGeckoPoller) poll() {
	defer p.wg.Done()

	ticker := time.NewTicker(pollInterval(p.cfg))
	defer ticker.Stop()

	for {
		if err := p.fetchOnce(); err != nil {
			p.log.WithComponent("coingecko_fallback").WithError(err).Debug("failed to fetch coingecko prices")
		}

		select {
		case <-ticker.C:
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *CoinGeckoPoller) fetchOnce() error {
	if err := p.limiter.Wait(p.ctx); err != nil {
		return err
	}
	if p.budget != nil && !p.budget.CanSpend(p.ctx, "coingecko", 1) {
		return fmt.Errorf("daily coingecko budget exhausted")
	}

	ids := make([]string, len(p.cfg.Symbols))
	for i, entry := range p.cfg.Symbols {
		ids[i], _ = splitEntry(entry)
	}

	baseURL := p.cfg.URL
	if baseURL == "" {
		baseURL = defaultCoinGeckoURL
	}
	endpoint := baseURL + "/api/v3/simple/price?vs_currencies=usd&ids=" + url.QueryEscape(strings.Join(ids, ","))

	body, err := fetchBody(p.ctx, p.client, endpoint)
	if err != nil {
		return err
	}
	if p.budget != nil {
		if err := p.budget.Consume(p.ctx, "coingecko", 1); err != nil {
			p.log.WithComponent("coingecko_fallback").WithError(err).Warn("failed to record coingecko budget usage")
		}
	}
	return p.handlePrices(body)
}

func (p *CoinGeckoPoller) handlePrices(body []byte) error {
	var prices map[string]map[string]float64
	if err := json.Unmarshal(body, &prices); err != nil {
		return fmt.Errorf("failed to decode coingecko prices: %w", err)
	}

	now := time.Now().UTC().UnixMilli()
	for _, entry := range p.cfg.Symbols {
		id, sym := splitEntry(entry)
		quote, ok := prices[id]
		if !ok {
			continue
		}
		last, ok := quote["usd"]
		if !ok || last <= 0 {
			continue
		}
		p.events.Send(p.ctx, models.Ticker{
			MarketID:  symbols.MarketID("coingecko", sym+"USD", models.MarketTypeSpot),
			Last:      last,
			Timestamp: now,
			Source:    sourceAPIFallback,
		})
	}
	return nil
}

// splitEntry parses "bitcoin=BTC" into the provider id and display symbol.
func splitEntry(entry string) (id, sym string) {
	if i := strings.IndexByte(entry, '='); i >= 0 {
		return entry[:i], strings.ToUpper(entry[i+1:])
	}
	return entry, strings.ToUpper(entry)
}

func newLimiter(cfg config.FallbackSourceConfig) *rate.Limiter {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func pollInterval(cfg config.FallbackSourceConfig) time.Duration {
	if cfg.PollInterval > 0 {
		return cfg.PollInterval
	}
	return time.Minute
}

func fetchBody(ctx context.Context, client *http.Client, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := body
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet)
	}
	return body, nil
}
