package fallback

import (
	"context"
	"encoding/json"
	"fmt"
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

const defaultCryptoCompareURL = "https://min-api.cryptocompare.com"

// CryptoComparePoller batches all configured base symbols into one
// pricemulti request per interval.
type CryptoComparePoller struct {
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

func NewCryptoCompare(cfg config.FallbackSourceConfig, events *channel.Events, bud *budget.Service) *CryptoComparePoller {
	return &CryptoComparePoller{
		cfg:     cfg,
		events:  events,
		budget:  bud,
		client:  &http.Client{Timeout: 15 * time.Second},
		wg:      &sync.WaitGroup{},
		limiter: newLimiter(cfg),
		log:     logger.GetLogger(),
	}
}

func (p *CryptoComparePoller) Name() string { return "cryptocompare_fallback" }

func (p *CryptoComparePoller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("cryptocompare fallback poller already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	if !p.cfg.Enabled {
		return fmt.Errorf("cryptocompare fallback disabled via configuration")
	}
	if len(p.cfg.Symbols) == 0 {
		return fmt.Errorf("no symbols configured for cryptocompare fallback")
	}

	p.wg.Add(1)
	go p.poll()

	p.log.WithComponent("cryptocompare_fallback").WithFields(logger.Fields{
		"symbols":  p.cfg.Symbols,
		"interval": pollInterval(p.cfg).String(),
	}).Info("cryptocompare fallback poller started")
	return nil
}

func (p *CryptoComparePoller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.log.WithComponent("cryptocompare_fallback").Info("stopping cryptocompare fallback poller")
	p.wg.Wait()
	p.log.WithComponent("cryptocompare_fallback").Info("cryptocompare fallback poller stopped")
}

func (p *CryptoComparePoller) poll() {
	defer p.wg.Done()

	ticker := time.NewTicker(pollInterval(p.cfg))
	defer ticker.Stop()

	for {
		if err := p.fetchOnce(); err != nil {
			p.log.WithComponent("cryptocompare_fallback").WithError(err).Debug("failed to fetch cryptocompare prices")
		}

		select {
		case <-ticker.C:
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *CryptoComparePoller) fetchOnce() error {
	if err := p.limiter.Wait(p.ctx); err != nil {
		return err
	}
	if p.budget != nil && !p.budget.CanSpend(p.ctx, "cryptocompare", 1) {
		return fmt.Errorf("daily cryptocompare budget exhausted")
	}

	baseURL := p.cfg.URL
	if baseURL == "" {
		baseURL = defaultCryptoCompareURL
	}
	fsyms := strings.ToUpper(strings.Join(p.cfg.Symbols, ","))
	endpoint := baseURL + "/data/pricemulti?tsyms=USD&fsyms=" + url.QueryEscape(fsyms)

	body, err := fetchBody(p.ctx, p.client, endpoint)
	if err != nil {
		return err
	}
	if p.budget != nil {
		if err := p.budget.Consume(p.ctx, "cryptocompare", 1); err != nil {
			p.log.WithComponent("cryptocompare_fallback").WithError(err).Warn("failed to record cryptocompare budget usage")
		}
	}
	return p.handlePrices(body)
}

func (p *CryptoComparePoller) handlePrices(body []byte) error {
	var prices map[string]map[string]float64
	if err := json.Unmarshal(body, &prices); err != nil {
		return fmt.Errorf("failed to decode cryptocompare prices: %w", err)
	}

	now := time.Now().UTC().UnixMilli()
	for _, sym := range p.cfg.Symbols {
		base := strings.ToUpper(sym)
		quote, ok := prices[base]
		if !ok {
			continue
		}
		last, ok := quote["USD"]
		if !ok || last <= 0 {
			continue
		}
		p.events.Send(p.ctx, models.Ticker{
			MarketID:  symbols.MarketID("cryptocompare", base+"USD", models.MarketTypeSpot),
			Last:      last,
			Timestamp: now,
			Source:    sourceAPIFallback,
		})
	}
	return nil
}
