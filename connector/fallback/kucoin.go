package fallback

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	sdkapi "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/api"
	futuresmarket "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/generate/futures/market"
	sdktype "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/types"
	"golang.org/x/time/rate"

	"airapiserv/config"
	"airapiserv/internal/channel"
	"airapiserv/internal/symbols"
	"airapiserv/logger"
	"airapiserv/models"
)

const defaultKucoinFuturesURL = "https://api-futures.kucoin.com"

// KucoinContractPoller polls KuCoin futures contract snapshots through the
// official SDK. Exchange REST endpoints carry no provider budget.
type KucoinContractPoller struct {
	cfg       config.FallbackSourceConfig
	events    *channel.Events
	marketAPI futuresmarket.MarketAPI
	ctx       context.Context
	wg        *sync.WaitGroup
	mu        sync.RWMutex
	running   bool
	limiter   *rate.Limiter
	log       *logger.Log
}

func NewKucoin(cfg config.FallbackSourceConfig, events *channel.Events) *KucoinContractPoller {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = defaultKucoinFuturesURL
	}

	transportOpt := sdktype.NewTransportOptionBuilder().
		SetMaxIdleConns(10).
		SetMaxIdleConnsPerHost(10).
		SetMaxConnsPerHost(10).
		SetIdleConnTimeout(90 * time.Second).
		SetTimeout(15 * time.Second).
		Build()

	option := sdktype.NewClientOptionBuilder().
		WithFuturesEndpoint(baseURL).
		WithTransportOption(transportOpt).
		Build()

	client := sdkapi.NewClient(option)

	return &KucoinContractPoller{
		cfg:       cfg,
		events:    events,
		marketAPI: client.RestService().GetFuturesService().GetMarketAPI(),
		wg:        &sync.WaitGroup{},
		limiter:   newLimiter(cfg),
		log:       logger.GetLogger(),
	}
}

func (p *KucoinContractPoller) Name() string { return "kucoin_fallback" }

func (p *KucoinContractPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("kucoin fallback poller already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	if !p.cfg.Enabled {
		return fmt.Errorf("kucoin fallback disabled via configuration")
	}
	if len(p.cfg.Symbols) == 0 {
		return fmt.Errorf("no contracts configured for kucoin fallback")
	}

	for _, symbol := range p.cfg.Symbols {
		sym := strings.ToUpper(symbol)
		p.wg.Add(1)
		go p.pollSymbol(sym)
	}

	p.log.WithComponent("kucoin_fallback").WithFields(logger.Fields{
		"contracts": p.cfg.Symbols,
		"interval":  pollInterval(p.cfg).String(),
	}).Info("kucoin fallback poller started")
	return nil
}

func (p *KucoinContractPoller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.log.WithComponent("kucoin_fallback").Info("stopping kucoin fallback poller")
	p.wg.Wait()
	p.log.WithComponent("kucoin_fallback").Info("kucoin fallback poller stopped")
}

func (p *KucoinContractPoller) pollSymbol(symbol string) {
	defer p.wg.Done()

	ticker := time.NewTicker(pollInterval(p.cfg))
	defer ticker.Stop()

	for {
		if err := p.fetchOnce(symbol); err != nil {
			p.log.WithComponent("kucoin_fallback").WithFields(logger.Fields{
				"contract": symbol,
			}).WithError(err).Debug("failed to fetch kucoin contract")
		}

		select {
		case <-ticker.C:
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *KucoinContractPoller) fetchOnce(symbol string) error {
	if err := p.limiter.Wait(p.ctx); err != nil {
		return err
	}

	req := futuresmarket.NewGetSymbolReqBuilder().SetSymbol(symbol).Build()
	resp, err := p.marketAPI.GetSymbol(req, p.ctx)
	if err != nil {
		return err
	}
	if resp == nil {
		return fmt.Errorf("empty response for contract %s", symbol)
	}

	p.emitContract(symbol, float64(resp.LastTradePrice), float64(resp.MarkPrice))
	return nil
}

func (p *KucoinContractPoller) emitContract(symbol string, last, mark float64) {
	if last <= 0 {
		return
	}
	canonical := symbols.Canonical("kucoin", symbol)
	p.events.Send(p.ctx, models.Ticker{
		MarketID:  symbols.MarketID("kucoin", canonical, models.MarketTypePerp),
		Last:      last,
		Mark:      mark,
		Timestamp: time.Now().UTC().UnixMilli(),
		Source:    sourceAPIFallback,
	})
}
