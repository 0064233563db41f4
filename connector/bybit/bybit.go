// Package bybit streams public trades from the Bybit v5 websocket through
// the official SDK.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	bybit "github.com/bybit-exchange/bybit.go.api"

	"airapiserv/config"
	"airapiserv/internal/channel"
	"airapiserv/internal/symbols"
	"airapiserv/logger"
	"airapiserv/models"
)

const defaultWSURL = "wss://stream.bybit.com/v5/public/linear"

type Connector struct {
	cfg     config.VenueFeedConfig
	events  *channel.Events
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func New(cfg config.VenueFeedConfig, events *channel.Events) *Connector {
	return &Connector{
		cfg:    cfg,
		events: events,
		wg:     &sync.WaitGroup{},
		log:    logger.GetLogger(),
	}
}

func (c *Connector) Name() string { return "bybit" }

func (c *Connector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("bybit connector already running")
	}
	c.running = true
	c.ctx = ctx
	c.mu.Unlock()

	log := c.log.WithComponent("bybit_connector")
	if !c.cfg.Enabled {
		log.Warn("bybit feed is disabled")
		return fmt.Errorf("bybit feed is disabled")
	}

	log.WithFields(logger.Fields{"symbols": c.cfg.Symbols}).Info("starting bybit connector")
	c.wg.Add(1)
	go c.stream()
	return nil
}

func (c *Connector) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.log.WithComponent("bybit_connector").Info("stopping bybit connector")
	c.wg.Wait()
	c.log.WithComponent("bybit_connector").Info("bybit connector stopped")
}

func (c *Connector) stream() {
	defer c.wg.Done()

	wsURL := c.cfg.URL
	if wsURL == "" {
		wsURL = defaultWSURL
	}

	args := make([]string, len(c.cfg.Symbols))
	for i, sym := range c.cfg.Symbols {
		args[i] = "publicTrade." + sym
	}

	ws := bybit.NewBybitPublicWebSocket(wsURL, c.handleMessage)
	ws.Connect().SendSubscription(args)

	<-c.ctx.Done()
	ws.Disconnect()
}

type tradeTopic struct {
	Topic string `json:"topic"`
	Data  []struct {
		TradeID string `json:"i"`
		Symbol  string `json:"s"`
		Price   string `json:"p"`
		Size    string `json:"v"`
		Side    string `json:"S"`
		TS      int64  `json:"T"`
	} `json:"data"`
}

func (c *Connector) handleMessage(message string) error {
	var msg tradeTopic
	if err := json.Unmarshal([]byte(message), &msg); err != nil {
		return nil
	}
	if !strings.HasPrefix(msg.Topic, "publicTrade.") {
		return nil
	}

	for _, row := range msg.Data {
		price, err1 := strconv.ParseFloat(row.Price, 64)
		size, err2 := strconv.ParseFloat(row.Size, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		marketID := symbols.MarketID("bybit", row.Symbol, models.MarketTypePerp)
		sent := c.events.Send(c.ctx, models.Trade{
			MarketID:  marketID,
			Price:     price,
			Size:      size,
			Side:      strings.ToLower(row.Side),
			TradeID:   row.TradeID,
			Timestamp: row.TS,
			Source:    "BYBIT_WS",
		})
		if !sent && c.ctx.Err() != nil {
			return c.ctx.Err()
		}
	}
	return nil
}
