// Package coinbase streams matches and tickers from the Coinbase Exchange
// websocket.
package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"airapiserv/config"
	"airapiserv/internal/channel"
	"airapiserv/internal/symbols"
	"airapiserv/logger"
	"airapiserv/models"
)

const defaultWSURL = "wss://ws-feed.exchange.coinbase.com"

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

func (c *Connector) Name() string { return "coinbase" }

func (c *Connector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("coinbase connector already running")
	}
	c.running = true
	c.ctx = ctx
	c.mu.Unlock()

	log := c.log.WithComponent("coinbase_connector")
	if !c.cfg.Enabled {
		log.Warn("coinbase feed is disabled")
		return fmt.Errorf("coinbase feed is disabled")
	}

	log.WithFields(logger.Fields{"products": c.cfg.Symbols}).Info("starting coinbase connector")
	c.wg.Add(1)
	go c.stream()
	return nil
}

func (c *Connector) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.log.WithComponent("coinbase_connector").Info("stopping coinbase connector")
	c.wg.Wait()
	c.log.WithComponent("coinbase_connector").Info("coinbase connector stopped")
}

func (c *Connector) stream() {
	defer c.wg.Done()
	log := c.log.WithComponent("coinbase_connector").WithFields(logger.Fields{"worker": "stream"})

	wsURL := c.cfg.URL
	if wsURL == "" {
		wsURL = defaultWSURL
	}

	for {
		if c.ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			log.WithError(err).Warn("failed to connect websocket, retrying")
			select {
			case <-time.After(5 * time.Second):
				continue
			case <-c.ctx.Done():
				return
			}
		}

		sub := map[string]any{
			"type":        "subscribe",
			"product_ids": c.cfg.Symbols,
			"channels":    []string{"matches", "ticker"},
		}
		if err := conn.WriteJSON(sub); err != nil {
			log.WithError(err).Warn("failed to subscribe")
			conn.Close()
			continue
		}

		closer := make(chan struct{})
		go func() {
			select {
			case <-c.ctx.Done():
				conn.Close()
			case <-closer:
			}
		}()

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				if c.ctx.Err() == nil {
					log.WithError(err).Warn("websocket read failed, reconnecting")
				}
				break
			}
			c.handleMessage(payload)
		}
		close(closer)
		conn.Close()
	}
}

type feedMessage struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	TradeID   int64  `json:"trade_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	LastSize  string `json:"last_size"`
	BestBid   string `json:"best_bid"`
	BestAsk   string `json:"best_ask"`
	Side      string `json:"side"`
	Time      string `json:"time"`
}

func (c *Connector) handleMessage(payload []byte) {
	var msg feedMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return
	}
	marketID := symbols.MarketID("coinbase", msg.ProductID, models.MarketTypeSpot)

	switch msg.Type {
	case "match", "last_match":
		price, err1 := strconv.ParseFloat(msg.Price, 64)
		size, err2 := strconv.ParseFloat(msg.Size, 64)
		if err1 != nil || err2 != nil {
			return
		}
		c.events.Send(c.ctx, models.Trade{
			MarketID:  marketID,
			Price:     price,
			Size:      size,
			Side:      msg.Side,
			TradeID:   strconv.FormatInt(msg.TradeID, 10),
			Timestamp: parseTime(msg.Time),
			Source:    "COINBASE_WS",
		})
	case "ticker":
		price, err := strconv.ParseFloat(msg.Price, 64)
		if err != nil {
			return
		}
		bid, _ := strconv.ParseFloat(msg.BestBid, 64)
		ask, _ := strconv.ParseFloat(msg.BestAsk, 64)
		c.events.Send(c.ctx, models.Ticker{
			MarketID:  marketID,
			Last:      price,
			BestBid:   bid,
			BestAsk:   ask,
			Timestamp: parseTime(msg.Time),
			Source:    "COINBASE_WS",
		})
	}
}

func parseTime(value string) int64 {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Now().UnixMilli()
	}
	return t.UnixMilli()
}
