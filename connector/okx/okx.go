// Package okx streams public trades and tickers from the OKX v5 websocket.
package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"airapiserv/config"
	"airapiserv/internal/channel"
	"airapiserv/internal/symbols"
	"airapiserv/logger"
	"airapiserv/models"
)

const defaultWSURL = "wss://ws.okx.com:8443/ws/v5/public"

// Connector subscribes to trade and ticker channels for the configured
// instruments. The connection is re-established automatically until the
// context is cancelled.
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

func (c *Connector) Name() string { return "okx" }

func (c *Connector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("okx connector already running")
	}
	c.running = true
	c.ctx = ctx
	c.mu.Unlock()

	log := c.log.WithComponent("okx_connector")
	if !c.cfg.Enabled {
		log.Warn("okx feed is disabled")
		return fmt.Errorf("okx feed is disabled")
	}

	log.WithFields(logger.Fields{"symbols": c.cfg.Symbols}).Info("starting okx connector")
	c.wg.Add(1)
	go c.stream()
	return nil
}

func (c *Connector) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.log.WithComponent("okx_connector").Info("stopping okx connector")
	c.wg.Wait()
	c.log.WithComponent("okx_connector").Info("okx connector stopped")
}

func (c *Connector) stream() {
	defer c.wg.Done()
	log := c.log.WithComponent("okx_connector").WithFields(logger.Fields{"worker": "stream"})

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

		args := make([]map[string]string, 0, 2*len(c.cfg.Symbols))
		for _, sym := range c.cfg.Symbols {
			args = append(args,
				map[string]string{"channel": "trades", "instId": sym},
				map[string]string{"channel": "tickers", "instId": sym})
		}
		sub := map[string]any{"op": "subscribe", "args": args}
		if err := conn.WriteJSON(sub); err != nil {
			log.WithError(err).Warn("failed to subscribe")
			conn.Close()
			continue
		}

		pingTicker := time.NewTicker(20 * time.Second)
		done := make(chan struct{})
		go func() {
			defer pingTicker.Stop()
			for {
				select {
				case <-done:
					return
				case <-c.ctx.Done():
					conn.Close()
					return
				case <-pingTicker.C:
					conn.WriteMessage(websocket.TextMessage, []byte("ping"))
				}
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
		close(done)
		conn.Close()
	}
}

type wsMessage struct {
	Arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data json.RawMessage `json:"data"`
}

func (c *Connector) handleMessage(payload []byte) {
	if string(payload) == "pong" {
		return
	}
	var msg wsMessage
	if err := json.Unmarshal(payload, &msg); err != nil || len(msg.Data) == 0 {
		return
	}

	marketType := models.MarketTypeSpot
	if strings.HasSuffix(msg.Arg.InstID, "-SWAP") {
		marketType = models.MarketTypePerp
	}
	marketID := symbols.MarketID("okx", msg.Arg.InstID, marketType)

	switch msg.Arg.Channel {
	case "trades":
		c.handleTrades(marketID, msg.Data)
	case "tickers":
		c.handleTickers(marketID, msg.Data)
	}
}

func (c *Connector) handleTrades(marketID string, data json.RawMessage) {
	var rows []struct {
		TradeID string `json:"tradeId"`
		Price   string `json:"px"`
		Size    string `json:"sz"`
		Side    string `json:"side"`
		TS      string `json:"ts"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return
	}
	for _, row := range rows {
		price, err1 := strconv.ParseFloat(row.Price, 64)
		size, err2 := strconv.ParseFloat(row.Size, 64)
		ts, err3 := strconv.ParseInt(row.TS, 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		c.events.Send(c.ctx, models.Trade{
			MarketID:  marketID,
			Price:     price,
			Size:      size,
			Side:      row.Side,
			TradeID:   row.TradeID,
			Timestamp: ts,
			Source:    "OKX_WS",
		})
	}
}

func (c *Connector) handleTickers(marketID string, data json.RawMessage) {
	var rows []struct {
		Last   string `json:"last"`
		BidPx  string `json:"bidPx"`
		AskPx  string `json:"askPx"`
		MarkPx string `json:"markPx"`
		TS     string `json:"ts"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return
	}
	for _, row := range rows {
		last, err := strconv.ParseFloat(row.Last, 64)
		if err != nil {
			continue
		}
		ts, _ := strconv.ParseInt(row.TS, 10, 64)
		bid, _ := strconv.ParseFloat(row.BidPx, 64)
		ask, _ := strconv.ParseFloat(row.AskPx, 64)
		mark, _ := strconv.ParseFloat(row.MarkPx, 64)
		c.events.Send(c.ctx, models.Ticker{
			MarketID:  marketID,
			Last:      last,
			Mark:      mark,
			BestBid:   bid,
			BestAsk:   ask,
			Timestamp: ts,
			Source:    "OKX_WS",
		})
	}
}
