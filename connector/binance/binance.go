// Package binance streams spot trades and 1m klines through the official
// websocket endpoints.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	binance "github.com/adshao/go-binance/v2"

	"airapiserv/config"
	"airapiserv/internal/channel"
	"airapiserv/internal/symbols"
	"airapiserv/logger"
	"airapiserv/models"
)

const klineInterval = "1m"

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

func (c *Connector) Name() string { return "binance" }

func (c *Connector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("binance connector already running")
	}
	c.running = true
	c.ctx = ctx
	c.mu.Unlock()

	log := c.log.WithComponent("binance_connector")
	if !c.cfg.Enabled {
		log.Warn("binance feed is disabled")
		return fmt.Errorf("binance feed is disabled")
	}

	log.WithFields(logger.Fields{"symbols": c.cfg.Symbols}).Info("starting binance connector")
	for _, sym := range c.cfg.Symbols {
		c.wg.Add(2)
		go c.tradeStream(sym)
		go c.klineStream(sym)
	}
	return nil
}

func (c *Connector) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.log.WithComponent("binance_connector").Info("stopping binance connector")
	c.wg.Wait()
	c.log.WithComponent("binance_connector").Info("binance connector stopped")
}

// tradeStream keeps one trade subscription alive for a symbol, reconnecting
// whenever the SDK's done channel closes.
func (c *Connector) tradeStream(symbol string) {
	defer c.wg.Done()
	log := c.log.WithComponent("binance_connector").WithFields(logger.Fields{"symbol": symbol, "worker": "trade_stream"})
	marketID := symbols.MarketID("binance", symbol, models.MarketTypeSpot)

	handler := func(event *binance.WsTradeEvent) {
		price, err1 := strconv.ParseFloat(event.Price, 64)
		size, err2 := strconv.ParseFloat(event.Quantity, 64)
		if err1 != nil || err2 != nil {
			return
		}
		side := "buy"
		if event.IsBuyerMaker {
			side = "sell"
		}
		c.events.Send(c.ctx, models.Trade{
			MarketID:  marketID,
			Price:     price,
			Size:      size,
			Side:      side,
			TradeID:   strconv.FormatInt(event.TradeID, 10),
			Timestamp: event.TradeTime,
			Source:    "BINANCE_WS",
		})
	}
	errHandler := func(err error) {
		log.WithError(err).Warn("trade stream error")
	}

	for {
		if c.ctx.Err() != nil {
			return
		}
		doneC, stopC, err := binance.WsTradeServe(symbol, handler, errHandler)
		if err != nil {
			log.WithError(err).Warn("failed to open trade stream, retrying")
			select {
			case <-time.After(5 * time.Second):
				continue
			case <-c.ctx.Done():
				return
			}
		}
		select {
		case <-c.ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
			log.Warn("trade stream closed, reconnecting")
		}
	}
}

// klineStream mirrors tradeStream for 1m candles. Only final klines become
// candle events; rolling progress comes from the trade aggregator instead.
func (c *Connector) klineStream(symbol string) {
	defer c.wg.Done()
	log := c.log.WithComponent("binance_connector").WithFields(logger.Fields{"symbol": symbol, "worker": "kline_stream"})
	marketID := symbols.MarketID("binance", symbol, models.MarketTypeSpot)

	handler := func(event *binance.WsKlineEvent) {
		k := event.Kline
		if !k.IsFinal {
			return
		}
		open, err1 := strconv.ParseFloat(k.Open, 64)
		high, err2 := strconv.ParseFloat(k.High, 64)
		low, err3 := strconv.ParseFloat(k.Low, 64)
		closePrice, err4 := strconv.ParseFloat(k.Close, 64)
		volume, err5 := strconv.ParseFloat(k.Volume, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			return
		}
		c.events.Send(c.ctx, &models.Candle{
			MarketID:    marketID,
			StartTs:     k.StartTime,
			IntervalMs:  60_000,
			Open:        open,
			High:        high,
			Low:         low,
			Close:       closePrice,
			Volume:      volume,
			TradesCount: k.TradeNum,
			IsFinal:     true,
			Source:      "BINANCE_WS",
		})
	}
	errHandler := func(err error) {
		log.WithError(err).Warn("kline stream error")
	}

	for {
		if c.ctx.Err() != nil {
			return
		}
		doneC, stopC, err := binance.WsKlineServe(symbol, klineInterval, handler, errHandler)
		if err != nil {
			log.WithError(err).Warn("failed to open kline stream, retrying")
			select {
			case <-time.After(5 * time.Second):
				continue
			case <-c.ctx.Done():
				return
			}
		}
		select {
		case <-c.ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
			log.Warn("kline stream closed, reconnecting")
		}
	}
}
