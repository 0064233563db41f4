package okx

import (
	"context"
	"testing"

	"airapiserv/config"
	"airapiserv/internal/channel"
	"airapiserv/models"
)

func newTestConnector() (*Connector, *channel.Events) {
	events := channel.NewEvents(16)
	c := New(config.VenueFeedConfig{Enabled: true, Symbols: []string{"BTC-USDT-SWAP"}}, events)
	c.ctx = context.Background()
	return c, events
}

func TestHandleTradeMessage(t *testing.T) {
	c, events := newTestConnector()

	c.handleMessage([]byte(`{"arg":{"channel":"trades","instId":"BTC-USDT-SWAP"},
		"data":[{"tradeId":"1","px":"50000.5","sz":"0.25","side":"buy","ts":"1700000000000"}]}`))

	select {
	case ev := <-events.C:
		trade, ok := ev.(models.Trade)
		if !ok {
			t.Fatalf("event = %T", ev)
		}
		if trade.MarketID != "okx:BTCUSDT:perp" {
			t.Errorf("market id = %s", trade.MarketID)
		}
		if trade.Price != 50000.5 || trade.Size != 0.25 || trade.Side != "buy" || trade.Timestamp != 1700000000000 {
			t.Errorf("trade = %+v", trade)
		}
		if trade.Source != "OKX_WS" {
			t.Errorf("source = %s", trade.Source)
		}
	default:
		t.Fatal("no event emitted")
	}
}

func TestHandleTickerMessage(t *testing.T) {
	c, events := newTestConnector()

	c.handleMessage([]byte(`{"arg":{"channel":"tickers","instId":"ETH-USDT"},
		"data":[{"last":"3000","bidPx":"2999","askPx":"3001","ts":"1700000000000"}]}`))

	select {
	case ev := <-events.C:
		ticker, ok := ev.(models.Ticker)
		if !ok {
			t.Fatalf("event = %T", ev)
		}
		if ticker.MarketID != "okx:ETHUSDT:spot" || ticker.Last != 3000 || ticker.BestBid != 2999 {
			t.Errorf("ticker = %+v", ticker)
		}
	default:
		t.Fatal("no event emitted")
	}
}

func TestHandleMalformedMessage(t *testing.T) {
	c, events := newTestConnector()

	c.handleMessage([]byte(`pong`))
	c.handleMessage([]byte(`{"event":"subscribe","arg":{"channel":"trades"}}`))
	c.handleMessage([]byte(`{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[{"px":"not-a-number"}]}`))

	select {
	case ev := <-events.C:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}
