package models

// EventKind identifies a MarketEvent variant.
type EventKind string

const (
	KindTrade     EventKind = "trade"
	KindTicker    EventKind = "ticker"
	KindOrderBook EventKind = "orderbook"
	KindFunding   EventKind = "funding"
	KindCandle    EventKind = "candle"
)

// MarketEvent is the canonical event emitted by venue connectors. All variants
// are immutable once emitted except *Candle, which the aggregator mutates in
// place until it is finalized.
type MarketEvent interface {
	Kind() EventKind
	Market() string
}

// Trade is a single executed trade on a venue market.
type Trade struct {
	MarketID  string
	Price     float64
	Size      float64
	Side      string
	TradeID   string
	Timestamp int64 // unix millis
	Source    string
}

func (Trade) Kind() EventKind  { return KindTrade }
func (t Trade) Market() string { return t.MarketID }

// Ticker is a top-of-book / last-price snapshot. Mark, BestBid and BestAsk
// are zero when the venue does not report them.
type Ticker struct {
	MarketID  string
	Last      float64
	Mark      float64
	BestBid   float64
	BestAsk   float64
	Timestamp int64
	Source    string
}

func (Ticker) Kind() EventKind  { return KindTicker }
func (t Ticker) Market() string { return t.MarketID }

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price float64
	Size  float64
}

// OrderBook is a (partial) order book snapshot.
type OrderBook struct {
	MarketID  string
	Bids      []BookLevel
	Asks      []BookLevel
	Timestamp int64
	Source    string
}

func (OrderBook) Kind() EventKind  { return KindOrderBook }
func (b OrderBook) Market() string { return b.MarketID }

// Funding carries a perpetual funding rate update.
type Funding struct {
	MarketID    string
	Rate        float64
	NextFunding int64
	Timestamp   int64
	Source      string
}

func (Funding) Kind() EventKind  { return KindFunding }
func (f Funding) Market() string { return f.MarketID }

// Candle is an OHLCV bucket for one market and one interval. Rolling candles
// are owned by the aggregator and updated in place; once IsFinal is set the
// candle must never be mutated again.
type Candle struct {
	MarketID    string
	StartTs     int64 // bucket start, unix millis
	IntervalMs  int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	TradesCount int64
	IsFinal     bool
	Rolling     bool
	Source      string
}

func (*Candle) Kind() EventKind  { return KindCandle }
func (c *Candle) Market() string { return c.MarketID }
