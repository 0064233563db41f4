package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"airapiserv/config"
	"airapiserv/internal/channel"
	"airapiserv/internal/store"
	"airapiserv/internal/symbols"
	"airapiserv/internal/venue"
	"airapiserv/logger"
	"airapiserv/models"
)

// overrideAllowList limits which env keys operators may override through the
// hot cache.
var overrideAllowList = map[string]bool{
	"LOG_LEVEL":             true,
	"COINGECKO_API_KEY":     true,
	"COINMARKETCAP_API_KEY": true,
	"CRYPTOCOMPARE_API_KEY": true,
	"DEXTOOLS_API_KEY":      true,
	"CODEX_API_KEY":         true,
}

// Orchestrator is the single consumer of the event channel. It routes events
// to the hot cache, the rolling candle aggregator and the candle sinks, and
// keeps the market catalog in sync with what the connectors actually stream.
type Orchestrator struct {
	events     *channel.Events
	cache      store.HotCache
	candles    store.TimeSeriesStore
	markets    store.MarketRepo
	aggregator *Aggregator
	archive    chan<- *models.Candle
	cfg        config.IngestConfig
	cacheTTL   time.Duration

	seenMarkets map[string]bool

	running    bool
	mutex      sync.RWMutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	log        *logger.Entry
}

// NewOrchestrator wires the consumer. archive may be nil when candle
// archiving is disabled.
func NewOrchestrator(
	events *channel.Events,
	cache store.HotCache,
	candles store.TimeSeriesStore,
	markets store.MarketRepo,
	cfg config.IngestConfig,
	cacheTTL time.Duration,
	archive chan<- *models.Candle,
) *Orchestrator {
	o := &Orchestrator{
		events:      events,
		cache:       cache,
		candles:     candles,
		markets:     markets,
		archive:     archive,
		cfg:         cfg,
		cacheTTL:    cacheTTL,
		seenMarkets: make(map[string]bool),
		log:         logger.GetLogger().WithComponent("orchestrator"),
	}
	o.aggregator = NewAggregator(cfg.BucketSizes, nil)
	return o
}

func (o *Orchestrator) Start(ctx context.Context) error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if o.running {
		return fmt.Errorf("orchestrator already running")
	}

	o.applyConfigOverrides(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel
	o.aggregator.onFinal = func(c *models.Candle) { o.persistFinal(runCtx, c) }
	o.running = true

	o.wg.Add(1)
	go o.consumeLoop(runCtx)

	o.log.Info("orchestrator started")
	return nil
}

func (o *Orchestrator) Stop() {
	o.mutex.Lock()
	if !o.running {
		o.mutex.Unlock()
		return
	}
	o.running = false
	o.cancelFunc()
	o.mutex.Unlock()

	o.wg.Wait()
	o.log.Info("orchestrator stopped")
}

// applyConfigOverrides reads the operator override hash from the hot cache
// and applies allow-listed keys to the environment.
func (o *Orchestrator) applyConfigOverrides(ctx context.Context) {
	raw, ok, err := o.cache.Get(ctx, "config:overrides")
	if err != nil {
		o.log.WithError(err).Warn("failed to read config overrides")
		return
	}
	if !ok {
		return
	}
	var overrides map[string]string
	if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
		o.log.WithError(err).Warn("malformed config overrides, ignoring")
		return
	}
	applied := 0
	for key, value := range overrides {
		if !overrideAllowList[key] {
			o.log.WithFields(logger.Fields{"key": key}).Warn("override key not allow-listed, skipping")
			continue
		}
		os.Setenv(key, value)
		applied++
	}
	if applied > 0 {
		o.log.WithFields(logger.Fields{"applied": applied}).Info("config overrides applied")
	}
}

func (o *Orchestrator) consumeLoop(ctx context.Context) {
	defer o.wg.Done()

	sweep := time.NewTicker(o.cfg.StaleSweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			// Flush whatever is still open so a restart loses at most the
			// current buckets' tail.
			o.aggregator.SweepStale(time.Now().UnixMilli() + time.Hour.Milliseconds())
			return
		case <-sweep.C:
			if n := o.aggregator.SweepStale(time.Now().UnixMilli()); n > 0 {
				o.log.WithFields(logger.Fields{"finalized": n}).Debug("stale candle sweep")
			}
		case ev, open := <-o.events.C:
			if !open {
				return
			}
			o.handleEvent(ctx, ev)
		}
	}
}

func (o *Orchestrator) handleEvent(ctx context.Context, ev models.MarketEvent) {
	logger.IncrementEventRead(1)
	o.ensureMarket(ctx, ev.Market())

	switch e := ev.(type) {
	case models.Trade:
		o.cacheJSON(ctx, "trade:"+e.MarketID, e)
		o.aggregator.Apply(e)
		o.cacheRollingCandles(ctx, e.MarketID)
	case models.Ticker:
		o.cacheJSON(ctx, "ticker:"+e.MarketID, e)
	case models.Funding:
		o.cacheJSON(ctx, "funding:"+e.MarketID, e)
	case *models.Candle:
		if e.IsFinal {
			o.persistFinal(ctx, e)
		}
	case models.OrderBook:
		// Books are not cached; connectors emit them for future consumers.
	default:
		o.log.WithFields(logger.Fields{"kind": ev.Kind()}).Warn("unhandled event kind")
	}
}

// ensureMarket upserts catalog coverage the first time a market shows up on
// the stream.
func (o *Orchestrator) ensureMarket(ctx context.Context, marketID string) {
	if o.seenMarkets[marketID] {
		return
	}
	o.seenMarkets[marketID] = true

	venueName, venueSymbol, marketType := symbols.ParseMarketID(marketID)
	base, quote := symbols.SplitPair(venueSymbol)
	caps := venue.Capabilities(venueName)
	status := "streaming"
	if !caps.WSTrades {
		status = "polled"
	}
	err := o.markets.UpsertMarket(ctx, &models.VenueMarket{
		Venue:       venueName,
		MarketType:  marketType,
		BaseSymbol:  base,
		QuoteSymbol: quote,
		VenueSymbol: venueSymbol,
		Status:      status,
	})
	if err != nil {
		o.log.WithError(err).WithFields(logger.Fields{"market_id": marketID}).Warn("market coverage upsert failed")
	}
}

func (o *Orchestrator) cacheJSON(ctx context.Context, key string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		o.log.WithError(err).WithFields(logger.Fields{"key": key}).Warn("cache marshal failed")
		return
	}
	if err := o.cache.Set(ctx, key, string(payload), o.cacheTTL); err != nil {
		o.log.WithError(err).WithFields(logger.Fields{"key": key}).Warn("cache write failed")
	}
}

// cacheRollingCandles publishes the open buckets of one market so readers see
// candles mid-flight, not only after finalization.
func (o *Orchestrator) cacheRollingCandles(ctx context.Context, marketID string) {
	_, _, marketType := symbols.ParseMarketID(marketID)
	for _, size := range o.cfg.BucketSizes(marketType) {
		if snap := o.aggregator.Snapshot(marketID, size); snap != nil {
			o.cacheJSON(ctx, fmt.Sprintf("candle:%s:%d", marketID, size), snap)
		}
	}
}

// persistFinal fans a finalized candle out to the time-series store and the
// archive channel. Failures are logged and the candle is lost; there is no
// write-ahead log.
func (o *Orchestrator) persistFinal(ctx context.Context, c *models.Candle) {
	if err := o.candles.InsertCandle(ctx, c); err != nil {
		o.log.WithError(err).WithFields(logger.Fields{
			"market_id": c.MarketID,
			"interval":  c.IntervalMs,
			"start_ts":  c.StartTs,
		}).Error("candle persist failed")
	} else {
		logger.IncrementCandleWrite()
	}

	if o.archive != nil {
		select {
		case o.archive <- c:
		default:
			o.log.WithFields(logger.Fields{"market_id": c.MarketID}).Warn("archive channel full, candle not archived")
		}
	}
}
