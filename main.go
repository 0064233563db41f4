package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	appconfig "airapiserv/config"
	"airapiserv/connector"
	"airapiserv/connector/binance"
	"airapiserv/connector/bybit"
	"airapiserv/connector/coinbase"
	"airapiserv/connector/fallback"
	"airapiserv/connector/okx"
	"airapiserv/internal/budget"
	"airapiserv/internal/channel"
	"airapiserv/internal/coverage"
	"airapiserv/internal/directory"
	"airapiserv/internal/ingest"
	"airapiserv/internal/ohlcv"
	"airapiserv/internal/scheduler"
	"airapiserv/internal/store"
	"airapiserv/internal/store/memory"
	"airapiserv/internal/store/postgres"
	"airapiserv/internal/token"
	"airapiserv/internal/venue"
	"airapiserv/logger"
	"airapiserv/models"
	"airapiserv/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := appconfig.LoadConfig(appconfig.ResolveConfigPath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}
	if cfg.Logging.CloudWatch {
		logger.InitCloudWatch(cfg.Logging.CWRegion, cfg.Logging.CWNamespace)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Gateway.Name,
		"version": cfg.Gateway.Version,
	}).Info("starting gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Logging.ReportPeriod > 0 {
		logger.StartReport(ctx, log, cfg.Logging.ReportPeriod)
	}

	events := channel.NewEvents(cfg.Channels.EventBuffer)
	defer events.Close()

	var archiveCh chan *models.Candle
	if cfg.Storage.Archive.Enabled {
		archiveCh = make(chan *models.Candle, cfg.Channels.ArchiveBuffer)
	}

	hotCache := memory.NewHotCache()

	var (
		candles store.TimeSeriesStore
		tokens  store.TokenRepo
		catalog store.CatalogRepo
		markets store.MarketRepo
		queue   store.TaskQueue
		metrics store.RequestMetrics
		pgStore *postgres.Store
	)
	if dsn := cfg.Storage.Postgres.DSN; dsn != "" {
		pgStore, err = postgres.Open(dsn, cfg.Storage.Postgres.MaxOpenConns, cfg.Storage.Postgres.MaxIdleConns)
		if err != nil {
			log.WithError(err).Error("Failed to connect to postgres")
			os.Exit(1)
		}
		if err := pgStore.Migrate(ctx); err != nil {
			log.WithError(err).Error("Failed to run postgres migrations")
			os.Exit(1)
		}
		candles, tokens, catalog, markets, queue, metrics = pgStore, pgStore, pgStore, pgStore, pgStore, pgStore
	} else {
		log.WithComponent("main").Warn("no postgres dsn configured, using in-memory stores")
		candles = memory.NewCandleStore()
		tokens = memory.NewTokenRepo()
		catalog = memory.NewCatalogRepo()
		markets = memory.NewMarketRepo()
		queue = memory.NewTaskQueue()
		metrics = memory.NewRequestMetrics()
	}

	budgets := budget.NewService(hotCache, cfg.Budgets.Daily)

	cacheTTL := cfg.Storage.Retention.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 15 * time.Minute
	}
	orchestrator := ingest.NewOrchestrator(events, hotCache, candles, markets, cfg.Ingest, cacheTTL, archiveCh)
	if err := orchestrator.Start(ctx); err != nil {
		log.WithError(err).Error("Failed to start orchestrator")
		os.Exit(1)
	}

	var connectors []connector.Connector
	if cfg.Venues.Binance.Enabled {
		connectors = append(connectors, binance.New(cfg.Venues.Binance, events))
	}
	if cfg.Venues.Bybit.Enabled {
		connectors = append(connectors, bybit.New(cfg.Venues.Bybit, events))
	}
	if cfg.Venues.Okx.Enabled {
		connectors = append(connectors, okx.New(cfg.Venues.Okx, events))
	}
	if cfg.Venues.Coinbase.Enabled {
		connectors = append(connectors, coinbase.New(cfg.Venues.Coinbase, events))
	}
	if cfg.Fallback.CoinGecko.Enabled {
		connectors = append(connectors, fallback.NewCoinGecko(cfg.Fallback.CoinGecko, events, budgets))
	}
	if cfg.Fallback.CryptoCompare.Enabled {
		connectors = append(connectors, fallback.NewCryptoCompare(cfg.Fallback.CryptoCompare, events, budgets))
	}
	if cfg.Fallback.Kucoin.Enabled {
		connectors = append(connectors, fallback.NewKucoin(cfg.Fallback.Kucoin, events))
	}

	started := make([]connector.Connector, 0, len(connectors))
	for _, c := range connectors {
		if err := c.Start(ctx); err != nil {
			log.WithError(err).WithFields(logger.Fields{"connector": c.Name()}).Warn("connector failed to start")
			continue
		}
		started = append(started, c)
	}

	sources := []directory.Source{
		directory.CoinGecko{APIKey: os.Getenv("COINGECKO_API_KEY")},
		directory.CryptoCompare{APIKey: os.Getenv("CRYPTOCOMPARE_API_KEY")},
	}
	if key := os.Getenv("COINMARKETCAP_API_KEY"); key != "" {
		sources = append(sources, directory.CoinMarketCap{APIKey: key})
	}
	if key := os.Getenv("DEXTOOLS_API_KEY"); key != "" {
		sources = append(sources, directory.DexTools{APIKey: key})
	}
	if key := os.Getenv("CODEX_API_KEY"); key != "" {
		sources = append(sources, directory.Codex{APIKey: key})
	}
	dirAggregator := directory.NewAggregator(budgets, sources...)

	venues := []scheduler.VenueLister{
		venue.Binance{},
		venue.Bybit{},
		venue.Okx{},
		venue.Kucoin{},
		venue.Coinbase{},
		venue.Kraken{},
		venue.Gate{},
	}

	runner := scheduler.NewRunner(
		queue,
		dirAggregator,
		token.NewResolver(),
		tokens,
		catalog,
		markets,
		coverage.NewEngine(tokens, markets),
		candles,
		ohlcv.NewClient(),
		venues,
		cfg.Scheduler,
	)
	if err := runner.Bootstrap(ctx); err != nil {
		log.WithError(err).Error("Failed to seed periodic tasks")
		os.Exit(1)
	}

	idle := scheduler.NewIdleScheduler(runner, queue, metrics, cfg.Scheduler)
	if err := idle.Start(ctx); err != nil {
		log.WithError(err).Error("Failed to start idle scheduler")
		os.Exit(1)
	}

	var archiver *writer.CandleArchiver
	if cfg.Storage.Archive.Enabled {
		archiver, err = writer.NewCandleArchiver(cfg.Storage.Archive, archiveCh)
		if err != nil {
			log.WithError(err).Error("Failed to create candle archiver")
			os.Exit(1)
		}
		if err := archiver.Start(ctx); err != nil {
			log.WithError(err).Error("Failed to start candle archiver")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("candle archive disabled; skipping archiver")
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	log.Info("stopping connectors")
	for _, c := range started {
		c.Stop()
	}

	log.Info("stopping idle scheduler")
	idle.Stop()

	log.Info("stopping orchestrator")
	orchestrator.Stop()

	if archiver != nil {
		log.Info("stopping candle archiver")
		archiver.Stop()
	}

	if pgStore != nil {
		if err := pgStore.Close(); err != nil {
			log.WithError(err).Warn("failed to close postgres")
		}
	}

	log.Info("gateway stopped")
}
