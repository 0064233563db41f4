package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Venues    VenuesConfig    `yaml:"venues"`
	Fallback  FallbackConfig  `yaml:"fallback"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Storage   StorageConfig   `yaml:"storage"`
	Budgets   BudgetsConfig   `yaml:"budgets"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type GatewayConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	EventBuffer   int `yaml:"event_buffer"`
	ArchiveBuffer int `yaml:"archive_buffer"`
}

type VenuesConfig struct {
	Binance  VenueFeedConfig `yaml:"binance"`
	Bybit    VenueFeedConfig `yaml:"bybit"`
	Okx      VenueFeedConfig `yaml:"okx"`
	Coinbase VenueFeedConfig `yaml:"coinbase"`
}

type VenueFeedConfig struct {
	Enabled bool     `yaml:"enabled"`
	URL     string   `yaml:"url"`
	Symbols []string `yaml:"symbols"`
}

type FallbackConfig struct {
	CoinGecko     FallbackSourceConfig `yaml:"coingecko"`
	CryptoCompare FallbackSourceConfig `yaml:"cryptocompare"`
	Kucoin        FallbackSourceConfig `yaml:"kucoin"`
}

type FallbackSourceConfig struct {
	Enabled           bool          `yaml:"enabled"`
	URL               string        `yaml:"url"`
	Symbols           []string      `yaml:"symbols"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	RequestsPerSecond int           `yaml:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size"`
}

type IngestConfig struct {
	SpotBucketsMs      []int64       `yaml:"spot_buckets_ms"`
	PerpBucketsMs      []int64       `yaml:"perp_buckets_ms"`
	StaleSweepInterval time.Duration `yaml:"stale_sweep_interval"`
	RollingCandles     bool          `yaml:"rolling_candles"`
}

type SchedulerConfig struct {
	TickInterval      time.Duration `yaml:"tick_interval"`
	IdleThreshold     int           `yaml:"idle_threshold"`
	JitterMin         time.Duration `yaml:"jitter_min"`
	JitterMax         time.Duration `yaml:"jitter_max"`
	HighPriorityFloor int           `yaml:"high_priority_floor"`
	DiscoveryEvery    time.Duration `yaml:"discovery_every"`
	VenueSyncEvery    time.Duration `yaml:"venue_sync_every"`
	CoverageEvery     time.Duration `yaml:"coverage_every"`
	ReverifyEvery     time.Duration `yaml:"reverify_every"`
}

type StorageConfig struct {
	Postgres  PostgresConfig  `yaml:"postgres"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Retention RetentionConfig `yaml:"retention"`
}

type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type ArchiveConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	PathStyle       bool          `yaml:"path_style"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	Compression     string        `yaml:"compression"`
	TimeFormat      string        `yaml:"time_format"`
}

type RetentionConfig struct {
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	TradeWindow   time.Duration `yaml:"trade_window"`
	CandleWindows map[string]time.Duration `yaml:"candle_windows"`
}

type BudgetsConfig struct {
	Daily map[string]int `yaml:"daily"`
}

type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	MaxAge       int    `yaml:"max_age"`
	CloudWatch   bool   `yaml:"cloudwatch"`
	CWNamespace  string `yaml:"cloudwatch_namespace"`
	CWRegion     string `yaml:"cloudwatch_region"`
	ReportPeriod time.Duration `yaml:"report_period"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Channels: ChannelsConfig{
			EventBuffer:   10000,
			ArchiveBuffer: 1000,
		},
		Ingest: IngestConfig{
			SpotBucketsMs:      []int64{1000, 5000, 60000},
			PerpBucketsMs:      []int64{5000, 60000},
			StaleSweepInterval: 2 * time.Second,
			RollingCandles:     true,
		},
		Scheduler: SchedulerConfig{
			TickInterval:      5 * time.Second,
			IdleThreshold:     5,
			JitterMin:         time.Second,
			JitterMax:         3 * time.Second,
			HighPriorityFloor: 100,
			DiscoveryEvery:    24 * time.Hour,
			VenueSyncEvery:    time.Hour,
			CoverageEvery:     30 * time.Minute,
			ReverifyEvery:     24 * time.Hour,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override storage settings from environment variables if available
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		config.Storage.Postgres.DSN = strings.TrimSpace(v)
	}
	if config.Storage.Archive.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.Archive.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.Archive.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.Archive.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.Archive.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.Archive.Bucket = strings.TrimSpace(config.Storage.Archive.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Gateway.Name == "" {
		cfg.Gateway.Name = "airapiserv"
	}
	if cfg.Channels.EventBuffer <= 0 {
		return fmt.Errorf("channels.event_buffer must be positive")
	}
	if cfg.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("scheduler.tick_interval must be positive")
	}
	if cfg.Scheduler.JitterMax < cfg.Scheduler.JitterMin {
		return fmt.Errorf("scheduler.jitter_max must be >= jitter_min")
	}
	if len(cfg.Ingest.SpotBucketsMs) == 0 && len(cfg.Ingest.PerpBucketsMs) == 0 {
		return fmt.Errorf("ingest bucket sizes must not be empty")
	}
	for _, b := range append(append([]int64{}, cfg.Ingest.SpotBucketsMs...), cfg.Ingest.PerpBucketsMs...) {
		if b <= 0 {
			return fmt.Errorf("ingest bucket size must be positive, got %d", b)
		}
	}
	if cfg.Storage.Archive.Enabled && cfg.Storage.Archive.Bucket == "" {
		return fmt.Errorf("storage.archive.bucket is required when archive is enabled")
	}
	return nil
}

// BucketSizes returns the rolling candle bucket sizes for a market type.
func (c *IngestConfig) BucketSizes(marketType string) []int64 {
	if marketType == "perp" && len(c.PerpBucketsMs) > 0 {
		return c.PerpBucketsMs
	}
	return c.SpotBucketsMs
}
