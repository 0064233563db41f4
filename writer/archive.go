// Package writer archives finalized candles to S3 as partitioned Parquet
// files. Batches are keyed per market and flushed on an interval or when a
// buffer fills up, then uploaded by a small worker pool.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "airapiserv/config"
	"airapiserv/internal/symbols"
	"airapiserv/logger"
	"airapiserv/models"
)

const (
	defaultMaxBuffer     = 512
	defaultFlushInterval = 30 * time.Second
	defaultUploadWorkers = 2
)

type candleParquetRecord struct {
	MarketID    string  `parquet:"name=market_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Venue       string  `parquet:"name=venue, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol      string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	MarketType  string  `parquet:"name=market_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	StartTs     int64   `parquet:"name=start_ts, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	IntervalMs  int64   `parquet:"name=interval_ms, type=INT64"`
	Open        float64 `parquet:"name=open, type=DOUBLE"`
	High        float64 `parquet:"name=high, type=DOUBLE"`
	Low         float64 `parquet:"name=low, type=DOUBLE"`
	Close       float64 `parquet:"name=close, type=DOUBLE"`
	Volume      float64 `parquet:"name=volume, type=DOUBLE"`
	TradesCount int64   `parquet:"name=trades_count, type=INT64"`
	Source      string  `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type candleBatch struct {
	MarketID string
	Entries  []*models.Candle
	Reason   string
}

type memFile struct {
	buffer *bytes.Buffer
}

func newMemFile() *memFile {
	return &memFile{buffer: &bytes.Buffer{}}
}

func (m *memFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFile) Read([]byte) (int, error)                  { return 0, fmt.Errorf("read not supported") }
func (m *memFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFile) Close() error                              { return nil }
func (m *memFile) Bytes() []byte                             { return m.buffer.Bytes() }

// CandleArchiver drains the archive channel and writes candle batches to S3.
type CandleArchiver struct {
	cfg      appconfig.ArchiveConfig
	candles  <-chan *models.Candle
	s3Client *s3.Client

	ctx      context.Context
	cancel   context.CancelFunc
	wg       *sync.WaitGroup
	uploadWg *sync.WaitGroup

	log *logger.Log

	mu        sync.Mutex
	buffer    map[string][]*models.Candle
	maxBuffer int

	jobCh   chan candleBatch
	running bool
}

// NewCandleArchiver builds the archiver and its S3 client.
func NewCandleArchiver(cfg appconfig.ArchiveConfig, candles <-chan *models.Candle) (*CandleArchiver, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("candle archive disabled")
	}
	if candles == nil {
		return nil, fmt.Errorf("nil candle channel provided")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &CandleArchiver{
		cfg:       cfg,
		candles:   candles,
		s3Client:  s3Client,
		wg:        &sync.WaitGroup{},
		uploadWg:  &sync.WaitGroup{},
		log:       logger.GetLogger(),
		buffer:    make(map[string][]*models.Candle),
		maxBuffer: defaultMaxBuffer,
		jobCh:     make(chan candleBatch, defaultMaxBuffer),
	}, nil
}

// Start launches the ingestion, flush and upload workers.
func (a *CandleArchiver) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("candle archiver already running")
	}
	a.running = true
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.buffer = make(map[string][]*models.Candle)
	a.mu.Unlock()

	a.log.WithComponent("candle_archiver").WithFields(logger.Fields{
		"bucket":         a.cfg.Bucket,
		"flush_interval": a.flushInterval().String(),
	}).Info("starting candle archiver")

	a.wg.Add(2)
	go a.ingest()
	go a.flushLoop()

	for i := 0; i < defaultUploadWorkers; i++ {
		a.uploadWg.Add(1)
		go a.uploadWorker()
	}
	return nil
}

// Stop flushes pending buffers and waits for uploads to finish.
func (a *CandleArchiver) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.wg.Wait()

	a.flushBuffers("shutdown")
	close(a.jobCh)
	a.uploadWg.Wait()
	a.log.WithComponent("candle_archiver").Info("candle archiver stopped")
}

func (a *CandleArchiver) flushInterval() time.Duration {
	if a.cfg.FlushInterval > 0 {
		return a.cfg.FlushInterval
	}
	return defaultFlushInterval
}

func (a *CandleArchiver) ingest() {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case candle, ok := <-a.candles:
			if !ok {
				a.flushBuffers("channel_closed")
				return
			}
			if candle == nil || !candle.IsFinal {
				continue
			}
			a.addCandle(candle)
		}
	}
}

func (a *CandleArchiver) flushLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.flushInterval())
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.flushBuffers("interval")
		}
	}
}

func (a *CandleArchiver) uploadWorker() {
	defer a.uploadWg.Done()
	for batch := range a.jobCh {
		a.processBatch(batch)
	}
}

func (a *CandleArchiver) addCandle(candle *models.Candle) {
	var flushEntries []*models.Candle
	a.mu.Lock()
	a.buffer[candle.MarketID] = append(a.buffer[candle.MarketID], candle)
	if len(a.buffer[candle.MarketID]) >= a.maxBuffer {
		flushEntries = a.buffer[candle.MarketID]
		delete(a.buffer, candle.MarketID)
	}
	a.mu.Unlock()

	if len(flushEntries) > 0 {
		a.enqueueBatch(candle.MarketID, flushEntries, "max_buffer")
	}
}

func (a *CandleArchiver) flushBuffers(reason string) {
	a.mu.Lock()
	buffers := a.buffer
	a.buffer = make(map[string][]*models.Candle)
	a.mu.Unlock()

	for marketID, entries := range buffers {
		if len(entries) == 0 {
			continue
		}
		a.enqueueBatch(marketID, entries, reason)
	}
}

func (a *CandleArchiver) enqueueBatch(marketID string, entries []*models.Candle, reason string) {
	batch := candleBatch{MarketID: marketID, Entries: entries, Reason: reason}
	select {
	case a.jobCh <- batch:
	default:
		// Drop instead of blocking the consumer when uploads fall behind.
		a.log.WithComponent("candle_archiver").WithFields(logger.Fields{
			"market_id":    marketID,
			"record_count": len(entries),
		}).Warn("archive job queue full, dropping batch")
	}
}

func (a *CandleArchiver) processBatch(batch candleBatch) {
	entryLog := a.log.WithComponent("candle_archiver").WithFields(logger.Fields{
		"market_id":    batch.MarketID,
		"record_count": len(batch.Entries),
		"reason":       batch.Reason,
	})

	key := a.generateS3Key(batch)
	data, err := a.createParquet(batch)
	if err != nil {
		entryLog.WithError(err).Error("failed to create candle parquet")
		return
	}

	if err := a.uploadToS3(key, data); err != nil {
		entryLog.WithError(err).WithFields(logger.Fields{"key": key}).Error("failed to upload candle parquet")
		return
	}

	logger.IncrementArchiveWrite(int64(len(data)))
	entryLog.WithFields(logger.Fields{
		"s3_key":    key,
		"file_size": len(data),
	}).Info("candle batch uploaded")
}

func (a *CandleArchiver) createParquet(batch candleBatch) ([]byte, error) {
	mem := newMemFile()
	pw, err := writer.NewParquetWriter(mem, new(candleParquetRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch strings.ToLower(a.cfg.Compression) {
	case "snappy", "":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, candle := range batch.Entries {
		if err := pw.Write(toParquetRecord(candle)); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet: %w", err)
	}
	return mem.Bytes(), nil
}

func toParquetRecord(candle *models.Candle) candleParquetRecord {
	venue, symbol, marketType := symbols.ParseMarketID(candle.MarketID)
	return candleParquetRecord{
		MarketID:    candle.MarketID,
		Venue:       venue,
		Symbol:      symbol,
		MarketType:  marketType,
		StartTs:     candle.StartTs,
		IntervalMs:  candle.IntervalMs,
		Open:        candle.Open,
		High:        candle.High,
		Low:         candle.Low,
		Close:       candle.Close,
		Volume:      candle.Volume,
		TradesCount: candle.TradesCount,
		Source:      candle.Source,
	}
}

func (a *CandleArchiver) generateS3Key(batch candleBatch) string {
	venue, symbol, marketType := symbols.ParseMarketID(batch.MarketID)

	ts := time.Now().UTC()
	if n := len(batch.Entries); n > 0 {
		ts = time.UnixMilli(batch.Entries[n-1].StartTs).UTC()
	}
	timeFormat := a.cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = "2006-01-02"
	}

	filename := fmt.Sprintf("%s_%s_%s.parquet",
		venue,
		strings.ToUpper(symbol),
		time.Now().UTC().Format("20060102150405")+"_"+uuid.NewString(),
	)
	key := filepath.Join(
		"candles",
		fmt.Sprintf("venue=%s", venue),
		fmt.Sprintf("market_type=%s", marketType),
		fmt.Sprintf("symbol=%s", strings.ToUpper(symbol)),
		fmt.Sprintf("date=%s", ts.Format(timeFormat)),
		filename,
	)
	return filepath.ToSlash(key)
}

func (a *CandleArchiver) uploadToS3(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type": "parquet",
			"compression":  a.cfg.Compression,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if _, err := a.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload candle parquet: %w", err)
	}
	return nil
}
