package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsConnector int64
	errorsScheduler int64
	warnsConnector  int64
	warnsScheduler  int64
	eventReads      int64
	candleWrites    int64
	archiveWrites   int64
	channels        sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "connector") {
		atomic.AddInt64(&warnsConnector, 1)
	} else if strings.Contains(component, "scheduler") || strings.Contains(component, "task") {
		atomic.AddInt64(&warnsScheduler, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "connector") {
		atomic.AddInt64(&errorsConnector, 1)
	} else if strings.Contains(component, "scheduler") || strings.Contains(component, "task") {
		atomic.AddInt64(&errorsScheduler, 1)
	}
}

// IncrementEventRead records one market event received from a venue feed.
func IncrementEventRead(size int) {
	atomic.AddInt64(&eventReads, 1)
	recordChannel("market_events", size)
}

// IncrementCandleWrite records one candle persisted to the time-series store.
func IncrementCandleWrite() {
	atomic.AddInt64(&candleWrites, 1)
}

// IncrementArchiveWrite records one parquet batch uploaded to the archive.
func IncrementArchiveWrite(size int64) {
	atomic.AddInt64(&archiveWrites, 1)
	recordChannel("archive_write", int(size))
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of runtime and channel statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	fields := Fields{
		"errors_connector": atomic.LoadInt64(&errorsConnector),
		"errors_scheduler": atomic.LoadInt64(&errorsScheduler),
		"warns_connector":  atomic.LoadInt64(&warnsConnector),
		"warns_scheduler":  atomic.LoadInt64(&warnsScheduler),
		"event_reads":      atomic.LoadInt64(&eventReads),
		"candle_writes":    atomic.LoadInt64(&candleWrites),
		"archive_writes":   atomic.LoadInt64(&archiveWrites),
		"goroutines":       runtime.NumGoroutine(),
		"channels":         channelData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsConnector"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_connector"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsScheduler"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_scheduler"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsConnector"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_connector"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsScheduler"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_scheduler"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("EventReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["event_reads"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("CandleWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["candle_writes"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("ArchiveWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["archive_writes"].(int64)))},
	)

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
