// Package scheduler runs maintenance tasks from the persistent queue during
// idle windows.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"airapiserv/config"
	"airapiserv/internal/coverage"
	"airapiserv/internal/directory"
	"airapiserv/internal/ohlcv"
	"airapiserv/internal/store"
	"airapiserv/internal/token"
	"airapiserv/logger"
	"airapiserv/models"
)

// Default priorities per task type.
const (
	priorityDiscover = 10
	priorityReverify = 15
	prioritySync     = 20
	priorityCoverage = 20
)

// Runner executes one task at a time. Periodic task types re-enqueue
// themselves after a successful run; the queue never retries on its own.
type Runner struct {
	queue     store.TaskQueue
	directory *directory.Aggregator
	resolver  *token.Resolver
	tokens    store.TokenRepo
	catalog   store.CatalogRepo
	markets   store.MarketRepo
	coverage  *coverage.Engine
	candles   store.TimeSeriesStore
	backfill  *ohlcv.Client
	venues    []VenueLister
	cfg       config.SchedulerConfig
	log       *logger.Entry
}

// VenueLister is the slice of the venue source the runner needs.
type VenueLister interface {
	Name() string
	FetchMarkets(ctx context.Context) ([]models.VenueMarket, error)
}

func NewRunner(
	queue store.TaskQueue,
	dir *directory.Aggregator,
	resolver *token.Resolver,
	tokens store.TokenRepo,
	catalog store.CatalogRepo,
	markets store.MarketRepo,
	cov *coverage.Engine,
	candles store.TimeSeriesStore,
	backfill *ohlcv.Client,
	venues []VenueLister,
	cfg config.SchedulerConfig,
) *Runner {
	return &Runner{
		queue:     queue,
		directory: dir,
		resolver:  resolver,
		tokens:    tokens,
		catalog:   catalog,
		markets:   markets,
		coverage:  cov,
		candles:   candles,
		backfill:  backfill,
		venues:    venues,
		cfg:       cfg,
		log:       logger.GetLogger().WithComponent("task_runner"),
	}
}

// RunNext claims and executes one due task. It returns false when the queue
// had nothing due.
func (r *Runner) RunNext(ctx context.Context) (bool, error) {
	task, err := r.queue.FetchNext(ctx, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to fetch task: %w", err)
	}
	if task == nil {
		return false, nil
	}

	fields := logger.Fields{"task_id": task.TaskID, "type": task.Type, "attempt": task.Attempts}
	r.log.WithFields(fields).Info("running task")

	if err := r.execute(ctx, task); err != nil {
		r.log.WithError(err).WithFields(fields).Error("task failed")
		if mErr := r.queue.MarkFailed(ctx, task.TaskID, err.Error()); mErr != nil {
			return true, fmt.Errorf("failed to mark task failed: %w", mErr)
		}
		return true, nil
	}

	if err := r.queue.MarkDone(ctx, task.TaskID); err != nil {
		return true, fmt.Errorf("failed to mark task done: %w", err)
	}
	r.log.WithFields(fields).Info("task done")
	return true, nil
}

func (r *Runner) execute(ctx context.Context, task *models.Task) error {
	switch task.Type {
	case models.TaskDiscoverTokens:
		if err := r.runDiscovery(ctx); err != nil {
			return err
		}
		return r.reschedule(ctx, task.Type, priorityDiscover, r.cfg.DiscoveryEvery)
	case models.TaskSyncVenueMarkets:
		if err := r.runVenueSync(ctx); err != nil {
			return err
		}
		return r.reschedule(ctx, task.Type, prioritySync, r.cfg.VenueSyncEvery)
	case models.TaskResolveCoverage:
		if err := r.coverage.Run(ctx); err != nil {
			return err
		}
		return r.reschedule(ctx, task.Type, priorityCoverage, r.cfg.CoverageEvery)
	case models.TaskReverify:
		if err := r.coverage.Run(ctx); err != nil {
			return err
		}
		return r.reschedule(ctx, task.Type, priorityReverify, r.cfg.ReverifyEvery)
	case models.TaskIngestOHLCV:
		return r.runBackfill(ctx, task.Payload)
	default:
		// Unknown types complete without effect so a stale queue entry from
		// an older build cannot wedge the scheduler.
		r.log.WithFields(logger.Fields{"type": task.Type}).Warn("unknown task type")
		return nil
	}
}

func (r *Runner) reschedule(ctx context.Context, taskType string, priority int, every time.Duration) error {
	runAfter := time.Now().UTC().Add(every)
	err := r.queue.Enqueue(ctx, &models.Task{
		Type:     taskType,
		Priority: priority,
		RunAfter: &runAfter,
	})
	if err != nil {
		return fmt.Errorf("failed to reschedule %s: %w", taskType, err)
	}
	return nil
}

func (r *Runner) runDiscovery(ctx context.Context) error {
	listings := r.directory.FetchAll(ctx)
	resolved := r.resolver.Resolve(listings)

	var firstErr error
	for _, res := range resolved {
		if err := r.catalog.UpsertCatalogRow(ctx, token.CatalogRow(res.Token, res.Listings)); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := r.tokens.UpsertToken(ctx, res.Token); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.log.WithFields(logger.Fields{
		"listings": len(listings),
		"tokens":   len(resolved),
	}).Info("discovery pass complete")
	return firstErr
}

func (r *Runner) runVenueSync(ctx context.Context) error {
	var firstErr error
	for _, v := range r.venues {
		markets, err := v.FetchMarkets(ctx)
		if err != nil {
			// A flaky venue contributes nothing this cycle; failing the task
			// here would break the periodic re-enqueue chain.
			r.log.WithError(err).WithFields(logger.Fields{"venue": v.Name()}).Warn("venue sync failed")
			continue
		}
		for _, m := range markets {
			market := m
			if err := r.markets.UpsertMarket(ctx, &market); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		r.log.WithFields(logger.Fields{"venue": v.Name(), "markets": len(markets)}).Info("venue markets synced")
	}
	return firstErr
}

func (r *Runner) runBackfill(ctx context.Context, payload map[string]string) error {
	intervalMs, err := strconv.ParseInt(payload["interval_ms"], 10, 64)
	if err != nil {
		return fmt.Errorf("backfill payload missing interval_ms: %w", err)
	}
	from, err := strconv.ParseInt(payload["from"], 10, 64)
	if err != nil {
		return fmt.Errorf("backfill payload missing from: %w", err)
	}
	to, err := strconv.ParseInt(payload["to"], 10, 64)
	if err != nil {
		return fmt.Errorf("backfill payload missing to: %w", err)
	}
	req := ohlcv.Request{
		Venue:       payload["venue"],
		VenueSymbol: payload["venue_symbol"],
		MarketType:  payload["market_type"],
		IntervalMs:  intervalMs,
		From:        from,
		To:          to,
	}
	candles, err := r.backfill.Fetch(ctx, req)
	if err != nil {
		return err
	}
	for _, c := range candles {
		if err := r.candles.InsertCandle(ctx, c); err != nil {
			return err
		}
	}
	r.log.WithFields(logger.Fields{
		"venue":   req.Venue,
		"symbol":  req.VenueSymbol,
		"candles": len(candles),
	}).Info("backfill complete")
	return nil
}

// Bootstrap seeds the periodic tasks when the queue has no due or scheduled
// work of those types yet. Enqueueing unconditionally is safe: duplicates
// converge because each run replaces its own schedule.
func (r *Runner) Bootstrap(ctx context.Context) error {
	seed := []struct {
		taskType string
		priority int
	}{
		{models.TaskDiscoverTokens, priorityDiscover},
		{models.TaskSyncVenueMarkets, prioritySync},
		{models.TaskResolveCoverage, priorityCoverage},
		{models.TaskReverify, priorityReverify},
	}
	for _, s := range seed {
		if err := r.queue.Enqueue(ctx, &models.Task{Type: s.taskType, Priority: s.priority}); err != nil {
			return fmt.Errorf("failed to seed %s: %w", s.taskType, err)
		}
	}
	return nil
}
