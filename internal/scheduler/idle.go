package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"airapiserv/config"
	"airapiserv/internal/store"
	"airapiserv/logger"
)

// taskExecutor lets tests substitute the runner.
type taskExecutor interface {
	RunNext(ctx context.Context) (bool, error)
}

// IdleScheduler runs queued tasks only when the gateway is quiet. Every tick
// it checks recent request traffic and urgent pending work; when both are
// calm it sleeps a short jitter and runs exactly one task.
type IdleScheduler struct {
	runner  taskExecutor
	queue   store.TaskQueue
	metrics store.RequestMetrics
	cfg     config.SchedulerConfig

	running    bool
	mutex      sync.RWMutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	rng        *rand.Rand
	log        *logger.Entry
}

func NewIdleScheduler(runner *Runner, queue store.TaskQueue, metrics store.RequestMetrics, cfg config.SchedulerConfig) *IdleScheduler {
	return &IdleScheduler{
		runner:  runner,
		queue:   queue,
		metrics: metrics,
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		log:     logger.GetLogger().WithComponent("idle_scheduler"),
	}
}

func (s *IdleScheduler) Start(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.running {
		return fmt.Errorf("idle scheduler already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel
	s.running = true

	s.wg.Add(1)
	go s.loop(runCtx)

	s.log.WithFields(logger.Fields{
		"tick":           s.cfg.TickInterval.String(),
		"idle_threshold": s.cfg.IdleThreshold,
	}).Info("idle scheduler started")
	return nil
}

// Stop cancels the loop and waits for an in-flight task to finish. Tasks are
// never killed mid-run.
func (s *IdleScheduler) Stop() {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return
	}
	s.running = false
	s.cancelFunc()
	s.mutex.Unlock()

	s.wg.Wait()
	s.log.Info("idle scheduler stopped")
}

func (s *IdleScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.tick(ctx); err != nil && ctx.Err() == nil {
				s.log.WithError(err).Error("scheduler tick failed")
			}
		}
	}
}

func (s *IdleScheduler) tick(ctx context.Context) error {
	now := time.Now().UTC()

	recent, err := s.metrics.Recent(ctx, now.Add(-time.Minute))
	if err != nil {
		return fmt.Errorf("failed to read request metrics: %w", err)
	}
	if recent > int64(s.cfg.IdleThreshold) {
		s.log.WithFields(logger.Fields{"recent_requests": recent}).Debug("gateway busy, skipping tick")
		return nil
	}

	urgent, err := s.queue.HasHighPriorityPending(ctx, s.cfg.HighPriorityFloor, now)
	if err != nil {
		return fmt.Errorf("failed to check urgent tasks: %w", err)
	}
	if urgent {
		s.log.Debug("urgent work pending, deferring background tasks")
		return nil
	}

	// Jitter keeps replicas from claiming in lockstep.
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(s.jitter()):
	}

	ran, err := s.runner.RunNext(ctx)
	if err != nil {
		return err
	}
	if !ran {
		s.log.Debug("queue empty")
	}
	return nil
}

func (s *IdleScheduler) jitter() time.Duration {
	min, max := s.cfg.JitterMin, s.cfg.JitterMax
	if max <= min {
		return min
	}
	return min + time.Duration(s.rng.Int63n(int64(max-min)))
}

// RecordRequest is the traffic hook for a request-serving layer embedding
// this gateway. Each call lands in the current per-minute bucket.
func RecordRequest(ctx context.Context, metrics store.RequestMetrics) error {
	return metrics.Increment(ctx, time.Now().UTC())
}
