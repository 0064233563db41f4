package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"airapiserv/config"
	"airapiserv/internal/store/memory"
	"airapiserv/models"
)

type countingExecutor struct {
	runs  atomic.Int64
	delay time.Duration
}

func (c *countingExecutor) RunNext(ctx context.Context) (bool, error) {
	c.runs.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return true, nil
}

func fastConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		TickInterval:      10 * time.Millisecond,
		IdleThreshold:     5,
		JitterMin:         time.Millisecond,
		JitterMax:         2 * time.Millisecond,
		HighPriorityFloor: 100,
	}
}

func newIdle(exec taskExecutor, queue *memory.TaskQueue, metrics *memory.RequestMetrics) *IdleScheduler {
	s := NewIdleScheduler(nil, queue, metrics, fastConfig())
	s.runner = exec
	return s
}

func TestIdleSchedulerRunsWhenQuiet(t *testing.T) {
	exec := &countingExecutor{}
	s := newIdle(exec, memory.NewTaskQueue(), memory.NewRequestMetrics())

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for exec.runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if exec.runs.Load() == 0 {
		t.Fatal("no task ran while idle")
	}
}

func TestIdleSchedulerSkipsWhenBusy(t *testing.T) {
	ctx := context.Background()
	exec := &countingExecutor{}
	metrics := memory.NewRequestMetrics()
	for i := 0; i < 10; i++ {
		RecordRequest(ctx, metrics)
	}

	s := newIdle(exec, memory.NewTaskQueue(), metrics)
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	if exec.runs.Load() != 0 {
		t.Fatalf("ran %d tasks under load", exec.runs.Load())
	}
}

func TestIdleSchedulerDefersToUrgentWork(t *testing.T) {
	ctx := context.Background()
	exec := &countingExecutor{}
	queue := memory.NewTaskQueue()
	queue.Enqueue(ctx, &models.Task{Type: models.TaskIngestOHLCV, Priority: 100})

	s := newIdle(exec, queue, memory.NewRequestMetrics())
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	if exec.runs.Load() != 0 {
		t.Fatalf("ran %d tasks despite urgent pending work", exec.runs.Load())
	}
}

func TestIdleSchedulerStopWaitsForInflight(t *testing.T) {
	exec := &countingExecutor{delay: 50 * time.Millisecond}
	s := newIdle(exec, memory.NewTaskQueue(), memory.NewRequestMetrics())

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for exec.runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	// Stop returned only after the loop exited; a second Stop is a no-op.
	s.Stop()

	if exec.runs.Load() == 0 {
		t.Fatal("expected at least one run before stop")
	}
}

func TestDoubleStartRejected(t *testing.T) {
	s := newIdle(&countingExecutor{}, memory.NewTaskQueue(), memory.NewRequestMetrics())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("second start should fail")
	}
}
