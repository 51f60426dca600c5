package daemon

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TaskGroup runs background tasks with a concurrency cap and a per-task
// timeout. A full group rejects new tasks instead of blocking the caller.
type TaskGroup struct {
	g       errgroup.Group
	base    context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	closed  bool
	dropped atomic.Int64
}

// NewTaskGroup creates a group allowing maxInFlight concurrent tasks.
func NewTaskGroup(maxInFlight int, timeout time.Duration, logger *zap.Logger) *TaskGroup {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	t := &TaskGroup{
		base:    base,
		cancel:  cancel,
		timeout: timeout,
		logger:  logger,
	}
	t.g.SetLimit(maxInFlight)
	return t
}

// TryGo starts fn if a slot is free and reports whether it did. Task errors
// are logged; they never cancel sibling tasks.
func (t *TaskGroup) TryGo(name string, fn func(ctx context.Context) error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		t.dropped.Add(1)
		return false
	}

	started := t.g.TryGo(func() error {
		ctx, cancel := t.taskContext()
		defer cancel()

		start := time.Now()
		if err := fn(ctx); err != nil {
			t.logger.Warn("background task failed",
				zap.String("task", name),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
		}
		return nil
	})
	if !started {
		t.dropped.Add(1)
		t.logger.Warn("background task dropped, group saturated", zap.String("task", name))
	}
	return started
}

func (t *TaskGroup) taskContext() (context.Context, context.CancelFunc) {
	if t.timeout > 0 {
		return context.WithTimeout(t.base, t.timeout)
	}
	return context.WithCancel(t.base)
}

// Dropped returns how many tasks were rejected.
func (t *TaskGroup) Dropped() int64 {
	return t.dropped.Load()
}

// Shutdown stops accepting tasks and waits up to grace for running ones.
// Tasks still running afterwards have their context canceled and are
// abandoned. It reports whether everything finished in time.
func (t *TaskGroup) Shutdown(grace time.Duration) bool {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = t.g.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		t.cancel()
		return true
	case <-timer.C:
		t.cancel()
		t.logger.Warn("abandoning background tasks after shutdown grace", zap.Duration("grace", grace))
		return false
	}
}
