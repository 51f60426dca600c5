package daemon

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestTaskGroup_DropsWhenSaturated verifies TryGo never blocks
func TestTaskGroup_DropsWhenSaturated(t *testing.T) {
	tg := NewTaskGroup(1, time.Second, zap.NewNop())
	release := make(chan struct{})

	require.True(t, tg.TryGo("first", func(ctx context.Context) error {
		<-release
		return nil
	}))

	start := time.Now()
	assert.False(t, tg.TryGo("second", func(ctx context.Context) error { return nil }))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, int64(1), tg.Dropped())

	close(release)
	assert.True(t, tg.Shutdown(time.Second))
}

// TestTaskGroup_TimeoutCancelsTask verifies the per-task deadline
func TestTaskGroup_TimeoutCancelsTask(t *testing.T) {
	tg := NewTaskGroup(2, 20*time.Millisecond, zap.NewNop())
	var sawDeadline atomic.Bool

	tg.TryGo("slow", func(ctx context.Context) error {
		<-ctx.Done()
		sawDeadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	})

	assert.True(t, tg.Shutdown(time.Second))
	assert.True(t, sawDeadline.Load())
}

// TestTaskGroup_ShutdownAbandonsAfterGrace verifies shutdown is bounded and
// cancels stragglers
func TestTaskGroup_ShutdownAbandonsAfterGrace(t *testing.T) {
	tg := NewTaskGroup(1, 0, zap.NewNop())
	canceled := make(chan struct{})

	tg.TryGo("stuck", func(ctx context.Context) error {
		<-ctx.Done()
		close(canceled)
		return nil
	})

	start := time.Now()
	assert.False(t, tg.Shutdown(30*time.Millisecond))
	assert.Less(t, time.Since(start), time.Second)

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("task context was not canceled")
	}
}

// TestTaskGroup_RejectsAfterShutdown verifies a closed group takes no work
func TestTaskGroup_RejectsAfterShutdown(t *testing.T) {
	tg := NewTaskGroup(2, time.Second, zap.NewNop())
	require.True(t, tg.Shutdown(time.Second))

	assert.False(t, tg.TryGo("late", func(ctx context.Context) error { return nil }))
}

// TestTaskGroup_ErrorsDoNotCancelSiblings verifies one failure leaves the
// other task running
func TestTaskGroup_ErrorsDoNotCancelSiblings(t *testing.T) {
	tg := NewTaskGroup(2, time.Second, zap.NewNop())
	release := make(chan struct{})
	var siblingErr atomic.Value

	tg.TryGo("sibling", func(ctx context.Context) error {
		<-release
		siblingErr.Store(ctx.Err() == nil)
		return nil
	})
	tg.TryGo("failing", func(ctx context.Context) error {
		defer close(release)
		return errors.New("boom")
	})

	require.True(t, tg.Shutdown(time.Second))
	assert.Equal(t, true, siblingErr.Load())
}
