package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pantry-chef/internal/infrastructure/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRunner(t *testing.T, cfg config.QueueConfig, opts ...Option) *Runner {
	t.Helper()
	r := NewRunner(cfg, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Close(ctx)
	})
	return r
}

func waitReady(t *testing.T, r *Runner, id string) Task {
	t.Helper()
	var task Task
	require.Eventually(t, func() bool {
		var ok bool
		task, ok = r.Status(id)
		return ok && task.State == StateReady
	}, 2*time.Second, 5*time.Millisecond)
	return task
}

func TestEnqueueRunsJobOnce(t *testing.T) {
	r := newTestRunner(t, config.QueueConfig{Workers: 2, MaxSize: 4})

	var calls int32
	var seenID atomic.Value
	release := make(chan struct{})
	h, err := r.Enqueue(context.Background(), Job{
		Fingerprint: "fp",
		Owner:       "alice",
		Run: func(ctx context.Context) error {
			<-release
			seenID.Store(TaskIDFromContext(ctx))
			atomic.AddInt32(&calls, 1)
			return nil
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, h.ID)
	assert.Equal(t, "fp", h.Fingerprint)
	assert.Equal(t, "alice", h.Owner)

	task, ok := r.Status(h.ID)
	require.True(t, ok)
	assert.Equal(t, StatePending, task.State)

	close(release)
	task = waitReady(t, r, h.ID)
	assert.NoError(t, task.Err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, h.ID, seenID.Load())
}

func TestJobContextOutlivesRequest(t *testing.T) {
	r := newTestRunner(t, config.QueueConfig{Workers: 1, MaxSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	start := make(chan struct{})
	h, err := r.Enqueue(ctx, Job{Run: func(jobCtx context.Context) error {
		<-start
		errCh <- jobCtx.Err()
		return nil
	}})
	require.NoError(t, err)

	cancel()
	close(start)
	waitReady(t, r, h.ID)
	assert.NoError(t, <-errCh)
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	r := newTestRunner(t, config.QueueConfig{Workers: 1, MaxSize: 1})

	started := make(chan struct{})
	release := make(chan struct{})
	_, err := r.Enqueue(context.Background(), Job{Run: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}})
	require.NoError(t, err)
	<-started

	_, err = r.Enqueue(context.Background(), Job{Run: func(ctx context.Context) error { return nil }})
	require.NoError(t, err)

	_, err = r.Enqueue(context.Background(), Job{Run: func(ctx context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
}

func TestPanickingJobBecomesReady(t *testing.T) {
	r := newTestRunner(t, config.QueueConfig{Workers: 1, MaxSize: 2})

	h, err := r.Enqueue(context.Background(), Job{Run: func(ctx context.Context) error {
		panic("boom")
	}})
	require.NoError(t, err)

	task := waitReady(t, r, h.ID)
	require.Error(t, task.Err)
	assert.Contains(t, task.Err.Error(), "boom")

	// worker 仍然可用
	h2, err := r.Enqueue(context.Background(), Job{Run: func(ctx context.Context) error {
		return errors.New("model unavailable")
	}})
	require.NoError(t, err)
	task = waitReady(t, r, h2.ID)
	assert.EqualError(t, task.Err, "model unavailable")
}

func TestStatusUnknownTask(t *testing.T) {
	r := newTestRunner(t, config.QueueConfig{Workers: 1, MaxSize: 1})

	_, ok := r.Status("does-not-exist")
	assert.False(t, ok)
}

func TestReadyTasksArePrunedAfterRetention(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	r := newTestRunner(t,
		config.QueueConfig{Workers: 1, MaxSize: 2, TaskRetention: 10 * time.Minute},
		WithClock(clock.Now),
	)

	h, err := r.Enqueue(context.Background(), Job{Run: func(ctx context.Context) error { return nil }})
	require.NoError(t, err)
	waitReady(t, r, h.ID)

	clock.Advance(10 * time.Minute)
	_, ok := r.Status(h.ID)
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = r.Status(h.ID)
	assert.False(t, ok)
}

func TestCloseDrainsQueueAndRejectsNewWork(t *testing.T) {
	r := NewRunner(config.QueueConfig{Workers: 1, MaxSize: 8})

	var done int32
	for i := 0; i < 5; i++ {
		_, err := r.Enqueue(context.Background(), Job{Run: func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&done, 1)
			return nil
		}})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
	assert.Equal(t, int32(5), atomic.LoadInt32(&done))
	assert.Equal(t, 5, r.GetQueueStatus().ProcessedCount)

	_, err := r.Enqueue(context.Background(), Job{Run: func(ctx context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrClosed)

	// 重複關閉不會 panic
	assert.NoError(t, r.Close(ctx))
}

func TestGetQueueStatus(t *testing.T) {
	r := newTestRunner(t, config.QueueConfig{Workers: 3, MaxSize: 7})

	status := r.GetQueueStatus()
	assert.Equal(t, 3, status.Workers)
	assert.Equal(t, 7, status.MaxQueueSize)
	assert.Zero(t, status.Pending)
}
