package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"pantry-chef/internal/infrastructure/config"
	"pantry-chef/internal/pkg/common"
	"pantry-chef/internal/pkg/metrics"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

var (
	ErrQueueFull = errors.New("queue is full")
	ErrClosed    = errors.New("queue runner is closed")
)

// State 任務狀態
type State string

const (
	StatePending State = "pending"
	StateReady   State = "ready"
)

// Job 背景工作，Run 只會被呼叫一次
type Job struct {
	Fingerprint string
	Owner       string
	Run         func(ctx context.Context) error
}

// Handle 任務識別，回傳給呼叫端用於輪詢
type Handle struct {
	ID          string `json:"task_id"`
	Fingerprint string `json:"-"`
	Owner       string `json:"-"`
}

// Task 任務快照
type Task struct {
	Handle
	State      State
	EnqueuedAt time.Time
	FinishedAt time.Time
	Err        error
}

// Status 隊列狀態
type Status struct {
	QueueLength    int `json:"queue_length"`
	Pending        int `json:"pending"`
	Tracked        int `json:"tracked"`
	ProcessedCount int `json:"processed_count"`
	MaxQueueSize   int `json:"max_queue_size"`
	Workers        int `json:"workers"`
}

type taskIDKey struct{}

// TaskIDFromContext 取出工作執行時所屬的任務 ID
func TaskIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(taskIDKey{}).(string)
	return id
}

type work struct {
	ctx  context.Context
	task *Task
	run  func(ctx context.Context) error
}

// Option Runner 選項
type Option func(*Runner)

// WithClock 注入時鐘，測試用
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// Runner 背景任務執行器：有界隊列 + 固定數量的 worker
type Runner struct {
	cfg       config.QueueConfig
	queue     chan *work
	wg        conc.WaitGroup
	mu        sync.RWMutex
	tasks     map[string]*Task
	closed    bool
	processed int64
	now       func() time.Time
}

// NewRunner 創建並啟動背景任務執行器
func NewRunner(cfg config.QueueConfig, opts ...Option) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1
	}

	r := &Runner{
		cfg:   cfg,
		queue: make(chan *work, cfg.MaxSize),
		tasks: make(map[string]*Task),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	for i := 0; i < cfg.Workers; i++ {
		r.wg.Go(r.worker)
	}

	common.LogInfo("Queue runner started",
		zap.Int("workers", cfg.Workers),
		zap.Int("max_queue_size", cfg.MaxSize),
	)
	return r
}

// Enqueue 將工作加入隊列，隊列滿時立即回傳 ErrQueueFull
//
// 工作執行時使用與請求脫鉤的 context，請求結束不會取消工作。
func (r *Runner) Enqueue(ctx context.Context, job Job) (Handle, error) {
	if job.Run == nil {
		return Handle{}, fmt.Errorf("job has no run function")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Handle{}, ErrClosed
	}
	r.pruneLocked()

	task := &Task{
		Handle: Handle{
			ID:          common.GenerateUUID(),
			Fingerprint: job.Fingerprint,
			Owner:       job.Owner,
		},
		State:      StatePending,
		EnqueuedAt: r.now(),
	}
	w := &work{
		ctx:  context.WithValue(context.WithoutCancel(ctx), taskIDKey{}, task.ID),
		task: task,
		run:  job.Run,
	}

	select {
	case r.queue <- w:
	default:
		metrics.SuggestionTasks.WithLabelValues("rejected").Inc()
		common.LogWarn("Queue full, task rejected",
			zap.Int("max_queue_size", r.cfg.MaxSize),
		)
		return Handle{}, ErrQueueFull
	}

	r.tasks[task.ID] = task
	metrics.SuggestionTasks.WithLabelValues("enqueued").Inc()
	common.LogInfo("Task enqueued",
		zap.String("task_id", task.ID),
		zap.Int("queue_length", len(r.queue)),
	)
	return task.Handle, nil
}

// Status 查詢任務，未知或已過保留期的任務回傳 false
func (r *Runner) Status(id string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked()
	task, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// GetQueueStatus 獲取隊列狀態
func (r *Runner) GetQueueStatus() *Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pending := 0
	for _, t := range r.tasks {
		if t.State == StatePending {
			pending++
		}
	}
	return &Status{
		QueueLength:    len(r.queue),
		Pending:        pending,
		Tracked:        len(r.tasks),
		ProcessedCount: int(atomic.LoadInt64(&r.processed)),
		MaxQueueSize:   r.cfg.MaxSize,
		Workers:        r.cfg.Workers,
	}
}

// Close 停止接受新工作，等待隊列中的工作完成
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		common.LogInfo("Queue runner stopped",
			zap.Int64("processed", atomic.LoadInt64(&r.processed)),
		)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for queue workers: %w", ctx.Err())
	}
}

func (r *Runner) worker() {
	for w := range r.queue {
		r.execute(w)
	}
}

func (r *Runner) execute(w *work) {
	start := r.now()
	var err error

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}

		r.mu.Lock()
		w.task.State = StateReady
		w.task.FinishedAt = r.now()
		w.task.Err = err
		r.mu.Unlock()
		atomic.AddInt64(&r.processed, 1)

		if err != nil {
			metrics.SuggestionTasks.WithLabelValues("failed").Inc()
			common.LogError("Task failed",
				zap.String("task_id", w.task.ID),
				zap.Error(err),
				zap.Duration("duration", r.now().Sub(start)),
			)
			return
		}
		metrics.SuggestionTasks.WithLabelValues("succeeded").Inc()
		common.LogInfo("Task finished",
			zap.String("task_id", w.task.ID),
			zap.Duration("duration", r.now().Sub(start)),
		)
	}()

	err = w.run(w.ctx)
}

// pruneLocked 移除超過保留期的已完成任務，呼叫者須持有寫鎖
func (r *Runner) pruneLocked() {
	if r.cfg.TaskRetention <= 0 {
		return
	}
	cutoff := r.now().Add(-r.cfg.TaskRetention)
	for id, t := range r.tasks {
		if t.State == StateReady && t.FinishedAt.Before(cutoff) {
			delete(r.tasks, id)
		}
	}
}
