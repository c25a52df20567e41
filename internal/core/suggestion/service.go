package suggestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pantry-chef/internal/core/ai/cache"
	"pantry-chef/internal/core/ai/queue"
	"pantry-chef/internal/core/pantry"
	"pantry-chef/internal/infrastructure/config"
	"pantry-chef/internal/pkg/common"
	"pantry-chef/internal/pkg/metrics"

	"go.uber.org/zap"
)

const (
	StatusProcessing = "processing"
	StatusPending    = "pending"
	StatusDone       = "done"

	// 模型沒有給菜名時用於比對圖片的名稱
	fallbackDishName = "dish"
)

// Pantry 提供使用者目前的食材
type Pantry interface {
	Ingredients(ctx context.Context, userID string) ([]string, error)
}

// DishGenerator 文字生成模型
type DishGenerator interface {
	Generate(ctx context.Context, ingredients []string) ([]cache.Dish, error)
	Detail(ctx context.Context, name string) (map[string]any, error)
}

// ImageResolver 菜名對應圖片
type ImageResolver interface {
	Resolve(name string) string
}

// TaskRunner 背景任務執行器
type TaskRunner interface {
	Enqueue(ctx context.Context, job queue.Job) (queue.Handle, error)
	Status(id string) (queue.Task, bool)
}

// Result 建議流程的結果
//
// Error 非空時代表快取中是錯誤紀錄，呼叫端應回應 500。
type Result struct {
	Status  string
	TaskID  string
	Recipes []cache.Dish
	Error   string
}

// Service 建議流程
type Service struct {
	cfg       config.SuggestionConfig
	pantry    Pantry
	store     cache.Store
	runner    TaskRunner
	generator DishGenerator
	resolver  ImageResolver
}

// NewService 創建建議服務
func NewService(cfg config.SuggestionConfig, p Pantry, store cache.Store, runner TaskRunner, generator DishGenerator, resolver ImageResolver) *Service {
	return &Service{
		cfg:       cfg,
		pantry:    p,
		store:     store,
		runner:    runner,
		generator: generator,
		resolver:  resolver,
	}
}

// Suggest 回傳新鮮的快取結果，否則排入背景任務
func (s *Service) Suggest(ctx context.Context, userID string) (*Result, error) {
	ingredients, err := s.pantry.Ingredients(ctx, userID)
	if errors.Is(err, pantry.ErrNoPantry) || (err == nil && len(ingredients) == 0) {
		return nil, common.ErrEmptyPantry
	}
	if err != nil {
		return nil, common.ErrInternalError.Wrap(err)
	}

	fingerprint := cache.Fingerprint(ingredients)

	entry, err := s.lookup(ctx, "suggest", fingerprint, s.cfg.FreshWindow)
	if err != nil {
		return nil, common.ErrInternalError.Wrap(err)
	}
	if entry != nil {
		if entry.Response.Failed() {
			return &Result{Error: entry.Response.Error}, nil
		}
		return &Result{Recipes: entry.Response.Dishes}, nil
	}

	snapshot := append([]string(nil), ingredients...)
	handle, err := s.runner.Enqueue(ctx, queue.Job{
		Fingerprint: fingerprint,
		Owner:       userID,
		Run: func(jobCtx context.Context) error {
			return s.generate(jobCtx, fingerprint, snapshot)
		},
	})
	switch {
	case errors.Is(err, queue.ErrQueueFull):
		return nil, common.ErrQueueFull
	case errors.Is(err, queue.ErrClosed):
		return nil, common.ErrServiceUnavailable.Wrap(err)
	case err != nil:
		return nil, common.ErrInternalError.Wrap(err)
	}

	return &Result{Status: StatusProcessing, TaskID: handle.ID}, nil
}

// TaskStatus 輪詢背景任務
func (s *Service) TaskStatus(ctx context.Context, userID, taskID string) (*Result, error) {
	task, ok := s.runner.Status(taskID)
	if !ok || task.Owner != userID {
		return nil, common.ErrTaskNotFound
	}
	if task.State != queue.StateReady {
		return &Result{Status: StatusPending}, nil
	}

	done := &Result{Status: StatusDone, Recipes: []cache.Dish{}}

	fingerprint := task.Fingerprint
	if !s.cfg.PinTaskFingerprint {
		ingredients, err := s.pantry.Ingredients(ctx, userID)
		if errors.Is(err, pantry.ErrNoPantry) {
			return done, nil
		}
		if err != nil {
			return nil, common.ErrInternalError.Wrap(err)
		}
		fingerprint = cache.Fingerprint(ingredients)
	}

	entry, err := s.lookup(ctx, "poll", fingerprint, s.cfg.PollWindow)
	if err != nil {
		return nil, common.ErrInternalError.Wrap(err)
	}
	if entry == nil {
		return done, nil
	}
	if entry.Response.Failed() {
		done.Error = entry.Response.Error
		return done, nil
	}
	done.Recipes = entry.Response.Dishes
	return done, nil
}

// Detail 同步查詢單一菜色的作法，不寫入快取
func (s *Service) Detail(ctx context.Context, name string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, common.ErrInvalidRequest
	}

	start := time.Now()
	detail, err := s.generator.Detail(ctx, name)
	common.LogAICall("detail", time.Since(start), err, "")
	if err != nil {
		return nil, common.ErrAIServiceError.Wrap(err)
	}

	detail["image"] = s.resolver.Resolve(name)
	return detail, nil
}

// generate 背景工作：呼叫模型、補上圖片、寫入快取一次後清理過期條目
func (s *Service) generate(ctx context.Context, fingerprint string, ingredients []string) error {
	taskID := queue.TaskIDFromContext(ctx)

	start := time.Now()
	dishes, genErr := s.generator.Generate(ctx, ingredients)
	common.LogAICall("suggest", time.Since(start), genErr, taskID)

	var resp cache.Response
	if genErr != nil {
		resp = cache.ErrorResponse(genErr)
	} else {
		for _, dish := range dishes {
			name := dish.Name()
			if name == "" {
				name = fallbackDishName
			}
			dish["image"] = s.resolver.Resolve(name)
		}
		resp = cache.SuccessResponse(dishes)
	}

	// fresh_window 內先寫入者為準，過期的舊條目由本次結果取代
	inserted, err := s.store.Put(ctx, fingerprint, resp, s.cfg.FreshWindow)
	if err != nil {
		return fmt.Errorf("store suggestion: %w", err)
	}
	if !inserted {
		common.LogDebug("Suggestion already cached, keeping existing row",
			zap.String("task_id", taskID),
		)
	}

	removed, err := s.store.Sweep(ctx, s.cfg.Retention)
	if err != nil {
		common.LogWarn("Failed to sweep suggestion cache", zap.Error(err))
	} else if removed > 0 {
		common.LogInfo("Expired suggestions removed", zap.Int64("removed", removed))
	}

	return genErr
}

// lookup 查詢快取，查無時回傳 nil, nil
func (s *Service) lookup(ctx context.Context, caller, fingerprint string, window time.Duration) (*cache.Entry, error) {
	entry, err := s.store.Lookup(ctx, fingerprint, window)
	if errors.Is(err, cache.ErrNotFound) {
		metrics.SuggestionCacheLookups.WithLabelValues(caller, "miss").Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup suggestion: %w", err)
	}

	result := "hit"
	if entry.Response.Failed() {
		result = "error_record"
	}
	metrics.SuggestionCacheLookups.WithLabelValues(caller, result).Inc()
	return entry, nil
}
