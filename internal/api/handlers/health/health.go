package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"pantry-chef/internal/core/ai/queue"
	"pantry-chef/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthResponse 健康檢查響應
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Model     string                 `json:"model,omitempty"`
	Runtime   map[string]interface{} `json:"runtime"`
	Queue     *queue.Status          `json:"queue,omitempty"`
	Cache     map[string]interface{} `json:"cache,omitempty"`
}

// QueueReporter 提供隊列狀態
type QueueReporter interface {
	GetQueueStatus() *queue.Status
}

// StatsReporter 提供快取統計，只有記憶體快取實作
type StatsReporter interface {
	GetStats() map[string]interface{}
}

// ModelReporter 提供目前使用的模型名稱
type ModelReporter interface {
	Model() string
}

// Pinger 可檢查連線的依賴，例如資料庫
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler 健康檢查處理器
type Handler struct {
	version string
	queue   QueueReporter
	cache   StatsReporter
	model   ModelReporter
	deps    map[string]Pinger
}

// NewHandler 創建健康檢查處理器，deps 為就緒檢查要 ping 的依賴，cache 與 model 可為 nil
func NewHandler(version string, q QueueReporter, cache StatsReporter, model ModelReporter, deps map[string]Pinger) *Handler {
	return &Handler{version: version, queue: q, cache: cache, model: model, deps: deps}
}

// HealthCheck GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   h.version,
		Runtime: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]interface{}{
				"alloc":       m.Alloc,
				"total_alloc": m.TotalAlloc,
				"sys":         m.Sys,
				"num_gc":      m.NumGC,
			},
		},
	}
	if h.queue != nil {
		response.Queue = h.queue.GetQueueStatus()
	}
	if h.cache != nil {
		response.Cache = h.cache.GetStats()
	}
	if h.model != nil {
		response.Model = h.model.Model()
	}

	common.LogDebug("Health check request",
		zap.String("client_ip", c.ClientIP()),
	)
	c.JSON(http.StatusOK, response)
}

// ReadinessCheck GET /ready，任一依賴無法連線時回應 503
func (h *Handler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.deps))
	ready := true
	for name, dep := range h.deps {
		if err := dep.PingContext(ctx); err != nil {
			common.LogWarn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
}

// LivenessCheck GET /live
func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

// PingFunc 將函式轉為 Pinger
type PingFunc func(ctx context.Context) error

// PingContext 實作 Pinger
func (f PingFunc) PingContext(ctx context.Context) error {
	return f(ctx)
}
