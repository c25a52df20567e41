package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// 建議快取查詢結果，result = hit | miss | error_record
	SuggestionCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestion_cache_lookups_total",
			Help: "Suggestion cache lookups by caller and result.",
		},
		[]string{"caller", "result"},
	)

	// 背景任務，state = enqueued | succeeded | failed | rejected
	SuggestionTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestion_tasks_total",
			Help: "Background suggestion tasks by state.",
		},
		[]string{"state"},
	)

	// 上游模型延遲
	UpstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_model_latency_seconds",
			Help:    "Latency of calls to the text-generation endpoint in seconds.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
		},
		[]string{"kind", "outcome"},
	)

	// HTTP 延遲
	HTTPLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_latency_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"path", "method", "status_code"},
	)
)

func init() {
	prometheus.MustRegister(
		SuggestionCacheLookups,
		SuggestionTasks,
		UpstreamLatencySeconds,
		HTTPLatencySeconds,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveUpstream 記錄一次上游呼叫
func ObserveUpstream(kind string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	UpstreamLatencySeconds.WithLabelValues(kind, outcome).Observe(time.Since(start).Seconds())
}

// Middleware 記錄每個請求的延遲，path 使用路由模板避免標籤爆量
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPLatencySeconds.
			WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
