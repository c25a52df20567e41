package api

import (
	"context"
	"time"

	"pantry-chef/internal/api/handlers"
	"pantry-chef/internal/api/handlers/health"
	pantryHandler "pantry-chef/internal/api/handlers/pantry"
	"pantry-chef/internal/api/middleware"
	"pantry-chef/internal/infrastructure/config"
	"pantry-chef/internal/pkg/common"
	"pantry-chef/internal/pkg/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Services 路由需要的服務
type Services struct {
	Suggestion handlers.SuggestionService
	Pantry     pantryHandler.Service
	Queue      health.QueueReporter
	CacheStats health.StatsReporter
	Model      health.ModelReporter
	Readiness  map[string]health.Pinger
	Dedup      *middleware.Deduplicator
}

// SetupRouter 設置路由
func SetupRouter(cfg *config.Config, svc Services) *gin.Engine {
	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	if !cfg.App.Debug && gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(requestid.New())
	router.Use(middleware.Logger())
	router.Use(metrics.Middleware())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(middleware.BodySizeLimit(cfg.Server.MaxBodyBytes))
	router.Use(requestTimeout(cfg.Server.RequestTimeout))

	healthHandler := health.NewHandler(cfg.App.Version, svc.Queue, svc.CacheStats, svc.Model, svc.Readiness)
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/live", healthHandler.LivenessCheck)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.Auth.JWTSecret, cfg.Auth.Issuer))
	if cfg.RateLimit.Enabled {
		api.Use(middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))
	}
	if svc.Dedup != nil {
		api.Use(svc.Dedup.Middleware())
	}

	aiHandler := handlers.NewAIHandler(svc.Suggestion)
	aiGroup := api.Group("/ai")
	{
		aiGroup.GET("/suggestions", aiHandler.Suggestions)
		aiGroup.GET("/task-status/:task_id", aiHandler.TaskStatus)
		aiGroup.GET("/recipe/:name", aiHandler.RecipeDetail)
	}

	pantryH := pantryHandler.NewHandler(svc.Pantry)
	pantryGroup := api.Group("/pantry")
	{
		pantryGroup.GET("", pantryH.List)
		pantryGroup.POST("/ingredients", pantryH.Add)
		pantryGroup.DELETE("/ingredients/:name", pantryH.Remove)
	}

	common.LogInfo("Router setup completed successfully",
		zap.Duration("timeout", cfg.Server.RequestTimeout),
		zap.Int64("max_body_size", cfg.Server.MaxBodyBytes),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
	)
	return router
}

// requestTimeout 為每個請求設置逾時，處理器尚未回應時回傳 504
func requestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if ctx.Err() == context.DeadlineExceeded && !c.Writer.Written() {
			common.LogError("Request timeout",
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", requestid.Get(c)),
				zap.Duration("timeout", timeout),
			)
			common.WriteError(c, common.ErrGatewayTimeout.Wrap(ctx.Err()))
		}
	}
}
