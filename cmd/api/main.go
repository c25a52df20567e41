package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pantry-chef/internal/api"
	"pantry-chef/internal/api/handlers/health"
	"pantry-chef/internal/api/middleware"
	"pantry-chef/internal/core/ai/cache"
	"pantry-chef/internal/core/ai/image"
	"pantry-chef/internal/core/ai/lmstudio"
	"pantry-chef/internal/core/ai/queue"
	"pantry-chef/internal/core/pantry"
	"pantry-chef/internal/core/suggestion"
	"pantry-chef/internal/infrastructure/config"
	"pantry-chef/internal/infrastructure/database"
	"pantry-chef/internal/pkg/common"

	"go.uber.org/zap"
)

func main() {
	issueFor := flag.String("issue-token", "", "print a signed access token for the given user id and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of tokens printed by -issue-token")
	flag.Parse()

	// 載入設定（含 .env）
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *issueFor != "" {
		token, err := middleware.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer, *issueFor, *tokenTTL)
		if err != nil {
			fmt.Printf("Failed to issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel, cfg.LogDir); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	common.LogInfo("載入設定",
		zap.String("lmstudio_url", cfg.LMStudio.URL),
		zap.String("model", cfg.LMStudio.Model),
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("cache_driver", cfg.Cache.Driver),
	)

	if err := run(cfg); err != nil {
		common.LogError("Server exited with error", zap.Error(err))
		common.Sync()
		os.Exit(1)
	}
	common.LogInfo("Server exited")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database, cfg.App.Debug)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	defer sqlDB.Close()

	if err := database.Migrate(db); err != nil {
		return err
	}
	if cfg.Database.Seed {
		if _, err := database.Seed(db); err != nil {
			return err
		}
	}

	store, err := cache.NewStore(ctx, cfg, db)
	if err != nil {
		return fmt.Errorf("initialize suggestion cache: %w", err)
	}
	defer store.Close()

	client := lmstudio.NewClient(cfg.LMStudio)
	defer client.Close()

	resolver := image.NewResolver(image.DefaultSeeds, cfg.Image.BasePath, cfg.Image.DefaultImage, cfg.Image.FuzzyCutoff)
	runner := queue.NewRunner(cfg.Queue)
	pantrySvc := pantry.NewService(db)
	suggestionSvc := suggestion.NewService(cfg.Suggestion, pantrySvc, store, runner, client, resolver)

	dedup := middleware.NewDeduplicator(cfg.DedupWindow)
	go dedup.Run(ctx, 10*time.Minute)

	readiness := map[string]health.Pinger{"database": sqlDB}
	var cacheStats health.StatsReporter
	switch s := store.(type) {
	case *cache.RedisStore:
		readiness["redis"] = health.PingFunc(s.Ping)
	case *cache.MemoryStore:
		cacheStats = s
	}

	router := api.SetupRouter(cfg, api.Services{
		Suggestion: suggestionSvc,
		Pantry:     pantrySvc,
		Queue:      runner,
		CacheStats: cacheStats,
		Model:      client,
		Readiness:  readiness,
		Dedup:      dedup,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		common.LogInfo("啟動應用",
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Int("port", cfg.Server.Port),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	common.LogInfo("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		common.LogError("Server forced to shutdown", zap.Error(err))
	}

	// 等待已排入的建議任務寫入快取
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.LMStudio.SuggestTimeout+5*time.Second)
	defer cancelDrain()
	if err := runner.Close(drainCtx); err != nil {
		common.LogWarn("Queue did not drain before shutdown", zap.Error(err))
	}
	return nil
}
