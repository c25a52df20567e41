package cache

import (
	"context"
	"fmt"
	"time"

	"pantry-chef/internal/infrastructure/config"
	"pantry-chef/internal/pkg/common"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewStore 依 cache.driver 建立快取實作
func NewStore(ctx context.Context, cfg *config.Config, db *gorm.DB) (Store, error) {
	switch cfg.Cache.Driver {
	case "sql":
		if db == nil {
			return nil, fmt.Errorf("sql cache requires a database connection")
		}
		if err := AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("migrate suggestion cache: %w", err)
		}
		common.LogInfo("快取管理員已初始化", zap.String("driver", "sql"))
		return NewSQLStore(db, time.Now), nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := NewRedisStore(client, cfg.Redis.Prefix, cfg.Suggestion.Retention, time.Now)
		if err := store.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
		common.LogInfo("快取管理員已初始化",
			zap.String("driver", "redis"),
			zap.String("addr", cfg.Redis.Addr),
			zap.Duration("存活時間", cfg.Suggestion.Retention),
		)
		return store, nil

	case "memory":
		common.LogInfo("快取管理員已初始化", zap.String("driver", "memory"))
		return NewMemoryStore(0, time.Now), nil

	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}
}
