package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pantry-chef/internal/pkg/common"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SuggestionCache 建議快取資料表，fingerprint 唯一
type SuggestionCache struct {
	ID          uint           `gorm:"primaryKey"`
	Fingerprint string         `gorm:"size:64;not null;uniqueIndex"`
	Payload     datatypes.JSON `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"not null;index"`
}

// TableName 資料表名稱
func (SuggestionCache) TableName() string { return "ai_suggestion_cache" }

// SQLStore 以 gorm 實作的快取，依賴資料表的唯一鍵裁決並發寫入
type SQLStore struct {
	db  *gorm.DB
	now Clock
}

// NewSQLStore 創建 SQL 快取
func NewSQLStore(db *gorm.DB, now Clock) *SQLStore {
	if now == nil {
		now = time.Now
	}
	return &SQLStore{db: db, now: now}
}

// AutoMigrate 建立快取資料表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&SuggestionCache{})
}

func (s *SQLStore) clock() time.Time {
	return s.now().UTC()
}

// Lookup 查詢時間窗內的條目
func (s *SQLStore) Lookup(ctx context.Context, fingerprint string, maxAge time.Duration) (*Entry, error) {
	var row SuggestionCache
	err := s.db.WithContext(ctx).
		Where("fingerprint = ? AND created_at >= ?", fingerprint, s.clock().Add(-maxAge)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		common.LogCacheMiss("sql", fingerprint)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup suggestion cache: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(row.Payload, &resp); err != nil {
		return nil, fmt.Errorf("decode suggestion cache payload: %w", err)
	}

	common.LogCacheHit("sql", fingerprint)
	return &Entry{
		Fingerprint: row.Fingerprint,
		Response:    resp,
		CreatedAt:   row.CreatedAt,
	}, nil
}

// Put 以 ON CONFLICT 寫入，既有條目仍在 staleAfter 內時保留原值
func (s *SQLStore) Put(ctx context.Context, fingerprint string, resp Response, staleAfter time.Duration) (bool, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return false, fmt.Errorf("encode suggestion cache payload: %w", err)
	}

	now := s.clock()
	row := SuggestionCache{
		Fingerprint: fingerprint,
		Payload:     datatypes.JSON(payload),
		CreatedAt:   now,
	}

	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "fingerprint"}},
		DoNothing: true,
	}
	if staleAfter > 0 {
		// 只有過期的舊列會被更新，受影響列數為 0 代表保留了新鮮的條目
		conflict = clause.OnConflict{
			Columns:   []clause.Column{{Name: "fingerprint"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "created_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: row.TableName() + ".created_at < ?", Vars: []interface{}{now.Add(-staleAfter)}},
			}},
		}
	}

	res := s.db.WithContext(ctx).Clauses(conflict).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("insert suggestion cache: %w", res.Error)
	}

	inserted := res.RowsAffected > 0
	common.LogDebug("快取已儲存",
		zap.String("driver", "sql"),
		zap.Bool("inserted", inserted),
		zap.Bool("error_record", resp.Failed()),
	)
	return inserted, nil
}

// Sweep 刪除早於 retention 的條目
func (s *SQLStore) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("created_at < ?", s.clock().Add(-retention)).
		Delete(&SuggestionCache{})
	if res.Error != nil {
		return 0, fmt.Errorf("sweep suggestion cache: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		common.LogInfo("Cleaned up expired cache entries",
			zap.String("driver", "sql"),
			zap.Int64("count", res.RowsAffected),
		)
	}
	return res.RowsAffected, nil
}

// Close 連線由呼叫端管理
func (s *SQLStore) Close() error {
	return nil
}
