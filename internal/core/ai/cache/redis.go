package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"pantry-chef/internal/pkg/common"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// redisPutScript 條目不存在或 created_at 早於 stale_before 時寫入；stale_before <= 0 表示永不取代
var redisPutScript = redis.NewScript(`
local key = KEYS[1]
local stale_before = tonumber(ARGV[2])
local ttl_ms = tonumber(ARGV[4])

if redis.call("EXISTS", key) == 1 then
  local existing = tonumber(redis.call("HGET", key, "created_at"))
  if stale_before <= 0 or (existing and existing >= stale_before) then
    return 0
  end
  redis.call("DEL", key)
end

redis.call("HSET", key, "created_at", ARGV[1], "payload", ARGV[3])
if ttl_ms > 0 then
  redis.call("PEXPIRE", key, ttl_ms)
end
return 1
`)

// RedisStore 以 Redis hash 與 Lua 腳本實作的快取；保留期限交給 key TTL
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
	now       Clock
}

// NewRedisStore 創建 Redis 快取
func NewRedisStore(client *redis.Client, prefix string, retention time.Duration, now Clock) *RedisStore {
	if prefix == "" {
		prefix = "ai:suggestion"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisStore{
		client:    client,
		prefix:    prefix,
		retention: retention,
		now:       now,
	}
}

// Ping 測試連接
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// generateKey 生成緩存鍵
func (s *RedisStore) generateKey(fingerprint string) string {
	return fmt.Sprintf("%s:%s", s.prefix, fingerprint)
}

// Lookup 查詢時間窗內的條目
func (s *RedisStore) Lookup(ctx context.Context, fingerprint string, maxAge time.Duration) (*Entry, error) {
	fields, err := s.client.HGetAll(ctx, s.generateKey(fingerprint)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}
	if len(fields) == 0 {
		common.LogCacheMiss("redis", fingerprint)
		return nil, ErrNotFound
	}

	ms, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cache timestamp: %w", err)
	}
	createdAt := time.UnixMilli(ms).UTC()
	if createdAt.Before(s.now().Add(-maxAge)) {
		common.LogCacheMiss("redis", fingerprint)
		return nil, ErrNotFound
	}

	var resp Response
	if err := json.Unmarshal([]byte(fields["payload"]), &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache payload: %w", err)
	}

	common.LogCacheHit("redis", fingerprint)
	return &Entry{
		Fingerprint: fingerprint,
		Response:    resp,
		CreatedAt:   createdAt,
	}, nil
}

// Put 以 Lua 腳本原子寫入，既有條目仍在 staleAfter 內時不覆蓋
func (s *RedisStore) Put(ctx context.Context, fingerprint string, resp Response, staleAfter time.Duration) (bool, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return false, fmt.Errorf("failed to marshal response: %w", err)
	}

	now := s.now().UTC()
	var staleBefore int64
	if staleAfter > 0 {
		staleBefore = now.Add(-staleAfter).UnixMilli()
	}

	n, err := redisPutScript.Run(ctx, s.client,
		[]string{s.generateKey(fingerprint)},
		now.UnixMilli(),
		staleBefore,
		string(payload),
		s.retention.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to set cache: %w", err)
	}
	inserted := n == 1

	common.LogDebug("快取已儲存",
		zap.String("driver", "redis"),
		zap.Bool("inserted", inserted),
		zap.Bool("error_record", resp.Failed()),
	)
	return inserted, nil
}

// Sweep Redis 以 TTL 淘汰過期條目，這裡不需額外處理
func (s *RedisStore) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	return 0, nil
}

// Close 關閉 Redis 連線
func (s *RedisStore) Close() error {
	return s.client.Close()
}
