package cache

import (
	"context"
	"sync"
	"time"

	"pantry-chef/internal/pkg/common"

	"go.uber.org/zap"
)

// MemoryStore 記憶體快取，單一行程內使用
type MemoryStore struct {
	mu      sync.RWMutex
	store   map[string]*memoryEntry
	maxSize int
	now     Clock
	stats   cacheStats
}

// memoryEntry 緩存條目
type memoryEntry struct {
	resp        Response
	createdAt   time.Time
	lastAccess  time.Time
	accessCount int
}

// cacheStats 緩存統計
type cacheStats struct {
	hits      int64
	misses    int64
	evictions int64
}

// NewMemoryStore 創建記憶體快取，maxSize <= 0 表示不限容量
func NewMemoryStore(maxSize int, now Clock) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		store:   make(map[string]*memoryEntry),
		maxSize: maxSize,
		now:     now,
	}
}

// Lookup 查詢時間窗內的條目
func (m *MemoryStore) Lookup(ctx context.Context, fingerprint string, maxAge time.Duration) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry, ok := m.store[fingerprint]
	if !ok || entry.createdAt.Before(now.Add(-maxAge)) {
		m.stats.misses++
		common.LogCacheMiss("memory", fingerprint)
		return nil, ErrNotFound
	}

	entry.lastAccess = now
	entry.accessCount++
	m.stats.hits++
	common.LogCacheHit("memory", fingerprint)

	return &Entry{
		Fingerprint: fingerprint,
		Response:    entry.resp,
		CreatedAt:   entry.createdAt,
	}, nil
}

// Put 在 fingerprint 不存在或既有條目早於 staleAfter 時寫入
func (m *MemoryStore) Put(ctx context.Context, fingerprint string, resp Response, staleAfter time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if existing, exists := m.store[fingerprint]; exists {
		if staleAfter <= 0 || !existing.createdAt.Before(now.Add(-staleAfter)) {
			return false, nil
		}
	} else if m.maxSize > 0 && len(m.store) >= m.maxSize {
		m.evictLRU()
	}

	m.store[fingerprint] = &memoryEntry{
		resp:       resp,
		createdAt:  now,
		lastAccess: now,
	}
	return true, nil
}

// Sweep 刪除早於 retention 的條目
func (m *MemoryStore) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-retention)
	var count int64
	for key, entry := range m.store {
		if entry.createdAt.Before(cutoff) {
			delete(m.store, key)
			count++
			m.stats.evictions++
		}
	}

	if count > 0 {
		common.LogInfo("Cleaned up expired cache entries",
			zap.String("driver", "memory"),
			zap.Int64("count", count),
			zap.Int("remaining_size", len(m.store)),
		)
	}
	return count, nil
}

// evictLRU 淘汰最少使用的條目，呼叫端需持有寫鎖
func (m *MemoryStore) evictLRU() {
	var oldestKey string
	var oldestAccess time.Time
	var lowestAccessCount int

	for key, entry := range m.store {
		if oldestKey == "" ||
			entry.accessCount < lowestAccessCount ||
			(entry.accessCount == lowestAccessCount && entry.lastAccess.Before(oldestAccess)) {
			oldestKey = key
			oldestAccess = entry.lastAccess
			lowestAccessCount = entry.accessCount
		}
	}

	if oldestKey != "" {
		delete(m.store, oldestKey)
		m.stats.evictions++
		common.LogInfo("快取已淘汰(LRU)", zap.String("fingerprint", oldestKey))
	}
}

// Len 目前條目數
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}

// GetStats 獲取緩存統計信息
func (m *MemoryStore) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ratio := 0.0
	if total := m.stats.hits + m.stats.misses; total > 0 {
		ratio = float64(m.stats.hits) / float64(total)
	}
	return map[string]interface{}{
		"size":      len(m.store),
		"max_size":  m.maxSize,
		"hits":      m.stats.hits,
		"misses":    m.stats.misses,
		"evictions": m.stats.evictions,
		"hit_ratio": ratio,
	}
}

// Close 清空快取
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store = make(map[string]*memoryEntry)
	common.LogInfo("快取管理員已關閉",
		zap.Int64("命中次數", m.stats.hits),
		zap.Int64("未命中次數", m.stats.misses),
		zap.Int64("淘汰次數", m.stats.evictions),
	)
	return nil
}
