// Package cache 提供票务平台使用的有界进程内缓存（MemoryCache），以及实现同一调用约定的 Redis 后端。
package cache

import (
	"context"
	"time"
)

// Backend 定义了所有缓存后端都必须遵循的调用约定。
// 业务代码只依赖这个接口，由 backend 包在启动时决定具体实现。
type Backend interface {
	// Set 写入一个值；带 WithNX 且键已存在时返回 false 且不修改任何状态。
	Set(ctx context.Context, key string, value any, opts ...Option) (bool, error)
	// Get 读取一个值；未命中或已过期时返回 WithFallback 指定的值（默认 nil）。
	Get(ctx context.Context, key string, opts ...Option) (any, error)
	// Del 删除一个键，仅当删除了一个存活条目时返回 true。
	Del(ctx context.Context, key string, opts ...Option) (bool, error)
	// Exists 存活性探测，不影响 LRU 顺序。
	Exists(ctx context.Context, key string, opts ...Option) (bool, error)
	// TTL 返回剩余秒数（向上取整），键不存在或已过期时返回 -1。
	TTL(ctx context.Context, key string, opts ...Option) (int64, error)
	// Expire 重置过期时间，不修改值。
	Expire(ctx context.Context, key string, ttl time.Duration, opts ...Option) (bool, error)
	// Incr 原子地加上 WithAmount 指定的值（默认 1）并返回新值。
	Incr(ctx context.Context, key string, opts ...Option) (int64, error)

	// MGet 批量读取，只返回存活的键。
	MGet(ctx context.Context, keys []string, opts ...Option) (map[string]any, error)
	// MSet 批量写入，使用同一组 TTL/分类/命名空间选项。
	MSet(ctx context.Context, items map[string]any, opts ...Option) (bool, error)

	// Keys 列出匹配通配符模式的存活物理键，"*" 列出全部。
	Keys(ctx context.Context, pattern string, opts ...Option) ([]string, error)
	// DelPattern 删除匹配通配符模式的存活键，返回删除数量。
	DelPattern(ctx context.Context, pattern string, opts ...Option) (int, error)
	// FlushNamespace 删除命名空间下的全部条目。
	FlushNamespace(ctx context.Context, namespace string) (int, error)
	// Clear 清空全部条目，不重置统计。
	Clear(ctx context.Context) (int, error)
	// Inspect 返回条目的元数据，条目不存在时返回 nil。
	Inspect(ctx context.Context, key string, opts ...Option) (*EntryInfo, error)

	Stats() Stats
	ResetStats()
	HealthCheck(ctx context.Context) HealthStatus
	Close() error
}

// EntryInfo 是 Inspect 返回的条目元数据快照。
type EntryInfo struct {
	Key          string    `json:"key"`
	Namespace    string    `json:"namespace,omitempty"`
	Category     Category  `json:"category"`
	TTLRemaining int64     `json:"ttl_remaining"` // 剩余秒数，已过期时为 -1
	CreatedAt    time.Time `json:"created_at"`
	LastAccessAt time.Time `json:"last_access_at"`
	SizeBytes    int64     `json:"size_bytes"`
	IsExpired    bool      `json:"is_expired"`
}

// HealthStatus 是 HealthCheck 的返回值。
type HealthStatus struct {
	Status    string    `json:"status"` // healthy, unhealthy
	Backend   string    `json:"backend"`
	Stats     Stats     `json:"stats"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

var (
	_ Backend = (*MemoryCache)(nil)
	_ Backend = (*RedisCache)(nil)
)
