package cache

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"festcache/pkg/logger"
)

const bytesPerMB = 1024 * 1024

// MemoryCacheConfig 内存缓存配置
type MemoryCacheConfig struct {
	MaxSize       int           // 最大条目数量
	MaxMemoryMB   float64       // 近似内存上限（MB）
	DefaultTTL    time.Duration // 既没有显式 TTL 也没有分类默认值时使用
	CheckInterval time.Duration // 过期清理间隔，允许小于一秒

	Logger *logrus.Entry // 为空时使用全局日志器
}

// DefaultMemoryCacheConfig 返回默认配置
func DefaultMemoryCacheConfig() MemoryCacheConfig {
	return MemoryCacheConfig{
		MaxSize:       10000,
		MaxMemoryMB:   64,
		DefaultTTL:    5 * time.Minute,
		CheckInterval: 30 * time.Second,
	}
}

// Validate 校验配置，非正数的上限和间隔都是构造期的致命错误
func (c MemoryCacheConfig) Validate() error {
	switch {
	case c.MaxSize <= 0:
		return wrapCacheError(ErrCodeConfigInvalid, "invalid cache configuration", fmt.Errorf("max_size must be positive, got %d", c.MaxSize))
	case c.MaxMemoryMB <= 0 || math.IsNaN(c.MaxMemoryMB) || math.IsInf(c.MaxMemoryMB, 0):
		return wrapCacheError(ErrCodeConfigInvalid, "invalid cache configuration", fmt.Errorf("max_memory_mb must be positive, got %v", c.MaxMemoryMB))
	case c.DefaultTTL <= 0:
		return wrapCacheError(ErrCodeConfigInvalid, "invalid cache configuration", fmt.Errorf("default_ttl must be positive, got %s", c.DefaultTTL))
	case c.CheckInterval <= 0:
		return wrapCacheError(ErrCodeConfigInvalid, "invalid cache configuration", fmt.Errorf("check_interval must be positive, got %s", c.CheckInterval))
	}
	return nil
}

// MemoryCache 线程安全的有界内存缓存。
// 条目、LRU 链表和统计计数共享一把互斥锁；Get 也会调整 LRU 顺序，所以读操作同样持有独占锁。
type MemoryCache struct {
	mu       sync.Mutex
	store    *arena
	counters counters
	closed   bool

	maxSize        int
	maxMemoryBytes int64
	defaultTTL     time.Duration
	checkInterval  time.Duration

	log *logrus.Entry
	now func() time.Time

	// 过期清理
	cancelSweep context.CancelFunc
	wg          sync.WaitGroup
	sweeping    atomic.Bool
	lastSweep   time.Time
	closeOnce   sync.Once
}

// NewMemoryCache 创建内存缓存并启动过期清理协程
func NewMemoryCache(config MemoryCacheConfig) (*MemoryCache, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	log := config.Logger
	if log == nil {
		log = logger.WithComponent("memory-cache")
	}

	mc := &MemoryCache{
		store:          newArena(config.MaxSize),
		maxSize:        config.MaxSize,
		maxMemoryBytes: int64(config.MaxMemoryMB * bytesPerMB),
		defaultTTL:     config.DefaultTTL,
		checkInterval:  config.CheckInterval,
		log:            log,
		now:            time.Now,
	}

	mc.startSweeper()

	log.WithFields(logrus.Fields{
		"max_size":       mc.maxSize,
		"max_memory_mb":  config.MaxMemoryMB,
		"default_ttl":    mc.defaultTTL,
		"check_interval": mc.checkInterval,
	}).Info("memory cache started")

	return mc, nil
}

// Set 写入缓存值
func (mc *MemoryCache) Set(ctx context.Context, key string, value any, opts ...Option) (bool, error) {
	o := applyOptions(opts)
	pk := BuildKey(key, o.namespace)
	size := mc.sizeOf(pk, value)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.closed {
		return false, ErrClosed
	}

	now := mc.now()
	if o.nx {
		// 已过期但尚未清理的条目视为不存在
		if i, ok := mc.store.lookup(pk); ok && !mc.store.at(i).expired(now) {
			return false, nil
		}
	}

	return mc.writeLocked(mc.newEntry(pk, key, value, size, o, now)), nil
}

// MSet 在一次加锁内批量写入
func (mc *MemoryCache) MSet(ctx context.Context, items map[string]any, opts ...Option) (bool, error) {
	o := applyOptions(opts)

	// 序列化估算放在锁外
	sizes := make(map[string]int64, len(items))
	for key, value := range items {
		sizes[key] = mc.sizeOf(BuildKey(key, o.namespace), value)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.closed {
		return false, ErrClosed
	}

	now := mc.now()
	for key, value := range items {
		pk := BuildKey(key, o.namespace)
		mc.writeLocked(mc.newEntry(pk, key, value, sizes[key], o, now))
	}
	return true, nil
}

func (mc *MemoryCache) newEntry(pk, key string, value any, size int64, o callOptions, now time.Time) entry {
	return entry{
		key:          pk,
		logicalKey:   key,
		namespace:    o.namespace,
		value:        value,
		category:     o.category,
		createdAt:    now,
		lastAccessAt: now,
		expireAt:     now.Add(effectiveTTL(o.ttl, o.category, mc.defaultTTL)),
		sizeBytes:    size,
	}
}

// writeLocked 插入或替换条目，移到 LRU 头部，然后执行淘汰。
// 单个值超过内存上限时不写入，同键的旧值一并移除，返回 false。
func (mc *MemoryCache) writeLocked(e entry) bool {
	if e.sizeBytes > mc.maxMemoryBytes {
		if i, ok := mc.store.lookup(e.key); ok {
			mc.store.remove(i)
			mc.counters.evictions++
		}
		mc.log.WithFields(logrus.Fields{
			"key":        e.key,
			"size_bytes": e.sizeBytes,
			"limit":      mc.maxMemoryBytes,
		}).Warn("value exceeds cache memory limit, not stored")
		return false
	}

	i, inserted := mc.store.put(e)
	if inserted {
		mc.store.pushFront(i)
	} else {
		mc.store.touch(i)
	}
	mc.counters.sets++
	mc.evictLocked()
	return true
}

// sizeOf 序列化失败不影响写入，按 0 字节记账
func (mc *MemoryCache) sizeOf(pk string, value any) int64 {
	size, err := estimateSize(value)
	if err != nil {
		mc.log.WithError(err).WithField("key", pk).Warn("cannot size cache value, accounting as 0 bytes")
		return 0
	}
	return size
}

// Get 获取缓存值
func (mc *MemoryCache) Get(ctx context.Context, key string, opts ...Option) (any, error) {
	o := applyOptions(opts)
	pk := BuildKey(key, o.namespace)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.closed {
		return o.fallback, ErrClosed
	}

	i, ok := mc.liveLocked(pk, mc.now())
	if !ok {
		mc.counters.misses++
		return o.fallback, nil
	}

	mc.hitLocked(i)
	return mc.store.at(i).value, nil
}

// liveLocked 查找存活条目，顺带移除查到的过期条目
func (mc *MemoryCache) liveLocked(pk string, now time.Time) (int32, bool) {
	i, ok := mc.store.lookup(pk)
	if !ok {
		return nilSlot, false
	}
	if mc.store.at(i).expired(now) {
		mc.store.remove(i)
		mc.counters.expirations++
		return nilSlot, false
	}
	return i, true
}

func (mc *MemoryCache) hitLocked(i int32) {
	mc.store.at(i).lastAccessAt = mc.now()
	mc.store.touch(i)
	mc.counters.hits++
}

// MGet 批量获取，未命中和已过期的键直接省略
func (mc *MemoryCache) MGet(ctx context.Context, keys []string, opts ...Option) (map[string]any, error) {
	o := applyOptions(opts)
	result := make(map[string]any, len(keys))

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.closed {
		return result, ErrClosed
	}

	now := mc.now()
	for _, key := range keys {
		i, ok := mc.liveLocked(BuildKey(key, o.namespace), now)
		if !ok {
			mc.counters.misses++
			continue
		}
		mc.hitLocked(i)
		result[key] = mc.store.at(i).value
	}
	return result, nil
}

// peekLocked 只读探测，不调整 LRU 也不删除过期条目
func (mc *MemoryCache) peekLocked(pk string, now time.Time) (*entry, bool) {
	i, ok := mc.store.lookup(pk)
	if !ok {
		return nil, false
	}
	e := mc.store.at(i)
	if e.expired(now) {
		return nil, false
	}
	return e, true
}

// Exists 判断键是否存活
func (mc *MemoryCache) Exists(ctx context.Context, key string, opts ...Option) (bool, error) {
	o := applyOptions(opts)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.closed {
		return false, ErrClosed
	}

	_, ok := mc.peekLocked(BuildKey(key, o.namespace), mc.now())
	return ok, nil
}

// TTL 返回剩余秒数
func (mc *MemoryCache) TTL(ctx context.Context, key string, opts ...Option) (int64, error) {
	o := applyOptions(opts)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.closed {
		return -1, ErrClosed
	}

	now := mc.now()
	e, ok := mc.peekLocked(BuildKey(key, o.namespace), now)
	if !ok {
		return -1, nil
	}
	return e.remaining(now), nil
}

// Expire 重置过期时间；ttl 非正数时立即删除该键
func (mc *MemoryCache) Expire(ctx context.Context, key string, ttl time.Duration, opts ...Option) (bool, error) {
	o := applyOptions(opts)
	pk := BuildKey(key, o.namespace)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.closed {
		return false, ErrClosed
	}

	now := mc.now()
	i, ok := mc.liveLocked(pk, now)
	if !ok {
		return false, nil
	}

	if ttl <= 0 {
		mc.store.remove(i)
		mc.counters.deletes++
		return true, nil
	}
	mc.store.at(i).expireAt = now.Add(ttl)
	return true, nil
}

// Incr 原子递增。读、加、写都在同一次加锁内完成。
func (mc *MemoryCache) Incr(ctx context.Context, key string, opts ...Option) (int64, error) {
	o := applyOptions(opts)
	pk := BuildKey(key, o.namespace)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.closed {
		return 0, ErrClosed
	}

	now := mc.now()
	e := mc.newEntry(pk, key, nil, 8, o, now)

	var current int64
	if i, ok := mc.liveLocked(pk, now); ok {
		old := mc.store.at(i)
		n, isInt := toInt64(old.value)
		if !isInt {
			return 0, ErrNotInteger
		}
		current = n
		// 保留原有的创建时间、分类和剩余 TTL
		e.createdAt = old.createdAt
		e.category = old.category
		e.expireAt = old.expireAt
	}

	next, ok := addInt64(current, o.amount)
	if !ok {
		return 0, ErrOverflow
	}
	e.value = next
	if !mc.writeLocked(e) {
		return 0, ErrValueTooLarge
	}
	return next, nil
}

// addInt64 溢出时返回 false
func addInt64(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

// toInt64 把可以无损解释为整数的值转换为 int64
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

func floatToInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// Del 删除缓存值
func (mc *MemoryCache) Del(ctx context.Context, key string, opts ...Option) (bool, error) {
	o := applyOptions(opts)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.closed {
		return false, ErrClosed
	}

	i, ok := mc.liveLocked(BuildKey(key, o.namespace), mc.now())
	if !ok {
		return false, nil
	}
	mc.store.remove(i)
	mc.counters.deletes++
	return true, nil
}

// matchLocked 收集匹配模式的存活条目。
// 指定命名空间时在该命名空间内匹配逻辑键，否则匹配物理键。
func (mc *MemoryCache) matchLocked(pattern string, o callOptions, now time.Time) []int32 {
	var matched []int32
	mc.store.each(func(i int32, e *entry) bool {
		if e.expired(now) {
			return true
		}
		if o.namespace != "" {
			if e.namespace == o.namespace && MatchPattern(pattern, e.logicalKey) {
				matched = append(matched, i)
			}
		} else if MatchPattern(pattern, e.key) {
			matched = append(matched, i)
		}
		return true
	})
	return matched
}

// Keys 列出匹配模式的存活物理键，按字典序排列
func (mc *MemoryCache) Keys(ctx context.Context, pattern string, opts ...Option) ([]string, error) {
	o := applyOptions(opts)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.closed {
		return nil, ErrClosed
	}

	matched := mc.matchLocked(pattern, o, mc.now())
	keys := make([]string, 0, len(matched))
	for _, i := range matched {
		keys = append(keys, mc.store.at(i).key)
	}
	sort.Strings(keys)
	return keys, nil
}

// DelPattern 删除匹配模式的存活键
func (mc *MemoryCache) DelPattern(ctx context.Context, pattern string, opts ...Option) (int, error) {
	o := applyOptions(opts)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.closed {
		return 0, ErrClosed
	}

	matched := mc.matchLocked(pattern, o, mc.now())
	for _, i := range matched {
		mc.store.remove(i)
	}
	mc.counters.deletes += int64(len(matched))
	return len(matched), nil
}

// FlushNamespace 删除命名空间下的全部条目；空命名空间不做任何事
func (mc *MemoryCache) FlushNamespace(ctx context.Context, namespace string) (int, error) {
	if namespace == "" {
		return 0, nil
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.closed {
		return 0, ErrClosed
	}

	var matched []int32
	mc.store.each(func(i int32, e *entry) bool {
		if e.namespace == namespace {
			matched = append(matched, i)
		}
		return true
	})
	for _, i := range matched {
		mc.store.remove(i)
	}
	mc.counters.deletes += int64(len(matched))

	mc.log.WithFields(logrus.Fields{
		"namespace": namespace,
		"removed":   len(matched),
	}).Info("namespace flushed")
	return len(matched), nil
}

// Clear 清空缓存，统计计数保持不变
func (mc *MemoryCache) Clear(ctx context.Context) (int, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.closed {
		return 0, ErrClosed
	}
	return mc.store.reset(), nil
}

// Inspect 返回条目元数据；已过期但尚未清理的条目以 IsExpired=true 返回
func (mc *MemoryCache) Inspect(ctx context.Context, key string, opts ...Option) (*EntryInfo, error) {
	o := applyOptions(opts)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.closed {
		return nil, ErrClosed
	}

	i, ok := mc.store.lookup(BuildKey(key, o.namespace))
	if !ok {
		return nil, nil
	}

	now := mc.now()
	e := mc.store.at(i)
	return &EntryInfo{
		Key:          e.key,
		Namespace:    e.namespace,
		Category:     e.category,
		TTLRemaining: e.remaining(now),
		CreatedAt:    e.createdAt,
		LastAccessAt: e.lastAccessAt,
		SizeBytes:    e.sizeBytes,
		IsExpired:    e.expired(now),
	}, nil
}

// Stats 获取缓存统计信息
func (mc *MemoryCache) Stats() Stats {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.statsLocked()
}

func (mc *MemoryCache) statsLocked() Stats {
	s := mc.counters.snapshot()
	s.CurrentSize = int64(mc.store.len())
	s.CurrentMemoryBytes = mc.store.bytes
	s.MaxSize = int64(mc.maxSize)
	s.MaxMemoryBytes = mc.maxMemoryBytes
	s.LastSweep = mc.lastSweep
	return s
}

// ResetStats 把计数器清零，当前条目数和内存占用不受影响
func (mc *MemoryCache) ResetStats() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.counters.reset()
}

// HealthCheck 返回健康状态；缓存关闭或记账出现不一致时为 unhealthy
func (mc *MemoryCache) HealthCheck(ctx context.Context) HealthStatus {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	status := HealthStatus{
		Status:    StatusHealthy,
		Backend:   "memory",
		Stats:     mc.statsLocked(),
		Timestamp: mc.now(),
	}

	switch {
	case mc.closed:
		status.Status = StatusUnhealthy
		status.Error = ErrClosed.Error()
	case mc.store.bytes < 0 || mc.store.len() > mc.maxSize:
		status.Status = StatusUnhealthy
		status.Error = "cache accounting is inconsistent"
	}
	return status
}

// Close 停止过期清理协程并等待进行中的清理结束，可以重复调用
func (mc *MemoryCache) Close() error {
	mc.closeOnce.Do(func() {
		mc.mu.Lock()
		mc.closed = true
		mc.mu.Unlock()

		mc.cancelSweep()
		mc.wg.Wait()

		mc.log.Info("memory cache closed")
	})
	return nil
}
