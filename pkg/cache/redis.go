package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"festcache/pkg/logger"
)

// RedisCacheConfig 远程缓存配置
type RedisCacheConfig struct {
	Addr        string        // host:port
	Password    string        // 密码
	DB          int           // 数据库编号
	KeyPrefix   string        // 全局键前缀，Clear/Keys 只作用于该前缀下的键
	DefaultTTL  time.Duration // 默认生存时间
	DialTimeout time.Duration // 连接超时
	MaxRetries  int           // go-redis 重试次数，-1 表示不重试
	ScanCount   int64         // SCAN 每批返回的建议数量
	Breaker     BreakerConfig

	Logger *logrus.Entry
}

// RedisCache 基于 Redis 的缓存后端，与 MemoryCache 遵循同一调用约定。
// 每条命令都经过熔断器；值以 JSON 信封保存，整数以十进制字符串保存以便 INCRBY。
type RedisCache struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
	config RedisCacheConfig
	log    *logrus.Entry

	mu       sync.Mutex
	counters counters
	closed   atomic.Bool
}

// envelope 非整数值在 Redis 中的存储格式
type envelope struct {
	Value    json.RawMessage `json:"v"`
	Category Category        `json:"c,omitempty"`
	Created  int64           `json:"t"` // 创建时间，Unix 毫秒
}

// NewRedisCache 创建 Redis 缓存。连接是惰性的，可用性由 HealthCheck 检查。
func NewRedisCache(config RedisCacheConfig) (*RedisCache, error) {
	if config.Addr == "" {
		return nil, wrapCacheError(ErrCodeConfigInvalid, "invalid cache configuration", errors.New("redis addr cannot be empty"))
	}
	if config.DefaultTTL <= 0 {
		return nil, wrapCacheError(ErrCodeConfigInvalid, "invalid cache configuration", fmt.Errorf("default_ttl must be positive, got %s", config.DefaultTTL))
	}
	if config.ScanCount <= 0 {
		config.ScanCount = 100
	}

	log := config.Logger
	if log == nil {
		log = logger.WithComponent("redis-cache")
	}

	client := redis.NewClient(&redis.Options{
		Addr:        config.Addr,
		Password:    config.Password,
		DB:          config.DB,
		DialTimeout: config.DialTimeout,
		MaxRetries:  config.MaxRetries,
	})

	return &RedisCache{
		client: client,
		cb:     newBreaker(config.Breaker, log),
		config: config,
		log:    log,
	}, nil
}

// do 通过熔断器执行一条 Redis 命令
func (rc *RedisCache) do(fn func() error) error {
	if rc.closed.Load() {
		return ErrClosed
	}
	if rc.cb == nil {
		return classifyRedisError(fn())
	}

	_, err := rc.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return classifyRedisError(err)
}

// classifyRedisError 连接类错误和熔断拒绝统一为 ErrBackendUnavailable，
// redis.Nil 与服务端命令错误原样返回
func classifyRedisError(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	var replyErr redis.Error
	if errors.As(err, &replyErr) {
		return err
	}
	return wrapCacheError(ErrCodeBackendUnavailable, "cache backend unavailable", err)
}

func (rc *RedisCache) count(fn func(c *counters)) {
	rc.mu.Lock()
	fn(&rc.counters)
	rc.mu.Unlock()
}

// redisKey 物理键加上全局前缀
func (rc *RedisCache) redisKey(key, namespace string) string {
	return rc.config.KeyPrefix + BuildKey(key, namespace)
}

func (rc *RedisCache) stripPrefix(redisKey string) string {
	return strings.TrimPrefix(redisKey, rc.config.KeyPrefix)
}

// encodeValue 整数直接保存为十进制，其余值包进 JSON 信封
func encodeValue(value any, category Category, now time.Time) (string, error) {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		n, _ := toInt64(value)
		return strconv.FormatInt(n, 10), nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return "", wrapCacheError(ErrCodeSerializeFailed, "value serialization failed", err)
	}
	data, err := json.Marshal(envelope{Value: raw, Category: category, Created: now.UnixMilli()})
	if err != nil {
		return "", wrapCacheError(ErrCodeSerializeFailed, "value serialization failed", err)
	}
	return string(data), nil
}

// decodeValue 解析 encodeValue 的输出，整数返回 int64
func decodeValue(raw string) (any, *envelope, error) {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, nil, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, nil, wrapCacheError(ErrCodeSerializeFailed, "stored value is not a cache envelope", err)
	}
	var value any
	if len(env.Value) > 0 {
		if err := json.Unmarshal(env.Value, &value); err != nil {
			return nil, nil, wrapCacheError(ErrCodeSerializeFailed, "stored value is corrupted", err)
		}
	}
	return value, &env, nil
}

// Set 写入缓存值
func (rc *RedisCache) Set(ctx context.Context, key string, value any, opts ...Option) (bool, error) {
	o := applyOptions(opts)
	k := rc.redisKey(key, o.namespace)

	raw, err := encodeValue(value, o.category, time.Now())
	if err != nil {
		rc.log.WithError(err).WithField("key", k).Warn("cannot encode cache value")
		return false, err
	}

	ttl := effectiveTTL(o.ttl, o.category, rc.config.DefaultTTL)
	ok := true
	err = rc.do(func() error {
		if o.nx {
			var e error
			ok, e = rc.client.SetNX(ctx, k, raw, ttl).Result()
			return e
		}
		return rc.client.Set(ctx, k, raw, ttl).Err()
	})
	if err != nil {
		return false, err
	}
	if ok {
		rc.count(func(c *counters) { c.sets++ })
	}
	return ok, nil
}

// Get 获取缓存值；传输错误时返回 fallback 并同时返回错误
func (rc *RedisCache) Get(ctx context.Context, key string, opts ...Option) (any, error) {
	o := applyOptions(opts)
	k := rc.redisKey(key, o.namespace)

	var raw string
	err := rc.do(func() error {
		var e error
		raw, e = rc.client.Get(ctx, k).Result()
		return e
	})
	if errors.Is(err, redis.Nil) {
		rc.count(func(c *counters) { c.misses++ })
		return o.fallback, nil
	}
	if err != nil {
		rc.count(func(c *counters) { c.misses++ })
		rc.log.WithError(err).WithField("key", k).Warn("cache read failed, returning fallback")
		return o.fallback, err
	}

	value, _, err := decodeValue(raw)
	if err != nil {
		rc.count(func(c *counters) { c.misses++ })
		return o.fallback, err
	}
	rc.count(func(c *counters) { c.hits++ })
	return value, nil
}

// Del 删除缓存值
func (rc *RedisCache) Del(ctx context.Context, key string, opts ...Option) (bool, error) {
	o := applyOptions(opts)

	var n int64
	err := rc.do(func() error {
		var e error
		n, e = rc.client.Del(ctx, rc.redisKey(key, o.namespace)).Result()
		return e
	})
	if err != nil {
		return false, err
	}
	rc.count(func(c *counters) { c.deletes += n })
	return n > 0, nil
}

// Exists 判断键是否存在
func (rc *RedisCache) Exists(ctx context.Context, key string, opts ...Option) (bool, error) {
	o := applyOptions(opts)

	var n int64
	err := rc.do(func() error {
		var e error
		n, e = rc.client.Exists(ctx, rc.redisKey(key, o.namespace)).Result()
		return e
	})
	return n > 0, err
}

// TTL 返回剩余秒数，向上取整
func (rc *RedisCache) TTL(ctx context.Context, key string, opts ...Option) (int64, error) {
	o := applyOptions(opts)

	var d time.Duration
	err := rc.do(func() error {
		var e error
		d, e = rc.client.PTTL(ctx, rc.redisKey(key, o.namespace)).Result()
		return e
	})
	if err != nil {
		return -1, err
	}
	return ceilSeconds(d), nil
}

// ceilSeconds Redis 用负数表示键不存在或没有过期时间，统一返回 -1
func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return -1
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

// Expire 重置过期时间；ttl 非正数时删除该键
func (rc *RedisCache) Expire(ctx context.Context, key string, ttl time.Duration, opts ...Option) (bool, error) {
	if ttl <= 0 {
		return rc.Del(ctx, key, opts...)
	}

	o := applyOptions(opts)
	var ok bool
	err := rc.do(func() error {
		var e error
		ok, e = rc.client.PExpire(ctx, rc.redisKey(key, o.namespace), ttl).Result()
		return e
	})
	return ok, err
}

// Incr 使用 INCRBY 原子递增；新建的计数器补上默认 TTL
func (rc *RedisCache) Incr(ctx context.Context, key string, opts ...Option) (int64, error) {
	o := applyOptions(opts)
	k := rc.redisKey(key, o.namespace)

	var n int64
	err := rc.do(func() error {
		var e error
		n, e = rc.client.IncrBy(ctx, k, o.amount).Result()
		return e
	})
	if err != nil {
		switch msg := err.Error(); {
		case strings.Contains(msg, "not an integer"):
			return 0, ErrNotInteger
		case strings.Contains(msg, "overflow"):
			return 0, ErrOverflow
		}
		return 0, err
	}
	rc.count(func(c *counters) { c.sets++ })

	// INCRBY 不设置过期时间，没有 TTL 的键说明是刚创建的
	ttl := effectiveTTL(o.ttl, o.category, rc.config.DefaultTTL)
	err = rc.do(func() error {
		remaining, e := rc.client.PTTL(ctx, k).Result()
		if e != nil || remaining != -1 {
			return e
		}
		return rc.client.PExpire(ctx, k, ttl).Err()
	})
	if err != nil {
		rc.log.WithError(err).WithField("key", k).Warn("cannot set ttl on counter")
	}
	return n, nil
}

// MGet 批量获取
func (rc *RedisCache) MGet(ctx context.Context, keys []string, opts ...Option) (map[string]any, error) {
	o := applyOptions(opts)
	result := make(map[string]any, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKeys[i] = rc.redisKey(key, o.namespace)
	}

	var raws []interface{}
	err := rc.do(func() error {
		var e error
		raws, e = rc.client.MGet(ctx, redisKeys...).Result()
		return e
	})
	if err != nil {
		rc.count(func(c *counters) { c.misses += int64(len(keys)) })
		return result, err
	}

	var hits, misses int64
	for i, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			misses++
			continue
		}
		value, _, decodeErr := decodeValue(s)
		if decodeErr != nil {
			misses++
			continue
		}
		hits++
		result[keys[i]] = value
	}
	rc.count(func(c *counters) {
		c.hits += hits
		c.misses += misses
	})
	return result, nil
}

// MSet 用一个 pipeline 批量写入；单个值编码失败只记录日志
func (rc *RedisCache) MSet(ctx context.Context, items map[string]any, opts ...Option) (bool, error) {
	o := applyOptions(opts)
	ttl := effectiveTTL(o.ttl, o.category, rc.config.DefaultTTL)
	now := time.Now()

	encoded := make(map[string]string, len(items))
	for key, value := range items {
		k := rc.redisKey(key, o.namespace)
		raw, err := encodeValue(value, o.category, now)
		if err != nil {
			rc.log.WithError(err).WithField("key", k).Warn("skipping unencodable value in batch")
			continue
		}
		encoded[k] = raw
	}
	if len(encoded) == 0 {
		return true, nil
	}

	err := rc.do(func() error {
		_, e := rc.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for k, raw := range encoded {
				pipe.Set(ctx, k, raw, ttl)
			}
			return nil
		})
		return e
	})
	if err != nil {
		return false, err
	}
	rc.count(func(c *counters) { c.sets += int64(len(encoded)) })
	return true, nil
}

// scan 遍历前缀下的全部键（含全局前缀）
func (rc *RedisCache) scan(ctx context.Context, match string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		var batch []string
		err := rc.do(func() error {
			var e error
			batch, cursor, e = rc.client.Scan(ctx, cursor, match, rc.config.ScanCount).Result()
			return e
		})
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if cursor == 0 {
			return keys, nil
		}
	}
}

// matchKeys 先用前缀缩小 SCAN 范围，再用 MatchPattern 精确过滤，和 MemoryCache 的匹配语义一致
func (rc *RedisCache) matchKeys(ctx context.Context, pattern string, o callOptions) ([]string, error) {
	scope := rc.config.KeyPrefix
	if o.namespace != "" {
		scope += o.namespace + NamespaceSeparator
	}

	candidates, err := rc.scan(ctx, escapeGlob(scope)+"*")
	if err != nil {
		return nil, err
	}

	var matched []string
	for _, k := range candidates {
		if MatchPattern(pattern, strings.TrimPrefix(k, scope)) {
			matched = append(matched, k)
		}
	}
	return matched, nil
}

// escapeGlob 转义 Redis MATCH 中的特殊字符
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Keys 列出匹配模式的物理键（不含全局前缀），按字典序排列
func (rc *RedisCache) Keys(ctx context.Context, pattern string, opts ...Option) ([]string, error) {
	matched, err := rc.matchKeys(ctx, pattern, applyOptions(opts))
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(matched))
	for _, k := range matched {
		keys = append(keys, rc.stripPrefix(k))
	}
	sort.Strings(keys)
	return keys, nil
}

func (rc *RedisCache) delAll(ctx context.Context, keys []string) (int, error) {
	var total int64
	for start := 0; start < len(keys); start += int(rc.config.ScanCount) {
		end := start + int(rc.config.ScanCount)
		if end > len(keys) {
			end = len(keys)
		}

		var n int64
		err := rc.do(func() error {
			var e error
			n, e = rc.client.Del(ctx, keys[start:end]...).Result()
			return e
		})
		if err != nil {
			return int(total), err
		}
		total += n
	}
	return int(total), nil
}

// DelPattern 删除匹配模式的键
func (rc *RedisCache) DelPattern(ctx context.Context, pattern string, opts ...Option) (int, error) {
	matched, err := rc.matchKeys(ctx, pattern, applyOptions(opts))
	if err != nil {
		return 0, err
	}
	n, err := rc.delAll(ctx, matched)
	rc.count(func(c *counters) { c.deletes += int64(n) })
	return n, err
}

// FlushNamespace 删除命名空间下的全部键
func (rc *RedisCache) FlushNamespace(ctx context.Context, namespace string) (int, error) {
	if namespace == "" {
		return 0, nil
	}
	return rc.DelPattern(ctx, "*", WithNamespace(namespace))
}

// Clear 删除全局前缀下的全部键
func (rc *RedisCache) Clear(ctx context.Context) (int, error) {
	keys, err := rc.scan(ctx, escapeGlob(rc.config.KeyPrefix)+"*")
	if err != nil {
		return 0, err
	}
	// Clear 不计入删除统计
	return rc.delAll(ctx, keys)
}

// Inspect 返回条目元数据
func (rc *RedisCache) Inspect(ctx context.Context, key string, opts ...Option) (*EntryInfo, error) {
	o := applyOptions(opts)
	k := rc.redisKey(key, o.namespace)

	var (
		raw  string
		pttl time.Duration
		idle time.Duration
	)
	err := rc.do(func() error {
		pipe := rc.client.Pipeline()
		getCmd := pipe.Get(ctx, k)
		ttlCmd := pipe.PTTL(ctx, k)
		idleCmd := pipe.ObjectIdleTime(ctx, k)
		_, _ = pipe.Exec(ctx)

		var e error
		if raw, e = getCmd.Result(); e != nil {
			return e
		}
		pttl = ttlCmd.Val()
		idle = idleCmd.Val()
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	info := &EntryInfo{
		Key:          BuildKey(key, o.namespace),
		Namespace:    o.namespace,
		TTLRemaining: ceilSeconds(pttl),
		LastAccessAt: time.Now().Add(-idle),
		SizeBytes:    int64(len(raw)),
	}
	if _, env, decodeErr := decodeValue(raw); decodeErr == nil && env != nil {
		info.Category = env.Category
		info.CreatedAt = time.UnixMilli(env.Created)
	}
	return info, nil
}

// Stats 远程后端只统计本进程发出的请求，没有条目数和内存占用
func (rc *RedisCache) Stats() Stats {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.counters.snapshot()
}

// ResetStats 计数器清零
func (rc *RedisCache) ResetStats() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.counters.reset()
}

// HealthCheck PING 失败或熔断器打开时为 unhealthy
func (rc *RedisCache) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    StatusHealthy,
		Backend:   "redis",
		Stats:     rc.Stats(),
		Timestamp: time.Now(),
	}

	err := rc.do(func() error {
		return rc.client.Ping(ctx).Err()
	})
	if err != nil {
		status.Status = StatusUnhealthy
		status.Error = err.Error()
	}
	return status
}

// Close 关闭连接池，可以重复调用
func (rc *RedisCache) Close() error {
	if rc.closed.Swap(true) {
		return nil
	}
	rc.log.Info("redis cache closed")
	return rc.client.Close()
}
