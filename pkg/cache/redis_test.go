package cache

import (
	"context"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "festcache/pkg/error"
	"festcache/pkg/logger"
)

func TestNewRedisCache_InvalidConfig(t *testing.T) {
	_, err := NewRedisCache(RedisCacheConfig{DefaultTTL: time.Minute})
	assert.ErrorIs(t, err, ErrConfigInvalid)

	_, err = NewRedisCache(RedisCacheConfig{Addr: "127.0.0.1:6379"})
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

func TestEncodeDecodeValue(t *testing.T) {
	now := time.UnixMilli(1700000000000)

	raw, err := encodeValue(42, CategoryNone, now)
	require.NoError(t, err)
	assert.Equal(t, "42", raw, "整数直接保存以便 INCRBY")

	value, env, err := decodeValue(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), value)
	assert.Nil(t, env)

	raw, err = encodeValue(map[string]any{"stage": "Main", "slots": 3}, CategoryAPI, now)
	require.NoError(t, err)

	value, env, err = decodeValue(raw)
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, CategoryAPI, env.Category)
	assert.Equal(t, now.UnixMilli(), env.Created)
	assert.Equal(t, map[string]any{"stage": "Main", "slots": float64(3)}, value)

	// 数字字符串仍按字符串保存
	raw, err = encodeValue("007", CategoryNone, now)
	require.NoError(t, err)
	value, _, err = decodeValue(raw)
	require.NoError(t, err)
	assert.Equal(t, "007", value)
}

func TestEncodeValue_Unserializable(t *testing.T) {
	_, err := encodeValue(make(chan int), CategoryNone, time.Now())
	assert.ErrorIs(t, err, NewCacheError(ErrCodeSerializeFailed, ""))
}

func TestDecodeValue_Corrupted(t *testing.T) {
	_, _, err := decodeValue("not json")
	assert.Error(t, err)
	assert.True(t, apperr.HasCode(err, ErrCodeSerializeFailed))
}

func TestCeilSeconds(t *testing.T) {
	assert.Equal(t, int64(-1), ceilSeconds(-2))
	assert.Equal(t, int64(-1), ceilSeconds(-1))
	assert.Equal(t, int64(-1), ceilSeconds(0))
	assert.Equal(t, int64(1), ceilSeconds(300*time.Millisecond))
	assert.Equal(t, int64(2), ceilSeconds(2*time.Second))
	assert.Equal(t, int64(3), ceilSeconds(2001*time.Millisecond))
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, "festcache:", escapeGlob("festcache:"))
	assert.Equal(t, `a\*b\?c\[d\]\\`, escapeGlob(`a*b?c[d]\`))
}

func unreachableRedis(t *testing.T, breaker BreakerConfig) *RedisCache {
	t.Helper()
	rc, err := NewRedisCache(RedisCacheConfig{
		Addr:        "127.0.0.1:1",
		KeyPrefix:   "festcache:",
		DefaultTTL:  time.Minute,
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
		Breaker:     breaker,
		Logger:      logger.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })
	return rc
}

func TestRedisCache_BreakerOpensOnConnectionFailures(t *testing.T) {
	breaker := DefaultBreakerConfig()
	breaker.ReadyToTrip = 2
	breaker.Timeout = time.Minute
	rc := unreachableRedis(t, breaker)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := rc.Set(ctx, "k", "v")
		assert.ErrorIs(t, err, ErrBackendUnavailable)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState, "熔断前返回连接错误")
	}

	_, err := rc.Set(ctx, "k", "v")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestRedisCache_GetReturnsFallbackOnFailure(t *testing.T) {
	rc := unreachableRedis(t, BreakerConfig{})

	value, err := rc.Get(context.Background(), "k", WithFallback("default"))
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Equal(t, "default", value)
	assert.Equal(t, int64(1), rc.Stats().Misses)
}

func TestRedisCache_HealthCheckUnhealthy(t *testing.T) {
	rc := unreachableRedis(t, BreakerConfig{})

	status := rc.HealthCheck(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "redis", status.Backend)
	assert.NotEmpty(t, status.Error)
}

func TestRedisCache_Closed(t *testing.T) {
	rc := unreachableRedis(t, BreakerConfig{})
	require.NoError(t, rc.Close())
	require.NoError(t, rc.Close())

	_, err := rc.Set(context.Background(), "k", "v")
	assert.ErrorIs(t, err, ErrClosed)
}
