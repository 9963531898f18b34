// Package backend 根据配置创建缓存后端，并负责启动预热和关闭。
package backend

import (
	"context"
	"fmt"

	"festcache/pkg/cache"
	"festcache/pkg/config"
	"festcache/pkg/logger"
)

// New 按 cache.backend 创建后端实例
func New(cfg *config.Config) (cache.Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.WithComponent("backend")

	switch cfg.Cache.Backend {
	case config.BackendMemory:
		mc, err := cache.NewMemoryCache(cfg.MemoryCacheConfig())
		if err != nil {
			return nil, err
		}
		log.WithField("max_size", cfg.Cache.MaxSize).Info("using memory cache backend")
		return mc, nil

	case config.BackendRedis:
		rc, err := cache.NewRedisCache(cfg.RedisCacheConfig())
		if err != nil {
			return nil, err
		}
		log.WithField("addr", cfg.Redis.Addr).Info("using redis cache backend")
		return rc, nil
	}

	return nil, fmt.Errorf("%w: unknown cache backend %q", cache.ErrConfigInvalid, cfg.Cache.Backend)
}

// Warmup 启动时批量写入预热数据，返回写入的条目数
func Warmup(ctx context.Context, b cache.Backend, items map[string]any, opts ...cache.Option) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	if _, err := b.MSet(ctx, items, opts...); err != nil {
		return 0, fmt.Errorf("缓存预热失败: %w", err)
	}

	logger.WithComponent("backend").WithField("count", len(items)).Info("cache warmed up")
	return len(items), nil
}

// Shutdown 关闭后端；ctx 超时前未完成时返回 ctx 的错误
func Shutdown(ctx context.Context, b cache.Backend) error {
	done := make(chan error, 1)
	go func() {
		done <- b.Close()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
