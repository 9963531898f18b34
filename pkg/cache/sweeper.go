package cache

import (
	"context"
	"time"
)

// startSweeper 启动过期清理协程，由 Close 取消并等待退出
func (mc *MemoryCache) startSweeper() {
	ctx, cancel := context.WithCancel(context.Background())
	mc.cancelSweep = cancel

	mc.wg.Add(1)
	go mc.sweepLoop(ctx)
}

func (mc *MemoryCache) sweepLoop(ctx context.Context) {
	defer mc.wg.Done()

	// 单个协程顺序处理 tick，上一轮未结束时 Ticker 会丢弃多余的 tick
	ticker := time.NewTicker(mc.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := mc.Sweep(ctx); n > 0 {
				mc.log.WithField("removed", n).Debug("expired entries swept")
			}
		}
	}
}

// Sweep 立即执行一轮过期清理，返回移除的条目数。
// 已有一轮清理在进行时直接返回 0，不会并行执行。
func (mc *MemoryCache) Sweep(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	if !mc.sweeping.CompareAndSwap(false, true) {
		return 0
	}
	defer mc.sweeping.Store(false)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := mc.now()
	var expired []int32
	mc.store.each(func(i int32, e *entry) bool {
		if e.expired(now) {
			expired = append(expired, i)
		}
		return true
	})

	for _, i := range expired {
		mc.store.remove(i)
	}
	mc.counters.expirations += int64(len(expired))
	mc.lastSweep = now

	return len(expired)
}
