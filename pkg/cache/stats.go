package cache

import (
	"fmt"
	"time"
)

// Stats 缓存统计快照
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Sets        int64 `json:"sets"`
	Deletes     int64 `json:"deletes"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"` // 被过期清理移除的条目数

	CurrentSize        int64 `json:"current_size"`
	CurrentMemoryBytes int64 `json:"current_memory_bytes"`
	MaxSize            int64 `json:"max_size"`
	MaxMemoryBytes     int64 `json:"max_memory_bytes"`

	HitRatio  string    `json:"hit_ratio"` // 例如 "66.67%"
	LastSweep time.Time `json:"last_sweep"`
}

// counters 单调递增的计数器，和条目一起由 MemoryCache 的锁保护
type counters struct {
	hits        int64
	misses      int64
	sets        int64
	deletes     int64
	evictions   int64
	expirations int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Sets:        c.sets,
		Deletes:     c.deletes,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		HitRatio:    FormatHitRatio(c.hits, c.misses),
	}
}

func (c *counters) reset() {
	*c = counters{}
}

// FormatHitRatio 把命中率格式化为保留两位小数的百分比，没有任何查询时返回 "0.00%"
func FormatHitRatio(hits, misses int64) string {
	total := hits + misses
	if total <= 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(hits)*100/float64(total))
}
