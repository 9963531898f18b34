package cache

// overLimitLocked 条目数或内存占用是否超过上限
func (mc *MemoryCache) overLimitLocked() bool {
	return mc.store.len() > mc.maxSize || mc.store.bytes > mc.maxMemoryBytes
}

// evictLocked 从 LRU 尾部淘汰条目，直到两个上限都满足，返回淘汰数量
func (mc *MemoryCache) evictLocked() int {
	evicted := 0
	for mc.overLimitLocked() {
		i, ok := mc.store.oldest()
		if !ok {
			break
		}
		e := mc.store.remove(i)
		mc.counters.evictions++
		evicted++

		mc.log.WithField("key", e.key).Debug("evicted least recently used entry")
	}
	return evicted
}
