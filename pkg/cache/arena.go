package cache

import "time"

// nilSlot 表示链表中的空引用
const nilSlot int32 = -1

// entry 缓存条目
type entry struct {
	key          string // 物理键（带命名空间前缀）
	logicalKey   string
	namespace    string
	value        any
	category     Category
	createdAt    time.Time
	lastAccessAt time.Time
	expireAt     time.Time
	sizeBytes    int64
}

func (e *entry) expired(now time.Time) bool {
	return !e.expireAt.After(now)
}

// remaining 剩余秒数向上取整，已过期返回 -1
func (e *entry) remaining(now time.Time) int64 {
	if e.expired(now) {
		return -1
	}
	d := e.expireAt.Sub(now)
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

// slot 是 arena 中的一个槽位，prev/next 是 LRU 链表的下标链接
type slot struct {
	entry
	prev, next int32
	used       bool
}

// arena 用连续的槽位切片保存全部条目，index 把物理键映射到槽位下标，
// 释放的槽位进入 free 列表复用，不为每个条目单独分配链表节点。
// arena 本身不做任何策略判断，也不加锁，由 MemoryCache 持锁调用。
type arena struct {
	slots []slot
	index map[string]int32
	free  []int32

	head, tail int32 // head 最近使用，tail 最久未使用
	bytes      int64
}

func newArena(capacity int) *arena {
	if capacity > 1<<16 {
		capacity = 1 << 16
	}
	return &arena{
		slots: make([]slot, 0, capacity),
		index: make(map[string]int32, capacity),
		head:  nilSlot,
		tail:  nilSlot,
	}
}

func (a *arena) len() int {
	return len(a.index)
}

// lookup 按物理键查找槽位
func (a *arena) lookup(key string) (int32, bool) {
	i, ok := a.index[key]
	return i, ok
}

func (a *arena) at(i int32) *entry {
	return &a.slots[i].entry
}

// put 插入或原地替换条目，返回槽位下标以及是否为新插入。
// 新条目尚未链接到 LRU 链表，由调用方决定放在哪里。
func (a *arena) put(e entry) (int32, bool) {
	if i, ok := a.index[e.key]; ok {
		a.bytes += e.sizeBytes - a.slots[i].sizeBytes
		a.slots[i].entry = e
		return i, false
	}

	var i int32
	if n := len(a.free); n > 0 {
		i = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot{})
		i = int32(len(a.slots) - 1)
	}

	a.slots[i] = slot{entry: e, prev: nilSlot, next: nilSlot, used: true}
	a.index[e.key] = i
	a.bytes += e.sizeBytes
	return i, true
}

// remove 从 arena 和 LRU 链表中同时移除槽位
func (a *arena) remove(i int32) entry {
	s := &a.slots[i]
	removed := s.entry

	a.unlink(i)
	delete(a.index, removed.key)
	a.bytes -= removed.sizeBytes

	*s = slot{prev: nilSlot, next: nilSlot}
	a.free = append(a.free, i)
	return removed
}

// each 遍历全部条目（包括已过期但尚未清理的），fn 返回 false 时停止。
// 遍历期间不得增删条目；需要删除时先收集下标。
func (a *arena) each(fn func(i int32, e *entry) bool) {
	for i := range a.slots {
		if !a.slots[i].used {
			continue
		}
		if !fn(int32(i), &a.slots[i].entry) {
			return
		}
	}
}

// reset 丢弃全部条目，返回丢弃的数量
func (a *arena) reset() int {
	n := len(a.index)
	a.slots = a.slots[:0]
	a.index = make(map[string]int32)
	a.free = a.free[:0]
	a.head, a.tail = nilSlot, nilSlot
	a.bytes = 0
	return n
}
