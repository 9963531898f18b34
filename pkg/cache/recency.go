package cache

// LRU 链表直接挂在 arena 槽位上：head 为最近使用，tail 为淘汰候选。
// 新写入和被访问的条目都放到 head，因此同样陈旧的条目按插入顺序（FIFO）淘汰。

// pushFront 把未链接的槽位放到链表头部
func (a *arena) pushFront(i int32) {
	s := &a.slots[i]
	s.prev = nilSlot
	s.next = a.head
	if a.head != nilSlot {
		a.slots[a.head].prev = i
	}
	a.head = i
	if a.tail == nilSlot {
		a.tail = i
	}
}

// unlink 把槽位从链表中摘下，未链接的槽位也可以安全调用
func (a *arena) unlink(i int32) {
	s := &a.slots[i]
	linked := s.prev != nilSlot || s.next != nilSlot || a.head == i
	if !linked {
		return
	}

	if s.prev != nilSlot {
		a.slots[s.prev].next = s.next
	} else {
		a.head = s.next
	}
	if s.next != nilSlot {
		a.slots[s.next].prev = s.prev
	} else {
		a.tail = s.prev
	}
	s.prev, s.next = nilSlot, nilSlot
}

// touch 标记为最近使用
func (a *arena) touch(i int32) {
	if a.head == i {
		return
	}
	a.unlink(i)
	a.pushFront(i)
}

// oldest 返回淘汰候选，链表为空时返回 false
func (a *arena) oldest() (int32, bool) {
	if a.tail == nilSlot {
		return nilSlot, false
	}
	return a.tail, true
}

// order 按最近使用到最久未使用的顺序返回物理键，调试和测试使用
func (a *arena) order() []string {
	keys := make([]string, 0, a.len())
	for i := a.head; i != nilSlot; i = a.slots[i].next {
		keys = append(keys, a.slots[i].key)
	}
	return keys
}
