package store

import (
	. "github.com/weberc2/ext2fs/pkg/types"
)

// Cache is a fixed-capacity LRU of inode records keyed by ino.
type Cache struct {
	head      *entry
	tail      *entry
	lookup    map[Ino]*entry
	allocator allocator
}

func NewCache(capacity int) *Cache {
	if capacity < 1 {
		panic("inode cache capacity must be positive")
	}
	return &Cache{
		lookup:    make(map[Ino]*entry),
		allocator: newAllocator(capacity),
	}
}

func (c *Cache) Len() int { return len(c.lookup) }

func (c *Cache) Get(ino Ino, out *Inode) bool {
	e, exists := c.lookup[ino]
	if !exists {
		return false
	}

	c.moveFront(e)
	*out = e.value
	return true
}

func (c *Cache) Remove(ino Ino, removed *Inode) bool {
	e := c.lookup[ino]
	if e == nil {
		return false
	}

	c.unlink(e)
	delete(c.lookup, ino)
	*removed = e.value
	c.allocator.release(e)
	return true
}

// Push inserts or refreshes `inode` as the most recently used entry. If the
// cache was full, the least recently used entry is copied into `evicted`
// and `true` is returned.
func (c *Cache) Push(inode *Inode, evicted *Inode) (evict bool) {
	if e, exists := c.lookup[inode.Ino]; exists {
		e.value = *inode
		c.moveFront(e)
		return false
	}

	e := c.allocator.alloc()
	if e == nil {
		e = c.tail
		*evicted = e.value
		delete(c.lookup, evicted.Ino)
		c.unlink(e)
		evict = true
	}

	e.value = *inode
	c.lookup[inode.Ino] = e
	c.pushFront(e)
	return
}

// Each visits every cached inode from most to least recently used.
func (c *Cache) Each(f func(inode *Inode)) {
	for e := c.head; e != nil; e = e.next {
		f(&e.value)
	}
}

func (c *Cache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}

	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (c *Cache) pushFront(e *entry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache) moveFront(e *entry) {
	if c.head == e {
		return
	}
	c.unlink(e)
	c.pushFront(e)
}

type entry struct {
	prev  *entry
	next  *entry
	value Inode
}
