package store

// allocator hands out cache entries from a pool that is sized once and
// never shrinks. Entries given back by `release` are reused before the pool
// grows.
type allocator struct {
	length int
	pool   []entry
	free   []*entry
}

func newAllocator(capacity int) allocator {
	return allocator{pool: make([]entry, capacity)}
}

func (a *allocator) alloc() *entry {
	if n := len(a.free); n > 0 {
		e := a.free[n-1]
		a.free = a.free[:n-1]
		return e
	}
	if a.length >= len(a.pool) {
		return nil
	}
	ret := &a.pool[a.length]
	a.length++
	return ret
}

func (a *allocator) release(e *entry) {
	*e = entry{}
	a.free = append(a.free, e)
}
