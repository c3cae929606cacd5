package store

import "sync"

// orderLocks serializes mutations per order id. Every mutating operation
// holds the order's lock for its whole critical section; reads never do.
type orderLocks struct {
	locks sync.Map
}

func (l *orderLocks) Lock(orderID uint) (unlock func()) {
	v, _ := l.locks.LoadOrStore(orderID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
