package store

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// keyQueue hands out one exclusive slot per key. Waiters are admitted in
// arrival order, and a waiter whose context ends leaves the queue.
type keyQueue struct {
	mu    sync.Mutex
	slots map[string]*semaphore.Weighted
}

func newKeyQueue() *keyQueue {
	return &keyQueue{slots: make(map[string]*semaphore.Weighted)}
}

func (q *keyQueue) acquire(ctx context.Context, key string) (func(), error) {
	q.mu.Lock()
	slot, ok := q.slots[key]
	if !ok {
		slot = semaphore.NewWeighted(1)
		q.slots[key] = slot
	}
	q.mu.Unlock()

	if err := slot.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { slot.Release(1) }) }, nil
}
