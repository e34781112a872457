// Package pipeline implements the bounded-queue staged runtime shared by the
// extraction and matching drivers: a worker-pool stage, a pinned
// single-thread stage, and a task-count barrier, wired together by Chain.
package pipeline

import "sync"

// Queue is a bounded FIFO of task indices. len never exceeds capacity;
// Push blocks while the queue is full, Pop blocks while it is empty. It is
// the Go counterpart of BoundedTaskQueue: a mutex plus two condition
// variables (not-full, not-empty) rather than a buffered channel, because
// a stage's stopAll must be able to unblock every waiter deterministically by pushing
// sentinel values, and a closed channel cannot carry a payload to do that.
type Queue struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	items []int
	cap   int
}

// NewQueue creates a Queue with the given capacity.
func NewQueue(capacity int) *Queue {
	q := &Queue{cap: capacity}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push enqueues one index, blocking while the queue is at capacity.
func (q *Queue) Push(index int) {
	q.mu.Lock()
	for len(q.items) >= q.cap {
		q.notFull.Wait()
	}
	q.items = append(q.items, index)
	q.mu.Unlock()
	q.notEmpty.Signal()
}

// Pop dequeues one index, blocking while the queue is empty.
func (q *Queue) Pop() int {
	q.mu.Lock()
	for len(q.items) == 0 {
		q.notEmpty.Wait()
	}
	idx := q.items[0]
	q.items = q.items[1:]
	q.mu.Unlock()
	q.notFull.Signal()
	return idx
}

// Len reports the current queue length. Exposed for tests verifying the
// capacity invariant; not used on any hot path.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap reports the queue's fixed capacity.
func (q *Queue) Cap() int { return q.cap }
