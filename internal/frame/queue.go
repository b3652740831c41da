package frame

import "sync"

// Queue is a bounded FIFO of frames with drop-oldest overflow: when full,
// Push evicts the oldest frame and hands it back so the producer can
// release its Mat. Producers never block. Safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	items  []Frame
	cap    int
	drops  uint64
	closed bool
}

// NewQueue creates a Queue with the given capacity. Capacity below 1 is
// treated as 1.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{cap: capacity}
}

// Push appends f. If the queue is full the oldest frame is evicted and
// returned with dropped=true; the caller owns the evicted frame's Mat.
// Pushing to a closed queue evicts f itself.
func (q *Queue) Push(f Frame) (evicted Frame, dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.drops++
		return f, true
	}
	if len(q.items) >= q.cap {
		evicted = q.items[0]
		q.items = append(q.items[:0], q.items[1:]...)
		dropped = true
		q.drops++
	}
	q.items = append(q.items, f)
	return evicted, dropped
}

// Pop removes and returns the oldest frame, or ok=false when empty.
func (q *Queue) Pop() (f Frame, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Frame{}, false
	}
	f = q.items[0]
	q.items = append(q.items[:0], q.items[1:]...)
	return f, true
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drops returns the total number of frames dropped by overflow or close.
func (q *Queue) Drops() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drops
}

// Drain closes the queue and releases every queued frame's Mat. Further
// pushes are rejected.
func (q *Queue) Drain() {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.closed = true
	q.mu.Unlock()

	for i := range items {
		items[i].Close()
	}
}
