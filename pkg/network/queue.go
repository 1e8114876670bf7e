package network

import "sync"

// pendingQueue is the delayed-phase FIFO of one connection. Single
// producer (the reader goroutine), single consumer (the tick loop); the
// mutex covers the handoff.
type pendingQueue struct {
	mu    sync.Mutex
	items []Handler
}

func (q *pendingQueue) push(h Handler) {
	q.mu.Lock()
	q.items = append(q.items, h)
	q.mu.Unlock()
}

// takeAll removes and returns every queued handler in receipt order.
func (q *pendingQueue) takeAll() []Handler {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}
