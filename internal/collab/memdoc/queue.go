package memdoc

import "sync"

// deliveryQueue runs notifications one at a time in enqueue order. A
// notification that triggers more operations only enqueues them; the
// outermost drain delivers everything.
type deliveryQueue struct {
	mu         sync.Mutex
	pending    []func()
	delivering bool
}

func (q *deliveryQueue) push(fns ...func()) {
	q.mu.Lock()
	q.pending = append(q.pending, fns...)
	q.mu.Unlock()
}

func (q *deliveryQueue) drain() {
	q.mu.Lock()
	if q.delivering {
		q.mu.Unlock()
		return
	}
	q.delivering = true
	for len(q.pending) > 0 {
		fn := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		fn()
		q.mu.Lock()
	}
	q.delivering = false
	q.mu.Unlock()
}
