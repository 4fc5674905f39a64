package event

import "sync"

// Emitter delivers values of type T to subscribed handlers.
// The zero value is ready to use.
type Emitter[T any] struct {
	mu       sync.Mutex
	handlers []*handlerEntry[T]
}

type handlerEntry[T any] struct {
	fn  func(T)
	sub *subscription
}

// Subscribe registers fn and returns its subscription.
func (e *Emitter[T]) Subscribe(fn func(T)) Subscription {
	entry := &handlerEntry[T]{fn: fn}
	entry.sub = newSubscription(func() { e.remove(entry) })

	e.mu.Lock()
	e.handlers = append(e.handlers, entry)
	e.mu.Unlock()
	return entry.sub
}

func (e *Emitter[T]) remove(entry *handlerEntry[T]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, h := range e.handlers {
		if h == entry {
			e.handlers = append(e.handlers[:i:i], e.handlers[i+1:]...)
			return
		}
	}
}

// Emit calls every active handler with v. Handlers cancelled during delivery
// are skipped for the remainder of this emission.
func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	handlers := make([]*handlerEntry[T], len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.Unlock()

	for _, h := range handlers {
		if h.sub.IsActive() {
			h.fn(v)
		}
	}
}

// Len returns the number of subscribed handlers.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}

// Clear cancels every subscription.
func (e *Emitter[T]) Clear() {
	e.mu.Lock()
	handlers := e.handlers
	e.handlers = nil
	e.mu.Unlock()

	for _, h := range handlers {
		h.sub.state.Store(int32(SubscriptionStateCancelled))
	}
}
