// Package broadcast fans state snapshots out to subscribers. Each
// subscriber holds at most one pending value; a slow reader skips straight
// to the latest.
package broadcast

import "sync"

// Hub delivers values of T to every current subscriber
type Hub[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	nextID int
}

// New creates an empty hub
func New[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[int]chan T)}
}

// Subscribe registers a subscriber. The returned function unsubscribes and
// closes the channel; it may be called more than once.
func (h *Hub[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)

	h.mu.Lock()
	subID := h.nextID
	h.nextID++
	h.subs[subID] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, subID)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish replaces any undelivered value with v for every subscriber
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

// Len returns the number of subscribers
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
