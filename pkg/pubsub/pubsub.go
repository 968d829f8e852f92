// Package pubsub provides a typed, thread-safe subscriber list for snapshot
// fan-out. Callbacks are invoked synchronously in subscription order; a
// panicking subscriber is isolated so it cannot prevent the others from being
// notified.
package pubsub

import (
	"log/slog"
	"sort"
	"sync"
)

// Broker fans out values of type T to registered subscribers.
type Broker[T any] struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(T)
	logger *slog.Logger
}

// NewBroker creates an empty broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subs:   make(map[int]func(T)),
		logger: slog.Default().With("component", "pubsub"),
	}
}

// Subscribe registers a callback and returns an unsubscribe function.
// Unsubscribing is idempotent.
func (b *Broker[T]) Subscribe(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish invokes every subscriber synchronously with v.
func (b *Broker[T]) Publish(v T) {
	b.mu.RLock()
	// Copy so subscribers can unsubscribe from within their callback.
	// Ascending id order is subscription order.
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.subs[id])
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		b.notify(fn, v)
	}
}

// notify calls one subscriber, recovering a panic so remaining subscribers
// still get notified.
func (b *Broker[T]) notify(fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Subscriber panicked during notification", "panic", r)
		}
	}()
	fn(v)
}

// Len returns the number of active subscribers.
func (b *Broker[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
