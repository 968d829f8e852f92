// Package buffer provides a generic, thread-safe bounded history buffer.
//
// History keeps the most recent N items in insertion order, evicting the
// oldest once capacity is reached (FIFO eviction by insertion order, not by
// age). Statistics are always collected for observability.
package buffer

import (
	"sync"
	"sync/atomic"
)

// History is a fixed-capacity ring holding the most recent items appended.
type History[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position

	// Statistics (atomic)
	appended int64
	evicted  int64
}

// NewHistory creates a history buffer with the given capacity.
// Capacity below 1 is raised to 1.
func NewHistory[T any](capacity int) *History[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &History[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Append adds an item, evicting the oldest if the buffer is full.
func (h *History[T]) Append(item T) {
	h.mu.Lock()
	h.items[h.head] = item
	h.head = (h.head + 1) % h.capacity
	if h.size < h.capacity {
		h.size++
	} else {
		atomic.AddInt64(&h.evicted, 1)
	}
	h.mu.Unlock()

	atomic.AddInt64(&h.appended, 1)
}

// Recent returns up to limit items, most recent first.
// A limit below 0 or above the current size returns everything held.
func (h *History[T]) Recent(limit int) []T {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := h.size
	if limit >= 0 && limit < n {
		n = limit
	}

	out := make([]T, n)
	for i := 0; i < n; i++ {
		// head-1 is the newest entry
		idx := (h.head - 1 - i + h.capacity*2) % h.capacity
		out[i] = h.items[idx]
	}
	return out
}

// Len returns the current number of items held.
func (h *History[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Capacity returns the maximum number of items the buffer holds.
func (h *History[T]) Capacity() int {
	return h.capacity // immutable, no lock needed
}

// Clear removes all items.
func (h *History[T]) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	var zero T
	for i := range h.items {
		h.items[i] = zero
	}
	h.head = 0
	h.size = 0
}

// Stats returns append/evict counters since creation.
func (h *History[T]) Stats() (appended, evicted int64) {
	return atomic.LoadInt64(&h.appended), atomic.LoadInt64(&h.evicted)
}
