package util

import "sync"

// RingBuffer is a fixed-capacity circular buffer that overwrites the oldest
// element once full. Safe for concurrent use.
type RingBuffer[T any] struct {
	mu   sync.RWMutex
	buf  []T
	next int
	full bool
}

// NewRingBuffer creates a ring buffer holding at most capacity elements.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer[T]{buf: make([]T, capacity)}
}

// Push appends an item, evicting the oldest when the buffer is full.
func (r *RingBuffer[T]) Push(item T) {
	r.mu.Lock()
	r.buf[r.next] = item
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

// Snapshot returns all stored elements, oldest first.
func (r *RingBuffer[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyLocked(r.lenLocked())
}

// Last returns up to n of the most recent elements, oldest first.
func (r *RingBuffer[T]) Last(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n > r.lenLocked() {
		n = r.lenLocked()
	}
	return r.copyLocked(n)
}

// Len returns the number of stored elements.
func (r *RingBuffer[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lenLocked()
}

func (r *RingBuffer[T]) lenLocked() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

func (r *RingBuffer[T]) copyLocked(n int) []T {
	count := r.lenLocked()
	start := r.next - count
	if start < 0 {
		start += len(r.buf)
	}
	out := make([]T, 0, n)
	for i := count - n; i < count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
