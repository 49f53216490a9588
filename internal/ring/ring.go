package ring

import (
	"fmt"
	"sync"
)

// Buffer implements a thread-safe, fixed-capacity circular buffer. When the buffer
// is full, Push silently evicts the oldest element so that a producer never blocks
// on a slow consumer.
//
// A single mutex serializes all operations. The buffer is intended for exactly one
// producer and one consumer, although any number of goroutines may call it safely.
type Buffer[T any] struct {
	mu sync.Mutex

	data  []T
	head  int // next write position
	tail  int // oldest element
	count int
}

// New creates a new Buffer holding up to capacity elements.
// Returns an error if capacity is not positive.
func New[T any](capacity int) (*Buffer[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid buffer capacity: %d", capacity)
	}
	return &Buffer[T]{data: make([]T, capacity)}, nil
}

// Push appends item, overwriting the oldest element when the buffer is full.
func (b *Buffer[T]) Push(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.push(item)
}

// PushSlice appends all items under a single lock acquisition.
func (b *Buffer[T]) PushSlice(items []T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, item := range items {
		b.push(item)
	}
}

func (b *Buffer[T]) push(item T) {
	b.data[b.head] = item
	b.head = (b.head + 1) % len(b.data)

	if b.count == len(b.data) {
		b.tail = (b.tail + 1) % len(b.data) // oldest element evicted
		return
	}
	b.count++
}

// Pop removes and returns the oldest element. It returns false if the buffer is empty.
func (b *Buffer[T]) Pop() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	if b.count == 0 {
		return zero, false
	}

	item := b.data[b.tail]
	b.data[b.tail] = zero
	b.tail = (b.tail + 1) % len(b.data)
	b.count--

	return item, true
}

// CopyLatest copies the most recent min(count, Size()) elements into the front of dst
// in chronological order and zero-fills the remaining requested slots, so a consumer
// can always request a fixed-size window. count is capped at len(dst).
// Returns the number of buffered elements actually copied.
func (b *Buffer[T]) CopyLatest(dst []T, count int) int {
	count = min(count, len(dst))
	if count <= 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n := min(count, b.count)
	start := (b.head - n + len(b.data)) % len(b.data)
	for i := 0; i < n; i++ {
		dst[i] = b.data[(start+i)%len(b.data)]
	}

	clear(dst[n:count])
	return n
}

// Size returns the number of elements currently stored.
func (b *Buffer[T]) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Capacity returns the fixed capacity of the buffer.
func (b *Buffer[T]) Capacity() int {
	return len(b.data)
}

// IsEmpty returns true if the buffer holds no elements.
func (b *Buffer[T]) IsEmpty() bool {
	return b.Size() == 0
}

// IsFull returns true if the next Push will evict the oldest element.
func (b *Buffer[T]) IsFull() bool {
	return b.Size() == len(b.data)
}

// Clear resets the buffer to empty without releasing its storage.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.data)
	b.head, b.tail, b.count = 0, 0, 0
}
