// SPDX-License-Identifier: MIT
/*
Package ring provides a fixed-capacity FIFO buffer for rolling analysis
history (energy levels, beat timestamps).

Design Principles:
- Fixed Capacity: storage is allocated once in New and never grows
- O(1) Push: a full buffer overwrites its oldest element in place
- Position Indexed: At(0) is always the oldest retained element

The buffer is not safe for concurrent use. Each analysis stream owns its
own buffers.
*/
package ring

// Buffer is a fixed-capacity circular FIFO of T.
type Buffer[T any] struct {
	data  []T
	head  int // Index of the oldest element.
	count int // Number of retained elements (<= len(data)).
}

// New returns an empty buffer holding at most capacity elements. A
// capacity below one is raised to one.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{data: make([]T, capacity)}
}

// Push appends v. When the buffer is full the oldest element is evicted
// and returned with ok set to true.
func (b *Buffer[T]) Push(v T) (evicted T, ok bool) {
	capacity := len(b.data)
	if b.count < capacity {
		b.data[(b.head+b.count)%capacity] = v
		b.count++
		return evicted, false
	}

	evicted = b.data[b.head]
	b.data[b.head] = v
	b.head = (b.head + 1) % capacity
	return evicted, true
}

// At returns the i-th oldest element. It panics if i is out of range,
// matching slice indexing.
func (b *Buffer[T]) At(i int) T {
	if i < 0 || i >= b.count {
		panic("ring: index out of range")
	}
	return b.data[(b.head+i)%len(b.data)]
}

// Newest returns the most recently pushed element.
func (b *Buffer[T]) Newest() (v T, ok bool) {
	if b.count == 0 {
		return v, false
	}
	return b.At(b.count - 1), true
}

// Len returns the number of retained elements.
func (b *Buffer[T]) Len() int { return b.count }

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int { return len(b.data) }

// Full reports whether the next Push will evict.
func (b *Buffer[T]) Full() bool { return b.count == len(b.data) }

// AppendTo appends the retained elements, oldest first, to dst and
// returns the extended slice. Passing a slice with enough spare capacity
// keeps the call allocation free.
func (b *Buffer[T]) AppendTo(dst []T) []T {
	for i := range b.count {
		dst = append(dst, b.data[(b.head+i)%len(b.data)])
	}
	return dst
}

// Values returns a copy of the retained elements, oldest first.
func (b *Buffer[T]) Values() []T {
	return b.AppendTo(make([]T, 0, b.count))
}

// Reset discards every element without releasing storage.
func (b *Buffer[T]) Reset() {
	var zero T
	for i := range b.data {
		b.data[i] = zero
	}
	b.head = 0
	b.count = 0
}
