package ringbuf

// Buffer is a fixed-capacity FIFO. Pushing past capacity evicts the oldest item.
// It is not safe for concurrent use; owners guard it with their own lock.
type Buffer[T any] struct {
	items []T
	head  int
	size  int
}

// New returns an empty buffer holding at most capacity items.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends item at the tail, evicting the head once full.
func (b *Buffer[T]) Push(item T) {
	tail := (b.head + b.size) % len(b.items)
	b.items[tail] = item
	if b.size < len(b.items) {
		b.size++
		return
	}
	b.head = (b.head + 1) % len(b.items)
}

func (b *Buffer[T]) Len() int { return b.size }

func (b *Buffer[T]) Cap() int { return len(b.items) }

// At returns the i-th item counting from the oldest.
func (b *Buffer[T]) At(i int) T {
	if i < 0 || i >= b.size {
		panic("ringbuf: index out of range")
	}
	return b.items[(b.head+i)%len(b.items)]
}

// Last returns the newest item, ok is false when empty.
func (b *Buffer[T]) Last() (item T, ok bool) {
	if b.size == 0 {
		return item, false
	}
	return b.At(b.size - 1), true
}

// Values returns a chronological copy, index 0 is the oldest.
func (b *Buffer[T]) Values() []T {
	out := make([]T, b.size)
	for i := range out {
		out[i] = b.items[(b.head+i)%len(b.items)]
	}
	return out
}

// Reset drops every item and refills from values, keeping only the newest Cap() of them.
func (b *Buffer[T]) Reset(values []T) {
	clear(b.items)
	b.head, b.size = 0, 0
	if over := len(values) - len(b.items); over > 0 {
		values = values[over:]
	}
	for _, v := range values {
		b.Push(v)
	}
}
