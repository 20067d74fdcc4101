package history

// Ring is a fixed-capacity FIFO buffer. Pushing onto a full ring evicts the
// oldest element. It is not safe for concurrent use.
type Ring[T any] struct {
	data  []T
	head  int
	count int
}

// NewRing returns a ring holding at most capacity elements. A capacity
// below one falls back to DefaultCapacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}

	return &Ring[T]{data: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when full. It reports whether
// an element was evicted.
func (r *Ring[T]) Push(v T) bool {
	evicted := r.count == len(r.data)
	r.data[r.head] = v
	r.head = (r.head + 1) % len(r.data)
	if !evicted {
		r.count++
	}

	return evicted
}

// All returns a copy of the elements, oldest first.
func (r *Ring[T]) All() []T {
	if r.count == 0 {
		return nil
	}

	out := make([]T, r.count)
	if r.count < len(r.data) {
		copy(out, r.data[:r.count])
		return out
	}

	n := copy(out, r.data[r.head:])
	copy(out[n:], r.data[:r.head])

	return out
}

// Last returns the newest element.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}

	return r.data[(r.head-1+len(r.data))%len(r.data)], true
}

func (r *Ring[T]) Len() int { return r.count }
func (r *Ring[T]) Cap() int { return len(r.data) }
