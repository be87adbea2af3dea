package telemetry

// Ring keeps the most recent items up to a fixed capacity. Callers
// synchronize access.
type Ring[T any] struct {
	buf  []T
	next int
	full bool
}

// NewRing returns a ring holding up to n items, or 100 when n <= 0.
func NewRing[T any](n int) *Ring[T] {
	if n <= 0 {
		n = 100
	}
	return &Ring[T]{buf: make([]T, n)}
}

// Push stores v, overwriting the oldest item once full.
func (r *Ring[T]) Push(v T) {
	r.buf[r.next] = v
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

// Len returns the number of stored items.
func (r *Ring[T]) Len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Items returns a copy of the stored items, oldest first.
func (r *Ring[T]) Items() []T {
	if !r.full {
		return append(make([]T, 0, r.next), r.buf[:r.next]...)
	}
	out := make([]T, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}
