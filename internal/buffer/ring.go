package buffer

// Ring is a fixed-capacity FIFO. Add overwrites the oldest entry once full.
type Ring[T any] struct {
	entries []T
	start   int
	count   int
}

func NewRing[T any](size int) *Ring[T] {
	if size <= 0 {
		size = 1
	}
	return &Ring[T]{
		entries: make([]T, size),
	}
}

func (r *Ring[T]) Add(entry T) {
	if r == nil || len(r.entries) == 0 {
		return
	}

	if r.count < len(r.entries) {
		index := (r.start + r.count) % len(r.entries)
		r.entries[index] = entry
		r.count++
		return
	}

	r.entries[r.start] = entry
	r.start = (r.start + 1) % len(r.entries)
}

// Front returns the oldest entry.
func (r *Ring[T]) Front() (T, bool) {
	var zero T
	if r == nil || r.count == 0 {
		return zero, false
	}
	return r.entries[r.start], true
}

// PopFront removes and returns the oldest entry.
func (r *Ring[T]) PopFront() (T, bool) {
	var zero T
	if r == nil || r.count == 0 {
		return zero, false
	}
	entry := r.entries[r.start]
	r.entries[r.start] = zero
	r.start = (r.start + 1) % len(r.entries)
	r.count--
	return entry, true
}

// DropWhile pops entries from the front for as long as drop reports true.
// It returns the number of entries removed.
func (r *Ring[T]) DropWhile(drop func(T) bool) int {
	if r == nil || drop == nil {
		return 0
	}
	removed := 0
	for {
		entry, ok := r.Front()
		if !ok || !drop(entry) {
			return removed
		}
		r.PopFront()
		removed++
	}
}

func (r *Ring[T]) Len() int {
	if r == nil {
		return 0
	}
	return r.count
}

func (r *Ring[T]) Cap() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

func (r *Ring[T]) Full() bool {
	return r != nil && r.count == len(r.entries)
}

func (r *Ring[T]) Reset() {
	if r == nil {
		return
	}
	var zero T
	for i := range r.entries {
		r.entries[i] = zero
	}
	r.start = 0
	r.count = 0
}

func (r *Ring[T]) List() []T {
	if r == nil || r.count == 0 {
		return nil
	}

	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		index := (r.start + i) % len(r.entries)
		out[i] = r.entries[index]
	}
	return out
}
