package history

// ring is a fixed-capacity FIFO buffer. When full, the oldest entry is
// overwritten. It is not safe for concurrent use; Log guards it.
type ring[T any] struct {
	entries  []T
	capacity int
	head     int // index where the next write goes once full
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{entries: make([]T, 0, capacity), capacity: capacity}
}

func (r *ring[T]) push(v T) (evicted bool) {
	if len(r.entries) < r.capacity {
		r.entries = append(r.entries, v)
		return false
	}
	r.entries[r.head] = v
	r.head = (r.head + 1) % r.capacity
	return true
}

// all returns the entries oldest first.
func (r *ring[T]) all() []T {
	out := make([]T, len(r.entries))
	if len(r.entries) < r.capacity {
		copy(out, r.entries)
		return out
	}
	n := copy(out, r.entries[r.head:])
	copy(out[n:], r.entries[:r.head])
	return out
}

// resize changes capacity, keeping the newest entries. It returns how many
// entries were dropped.
func (r *ring[T]) resize(capacity int) int {
	cur := r.all()
	dropped := 0
	if len(cur) > capacity {
		dropped = len(cur) - capacity
		cur = cur[dropped:]
	}
	r.entries = make([]T, len(cur), capacity)
	copy(r.entries, cur)
	r.capacity = capacity
	r.head = 0
	return dropped
}

func (r *ring[T]) len() int { return len(r.entries) }

func (r *ring[T]) clear() {
	r.entries = r.entries[:0]
	r.head = 0
}
