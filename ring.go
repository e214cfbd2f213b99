package spsc

// ring is fixed, power-of-two-length storage for one channel. It performs no
// synchronization of its own: every method assumes the caller has already
// established exclusive access to the slot through the channel's protocol.
// The ring also does not track which slots hold live values; that bookkeeping
// is derived by the owning channel from its own synchronization metadata
// (cursor range, or per-slot stamps).
type ring[T any] struct {
	mask  uint64
	slots []T
}

func newRing[T any](capacity uint64) ring[T] {
	if capacity == 0 || (capacity&(capacity-1)) != 0 {
		panic("spsc: capacity must be power of 2 and > 0")
	}
	return ring[T]{
		mask:  capacity - 1,
		slots: make([]T, capacity),
	}
}

// index maps any sequence number to a valid slot index.
func (r *ring[T]) index(seq uint64) uint64 {
	return seq & r.mask
}

func (r *ring[T]) capacity() uint64 {
	return uint64(len(r.slots))
}

// write stores a value assuming the slot is empty. Overwriting a slot whose
// previous occupant was never moved out skips that occupant's release hook —
// a leak, never a crash.
func (r *ring[T]) write(i uint64, v T) {
	r.slots[i] = v
}

// read moves a value out, zeroing the slot so anything it references is no
// longer retained by the ring.
func (r *ring[T]) read(i uint64) T {
	v := r.slots[i]
	var zero T
	r.slots[i] = zero
	return v
}

// dropInPlace releases a written-but-unread value: the release hook (if any)
// observes it exactly once, then the slot is zeroed.
func (r *ring[T]) dropInPlace(i uint64, release func(T)) {
	v := r.read(i)
	if release != nil {
		release(v)
	}
}
