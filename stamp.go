package spsc

import (
	"runtime"
	"sync/atomic"
)

// Original per-slot sequencing by Dmitry Vyukov
// https://www.1024cores.net/home/lock-free-algorithms/queues/bounded-mpmc-queue
// restricted here to the single-producer single-consumer case: with one
// goroutine per side neither cursor needs to be shared at all.

// stampSlot carries its own sequence stamp next to the value. Protocol:
//   - initial: the slot's own index (writable at sequence index)
//   - after a write at tail: tail+1 (readable)
//   - after a read at head: head+N (writable again on the next lap)
type stampSlot[T any] struct {
	stamp atomic.Uint64
	val   T
}

// stampChan is the per-slot-stamp (Vyukov style) channel. The producer and
// consumer cursors are private fields of the handles, never shared; the two
// sides synchronize only through the stamp of the slot they are about to
// touch. Cross-core traffic is limited to exactly those slots, at the cost
// of one atomic stamp per slot instead of two shared cursors.
type stampChan[T any] struct {
	// Padding to avoid false sharing between hot fields.
	_        [64]byte
	mask     uint64
	capacity uint64
	slots    []stampSlot[T]
	release  func(T)
	_        [64]byte
	// Mirrors of the private cursors maintained purely for Len/IsEmpty.
	// Best-effort: written after the per-slot publish, never read for
	// correctness by either protocol path.
	approxHead atomic.Uint64
	_          [64]byte
	approxTail atomic.Uint64
	_          [64]byte
	closed     atomic.Bool
	halves     atomic.Int32

	sendWaker waker
	recvWaker waker
}

// StampedSender is the producer half of a per-slot-stamp channel.
// It must be used by at most one goroutine at a time.
type StampedSender[T any] struct {
	ch   *stampChan[T]
	tail uint64 // private producer cursor, never shared
	done bool
}

// StampedReceiver is the consumer half of a per-slot-stamp channel.
// It must be used by at most one goroutine at a time.
type StampedReceiver[T any] struct {
	ch   *stampChan[T]
	head uint64 // private consumer cursor, never shared
	done bool
}

// NewStamped creates a bounded per-slot-stamp SPSC channel and splits it
// into its producer and consumer halves. capacity must be a power of two.
func NewStamped[T any](capacity uint64) (*StampedSender[T], *StampedReceiver[T]) {
	return NewStampedWithRelease[T](capacity, nil)
}

// NewStampedWithRelease is NewStamped with a release hook: release is
// invoked exactly once for every value that was sent but never received,
// when the second half closes.
func NewStampedWithRelease[T any](capacity uint64, release func(T)) (*StampedSender[T], *StampedReceiver[T]) {
	if capacity == 0 || (capacity&(capacity-1)) != 0 {
		panic("spsc: capacity must be power of 2 and > 0")
	}
	slots := make([]stampSlot[T], capacity)
	for i := uint64(0); i < capacity; i++ {
		// initial stamp for each slot matches its index
		slots[i].stamp.Store(i)
	}
	ch := &stampChan[T]{
		mask:     capacity - 1,
		capacity: capacity,
		slots:    slots,
		release:  release,
	}
	ch.halves.Store(2)
	return &StampedSender[T]{ch: ch}, &StampedReceiver[T]{ch: ch}
}

// TrySend pushes a value into the buffer without blocking.
// Returns ErrFull if the slot for the current lap has not been freed yet and
// ErrDisconnected if the receiver has closed; in both cases the caller keeps
// ownership of v. No shared cursor is read or written.
func (s *StampedSender[T]) TrySend(v T) error {
	ch := s.ch
	if ch.closed.Load() {
		return ErrDisconnected
	}

	tail := s.tail
	slot := &ch.slots[tail&ch.mask]

	// Pairs with the consumer's stamp store: stamp == tail means the
	// consumer finished with this slot on the previous lap.
	if slot.stamp.Load() != tail {
		return ErrFull
	}

	slot.val = v
	// Publishes the value: a consumer that observes tail+1 also observes val.
	slot.stamp.Store(tail + 1)
	s.tail = tail + 1
	ch.approxTail.Store(s.tail) // length queries only
	return nil
}

// SendSpin pushes a value using a busy-retry strategy, yielding to the
// scheduler only every goschedEvery failed attempts. Never returns ErrFull.
func (s *StampedSender[T]) SendSpin(v T) error {
	var spins uint32
	for {
		if err := s.TrySend(v); err != ErrFull {
			return err
		}
		spins++
		if spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	}
}

// TryRecv pops a value from the buffer without blocking.
// ok is false when no value was ready; err is ErrDisconnected only once the
// sender has closed and all buffered data has been drained.
func (r *StampedReceiver[T]) TryRecv() (v T, ok bool, err error) {
	ch := r.ch
	head := r.head
	slot := &ch.slots[head&ch.mask]

	// Pairs with the producer's stamp store: stamp == head+1 means the
	// value for this sequence has been published.
	if slot.stamp.Load() != head+1 {
		if !ch.closed.Load() {
			return v, false, nil
		}
		// Closed: reload the stamp. The producer may have published between
		// our first stamp load and its close, and everything sent before
		// the disconnect must still be delivered.
		if slot.stamp.Load() != head+1 {
			return v, false, ErrDisconnected
		}
	}

	v = slot.val
	var zero T
	slot.val = zero
	// Frees the slot for the next lap: a producer that observes head+N may
	// write sequence head+N into it.
	slot.stamp.Store(head + ch.capacity)
	r.head = head + 1
	ch.approxHead.Store(r.head) // length queries only
	return v, true, nil
}

// RecvSpin pops a value using a busy-retry strategy, yielding to the
// scheduler only every goschedEvery failed attempts.
func (r *StampedReceiver[T]) RecvSpin() (T, error) {
	var spins uint32
	for {
		v, ok, err := r.TryRecv()
		if ok || err != nil {
			return v, err
		}
		spins++
		if spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	}
}

// Close releases the producer half. Idempotent. The receiver can still drain
// everything published before the close and only then observes
// ErrDisconnected.
func (s *StampedSender[T]) Close() {
	if s.done {
		return
	}
	s.done = true
	s.ch.closed.Store(true)
	s.ch.recvWaker.wake()
	s.ch.handleClosed()
}

// Close releases the consumer half. Idempotent.
func (r *StampedReceiver[T]) Close() {
	if r.done {
		return
	}
	r.done = true
	r.ch.closed.Store(true)
	r.ch.sendWaker.wake()
	r.ch.handleClosed()
}

// handleClosed releases every written-but-unread slot once both halves have
// closed. Raw stamps repeat across laps (after a lap-1 write, slot 0 carries
// N+1 while slot 1 still carries its initial 1), so a slot holds unread data
// iff stamp mod N == (index+1) mod N, never on raw stamp equality.
func (ch *stampChan[T]) handleClosed() {
	if ch.halves.Add(-1) != 0 {
		return
	}
	for i := uint64(0); i < ch.capacity; i++ {
		slot := &ch.slots[i]
		if slot.stamp.Load()&ch.mask == (i+1)&ch.mask {
			v := slot.val
			var zero T
			slot.val = zero
			if ch.release != nil {
				ch.release(v)
			}
		}
	}
}

// IsClosed reports whether either half has closed.
func (s *StampedSender[T]) IsClosed() bool { return s.ch.closed.Load() }

// IsClosed reports whether either half has closed.
func (r *StampedReceiver[T]) IsClosed() bool { return r.ch.closed.Load() }

// Capacity returns the fixed channel capacity.
func (s *StampedSender[T]) Capacity() uint64 { return s.ch.capacity }

// Capacity returns the fixed channel capacity.
func (r *StampedReceiver[T]) Capacity() uint64 { return r.ch.capacity }

// Len returns an approximation of the number of buffered values. It reads
// the best-effort cursor mirrors rather than the per-slot stamps, so it may
// lag either side; it must not be used for correctness decisions.
func (s *StampedSender[T]) Len() uint64 { return s.ch.length() }

// Len returns an approximation of the number of buffered values. See
// StampedSender.Len for the accuracy caveat.
func (r *StampedReceiver[T]) Len() uint64 { return r.ch.length() }

// IsEmpty reports whether the length approximation is zero.
func (s *StampedSender[T]) IsEmpty() bool { return s.Len() == 0 }

// IsEmpty reports whether the length approximation is zero.
func (r *StampedReceiver[T]) IsEmpty() bool { return r.Len() == 0 }

func (ch *stampChan[T]) length() uint64 {
	head := ch.approxHead.Load()
	tail := ch.approxTail.Load()
	if tail < head {
		// The mirrors are written independently of the per-slot publish; a
		// torn pair can momentarily read backwards.
		return 0
	}
	return tail - head
}
