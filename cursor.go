package spsc

import (
	"runtime"
	"sync/atomic"
)

// cursorChan is the shared-cursor (Lamport style) channel. Two shared
// monotonically increasing cursors: the producer advances tail, the consumer
// advances head. Fullness and emptiness are derived from their wrapped
// difference against capacity, so the invariant 0 <= tail-head <= N holds at
// all times.
//
// Store/load pairing: each side stores only its own cursor, after touching
// the slot, and loads the peer's cursor before touching the slot. The store
// of tail publishes the slot write to the consumer; the store of head
// publishes the freed slot to the producer.
type cursorChan[T any] struct {
	// Padding to avoid false sharing between hot fields.
	_       [64]byte
	ring    ring[T]
	release func(T)
	_       [64]byte
	head    atomic.Uint64 // next sequence to consume; written only by the consumer
	_       [64]byte
	tail    atomic.Uint64 // next sequence to produce; written only by the producer
	_       [64]byte
	closed  atomic.Bool
	halves  atomic.Int32 // open handles; unread slots are released when it reaches 0

	sendWaker waker // woken when a slot frees up
	recvWaker waker // woken when a value arrives
}

// Sender is the producer half of a shared-cursor channel.
// It must be used by at most one goroutine at a time.
type Sender[T any] struct {
	ch   *cursorChan[T]
	done bool
}

// Receiver is the consumer half of a shared-cursor channel.
// It must be used by at most one goroutine at a time.
type Receiver[T any] struct {
	ch   *cursorChan[T]
	done bool
}

// New creates a bounded shared-cursor SPSC channel and splits it into its
// producer and consumer halves. capacity must be a power of two (1<<k).
func New[T any](capacity uint64) (*Sender[T], *Receiver[T]) {
	return NewWithRelease[T](capacity, nil)
}

// NewWithRelease is New with a release hook: release is invoked exactly once
// for every value that was sent but never received, when the second half
// closes. Values moved out through TryRecv, RecvSpin, Recv or a Drain are
// owned by the caller and never passed to release.
func NewWithRelease[T any](capacity uint64, release func(T)) (*Sender[T], *Receiver[T]) {
	ch := &cursorChan[T]{
		ring:    newRing[T](capacity),
		release: release,
	}
	ch.halves.Store(2)
	return &Sender[T]{ch: ch}, &Receiver[T]{ch: ch}
}

// TrySend pushes a value into the buffer without blocking.
// Returns ErrFull if the ring is at capacity and ErrDisconnected if the
// receiver has closed; in both cases the caller keeps ownership of v.
func (s *Sender[T]) TrySend(v T) error {
	ch := s.ch
	if ch.closed.Load() {
		return ErrDisconnected
	}

	// Only this goroutine mutates tail.
	tail := ch.tail.Load()
	// Pairs with the consumer's head store: once observed, the consumer's
	// reads of the freed slots have completed.
	head := ch.head.Load()

	if tail-head >= ch.ring.capacity() {
		// slow consumer
		return ErrFull
	}

	ch.ring.write(ch.ring.index(tail), v)
	// Publishes the slot write: a consumer that observes tail+1 also
	// observes the value.
	ch.tail.Store(tail + 1)
	return nil
}

// SendSpin pushes a value using a busy-retry strategy, yielding to the
// scheduler only every goschedEvery failed attempts. Never returns ErrFull.
func (s *Sender[T]) SendSpin(v T) error {
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
func (r *Receiver[T]) TryRecv() (v T, ok bool, err error) {
	ch := r.ch

	// Only this goroutine mutates head.
	head := ch.head.Load()
	// Pairs with the producer's tail store: once observed, the producer's
	// slot writes up to tail have completed.
	tail := ch.tail.Load()

	if tail == head {
		if !ch.closed.Load() {
			return v, false, nil
		}
		// Closed: reload tail. The producer may have published between our
		// first tail load and its close, and everything sent before the
		// disconnect must still be delivered.
		tail = ch.tail.Load()
		if tail == head {
			return v, false, ErrDisconnected
		}
	}

	v = ch.ring.read(ch.ring.index(head))
	// Publishes the freed slot: a producer that observes head+1 may reuse it.
	ch.head.Store(head + 1)
	return v, true, nil
}

// RecvSpin pops a value using a busy-retry strategy, yielding to the
// scheduler only every goschedEvery failed attempts.
func (r *Receiver[T]) RecvSpin() (T, error) {
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
func (s *Sender[T]) Close() {
	if s.done {
		return
	}
	s.done = true
	s.ch.closed.Store(true)
	// Let a pending receive acknowledge the disconnection.
	s.ch.recvWaker.wake()
	s.ch.handleClosed()
}

// Close releases the consumer half. Idempotent.
func (r *Receiver[T]) Close() {
	if r.done {
		return
	}
	r.done = true
	r.ch.closed.Store(true)
	// Let a pending send acknowledge the disconnection.
	r.ch.sendWaker.wake()
	r.ch.handleClosed()
}

// handleClosed releases every written-but-unread slot once both halves have
// closed. The [head, tail) cursor range identifies exactly the live slots.
func (ch *cursorChan[T]) handleClosed() {
	if ch.halves.Add(-1) != 0 {
		return
	}
	head := ch.head.Load()
	tail := ch.tail.Load()
	for seq := head; seq != tail; seq++ {
		ch.ring.dropInPlace(ch.ring.index(seq), ch.release)
	}
}

// IsClosed reports whether either half has closed.
func (s *Sender[T]) IsClosed() bool { return s.ch.closed.Load() }

// IsClosed reports whether either half has closed.
func (r *Receiver[T]) IsClosed() bool { return r.ch.closed.Load() }

// Capacity returns the fixed channel capacity.
func (s *Sender[T]) Capacity() uint64 { return s.ch.ring.capacity() }

// Capacity returns the fixed channel capacity.
func (r *Receiver[T]) Capacity() uint64 { return r.ch.ring.capacity() }

// Len returns the number of buffered values.
func (s *Sender[T]) Len() uint64 { return s.ch.length() }

// Len returns the number of buffered values.
func (r *Receiver[T]) Len() uint64 { return r.ch.length() }

// IsEmpty reports whether no values are buffered.
func (s *Sender[T]) IsEmpty() bool { return s.Len() == 0 }

// IsEmpty reports whether no values are buffered.
func (r *Receiver[T]) IsEmpty() bool { return r.Len() == 0 }

func (ch *cursorChan[T]) length() uint64 {
	head := ch.head.Load()
	tail := ch.tail.Load()
	return tail - head
}
